package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics use bounded cardinality only: no per-player or per-match labels.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.001, 0.005, 0.01, 0.016, 0.025, 0.05, 0.1},
	})

	tickOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_tick_overruns_total",
		Help: "Ticks that exceeded their time budget",
	})

	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_matches",
		Help: "Currently running matches",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_queue_depth",
		Help: "Players waiting in matchmaking queues",
	})

	droppedInputs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_dropped_inputs_total",
		Help: "Inputs dropped from full match queues",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_connection_rejected_total",
		Help: "Connections rejected before upgrade",
	}, []string{"reason"}) // bounded: rate_limit, origin, conn_limit

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // bounded: in, out
)

// RecordTick feeds the tick histogram. Wired as game.Hooks.OnTick.
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// RecordOverrun counts a budget overrun. Wired as game.Hooks.OnOverrun.
func RecordOverrun(string, time.Duration) {
	tickOverruns.Inc()
}

// RecordDroppedInput counts one dropped input. Wired as
// game.Hooks.OnDroppedInput.
func RecordDroppedInput(string) {
	droppedInputs.Inc()
}

// SetActiveMatches updates the live match gauge.
func SetActiveMatches(n int) {
	activeMatches.Set(float64(n))
}

// SetQueueDepth updates the matchmaking queue gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordConnectionRejected counts a refused connection. The reason must
// come from the bounded set above.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// SetWSConnections updates the WebSocket connection gauge.
func SetWSConnections(n int) {
	wsConnectionsActive.Set(float64(n))
}

// CountWSMessage counts one WebSocket message, direction "in" or "out".
func CountWSMessage(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}

// ObservabilityConfig configures the internal debug listener.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // must stay on loopback unless explicitly overridden
}

// DefaultObservabilityConfig returns loopback-only defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer serves pprof and Prometheus metrics on the debug
// address. Binding off loopback requires ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg ObservabilityConfig) {
	if !cfg.Enabled {
		log.Println("debug server disabled")
		return
	}
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("debug server forced to loopback")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Printf("debug server listening on %s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Printf("debug server: %v", err)
		}
	}()
}
