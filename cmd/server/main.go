package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena/internal/api"
	"arena/internal/config"
	"arena/internal/game"
	"arena/internal/matchmaking"
	"arena/internal/registry"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	} else {
		log.Println("✅ Loaded environment from .env")
	}

	log.Println("🏟️ ================================")
	log.Println("🏟️  ARENA - MATCH SERVER")
	log.Println("🏟️ ================================")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
	log.Printf("🎮 Simulation: %d Hz, %d-%d players, world %gx%g",
		cfg.Game.TickHz, cfg.Game.MinPlayers, cfg.Game.MaxPlayers,
		cfg.World.Width, cfg.World.Height)
	log.Printf("🎯 Matchmaking: pass every %dms, skill tol %d-%d, latency gate %dms",
		cfg.Matchmaking.TickMs, cfg.Matchmaking.BaseSkillTol,
		cfg.Matchmaking.MaxSkillTol, cfg.Matchmaking.LatencyTolMs)
	if cfg.Replay.ArchiveDir != "" {
		log.Printf("💾 Replay archive: %s", cfg.Replay.ArchiveDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Match loops report through the metrics hooks.
	hooks := game.Hooks{
		OnTick:         api.RecordTick,
		OnOverrun:      api.RecordOverrun,
		OnDroppedInput: api.RecordDroppedInput,
	}
	reg := registry.New(cfg, hooks)

	ratings := matchmaking.NewRatingTable(matchmaking.RatingConfig{
		Default:     cfg.Matchmaking.RatingDefault,
		Floor:       cfg.Matchmaking.RatingFloor,
		Ceiling:     cfg.Matchmaking.RatingCeiling,
		KFactor:     cfg.Matchmaking.KFactor,
		DecayDays:   cfg.Matchmaking.DecayDays,
		DecayPerDay: cfg.Matchmaking.DecayPerDay,
	})
	mm := matchmaking.New(matchmaking.Config{
		TickMs:         cfg.Matchmaking.TickMs,
		BaseSkillTol:   cfg.Matchmaking.BaseSkillTol,
		MaxSkillTol:    cfg.Matchmaking.MaxSkillTol,
		LatencyTolMs:   cfg.Matchmaking.LatencyTolMs,
		QueueTimeoutMs: cfg.Matchmaking.QueueTimeoutMs,
	}, ratings, func(players []matchmaking.Entry, mode string) (string, error) {
		ids := make([]string, len(players))
		for i, p := range players {
			ids[i] = p.PlayerID
		}
		return reg.CreateForParty(ctx, matchmaking.NewMatchID(), mode, ids)
	})

	gateway := api.NewGateway(reg, mm, cfg.Server.MaxConns, cfg.Server.MaxConnsPerIP)

	go mm.Run(ctx)
	go gateway.RunQueueEvents(ctx)
	go reportLoad(ctx, reg, mm)

	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		api.StartDebugServer(api.DefaultObservabilityConfig())
	}

	server := api.NewServer(cfg.Server.Port, api.RouterConfig{
		Registry:   reg,
		Matchmaker: mm,
		Gateway:    gateway,
	})
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ http shutdown: %v", err)
	}
	reg.TerminateAll("shutdown", 5*time.Second)
	cancel()
	log.Println("👋 Goodbye!")
}

// reportLoad refreshes the coarse load gauges once a second.
func reportLoad(ctx context.Context, reg *registry.Registry, mm *matchmaking.Matchmaker) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			api.SetActiveMatches(reg.Count())
			api.SetQueueDepth(mm.Depth())
		}
	}
}
