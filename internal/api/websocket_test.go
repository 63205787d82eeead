package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arena/internal/matchmaking"
	"arena/internal/registry"
)

// testGateway builds a server around an explicit gateway so tests can
// reach the sessions behind it.
func testGateway(t *testing.T, reg *registry.Registry, mm *matchmaking.Matchmaker) (*httptest.Server, *Gateway) {
	t.Helper()
	gw := NewGateway(reg, mm, 100, 10)
	router := NewRouter(RouterConfig{
		Registry:       reg,
		Matchmaker:     mm,
		Gateway:        gw,
		DisableLogging: true,
		RateLimiter:    NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}),
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, gw
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readWSType reads frames until one with the given type arrives, failing
// after the deadline. Pushed frames of other types are skipped.
func readWSType(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read waiting for %q: %v", wantType, err)
		}
		if msg["type"] == wantType {
			return msg
		}
	}
}

// TestPingPong verifies the latency probe echoes the client timestamp.
func TestPingPong(t *testing.T) {
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)
	conn := dialWS(t, ts)

	sendWS(t, conn, map[string]any{"type": "ping", "ts": 12345})
	msg := readWSType(t, conn, "pong")
	if msg["ts"].(float64) != 12345 {
		t.Fatalf("pong ts = %v, want 12345", msg["ts"])
	}
	if msg["server_ts"].(float64) == 0 {
		t.Fatal("pong missing server_ts")
	}
}

// TestJoinMatchFlow verifies join_match admits a player, replies joined
// and pushes an immediate full state.
func TestJoinMatchFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	h, err := reg.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Match.Terminate("test_done")

	conn := dialWS(t, ts)
	sendWS(t, conn, map[string]any{"type": "join_match", "match_id": "m1", "player_id": "p1"})

	joined := readWSType(t, conn, "joined")
	if joined["match_id"] != "m1" {
		t.Fatalf("joined match_id = %v", joined["match_id"])
	}
	full := readWSType(t, conn, "state_full")
	if full["match_id"] != "m1" {
		t.Fatalf("state_full match_id = %v", full["match_id"])
	}

	// duplicate join on the same connection is refused
	sendWS(t, conn, map[string]any{"type": "join_match", "match_id": "m1", "player_id": "p1"})
	errMsg := readWSType(t, conn, "error")
	if errMsg["reason"] != "already_joined" {
		t.Fatalf("reason = %v, want already_joined", errMsg["reason"])
	}
}

// TestJoinUnknownMatch verifies the error reply for a missing match id.
func TestJoinUnknownMatch(t *testing.T) {
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)
	conn := dialWS(t, ts)

	sendWS(t, conn, map[string]any{"type": "join_match", "match_id": "nope", "player_id": "p1"})
	msg := readWSType(t, conn, "error")
	if msg["reason"] != "match_not_found" {
		t.Fatalf("reason = %v, want match_not_found", msg["reason"])
	}
}

// TestSpectateFlow verifies spectate admits a viewer and pushes state.
func TestSpectateFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	h, err := reg.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Match.Terminate("test_done")

	conn := dialWS(t, ts)
	sendWS(t, conn, map[string]any{"type": "spectate", "match_id": "m1", "spectator_id": "s1"})

	welcome := readWSType(t, conn, "welcome")
	if welcome["spectator_id"] != "s1" {
		t.Fatalf("spectator_id = %v, want s1", welcome["spectator_id"])
	}
	if welcome["spectators"].(float64) != 1 {
		t.Fatalf("spectators = %v, want 1", welcome["spectators"])
	}
	readWSType(t, conn, "state_full")
	if h.Room.Count() != 1 {
		t.Fatalf("room count = %d, want 1", h.Room.Count())
	}
}

// TestQueueJoinAndLeave verifies the queue protocol round trip.
func TestQueueJoinAndLeave(t *testing.T) {
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)
	conn := dialWS(t, ts)

	sendWS(t, conn, map[string]any{
		"type": "queue_join", "player_id": "p1", "mode": "1v1",
		"region": "na_east", "latency_ms": 40,
	})
	queued := readWSType(t, conn, "queued")
	if queued["position"].(float64) != 1 {
		t.Fatalf("position = %v, want 1", queued["position"])
	}
	if mm.Depth() != 1 {
		t.Fatalf("Depth = %d, want 1", mm.Depth())
	}

	sendWS(t, conn, map[string]any{"type": "queue_leave", "player_id": "p1"})
	readWSType(t, conn, "left")
	if mm.Depth() != 0 {
		t.Fatalf("Depth after leave = %d, want 0", mm.Depth())
	}

	// bad region is answered with the sentinel reason
	sendWS(t, conn, map[string]any{
		"type": "queue_join", "player_id": "p1", "mode": "1v1",
		"region": "atlantis", "latency_ms": 40,
	})
	msg := readWSType(t, conn, "error")
	if msg["reason"] != "unknown_region" {
		t.Fatalf("reason = %v, want unknown_region", msg["reason"])
	}
}

// TestDisconnectCleansUp verifies closing the socket removes the player
// from the match and the queue.
func TestDisconnectCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	h, err := reg.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Match.Terminate("test_done")

	conn := dialWS(t, ts)
	sendWS(t, conn, map[string]any{"type": "join_match", "match_id": "m1", "player_id": "p1"})
	readWSType(t, conn, "joined")
	if got := h.Match.PlayerCount(); got != 1 {
		t.Fatalf("PlayerCount = %d, want 1", got)
	}

	conn.Close()

	deadline := time.After(2 * time.Second)
	for h.Match.PlayerCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("player not removed after disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestMatchCreateFailedPushed verifies a failed match creation is
// announced to every queued player over their socket.
func TestMatchCreateFailedPushed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, _ := testDeps(t)
	ratings := matchmaking.NewRatingTable(matchmaking.RatingConfig{
		Default: 1200, Floor: 100, Ceiling: 3000, KFactor: 32,
	})
	mm := matchmaking.New(matchmaking.Config{
		TickMs: 1000, BaseSkillTol: 100, MaxSkillTol: 300,
		LatencyTolMs: 150, QueueTimeoutMs: 30_000,
	}, ratings, func(players []matchmaking.Entry, mode string) (string, error) {
		return "", errors.New("capacity")
	})
	ts, gw := testGateway(t, reg, mm)
	go gw.RunQueueEvents(ctx)

	connA := dialWS(t, ts)
	connB := dialWS(t, ts)
	sendWS(t, connA, map[string]any{
		"type": "queue_join", "player_id": "p1", "mode": "1v1",
		"region": "na_east", "latency_ms": 40,
	})
	readWSType(t, connA, "queued")
	sendWS(t, connB, map[string]any{
		"type": "queue_join", "player_id": "p2", "mode": "1v1",
		"region": "na_east", "latency_ms": 45,
	})
	readWSType(t, connB, "queued")

	mm.Tick()
	readWSType(t, connA, "match_create_failed")
	readWSType(t, connB, "match_create_failed")
	if mm.Depth() != 2 {
		t.Fatalf("Depth = %d, want 2 (players stay queued)", mm.Depth())
	}
}

// TestSendAfterTeardownDrops verifies a frame pushed to a session that
// has already torn down is dropped instead of crashing the pusher. The
// queue event fan-out can race a disconnect, so a stale session pointer
// must stay safe to send to.
func TestSendAfterTeardownDrops(t *testing.T) {
	reg, mm := testDeps(t)
	ts, gw := testGateway(t, reg, mm)

	conn := dialWS(t, ts)
	sendWS(t, conn, map[string]any{
		"type": "queue_join", "player_id": "p1", "mode": "1v1",
		"region": "na_east", "latency_ms": 40,
	})
	readWSType(t, conn, "queued")

	s, ok := gw.lookup("p1")
	if !ok {
		t.Fatal("session not registered after queue_join")
	}
	conn.Close()

	deadline := time.After(2 * time.Second)
	for {
		if _, still := gw.lookup("p1"); !still {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session not unregistered after disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// fill well past the queue capacity; every frame must be dropped
	for i := 0; i < 2*sessionQueue; i++ {
		s.sendJSON(map[string]string{"type": "match_create_failed"})
	}
}
