package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arena/internal/config"
	"arena/internal/game"
	"arena/internal/matchmaking"
	"arena/internal/registry"
)

func testDeps(t *testing.T) (*registry.Registry, *matchmaking.Matchmaker) {
	t.Helper()
	cfg := config.AppConfig{
		Game:        config.DefaultGame(),
		World:       config.DefaultWorld(),
		Matchmaking: config.DefaultMatchmaking(),
		Broadcast:   config.DefaultBroadcast(),
		Replay:      config.DefaultReplay(),
		Server:      config.DefaultServer(),
	}
	cfg.Game.InputQueue = 2 * cfg.Game.TickHz

	reg := registry.New(cfg, game.Hooks{})
	ratings := matchmaking.NewRatingTable(matchmaking.RatingConfig{
		Default: 1200, Floor: 100, Ceiling: 3000, KFactor: 32,
	})
	mm := matchmaking.New(matchmaking.Config{
		TickMs: 1000, BaseSkillTol: 100, MaxSkillTol: 300,
		LatencyTolMs: 150, QueueTimeoutMs: 30_000,
	}, ratings, func(players []matchmaking.Entry, mode string) (string, error) {
		return matchmaking.NewMatchID(), nil
	})
	return reg, mm
}

func testServer(t *testing.T, reg *registry.Registry, mm *matchmaking.Matchmaker) *httptest.Server {
	t.Helper()
	router := NewRouter(RouterConfig{
		Registry:       reg,
		Matchmaker:     mm,
		Gateway:        NewGateway(reg, mm, 100, 10),
		DisableLogging: true,
		RateLimiter:    NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}),
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// TestHealthz verifies the liveness endpoint reports load numbers.
func TestHealthz(t *testing.T) {
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	var body map[string]any
	if code := getJSON(t, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v", body["status"])
	}
}

// TestMatchListAndGet verifies list and detail views of a live match.
func TestMatchListAndGet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	h, err := reg.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Match.Terminate("test_done")

	var list struct {
		Matches []matchSummary `json:"matches"`
	}
	if code := getJSON(t, ts.URL+"/api/matches", &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(list.Matches) != 1 || list.Matches[0].ID != "m1" {
		t.Fatalf("list = %+v", list.Matches)
	}

	var snap game.Snapshot
	if code := getJSON(t, ts.URL+"/api/matches/m1", &snap); code != http.StatusOK {
		t.Fatalf("detail status = %d", code)
	}
	if snap.MatchID != "m1" || snap.Status != game.StatusWaiting {
		t.Fatalf("snapshot = %s/%s", snap.MatchID, snap.Status)
	}

	if code := getJSON(t, ts.URL+"/api/matches/nope", nil); code != http.StatusNotFound {
		t.Fatalf("missing match status = %d", code)
	}
}

// TestReplayEndpoint verifies the at/from/stats views over the ring.
func TestReplayEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	h, err := reg.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Match.Terminate("test_done")

	base := time.Now().UnixMilli()
	for i := 0; i < 3; i++ {
		h.Room.RecordSnapshot(game.Snapshot{MatchID: "m1", Tick: uint64(i)}, base+int64(i)*200)
	}

	var entry struct {
		RelativeMs int64 `json:"relativeMs"`
	}
	if code := getJSON(t, ts.URL+"/api/matches/m1/replay?at=250", &entry); code != http.StatusOK {
		t.Fatalf("at status = %d", code)
	}
	if entry.RelativeMs != 200 {
		t.Fatalf("RelativeMs = %d, want 200", entry.RelativeMs)
	}

	var tail struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if code := getJSON(t, ts.URL+"/api/matches/m1/replay?from=200", &tail); code != http.StatusOK {
		t.Fatalf("from status = %d", code)
	}
	if len(tail.Entries) != 2 {
		t.Fatalf("tail entries = %d, want 2", len(tail.Entries))
	}

	var stats struct {
		Count int `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/api/matches/m1/replay", &stats); code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	if stats.Count != 3 {
		t.Fatalf("stats count = %d, want 3", stats.Count)
	}

	if code := getJSON(t, ts.URL+"/api/matches/m1/replay?at=bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("bad at status = %d", code)
	}
}

// TestQueueStatusEndpoint verifies the queue read endpoint.
func TestQueueStatusEndpoint(t *testing.T) {
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	if _, err := mm.Enqueue("p1", "1v1", matchmaking.RegionNAEast, 40); err != nil {
		t.Fatal(err)
	}

	var st matchmaking.QueueStatus
	if code := getJSON(t, ts.URL+"/api/queue/p1", &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if st.Position != 1 {
		t.Fatalf("Position = %d, want 1", st.Position)
	}

	if code := getJSON(t, ts.URL+"/api/queue/ghost", nil); code != http.StatusNotFound {
		t.Fatalf("unknown player status = %d", code)
	}
}

// TestPreviewPNG verifies the preview endpoint emits a PNG.
func TestPreviewPNG(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, mm := testDeps(t)
	ts := testServer(t, reg, mm)

	h, err := reg.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Match.Terminate("test_done")
	if err := h.Match.Join("p1", "p1"); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/matches/m1/preview.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q", ct)
	}
	sig := make([]byte, 8)
	if _, err := resp.Body.Read(sig); err != nil {
		t.Fatal(err)
	}
	if string(sig[1:4]) != "PNG" {
		t.Fatalf("body is not a PNG, signature = %v", sig)
	}
}

// TestRateLimitRejects verifies the per-IP limiter returns 429 once the
// bucket is drained.
func TestRateLimitRejects(t *testing.T) {
	reg, mm := testDeps(t)
	router := NewRouter(RouterConfig{
		Registry:       reg,
		Matchmaker:     mm,
		DisableLogging: true,
		RateLimiter:    NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}),
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		codes[resp.StatusCode]++
	}
	if codes[http.StatusTooManyRequests] == 0 {
		t.Fatalf("no 429 after burst, codes = %v", codes)
	}
}
