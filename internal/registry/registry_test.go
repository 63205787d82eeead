package registry

import (
	"context"
	"testing"
	"time"

	"arena/internal/config"
	"arena/internal/game"
)

func testAppConfig() config.AppConfig {
	cfg := config.AppConfig{
		Game:        config.DefaultGame(),
		World:       config.DefaultWorld(),
		Matchmaking: config.DefaultMatchmaking(),
		Broadcast:   config.DefaultBroadcast(),
		Replay:      config.DefaultReplay(),
		Server:      config.DefaultServer(),
	}
	cfg.Game.InputQueue = 2 * cfg.Game.TickHz
	return cfg
}

// TestCreateIsIdempotent verifies a duplicate id returns the existing
// handle instead of starting a second loop.
func TestCreateIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(testAppConfig(), game.Hooks{})

	h1, err := r.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := r.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("duplicate create returned a different handle")
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	h1.Match.Terminate("test_done")
}

// TestStoppedMatchIsRemoved verifies the handle leaves the table once the
// loop stops.
func TestStoppedMatchIsRemoved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(testAppConfig(), game.Hooks{})

	h, err := r.Create(ctx, "m1", "1v1")
	if err != nil {
		t.Fatal(err)
	}
	h.Match.Terminate("test_done")
	<-h.Match.Done()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := r.Get("m1"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("stopped match still registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestCreateForPartyJoinsPlayers verifies party members are joined and
// the match goes active at min players.
func TestCreateForPartyJoinsPlayers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(testAppConfig(), game.Hooks{})

	id, err := r.CreateForParty(ctx, "m1", "1v1", []string{"p1", "p2"})
	if err != nil {
		t.Fatal(err)
	}
	h, ok := r.Get(id)
	if !ok {
		t.Fatal("created match not registered")
	}
	if got := h.Match.PlayerCount(); got != 2 {
		t.Fatalf("PlayerCount = %d, want 2", got)
	}
	if st := h.Match.Status(); st != game.StatusActive {
		t.Fatalf("Status = %q, want active", st)
	}
	h.Match.Terminate("test_done")
}

// TestCreateForPartyFailureTerminates verifies an over-capacity party
// reports the join error and tears the match down.
func TestCreateForPartyFailureTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := testAppConfig()
	cfg.Game.MaxPlayers = 1
	cfg.Game.MinPlayers = 1
	r := New(cfg, game.Hooks{})

	if _, err := r.CreateForParty(ctx, "m1", "1v1", []string{"p1", "p2"}); err == nil {
		t.Fatal("over-capacity party created without error")
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := r.Get("m1"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("failed match still registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestListOrdersByCreation verifies List returns handles oldest first.
func TestListOrdersByCreation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(testAppConfig(), game.Hooks{})

	for _, id := range []string{"a", "b", "c"} {
		if _, err := r.Create(ctx, id, "ffa"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List has %d handles, want 3", len(list))
	}
	if list[0].ID != "a" || list[2].ID != "c" {
		t.Fatalf("List order = %s,%s,%s", list[0].ID, list[1].ID, list[2].ID)
	}
	for _, h := range list {
		h.Match.Terminate("test_done")
	}
}
