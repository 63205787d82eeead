// Package registry owns the set of live matches. It assembles the match
// loop, spectator room, broadcaster and replay ring for each match,
// starts their goroutines and removes the handle once the loop stops.
package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"arena/internal/broadcast"
	"arena/internal/config"
	"arena/internal/game"
	"arena/internal/replay"
	"arena/internal/spectate"
)

// Handle bundles one match's moving parts for the connection and admin
// surfaces.
type Handle struct {
	ID        string
	Mode      string
	Match     *game.Match
	Room      *spectate.Room
	CreatedAt time.Time
}

// Registry is the process-wide match table. Safe for concurrent use.
type Registry struct {
	cfg   config.AppConfig
	hooks game.Hooks

	mu      sync.Mutex
	matches map[string]*Handle
}

// New creates an empty registry. The hooks are attached to every match;
// OnStopped additionally removes the handle from the table.
func New(cfg config.AppConfig, hooks game.Hooks) *Registry {
	return &Registry{
		cfg:     cfg,
		hooks:   hooks,
		matches: make(map[string]*Handle),
	}
}

// Create starts a match under the given id, or returns the existing
// handle when the id is already live. Creation is idempotent so a retried
// queue outcome cannot double-start a loop.
func (r *Registry) Create(ctx context.Context, matchID, mode string) (*Handle, error) {
	r.mu.Lock()
	if h, ok := r.matches[matchID]; ok {
		r.mu.Unlock()
		return h, nil
	}
	h := r.buildLocked(matchID, mode)
	r.matches[matchID] = h
	r.mu.Unlock()

	r.start(ctx, h)
	return h, nil
}

func (r *Registry) buildLocked(matchID, mode string) *Handle {
	b := broadcast.New(r.cfg.Broadcast.SubscriberQueue, r.cfg.Broadcast.CompressThreshold)
	ring := replay.NewRing(r.cfg.Replay.MaxSnapshots, r.cfg.Replay.RetentionMs, r.cfg.Replay.SnapshotIntervalMs)
	room := spectate.NewRoom(matchID, r.cfg.Replay.MaxSpectators, b, ring, r.cfg.Replay.ArchiveDir)

	hooks := r.hooks
	parent := r.hooks.OnStopped
	hooks.OnStopped = func(id string) {
		r.remove(id)
		if parent != nil {
			parent(id)
		}
	}

	m := game.NewMatch(matchID, game.MatchConfig{
		TickHz:              r.cfg.Game.TickHz,
		MaxPlayers:          r.cfg.Game.MaxPlayers,
		MinPlayers:          r.cfg.Game.MinPlayers,
		ScoreLimit:          r.cfg.Game.ScoreLimit,
		TimeLimitMs:         r.cfg.Game.TimeLimitMs,
		RegenDelayMs:        r.cfg.Game.RegenDelayMs,
		EmptyReapMs:         r.cfg.Game.EmptyReapMs,
		InputQueue:          r.cfg.Game.InputQueue,
		FullStateIntervalMs: r.cfg.Broadcast.FullStateIntervalMs,
		SnapshotIntervalMs:  r.cfg.Replay.SnapshotIntervalMs,
		Bounds: game.Bounds{
			Width:  r.cfg.World.Width,
			Height: r.cfg.World.Height,
			Inset:  r.cfg.World.Inset,
		},
		Friction: r.cfg.World.Friction,
		MaxVel:   r.cfg.World.MaxVel,
	}, room, hooks)

	return &Handle{
		ID:        matchID,
		Mode:      mode,
		Match:     m,
		Room:      room,
		CreatedAt: time.Now(),
	}
}

func (r *Registry) start(ctx context.Context, h *Handle) {
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go h.Room.Ring().RunSweeper(sweepCtx, time.Duration(r.cfg.Replay.SweepIntervalMs)*time.Millisecond)
	go func() {
		defer cancelSweep()
		h.Match.Run(ctx)
	}()
	log.Printf("registry: match %s (%s) started", h.ID, h.Mode)
}

func (r *Registry) remove(matchID string) {
	r.mu.Lock()
	_, ok := r.matches[matchID]
	delete(r.matches, matchID)
	r.mu.Unlock()
	if ok {
		log.Printf("registry: match %s removed", matchID)
	}
}

// Get returns the live handle for a match id.
func (r *Registry) Get(matchID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.matches[matchID]
	return h, ok
}

// List returns live handles ordered by creation time.
func (r *Registry) List() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.matches))
	for _, h := range r.matches {
		out = append(out, h)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of live matches.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// CreateForParty starts a match and joins every party member. A join
// failure terminates the fresh match and reports the error so the caller
// can requeue the party.
func (r *Registry) CreateForParty(ctx context.Context, matchID, mode string, playerIDs []string) (string, error) {
	h, err := r.Create(ctx, matchID, mode)
	if err != nil {
		return "", err
	}
	for _, id := range playerIDs {
		if err := h.Match.Join(id, id); err != nil {
			h.Match.Terminate("create_failed")
			return "", fmt.Errorf("join %s: %w", id, err)
		}
	}
	return h.ID, nil
}

// TerminateAll asks every live match to stop and waits for their loops.
// Used for graceful shutdown.
func (r *Registry) TerminateAll(reason string, timeout time.Duration) {
	handles := r.List()
	for _, h := range handles {
		h.Match.Terminate(reason)
	}
	deadline := time.After(timeout)
	for _, h := range handles {
		select {
		case <-h.Match.Done():
		case <-deadline:
			log.Printf("registry: match %s did not stop within %s", h.ID, timeout)
			return
		}
	}
}
