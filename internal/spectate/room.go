// Package spectate hosts the per-match spectator room. The room owns the
// match's broadcaster and replay ring: committed broadcasts flow through
// it to every subscriber and into the ring, and spectator join/leave is
// serialised here with a pending-operation set guarding reentrant races.
package spectate

import (
	"errors"
	"log"
	"sync"
	"time"

	"arena/internal/broadcast"
	"arena/internal/game"
	"arena/internal/replay"
)

var (
	ErrSpectatorsFull   = errors.New("spectators_full")
	ErrAlreadyJoined    = errors.New("already_joined")
	ErrOperationPending = errors.New("operation_pending")
)

// JoinRetries bounds the retry loop callers run on operation_pending.
const JoinRetries = 3

// Room is one match's spectator set plus its broadcast and replay fabric.
type Room struct {
	matchID string
	max     int

	mu         sync.Mutex
	spectators map[string]struct{}
	pending    map[string]struct{}

	b          *broadcast.Broadcaster
	ring       *replay.Ring
	archiveDir string
}

// NewRoom creates a room owning the given broadcaster and ring. When
// archiveDir is non-empty the recording is archived at match end.
func NewRoom(matchID string, maxSpectators int, b *broadcast.Broadcaster, ring *replay.Ring, archiveDir string) *Room {
	return &Room{
		matchID:    matchID,
		max:        maxSpectators,
		spectators: make(map[string]struct{}),
		pending:    make(map[string]struct{}),
		b:          b,
		ring:       ring,
		archiveDir: archiveDir,
	}
}

// Broadcaster exposes the room's broadcaster so player connections can
// subscribe to the same stream.
func (r *Room) Broadcaster() *broadcast.Broadcaster {
	return r.b
}

// Ring exposes the replay ring for the admin and replay endpoints.
func (r *Room) Ring() *replay.Ring {
	return r.ring
}

// Join admits a spectator and returns their frame channel. Duplicates
// are rejected with already_joined, a full room with spectators_full,
// and an id with an in-flight join or leave with operation_pending
// (transient; retry up to JoinRetries).
func (r *Room) Join(spectatorID string) (<-chan []byte, error) {
	r.mu.Lock()
	if _, busy := r.pending[spectatorID]; busy {
		r.mu.Unlock()
		return nil, ErrOperationPending
	}
	if _, dup := r.spectators[spectatorID]; dup {
		r.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	// In-flight joins count against the cap; the admit happens after the
	// lock is dropped, so pending ids already hold a seat.
	if len(r.spectators)+len(r.pending) >= r.max {
		r.mu.Unlock()
		return nil, ErrSpectatorsFull
	}
	r.pending[spectatorID] = struct{}{}
	r.mu.Unlock()

	ch := r.b.Subscribe("spectator:" + spectatorID)

	r.mu.Lock()
	delete(r.pending, spectatorID)
	r.spectators[spectatorID] = struct{}{}
	r.mu.Unlock()
	return ch, nil
}

// Leave removes a spectator. Used both for explicit leave messages and
// for connection-down notifications; unknown ids are a no-op.
func (r *Room) Leave(spectatorID string) {
	r.mu.Lock()
	if _, busy := r.pending[spectatorID]; busy {
		r.mu.Unlock()
		return
	}
	if _, ok := r.spectators[spectatorID]; !ok {
		r.mu.Unlock()
		return
	}
	r.pending[spectatorID] = struct{}{}
	r.mu.Unlock()

	r.b.Unsubscribe("spectator:" + spectatorID)

	r.mu.Lock()
	delete(r.pending, spectatorID)
	delete(r.spectators, spectatorID)
	r.mu.Unlock()
}

// Count returns the number of admitted spectators.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spectators)
}

// =============================================================================
// game.Publisher
// =============================================================================

// PublishDelta forwards a committed delta batch to every subscriber.
func (r *Room) PublishDelta(matchID string, tick uint64, tsMs int64, batch []game.Delta) {
	r.b.SendDelta(matchID, tick, tsMs, batch)
}

// PublishKeyframe forwards a full snapshot and records it in the ring.
func (r *Room) PublishKeyframe(snap game.Snapshot, tsMs int64) {
	r.b.SendKeyframe(snap, tsMs)
	r.ring.Record(snap, tsMs)
}

// RecordSnapshot feeds the replay ring between keyframes. The ring's
// sampling floor handles over-eager callers.
func (r *Room) RecordSnapshot(snap game.Snapshot, tsMs int64) {
	r.ring.Record(snap, tsMs)
}

// MatchEnded fans the terminal event out, releases all subscribers and
// hands the recording to the archive sink when one is configured.
func (r *Room) MatchEnded(matchID, reason string) {
	r.b.Close(matchID, reason)

	r.mu.Lock()
	r.spectators = make(map[string]struct{})
	r.mu.Unlock()

	if r.archiveDir == "" {
		return
	}
	entries := r.ring.Events(0)
	if len(entries) == 0 {
		return
	}
	start := time.Now()
	if _, err := replay.Archive(r.archiveDir, matchID, entries); err != nil {
		log.Printf("spectate: archive for %s failed: %v", matchID, err)
		return
	}
	log.Printf("spectate: archived %d snapshots for %s in %s", len(entries), matchID, time.Since(start))
}
