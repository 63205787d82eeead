// Package replay keeps a bounded, time-indexed log of match snapshots
// for live inspection, and optionally streams finished recordings to a
// compressed on-disk archive.
package replay

import (
	"context"
	"sync"
	"time"

	"arena/internal/game"
)

// Entry is one recorded snapshot with its time coordinates.
type Entry struct {
	RelativeMs int64         `json:"relativeMs"`
	AbsoluteMs int64         `json:"absoluteMs"`
	Snapshot   game.Snapshot `json:"snapshot"`
}

// Stats summarises the ring for the admin surface.
type Stats struct {
	Count       int   `json:"count"`
	StartMs     int64 `json:"startMs"`
	RuntimeMs   int64 `json:"runtimeMs"`
	ApproxBytes int64 `json:"approxBytes"`
	Sampled     int64 `json:"sampled"`
	Discarded   int64 `json:"discarded"`
}

// rough per-entry footprint used for the stats estimate
const approxEntryBytes = 2048

// Ring is the bounded snapshot log for one match. Oldest entries fall off
// on capacity overflow; a periodic sweep prunes entries past retention.
// Safe for concurrent use.
type Ring struct {
	mu sync.Mutex

	maxSnapshots int
	retentionMs  int64
	sampleMs     int64

	startMs      int64
	lastSampleMs int64
	entries      []Entry

	sampled   int64
	discarded int64
}

// NewRing creates a ring with the given capacity, retention window and
// sampling interval floor.
func NewRing(maxSnapshots int, retentionMs, sampleIntervalMs int64) *Ring {
	if maxSnapshots < 1 {
		maxSnapshots = 1
	}
	return &Ring{
		maxSnapshots: maxSnapshots,
		retentionMs:  retentionMs,
		sampleMs:     sampleIntervalMs,
	}
}

// Record appends a snapshot taken at absMs. Calls arriving inside the
// sampling interval are discarded; callers may record as often as they
// like. The first accepted record anchors relative time zero.
func (r *Ring) Record(snap game.Snapshot, absMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startMs == 0 {
		r.startMs = absMs
	}
	rel := absMs - r.startMs

	if len(r.entries) > 0 && rel-r.lastSampleMs < r.sampleMs {
		r.discarded++
		return
	}
	r.lastSampleMs = rel
	r.sampled++

	r.entries = append(r.entries, Entry{RelativeMs: rel, AbsoluteMs: absMs, Snapshot: snap})
	if len(r.entries) > r.maxSnapshots {
		r.entries = r.entries[1:]
	}
	r.pruneLocked(absMs)
}

// Events returns entries with relative time >= fromRelMs in chronological
// order. Pass 0 for the full retained log.
func (r *Ring) Events(fromRelMs int64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0
	for i < len(r.entries) && r.entries[i].RelativeMs < fromRelMs {
		i++
	}
	out := make([]Entry, len(r.entries)-i)
	copy(out, r.entries[i:])
	return out
}

// SnapshotAt returns the latest retained entry with relative time
// <= relMs. Entries swept by retention cannot come back: if everything
// at or before relMs is gone, ok is false.
func (r *Ring) SnapshotAt(relMs int64) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].RelativeMs <= relMs {
			return r.entries[i], true
		}
	}
	return Entry{}, false
}

// Sweep prunes entries older than the retention window, measured from
// nowMs. Returns the number pruned.
func (r *Ring) Sweep(nowMs int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(nowMs)
}

func (r *Ring) pruneLocked(nowMs int64) int {
	if r.retentionMs <= 0 {
		return 0
	}
	cutoff := nowMs - r.retentionMs
	i := 0
	for i < len(r.entries) && r.entries[i].AbsoluteMs < cutoff {
		i++
	}
	if i > 0 {
		r.entries = append(r.entries[:0], r.entries[i:]...)
	}
	return i
}

// Stats reports the ring's size and runtime.
func (r *Ring) Stats(nowMs int64) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Count:       len(r.entries),
		StartMs:     r.startMs,
		ApproxBytes: int64(len(r.entries)) * approxEntryBytes,
		Sampled:     r.sampled,
		Discarded:   r.discarded,
	}
	if r.startMs > 0 {
		s.RuntimeMs = nowMs - r.startMs
	}
	return s
}

// RunSweeper prunes on the given interval until the context is cancelled.
// An eager sweep runs first so retention applies immediately.
func (r *Ring) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.Sweep(time.Now().UnixMilli())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(time.Now().UnixMilli())
		}
	}
}
