// Package broadcast fans committed match output out to subscribers.
//
// Subscribers are held as bounded channels keyed by stable connection id,
// never as connection objects, so a dead socket costs one map entry until
// its first missed send. A subscriber either receives a complete tick
// batch or is dropped (slow consumer rule).
package broadcast

import (
	"log"
	"sync"

	"arena/internal/game"
)

// Broadcaster delivers pre-framed messages to a set of subscribers.
// Safe for concurrent use; the match loop publishes while connection
// handlers subscribe and unsubscribe.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string]chan []byte
	queueSize int
	threshold int
	closed    bool
}

// New creates a broadcaster with the given per-subscriber queue size and
// compression threshold in bytes.
func New(queueSize, compressThreshold int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Broadcaster{
		subs:      make(map[string]chan []byte),
		queueSize: queueSize,
		threshold: compressThreshold,
	}
}

// Subscribe registers a connection id and returns its outgoing frame
// channel. The channel closes when the subscriber is dropped or the
// broadcaster shuts down. Re-subscribing an id replaces the old channel.
func (b *Broadcaster) Subscribe(id string) <-chan []byte {
	ch := make(chan []byte, b.queueSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a connection id. Unknown ids are a no-op.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// SendDelta compacts, frames and fans out one tick's delta batch.
func (b *Broadcaster) SendDelta(matchID string, tick uint64, tsMs int64, batch []game.Delta) {
	frame, err := FrameDelta(matchID, tick, tsMs, game.CompactDeltas(batch), b.threshold)
	if err != nil {
		log.Printf("broadcast: frame delta for %s: %v", matchID, err)
		return
	}
	b.fanout(frame)
}

// SendKeyframe frames and fans out a full snapshot.
func (b *Broadcaster) SendKeyframe(snap game.Snapshot, tsMs int64) {
	frame, err := FrameKeyframe(snap, tsMs)
	if err != nil {
		log.Printf("broadcast: frame keyframe for %s: %v", snap.MatchID, err)
		return
	}
	b.fanout(frame)
}

// SendEvent frames and fans out a match_event push.
func (b *Broadcaster) SendEvent(matchID, eventType string, payload map[string]any) {
	frame, err := FrameEvent(matchID, eventType, payload)
	if err != nil {
		log.Printf("broadcast: frame event for %s: %v", matchID, err)
		return
	}
	b.fanout(frame)
}

// fanout enqueues the frame for every subscriber. A full queue drops the
// subscriber on the spot; delivery never blocks the caller.
func (b *Broadcaster) fanout(frame []byte) {
	var dead []string

	b.mu.RLock()
	for id, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			dead = append(dead, id)
		}
	}
	b.mu.RUnlock()

	if len(dead) == 0 {
		return
	}
	b.mu.Lock()
	for _, id := range dead {
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
			log.Printf("broadcast: dropped slow subscriber %s", id)
		}
	}
	b.mu.Unlock()
}

// Close sends a final match_event to every subscriber and closes all
// channels. Further sends are discarded.
func (b *Broadcaster) Close(matchID, reason string) {
	frame, err := FrameEvent(matchID, "match_ended", map[string]any{"reason": reason})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		if err == nil {
			select {
			case ch <- frame:
			default:
			}
		}
		delete(b.subs, id)
		close(ch)
	}
}
