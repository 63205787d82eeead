package broadcast

import (
	"encoding/json"
	"strings"
	"testing"

	"arena/internal/game"
)

// TestFanoutDeliversToAllSubscribers verifies every live subscriber gets
// the framed delta.
func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	b := New(4, 1024)
	a := b.Subscribe("conn-a")
	c := b.Subscribe("conn-b")

	b.SendDelta("m1", 7, 1000, []game.Delta{
		{Kind: game.DeltaPlayerUpdated, EntityID: "p1", Fields: map[string]any{"health": 90}},
	})

	for name, ch := range map[string]<-chan []byte{"a": a, "b": c} {
		select {
		case frame := <-ch:
			var msg DeltaMessage
			if err := json.Unmarshal(frame, &msg); err != nil {
				t.Fatalf("sub %s: bad frame: %v", name, err)
			}
			if msg.Type != "state_delta" || msg.Tick != 7 {
				t.Fatalf("sub %s: unexpected message %+v", name, msg)
			}
		default:
			t.Fatalf("sub %s: no frame delivered", name)
		}
	}
}

// TestSlowConsumerDropped verifies a subscriber with a full queue is
// disconnected without disturbing the others.
func TestSlowConsumerDropped(t *testing.T) {
	b := New(1, 1024)
	slow := b.Subscribe("slow")
	fast := b.Subscribe("fast")

	batch := []game.Delta{{Kind: game.DeltaGameEvent, Fields: map[string]any{"event": "x"}}}
	b.SendDelta("m1", 1, 0, batch) // fills both queues
	<-fast                         // fast drains
	b.SendDelta("m1", 2, 0, batch) // slow overflows

	if b.Count() != 1 {
		t.Fatalf("Count = %d, want 1 after slow consumer drop", b.Count())
	}
	// dropped subscriber's channel must be closed after draining
	<-slow
	if _, open := <-slow; open {
		t.Fatal("slow subscriber channel still open")
	}
	select {
	case <-fast:
	default:
		t.Fatal("fast subscriber missed tick 2")
	}
}

// TestCompressionOverThreshold verifies large delta arrays ship as a
// snappy payload that decodes back to the original batch.
func TestCompressionOverThreshold(t *testing.T) {
	batch := make([]game.Delta, 0, 64)
	for i := 0; i < 64; i++ {
		batch = append(batch, game.Delta{
			Kind:     game.DeltaPlayerUpdated,
			EntityID: "player_" + strings.Repeat("x", 16),
			Fields:   map[string]any{"pos": game.Vec2{X: float64(i), Y: float64(i)}},
		})
	}

	frame, err := FrameDelta("m1", 1, 0, batch, 1024)
	if err != nil {
		t.Fatalf("FrameDelta: %v", err)
	}
	var msg DeltaMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !msg.Compressed || len(msg.Deltas) != 0 {
		t.Fatalf("expected compressed framing, got %+v", msg)
	}

	decoded, err := DecodeDeltaPayload(msg)
	if err != nil {
		t.Fatalf("DecodeDeltaPayload: %v", err)
	}
	if len(decoded) != len(batch) {
		t.Fatalf("decoded %d deltas, want %d", len(decoded), len(batch))
	}
}

// TestSmallBatchUncompressed verifies payloads under the threshold stay
// plain JSON.
func TestSmallBatchUncompressed(t *testing.T) {
	frame, err := FrameDelta("m1", 1, 0, []game.Delta{
		{Kind: game.DeltaPlayerLeft, EntityID: "p1"},
	}, 1024)
	if err != nil {
		t.Fatalf("FrameDelta: %v", err)
	}
	var msg DeltaMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Compressed {
		t.Fatal("small batch should not be compressed")
	}
	if len(msg.Deltas) != 1 {
		t.Fatalf("deltas = %d, want 1", len(msg.Deltas))
	}
}

// TestCloseNotifiesAndShutsDown verifies Close delivers a final event and
// closes every channel.
func TestCloseNotifiesAndShutsDown(t *testing.T) {
	b := New(4, 1024)
	ch := b.Subscribe("conn-a")

	b.Close("m1", "finished")

	frame, ok := <-ch
	if !ok {
		t.Fatal("channel closed before final event")
	}
	var msg EventMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("bad final frame: %v", err)
	}
	if msg.EventType != "match_ended" {
		t.Fatalf("final event = %q, want match_ended", msg.EventType)
	}
	if _, open := <-ch; open {
		t.Fatal("channel still open after Close")
	}
	if got := b.Subscribe("conn-b"); got == nil {
		t.Fatal("Subscribe after Close should return a closed channel, not nil")
	}
}
