package broadcast

import (
	"encoding/json"

	"github.com/golang/snappy"

	"arena/internal/game"
)

// DeltaMessage is the state_delta push. When the marshaled delta array
// exceeds the compression threshold, Deltas is empty, Compressed is set
// and Payload carries the snappy block (base64 on the wire via the
// standard []byte encoding).
type DeltaMessage struct {
	Type       string       `json:"type"`
	MatchID    string       `json:"match_id"`
	Tick       uint64       `json:"tick"`
	Ts         int64        `json:"ts"`
	Deltas     []game.Delta `json:"deltas,omitempty"`
	Compressed bool         `json:"compressed,omitempty"`
	Payload    []byte       `json:"payload,omitempty"`
}

// KeyframeMessage is the state_full push.
type KeyframeMessage struct {
	Type     string        `json:"type"`
	MatchID  string        `json:"match_id"`
	Tick     uint64        `json:"tick"`
	Ts       int64         `json:"ts"`
	Snapshot game.Snapshot `json:"snapshot"`
}

// EventMessage is the match_event push.
type EventMessage struct {
	Type      string         `json:"type"`
	MatchID   string         `json:"match_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// FrameDelta marshals a compacted batch, compressing the delta array when
// it exceeds threshold bytes.
func FrameDelta(matchID string, tick uint64, tsMs int64, batch []game.Delta, threshold int) ([]byte, error) {
	msg := DeltaMessage{
		Type:    "state_delta",
		MatchID: matchID,
		Tick:    tick,
		Ts:      tsMs,
	}

	raw, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	if threshold > 0 && len(raw) > threshold {
		msg.Compressed = true
		msg.Payload = snappy.Encode(nil, raw)
	} else {
		msg.Deltas = batch
	}
	return json.Marshal(msg)
}

// DecodeDeltaPayload inflates a compressed state_delta payload back into
// the delta array. Used by tests and replay tooling.
func DecodeDeltaPayload(msg DeltaMessage) ([]game.Delta, error) {
	if !msg.Compressed {
		return msg.Deltas, nil
	}
	raw, err := snappy.Decode(nil, msg.Payload)
	if err != nil {
		return nil, err
	}
	var batch []game.Delta
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// FrameKeyframe marshals a state_full message.
func FrameKeyframe(snap game.Snapshot, tsMs int64) ([]byte, error) {
	return json.Marshal(KeyframeMessage{
		Type:     "state_full",
		MatchID:  snap.MatchID,
		Tick:     snap.Tick,
		Ts:       tsMs,
		Snapshot: snap,
	})
}

// FrameEvent marshals a match_event message.
func FrameEvent(matchID, eventType string, payload map[string]any) ([]byte, error) {
	return json.Marshal(EventMessage{
		Type:      "match_event",
		MatchID:   matchID,
		EventType: eventType,
		Payload:   payload,
	})
}
