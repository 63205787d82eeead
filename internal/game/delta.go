package game

// DeltaKind tags a change record in a tick's delta batch.
type DeltaKind string

const (
	DeltaPlayerJoined        DeltaKind = "player_joined"
	DeltaPlayerUpdated       DeltaKind = "player_updated"
	DeltaPlayerLeft          DeltaKind = "player_left"
	DeltaProjectileCreated   DeltaKind = "projectile_created"
	DeltaProjectileUpdated   DeltaKind = "projectile_updated"
	DeltaProjectileDestroyed DeltaKind = "projectile_destroyed"
	DeltaPowerUpState        DeltaKind = "powerup_state"
	DeltaGameEvent           DeltaKind = "game_event"
)

// Delta is one change record. Update records carry only the fields whose
// value changed since the last commit; create records carry the full
// entity payload.
type Delta struct {
	Kind     DeltaKind      `json:"kind"`
	EntityID string         `json:"entityId,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

func (d Delta) isUpdate() bool {
	return d.Kind == DeltaPlayerUpdated || d.Kind == DeltaProjectileUpdated
}

// CompactDeltas merges a tick's batch for the wire: update records for the
// same entity collapse into one (later write wins per field), anchored at
// the position of the entity's first update. Create, destroy and event
// records pass through unmerged in their original order.
func CompactDeltas(batch []Delta) []Delta {
	if len(batch) < 2 {
		return batch
	}

	out := make([]Delta, 0, len(batch))
	// entity id -> index in out of its open update record
	open := make(map[string]int)

	for _, d := range batch {
		if !d.isUpdate() {
			out = append(out, d)
			// A create or destroy for an entity closes its merge window so
			// later updates cannot be reordered across it.
			if d.EntityID != "" {
				delete(open, d.EntityID)
			}
			continue
		}

		if idx, ok := open[d.EntityID]; ok && out[idx].Kind == d.Kind {
			merged := out[idx].Fields
			for k, v := range d.Fields {
				merged[k] = v
			}
			continue
		}

		cp := Delta{Kind: d.Kind, EntityID: d.EntityID, Fields: make(map[string]any, len(d.Fields))}
		for k, v := range d.Fields {
			cp.Fields[k] = v
		}
		out = append(out, cp)
		open[d.EntityID] = len(out) - 1
	}

	return out
}
