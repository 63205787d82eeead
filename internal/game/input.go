package game

import "encoding/json"

// Action is a player-issued combat or movement command.
type Action string

const (
	ActionMove   Action = "move"
	ActionAttack Action = "attack"
	ActionBlock  Action = "block"
	ActionDodge  Action = "dodge"
	ActionCast   Action = "cast"
)

// Input is one client command as drained from the match input queue.
// Params is kept raw until the action handler parses it; malformed params
// invalidate the input, which is dropped without a reply.
type Input struct {
	PlayerID string          `json:"player_id"`
	Action   Action          `json:"action"`
	Params   json.RawMessage `json:"params"`
	ClientTs int64           `json:"client_ts"`
}

// MoveParams steers a player. Direction is normalized server-side.
type MoveParams struct {
	Direction Vec2 `json:"direction"`
}

// AttackParams names the target of a melee or ranged attack.
type AttackParams struct {
	TargetID string `json:"target_id"`
	Headshot bool   `json:"headshot"`
}

// DodgeParams gives the dodge direction.
type DodgeParams struct {
	Direction Vec2 `json:"direction"`
}

// CastParams selects the ability and its target point or player.
type CastParams struct {
	Ability  string `json:"ability"`
	TargetID string `json:"target_id"`
	Target   Vec2   `json:"target"`
}

// ValidAction reports whether the action is one the resolver understands.
// Anything else is schema-invalid and dropped at the protocol boundary.
func ValidAction(a Action) bool {
	switch a {
	case ActionMove, ActionAttack, ActionBlock, ActionDodge, ActionCast:
		return true
	}
	return false
}
