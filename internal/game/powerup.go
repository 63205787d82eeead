package game

// PowerUpType enumerates the pickup kinds that can spawn in the arena.
type PowerUpType string

const (
	PowerUpSpeedBoost  PowerUpType = "speed_boost"
	PowerUpDamageBoost PowerUpType = "damage_boost"
	PowerUpHealthPack  PowerUpType = "health_pack"
	PowerUpShield      PowerUpType = "shield"
	PowerUpRapidFire   PowerUpType = "rapid_fire"
)

// PowerUp is a world pickup with a respawn cycle. While inactive it is
// invisible to collisions and comes back exactly once after RespawnDelayMs.
type PowerUp struct {
	ID             string      `json:"id"`
	Type           PowerUpType `json:"type"`
	Pos            Vec2        `json:"pos"`
	Active         bool        `json:"active"`
	SpawnTimeMs    int64       `json:"spawnTimeMs"`
	DurationMs     int64       `json:"durationMs"`
	Modifier       float64     `json:"modifier"`
	RespawnDelayMs int64       `json:"respawnDelayMs"`
	Radius         float64     `json:"radius"`
}

// NewPowerUp creates an active pickup of the given type at pos.
func NewPowerUp(id string, typ PowerUpType, pos Vec2, nowMs int64) *PowerUp {
	pu := &PowerUp{
		ID:             id,
		Type:           typ,
		Pos:            pos,
		Active:         true,
		SpawnTimeMs:    nowMs,
		RespawnDelayMs: 15_000,
		Radius:         12,
	}
	switch typ {
	case PowerUpSpeedBoost:
		pu.Modifier = 0.4
		pu.DurationMs = 6000
	case PowerUpDamageBoost:
		pu.Modifier = 0.5
		pu.DurationMs = 8000
	case PowerUpHealthPack:
		pu.Modifier = 40 // flat heal
	case PowerUpShield:
		pu.Modifier = 0.3 // damage reduction bonus
		pu.DurationMs = 5000
	case PowerUpRapidFire:
		pu.Modifier = 0.5 // cooldown cut
		pu.DurationMs = 6000
	}
	return pu
}

// ShouldRespawn reports whether an inactive pickup is due to reactivate.
func (pu *PowerUp) ShouldRespawn(nowMs int64) bool {
	return !pu.Active && nowMs-pu.SpawnTimeMs >= pu.RespawnDelayMs
}
