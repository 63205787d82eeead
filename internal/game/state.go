package game

import (
	"fmt"
	"math/rand"
)

// State holds one match's entities and the tick's pending delta queue.
// It is owned exclusively by the match goroutine; nothing here locks.
//
// Every mutation goes through a setter so the changed fields are recorded
// at write time. The alternative (diffing whole structs at commit) costs
// a full scan per entity per tick.
type State struct {
	MatchID string
	Bounds  Bounds

	Players     map[string]*Player
	Projectiles map[string]*Projectile
	PowerUps    map[string]*PowerUp

	pending []Delta
	rng     *rand.Rand
	seq     uint64
}

// NewState creates an empty match state.
func NewState(matchID string, bounds Bounds, rng *rand.Rand) *State {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &State{
		MatchID:     matchID,
		Bounds:      bounds,
		Players:     make(map[string]*Player),
		Projectiles: make(map[string]*Projectile),
		PowerUps:    make(map[string]*PowerUp),
		rng:         rng,
	}
}

// Rand exposes the state's deterministic RNG for spawn and combat rolls.
func (s *State) Rand() *rand.Rand {
	return s.rng
}

// NextID returns a fresh entity id with the given prefix.
func (s *State) NextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%s_%d", prefix, s.MatchID, s.seq)
}

// HarvestDeltas returns the pending batch and resets the queue.
// Called exactly once per tick at commit.
func (s *State) HarvestDeltas() []Delta {
	batch := s.pending
	s.pending = nil
	return batch
}

// PendingDeltas returns the number of queued change records.
func (s *State) PendingDeltas() int {
	return len(s.pending)
}

func (s *State) queue(kind DeltaKind, entityID string, fields map[string]any) {
	s.pending = append(s.pending, Delta{Kind: kind, EntityID: entityID, Fields: fields})
}

func (s *State) queuePlayerUpdate(id string, fields map[string]any) {
	s.queue(DeltaPlayerUpdated, id, fields)
}

// =============================================================================
// PLAYER MUTATIONS
// =============================================================================

// AddPlayer inserts a player and queues a player_joined record with the
// full payload.
func (s *State) AddPlayer(p *Player) {
	s.Players[p.ID] = p
	s.queue(DeltaPlayerJoined, p.ID, map[string]any{"player": p})
}

// RemovePlayer deletes a player and queues player_left.
func (s *State) RemovePlayer(id string) {
	if _, ok := s.Players[id]; !ok {
		return
	}
	delete(s.Players, id)
	s.queue(DeltaPlayerLeft, id, nil)
}

// SetPosition moves a player, recording the change if the value differs.
func (s *State) SetPosition(p *Player, pos Vec2) {
	if p.Pos == pos {
		return
	}
	p.Pos = pos
	s.queuePlayerUpdate(p.ID, map[string]any{"pos": pos})
}

// SetVelocity updates a player's velocity.
func (s *State) SetVelocity(p *Player, vel Vec2) {
	if p.Vel == vel {
		return
	}
	p.Vel = vel
	s.queuePlayerUpdate(p.ID, map[string]any{"vel": vel})
}

// SetHealth clamps health to [0, max] and keeps the alive flag in sync
// with health > 0.
func (s *State) SetHealth(p *Player, health int) {
	if health < 0 {
		health = 0
	}
	if health > p.MaxHealth {
		health = p.MaxHealth
	}
	if p.Health == health {
		return
	}
	p.Health = health
	fields := map[string]any{"health": health}
	alive := health > 0
	if p.Alive != alive {
		p.Alive = alive
		fields["alive"] = alive
	}
	s.queuePlayerUpdate(p.ID, fields)
}

// SetMana updates a player's mana, clamped to [0, max].
func (s *State) SetMana(p *Player, mana int) {
	if mana < 0 {
		mana = 0
	}
	if mana > p.MaxMana {
		mana = p.MaxMana
	}
	if p.Mana == mana {
		return
	}
	p.Mana = mana
	s.queuePlayerUpdate(p.ID, map[string]any{"mana": mana})
}

// SetStamina updates a player's stamina, clamped to [0, max].
func (s *State) SetStamina(p *Player, stamina int) {
	if stamina < 0 {
		stamina = 0
	}
	if stamina > p.MaxStamina {
		stamina = p.MaxStamina
	}
	if p.Stamina == stamina {
		return
	}
	p.Stamina = stamina
	s.queuePlayerUpdate(p.ID, map[string]any{"stamina": stamina})
}

// SetStatus arms a timed status flag ending at endMs on the match clock.
func (s *State) SetStatus(p *Player, status Status, endMs int64) {
	p.Statuses[status] = endMs
	s.queuePlayerUpdate(p.ID, map[string]any{"status_" + string(status): endMs})
}

// ClearStatus drops an expired status flag.
func (s *State) ClearStatus(p *Player, status Status) {
	if _, ok := p.Statuses[status]; !ok {
		return
	}
	delete(p.Statuses, status)
	s.queuePlayerUpdate(p.ID, map[string]any{"status_" + string(status): int64(0)})
}

// SetWeapon changes the player's held weapon.
func (s *State) SetWeapon(p *Player, weaponID string) {
	if p.Weapon == weaponID {
		return
	}
	p.Weapon = weaponID
	s.queuePlayerUpdate(p.ID, map[string]any{"weapon": weaponID})
}

// ApplyPowerUpEffect attaches a timed effect to the player.
func (s *State) ApplyPowerUpEffect(p *Player, typ PowerUpType, eff PowerUpEffect) {
	p.PowerUps[typ] = eff
	s.queuePlayerUpdate(p.ID, map[string]any{"powerup_" + string(typ): eff})
}

// ClearPowerUpEffect removes an expired effect.
func (s *State) ClearPowerUpEffect(p *Player, typ PowerUpType) {
	if _, ok := p.PowerUps[typ]; !ok {
		return
	}
	delete(p.PowerUps, typ)
	s.queuePlayerUpdate(p.ID, map[string]any{"powerup_" + string(typ): nil})
}

// AddKill increments the player's kill count.
func (s *State) AddKill(p *Player) {
	p.Kills++
	s.queuePlayerUpdate(p.ID, map[string]any{"kills": p.Kills})
}

// AddDeath increments the player's death count.
func (s *State) AddDeath(p *Player) {
	p.Deaths++
	s.queuePlayerUpdate(p.ID, map[string]any{"deaths": p.Deaths})
}

// =============================================================================
// PROJECTILE MUTATIONS
// =============================================================================

// SpawnProjectile inserts a projectile and queues projectile_created with
// the full payload.
func (s *State) SpawnProjectile(pr *Projectile) {
	s.Projectiles[pr.ID] = pr
	s.queue(DeltaProjectileCreated, pr.ID, map[string]any{"projectile": pr})
}

// MoveProjectile advances a projectile, recording position and distance.
func (s *State) MoveProjectile(pr *Projectile, pos Vec2, traveled float64) {
	pr.Pos = pos
	pr.DistanceTraveled = traveled
	s.queue(DeltaProjectileUpdated, pr.ID, map[string]any{
		"pos":              pos,
		"distanceTraveled": traveled,
	})
}

// DestroyProjectile removes a projectile and queues projectile_destroyed.
func (s *State) DestroyProjectile(id string) {
	if _, ok := s.Projectiles[id]; !ok {
		return
	}
	delete(s.Projectiles, id)
	s.queue(DeltaProjectileDestroyed, id, nil)
}

// =============================================================================
// POWER-UP MUTATIONS
// =============================================================================

// AddPowerUp inserts a pickup and queues its initial state.
func (s *State) AddPowerUp(pu *PowerUp) {
	s.PowerUps[pu.ID] = pu
	s.queue(DeltaPowerUpState, pu.ID, map[string]any{"powerup": pu})
}

// SetPowerUpActive flips a pickup's active flag and stamps the transition
// time, which anchors the respawn delay.
func (s *State) SetPowerUpActive(pu *PowerUp, active bool, nowMs int64) {
	if pu.Active == active {
		return
	}
	pu.Active = active
	pu.SpawnTimeMs = nowMs
	s.queue(DeltaPowerUpState, pu.ID, map[string]any{"active": active})
}

// =============================================================================
// EVENTS
// =============================================================================

// Event queues a game_event record visible to all subscribers.
func (s *State) Event(name string, payload map[string]any) {
	fields := map[string]any{"event": name}
	for k, v := range payload {
		fields[k] = v
	}
	s.queue(DeltaGameEvent, "", fields)
}

// AliveCount returns the number of alive players.
func (s *State) AliveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// TopKills returns the highest kill count across players.
func (s *State) TopKills() int {
	best := 0
	for _, p := range s.Players {
		if p.Kills > best {
			best = p.Kills
		}
	}
	return best
}
