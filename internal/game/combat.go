package game

import (
	"encoding/json"
	"math"
)

// Cost and timing constants for non-weapon actions.
const (
	blockCooldownMs  = 1500
	blockDurationMs  = 800
	blockStaminaCost = 10

	dodgeCooldownMs  = 2000
	dodgeStaminaCost = 20
	dodgeImpulse     = 420.0
	dodgeInvulnMs    = 250

	castCooldownMs = 1200
	castDurationMs = 300
	healManaCost   = 30
	healAmount     = 35
	boltManaCost   = 20

	// falloff multiplier never drops below this on a connecting hit
	damageFalloffFloor = 0.1

	critMultiplier     = 1.5
	headshotMultiplier = 2.0
	maxDamageReduction = 0.8
	proficiencyPerLvl  = 0.05

	// blocking halves incoming damage
	blockDamageFactor = 0.5
)

// Combat resolves player actions against match state. The roll function is
// the crit die; tests pin it to force or forbid crits.
type Combat struct {
	Roll func() float64
}

// NewCombat creates a resolver rolling crits from the state RNG.
func NewCombat(s *State) *Combat {
	return &Combat{Roll: s.Rand().Float64}
}

// Apply executes one dequeued input. Precondition failures come back as
// sentinel errors; the caller logs and moves on, they never stop the tick.
func (c *Combat) Apply(s *State, in Input, nowMs int64) error {
	actor, ok := s.Players[in.PlayerID]
	if !ok {
		return ErrNotFound
	}
	if !actor.Alive {
		return ErrDead
	}

	switch in.Action {
	case ActionMove:
		var params MoveParams
		if err := json.Unmarshal(in.Params, &params); err != nil {
			return err
		}
		return c.move(s, actor, params, nowMs)
	case ActionAttack:
		var params AttackParams
		if err := json.Unmarshal(in.Params, &params); err != nil {
			return err
		}
		return c.attack(s, actor, params, nowMs)
	case ActionBlock:
		return c.block(s, actor, nowMs)
	case ActionDodge:
		var params DodgeParams
		if err := json.Unmarshal(in.Params, &params); err != nil {
			return err
		}
		return c.dodge(s, actor, params, nowMs)
	case ActionCast:
		var params CastParams
		if err := json.Unmarshal(in.Params, &params); err != nil {
			return err
		}
		return c.cast(s, actor, params, nowMs)
	}
	return ErrNotFound
}

func (c *Combat) move(s *State, actor *Player, params MoveParams, nowMs int64) error {
	dir := params.Direction
	if !dir.IsFinite() {
		return ErrOutOfRange
	}
	// Move sets a velocity impulse; physics handles friction and clamping
	accel := 240.0 * actor.SpeedMultiplier(nowMs)
	s.SetVelocity(actor, actor.Vel.Add(dir.Normalize().Scale(accel)))
	return nil
}

func (c *Combat) attack(s *State, actor *Player, params AttackParams, nowMs int64) error {
	weapon := GetWeapon(actor.Weapon)

	cooldown := weapon.CooldownMs
	if eff, ok := actor.PowerUps[PowerUpRapidFire]; ok && nowMs < eff.EndMs {
		cooldown = int64(float64(cooldown) * (1 - eff.Modifier))
	}
	if actor.LastAttackMs > 0 && nowMs-actor.LastAttackMs < cooldown {
		return ErrOnCooldown
	}
	if actor.Stamina < weapon.StaminaCost {
		return ErrInsufficientResource
	}

	target, ok := s.Players[params.TargetID]
	if !ok {
		return ErrNotFound
	}
	if !target.Alive {
		return ErrDead
	}

	dist := actor.Pos.DistanceTo(target.Pos)

	actor.LastAttackMs = nowMs
	s.SetStamina(actor, actor.Stamina-weapon.StaminaCost)

	if weapon.ProjectileSpeed > 0 {
		dir := target.Pos.Sub(actor.Pos)
		pr := NewProjectile(s.NextID("proj"), actor.ID, weapon, actor.Pos, dir, nowMs)
		pr.Damage = weapon.Damage + actor.Stats.Attack
		s.SpawnProjectile(pr)
		return nil
	}

	// Melee reaches at most 1.5x effective range; beyond that is a whiff
	if dist > weapon.EffectiveRange*1.5 {
		return ErrOutOfRange
	}

	dmg := c.ComputeDamage(actor, target, weapon, dist, params.Headshot, nowMs)
	c.DealDamage(s, actor, target, dmg, nowMs)
	return nil
}

// ComputeDamage runs the full damage pipeline for one connecting hit:
// base, range falloff, crit roll, headshot, attacker damage boost,
// defender armor or magic resist, defender damage reduction (capped),
// weapon proficiency. A connecting hit never deals less than 1.
func (c *Combat) ComputeDamage(attacker, defender *Player, weapon Weapon, dist float64, headshot bool, nowMs int64) int {
	dmg := float64(weapon.Damage + attacker.Stats.Attack)

	if r := weapon.EffectiveRange; dist > r && r > 0 {
		mult := 1 - (dist-r)/r*0.3
		if mult < damageFalloffFloor {
			mult = damageFalloffFloor
		}
		dmg *= mult
	}

	if c.Roll() < attacker.Stats.CritChance+attacker.Stats.Accuracy*0.1 {
		dmg *= critMultiplier
	}

	if headshot {
		dmg *= headshotMultiplier
	}

	dmg *= attacker.DamageBoostMultiplier(nowMs)

	switch weapon.DamageType {
	case DamageMagic:
		dmg -= float64(defender.Stats.MagicResist)
	default:
		dmg -= float64(defender.Stats.Armor)
	}

	reduction := defender.Stats.DamageReduction
	if eff, ok := defender.PowerUps[PowerUpShield]; ok && nowMs < eff.EndMs {
		reduction += eff.Modifier
	}
	if reduction > maxDamageReduction {
		reduction = maxDamageReduction
	}
	dmg *= 1 - reduction

	dmg *= 1 + proficiencyPerLvl*float64(attacker.WeaponLevel())

	if dmg < 1 {
		dmg = 1
	}
	return int(math.Round(dmg))
}

// DealDamage applies a computed hit to the defender, honoring block and
// invulnerability, and handles the kill transition.
func (c *Combat) DealDamage(s *State, attacker, defender *Player, dmg int, nowMs int64) {
	if defender.StatusActive(StatusInvulnerable, nowMs) {
		return
	}
	if defender.StatusActive(StatusBlocking, nowMs) {
		dmg = int(math.Round(float64(dmg) * blockDamageFactor))
		if dmg < 1 {
			dmg = 1
		}
	}

	defender.LastDamageMs = nowMs
	s.SetHealth(defender, defender.Health-dmg)

	if !defender.Alive {
		s.AddDeath(defender)
		if attacker != nil {
			s.AddKill(attacker)
		}
		killer := ""
		if attacker != nil {
			killer = attacker.ID
		}
		s.Event("player_killed", map[string]any{
			"playerId": defender.ID,
			"killerId": killer,
		})
	}
}

func (c *Combat) block(s *State, actor *Player, nowMs int64) error {
	if actor.LastBlockMs > 0 && nowMs-actor.LastBlockMs < blockCooldownMs {
		return ErrOnCooldown
	}
	if actor.Stamina < blockStaminaCost {
		return ErrInsufficientResource
	}
	actor.LastBlockMs = nowMs
	s.SetStamina(actor, actor.Stamina-blockStaminaCost)
	s.SetStatus(actor, StatusBlocking, nowMs+blockDurationMs)
	return nil
}

func (c *Combat) dodge(s *State, actor *Player, params DodgeParams, nowMs int64) error {
	if actor.LastDodgeMs > 0 && nowMs-actor.LastDodgeMs < dodgeCooldownMs {
		return ErrOnCooldown
	}
	if actor.Stamina < dodgeStaminaCost {
		return ErrInsufficientResource
	}
	dir := params.Direction.Normalize()
	if dir == (Vec2{}) {
		return ErrOutOfRange
	}
	actor.LastDodgeMs = nowMs
	s.SetStamina(actor, actor.Stamina-dodgeStaminaCost)
	s.SetVelocity(actor, actor.Vel.Add(dir.Scale(dodgeImpulse)))
	s.SetStatus(actor, StatusInvulnerable, nowMs+dodgeInvulnMs)
	return nil
}

func (c *Combat) cast(s *State, actor *Player, params CastParams, nowMs int64) error {
	if actor.LastCastMs > 0 && nowMs-actor.LastCastMs < castCooldownMs {
		return ErrOnCooldown
	}
	if actor.StatusActive(StatusCasting, nowMs) {
		return ErrOnCooldown
	}

	switch params.Ability {
	case "heal":
		if actor.Mana < healManaCost {
			return ErrInsufficientResource
		}
		actor.LastCastMs = nowMs
		s.SetMana(actor, actor.Mana-healManaCost)
		s.SetStatus(actor, StatusCasting, nowMs+castDurationMs)
		s.SetHealth(actor, actor.Health+healAmount)
		return nil
	case "bolt":
		if actor.Mana < boltManaCost {
			return ErrInsufficientResource
		}
		dir := params.Target.Sub(actor.Pos)
		if target, ok := s.Players[params.TargetID]; ok {
			dir = target.Pos.Sub(actor.Pos)
		}
		if dir.Normalize() == (Vec2{}) {
			return ErrOutOfRange
		}
		actor.LastCastMs = nowMs
		s.SetMana(actor, actor.Mana-boltManaCost)
		s.SetStatus(actor, StatusCasting, nowMs+castDurationMs)
		weapon := GetWeapon("staff")
		pr := NewProjectile(s.NextID("proj"), actor.ID, weapon, actor.Pos, dir, nowMs)
		pr.Damage = weapon.Damage + actor.Stats.Attack
		s.SpawnProjectile(pr)
		return nil
	}
	return ErrNotFound
}

// PickUpPowerUp applies a touched pickup to the player and deactivates it.
func (c *Combat) PickUpPowerUp(s *State, p *Player, pu *PowerUp, nowMs int64) {
	if !pu.Active {
		return
	}
	switch pu.Type {
	case PowerUpHealthPack:
		s.SetHealth(p, p.Health+int(pu.Modifier))
	default:
		s.ApplyPowerUpEffect(p, pu.Type, PowerUpEffect{
			Modifier: pu.Modifier,
			EndMs:    nowMs + pu.DurationMs,
		})
	}
	s.SetPowerUpActive(pu, false, nowMs)
	s.Event("powerup_taken", map[string]any{
		"playerId":  p.ID,
		"powerupId": pu.ID,
		"type":      string(pu.Type),
	})
}
