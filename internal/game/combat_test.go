package game

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
)

func testState() *State {
	bounds := Bounds{Width: 1280, Height: 720, Inset: 20}
	return NewState("m1", bounds, rand.New(rand.NewSource(42)))
}

func addTestPlayer(s *State, id string, pos Vec2) *Player {
	p := NewPlayer(id, "user_"+id, pos, 0)
	s.AddPlayer(p)
	return p
}

// TestDamageHeadshotCrit pins the full damage pipeline: attack 10,
// weapon damage 20, forced crit, headshot, one +0.5 damage boost, no
// armor, inside effective range. 30 * 1.5 * 2.0 * 1.5 = 135.
func TestDamageHeadshotCrit(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 100, Y: 100})
	defender := addTestPlayer(s, "d", Vec2{X: 150, Y: 100})

	attacker.Stats = Stats{Attack: 10, CritChance: 1.0, Accuracy: 0}
	attacker.PowerUps[PowerUpDamageBoost] = PowerUpEffect{Modifier: 0.5, EndMs: 10_000}
	defender.Stats = Stats{}

	weapon := Weapon{Damage: 20, EffectiveRange: 100, DamageType: DamagePhysical}
	c := &Combat{Roll: func() float64 { return 0 }}

	got := c.ComputeDamage(attacker, defender, weapon, 50, true, 0)
	if got != 135 {
		t.Fatalf("ComputeDamage = %d, want 135", got)
	}
}

// TestDamageFalloff verifies linear falloff beyond effective range and
// the falloff floor far outside it.
func TestDamageFalloff(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 100, Y: 100})
	defender := addTestPlayer(s, "d", Vec2{X: 400, Y: 100})
	attacker.Stats = Stats{Attack: 0, CritChance: 0}

	weapon := Weapon{Damage: 100, EffectiveRange: 100, DamageType: DamagePhysical}
	c := &Combat{Roll: func() float64 { return 1 }} // never crit

	// d = 150: mult = 1 - (50/100)*0.3 = 0.85
	if got := c.ComputeDamage(attacker, defender, weapon, 150, false, 0); got != 85 {
		t.Fatalf("falloff at 150 = %d, want 85", got)
	}
	// far beyond range the multiplier floors instead of going negative
	if got := c.ComputeDamage(attacker, defender, weapon, 10_000, false, 0); got != 10 {
		t.Fatalf("falloff floor = %d, want 10", got)
	}
}

// TestDamageReductionCap verifies defender reduction never exceeds 0.8.
func TestDamageReductionCap(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 0, Y: 0})
	defender := addTestPlayer(s, "d", Vec2{X: 10, Y: 0})
	defender.Stats = Stats{DamageReduction: 0.95}

	weapon := Weapon{Damage: 100, EffectiveRange: 100, DamageType: DamagePhysical}
	c := &Combat{Roll: func() float64 { return 1 }}

	if got := c.ComputeDamage(attacker, defender, weapon, 10, false, 0); got != 20 {
		t.Fatalf("capped reduction damage = %d, want 20", got)
	}
}

// TestConnectingHitFloorsAtOne verifies heavy armor cannot zero out a hit.
func TestConnectingHitFloorsAtOne(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 0, Y: 0})
	defender := addTestPlayer(s, "d", Vec2{X: 10, Y: 0})
	defender.Stats = Stats{Armor: 500}

	weapon := Weapon{Damage: 10, EffectiveRange: 100, DamageType: DamagePhysical}
	c := &Combat{Roll: func() float64 { return 1 }}

	if got := c.ComputeDamage(attacker, defender, weapon, 10, false, 0); got != 1 {
		t.Fatalf("floored damage = %d, want 1", got)
	}
}

// TestAttackCooldown verifies a second attack inside the weapon cooldown
// fails with on_cooldown.
func TestAttackCooldown(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 100, Y: 100})
	addTestPlayer(s, "d", Vec2{X: 120, Y: 100})
	attacker.Stats.CritChance = 0

	c := &Combat{Roll: func() float64 { return 1 }}
	params, _ := json.Marshal(AttackParams{TargetID: "d"})

	if err := c.Apply(s, Input{PlayerID: "a", Action: ActionAttack, Params: params}, 1000); err != nil {
		t.Fatalf("first attack: %v", err)
	}
	err := c.Apply(s, Input{PlayerID: "a", Action: ActionAttack, Params: params}, 1100)
	if !errors.Is(err, ErrOnCooldown) {
		t.Fatalf("second attack err = %v, want on_cooldown", err)
	}
}

// TestAttackInsufficientStamina verifies stamina gating.
func TestAttackInsufficientStamina(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 100, Y: 100})
	addTestPlayer(s, "d", Vec2{X: 120, Y: 100})
	attacker.Stamina = 0

	c := NewCombat(s)
	params, _ := json.Marshal(AttackParams{TargetID: "d"})
	err := c.Apply(s, Input{PlayerID: "a", Action: ActionAttack, Params: params}, 1000)
	if !errors.Is(err, ErrInsufficientResource) {
		t.Fatalf("err = %v, want insufficient_resource", err)
	}
}

// TestBlockHalvesDamage verifies an active block halves incoming damage.
func TestBlockHalvesDamage(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 0, Y: 0})
	defender := addTestPlayer(s, "d", Vec2{X: 10, Y: 0})

	c := NewCombat(s)
	if err := c.block(s, defender, 1000); err != nil {
		t.Fatalf("block: %v", err)
	}
	c.DealDamage(s, attacker, defender, 40, 1100)
	if defender.Health != 80 {
		t.Fatalf("health after blocked hit = %d, want 80", defender.Health)
	}
}

// TestDodgeGrantsInvulnerability verifies damage during the dodge window
// is ignored entirely.
func TestDodgeGrantsInvulnerability(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 0, Y: 0})
	defender := addTestPlayer(s, "d", Vec2{X: 10, Y: 0})

	c := NewCombat(s)
	err := c.dodge(s, defender, DodgeParams{Direction: Vec2{X: 1}}, 1000)
	if err != nil {
		t.Fatalf("dodge: %v", err)
	}
	c.DealDamage(s, attacker, defender, 40, 1100)
	if defender.Health != 100 {
		t.Fatalf("health after dodged hit = %d, want 100", defender.Health)
	}
}

// TestHealCast verifies the heal ability spends mana and restores health.
func TestHealCast(t *testing.T) {
	s := testState()
	p := addTestPlayer(s, "a", Vec2{X: 100, Y: 100})
	p.Health = 50
	p.Alive = true

	c := NewCombat(s)
	params, _ := json.Marshal(CastParams{Ability: "heal"})
	if err := c.Apply(s, Input{PlayerID: "a", Action: ActionCast, Params: params}, 1000); err != nil {
		t.Fatalf("cast heal: %v", err)
	}
	if p.Health != 85 {
		t.Fatalf("health = %d, want 85", p.Health)
	}
	if p.Mana != 70 {
		t.Fatalf("mana = %d, want 70", p.Mana)
	}
}

// TestCastCooldown verifies a second cast inside the 1200ms cooldown is
// rejected even after the casting status has worn off.
func TestCastCooldown(t *testing.T) {
	s := testState()
	p := addTestPlayer(s, "a", Vec2{X: 100, Y: 100})
	p.Health = 20

	c := NewCombat(s)
	params, _ := json.Marshal(CastParams{Ability: "heal"})
	if err := c.Apply(s, Input{PlayerID: "a", Action: ActionCast, Params: params}, 1000); err != nil {
		t.Fatalf("first cast: %v", err)
	}

	// 1500: casting status (300ms) has expired but the cooldown has not
	err := c.Apply(s, Input{PlayerID: "a", Action: ActionCast, Params: params}, 1500)
	if !errors.Is(err, ErrOnCooldown) {
		t.Fatalf("second cast err = %v, want on_cooldown", err)
	}
	if p.Health != 55 {
		t.Fatalf("health = %d, want 55 (one heal only)", p.Health)
	}

	if err := c.Apply(s, Input{PlayerID: "a", Action: ActionCast, Params: params}, 2300); err != nil {
		t.Fatalf("cast after cooldown: %v", err)
	}
}

// TestKillTransition verifies a lethal hit flips alive, bumps the
// scoreboard and emits a kill event.
func TestKillTransition(t *testing.T) {
	s := testState()
	attacker := addTestPlayer(s, "a", Vec2{X: 0, Y: 0})
	defender := addTestPlayer(s, "d", Vec2{X: 10, Y: 0})
	defender.Health = 5

	c := NewCombat(s)
	c.DealDamage(s, attacker, defender, 10, 1000)

	if defender.Alive {
		t.Fatal("defender still alive after lethal hit")
	}
	if defender.Health != 0 {
		t.Fatalf("health = %d, want 0", defender.Health)
	}
	if attacker.Kills != 1 || defender.Deaths != 1 {
		t.Fatalf("kills/deaths = %d/%d, want 1/1", attacker.Kills, defender.Deaths)
	}
}
