package game

import (
	"context"
	"log"
	"math/rand"
	"time"

	"arena/internal/game/spatial"
)

// Publisher receives a match's committed output. The spectator room
// implements it by fanning payloads to subscribers and feeding the
// replay ring.
type Publisher interface {
	PublishDelta(matchID string, tick uint64, tsMs int64, batch []Delta)
	PublishKeyframe(snap Snapshot, tsMs int64)
	RecordSnapshot(snap Snapshot, tsMs int64)
	MatchEnded(matchID, reason string)
}

// MatchConfig carries every tunable the match loop needs. Values come from
// config.Load at construction; the loop never reads the environment.
type MatchConfig struct {
	TickHz              int
	MaxPlayers          int
	MinPlayers          int
	ScoreLimit          int
	TimeLimitMs         int64
	RegenDelayMs        int64
	EmptyReapMs         int64
	InputQueue          int
	FullStateIntervalMs int64
	SnapshotIntervalMs  int64
	Bounds              Bounds
	Friction            float64
	MaxVel              float64
	Seed                int64
}

// Hooks are optional callbacks into the telemetry boundary. All of them
// must be fast and non-blocking; they run on the match goroutine.
type Hooks struct {
	OnTick         func(d time.Duration)
	OnOverrun      func(matchID string, d time.Duration)
	OnDroppedInput func(matchID string)
	OnStopped      func(matchID string)
}

// Match is one arena instance. All state is confined to the goroutine
// running Run; external callers reach it through the bounded input queue
// or the control channel, never by touching state directly.
type Match struct {
	ID string

	cfg   MatchConfig
	hooks Hooks
	sink  Publisher

	state   *State
	status  MatchStatus
	combat  *Combat
	physics Physics
	grid    *spatial.Grid

	tick        uint64
	clockMs     int64 // fixed-step match clock
	activeAtMs  int64
	lastKeyMs   int64
	lastSnapMs  int64
	emptyReapMs int64 // match-clock deadline, 0 = disarmed
	startedAt   time.Time
	lastTick    time.Time

	inputs  *inputRing
	control chan func()
	stop    chan string
	stopped chan struct{}

	regenAcc map[string]float64
	drainBuf []Input
}

// NewMatch creates a match in the waiting state. Nothing runs until Run.
func NewMatch(id string, cfg MatchConfig, sink Publisher, hooks Hooks) *Match {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 60
	}
	if cfg.InputQueue < 2*cfg.TickHz {
		cfg.InputQueue = 2 * cfg.TickHz
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	state := NewState(id, cfg.Bounds, rand.New(rand.NewSource(seed)))
	m := &Match{
		ID:       id,
		cfg:      cfg,
		hooks:    hooks,
		sink:     sink,
		state:    state,
		status:   StatusWaiting,
		combat:   NewCombat(state),
		physics:  Physics{Friction: cfg.Friction, MaxVel: cfg.MaxVel},
		grid:     spatial.NewGrid(64),
		inputs:   newInputRing(cfg.InputQueue),
		control:  make(chan func()),
		stop:     make(chan string, 1),
		stopped:  make(chan struct{}),
		regenAcc: make(map[string]float64),
	}
	m.spawnPowerUps()
	return m
}

func (m *Match) spawnPowerUps() {
	types := []PowerUpType{
		PowerUpSpeedBoost, PowerUpDamageBoost, PowerUpHealthPack,
		PowerUpShield, PowerUpRapidFire,
	}
	for _, typ := range types {
		pos := m.state.Bounds.RandomSpawn(m.state.Rand())
		pu := NewPowerUp(m.state.NextID("powerup"), typ, pos, 0)
		m.state.AddPowerUp(pu)
		m.grid.Insert(pu.ID, pu.Pos.X, pu.Pos.Y, pu.Radius)
	}
}

// =============================================================================
// EXTERNAL API (safe from any goroutine)
// =============================================================================

// Join adds a player, replying with game_full, already_joined or
// match_finished when the preconditions fail.
func (m *Match) Join(playerID, userID string) error {
	reply := make(chan error, 1)
	if !m.send(func() { reply <- m.doJoin(playerID, userID) }) {
		return ErrMatchFinished
	}
	return <-reply
}

// Leave removes a player. Unknown ids are a no-op.
func (m *Match) Leave(playerID string) {
	m.send(func() { m.doLeave(playerID) })
}

// SubmitInput queues one input for the next tick. Inputs for finished
// matches are rejected; queue overflow drops the oldest input.
func (m *Match) SubmitInput(in Input) error {
	select {
	case <-m.stopped:
		return ErrMatchFinished
	default:
	}
	if !ValidAction(in.Action) {
		return ErrNotFound
	}
	if m.inputs.Push(in) {
		if m.hooks.OnDroppedInput != nil {
			m.hooks.OnDroppedInput(m.ID)
		}
	}
	return nil
}

// SnapshotNow returns a value copy of the current state, or false once
// the loop has stopped.
func (m *Match) SnapshotNow() (Snapshot, bool) {
	reply := make(chan Snapshot, 1)
	if !m.send(func() { reply <- m.snapshot() }) {
		return Snapshot{}, false
	}
	return <-reply, true
}

// Status returns the last observed lifecycle state.
func (m *Match) Status() MatchStatus {
	reply := make(chan MatchStatus, 1)
	if !m.send(func() { reply <- m.status }) {
		return StatusFinished
	}
	return <-reply
}

// PlayerCount returns the current number of joined players.
func (m *Match) PlayerCount() int {
	reply := make(chan int, 1)
	if !m.send(func() { reply <- len(m.state.Players) }) {
		return 0
	}
	return <-reply
}

// Terminate asks the loop to stop with the given reason.
func (m *Match) Terminate(reason string) {
	select {
	case m.stop <- reason:
	default:
	}
}

// Done is closed when the loop has fully stopped.
func (m *Match) Done() <-chan struct{} {
	return m.stopped
}

// send runs fn on the match goroutine, returning false if the loop has
// already stopped.
func (m *Match) send(fn func()) bool {
	select {
	case m.control <- fn:
		return true
	case <-m.stopped:
		return false
	}
}

// =============================================================================
// MATCH LOOP
// =============================================================================

// Run drives the fixed-tick loop until the match finishes, Terminate is
// called or the context is cancelled. It must be called exactly once.
func (m *Match) Run(ctx context.Context) {
	tickDur := time.Second / time.Duration(m.cfg.TickHz)
	m.startedAt = time.Now()
	m.lastTick = m.startedAt

	timer := time.NewTimer(tickDur)
	defer timer.Stop()
	defer m.shutdown()

	reason := ""
	for {
		select {
		case <-ctx.Done():
			m.finishReason("shutdown")
			return
		case reason = <-m.stop:
			m.finishReason(reason)
			return
		case fn := <-m.control:
			fn()
			if m.status == StatusFinished {
				m.finishReason("finished")
				return
			}
		case <-timer.C:
			start := time.Now()
			m.runTick()
			elapsed := time.Since(start)
			if m.hooks.OnTick != nil {
				m.hooks.OnTick(elapsed)
			}
			if m.status == StatusFinished {
				m.finishReason("finished")
				return
			}
			if m.reapDue() {
				m.finishReason("empty")
				return
			}
			next := tickDur - elapsed
			if next <= 0 {
				// Overran the budget: schedule the next tick immediately,
				// never run catch-up ticks
				next = time.Nanosecond
				if m.hooks.OnOverrun != nil {
					m.hooks.OnOverrun(m.ID, elapsed)
				}
			}
			timer.Reset(next)
		}
	}
}

func (m *Match) finishReason(reason string) {
	if m.status != StatusFinished {
		m.status = StatusFinished
		m.state.Event("match_finished", map[string]any{"reason": reason})
	}
	m.commit()
	m.sink.MatchEnded(m.ID, reason)
}

func (m *Match) shutdown() {
	close(m.stopped)
	if m.hooks.OnStopped != nil {
		m.hooks.OnStopped(m.ID)
	}
}

func (m *Match) reapDue() bool {
	return m.emptyReapMs > 0 && m.clockMs >= m.emptyReapMs
}

func (m *Match) snapshot() Snapshot {
	return m.state.Snapshot(m.status, m.tick, m.clockMs)
}

// runTick executes the pipeline in its fixed order. Within one tick every
// stage sees the writes of the stages before it.
func (m *Match) runTick() {
	dtMs := int64(1000 / m.cfg.TickHz)
	m.clockMs += dtMs
	now := m.clockMs

	// 1-2. Drain and apply inputs in FIFO order.
	m.drainBuf = m.inputs.Drain(m.drainBuf[:0])
	for _, in := range m.drainBuf {
		if _, ok := m.state.Players[in.PlayerID]; !ok {
			continue
		}
		if err := m.combat.Apply(m.state, in, now); err != nil {
			// Precondition misses are routine; only surface parse failures
			switch err {
			case ErrOnCooldown, ErrInsufficientResource, ErrOutOfRange, ErrNotFound, ErrDead:
			default:
				log.Printf("match %s: dropped invalid input from %s: %v", m.ID, in.PlayerID, err)
			}
		}
	}

	// 3-4. Integrate physics; bounds clamping happens inside Step.
	for _, p := range m.state.Players {
		if p.Alive {
			m.physics.Step(m.state, p, dtMs, now)
		}
	}

	// 5. Advance projectiles.
	m.stepProjectiles(dtMs, now)

	// 6. Refresh the grid with post-integration positions.
	for _, p := range m.state.Players {
		if p.Alive {
			m.grid.Update(p.ID, p.Pos.X, p.Pos.Y, p.Radius)
		} else {
			m.grid.Remove(p.ID)
		}
	}

	// 7. Collisions: separation, projectile hits, pickups.
	m.resolveCollisions(now)

	// 8. Status timers, power-up respawns, resource regen.
	m.advanceTimers(now, dtMs)

	// 9. Win and time conditions.
	m.checkEndConditions(now)

	// 10. Commit.
	m.commit()
	m.tick++
	m.lastTick = time.Now()
}

func (m *Match) stepProjectiles(dtMs, now int64) {
	dt := float64(dtMs) / 1000.0
	for _, pr := range m.state.Projectiles {
		step := pr.Vel.Scale(dt)
		newPos := pr.Pos.Add(step)
		traveled := pr.DistanceTraveled + step.Length()
		m.state.MoveProjectile(pr, newPos, traveled)
		if pr.Expired(m.state.Bounds) {
			m.grid.Remove(pr.ID)
			m.state.DestroyProjectile(pr.ID)
			continue
		}
		m.grid.Update(pr.ID, pr.Pos.X, pr.Pos.Y, pr.Size)
	}
}

func (m *Match) resolveCollisions(now int64) {
	collisions := DetectCollisions(m.state, m.grid.Nearby)
	for _, c := range collisions {
		switch {
		case c.ALayer == LayerPlayer && c.BLayer == LayerPlayer:
			SeparatePlayers(m.state, c)
		case c.ALayer == LayerProjectile && c.BLayer == LayerPlayer:
			pr, ok := m.state.Projectiles[c.A]
			if !ok {
				continue // destroyed earlier this tick
			}
			target, ok := m.state.Players[c.B]
			if !ok || !target.Alive {
				continue
			}
			attacker := m.state.Players[pr.OwnerID]
			dmg := m.projectileDamage(pr, attacker, target, now)
			m.combat.DealDamage(m.state, attacker, target, dmg, now)
			m.grid.Remove(pr.ID)
			m.state.DestroyProjectile(pr.ID)
		case c.ALayer == LayerPlayer && c.BLayer == LayerPowerUp:
			p, ok := m.state.Players[c.A]
			if !ok || !p.Alive {
				continue
			}
			pu, ok := m.state.PowerUps[c.B]
			if !ok {
				continue
			}
			m.combat.PickUpPowerUp(m.state, p, pu, now)
		}
	}
}

// projectileDamage reuses the damage pipeline with the projectile's flight
// distance as the falloff distance.
func (m *Match) projectileDamage(pr *Projectile, attacker, defender *Player, now int64) int {
	weapon := GetWeapon(pr.WeaponType)
	weapon.Damage = pr.Damage
	if attacker == nil {
		// Owner already left; a bare attacker keeps the formula total-safe
		attacker = &Player{Stats: Stats{}, PowerUps: map[PowerUpType]PowerUpEffect{}, Proficiency: map[string]int{}}
	}
	// The projectile's own damage already includes the attacker's attack stat
	weapon.Damage -= attacker.Stats.Attack
	return m.combat.ComputeDamage(attacker, defender, weapon, pr.DistanceTraveled, false, now)
}

const (
	staminaRegenPerSec = 15
	manaRegenPerSec    = 10
)

func (m *Match) advanceTimers(now, dtMs int64) {
	dt := float64(dtMs) / 1000.0

	for _, p := range m.state.Players {
		for status, end := range p.Statuses {
			if now >= end {
				m.state.ClearStatus(p, status)
			}
		}
		for typ, eff := range p.PowerUps {
			if now >= eff.EndMs {
				m.state.ClearPowerUpEffect(p, typ)
			}
		}

		if !p.Alive {
			continue
		}
		if now-p.LastDamageMs <= m.cfg.RegenDelayMs {
			continue
		}
		// Regen lands in whole-second grants to keep resources integral
		acc := m.regenAcc[p.ID] + dt
		for acc >= 1 {
			acc--
			if p.Stamina < p.MaxStamina {
				m.state.SetStamina(p, p.Stamina+staminaRegenPerSec)
			}
			if p.Mana < p.MaxMana {
				m.state.SetMana(p, p.Mana+manaRegenPerSec)
			}
		}
		m.regenAcc[p.ID] = acc
	}

	for _, pu := range m.state.PowerUps {
		if pu.ShouldRespawn(now) {
			m.state.SetPowerUpActive(pu, true, now)
			m.grid.Insert(pu.ID, pu.Pos.X, pu.Pos.Y, pu.Radius)
		} else if !pu.Active {
			m.grid.Remove(pu.ID)
		}
	}
}

func (m *Match) checkEndConditions(now int64) {
	if m.status != StatusActive {
		return
	}
	switch {
	case m.state.AliveCount() <= 1:
		m.finish("last_player_standing")
	case m.cfg.ScoreLimit > 0 && m.state.TopKills() >= m.cfg.ScoreLimit:
		m.finish("score_limit")
	case m.cfg.TimeLimitMs > 0 && now-m.activeAtMs >= m.cfg.TimeLimitMs:
		m.finish("time_limit")
	}
}

func (m *Match) finish(reason string) {
	m.status = StatusFinished
	m.state.Event("match_finished", map[string]any{
		"reason": reason,
		"score":  m.scoreboard(),
	})
}

func (m *Match) scoreboard() map[string]int {
	score := make(map[string]int, len(m.state.Players))
	for id, p := range m.state.Players {
		score[id] = p.Kills
	}
	return score
}

func (m *Match) commit() {
	batch := m.state.HarvestDeltas()
	tsMs := time.Now().UnixMilli()
	if len(batch) > 0 {
		m.sink.PublishDelta(m.ID, m.tick, tsMs, batch)
	}
	if m.clockMs-m.lastKeyMs >= m.cfg.FullStateIntervalMs {
		m.lastKeyMs = m.clockMs
		m.sink.PublishKeyframe(m.snapshot(), tsMs)
	}
	if interval := m.cfg.SnapshotIntervalMs; interval > 0 && m.clockMs-m.lastSnapMs >= interval {
		m.lastSnapMs = m.clockMs
		m.sink.RecordSnapshot(m.snapshot(), tsMs)
	}
}

// =============================================================================
// LOOP-CONFINED MUTATIONS
// =============================================================================

func (m *Match) doJoin(playerID, userID string) error {
	if m.status == StatusFinished {
		return ErrMatchFinished
	}
	if _, ok := m.state.Players[playerID]; ok {
		return ErrAlreadyJoined
	}
	if len(m.state.Players) >= m.cfg.MaxPlayers {
		return ErrMatchFull
	}

	spawn := m.state.Bounds.RandomSpawn(m.state.Rand())
	p := NewPlayer(playerID, userID, spawn, m.clockMs)
	m.state.AddPlayer(p)
	m.grid.Insert(p.ID, p.Pos.X, p.Pos.Y, p.Radius)
	m.emptyReapMs = 0

	if m.status == StatusWaiting && len(m.state.Players) >= m.cfg.MinPlayers {
		m.status = StatusActive
		m.activeAtMs = m.clockMs
		m.state.Event("match_started", map[string]any{"players": len(m.state.Players)})
	}
	return nil
}

func (m *Match) doLeave(playerID string) {
	if _, ok := m.state.Players[playerID]; !ok {
		return
	}
	m.grid.Remove(playerID)
	m.state.RemovePlayer(playerID)
	delete(m.regenAcc, playerID)

	if len(m.state.Players) == 0 && m.status != StatusFinished {
		m.emptyReapMs = m.clockMs + m.cfg.EmptyReapMs
	}
}
