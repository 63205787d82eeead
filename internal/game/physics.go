package game

// Physics integrates player movement with a fixed timestep.
type Physics struct {
	Friction float64
	MaxVel   float64
}

// velocity components below this are zeroed to stop drift
const velEpsilon = 0.01

// Step advances one player by dtMs. Position is clamped to bounds with the
// driving velocity component zeroed, velocity decays by friction and is
// capped at MaxVel. A non-finite result resets the player to the arena
// centre with zero velocity rather than corrupting the tick.
func (ph Physics) Step(s *State, p *Player, dtMs int64, nowMs int64) {
	dt := float64(dtMs) / 1000.0

	vel := p.Vel
	speedMult := p.SpeedMultiplier(nowMs)
	pos := p.Pos.Add(vel.Scale(dt * speedMult))

	if !pos.IsFinite() || !vel.IsFinite() {
		s.Event("physics_reset", map[string]any{"playerId": p.ID})
		s.SetPosition(p, Vec2{X: s.Bounds.Width / 2, Y: s.Bounds.Height / 2})
		s.SetVelocity(p, Vec2{})
		return
	}

	clamped, hitX, hitY := s.Bounds.Clamp(pos)
	if hitX {
		vel.X = 0
	}
	if hitY {
		vel.Y = 0
	}

	vel = vel.Scale(ph.Friction).ClampMagnitude(ph.MaxVel)
	if vel.X > -velEpsilon && vel.X < velEpsilon {
		vel.X = 0
	}
	if vel.Y > -velEpsilon && vel.Y < velEpsilon {
		vel.Y = 0
	}

	s.SetPosition(p, clamped)
	s.SetVelocity(p, vel)
}
