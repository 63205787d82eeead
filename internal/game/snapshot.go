package game

import "sort"

// MatchStatus is the match lifecycle state.
type MatchStatus string

const (
	StatusWaiting  MatchStatus = "waiting"
	StatusActive   MatchStatus = "active"
	StatusFinished MatchStatus = "finished"
)

// Snapshot is a full, value-copied view of match state at one tick.
// Keyframes, replay entries and the admin API all serve this shape.
type Snapshot struct {
	MatchID     string         `json:"matchId"`
	Tick        uint64         `json:"tick"`
	Status      MatchStatus    `json:"status"`
	MatchTimeMs int64          `json:"matchTimeMs"`
	Players     []Player       `json:"players"`
	Projectiles []Projectile   `json:"projectiles"`
	PowerUps    []PowerUp      `json:"powerups"`
	Score       map[string]int `json:"score"`
}

// Snapshot copies the current entity state. Entries are sorted by id so
// two snapshots of equal state compare equal.
func (s *State) Snapshot(status MatchStatus, tick uint64, matchTimeMs int64) Snapshot {
	snap := Snapshot{
		MatchID:     s.MatchID,
		Tick:        tick,
		Status:      status,
		MatchTimeMs: matchTimeMs,
		Players:     make([]Player, 0, len(s.Players)),
		Projectiles: make([]Projectile, 0, len(s.Projectiles)),
		PowerUps:    make([]PowerUp, 0, len(s.PowerUps)),
		Score:       make(map[string]int, len(s.Players)),
	}

	for _, p := range s.Players {
		snap.Players = append(snap.Players, copyPlayer(p))
		snap.Score[p.ID] = p.Kills
	}
	for _, pr := range s.Projectiles {
		snap.Projectiles = append(snap.Projectiles, *pr)
	}
	for _, pu := range s.PowerUps {
		snap.PowerUps = append(snap.PowerUps, *pu)
	}

	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	sort.Slice(snap.Projectiles, func(i, j int) bool { return snap.Projectiles[i].ID < snap.Projectiles[j].ID })
	sort.Slice(snap.PowerUps, func(i, j int) bool { return snap.PowerUps[i].ID < snap.PowerUps[j].ID })

	return snap
}

// copyPlayer deep-copies the player's maps so snapshots stay immutable
// after later ticks mutate the live entity.
func copyPlayer(p *Player) Player {
	cp := *p
	cp.Statuses = make(map[Status]int64, len(p.Statuses))
	for k, v := range p.Statuses {
		cp.Statuses[k] = v
	}
	cp.PowerUps = make(map[PowerUpType]PowerUpEffect, len(p.PowerUps))
	for k, v := range p.PowerUps {
		cp.PowerUps[k] = v
	}
	cp.Proficiency = make(map[string]int, len(p.Proficiency))
	for k, v := range p.Proficiency {
		cp.Proficiency[k] = v
	}
	return cp
}
