package game

// Layer is the collision layer of an entity.
type Layer int

const (
	LayerPlayer Layer = iota
	LayerProjectile
	LayerPowerUp
	LayerWall
)

// LayersCollide encodes the fixed collision matrix. Pairs not listed here
// are skipped before the narrow phase.
func LayersCollide(a, b Layer) bool {
	if a > b {
		a, b = b, a
	}
	switch {
	case a == LayerPlayer && b == LayerPlayer:
		return true
	case a == LayerPlayer && b == LayerProjectile:
		return true
	case a == LayerPlayer && b == LayerPowerUp:
		return true
	case a == LayerPlayer && b == LayerWall:
		return true
	case a == LayerProjectile && b == LayerWall:
		return true
	}
	return false
}

// Collision is one narrow-phase hit between entities a and b.
type Collision struct {
	A, B        string
	ALayer      Layer
	BLayer      Layer
	Point       Vec2
	Normal      Vec2 // from a toward b
	Penetration float64
}

// CircleCircle tests two circles and reports the collision record if they
// overlap.
func CircleCircle(aID string, aLayer Layer, aPos Vec2, aR float64, bID string, bLayer Layer, bPos Vec2, bR float64) (Collision, bool) {
	diff := bPos.Sub(aPos)
	distSq := diff.LengthSq()
	sum := aR + bR
	if distSq >= sum*sum {
		return Collision{}, false
	}
	dist := diff.Length()
	normal := Vec2{X: 1}
	if dist > 0 {
		normal = diff.Scale(1 / dist)
	}
	return Collision{
		A:           aID,
		B:           bID,
		ALayer:      aLayer,
		BLayer:      bLayer,
		Point:       aPos.Add(normal.Scale(aR)),
		Normal:      normal,
		Penetration: sum - dist,
	}, true
}

// CircleAABB tests a circle against an axis-aligned box.
func CircleAABB(id string, layer Layer, pos Vec2, r float64, minX, minY, maxX, maxY float64) (Collision, bool) {
	closest := Vec2{
		X: clampF(pos.X, minX, maxX),
		Y: clampF(pos.Y, minY, maxY),
	}
	diff := pos.Sub(closest)
	distSq := diff.LengthSq()
	if distSq >= r*r {
		return Collision{}, false
	}
	dist := diff.Length()
	normal := Vec2{Y: -1}
	if dist > 0 {
		normal = diff.Scale(1 / dist)
	}
	return Collision{
		A:           id,
		ALayer:      layer,
		BLayer:      LayerWall,
		Point:       closest,
		Normal:      normal,
		Penetration: r - dist,
	}, true
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type pairKey struct {
	a, b string
}

func makePair(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// DetectCollisions runs the broad phase over the grid index and the narrow
// phase over candidate pairs. Pairs are deduplicated by unordered id; a
// projectile never collides with its owner.
func DetectCollisions(s *State, nearby func(id string, radius float64) []string) []Collision {
	var out []Collision
	seen := make(map[pairKey]struct{})

	record := func(c Collision) {
		key := makePair(c.A, c.B)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	for _, p := range s.Players {
		if !p.Alive {
			continue
		}
		for _, otherID := range nearby(p.ID, p.Radius) {
			if other, ok := s.Players[otherID]; ok && other.Alive {
				if !LayersCollide(LayerPlayer, LayerPlayer) {
					continue
				}
				if c, hit := CircleCircle(p.ID, LayerPlayer, p.Pos, p.Radius, other.ID, LayerPlayer, other.Pos, other.Radius); hit {
					record(c)
				}
				continue
			}
			if pu, ok := s.PowerUps[otherID]; ok && pu.Active {
				if c, hit := CircleCircle(p.ID, LayerPlayer, p.Pos, p.Radius, pu.ID, LayerPowerUp, pu.Pos, pu.Radius); hit {
					record(c)
				}
			}
		}
	}

	for _, pr := range s.Projectiles {
		for _, otherID := range nearby(pr.ID, pr.Size) {
			target, ok := s.Players[otherID]
			if !ok || !target.Alive || target.ID == pr.OwnerID {
				continue
			}
			if c, hit := CircleCircle(pr.ID, LayerProjectile, pr.Pos, pr.Size, target.ID, LayerPlayer, target.Pos, target.Radius); hit {
				record(c)
			}
		}
	}

	return out
}

// SeparatePlayers displaces each overlapping player half the penetration
// along the collision normal, then re-clamps both to bounds.
func SeparatePlayers(s *State, c Collision) {
	a, okA := s.Players[c.A]
	b, okB := s.Players[c.B]
	if !okA || !okB {
		return
	}
	half := c.Normal.Scale(c.Penetration / 2)

	posA, _, _ := s.Bounds.Clamp(a.Pos.Sub(half))
	posB, _, _ := s.Bounds.Clamp(b.Pos.Add(half))
	s.SetPosition(a, posA)
	s.SetPosition(b, posB)
}
