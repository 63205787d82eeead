package game

import (
	"math"
	"math/rand"
)

// Vec2 is a 2D vector of 64-bit floats, used for positions and velocities.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

// Scale returns v scaled by s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// Length returns the magnitude of v.
func (v Vec2) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// LengthSq returns the squared magnitude of v. Prefer this for comparisons.
func (v Vec2) LengthSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Normalize returns v scaled to unit length, or the zero vector if v is zero.
func (v Vec2) Normalize() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// ClampMagnitude returns v with its magnitude capped at max.
func (v Vec2) ClampMagnitude(max float64) Vec2 {
	if max <= 0 {
		return Vec2{}
	}
	lsq := v.LengthSq()
	if lsq <= max*max {
		return v
	}
	return v.Scale(max / math.Sqrt(lsq))
}

// IsFinite reports whether both components are finite numbers.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// DistanceTo returns the distance between v and o.
func (v Vec2) DistanceTo(o Vec2) float64 {
	return v.Sub(o).Length()
}

// Bounds is the playable arena rectangle [0,W]x[0,H] with an entity inset
// from the hard edge.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Inset  float64 `json:"inset"`
}

// Clamp returns p clamped to the inset rectangle, reporting which axes were
// clamped so callers can zero the driving velocity component.
func (b Bounds) Clamp(p Vec2) (clamped Vec2, hitX, hitY bool) {
	clamped = p
	if clamped.X < b.Inset {
		clamped.X = b.Inset
		hitX = true
	} else if clamped.X > b.Width-b.Inset {
		clamped.X = b.Width - b.Inset
		hitX = true
	}
	if clamped.Y < b.Inset {
		clamped.Y = b.Inset
		hitY = true
	} else if clamped.Y > b.Height-b.Inset {
		clamped.Y = b.Height - b.Inset
		hitY = true
	}
	return clamped, hitX, hitY
}

// Contains reports whether p lies inside the inset rectangle.
func (b Bounds) Contains(p Vec2) bool {
	return p.X >= b.Inset && p.X <= b.Width-b.Inset &&
		p.Y >= b.Inset && p.Y <= b.Height-b.Inset
}

// RandomSpawn returns a uniformly random point inside the inset rectangle.
func (b Bounds) RandomSpawn(rng *rand.Rand) Vec2 {
	return Vec2{
		X: b.Inset + rng.Float64()*(b.Width-2*b.Inset),
		Y: b.Inset + rng.Float64()*(b.Height-2*b.Inset),
	}
}
