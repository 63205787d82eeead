package game

// Projectile is a moving damage source spawned by a ranged weapon or cast.
// It never damages its owner and is destroyed on first hit, on leaving the
// world bounds, or once DistanceTraveled reaches Range.
type Projectile struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	Pos              Vec2       `json:"pos"`
	Vel              Vec2       `json:"vel"`
	Size             float64    `json:"size"`
	Damage           int        `json:"damage"`
	Range            float64    `json:"range"`
	DistanceTraveled float64    `json:"distanceTraveled"`
	WeaponType       string     `json:"weaponType"`
	DamageType       DamageType `json:"damageType"`
	CreatedAtMs      int64      `json:"createdAtMs"`
}

// NewProjectile spawns a projectile travelling from origin along dir.
func NewProjectile(id, ownerID string, w Weapon, origin, dir Vec2, nowMs int64) *Projectile {
	return &Projectile{
		ID:          id,
		OwnerID:     ownerID,
		Pos:         origin,
		Vel:         dir.Normalize().Scale(w.ProjectileSpeed),
		Size:        w.ProjectileSize,
		Damage:      w.Damage,
		Range:       w.EffectiveRange,
		WeaponType:  w.ID,
		DamageType:  w.DamageType,
		CreatedAtMs: nowMs,
	}
}

// Expired reports whether the projectile has exhausted its range or left
// the arena.
func (pr *Projectile) Expired(b Bounds) bool {
	return pr.DistanceTraveled >= pr.Range || !b.Contains(pr.Pos)
}
