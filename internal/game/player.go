package game

// Status flags that expire at an absolute match-clock time.
type Status string

const (
	StatusBlocking     Status = "blocking"
	StatusInvulnerable Status = "invulnerable"
	StatusCasting      Status = "casting"
)

// Stats holds the combat attributes referenced by the damage formula.
type Stats struct {
	Attack          int     `json:"attack"`
	Armor           int     `json:"armor"`
	MagicResist     int     `json:"magicResist"`
	CritChance      float64 `json:"critChance"`
	Accuracy        float64 `json:"accuracy"`
	DamageReduction float64 `json:"damageReduction"`
}

// PowerUpEffect is an active timed modifier on a player.
type PowerUpEffect struct {
	Modifier float64 `json:"modifier"`
	EndMs    int64   `json:"endMs"`
}

// Player is a participant in one match. All mutation goes through the
// owning State's setters so field changes land in the delta queue.
type Player struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	Pos Vec2 `json:"pos"`
	Vel Vec2 `json:"vel"`

	Health     int  `json:"health"`
	MaxHealth  int  `json:"maxHealth"`
	Mana       int  `json:"mana"`
	MaxMana    int  `json:"maxMana"`
	Stamina    int  `json:"stamina"`
	MaxStamina int  `json:"maxStamina"`
	Alive      bool `json:"alive"`

	Weapon  string `json:"weapon"`
	Ability string `json:"ability"`
	Stats   Stats  `json:"stats"`

	// Timed status flags mapped to their absolute end time (match clock ms).
	Statuses map[Status]int64 `json:"statuses"`

	// Cooldown and damage timestamps (match clock ms). Monotonic.
	LastAttackMs int64 `json:"-"`
	LastBlockMs  int64 `json:"-"`
	LastDodgeMs  int64 `json:"-"`
	LastCastMs   int64 `json:"-"`
	LastDamageMs int64 `json:"-"`

	// Active power-up effects keyed by type.
	PowerUps map[PowerUpType]PowerUpEffect `json:"powerUps"`

	// Weapon proficiency levels keyed by weapon id.
	Proficiency map[string]int `json:"proficiency"`

	Radius float64 `json:"radius"`

	Kills  int `json:"kills"`
	Deaths int `json:"deaths"`

	Rating     int   `json:"rating"`
	JoinedAtMs int64 `json:"joinedAtMs"`
}

// NewPlayer creates a player at the given spawn with default resources.
func NewPlayer(id, userID string, spawn Vec2, nowMs int64) *Player {
	return &Player{
		ID:         id,
		UserID:     userID,
		Pos:        spawn,
		Health:     100,
		MaxHealth:  100,
		Mana:       100,
		MaxMana:    100,
		Stamina:    100,
		MaxStamina: 100,
		Alive:      true,
		Weapon:     "fists",
		Stats: Stats{
			Attack:     10,
			CritChance: 0.05,
			Accuracy:   0.5,
		},
		Statuses:    make(map[Status]int64),
		PowerUps:    make(map[PowerUpType]PowerUpEffect),
		Proficiency: make(map[string]int),
		Radius:      18,
		Rating:      1200,
		JoinedAtMs:  nowMs,
	}
}

// StatusActive reports whether the given flag has not yet expired.
func (p *Player) StatusActive(s Status, nowMs int64) bool {
	end, ok := p.Statuses[s]
	return ok && nowMs < end
}

// DamageBoostMultiplier returns 1 plus the sum of active damage_boost
// modifiers.
func (p *Player) DamageBoostMultiplier(nowMs int64) float64 {
	mult := 1.0
	if eff, ok := p.PowerUps[PowerUpDamageBoost]; ok && nowMs < eff.EndMs {
		mult += eff.Modifier
	}
	return mult
}

// SpeedMultiplier returns 1 plus the active speed_boost modifier.
func (p *Player) SpeedMultiplier(nowMs int64) float64 {
	mult := 1.0
	if eff, ok := p.PowerUps[PowerUpSpeedBoost]; ok && nowMs < eff.EndMs {
		mult += eff.Modifier
	}
	return mult
}

// WeaponLevel returns the proficiency level for the currently held weapon.
func (p *Player) WeaponLevel() int {
	return p.Proficiency[p.Weapon]
}
