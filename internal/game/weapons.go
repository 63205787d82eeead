package game

// DamageType selects which defender stat mitigates a hit.
type DamageType string

const (
	DamagePhysical DamageType = "physical"
	DamageMagic    DamageType = "magic"
)

// Weapon represents a weapon configuration.
type Weapon struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Damage          int        `json:"damage"`
	EffectiveRange  float64    `json:"effectiveRange"`
	CooldownMs      int64      `json:"cooldownMs"`
	StaminaCost     int        `json:"staminaCost"`
	DamageType      DamageType `json:"damageType"`
	ProjectileSpeed float64    `json:"projectileSpeed"` // 0 = melee, no projectile
	ProjectileSize  float64    `json:"projectileSize"`
}

// Weapons is the map of all available weapons.
// NOTE: EffectiveRange must exceed two player radii (2*18) for melee to land.
var Weapons = map[string]Weapon{
	"fists": {
		ID:             "fists",
		Name:           "Fists",
		Damage:         8,
		EffectiveRange: 60,
		CooldownMs:     400,
		StaminaCost:    3,
		DamageType:     DamagePhysical,
	},
	"sword": {
		ID:             "sword",
		Name:           "Sword",
		Damage:         20,
		EffectiveRange: 100,
		CooldownMs:     500,
		StaminaCost:    5,
		DamageType:     DamagePhysical,
	},
	"spear": {
		ID:             "spear",
		Name:           "Spear",
		Damage:         16,
		EffectiveRange: 150,
		CooldownMs:     600,
		StaminaCost:    6,
		DamageType:     DamagePhysical,
	},
	"axe": {
		ID:             "axe",
		Name:           "Battle Axe",
		Damage:         32,
		EffectiveRange: 95,
		CooldownMs:     800,
		StaminaCost:    8,
		DamageType:     DamagePhysical,
	},
	"bow": {
		ID:              "bow",
		Name:            "Bow",
		Damage:          24,
		EffectiveRange:  400,
		CooldownMs:      1000,
		StaminaCost:     5,
		DamageType:      DamagePhysical,
		ProjectileSpeed: 520,
		ProjectileSize:  4,
	},
	"staff": {
		ID:              "staff",
		Name:            "Arcane Staff",
		Damage:          28,
		EffectiveRange:  350,
		CooldownMs:      900,
		StaminaCost:     2,
		DamageType:      DamageMagic,
		ProjectileSpeed: 420,
		ProjectileSize:  6,
	},
}

// GetWeapon returns a weapon by ID, defaults to fists.
func GetWeapon(id string) Weapon {
	if w, ok := Weapons[id]; ok {
		return w
	}
	return Weapons["fists"]
}

// GetAllWeapons returns all weapons as a slice.
func GetAllWeapons() []Weapon {
	weapons := make([]Weapon, 0, len(Weapons))
	for _, w := range Weapons {
		weapons = append(weapons, w)
	}
	return weapons
}
