package matchmaking

import (
	"math"
	"sync"
	"time"
)

// Rating is one player's Elo record. Volatility is a diagnostic moving
// value, not an input to pairing.
type Rating struct {
	PlayerID    string    `json:"playerId"`
	Rating      int       `json:"rating"`
	Games       int       `json:"games"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	LastUpdated time.Time `json:"lastUpdated"`
	Volatility  float64   `json:"volatility"`
}

// RatingConfig carries the Elo tunables.
type RatingConfig struct {
	Default     int
	Floor       int
	Ceiling     int
	KFactor     int
	DecayDays   int
	DecayPerDay int
}

const defaultVolatility = 0.5

// RatingTable owns every skill rating. Mutations are serialised through
// it; the matchmaker is the only writer.
type RatingTable struct {
	mu      sync.Mutex
	cfg     RatingConfig
	ratings map[string]*Rating
	now     func() time.Time
}

// NewRatingTable creates an empty table.
func NewRatingTable(cfg RatingConfig) *RatingTable {
	return &RatingTable{
		cfg:     cfg,
		ratings: make(map[string]*Rating),
		now:     time.Now,
	}
}

// Get returns the player's rating, initialising an unknown player at the
// default and applying inactivity decay lazily.
func (t *RatingTable) Get(playerID string) Rating {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.getLocked(playerID)
}

func (t *RatingTable) getLocked(playerID string) *Rating {
	r, ok := t.ratings[playerID]
	if !ok {
		r = &Rating{
			PlayerID:    playerID,
			Rating:      t.cfg.Default,
			LastUpdated: t.now(),
			Volatility:  defaultVolatility,
		}
		t.ratings[playerID] = r
		return r
	}
	t.decayLocked(r)
	return r
}

// decayLocked applies linear inactivity decay: after DecayDays without an
// update, DecayPerDay points per further day, floored.
func (t *RatingTable) decayLocked(r *Rating) {
	if t.cfg.DecayDays <= 0 || t.cfg.DecayPerDay <= 0 {
		return
	}
	idleDays := int(t.now().Sub(r.LastUpdated).Hours() / 24)
	decayed := idleDays - t.cfg.DecayDays
	if decayed <= 0 {
		return
	}
	r.Rating -= decayed * t.cfg.DecayPerDay
	if r.Rating < t.cfg.Floor {
		r.Rating = t.cfg.Floor
	}
	// Advance the anchor so the same idle span is not charged twice
	r.LastUpdated = r.LastUpdated.Add(time.Duration(decayed) * 24 * time.Hour)
}

// ExpectedScore is the standard Elo expectation for A against B.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// RecordResult applies one match outcome. Rating changes for the pair sum
// to zero up to rounding; ratings clamp to [Floor, Ceiling].
func (t *RatingTable) RecordResult(winnerID, loserID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	winner := t.getLocked(winnerID)
	loser := t.getLocked(loserID)

	expWinner := ExpectedScore(winner.Rating, loser.Rating)
	expLoser := 1 - expWinner
	k := float64(t.cfg.KFactor)

	winner.Rating = t.clamp(winner.Rating + int(math.Round(k*(1-expWinner))))
	loser.Rating = t.clamp(loser.Rating + int(math.Round(k*(0-expLoser))))

	winner.Volatility = clipVolatility(winner.Volatility + math.Abs(1-expWinner)*0.1 - 0.05)
	loser.Volatility = clipVolatility(loser.Volatility + math.Abs(0-expLoser)*0.1 - 0.05)

	now := t.now()
	winner.Games++
	winner.Wins++
	winner.LastUpdated = now
	loser.Games++
	loser.Losses++
	loser.LastUpdated = now
}

func (t *RatingTable) clamp(r int) int {
	if r < t.cfg.Floor {
		return t.cfg.Floor
	}
	if r > t.cfg.Ceiling {
		return t.cfg.Ceiling
	}
	return r
}

func clipVolatility(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
