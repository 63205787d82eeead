package matchmaking

import (
	"math"
	"testing"
	"time"
)

func testRatingTable() *RatingTable {
	return NewRatingTable(RatingConfig{
		Default:     1200,
		Floor:       100,
		Ceiling:     3000,
		KFactor:     32,
		DecayDays:   30,
		DecayPerDay: 5,
	})
}

// TestEvenMatchAward verifies a 1200 v 1200 result moves the winner up by
// exactly K/2 and keeps the exchange zero-sum.
func TestEvenMatchAward(t *testing.T) {
	table := testRatingTable()

	table.RecordResult("alice", "bob")

	alice := table.Get("alice")
	bob := table.Get("bob")
	if alice.Rating != 1216 {
		t.Fatalf("winner rating = %d, want 1216", alice.Rating)
	}
	if bob.Rating != 1184 {
		t.Fatalf("loser rating = %d, want 1184", bob.Rating)
	}
	if (alice.Rating-1200)+(bob.Rating-1200) != 0 {
		t.Fatal("rating exchange is not zero-sum")
	}
	if alice.Wins != 1 || alice.Games != 1 || bob.Losses != 1 {
		t.Fatal("win/loss counters not updated")
	}
}

// TestExpectedScore pins the Elo expectation formula.
func TestExpectedScore(t *testing.T) {
	if got := ExpectedScore(1200, 1200); got != 0.5 {
		t.Fatalf("even expectation = %v, want 0.5", got)
	}
	got := ExpectedScore(1200, 1600)
	if math.Abs(got-0.0909) > 0.001 {
		t.Fatalf("underdog expectation = %v, want ~0.0909", got)
	}
	if ExpectedScore(1200, 1600)+ExpectedScore(1600, 1200) != 1 {
		t.Fatal("expectations do not sum to 1")
	}
}

// TestRatingClamp verifies ratings never leave [Floor, Ceiling].
func TestRatingClamp(t *testing.T) {
	table := testRatingTable()
	now := time.Now()
	table.mu.Lock()
	table.ratings["low"] = &Rating{PlayerID: "low", Rating: 110, LastUpdated: now, Volatility: 0.5}
	table.ratings["low2"] = &Rating{PlayerID: "low2", Rating: 110, LastUpdated: now, Volatility: 0.5}
	table.ratings["high"] = &Rating{PlayerID: "high", Rating: 2995, LastUpdated: now, Volatility: 0.5}
	table.ratings["high2"] = &Rating{PlayerID: "high2", Rating: 2995, LastUpdated: now, Volatility: 0.5}
	table.mu.Unlock()

	// even matchup moves each side 16, through the clamp at both ends
	table.RecordResult("low2", "low")
	table.RecordResult("high", "high2")

	if got := table.Get("low").Rating; got != 100 {
		t.Fatalf("floored rating = %d, want 100", got)
	}
	if got := table.Get("high").Rating; got != 3000 {
		t.Fatalf("capped rating = %d, want 3000", got)
	}
}

// TestInactivityDecay verifies lazy decay after the grace window and that
// the anchor advance does not charge the same idle span twice.
func TestInactivityDecay(t *testing.T) {
	table := testRatingTable()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	table.now = func() time.Time { return base }
	table.Get("idle") // initialise at 1200

	// 35 idle days: 5 days past the grace window, 5 points per day
	table.now = func() time.Time { return base.Add(35 * 24 * time.Hour) }
	if got := table.Get("idle").Rating; got != 1175 {
		t.Fatalf("decayed rating = %d, want 1175", got)
	}
	// reading again at the same instant must not decay further
	if got := table.Get("idle").Rating; got != 1175 {
		t.Fatalf("second read decayed again: %d", got)
	}
}

// TestVolatilityBounds verifies the volatility update stays clipped.
func TestVolatilityBounds(t *testing.T) {
	table := testRatingTable()
	for i := 0; i < 40; i++ {
		table.RecordResult("grinder", "fodder")
	}
	v := table.Get("grinder").Volatility
	if v < 0.1 || v > 1.0 {
		t.Fatalf("volatility %v outside [0.1, 1.0]", v)
	}
}
