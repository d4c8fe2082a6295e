package elo

import (
	"math"
	"testing"
)

func calc() *Calculator { return NewCalculator(Config{}) }

func TestExpectedScore(t *testing.T) {
	c := calc()

	if got := c.ExpectedScore(1000, 1000); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("equal ratings: expected score %v, want 0.5", got)
	}
	// 400 points of advantage is the canonical 10:1 expectation.
	if got := c.ExpectedScore(1400, 1000); math.Abs(got-10.0/11.0) > 1e-9 {
		t.Errorf("+400: expected score %v, want %v", got, 10.0/11.0)
	}
	sum := c.ExpectedScore(1230, 987) + c.ExpectedScore(987, 1230)
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected scores do not sum to 1: %v", sum)
	}
}

func TestKFactorBrackets(t *testing.T) {
	c := calc()

	tests := []struct {
		name   string
		player Player
		mult   float64
		want   float64
	}{
		{"provisional", Player{Rating: 1000, GamesPlayed: 3}, 1, 64},
		{"established", Player{Rating: 1000, GamesPlayed: 50}, 1, 32},
		{"above 2000", Player{Rating: 2100, GamesPlayed: 50}, 1, 24},
		{"above 2400", Player{Rating: 2500, GamesPlayed: 50}, 1, 16},
		{"provisional above 2400", Player{Rating: 2500, GamesPlayed: 5}, 1, 32},
		{"mode multiplier", Player{Rating: 1000, GamesPlayed: 50}, 1.5, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.KFactor(tt.player, tt.mult); got != tt.want {
				t.Errorf("KFactor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRatingClamped(t *testing.T) {
	c := calc()

	high := Player{UserID: "a", Rating: 2995, GamesPlayed: 100}
	low := Player{UserID: "b", Rating: 110, GamesPlayed: 100}

	if r, _ := c.NewRating(high, Player{Rating: 2995, GamesPlayed: 100}, 1, 2.0); r > 3000 {
		t.Errorf("rating %d exceeds max 3000", r)
	}
	if r, _ := c.NewRating(low, Player{Rating: 110, GamesPlayed: 100}, 0, 2.0); r < 100 {
		t.Errorf("rating %d below min 100", r)
	}
}

func TestProcessGameResultDecisive(t *testing.T) {
	c := calc()
	p1 := Player{UserID: "u1", Rating: 1200, GamesPlayed: 40}
	p2 := Player{UserID: "u2", Rating: 1300, GamesPlayed: 40}

	r1, r2 := c.ProcessGameResult(p1, p2, "u1", 1.0)

	if r1.RatingChange <= 0 {
		t.Errorf("winner with lower rating gained %d, want > 0", r1.RatingChange)
	}
	if r2.RatingChange >= 0 {
		t.Errorf("loser gained %d, want < 0", r2.RatingChange)
	}
	if r1.NewRating != p1.Rating+r1.RatingChange {
		t.Errorf("inconsistent result: %+v", r1)
	}

	// Same K brackets on both sides: the transfer is symmetric up to rounding.
	if diff := r1.RatingChange + r2.RatingChange; diff < -1 || diff > 1 {
		t.Errorf("asymmetric transfer: %d and %d", r1.RatingChange, r2.RatingChange)
	}
}

func TestProcessGameResultDraw(t *testing.T) {
	c := calc()
	p1 := Player{UserID: "u1", Rating: 1500, GamesPlayed: 40}
	p2 := Player{UserID: "u2", Rating: 1100, GamesPlayed: 40}

	r1, r2 := c.ProcessGameResult(p1, p2, "", 1.0)

	// A draw moves the favorite down and the underdog up.
	if r1.RatingChange >= 0 {
		t.Errorf("favorite drawing gained %d, want < 0", r1.RatingChange)
	}
	if r2.RatingChange <= 0 {
		t.Errorf("underdog drawing lost %d, want > 0", r2.RatingChange)
	}
}

func TestDeltaScalesWithK(t *testing.T) {
	base := NewCalculator(Config{KFactor: 16, ProvisionalKFactor: 16})
	double := NewCalculator(Config{KFactor: 32, ProvisionalKFactor: 32})

	p1 := Player{UserID: "u1", Rating: 1400, GamesPlayed: 40}
	p2 := Player{UserID: "u2", Rating: 1400, GamesPlayed: 40}

	b1, _ := base.ProcessGameResult(p1, p2, "u1", 1.0)
	d1, _ := double.ProcessGameResult(p1, p2, "u1", 1.0)

	if d1.RatingChange != 2*b1.RatingChange {
		t.Errorf("doubling K gave %d vs %d", d1.RatingChange, b1.RatingChange)
	}
}

func TestTierMonotonic(t *testing.T) {
	prev := -1
	for rating := 0; rating <= 3200; rating += 25 {
		idx := TierIndex(TierByRating(rating).Tier)
		if idx < prev {
			t.Fatalf("tier order decreased at rating %d", rating)
		}
		prev = idx
	}
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		rating int
		tier   string
	}{
		{0, "BRONZE_5"},
		{199, "BRONZE_5"},
		{200, "BRONZE_4"},
		{1000, "SILVER_1"},
		{1099, "SILVER_1"},
		{1100, "GOLD_5"},
		{2400, "DIAMOND_2"},
		{2600, "MASTER"},
		{3000, "LEGEND"},
		{9999, "LEGEND"},
	}

	for _, tt := range tests {
		if got := TierByRating(tt.rating); got.Tier != tt.tier {
			t.Errorf("TierByRating(%d) = %s, want %s", tt.rating, got.Tier, tt.tier)
		}
	}
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor(1050)
	if p.Current != 50 || p.Max != 100 || p.Percentage != 50 || p.PointsToNext != 50 {
		t.Errorf("ProgressFor(1050) = %+v", p)
	}

	top := ProgressFor(3100)
	if top.Percentage != 100 || top.PointsToNext != 0 {
		t.Errorf("top band progress = %+v", top)
	}
}
