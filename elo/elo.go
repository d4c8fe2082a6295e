// Package elo implements the rating calculation and tier lookup used for
// ranked games.
package elo

import "math"

// Config bounds the rating system. Zero values are replaced by defaults.
type Config struct {
	KFactor            int
	MinRating          int
	MaxRating          int
	ProvisionalGames   int
	ProvisionalKFactor int
}

// DefaultConfig mirrors the production rating parameters.
var DefaultConfig = Config{
	KFactor:            32,
	MinRating:          100,
	MaxRating:          3000,
	ProvisionalGames:   10,
	ProvisionalKFactor: 64,
}

// Player carries the rating inputs for one side of a game.
type Player struct {
	UserID      string
	Rating      int
	GamesPlayed int
}

// Result is one side's settled outcome.
type Result struct {
	UserID       string `json:"userId"`
	NewRating    int    `json:"newRating"`
	RatingChange int    `json:"ratingChange"`
}

// Calculator applies the ELO update rules.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a calculator with cfg, filling zero fields from
// DefaultConfig.
func NewCalculator(cfg Config) *Calculator {
	if cfg.KFactor == 0 {
		cfg.KFactor = DefaultConfig.KFactor
	}
	if cfg.MinRating == 0 {
		cfg.MinRating = DefaultConfig.MinRating
	}
	if cfg.MaxRating == 0 {
		cfg.MaxRating = DefaultConfig.MaxRating
	}
	if cfg.ProvisionalGames == 0 {
		cfg.ProvisionalGames = DefaultConfig.ProvisionalGames
	}
	if cfg.ProvisionalKFactor == 0 {
		cfg.ProvisionalKFactor = DefaultConfig.ProvisionalKFactor
	}
	return &Calculator{cfg: cfg}
}

// ExpectedScore is the standard logistic expectation for player a against b.
func (c *Calculator) ExpectedScore(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// KFactor picks the adjustment rate for a player: the amplified provisional
// rate while below the games threshold, dampened at high ratings, scaled by
// the mode multiplier.
func (c *Calculator) KFactor(p Player, modeMultiplier float64) float64 {
	base := float64(c.cfg.KFactor)
	if p.GamesPlayed < c.cfg.ProvisionalGames {
		base = float64(c.cfg.ProvisionalKFactor)
	}

	k := base
	switch {
	case p.Rating > 2400:
		k = base * 0.5
	case p.Rating > 2000:
		k = base * 0.75
	}

	return k * modeMultiplier
}

// NewRating settles one side given its score (1 win, 0.5 draw, 0 loss). The
// result is clamped to the configured rating bounds.
func (c *Calculator) NewRating(p, opponent Player, score, modeMultiplier float64) (newRating, change int) {
	expected := c.ExpectedScore(p.Rating, opponent.Rating)
	k := c.KFactor(p, modeMultiplier)

	change = int(math.Round(k * (score - expected)))
	newRating = p.Rating + change

	if newRating < c.cfg.MinRating {
		newRating = c.cfg.MinRating
	}
	if newRating > c.cfg.MaxRating {
		newRating = c.cfg.MaxRating
	}
	return newRating, change
}

// ProcessGameResult settles both sides of a game. winnerID empty means a
// draw. Each side's K-factor uses its own rating bracket and provisional
// status.
func (c *Calculator) ProcessGameResult(p1, p2 Player, winnerID string, modeMultiplier float64) (Result, Result) {
	isDraw := winnerID == ""
	p1Won := winnerID == p1.UserID

	p1Score, p2Score := 0.5, 0.5
	if !isDraw {
		if p1Won {
			p1Score, p2Score = 1, 0
		} else {
			p1Score, p2Score = 0, 1
		}
	}

	r1, c1 := c.NewRating(p1, p2, p1Score, modeMultiplier)
	r2, c2 := c.NewRating(p2, p1, p2Score, modeMultiplier)

	return Result{UserID: p1.UserID, NewRating: r1, RatingChange: c1},
		Result{UserID: p2.UserID, NewRating: r2, RatingChange: c2}
}
