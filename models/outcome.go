package models

// GameOutcome captures everything settlement writes to one user record.
// Rating fields apply only when Ranked is set.
type GameOutcome struct {
	UserID       string
	Won          bool
	Draw         bool
	Ranked       bool
	NewRating    int
	NewTier      string
	CoinsEarned  int
	ExpEarned    int
	PlayDuration int // seconds
}
