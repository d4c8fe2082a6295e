package engine

import (
	"fmt"
	"math/rand"
)

// Hint levels and their coin costs.
const (
	HintPossibilityCount = 1
	HintPosition         = 2
	HintContainsDigit    = 3

	costPossibilityCount = 50
	costPosition         = 100
	costContainsDigit    = 200
)

// HintType tags the kind of information a hint carries.
type HintType string

const (
	HintTypePossibilityCount HintType = "POSSIBILITY_COUNT"
	HintTypePosition         HintType = "POSITION_HINT"
	HintTypeContainsDigit    HintType = "CONTAINS_DIGIT"
)

// Hint is the payload returned to the requesting player.
type Hint struct {
	Type    HintType `json:"type"`
	Content string   `json:"content"`
	Cost    int      `json:"cost"`
}

// GenerateHint derives a hint from the remaining possibility set.
//
// Level 1 reports the possibility count. Level 2 picks a random position and
// reports the most frequent digit there with its probability. Level 3 reveals
// a digit guaranteed to appear in the secret, taken from an arbitrary
// remaining candidate. An empty possibility set yields a zero-cost
// "cannot hint" result.
func GenerateHint(history []GuessRecord, cfg ModeConfig, level int) Hint {
	possibilities := Possibilities(history, cfg)

	switch level {
	case HintPossibilityCount:
		return Hint{
			Type:    HintTypePossibilityCount,
			Content: fmt.Sprintf("Remaining possibilities: %d", len(possibilities)),
			Cost:    costPossibilityCount,
		}

	case HintPosition:
		if len(possibilities) > 0 {
			pos := rand.Intn(cfg.DigitCount)
			var freq [10]int
			for _, p := range possibilities {
				freq[p[pos]-'0']++
			}
			best := 0
			for d := 1; d < 10; d++ {
				if freq[d] > freq[best] {
					best = d
				}
			}
			probability := int(float64(freq[best])/float64(len(possibilities))*100 + 0.5)
			return Hint{
				Type:    HintTypePosition,
				Content: fmt.Sprintf("Probability of %d at position %d: %d%%", best, pos+1, probability),
				Cost:    costPosition,
			}
		}

	case HintContainsDigit:
		if len(possibilities) > 0 {
			sample := possibilities[0]
			digit := sample[rand.Intn(len(sample))]
			return Hint{
				Type:    HintTypeContainsDigit,
				Content: fmt.Sprintf("The secret contains the digit %c", digit),
				Cost:    costContainsDigit,
			}
		}
	}

	return Hint{
		Type:    HintTypePossibilityCount,
		Content: "No hint available",
		Cost:    0,
	}
}

// RecommendNextGuess picks a next guess that tends to shrink the possibility
// set fastest. Returns "" when the history is contradictory (no possibility
// remains). With exactly one possibility left, that possibility is returned.
//
// Each of up to the first 50 remaining possibilities is tried as a candidate:
// the remaining possibilities are partitioned by the strike/ball outcome the
// candidate would produce, and the candidate with the smallest sum of squared
// bucket sizes wins. Ties keep the earliest candidate.
func RecommendNextGuess(history []GuessRecord, cfg ModeConfig) string {
	possibilities := Possibilities(history, cfg)

	if len(possibilities) == 0 {
		return ""
	}
	if len(possibilities) == 1 {
		return possibilities[0]
	}

	limit := len(possibilities)
	if limit > 50 {
		limit = 50
	}

	bestGuess := possibilities[0]
	bestScore := int(^uint(0) >> 1)

	for _, candidate := range possibilities[:limit] {
		buckets := make(map[ScoreResult]int)
		for _, possibility := range possibilities {
			buckets[Score(possibility, candidate)]++
		}

		score := 0
		for _, count := range buckets {
			score += count * count
		}

		if score < bestScore {
			bestScore = score
			bestGuess = candidate
		}
	}

	return bestGuess
}

// DigitProbabilities reports, per digit, the percentage of remaining
// possibilities containing that digit. Derived statistics for display only.
func DigitProbabilities(history []GuessRecord, cfg ModeConfig) map[string]int {
	possibilities := Possibilities(history, cfg)
	probs := make(map[string]int, 10)

	for d := 0; d < 10; d++ {
		digit := digits[d]
		if len(possibilities) == 0 {
			probs[string(digit)] = 0
			continue
		}
		containing := 0
		for _, p := range possibilities {
			for i := 0; i < len(p); i++ {
				if p[i] == digit {
					containing++
					break
				}
			}
		}
		probs[string(digit)] = int(float64(containing)/float64(len(possibilities))*100 + 0.5)
	}
	return probs
}

// PositionProbabilities reports, per position and digit, the percentage of
// remaining possibilities with that digit at that position.
func PositionProbabilities(history []GuessRecord, cfg ModeConfig) map[int]map[string]int {
	possibilities := Possibilities(history, cfg)
	probs := make(map[int]map[string]int, cfg.DigitCount)

	for pos := 0; pos < cfg.DigitCount; pos++ {
		probs[pos] = make(map[string]int, 10)
		for d := 0; d < 10; d++ {
			digit := digits[d]
			if len(possibilities) == 0 {
				probs[pos][string(digit)] = 0
				continue
			}
			matching := 0
			for _, p := range possibilities {
				if p[pos] == digit {
					matching++
				}
			}
			probs[pos][string(digit)] = int(float64(matching)/float64(len(possibilities))*100 + 0.5)
		}
	}
	return probs
}
