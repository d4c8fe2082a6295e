// Package engine implements the number baseball rules: secret generation,
// strike/ball scoring, guess validation and possibility analysis. Everything
// here is pure; the game service layers timers and state on top.
package engine

import (
	"math/rand"
	"strings"
)

const digits = "0123456789"

// GuessRecord is one scored guess in a player's history.
type GuessRecord struct {
	Guess      string `json:"guess"`
	Strikes    int    `json:"strikes"`
	Balls      int    `json:"balls"`
	TurnNumber int    `json:"turnNumber"`
	TimeSpent  int    `json:"timeSpent"` // seconds
	Timestamp  int64  `json:"timestamp"` // unix millis
}

// ScoreResult holds the strike/ball outcome of scoring a guess.
type ScoreResult struct {
	Strikes int `json:"strikes"`
	Balls   int `json:"balls"`
}

// ValidationResult accumulates every rule a candidate violates.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// GenerateSecret produces a random secret of digitCount digits. When
// duplicates are disallowed the digit alphabet is shuffled and truncated,
// which guarantees uniqueness without rejection sampling.
func GenerateSecret(digitCount int, allowDuplicates bool) string {
	if allowDuplicates {
		var b strings.Builder
		for i := 0; i < digitCount; i++ {
			b.WriteByte(digits[rand.Intn(10)])
		}
		return b.String()
	}

	shuffled := []byte(digits)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return string(shuffled[:digitCount])
}

// Score counts strikes (digit and position match) and balls (digit present
// elsewhere in the secret). Balls use a per-position membership test against
// the secret, so a repeated secret digit can credit more than one ball. That
// matches the long-standing behavior of the duplicate modes and is relied on
// by Possibilities, which filters with this same function.
func Score(secret, guess string) ScoreResult {
	var res ScoreResult
	n := len(secret)
	if len(guess) < n {
		n = len(guess)
	}
	for i := 0; i < n; i++ {
		if secret[i] == guess[i] {
			res.Strikes++
		} else if strings.IndexByte(secret, guess[i]) >= 0 {
			res.Balls++
		}
	}
	return res
}

// Validate checks a candidate guess or secret against the mode rules and
// returns every violated rule, not just the first.
func Validate(candidate string, cfg ModeConfig) ValidationResult {
	var errs []string

	if strings.TrimSpace(candidate) == "" {
		return ValidationResult{Valid: false, Errors: []string{"a number is required"}}
	}

	if len(candidate) != cfg.DigitCount {
		errs = append(errs, "the number must be exactly "+itoa(cfg.DigitCount)+" digits")
	}

	numeric := true
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			numeric = false
			break
		}
	}
	if !numeric {
		errs = append(errs, "only digits are allowed")
	}

	if !cfg.AllowDuplicates && len(candidate) == cfg.DigitCount {
		seen := [10]bool{}
		for i := 0; i < len(candidate); i++ {
			d := candidate[i]
			if d < '0' || d > '9' {
				continue
			}
			if seen[d-'0'] {
				errs = append(errs, "duplicate digits are not allowed")
				break
			}
			seen[d-'0'] = true
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Possibilities returns every candidate secret consistent with the guess
// history. The candidate space is 10^n with duplicates or 10!/(10-n)!
// without; fine for n <= 6.
func Possibilities(history []GuessRecord, cfg ModeConfig) []string {
	all := enumerate(cfg.DigitCount, cfg.AllowDuplicates)
	if len(history) == 0 {
		return all
	}

	out := all[:0]
	for _, candidate := range all {
		ok := true
		for _, h := range history {
			res := Score(candidate, h.Guess)
			if res.Strikes != h.Strikes || res.Balls != h.Balls {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, candidate)
		}
	}
	return out
}

func enumerate(digitCount int, allowDuplicates bool) []string {
	var results []string
	buf := make([]byte, 0, digitCount)
	var used [10]bool

	var generate func()
	generate = func() {
		if len(buf) == digitCount {
			results = append(results, string(buf))
			return
		}
		for d := 0; d < 10; d++ {
			if !allowDuplicates && used[d] {
				continue
			}
			used[d] = true
			buf = append(buf, digits[d])
			generate()
			buf = buf[:len(buf)-1]
			used[d] = false
		}
	}
	generate()
	return results
}

// itoa avoids pulling strconv into the hot validation path for a
// single-digit count.
func itoa(n int) string {
	if n >= 0 && n <= 9 {
		return string(digits[n])
	}
	out := ""
	for n > 0 {
		out = string(digits[n%10]) + out
		n /= 10
	}
	return out
}
