package engine

import (
	"strings"
	"testing"
)

func classic4() ModeConfig { return ConfigFor(ModeClassic4) }

func TestScoreFixtures(t *testing.T) {
	tests := []struct {
		secret, guess  string
		strikes, balls int
	}{
		{"1234", "5678", 0, 0},
		{"1234", "1243", 2, 2},
		{"1234", "1234", 4, 0},
		{"1234", "4321", 0, 4},
		{"123", "321", 1, 2},
		{"567", "575", 1, 2},
	}

	for _, tt := range tests {
		res := Score(tt.secret, tt.guess)
		if res.Strikes != tt.strikes || res.Balls != tt.balls {
			t.Errorf("Score(%q, %q) = %dS %dB, want %dS %dB",
				tt.secret, tt.guess, res.Strikes, res.Balls, tt.strikes, tt.balls)
		}
	}
}

func TestScoreSelfIsAllStrikes(t *testing.T) {
	for _, s := range []string{"012", "1234", "98765", "013579"} {
		res := Score(s, s)
		if res.Strikes != len(s) || res.Balls != 0 {
			t.Errorf("Score(%q, %q) = %+v, want %d strikes 0 balls", s, s, res, len(s))
		}
	}
}

func TestScoreDuplicateMembershipBehavior(t *testing.T) {
	// The membership-based ball count credits each guess digit that appears
	// anywhere in the secret. With repeated secret digits this over-counts
	// relative to multiset matching; that behavior is intentional.
	res := Score("1122", "2211")
	if res.Strikes != 0 || res.Balls != 4 {
		t.Errorf("Score(1122, 2211) = %+v, want 0S 4B", res)
	}
}

func TestGenerateSecretUniqueDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := GenerateSecret(6, false)
		if len(s) != 6 {
			t.Fatalf("secret %q has length %d, want 6", s, len(s))
		}
		seen := map[byte]bool{}
		for j := 0; j < len(s); j++ {
			if s[j] < '0' || s[j] > '9' {
				t.Fatalf("secret %q contains non-digit", s)
			}
			if seen[s[j]] {
				t.Fatalf("secret %q repeats digit %c", s, s[j])
			}
			seen[s[j]] = true
		}
	}
}

func TestGenerateSecretWithDuplicates(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := GenerateSecret(4, true)
		if len(s) != 4 {
			t.Fatalf("secret %q has length %d, want 4", s, len(s))
		}
		for j := 0; j < len(s); j++ {
			if s[j] < '0' || s[j] > '9' {
				t.Fatalf("secret %q contains non-digit", s)
			}
		}
	}
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	// Wrong length AND non-numeric must both be reported.
	res := Validate("12a", classic4())
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors %v, want 2", len(res.Errors), res.Errors)
	}
}

func TestValidateRules(t *testing.T) {
	cfg := classic4()
	dup := ConfigFor(ModeDuplicate4)

	tests := []struct {
		name      string
		candidate string
		cfg       ModeConfig
		valid     bool
	}{
		{"valid", "1234", cfg, true},
		{"empty", "", cfg, false},
		{"whitespace", "   ", cfg, false},
		{"short", "123", cfg, false},
		{"long", "12345", cfg, false},
		{"alpha", "abcd", cfg, false},
		{"duplicate disallowed", "1123", cfg, false},
		{"duplicate allowed", "1123", dup, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.candidate, tt.cfg)
			if res.Valid != tt.valid {
				t.Errorf("Validate(%q) valid=%v errors=%v, want valid=%v",
					tt.candidate, res.Valid, res.Errors, tt.valid)
			}
			if !res.Valid && len(res.Errors) == 0 {
				t.Error("invalid result carries no errors")
			}
		})
	}
}

func TestPossibilitiesContainTrueSecret(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)
	secret := "427"

	var history []GuessRecord
	for _, guess := range []string{"123", "456", "789", "012"} {
		res := Score(secret, guess)
		history = append(history, GuessRecord{Guess: guess, Strikes: res.Strikes, Balls: res.Balls})

		possibilities := Possibilities(history, cfg)
		found := false
		for _, p := range possibilities {
			if p == secret {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("secret %q absent from possibilities after %d guesses", secret, len(history))
		}
	}
}

func TestPossibilitiesMonotonic(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)
	secret := "815"

	h1 := []GuessRecord{scored(secret, "123")}
	h2 := append(append([]GuessRecord{}, h1...), scored(secret, "456"))

	p1 := toSet(Possibilities(h1, cfg))
	p2 := Possibilities(h2, cfg)

	if len(p2) > len(p1) {
		t.Fatalf("possibility set grew: %d -> %d", len(p1), len(p2))
	}
	for _, p := range p2 {
		if !p1[p] {
			t.Fatalf("%q consistent with h2 but not h1", p)
		}
	}
}

func TestPossibilitiesFullSpaceSize(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)
	if n := len(Possibilities(nil, cfg)); n != 720 {
		t.Errorf("3 unique digits: %d possibilities, want 720", n)
	}
	dup := ConfigFor(ModeDuplicate3)
	if n := len(Possibilities(nil, dup)); n != 1000 {
		t.Errorf("3 digits with duplicates: %d possibilities, want 1000", n)
	}
}

func TestRecommendNextGuess(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)
	secret := "309"

	// Contradictory history yields no recommendation.
	contradictory := []GuessRecord{
		{Guess: "123", Strikes: 3, Balls: 0},
		{Guess: "456", Strikes: 3, Balls: 0},
	}
	if got := RecommendNextGuess(contradictory, cfg); got != "" {
		t.Errorf("contradictory history recommended %q, want empty", got)
	}

	// The recommendation is always a remaining possibility.
	history := []GuessRecord{scored(secret, "123"), scored(secret, "045")}
	rec := RecommendNextGuess(history, cfg)
	if rec == "" {
		t.Fatal("no recommendation for satisfiable history")
	}
	possibilities := toSet(Possibilities(history, cfg))
	if !possibilities[rec] {
		t.Errorf("recommendation %q is not a remaining possibility", rec)
	}

	// A single remaining possibility is returned directly.
	narrowed := history
	for _, p := range Possibilities(history, cfg) {
		if p == secret {
			continue
		}
		narrowed = append(narrowed, scored(secret, p))
		if len(Possibilities(narrowed, cfg)) == 1 {
			break
		}
	}
	if got := RecommendNextGuess(narrowed, cfg); got != secret {
		if remaining := Possibilities(narrowed, cfg); len(remaining) == 1 {
			t.Errorf("single possibility %q, recommended %q", remaining[0], got)
		}
	}
}

func TestDigitProbabilities(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)

	probs := DigitProbabilities(nil, cfg)
	for d := 0; d <= 9; d++ {
		key := string(rune('0' + d))
		// Without history every digit appears in 3/10 of unique-digit secrets.
		if probs[key] != 30 {
			t.Errorf("digit %s probability %d, want 30", key, probs[key])
		}
	}

	// Impossible history zeroes everything.
	empty := DigitProbabilities([]GuessRecord{
		{Guess: "123", Strikes: 3, Balls: 0},
		{Guess: "456", Strikes: 3, Balls: 0},
	}, cfg)
	for key, v := range empty {
		if v != 0 {
			t.Errorf("digit %s probability %d with empty possibility set", key, v)
		}
	}
}

func TestPositionProbabilitiesSumPerPosition(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)
	probs := PositionProbabilities(nil, cfg)
	if len(probs) != 3 {
		t.Fatalf("got %d positions, want 3", len(probs))
	}
	for pos, byDigit := range probs {
		for digit, pct := range byDigit {
			if pct != 10 {
				t.Errorf("position %d digit %s: %d%%, want 10%%", pos, digit, pct)
			}
		}
	}
}

func scored(secret, guess string) GuessRecord {
	res := Score(secret, guess)
	return GuessRecord{Guess: guess, Strikes: res.Strikes, Balls: res.Balls}
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

func TestValidateModeConfigs(t *testing.T) {
	if err := ValidateModeConfigs(); err != nil {
		t.Fatalf("mode table invalid: %v", err)
	}
	for _, cfg := range AllModes() {
		if cfg.DigitCount < 3 || cfg.DigitCount > 6 {
			t.Errorf("mode %s digit count %d", cfg.Mode, cfg.DigitCount)
		}
	}
	if len(AllModes()) != 12 {
		t.Errorf("expected 12 modes, got %d", len(AllModes()))
	}
}

func TestGenerateHintLevels(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)

	h1 := GenerateHint(nil, cfg, HintPossibilityCount)
	if h1.Type != HintTypePossibilityCount || h1.Cost != 50 {
		t.Errorf("level 1 hint: %+v", h1)
	}
	if !strings.Contains(h1.Content, "720") {
		t.Errorf("level 1 content %q should report 720 possibilities", h1.Content)
	}

	h2 := GenerateHint(nil, cfg, HintPosition)
	if h2.Type != HintTypePosition || h2.Cost != 100 {
		t.Errorf("level 2 hint: %+v", h2)
	}

	h3 := GenerateHint(nil, cfg, HintContainsDigit)
	if h3.Type != HintTypeContainsDigit || h3.Cost != 200 {
		t.Errorf("level 3 hint: %+v", h3)
	}
}

func TestGenerateHintNoPossibilities(t *testing.T) {
	cfg := ConfigFor(ModeClassic3)
	contradictory := []GuessRecord{
		{Guess: "123", Strikes: 3, Balls: 0},
		{Guess: "456", Strikes: 3, Balls: 0},
	}

	for _, level := range []int{HintPosition, HintContainsDigit} {
		h := GenerateHint(contradictory, cfg, level)
		if h.Cost != 0 {
			t.Errorf("level %d with no possibilities: cost %d, want 0", level, h.Cost)
		}
	}
}
