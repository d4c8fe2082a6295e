package engine

import "fmt"

// GameMode identifies one of the predefined rule sets.
type GameMode string

const (
	ModeClassic3   GameMode = "CLASSIC_3"
	ModeClassic4   GameMode = "CLASSIC_4"
	ModeClassic5   GameMode = "CLASSIC_5"
	ModeClassic6   GameMode = "CLASSIC_6"
	ModeDuplicate3 GameMode = "DUPLICATE_3"
	ModeDuplicate4 GameMode = "DUPLICATE_4"
	ModeSpeed3     GameMode = "SPEED_3"
	ModeSpeed4     GameMode = "SPEED_4"
	ModeBlitz      GameMode = "BLITZ"
	ModeMarathon   GameMode = "MARATHON"
	ModeReverse    GameMode = "REVERSE"
	ModeTeam       GameMode = "TEAM"
)

// ModeConfig is the immutable rule set for a game mode.
// TimeLimit and MaxAttempts of 0 mean unlimited.
type ModeConfig struct {
	Mode            GameMode `json:"mode"`
	DigitCount      int      `json:"digitCount"`
	AllowDuplicates bool     `json:"allowDuplicates"`
	TimeLimit       int      `json:"timeLimit"`   // seconds per turn
	MaxAttempts     int      `json:"maxAttempts"` // per player
	BasePoints      int      `json:"basePoints"`
	EloMultiplier   float64  `json:"eloMultiplier"`
	HintsAllowed    bool     `json:"hintsAllowed"`
	ItemsAllowed    bool     `json:"itemsAllowed"`
	Description     string   `json:"description"`
	UnlockLevel     int      `json:"unlockLevel"`
}

var modeConfigs = map[GameMode]ModeConfig{
	ModeClassic3: {
		Mode: ModeClassic3, DigitCount: 3, AllowDuplicates: false,
		TimeLimit: 30, MaxAttempts: 10, BasePoints: 100, EloMultiplier: 1.0,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "Classic 3-digit Number Baseball", UnlockLevel: 1,
	},
	ModeClassic4: {
		Mode: ModeClassic4, DigitCount: 4, AllowDuplicates: false,
		TimeLimit: 45, MaxAttempts: 12, BasePoints: 150, EloMultiplier: 1.2,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "Classic 4-digit Number Baseball", UnlockLevel: 5,
	},
	ModeClassic5: {
		Mode: ModeClassic5, DigitCount: 5, AllowDuplicates: false,
		TimeLimit: 60, MaxAttempts: 15, BasePoints: 200, EloMultiplier: 1.5,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "Classic 5-digit Number Baseball", UnlockLevel: 10,
	},
	ModeClassic6: {
		Mode: ModeClassic6, DigitCount: 6, AllowDuplicates: false,
		TimeLimit: 90, MaxAttempts: 20, BasePoints: 300, EloMultiplier: 2.0,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "Hardcore 6-digit Number Baseball", UnlockLevel: 20,
	},
	ModeDuplicate3: {
		Mode: ModeDuplicate3, DigitCount: 3, AllowDuplicates: true,
		TimeLimit: 30, MaxAttempts: 12, BasePoints: 120, EloMultiplier: 1.1,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "3-digit with Duplicates", UnlockLevel: 3,
	},
	ModeDuplicate4: {
		Mode: ModeDuplicate4, DigitCount: 4, AllowDuplicates: true,
		TimeLimit: 45, MaxAttempts: 15, BasePoints: 170, EloMultiplier: 1.3,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "4-digit with Duplicates", UnlockLevel: 8,
	},
	ModeSpeed3: {
		Mode: ModeSpeed3, DigitCount: 3, AllowDuplicates: false,
		TimeLimit: 10, MaxAttempts: 10, BasePoints: 150, EloMultiplier: 1.3,
		HintsAllowed: false, ItemsAllowed: false,
		Description: "Speed Mode - 10 seconds", UnlockLevel: 7,
	},
	ModeSpeed4: {
		Mode: ModeSpeed4, DigitCount: 4, AllowDuplicates: false,
		TimeLimit: 15, MaxAttempts: 12, BasePoints: 200, EloMultiplier: 1.5,
		HintsAllowed: false, ItemsAllowed: false,
		Description: "Speed Mode - 15 seconds", UnlockLevel: 12,
	},
	ModeBlitz: {
		Mode: ModeBlitz, DigitCount: 3, AllowDuplicates: false,
		TimeLimit: 5, MaxAttempts: 8, BasePoints: 200, EloMultiplier: 1.8,
		HintsAllowed: false, ItemsAllowed: false,
		Description: "Blitz - 5 seconds", UnlockLevel: 15,
	},
	ModeMarathon: {
		Mode: ModeMarathon, DigitCount: 4, AllowDuplicates: false,
		TimeLimit: 0, MaxAttempts: 0, BasePoints: 250, EloMultiplier: 1.0,
		HintsAllowed: true, ItemsAllowed: false,
		Description: "Marathon - Win with minimum attempts", UnlockLevel: 10,
	},
	ModeReverse: {
		Mode: ModeReverse, DigitCount: 4, AllowDuplicates: false,
		TimeLimit: 45, MaxAttempts: 12, BasePoints: 180, EloMultiplier: 1.4,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "Reverse - Opponent sets the number", UnlockLevel: 18,
	},
	ModeTeam: {
		Mode: ModeTeam, DigitCount: 4, AllowDuplicates: false,
		TimeLimit: 60, MaxAttempts: 16, BasePoints: 200, EloMultiplier: 1.2,
		HintsAllowed: true, ItemsAllowed: true,
		Description: "Team Battle 2vs2", UnlockLevel: 15,
	},
}

// ConfigFor returns the mode config for the given mode identifier.
// Unknown modes fall back to CLASSIC_4, matching the historical lookup.
func ConfigFor(mode GameMode) ModeConfig {
	if cfg, ok := modeConfigs[mode]; ok {
		return cfg
	}
	return modeConfigs[ModeClassic4]
}

// LookupMode returns the config for mode, reporting whether the mode exists.
func LookupMode(mode GameMode) (ModeConfig, bool) {
	cfg, ok := modeConfigs[mode]
	return cfg, ok
}

// AllModes returns every registered mode config.
func AllModes() []ModeConfig {
	out := make([]ModeConfig, 0, len(modeConfigs))
	for _, cfg := range modeConfigs {
		out = append(out, cfg)
	}
	return out
}

// ValidateModeConfigs checks the mode table for internal consistency.
// Called once at startup so a bad entry fails fast instead of surfacing
// mid-game.
func ValidateModeConfigs() error {
	for mode, cfg := range modeConfigs {
		if cfg.Mode != mode {
			return fmt.Errorf("mode %s: config declares mode %s", mode, cfg.Mode)
		}
		if cfg.DigitCount < 3 || cfg.DigitCount > 6 {
			return fmt.Errorf("mode %s: digit count %d out of range [3,6]", mode, cfg.DigitCount)
		}
		if !cfg.AllowDuplicates && cfg.DigitCount > 10 {
			return fmt.Errorf("mode %s: %d unique digits impossible", mode, cfg.DigitCount)
		}
		if cfg.TimeLimit < 0 || cfg.MaxAttempts < 0 {
			return fmt.Errorf("mode %s: negative time limit or attempt cap", mode)
		}
		if cfg.BasePoints <= 0 || cfg.EloMultiplier <= 0 {
			return fmt.Errorf("mode %s: non-positive reward or elo multiplier", mode)
		}
		if cfg.UnlockLevel < 1 {
			return fmt.Errorf("mode %s: unlock level %d below 1", mode, cfg.UnlockLevel)
		}
	}
	return nil
}
