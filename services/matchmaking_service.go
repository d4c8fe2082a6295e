package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"numball/engine"
	"numball/store"
)

const (
	matchEntryHash   = "matchmaking:entries"
	matchQueuePrefix = "matchmaking:queue:"

	matchBaseTolerance   = 200
	matchToleranceStep   = 50
	matchToleranceWindow = 10 // seconds of waiting per widening step
	matchMaxTolerance    = 500

	matchScanInterval = time.Second
)

// queueEntry is the stored form of a waiting player.
type queueEntry struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Rating     int    `json:"rating"`
	Tier       string `json:"tier"`
	Level      int    `json:"level"`
	Mode       string `json:"mode"`
	Ranked     bool   `json:"ranked"`
	EnqueuedAt int64  `json:"enqueuedAt"` // unix millis
}

// MatchmakingService pairs queued players by rating. Entries live in the
// session store: a hash for lookup by user and one sorted set per
// (mode, ranked) bucket scored by rating, so candidate search is a range
// query.
type MatchmakingService struct {
	store    store.SessionStore
	users    UserStore
	notifier Notifier
	games    MatchStarter
}

func NewMatchmakingService(st store.SessionStore, users UserStore, notifier Notifier, games MatchStarter) *MatchmakingService {
	return &MatchmakingService{store: st, users: users, notifier: notifier, games: games}
}

// Enqueue puts a player into the queue for a mode. A player can wait in at
// most one queue at a time.
func (s *MatchmakingService) Enqueue(ctx context.Context, userID, mode string, ranked bool) error {
	if ok, _ := s.store.HExists(ctx, matchEntryHash, userID); ok {
		return ErrAlreadyQueued
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return ErrNotFound
	}
	cfg := engine.ConfigFor(engine.GameMode(mode))
	if user.Level < cfg.UnlockLevel {
		return ErrLevelTooLow
	}

	entry := queueEntry{
		UserID:     userID,
		Username:   user.Username,
		Rating:     user.Rating,
		Tier:       user.Tier,
		Level:      user.Level,
		Mode:       string(cfg.Mode),
		Ranked:     ranked,
		EnqueuedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.store.HSet(ctx, matchEntryHash, userID, string(data)); err != nil {
		return err
	}
	if err := s.store.ZAdd(ctx, queueKey(entry.Mode, ranked), store.ZMember{
		Member: userID,
		Score:  float64(entry.Rating),
	}); err != nil {
		return err
	}

	s.notifier.ToUser(userID, "matchmaking:searching", map[string]interface{}{
		"mode":   entry.Mode,
		"ranked": ranked,
	})
	log.Debug().Str("user", userID).Str("mode", entry.Mode).Bool("ranked", ranked).Msg("player queued")
	return nil
}

// Cancel removes a player from the queue and confirms it to them.
func (s *MatchmakingService) Cancel(ctx context.Context, userID string) error {
	entry, err := s.entryOf(ctx, userID)
	if err != nil {
		return ErrNotFound
	}
	s.remove(ctx, entry)
	s.notifier.ToUser(userID, "matchmaking:cancelled", map[string]interface{}{})
	return nil
}

// HandleDisconnect silently drops a disconnected player from the queue.
func (s *MatchmakingService) HandleDisconnect(ctx context.Context, userID string) {
	if entry, err := s.entryOf(ctx, userID); err == nil {
		s.remove(ctx, entry)
	}
}

// RunScanner pairs players once per second until the context ends.
func (s *MatchmakingService) RunScanner(ctx context.Context) {
	ticker := time.NewTicker(matchScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce walks every queue bucket, oldest waiter first, and pairs each
// with the closest-rated candidate inside the current tolerance. Tolerance
// widens with waiting time: 200 points plus 50 per 10 seconds, capped at
// 500.
func (s *MatchmakingService) ScanOnce(ctx context.Context) {
	keys, err := s.store.Keys(ctx, matchQueuePrefix)
	if err != nil {
		log.Error().Err(err).Msg("matchmaking scan failed to list queues")
		return
	}
	now := time.Now()
	for _, key := range keys {
		s.scanQueue(ctx, key, now)
	}
}

func (s *MatchmakingService) scanQueue(ctx context.Context, key string, now time.Time) {
	ids, err := s.store.ZRange(ctx, key, 0, -1)
	if err != nil || len(ids) == 0 {
		return
	}

	entries := make([]queueEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.entryOf(ctx, id)
		if err != nil {
			// Entry lookup and set membership can drift during
			// cancellation; drop the orphan.
			_ = s.store.ZRem(ctx, key, id)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EnqueuedAt < entries[j].EnqueuedAt
	})

	matched := make(map[string]bool)
	for _, entry := range entries {
		if matched[entry.UserID] {
			continue
		}
		waitSecs := int(now.UnixMilli()-entry.EnqueuedAt) / 1000
		tolerance := ToleranceFor(waitSecs)

		candidateIDs, err := s.store.ZRangeByScore(ctx, key,
			float64(entry.Rating-tolerance), float64(entry.Rating+tolerance))
		if err != nil {
			continue
		}

		var best *queueEntry
		for i := range entries {
			other := &entries[i]
			if other.UserID == entry.UserID || matched[other.UserID] {
				continue
			}
			if !containsID(candidateIDs, other.UserID) {
				continue
			}
			// Oldest compatible opponent wins; entries are already in
			// enqueue order.
			best = other
			break
		}

		if best == nil {
			depth, _ := s.store.ZCard(ctx, key)
			s.notifier.ToUser(entry.UserID, "matchmaking:statusUpdate", map[string]interface{}{
				"waitTime":       waitSecs,
				"tolerance":      tolerance,
				"status":         searchStatus(tolerance),
				"playersInQueue": depth,
				"estimatedTime":  estimatedWait(depth, waitSecs),
			})
			continue
		}

		matched[entry.UserID] = true
		matched[best.UserID] = true
		s.remove(ctx, entry)
		s.remove(ctx, *best)
		s.startMatch(ctx, entry, *best)
	}
}

func (s *MatchmakingService) startMatch(ctx context.Context, a, b queueEntry) {
	cfg := engine.ConfigFor(engine.GameMode(a.Mode))
	settings := RoomSettings{
		Mode:         a.Mode,
		TimeLimit:    cfg.TimeLimit,
		MaxAttempts:  cfg.MaxAttempts,
		HintsAllowed: cfg.HintsAllowed,
		ItemsAllowed: cfg.ItemsAllowed,
		IsRanked:     a.Ranked,
	}
	players := []PlayerInfo{
		{UserID: a.UserID, Username: a.Username, Rating: a.Rating, Tier: a.Tier, Level: a.Level, IsOnline: true},
		{UserID: b.UserID, Username: b.Username, Rating: b.Rating, Tier: b.Tier, Level: b.Level, IsOnline: true},
	}
	matchCode := "M-" + uuid.New().String()[:8]

	s.notifier.ToUser(a.UserID, "matchmaking:found", foundPayload(b, a.Mode, a.Ranked))
	s.notifier.ToUser(b.UserID, "matchmaking:found", foundPayload(a, a.Mode, a.Ranked))

	if _, err := s.games.StartGame(ctx, matchCode, players, a.Mode, settings); err != nil {
		log.Error().Err(err).Str("mode", a.Mode).Msg("failed to start matched game")
		s.notifier.ToUsers([]string{a.UserID, b.UserID}, "matchmaking:error", map[string]interface{}{
			"message": "failed to start the game",
		})
		return
	}
	log.Info().
		Str("player1", a.UserID).
		Str("player2", b.UserID).
		Str("mode", a.Mode).
		Int("ratingDiff", absInt(a.Rating-b.Rating)).
		Msg("match made")
}

func (s *MatchmakingService) entryOf(ctx context.Context, userID string) (queueEntry, error) {
	raw, err := s.store.HGet(ctx, matchEntryHash, userID)
	if err != nil {
		return queueEntry{}, err
	}
	var entry queueEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return queueEntry{}, err
	}
	return entry, nil
}

func (s *MatchmakingService) remove(ctx context.Context, entry queueEntry) {
	_ = s.store.HDel(ctx, matchEntryHash, entry.UserID)
	_ = s.store.ZRem(ctx, queueKey(entry.Mode, entry.Ranked), entry.UserID)
}

// ToleranceFor is the rating window allowed after waiting a given number of
// seconds.
func ToleranceFor(waitSeconds int) int {
	tolerance := matchBaseTolerance + matchToleranceStep*(waitSeconds/matchToleranceWindow)
	if tolerance > matchMaxTolerance {
		tolerance = matchMaxTolerance
	}
	return tolerance
}

func searchStatus(tolerance int) string {
	if tolerance > matchBaseTolerance {
		return "EXPANDING_SEARCH"
	}
	return "SEARCHING"
}

// estimatedWait guesses the seconds left until a match. A busier queue pairs
// sooner; an already-long wait lowers the estimate as the tolerance widens.
func estimatedWait(playersInQueue int64, waitedSeconds int) int {
	estimate := 60
	if playersInQueue > 1 {
		estimate = 15
	}
	estimate -= waitedSeconds
	if estimate < 5 {
		estimate = 5
	}
	return estimate
}

func foundPayload(opponent queueEntry, mode string, ranked bool) map[string]interface{} {
	return map[string]interface{}{
		"opponent": map[string]interface{}{
			"userId":   opponent.UserID,
			"username": opponent.Username,
			"rating":   opponent.Rating,
			"tier":     opponent.Tier,
			"level":    opponent.Level,
		},
		"mode":   mode,
		"ranked": ranked,
	}
}

func queueKey(mode string, ranked bool) string {
	return fmt.Sprintf("%s%s:%t", matchQueuePrefix, mode, ranked)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
