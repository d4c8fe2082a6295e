package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"numball/models"
	"numball/repository"
	"numball/store"
)

const (
	rankingCacheTTL     = 60 * time.Second
	rankingMinGames     = 10
	rankingDefaultLimit = 50
)

// UserService serves profiles and the global ranking. Ranking pages are
// cached in the session store because the leaderboard query walks the whole
// user table.
type UserService struct {
	users *repository.UserRepository
	store store.SessionStore
}

func NewUserService(users *repository.UserRepository, st store.SessionStore) *UserService {
	return &UserService{users: users, store: st}
}

// Profile is the public view of an account.
type Profile struct {
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	Rating      int     `json:"rating"`
	Tier        string  `json:"tier"`
	Level       int     `json:"level"`
	Exp         int     `json:"exp"`
	Coins       int     `json:"coins"`
	Gems        int     `json:"gems"`
	GamesPlayed int     `json:"gamesPlayed"`
	GamesWon    int     `json:"gamesWon"`
	GamesLost   int     `json:"gamesLost"`
	GamesDraw   int     `json:"gamesDraw"`
	WinRate     float64 `json:"winRate"`
	WinStreak   int     `json:"winStreak"`
	MaxStreak   int     `json:"maxWinStreak"`
	IsOnline    bool    `json:"isOnline"`
}

// RankingEntry is one row of the global leaderboard.
type RankingEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	Rating      int     `json:"rating"`
	Tier        string  `json:"tier"`
	GamesPlayed int     `json:"gamesPlayed"`
	WinRate     float64 `json:"winRate"`
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, ErrNotFound
	}
	p := profileOf(user)
	return &p, nil
}

// GlobalRanking returns one page of the leaderboard. Only accounts with at
// least 10 finished games are ranked. Pages stay cached for a minute.
func (s *UserService) GlobalRanking(ctx context.Context, page, limit int) ([]RankingEntry, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = rankingDefaultLimit
	}

	cacheKey := fmt.Sprintf("ranking:global:%d:%d", page, limit)
	if cached, err := s.store.Get(ctx, cacheKey); err == nil {
		var entries []RankingEntry
		if json.Unmarshal([]byte(cached), &entries) == nil {
			return entries, nil
		}
	}

	users, _, err := s.users.Leaderboard(ctx, rankingMinGames, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	entries := make([]RankingEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, RankingEntry{
			Rank:        (page-1)*limit + i + 1,
			UserID:      u.ID,
			Username:    u.Username,
			Rating:      u.Rating,
			Tier:        u.Tier,
			GamesPlayed: u.GamesPlayed,
			WinRate:     winRate(&u),
		})
	}

	if data, err := json.Marshal(entries); err == nil {
		if err := s.store.Set(ctx, cacheKey, string(data), rankingCacheTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache ranking page")
		}
	}
	return entries, nil
}

// MyRank returns the caller's position on the global ranking, or 0 while
// they have fewer than 10 finished games.
func (s *UserService) MyRank(ctx context.Context, userID string) (int64, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return 0, ErrNotFound
	}
	if user.GamesPlayed < rankingMinGames {
		return 0, nil
	}
	return s.users.RankOf(ctx, user.ID)
}

func profileOf(u *models.User) Profile {
	return Profile{
		UserID:      u.ID,
		Username:    u.Username,
		Rating:      u.Rating,
		Tier:        u.Tier,
		Level:       u.Level,
		Exp:         u.Exp,
		Coins:       u.Coins,
		Gems:        u.Gems,
		GamesPlayed: u.GamesPlayed,
		GamesWon:    u.GamesWon,
		GamesLost:   u.GamesLost,
		GamesDraw:   u.GamesDraw,
		WinRate:     winRate(u),
		WinStreak:   u.WinStreak,
		MaxStreak:   u.MaxWinStreak,
		IsOnline:    u.IsOnline,
	}
}

func winRate(u *models.User) float64 {
	if u.GamesPlayed == 0 {
		return 0
	}
	return float64(u.GamesWon) / float64(u.GamesPlayed) * 100
}

func playerInfoOf(u *models.User) PlayerInfo {
	return PlayerInfo{
		UserID:   u.ID,
		Username: u.Username,
		Rating:   u.Rating,
		Tier:     u.Tier,
		Level:    u.Level,
		IsOnline: true,
	}
}
