// Package repository implements the persistence interfaces the services
// consume, on top of gorm.
package repository

import (
	"context"
	"errors"

	"numball/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("repository: not found")

// ErrInsufficientCoins is returned by SpendCoins when the balance is too low.
var ErrInsufficientCoins = errors.New("repository: insufficient coins")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// SpendCoins deducts amount atomically; the conditional update keeps the
// balance from going negative under concurrent spends.
func (r *UserRepository) SpendCoins(ctx context.Context, id string, amount int) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND coins >= ?", id, amount).
		Update("coins", gorm.Expr("coins - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientCoins
	}
	return nil
}

// AddRewards credits coins and experience, applying level-ups at the
// 100-exp-per-level threshold.
func (r *UserRepository) AddRewards(ctx context.Context, id string, coins, exp int) (leveledUp bool, newLevel int, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return err
		}

		newExp := user.Exp + exp
		level := user.Level
		for newExp >= level*100 {
			newExp -= level * 100
			level++
		}
		leveledUp = level > user.Level
		newLevel = level

		return tx.Model(&user).Updates(map[string]interface{}{
			"coins": gorm.Expr("coins + ?", coins),
			"exp":   newExp,
			"level": level,
		}).Error
	})
	return leveledUp, newLevel, err
}

// ApplyGameOutcome updates one user's rating, stats and streaks after a game.
func (r *UserRepository) ApplyGameOutcome(ctx context.Context, o models.GameOutcome) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", o.UserID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"games_played":    gorm.Expr("games_played + 1"),
			"total_play_time": gorm.Expr("total_play_time + ?", o.PlayDuration),
		}

		switch {
		case o.Won:
			updates["games_won"] = gorm.Expr("games_won + 1")
			updates["win_streak"] = user.WinStreak + 1
			if user.WinStreak+1 > user.MaxWinStreak {
				updates["max_win_streak"] = user.WinStreak + 1
			}
		case o.Draw:
			updates["games_draw"] = gorm.Expr("games_draw + 1")
			updates["win_streak"] = 0
		default:
			updates["games_lost"] = gorm.Expr("games_lost + 1")
			updates["win_streak"] = 0
		}

		if o.Ranked {
			updates["rating"] = o.NewRating
			updates["tier"] = o.NewTier
		}

		return tx.Model(&user).Updates(updates).Error
	})
}

func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online":      online,
			"last_online_at": gorm.Expr("NOW()"),
		}).Error
}

// Leaderboard lists users by descending rating. Only players with at least
// minGames completed games are ranked.
func (r *UserRepository) Leaderboard(ctx context.Context, minGames, limit, offset int) ([]models.User, int64, error) {
	var (
		users []models.User
		total int64
	)

	q := r.db.WithContext(ctx).Model(&models.User{}).Where("games_played >= ?", minGames)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("rating DESC").Limit(limit).Offset(offset).Find(&users).Error
	return users, total, err
}

// RankOf returns the 1-based global rank of a user by rating.
func (r *UserRepository) RankOf(ctx context.Context, id string) (int64, error) {
	user, err := r.GetUser(ctx, id)
	if err != nil {
		return 0, err
	}

	var above int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("rating > ?", user.Rating).Count(&above).Error; err != nil {
		return 0, err
	}
	return above + 1, nil
}
