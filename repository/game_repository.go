package repository

import (
	"context"
	"errors"

	"numball/models"

	"gorm.io/gorm"
)

type GameRepository struct {
	db *gorm.DB
}

func NewGameRepository(db *gorm.DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) CreateGame(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).Create(game).Error
}

func (r *GameRepository) UpdateGame(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Game{}).Where("id = ?", id).Updates(fields).Error
}

func (r *GameRepository) CreateMove(ctx context.Context, move *models.GameMove) error {
	return r.db.WithContext(ctx).Create(move).Error
}

func (r *GameRepository) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).
		Preload("Player1").
		Preload("Player2").
		Preload("Moves", func(db *gorm.DB) *gorm.DB {
			return db.Order("turn_number ASC")
		}).
		First(&game, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &game, nil
}

// ListUserGames returns a user's finished games, newest first.
func (r *GameRepository) ListUserGames(ctx context.Context, userID, mode string, limit, offset int) ([]models.Game, int64, error) {
	var (
		games []models.Game
		total int64
	)

	q := r.db.WithContext(ctx).Model(&models.Game{}).
		Where("(player1_id = ? OR player2_id = ?) AND status = ?", userID, userID, "FINISHED")
	if mode != "" {
		q = q.Where("mode = ?", mode)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Player1").Preload("Player2").
		Order("ended_at DESC").Limit(limit).Offset(offset).Find(&games).Error
	return games, total, err
}

// CountMoves returns the number of moves a player made in a game.
func (r *GameRepository) CountMoves(ctx context.Context, gameID, playerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.GameMove{}).
		Where("game_id = ? AND player_id = ?", gameID, playerID).Count(&n).Error
	return n, err
}
