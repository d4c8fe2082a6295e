package models

import (
	"time"

	"gorm.io/gorm"
)

type Game struct {
	ID                  string         `json:"id" gorm:"primaryKey"`
	RoomCode            string         `json:"room_code" gorm:"index;not null"`
	Mode                string         `json:"mode" gorm:"not null"`
	Status              string         `json:"status" gorm:"not null;default:'SETTING_NUMBERS'"` // SETTING_NUMBERS, IN_PROGRESS, FINISHED, ABANDONED
	Player1ID           string         `json:"player1_id" gorm:"index;not null"`
	Player2ID           string         `json:"player2_id" gorm:"index;not null"`
	Player1Secret       string         `json:"-"`
	Player2Secret       string         `json:"-"`
	TimeLimit           int            `json:"time_limit" gorm:"not null"`
	MaxAttempts         int            `json:"max_attempts" gorm:"not null"`
	HintsAllowed        bool           `json:"hints_allowed" gorm:"not null"`
	ItemsAllowed        bool           `json:"items_allowed" gorm:"not null"`
	IsRanked            bool           `json:"is_ranked" gorm:"not null;default:true"`
	WinnerID            *string        `json:"winner_id"`
	IsDraw              bool           `json:"is_draw" gorm:"not null;default:false"`
	WinReason           string         `json:"win_reason"`
	Player1RatingBefore int            `json:"player1_rating_before"`
	Player2RatingBefore int            `json:"player2_rating_before"`
	Player1RatingAfter  *int           `json:"player1_rating_after"`
	Player2RatingAfter  *int           `json:"player2_rating_after"`
	Player1RatingChange *int           `json:"player1_rating_change"`
	Player2RatingChange *int           `json:"player2_rating_change"`
	TotalDuration       int            `json:"total_duration"` // seconds
	StartedAt           *time.Time     `json:"started_at"`
	EndedAt             *time.Time     `json:"ended_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Player1 User       `json:"player1,omitempty" gorm:"foreignKey:Player1ID"`
	Player2 User       `json:"player2,omitempty" gorm:"foreignKey:Player2ID"`
	Moves   []GameMove `json:"moves,omitempty" gorm:"foreignKey:GameID"`
}
