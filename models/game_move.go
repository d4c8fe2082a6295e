package models

import (
	"time"

	"gorm.io/gorm"
)

type GameMove struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	GameID     string         `json:"game_id" gorm:"index;not null"`
	PlayerID   string         `json:"player_id" gorm:"index;not null"`
	TurnNumber int            `json:"turn_number" gorm:"not null"`
	Guess      string         `json:"guess" gorm:"not null"`
	Strikes    int            `json:"strikes" gorm:"not null"`
	Balls      int            `json:"balls" gorm:"not null"`
	TimeSpent  int            `json:"time_spent" gorm:"not null"` // seconds
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Game   Game `json:"game,omitempty"`
	Player User `json:"player,omitempty" gorm:"foreignKey:PlayerID"`
}
