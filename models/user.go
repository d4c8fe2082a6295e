package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID            string         `json:"id" gorm:"primaryKey"`
	Email         string         `json:"email" gorm:"uniqueIndex;not null"`
	Username      string         `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash  string         `json:"-" gorm:"not null"`
	AvatarURL     string         `json:"avatar_url"`
	Rating        int            `json:"rating" gorm:"not null;default:1000"`
	Tier          string         `json:"tier" gorm:"not null;default:'SILVER_1'"`
	Level         int            `json:"level" gorm:"not null;default:1"`
	Exp           int            `json:"exp" gorm:"not null;default:0"`
	Coins         int            `json:"coins" gorm:"not null;default:500"`
	Gems          int            `json:"gems" gorm:"not null;default:0"`
	GamesPlayed   int            `json:"games_played" gorm:"not null;default:0"`
	GamesWon      int            `json:"games_won" gorm:"not null;default:0"`
	GamesLost     int            `json:"games_lost" gorm:"not null;default:0"`
	GamesDraw     int            `json:"games_draw" gorm:"not null;default:0"`
	WinStreak     int            `json:"win_streak" gorm:"not null;default:0"`
	MaxWinStreak  int            `json:"max_win_streak" gorm:"not null;default:0"`
	TotalPlayTime int            `json:"total_play_time" gorm:"not null;default:0"` // seconds
	IsBanned      bool           `json:"-" gorm:"not null;default:false"`
	BanExpiresAt  *time.Time     `json:"-"`
	IsOnline      bool           `json:"is_online" gorm:"not null;default:false"`
	LastOnlineAt  *time.Time     `json:"last_online_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
