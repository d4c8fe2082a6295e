// Package services holds the coordinators: rooms, matchmaking, game
// sessions, users and the websocket hub. Coordinators depend on narrow
// interfaces so they can be exercised without a live database or socket
// layer.
package services

import (
	"context"
	"errors"

	"numball/models"
)

// Domain rejections surfaced to the originating client. Handlers and the hub
// translate these into *:error events or HTTP rejections; anything else is
// treated as an internal fault.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotYourTurn       = errors.New("it is not your turn")
	ErrGameNotInProgress = errors.New("the game is not in progress")
	ErrRoomNotWaiting    = errors.New("the game has already started")
	ErrRoomFull          = errors.New("the room is full")
	ErrWrongPassword     = errors.New("wrong room password")
	ErrAlreadyInRoom     = errors.New("already in another room")
	ErrAlreadyQueued     = errors.New("already waiting for a match")
	ErrNotHost           = errors.New("only the host may do that")
	ErrNotEnoughPlayers  = errors.New("at least 2 players are required")
	ErrPlayersNotReady   = errors.New("all players must be ready")
	ErrHintsNotAllowed   = errors.New("hints are not allowed in this mode")
	ErrHintLimitReached  = errors.New("no hints remaining")
	ErrInvalidHintLevel  = errors.New("hint level must be between 1 and 3")
	ErrInsufficientCoins = errors.New("not enough coins")
	ErrItemsNotAvailable = errors.New("items are not available yet")
	ErrLevelTooLow       = errors.New("account level too low for this mode")
	ErrSecretPhaseOver   = errors.New("secrets can no longer be set")
)

// Notifier delivers server events to connected clients. The hub implements
// it; tests substitute a recording fake.
type Notifier interface {
	ToUser(userID, event string, payload interface{})
	ToUsers(userIDs []string, event string, payload interface{})
	ToLobby(event string, payload interface{})
}

// UserStore is the slice of user persistence the coordinators need.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SpendCoins(ctx context.Context, id string, amount int) error
	AddRewards(ctx context.Context, id string, coins, exp int) (leveledUp bool, newLevel int, err error)
	ApplyGameOutcome(ctx context.Context, o models.GameOutcome) error
}

// GameStore is the durable game-record persistence used by the game
// coordinator.
type GameStore interface {
	CreateGame(ctx context.Context, game *models.Game) error
	UpdateGame(ctx context.Context, id string, fields map[string]interface{}) error
	CreateMove(ctx context.Context, move *models.GameMove) error
}

// PlayerInfo is the player summary carried through rooms, matchmaking and
// game start events.
type PlayerInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Tier     string `json:"tier"`
	Level    int    `json:"level"`
	IsReady  bool   `json:"isReady"`
	IsHost   bool   `json:"isHost"`
	IsOnline bool   `json:"isOnline"`
}

// RoomSettings are the host-adjustable game parameters.
type RoomSettings struct {
	Mode         string `json:"mode"`
	TimeLimit    int    `json:"timeLimit"`
	MaxAttempts  int    `json:"maxAttempts"`
	HintsAllowed bool   `json:"hintsAllowed"`
	ItemsAllowed bool   `json:"itemsAllowed"`
	IsRanked     bool   `json:"isRanked"`
	IsPrivate    bool   `json:"isPrivate"`
}

// MatchStarter receives matched player pairs from the room and matchmaking
// coordinators. The game coordinator implements it.
type MatchStarter interface {
	StartGame(ctx context.Context, roomCode string, players []PlayerInfo, mode string, settings RoomSettings) (string, error)
}
