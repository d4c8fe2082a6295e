package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"numball/repository"
)

type GameHandler struct {
	games *repository.GameRepository
}

func NewGameHandler(games *repository.GameRepository) *GameHandler {
	return &GameHandler{games: games}
}

// History lists the caller's finished games, newest first. An optional mode
// query narrows the list.
func (h *GameHandler) History(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	mode := c.Query("mode")

	games, total, err := h.games.ListUserGames(c.Request.Context(), userID.(string), mode, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"total": total,
		"page":  page,
	})
}

// GetGame returns one game with its moves. Secrets stay hidden until the
// game is over, and only participants may look at a live game.
func (h *GameHandler) GetGame(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	game, err := h.games.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}

	finished := game.Status == "FINISHED" || game.Status == "ABANDONED"
	participant := game.Player1ID == userID.(string) || game.Player2ID == userID.(string)
	if !finished && !participant {
		c.JSON(http.StatusForbidden, gin.H{"error": "Game is still in progress"})
		return
	}

	resp := gin.H{"game": game}
	if finished {
		resp["secrets"] = gin.H{
			game.Player1ID: game.Player1Secret,
			game.Player2ID: game.Player2Secret,
		}
	}
	c.JSON(http.StatusOK, resp)
}
