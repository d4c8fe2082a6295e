package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"numball/engine"
	"numball/store"
)

const practiceTTL = time.Hour

// PracticeHandler runs single-player practice games. Sessions live in the
// session store under a per-user key and expire on their own; there are no
// ratings, rewards or timers.
type PracticeHandler struct {
	session store.SessionStore
}

func NewPracticeHandler(session store.SessionStore) *PracticeHandler {
	return &PracticeHandler{session: session}
}

type practiceSession struct {
	Mode      string               `json:"mode"`
	Secret    string               `json:"secret"`
	Guesses   []engine.GuessRecord `json:"guesses"`
	HintsUsed int                  `json:"hintsUsed"`
	Solved    bool                 `json:"solved"`
	StartedAt int64                `json:"startedAt"`
}

type practiceStartRequest struct {
	Mode string `json:"mode"`
}

type practiceGuessRequest struct {
	Guess string `json:"guess" binding:"required"`
}

// Start opens a fresh practice session, replacing any previous one.
func (h *PracticeHandler) Start(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req practiceStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := engine.ConfigFor(engine.GameMode(req.Mode))
	sess := practiceSession{
		Mode:      string(cfg.Mode),
		Secret:    engine.GenerateSecret(cfg.DigitCount, cfg.AllowDuplicates),
		StartedAt: time.Now().UnixMilli(),
	}
	if err := h.save(c.Request.Context(), userID.(string), &sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start practice game"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"mode":            sess.Mode,
		"digitCount":      cfg.DigitCount,
		"allowDuplicates": cfg.AllowDuplicates,
	})
}

// Guess scores one guess against the practice secret.
func (h *PracticeHandler) Guess(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req practiceGuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, cfg, ok := h.load(c, userID.(string))
	if !ok {
		return
	}
	if sess.Solved {
		c.JSON(http.StatusConflict, gin.H{"error": "Practice game already solved"})
		return
	}
	if vr := engine.Validate(req.Guess, cfg); !vr.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guess", "errors": vr.Errors})
		return
	}

	result := engine.Score(sess.Secret, req.Guess)
	record := engine.GuessRecord{
		Guess:      req.Guess,
		Strikes:    result.Strikes,
		Balls:      result.Balls,
		TurnNumber: len(sess.Guesses) + 1,
		Timestamp:  time.Now().UnixMilli(),
	}
	sess.Guesses = append(sess.Guesses, record)
	sess.Solved = result.Strikes == cfg.DigitCount

	if err := h.save(c.Request.Context(), userID.(string), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record guess"})
		return
	}

	resp := gin.H{
		"guess":      req.Guess,
		"strikes":    result.Strikes,
		"balls":      result.Balls,
		"turnNumber": record.TurnNumber,
		"solved":     sess.Solved,
	}
	if sess.Solved {
		resp["secret"] = sess.Secret
		resp["totalTurns"] = len(sess.Guesses)
	}
	c.JSON(http.StatusOK, resp)
}

// Hint produces a free hint from the guess history so far.
func (h *PracticeHandler) Hint(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sess, cfg, ok := h.load(c, userID.(string))
	if !ok {
		return
	}

	level := sess.HintsUsed + 1
	if level > engine.HintContainsDigit {
		level = engine.HintContainsDigit
	}
	hint := engine.GenerateHint(sess.Guesses, cfg, level)
	sess.HintsUsed++
	if err := h.save(c.Request.Context(), userID.(string), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record hint"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type":    hint.Type,
		"content": hint.Content,
	})
}

// Recommend suggests the statistically strongest next guess.
func (h *PracticeHandler) Recommend(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sess, cfg, ok := h.load(c, userID.(string))
	if !ok {
		return
	}

	recommendation := engine.RecommendNextGuess(sess.Guesses, cfg)
	if recommendation == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "No candidates match the guess history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recommendation": recommendation,
		"possibilities":  len(engine.Possibilities(sess.Guesses, cfg)),
	})
}

// State returns the running session without its secret.
func (h *PracticeHandler) State(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sess, _, ok := h.load(c, userID.(string))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":      sess.Mode,
		"guesses":   sess.Guesses,
		"hintsUsed": sess.HintsUsed,
		"solved":    sess.Solved,
		"startedAt": sess.StartedAt,
	})
}

func (h *PracticeHandler) load(c *gin.Context, userID string) (*practiceSession, engine.ModeConfig, bool) {
	raw, err := h.session.Get(c.Request.Context(), practiceKey(userID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No practice game running"})
		return nil, engine.ModeConfig{}, false
	}
	var sess practiceSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load practice game"})
		return nil, engine.ModeConfig{}, false
	}
	return &sess, engine.ConfigFor(engine.GameMode(sess.Mode)), true
}

func (h *PracticeHandler) save(ctx context.Context, userID string, sess *practiceSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return h.session.Set(ctx, practiceKey(userID), string(data), practiceTTL)
}

func practiceKey(userID string) string {
	return "practice:" + userID
}
