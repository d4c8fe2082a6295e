package services

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"numball/elo"
	"numball/engine"
	"numball/models"
	"numball/store"
)

// Game statuses.
const (
	GameSettingNumbers = "SETTING_NUMBERS"
	GameInProgress     = "IN_PROGRESS"
	GameFinished       = "FINISHED"
	GameAbandoned      = "ABANDONED"
)

// End reasons.
const (
	ReasonCorrectGuess = "CORRECT_GUESS"
	ReasonMaxAttempts  = "MAX_ATTEMPTS_REACHED"
	ReasonTimeout      = "TIMEOUT"
	ReasonForfeit      = "FORFEIT"
	ReasonDisconnect   = "DISCONNECT"
)

const (
	maxHintsPerGame = 3
	baseExpReward   = 50
)

// Timings groups every duration the game coordinator schedules. Production
// uses DefaultTimings; tests shrink them to keep runs fast.
type Timings struct {
	SecretPhase     time.Duration
	TurnStartDelay  time.Duration
	TimeWarning     time.Duration
	DisconnectGrace time.Duration
	RematchWindow   time.Duration
	SnapshotTTL     time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		SecretPhase:     60 * time.Second,
		TurnStartDelay:  1500 * time.Millisecond,
		TimeWarning:     5 * time.Second,
		DisconnectGrace: 60 * time.Second,
		RematchWindow:   60 * time.Second,
		SnapshotTTL:     2 * time.Hour,
	}
}

// ValidationError carries the full list of input problems so the client can
// show them all at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

type gamePlayer struct {
	Info          PlayerInfo
	Secret        string
	SecretSet     bool
	Guesses       []engine.GuessRecord
	HintsUsed     int
	Connected     bool
	disconnectGen int
}

// exhausted reports whether the player has used every allowed attempt.
// A zero cap means unlimited attempts.
func (p *gamePlayer) exhausted(maxAttempts int) bool {
	return maxAttempts > 0 && len(p.Guesses) >= maxAttempts
}

func (p *gamePlayer) remainingAttempts(maxAttempts int) int {
	if maxAttempts <= 0 {
		return -1
	}
	return maxAttempts - len(p.Guesses)
}

type activeGame struct {
	mu            sync.Mutex
	ID            string
	RoomCode      string
	Config        engine.ModeConfig
	Settings      RoomSettings
	Status        string
	Players       [2]*gamePlayer
	Turn          int // index of the player to move
	TimerGen      int
	TurnStartedAt time.Time
	StartedAt     time.Time
}

// bumpTimerLocked invalidates every outstanding timer and returns the new
// generation for the next one. Caller holds g.mu.
func (g *activeGame) bumpTimerLocked() int {
	g.TimerGen++
	return g.TimerGen
}

func (g *activeGame) playerIndex(userID string) int {
	for i, p := range g.Players {
		if p.Info.UserID == userID {
			return i
		}
	}
	return -1
}

// rematchOffer remembers enough of a finished game to start it again.
type rematchOffer struct {
	Players  [2]PlayerInfo
	Mode     string
	Settings RoomSettings
	RoomCode string
}

// GameService runs the authoritative game state machine. Live games are
// in-process structs guarded by a per-game mutex; every timer callback
// re-checks a generation counter under that mutex, so a timer superseded by
// a player action is a no-op.
type GameService struct {
	mu       sync.RWMutex
	games    map[string]*activeGame
	byUser   map[string]string
	finished map[string]*rematchOffer

	users    UserStore
	records  GameStore
	session  store.SessionStore
	notifier Notifier
	rating   *elo.Calculator
	timings  Timings

	// onFinished reports a room-hosted game ending back to the room
	// coordinator. Set after construction to break the dependency loop.
	onFinished func(roomCode string)
}

func NewGameService(users UserStore, records GameStore, session store.SessionStore, notifier Notifier, timings Timings) *GameService {
	return &GameService{
		games:    make(map[string]*activeGame),
		byUser:   make(map[string]string),
		finished: make(map[string]*rematchOffer),
		users:    users,
		records:  records,
		session:  session,
		notifier: notifier,
		rating:   elo.NewCalculator(elo.DefaultConfig),
		timings:  timings,
	}
}

func (s *GameService) SetRoomCallback(fn func(roomCode string)) {
	s.onFinished = fn
}

// StartGame creates a game for exactly two players and opens the secret
// phase. Both room starts and matchmaking handoffs come through here.
func (s *GameService) StartGame(ctx context.Context, roomCode string, players []PlayerInfo, mode string, settings RoomSettings) (string, error) {
	if len(players) != 2 {
		return "", ErrNotEnoughPlayers
	}

	cfg := engine.ConfigFor(engine.GameMode(mode))
	if settings.TimeLimit > 0 {
		cfg.TimeLimit = settings.TimeLimit
	}
	if settings.MaxAttempts != 0 {
		cfg.MaxAttempts = settings.MaxAttempts
	}
	cfg.HintsAllowed = cfg.HintsAllowed && settings.HintsAllowed

	gameID := uuid.New().String()
	g := &activeGame{
		ID:       gameID,
		RoomCode: roomCode,
		Config:   cfg,
		Settings: settings,
		Status:   GameSettingNumbers,
		Players: [2]*gamePlayer{
			{Info: players[0], Connected: true},
			{Info: players[1], Connected: true},
		},
	}

	s.mu.Lock()
	for _, p := range players {
		if _, busy := s.byUser[p.UserID]; busy {
			s.mu.Unlock()
			return "", ErrAlreadyInRoom
		}
	}
	s.games[gameID] = g
	for _, p := range players {
		s.byUser[p.UserID] = gameID
	}
	s.mu.Unlock()

	record := &models.Game{
		ID:                  gameID,
		RoomCode:            roomCode,
		Mode:                string(cfg.Mode),
		Status:              GameSettingNumbers,
		Player1ID:           players[0].UserID,
		Player2ID:           players[1].UserID,
		TimeLimit:           cfg.TimeLimit,
		MaxAttempts:         cfg.MaxAttempts,
		HintsAllowed:        cfg.HintsAllowed,
		ItemsAllowed:        cfg.ItemsAllowed,
		IsRanked:            settings.IsRanked,
		Player1RatingBefore: players[0].Rating,
		Player2RatingBefore: players[1].Rating,
	}
	if err := s.records.CreateGame(ctx, record); err != nil {
		s.evict(g)
		return "", err
	}

	for _, id := range []string{players[0].UserID, players[1].UserID} {
		if err := s.session.SAdd(ctx, "in_game_users", id); err != nil {
			log.Warn().Err(err).Str("user", id).Msg("failed to mark in-game presence")
		}
	}

	g.mu.Lock()
	for i, p := range g.Players {
		s.notifier.ToUser(p.Info.UserID, "game:started", map[string]interface{}{
			"gameId":    gameID,
			"roomCode":  roomCode,
			"mode":      string(cfg.Mode),
			"yourIndex": i,
			"opponent":  g.Players[1-i].Info,
			"settings": map[string]interface{}{
				"digitCount":      cfg.DigitCount,
				"allowDuplicates": cfg.AllowDuplicates,
				"timeLimit":       cfg.TimeLimit,
				"maxAttempts":     cfg.MaxAttempts,
				"hintsAllowed":    cfg.HintsAllowed,
				"itemsAllowed":    cfg.ItemsAllowed,
				"isRanked":        settings.IsRanked,
			},
		})
	}
	s.broadcastLocked(g, "game:setSecretPhase", map[string]interface{}{
		"timeLimit": int(s.timings.SecretPhase / time.Second),
	})

	gen := g.bumpTimerLocked()
	g.mu.Unlock()
	s.snapshot(ctx, g)

	time.AfterFunc(s.timings.SecretPhase, func() {
		s.secretPhaseTimeout(g, gen)
	})
	log.Info().Str("game", gameID).Str("mode", string(cfg.Mode)).
		Str("player1", players[0].UserID).Str("player2", players[1].UserID).
		Msg("game started")
	return gameID, nil
}

// SetSecret stores a player's secret number. Once both are in, play begins.
func (s *GameService) SetSecret(ctx context.Context, userID, secret string) error {
	g := s.gameOf(userID)
	if g == nil {
		return ErrNotFound
	}

	g.mu.Lock()
	if g.Status != GameSettingNumbers {
		g.mu.Unlock()
		return ErrSecretPhaseOver
	}
	idx := g.playerIndex(userID)
	if idx < 0 {
		g.mu.Unlock()
		return ErrNotFound
	}
	if vr := engine.Validate(secret, g.Config); !vr.Valid {
		g.mu.Unlock()
		return &ValidationError{Problems: vr.Errors}
	}

	g.Players[idx].Secret = secret
	g.Players[idx].SecretSet = true
	bothSet := g.Players[0].SecretSet && g.Players[1].SecretSet

	s.notifier.ToUser(userID, "game:secretSet", map[string]interface{}{"gameId": g.ID})
	if bothSet {
		s.broadcastLocked(g, "game:allSecretsSet", map[string]interface{}{"gameId": g.ID})
		s.beginPlayLocked(g)
	}
	g.mu.Unlock()

	field := "player1_secret"
	if idx == 1 {
		field = "player2_secret"
	}
	if err := s.records.UpdateGame(ctx, g.ID, map[string]interface{}{field: secret}); err != nil {
		log.Error().Err(err).Str("game", g.ID).Msg("failed to persist secret")
	}
	return nil
}

// secretPhaseTimeout assigns generated secrets to whoever never set one.
func (s *GameService) secretPhaseTimeout(g *activeGame, gen int) {
	g.mu.Lock()
	if g.TimerGen != gen || g.Status != GameSettingNumbers {
		g.mu.Unlock()
		return
	}
	for i, p := range g.Players {
		if p.SecretSet {
			continue
		}
		p.Secret = engine.GenerateSecret(g.Config.DigitCount, g.Config.AllowDuplicates)
		p.SecretSet = true
		s.notifier.ToUser(p.Info.UserID, "game:secretSet", map[string]interface{}{
			"gameId":    g.ID,
			"generated": true,
		})
		field := "player1_secret"
		if i == 1 {
			field = "player2_secret"
		}
		secret := p.Secret
		gameID := g.ID
		go func() {
			if err := s.records.UpdateGame(context.Background(), gameID, map[string]interface{}{field: secret}); err != nil {
				log.Error().Err(err).Str("game", gameID).Msg("failed to persist generated secret")
			}
		}()
	}
	s.broadcastLocked(g, "game:allSecretsSet", map[string]interface{}{"gameId": g.ID})
	s.beginPlayLocked(g)
	g.mu.Unlock()
}

// beginPlayLocked flips the game to IN_PROGRESS with a random first mover.
// Caller holds g.mu.
func (s *GameService) beginPlayLocked(g *activeGame) {
	g.Status = GameInProgress
	g.Turn = rand.Intn(2)
	g.StartedAt = time.Now()

	gameID := g.ID
	startedAt := g.StartedAt
	go func() {
		if err := s.records.UpdateGame(context.Background(), gameID, map[string]interface{}{
			"status":     GameInProgress,
			"started_at": startedAt,
		}); err != nil {
			log.Error().Err(err).Str("game", gameID).Msg("failed to persist game start")
		}
	}()

	gen := g.bumpTimerLocked()
	time.AfterFunc(s.timings.TurnStartDelay, func() {
		g.mu.Lock()
		if g.TimerGen == gen && g.Status == GameInProgress {
			s.startTurnLocked(g)
		}
		g.mu.Unlock()
	})
}

// startTurnLocked announces the turn and arms its timers. Caller holds g.mu.
func (s *GameService) startTurnLocked(g *activeGame) {
	mover := g.Players[g.Turn]
	opponent := g.Players[1-g.Turn]
	g.TurnStartedAt = time.Now()

	s.notifier.ToUser(mover.Info.UserID, "game:yourTurn", map[string]interface{}{
		"gameId":            g.ID,
		"turnNumber":        len(mover.Guesses) + 1,
		"timeLimit":         g.Config.TimeLimit,
		"remainingAttempts": mover.remainingAttempts(g.Config.MaxAttempts),
	})
	s.notifier.ToUser(opponent.Info.UserID, "game:opponentTurn", map[string]interface{}{
		"gameId":    g.ID,
		"timeLimit": g.Config.TimeLimit,
	})

	gen := g.bumpTimerLocked()
	limit := time.Duration(g.Config.TimeLimit) * time.Second
	if limit <= 0 {
		// 0 means unlimited thinking time; no timers to arm.
		return
	}
	if limit > s.timings.TimeWarning {
		moverID := mover.Info.UserID
		time.AfterFunc(limit-s.timings.TimeWarning, func() {
			g.mu.Lock()
			if g.TimerGen == gen && g.Status == GameInProgress {
				s.notifier.ToUser(moverID, "game:timeWarning", map[string]interface{}{
					"remaining": int(s.timings.TimeWarning / time.Second),
				})
			}
			g.mu.Unlock()
		})
	}
	time.AfterFunc(limit, func() {
		s.turnTimeout(g, gen)
	})
}

// turnTimeout forfeits the mover who ran out of time.
func (s *GameService) turnTimeout(g *activeGame, gen int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TimerGen != gen || g.Status != GameInProgress {
		return
	}
	loser := g.Turn
	s.broadcastLocked(g, "game:timeout", map[string]interface{}{
		"gameId": g.ID,
		"userId": g.Players[loser].Info.UserID,
	})
	s.endGameLocked(g, 1-loser, ReasonTimeout)
}

// GuessOutcome is what MakeGuess reports back to the caller.
type GuessOutcome struct {
	Guess      string `json:"guess"`
	Strikes    int    `json:"strikes"`
	Balls      int    `json:"balls"`
	TurnNumber int    `json:"turnNumber"`
	Win        bool   `json:"win"`
}

// MakeGuess scores the mover's guess against the opponent's secret and
// advances the state machine.
func (s *GameService) MakeGuess(ctx context.Context, userID, guess string) (*GuessOutcome, error) {
	g := s.gameOf(userID)
	if g == nil {
		return nil, ErrNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status != GameInProgress {
		return nil, ErrGameNotInProgress
	}
	mover := g.Players[g.Turn]
	if mover.Info.UserID != userID {
		return nil, ErrNotYourTurn
	}
	if vr := engine.Validate(guess, g.Config); !vr.Valid {
		return nil, &ValidationError{Problems: vr.Errors}
	}

	opponent := g.Players[1-g.Turn]
	result := engine.Score(opponent.Secret, guess)
	timeSpent := int(time.Since(g.TurnStartedAt).Seconds())
	record := engine.GuessRecord{
		Guess:      guess,
		Strikes:    result.Strikes,
		Balls:      result.Balls,
		TurnNumber: len(mover.Guesses) + 1,
		TimeSpent:  timeSpent,
		Timestamp:  time.Now().UnixMilli(),
	}
	mover.Guesses = append(mover.Guesses, record)
	g.bumpTimerLocked()

	move := &models.GameMove{
		GameID:     g.ID,
		PlayerID:   userID,
		TurnNumber: record.TurnNumber,
		Guess:      guess,
		Strikes:    result.Strikes,
		Balls:      result.Balls,
		TimeSpent:  timeSpent,
	}
	go func() {
		if err := s.records.CreateMove(context.Background(), move); err != nil {
			log.Error().Err(err).Str("game", move.GameID).Msg("failed to persist move")
		}
	}()

	win := result.Strikes == g.Config.DigitCount
	s.notifier.ToUser(userID, "game:guessResult", map[string]interface{}{
		"gameId":            g.ID,
		"guess":             guess,
		"strikes":           result.Strikes,
		"balls":             result.Balls,
		"turnNumber":        record.TurnNumber,
		"timeSpent":         timeSpent,
		"remainingAttempts": mover.remainingAttempts(g.Config.MaxAttempts),
	})
	s.notifier.ToUser(opponent.Info.UserID, "game:opponentGuessed", map[string]interface{}{
		"gameId":     g.ID,
		"guess":      guess,
		"strikes":    result.Strikes,
		"balls":      result.Balls,
		"turnNumber": record.TurnNumber,
	})

	outcome := &GuessOutcome{
		Guess:      guess,
		Strikes:    result.Strikes,
		Balls:      result.Balls,
		TurnNumber: record.TurnNumber,
		Win:        win,
	}

	switch {
	case win:
		s.endGameLocked(g, g.Turn, ReasonCorrectGuess)
	case mover.exhausted(g.Config.MaxAttempts) && opponent.exhausted(g.Config.MaxAttempts):
		// A draw needs both caps spent; one player running out alone only
		// removes them from the rotation.
		s.endGameLocked(g, -1, ReasonMaxAttempts)
	default:
		if !opponent.exhausted(g.Config.MaxAttempts) {
			g.Turn = 1 - g.Turn
		}
		gen := g.bumpTimerLocked()
		time.AfterFunc(s.timings.TurnStartDelay, func() {
			g.mu.Lock()
			if g.TimerGen == gen && g.Status == GameInProgress {
				s.startTurnLocked(g)
			}
			g.mu.Unlock()
		})
	}

	go s.snapshot(context.Background(), g)
	return outcome, nil
}

// UseHint sells the mover a hint about the opponent's secret at the level
// they asked for. Three per player per game; any level may be bought in any
// order, each priced on its own.
func (s *GameService) UseHint(ctx context.Context, userID string, level int) (*engine.Hint, error) {
	if level < engine.HintPossibilityCount || level > engine.HintContainsDigit {
		return nil, ErrInvalidHintLevel
	}
	g := s.gameOf(userID)
	if g == nil {
		return nil, ErrNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status != GameInProgress {
		return nil, ErrGameNotInProgress
	}
	mover := g.Players[g.Turn]
	if mover.Info.UserID != userID {
		return nil, ErrNotYourTurn
	}
	if !g.Config.HintsAllowed {
		return nil, ErrHintsNotAllowed
	}
	if mover.HintsUsed >= maxHintsPerGame {
		return nil, ErrHintLimitReached
	}

	hint := engine.GenerateHint(mover.Guesses, g.Config, level)
	if hint.Cost > 0 {
		if err := s.users.SpendCoins(ctx, userID, hint.Cost); err != nil {
			return nil, ErrInsufficientCoins
		}
	}
	mover.HintsUsed++

	s.notifier.ToUser(userID, "game:hintResult", map[string]interface{}{
		"gameId":         g.ID,
		"type":           hint.Type,
		"content":        hint.Content,
		"cost":           hint.Cost,
		"hintsRemaining": maxHintsPerGame - mover.HintsUsed,
	})
	return &hint, nil
}

// UseItem is reserved for the item system; every request is rejected until
// items ship.
func (s *GameService) UseItem(ctx context.Context, userID, itemID string) error {
	return ErrItemsNotAvailable
}

// Surrender ends the game in the opponent's favor. Giving up before play
// starts abandons the game without any rating movement.
func (s *GameService) Surrender(ctx context.Context, userID string) error {
	g := s.gameOf(userID)
	if g == nil {
		return ErrNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.playerIndex(userID)
	if idx < 0 {
		return ErrNotFound
	}
	switch g.Status {
	case GameSettingNumbers:
		s.broadcastLocked(g, "game:surrendered", map[string]interface{}{
			"gameId": g.ID,
			"userId": userID,
		})
		s.abandonLocked(g)
		return nil
	case GameInProgress:
		s.broadcastLocked(g, "game:surrendered", map[string]interface{}{
			"gameId": g.ID,
			"userId": userID,
		})
		s.endGameLocked(g, 1-idx, ReasonForfeit)
		return nil
	default:
		return ErrGameNotInProgress
	}
}

// HandleDisconnect marks the player away and starts the grace clock. If they
// are still gone when it runs out, they forfeit.
func (s *GameService) HandleDisconnect(ctx context.Context, userID string) {
	g := s.gameOf(userID)
	if g == nil {
		return
	}

	g.mu.Lock()
	idx := g.playerIndex(userID)
	if idx < 0 || g.Status == GameFinished || g.Status == GameAbandoned {
		g.mu.Unlock()
		return
	}
	player := g.Players[idx]
	player.Connected = false
	player.disconnectGen++
	gen := player.disconnectGen

	s.notifier.ToUser(g.Players[1-idx].Info.UserID, "game:playerDisconnected", map[string]interface{}{
		"gameId":   g.ID,
		"userId":   userID,
		"waitTime": int(s.timings.DisconnectGrace / time.Second),
	})
	g.mu.Unlock()

	time.AfterFunc(s.timings.DisconnectGrace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if player.disconnectGen != gen || player.Connected {
			return
		}
		switch g.Status {
		case GameSettingNumbers:
			s.abandonLocked(g)
		case GameInProgress:
			s.endGameLocked(g, 1-idx, ReasonDisconnect)
		}
	})
}

// HandleReconnect cancels the grace clock and replays the current state to
// the returning player.
func (s *GameService) HandleReconnect(ctx context.Context, userID string) {
	g := s.gameOf(userID)
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.playerIndex(userID)
	if idx < 0 {
		return
	}
	player := g.Players[idx]
	player.Connected = true
	player.disconnectGen++

	s.notifier.ToUser(g.Players[1-idx].Info.UserID, "game:playerReconnected", map[string]interface{}{
		"gameId": g.ID,
		"userId": userID,
	})
	s.notifier.ToUser(userID, "game:state", map[string]interface{}{
		"gameId":       g.ID,
		"status":       g.Status,
		"yourIndex":    idx,
		"yourTurn":     g.Status == GameInProgress && g.Turn == idx,
		"yourGuesses":  player.Guesses,
		"theirGuesses": g.Players[1-idx].Guesses,
		"hintsUsed":    player.HintsUsed,
		"secretSet":    player.SecretSet,
		"opponent":     g.Players[1-idx].Info,
		"mode":         string(g.Config.Mode),
		"timeLimit":    g.Config.TimeLimit,
		"maxAttempts":  g.Config.MaxAttempts,
	})
}

// RequestRematch offers a rematch on a finished game, or accepts the
// opponent's standing offer. Offers expire after a minute.
func (s *GameService) RequestRematch(ctx context.Context, userID, gameID string) error {
	s.mu.RLock()
	offer := s.finished[gameID]
	s.mu.RUnlock()
	if offer == nil {
		return ErrNotFound
	}

	var me, other *PlayerInfo
	for i := range offer.Players {
		if offer.Players[i].UserID == userID {
			me = &offer.Players[i]
		} else {
			other = &offer.Players[i]
		}
	}
	if me == nil || other == nil {
		return ErrNotFound
	}

	key := "rematch:" + gameID
	if requester, err := s.session.Get(ctx, key); err == nil && requester != userID {
		if err := s.session.Del(ctx, key); err != nil {
			log.Warn().Err(err).Msg("failed to clear rematch offer")
		}
		s.notifier.ToUsers([]string{me.UserID, other.UserID}, "game:rematchAccepted", map[string]interface{}{
			"gameId": gameID,
		})
		// Swap slots so the former second player hosts the rematch.
		players := []PlayerInfo{*other, *me}
		_, err := s.StartGame(ctx, offer.RoomCode, players, offer.Mode, offer.Settings)
		return err
	}

	if err := s.session.Set(ctx, key, userID, s.timings.RematchWindow); err != nil {
		return err
	}
	s.notifier.ToUser(other.UserID, "game:rematchRequested", map[string]interface{}{
		"gameId": gameID,
		"from":   me.Username,
		"userId": userID,
	})
	return nil
}

// DeclineRematch withdraws or refuses the standing offer.
func (s *GameService) DeclineRematch(ctx context.Context, userID, gameID string) error {
	s.mu.RLock()
	offer := s.finished[gameID]
	s.mu.RUnlock()
	if offer == nil {
		return ErrNotFound
	}
	if err := s.session.Del(ctx, "rematch:"+gameID); err != nil && err != store.ErrNotFound {
		log.Warn().Err(err).Msg("failed to clear rematch offer")
	}
	for _, p := range offer.Players {
		if p.UserID != userID {
			s.notifier.ToUser(p.UserID, "game:rematchDeclined", map[string]interface{}{
				"gameId": gameID,
			})
		}
	}
	return nil
}

// GameOfUser reports the live game a user is in, if any.
func (s *GameService) GameOfUser(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	return id, ok
}

// abandonLocked tears a game down before play started. No ratings, no
// rewards, no winner. Caller holds g.mu.
func (s *GameService) abandonLocked(g *activeGame) {
	g.bumpTimerLocked()
	g.Status = GameAbandoned

	s.broadcastLocked(g, "game:ended", map[string]interface{}{
		"gameId": g.ID,
		"result": "ABANDONED",
		"reason": "ABANDONED",
	})

	gameID := g.ID
	go func() {
		now := time.Now()
		if err := s.records.UpdateGame(context.Background(), gameID, map[string]interface{}{
			"status":   GameAbandoned,
			"ended_at": now,
		}); err != nil {
			log.Error().Err(err).Str("game", gameID).Msg("failed to persist abandoned game")
		}
	}()
	s.cleanupLocked(g)
}

// endGameLocked settles a finished game: ratings, rewards, persistence and
// the per-player result payloads. winnerIdx is -1 for a draw. Caller holds
// g.mu.
func (s *GameService) endGameLocked(g *activeGame, winnerIdx int, reason string) {
	g.bumpTimerLocked()
	g.Status = GameFinished
	endedAt := time.Now()
	duration := 0
	if !g.StartedAt.IsZero() {
		duration = int(endedAt.Sub(g.StartedAt).Seconds())
	}

	ctx := context.Background()
	type settled struct {
		ratingBefore int
		ratingAfter  int
		ratingChange int
		tierBefore   string
		tier         string
		coins        int
		exp          int
		leveledUp    bool
		newLevel     int
	}
	var results [2]settled

	for i := range results {
		results[i].ratingBefore = g.Players[i].Info.Rating
		results[i].ratingAfter = g.Players[i].Info.Rating
		results[i].tierBefore = g.Players[i].Info.Tier
		results[i].tier = g.Players[i].Info.Tier
	}

	if g.Settings.IsRanked {
		var eloPlayers [2]elo.Player
		for i, p := range g.Players {
			gamesPlayed := 0
			rating := p.Info.Rating
			if u, err := s.users.GetUser(ctx, p.Info.UserID); err == nil {
				gamesPlayed = u.GamesPlayed
				rating = u.Rating
			}
			eloPlayers[i] = elo.Player{UserID: p.Info.UserID, Rating: rating, GamesPlayed: gamesPlayed}
			results[i].ratingBefore = rating
			results[i].tierBefore = elo.TierByRating(rating).Tier
		}
		winnerID := ""
		if winnerIdx >= 0 {
			winnerID = g.Players[winnerIdx].Info.UserID
		}
		r1, r2 := s.rating.ProcessGameResult(eloPlayers[0], eloPlayers[1], winnerID, g.Config.EloMultiplier)
		for i, r := range [2]elo.Result{r1, r2} {
			results[i].ratingAfter = r.NewRating
			results[i].ratingChange = r.RatingChange
			results[i].tier = elo.TierByRating(r.NewRating).Tier
		}
	}

	for i, p := range g.Players {
		won := winnerIdx == i
		draw := winnerIdx < 0
		coins, exp := rewardFor(g.Config.BasePoints, won, draw)
		results[i].coins = coins
		results[i].exp = exp

		if err := s.users.ApplyGameOutcome(ctx, models.GameOutcome{
			UserID:       p.Info.UserID,
			Won:          won,
			Draw:         draw,
			Ranked:       g.Settings.IsRanked,
			NewRating:    results[i].ratingAfter,
			NewTier:      results[i].tier,
			CoinsEarned:  coins,
			ExpEarned:    exp,
			PlayDuration: duration,
		}); err != nil {
			log.Error().Err(err).Str("user", p.Info.UserID).Msg("failed to apply game outcome")
		}
		leveledUp, newLevel, err := s.users.AddRewards(ctx, p.Info.UserID, coins, exp)
		if err != nil {
			log.Error().Err(err).Str("user", p.Info.UserID).Msg("failed to credit rewards")
		}
		results[i].leveledUp = leveledUp
		results[i].newLevel = newLevel
	}

	fields := map[string]interface{}{
		"status":                GameFinished,
		"is_draw":               winnerIdx < 0,
		"win_reason":            reason,
		"total_duration":        duration,
		"ended_at":              endedAt,
		"player1_rating_after":  results[0].ratingAfter,
		"player2_rating_after":  results[1].ratingAfter,
		"player1_rating_change": results[0].ratingChange,
		"player2_rating_change": results[1].ratingChange,
	}
	if winnerIdx >= 0 {
		fields["winner_id"] = g.Players[winnerIdx].Info.UserID
	}
	gameID := g.ID
	go func() {
		if err := s.records.UpdateGame(context.Background(), gameID, fields); err != nil {
			log.Error().Err(err).Str("game", gameID).Msg("failed to persist game result")
		}
	}()

	for i, p := range g.Players {
		verdict := "DRAW"
		if winnerIdx == i {
			verdict = "WIN"
		} else if winnerIdx >= 0 {
			verdict = "LOSE"
		}
		s.notifier.ToUser(p.Info.UserID, "game:ended", map[string]interface{}{
			"gameId": g.ID,
			"result": verdict,
			"reason": reason,
			"secrets": map[string]string{
				g.Players[0].Info.UserID: g.Players[0].Secret,
				g.Players[1].Info.UserID: g.Players[1].Secret,
			},
			"myAttempts":       len(p.Guesses),
			"opponentAttempts": len(g.Players[1-i].Guesses),
			"rating": map[string]interface{}{
				"before":      results[i].ratingBefore,
				"after":       results[i].ratingAfter,
				"change":      results[i].ratingChange,
				"tier":        results[i].tier,
				"tierBefore":  results[i].tierBefore,
				"tierChanged": results[i].tier != results[i].tierBefore,
			},
			"rewards": map[string]interface{}{
				"coins":     results[i].coins,
				"exp":       results[i].exp,
				"leveledUp": results[i].leveledUp,
				"newLevel":  results[i].newLevel,
			},
			"gameStats": gameStats(p, duration, g.Config.DigitCount),
		})
	}

	offer := &rematchOffer{
		Players:  [2]PlayerInfo{g.Players[0].Info, g.Players[1].Info},
		Mode:     string(g.Config.Mode),
		Settings: g.Settings,
		RoomCode: g.RoomCode,
	}
	s.mu.Lock()
	s.finished[g.ID] = offer
	s.mu.Unlock()
	time.AfterFunc(2*s.timings.RematchWindow, func() {
		s.mu.Lock()
		delete(s.finished, gameID)
		s.mu.Unlock()
	})

	s.cleanupLocked(g)
	log.Info().Str("game", g.ID).Str("reason", reason).Int("winner", winnerIdx).Msg("game finished")
}

// cleanupLocked releases the players and the session-store state of a game
// that reached a terminal status. Caller holds g.mu.
func (s *GameService) cleanupLocked(g *activeGame) {
	ctx := context.Background()
	s.mu.Lock()
	delete(s.games, g.ID)
	for _, p := range g.Players {
		if s.byUser[p.Info.UserID] == g.ID {
			delete(s.byUser, p.Info.UserID)
		}
	}
	s.mu.Unlock()

	for _, p := range g.Players {
		if err := s.session.SRem(ctx, "in_game_users", p.Info.UserID); err != nil && err != store.ErrNotFound {
			log.Warn().Err(err).Str("user", p.Info.UserID).Msg("failed to clear in-game presence")
		}
	}
	if err := s.session.Del(ctx, "game:"+g.ID); err != nil && err != store.ErrNotFound {
		log.Warn().Err(err).Str("game", g.ID).Msg("failed to drop game snapshot")
	}

	if s.onFinished != nil && g.RoomCode != "" {
		go s.onFinished(g.RoomCode)
	}
}

func (s *GameService) evict(g *activeGame) {
	s.mu.Lock()
	delete(s.games, g.ID)
	for _, p := range g.Players {
		if s.byUser[p.Info.UserID] == g.ID {
			delete(s.byUser, p.Info.UserID)
		}
	}
	s.mu.Unlock()
}

func (s *GameService) gameOf(userID string) *activeGame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	return s.games[id]
}

func (s *GameService) broadcastLocked(g *activeGame, event string, payload interface{}) {
	for _, p := range g.Players {
		s.notifier.ToUser(p.Info.UserID, event, payload)
	}
}

// snapshot mirrors a compact view of the game into the session store so
// other processes can see live games. Snapshots expire on their own.
func (s *GameService) snapshot(ctx context.Context, g *activeGame) {
	g.mu.Lock()
	view := map[string]interface{}{
		"id":       g.ID,
		"roomCode": g.RoomCode,
		"mode":     string(g.Config.Mode),
		"status":   g.Status,
		"players":  []string{g.Players[0].Info.UserID, g.Players[1].Info.UserID},
		"turns":    []int{len(g.Players[0].Guesses), len(g.Players[1].Guesses)},
	}
	g.mu.Unlock()

	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.session.Set(ctx, "game:"+g.ID, string(data), s.timings.SnapshotTTL); err != nil {
		log.Warn().Err(err).Str("game", g.ID).Msg("failed to write game snapshot")
	}
}

// rewardFor prices a game result. Winners get the full pot, draws most of
// it, losers a consolation cut.
func rewardFor(basePoints int, won, draw bool) (coins, exp int) {
	switch {
	case won:
		return int(float64(basePoints) * 1.5), baseExpReward * 2
	case draw:
		return int(float64(basePoints) * 0.8), baseExpReward
	default:
		return int(float64(basePoints) * 0.3), baseExpReward / 2
	}
}

func gameStats(p *gamePlayer, duration, digitCount int) map[string]interface{} {
	totalTurns := len(p.Guesses)
	avg := 0
	perfect := 0
	if totalTurns > 0 {
		sum := 0
		for _, gr := range p.Guesses {
			sum += gr.TimeSpent
			if gr.Strikes == digitCount {
				perfect++
			}
		}
		avg = sum / totalTurns
	}
	return map[string]interface{}{
		"totalTurns":       totalTurns,
		"duration":         duration,
		"averageGuessTime": avg,
		"perfectGuesses":   perfect,
	}
}
