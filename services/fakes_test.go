package services

import (
	"context"
	"sync"

	"numball/models"
)

// fakeNotifier records every event it is asked to deliver.
type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	UserID  string
	Event   string
	Payload interface{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{}
}

func (n *fakeNotifier) ToUser(userID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: userID, Event: event, Payload: payload})
}

func (n *fakeNotifier) ToUsers(userIDs []string, event string, payload interface{}) {
	for _, id := range userIDs {
		n.ToUser(id, event, payload)
	}
}

func (n *fakeNotifier) ToLobby(event string, payload interface{}) {
	n.ToUser("<lobby>", event, payload)
}

// eventsFor returns the event names delivered to one user, in order.
func (n *fakeNotifier) eventsFor(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var names []string
	for _, e := range n.events {
		if e.UserID == userID {
			names = append(names, e.Event)
		}
	}
	return names
}

func (n *fakeNotifier) eventCount(userID, event string) int {
	count := 0
	for _, name := range n.eventsFor(userID) {
		if name == event {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) received(userID, event string) bool {
	for _, name := range n.eventsFor(userID) {
		if name == event {
			return true
		}
	}
	return false
}

// lastPayload returns the payload of the most recent delivery of an event to
// a user.
func (n *fakeNotifier) lastPayload(userID, event string) interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].UserID == userID && n.events[i].Event == event {
			return n.events[i].Payload
		}
	}
	return nil
}

// fakeUserStore keeps users in a map and applies outcomes in memory.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) SpendCoins(ctx context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if u.Coins < amount {
		return ErrInsufficientCoins
	}
	u.Coins -= amount
	return nil
}

func (s *fakeUserStore) AddRewards(ctx context.Context, id string, coins, exp int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, 0, ErrNotFound
	}
	u.Coins += coins
	newExp := u.Exp + exp
	level := u.Level
	for newExp >= level*100 {
		newExp -= level * 100
		level++
	}
	leveledUp := level > u.Level
	u.Exp = newExp
	u.Level = level
	return leveledUp, level, nil
}

func (s *fakeUserStore) ApplyGameOutcome(ctx context.Context, o models.GameOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[o.UserID]
	if !ok {
		return ErrNotFound
	}
	u.GamesPlayed++
	switch {
	case o.Won:
		u.GamesWon++
		u.WinStreak++
		if u.WinStreak > u.MaxWinStreak {
			u.MaxWinStreak = u.WinStreak
		}
	case o.Draw:
		u.GamesDraw++
		u.WinStreak = 0
	default:
		u.GamesLost++
		u.WinStreak = 0
	}
	if o.Ranked {
		u.Rating = o.NewRating
		u.Tier = o.NewTier
	}
	return nil
}

// fakeGameStore records persistence calls without a database.
type fakeGameStore struct {
	mu      sync.Mutex
	games   map[string]*models.Game
	updates map[string][]map[string]interface{}
	moves   []*models.GameMove
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{
		games:   make(map[string]*models.Game),
		updates: make(map[string][]map[string]interface{}),
	}
}

func (s *fakeGameStore) CreateGame(ctx context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
	return nil
}

func (s *fakeGameStore) UpdateGame(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = append(s.updates[id], fields)
	return nil
}

func (s *fakeGameStore) CreateMove(ctx context.Context, move *models.GameMove) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, move)
	return nil
}

func (s *fakeGameStore) moveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.moves)
}

// fakeStarter satisfies MatchStarter and records handoffs.
type fakeStarter struct {
	mu      sync.Mutex
	starts  []startedMatch
	nextID  int
	failErr error
}

type startedMatch struct {
	RoomCode string
	Players  []PlayerInfo
	Mode     string
	Settings RoomSettings
}

func (s *fakeStarter) StartGame(ctx context.Context, roomCode string, players []PlayerInfo, mode string, settings RoomSettings) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return "", s.failErr
	}
	s.starts = append(s.starts, startedMatch{RoomCode: roomCode, Players: players, Mode: mode, Settings: settings})
	s.nextID++
	return "game-" + string(rune('0'+s.nextID)), nil
}

func (s *fakeStarter) started() []startedMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]startedMatch, len(s.starts))
	copy(out, s.starts)
	return out
}

func testUser(id string, rating, level int) *models.User {
	return &models.User{
		ID:       id,
		Username: "user-" + id,
		Rating:   rating,
		Tier:     "SILVER_1",
		Level:    level,
		Coins:    500,
	}
}
