package services

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"numball/engine"
)

const (
	roomCodeLength     = 6
	roomCodeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomMaxPlayers     = 2
	roomStartCountdown = 3 * time.Second
	roomIdleTimeout    = 10 * time.Minute
)

// Room statuses.
const (
	RoomWaiting  = "WAITING"
	RoomStarting = "STARTING"
	RoomInGame   = "IN_GAME"
)

type roomState struct {
	mu           sync.Mutex
	Code         string
	Name         string
	HostID       string
	Password     string
	Settings     RoomSettings
	Players      []*PlayerInfo
	Status       string
	CreatedAt    time.Time
	LastActivity time.Time
}

// RoomView is the room snapshot sent to clients and the lobby list.
type RoomView struct {
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	HostID      string       `json:"hostId"`
	Settings    RoomSettings `json:"settings"`
	Players     []PlayerInfo `json:"players"`
	PlayerCount int          `json:"playerCount"`
	MaxPlayers  int          `json:"maxPlayers"`
	Status      string       `json:"status"`
	HasPassword bool         `json:"hasPassword"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// RoomService coordinates custom game rooms. Rooms are held in memory; the
// per-room mutex serializes membership changes while the service-level lock
// only guards the maps.
type RoomService struct {
	mu     sync.RWMutex
	rooms  map[string]*roomState
	byUser map[string]string

	users    UserStore
	notifier Notifier
	games    MatchStarter

	countdown   time.Duration
	idleTimeout time.Duration
}

func NewRoomService(users UserStore, notifier Notifier, games MatchStarter) *RoomService {
	return &RoomService{
		rooms:       make(map[string]*roomState),
		byUser:      make(map[string]string),
		users:       users,
		notifier:    notifier,
		games:       games,
		countdown:   roomStartCountdown,
		idleTimeout: roomIdleTimeout,
	}
}

// CreateRoom opens a new room with the caller as host and announces it to
// the lobby unless it is private.
func (s *RoomService) CreateRoom(ctx context.Context, userID, name, password string, settings RoomSettings) (*RoomView, error) {
	player, err := s.lookupPlayer(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.byUser[userID]; ok {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}

	cfg := engine.ConfigFor(engine.GameMode(settings.Mode))
	settings.Mode = string(cfg.Mode)
	if settings.TimeLimit <= 0 {
		settings.TimeLimit = cfg.TimeLimit
	}
	if settings.MaxAttempts == 0 {
		settings.MaxAttempts = cfg.MaxAttempts
	}

	code := s.newRoomCodeLocked()
	player.IsHost = true
	player.IsReady = true
	now := time.Now()
	room := &roomState{
		Code:         code,
		Name:         name,
		HostID:       userID,
		Password:     password,
		Settings:     settings,
		Players:      []*PlayerInfo{player},
		Status:       RoomWaiting,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.rooms[code] = room
	s.byUser[userID] = code
	s.mu.Unlock()

	view := snapshotRoom(room)
	s.notifier.ToUser(userID, "room:created", view)
	if !settings.IsPrivate {
		s.notifier.ToLobby("lobby:roomCreated", view)
	}
	log.Info().Str("room", code).Str("host", userID).Str("mode", settings.Mode).Msg("room created")
	return view, nil
}

// JoinRoom adds a player to a waiting room. Rejoining a room you are already
// in just returns the current state.
func (s *RoomService) JoinRoom(ctx context.Context, userID, code, password string) (*RoomView, error) {
	room := s.getRoom(code)
	if room == nil {
		return nil, ErrNotFound
	}

	room.mu.Lock()
	if idx := playerIndex(room.Players, userID); idx >= 0 {
		view := snapshotRoomLocked(room)
		room.mu.Unlock()
		return view, nil
	}
	if room.Status != RoomWaiting {
		room.mu.Unlock()
		return nil, ErrRoomNotWaiting
	}
	if len(room.Players) >= roomMaxPlayers {
		room.mu.Unlock()
		return nil, ErrRoomFull
	}
	if room.Password != "" && room.Password != password {
		room.mu.Unlock()
		return nil, ErrWrongPassword
	}
	room.mu.Unlock()

	player, err := s.lookupPlayer(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.byUser[userID]; ok {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	s.byUser[userID] = code
	s.mu.Unlock()

	room.mu.Lock()
	// Re-check under the room lock: the room may have filled or started
	// between the guard pass and the membership write.
	if room.Status != RoomWaiting || len(room.Players) >= roomMaxPlayers {
		notWaiting := room.Status != RoomWaiting
		room.mu.Unlock()
		s.mu.Lock()
		delete(s.byUser, userID)
		s.mu.Unlock()
		if notWaiting {
			return nil, ErrRoomNotWaiting
		}
		return nil, ErrRoomFull
	}
	room.Players = append(room.Players, player)
	room.LastActivity = time.Now()
	view := snapshotRoomLocked(room)
	others := otherPlayerIDsLocked(room, userID)
	isPrivate := room.Settings.IsPrivate
	room.mu.Unlock()

	s.notifier.ToUser(userID, "room:joined", view)
	s.notifier.ToUsers(others, "room:playerJoined", map[string]interface{}{
		"player": *player,
		"room":   view,
	})
	if !isPrivate {
		s.notifier.ToLobby("lobby:roomUpdated", view)
	}
	return view, nil
}

// LeaveRoom removes a player. The host role passes to the longest-present
// remaining player; an emptied room is torn down.
func (s *RoomService) LeaveRoom(ctx context.Context, userID string) {
	s.mu.Lock()
	code, ok := s.byUser[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.byUser, userID)
	room := s.rooms[code]
	s.mu.Unlock()
	if room == nil {
		return
	}

	room.mu.Lock()
	idx := playerIndex(room.Players, userID)
	if idx < 0 {
		room.mu.Unlock()
		return
	}
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	room.LastActivity = time.Now()

	if len(room.Players) == 0 {
		room.mu.Unlock()
		s.deleteRoom(code)
		return
	}

	var newHostID string
	if room.HostID == userID {
		newHost := room.Players[0]
		newHost.IsHost = true
		newHost.IsReady = true
		room.HostID = newHost.UserID
		newHostID = newHost.UserID
	}
	view := snapshotRoomLocked(room)
	remaining := otherPlayerIDsLocked(room, "")
	isPrivate := room.Settings.IsPrivate
	room.mu.Unlock()

	s.notifier.ToUsers(remaining, "room:playerLeft", map[string]interface{}{
		"userId": userID,
		"room":   view,
	})
	if newHostID != "" {
		s.notifier.ToUsers(remaining, "room:hostChanged", map[string]interface{}{
			"hostId": newHostID,
		})
	}
	if !isPrivate {
		s.notifier.ToLobby("lobby:roomUpdated", view)
	}
}

// SetReady toggles a player's ready flag. The host is always ready.
func (s *RoomService) SetReady(ctx context.Context, userID string, ready bool) error {
	room := s.roomOf(userID)
	if room == nil {
		return ErrNotFound
	}

	room.mu.Lock()
	idx := playerIndex(room.Players, userID)
	if idx < 0 {
		room.mu.Unlock()
		return ErrNotFound
	}
	if room.HostID != userID {
		room.Players[idx].IsReady = ready
	}
	room.LastActivity = time.Now()
	view := snapshotRoomLocked(room)
	all := otherPlayerIDsLocked(room, "")
	room.mu.Unlock()

	s.notifier.ToUsers(all, "room:playerReady", map[string]interface{}{
		"userId":  userID,
		"isReady": ready,
		"room":    view,
	})
	return nil
}

// KickPlayer removes a player from the host's room.
func (s *RoomService) KickPlayer(ctx context.Context, hostID, targetID string) error {
	room := s.roomOf(hostID)
	if room == nil {
		return ErrNotFound
	}

	room.mu.Lock()
	if room.HostID != hostID {
		room.mu.Unlock()
		return ErrNotHost
	}
	idx := playerIndex(room.Players, targetID)
	if idx < 0 || targetID == hostID {
		room.mu.Unlock()
		return ErrNotFound
	}
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	room.LastActivity = time.Now()
	view := snapshotRoomLocked(room)
	remaining := otherPlayerIDsLocked(room, "")
	isPrivate := room.Settings.IsPrivate
	room.mu.Unlock()

	s.mu.Lock()
	delete(s.byUser, targetID)
	s.mu.Unlock()

	s.notifier.ToUser(targetID, "room:kicked", map[string]interface{}{"roomCode": room.Code})
	s.notifier.ToUsers(remaining, "room:playerLeft", map[string]interface{}{
		"userId": targetID,
		"room":   view,
	})
	if !isPrivate {
		s.notifier.ToLobby("lobby:roomUpdated", view)
	}
	return nil
}

// UpdateSettings replaces the room's game settings. Host only, waiting rooms
// only; ready flags of non-host players reset so everyone re-confirms.
func (s *RoomService) UpdateSettings(ctx context.Context, hostID string, settings RoomSettings) error {
	room := s.roomOf(hostID)
	if room == nil {
		return ErrNotFound
	}

	room.mu.Lock()
	if room.HostID != hostID {
		room.mu.Unlock()
		return ErrNotHost
	}
	if room.Status != RoomWaiting {
		room.mu.Unlock()
		return ErrRoomNotWaiting
	}

	cfg := engine.ConfigFor(engine.GameMode(settings.Mode))
	settings.Mode = string(cfg.Mode)
	if settings.TimeLimit <= 0 {
		settings.TimeLimit = cfg.TimeLimit
	}
	if settings.MaxAttempts == 0 {
		settings.MaxAttempts = cfg.MaxAttempts
	}
	room.Settings = settings
	for _, p := range room.Players {
		if p.UserID != room.HostID {
			p.IsReady = false
		}
	}
	room.LastActivity = time.Now()
	view := snapshotRoomLocked(room)
	all := otherPlayerIDsLocked(room, "")
	isPrivate := settings.IsPrivate
	room.mu.Unlock()

	s.notifier.ToUsers(all, "room:settingsUpdated", view)
	if !isPrivate {
		s.notifier.ToLobby("lobby:roomUpdated", view)
	}
	return nil
}

// StartGame begins the countdown and hands the room to the game coordinator
// once it fires. Host only; every non-host player must be ready.
func (s *RoomService) StartGame(ctx context.Context, hostID string) error {
	room := s.roomOf(hostID)
	if room == nil {
		return ErrNotFound
	}

	room.mu.Lock()
	if room.HostID != hostID {
		room.mu.Unlock()
		return ErrNotHost
	}
	if room.Status != RoomWaiting {
		room.mu.Unlock()
		return ErrRoomNotWaiting
	}
	if len(room.Players) < 2 {
		room.mu.Unlock()
		return ErrNotEnoughPlayers
	}
	for _, p := range room.Players {
		if p.UserID != room.HostID && !p.IsReady {
			room.mu.Unlock()
			return ErrPlayersNotReady
		}
	}
	room.Status = RoomStarting
	room.LastActivity = time.Now()
	all := otherPlayerIDsLocked(room, "")
	countdownSecs := int(s.countdown / time.Second)
	room.mu.Unlock()

	s.notifier.ToUsers(all, "room:gameStarting", map[string]interface{}{
		"countdown": countdownSecs,
	})

	time.AfterFunc(s.countdown, func() {
		s.launchGame(room)
	})
	return nil
}

func (s *RoomService) launchGame(room *roomState) {
	room.mu.Lock()
	if room.Status != RoomStarting {
		room.mu.Unlock()
		return
	}
	// A player may have dropped during the countdown.
	if len(room.Players) < 2 {
		room.Status = RoomWaiting
		all := otherPlayerIDsLocked(room, "")
		room.mu.Unlock()
		s.notifier.ToUsers(all, "room:error", map[string]interface{}{
			"message": ErrNotEnoughPlayers.Error(),
		})
		return
	}
	room.Status = RoomInGame
	players := make([]PlayerInfo, len(room.Players))
	for i, p := range room.Players {
		players[i] = *p
	}
	code := room.Code
	settings := room.Settings
	isPrivate := settings.IsPrivate
	room.mu.Unlock()

	if !isPrivate {
		s.notifier.ToLobby("lobby:roomDeleted", map[string]interface{}{"code": code})
	}

	if _, err := s.games.StartGame(context.Background(), code, players, settings.Mode, settings); err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to start game from room")
		room.mu.Lock()
		room.Status = RoomWaiting
		all := otherPlayerIDsLocked(room, "")
		room.mu.Unlock()
		s.notifier.ToUsers(all, "room:error", map[string]interface{}{
			"message": "failed to start the game",
		})
	}
}

// GameFinished returns a room to the waiting state after its game ends, so
// the players can rematch or adjust settings.
func (s *RoomService) GameFinished(code string) {
	room := s.getRoom(code)
	if room == nil {
		return
	}
	room.mu.Lock()
	if room.Status != RoomInGame {
		room.mu.Unlock()
		return
	}
	room.Status = RoomWaiting
	for _, p := range room.Players {
		if p.UserID != room.HostID {
			p.IsReady = false
		}
	}
	room.LastActivity = time.Now()
	view := snapshotRoomLocked(room)
	isPrivate := room.Settings.IsPrivate
	room.mu.Unlock()

	if !isPrivate {
		s.notifier.ToLobby("lobby:roomUpdated", view)
	}
}

// ListPublicRooms returns joinable rooms, newest first. A non-empty mode
// narrows the list to rooms playing that mode.
func (s *RoomService) ListPublicRooms(mode string, page, limit int) []RoomView {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	s.mu.RLock()
	candidates := make([]*roomState, 0, len(s.rooms))
	for _, room := range s.rooms {
		candidates = append(candidates, room)
	}
	s.mu.RUnlock()

	views := make([]RoomView, 0, len(candidates))
	for _, room := range candidates {
		room.mu.Lock()
		if room.Status == RoomWaiting && !room.Settings.IsPrivate && len(room.Players) < roomMaxPlayers &&
			(mode == "" || room.Settings.Mode == mode) {
			views = append(views, *snapshotRoomLocked(room))
		}
		room.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})

	start := (page - 1) * limit
	if start >= len(views) {
		return []RoomView{}
	}
	end := start + limit
	if end > len(views) {
		end = len(views)
	}
	return views[start:end]
}

// RoomOfUser returns the code of the room the user currently sits in.
func (s *RoomService) RoomOfUser(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.byUser[userID]
	return code, ok
}

// Chat relays a room chat line to everyone in the sender's room.
func (s *RoomService) Chat(userID, username, message string) {
	room := s.roomOf(userID)
	if room == nil {
		return
	}
	room.mu.Lock()
	all := otherPlayerIDsLocked(room, "")
	room.mu.Unlock()

	s.notifier.ToUsers(all, "room:chat", map[string]interface{}{
		"userId":    userID,
		"username":  username,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
	})
}

// Typing relays a typing indicator to the rest of the sender's room.
func (s *RoomService) Typing(userID, username string, isTyping bool) {
	room := s.roomOf(userID)
	if room == nil {
		return
	}
	room.mu.Lock()
	others := otherPlayerIDsLocked(room, userID)
	room.mu.Unlock()

	s.notifier.ToUsers(others, "chat:typing", map[string]interface{}{
		"userId":   userID,
		"username": username,
		"isTyping": isTyping,
	})
}

// SweepIdleRooms tears down waiting rooms that saw no activity for the idle
// timeout. Called periodically from main.
func (s *RoomService) SweepIdleRooms() {
	cutoff := time.Now().Add(-s.idleTimeout)

	s.mu.RLock()
	candidates := make([]*roomState, 0, len(s.rooms))
	for _, room := range s.rooms {
		candidates = append(candidates, room)
	}
	s.mu.RUnlock()

	for _, room := range candidates {
		room.mu.Lock()
		stale := room.Status == RoomWaiting && room.LastActivity.Before(cutoff)
		var members []string
		if stale {
			members = otherPlayerIDsLocked(room, "")
		}
		code := room.Code
		room.mu.Unlock()

		if !stale {
			continue
		}
		s.notifier.ToUsers(members, "room:error", map[string]interface{}{
			"message": "room closed for inactivity",
		})
		s.mu.Lock()
		for _, id := range members {
			if s.byUser[id] == code {
				delete(s.byUser, id)
			}
		}
		s.mu.Unlock()
		s.deleteRoom(code)
		log.Info().Str("room", code).Msg("idle room swept")
	}
}

func (s *RoomService) lookupPlayer(ctx context.Context, userID string) (*PlayerInfo, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, ErrNotFound
	}
	p := playerInfoOf(user)
	return &p, nil
}

func (s *RoomService) getRoom(code string) *roomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[code]
}

func (s *RoomService) roomOf(userID string) *roomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	return s.rooms[code]
}

func (s *RoomService) deleteRoom(code string) {
	s.mu.Lock()
	room := s.rooms[code]
	delete(s.rooms, code)
	s.mu.Unlock()
	if room != nil && !room.Settings.IsPrivate {
		s.notifier.ToLobby("lobby:roomDeleted", map[string]interface{}{"code": code})
	}
}

// newRoomCodeLocked generates an unused 6-character code. Caller holds s.mu.
func (s *RoomService) newRoomCodeLocked() string {
	for {
		b := make([]byte, roomCodeLength)
		for i := range b {
			b[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
		}
		code := string(b)
		if _, taken := s.rooms[code]; !taken {
			return code
		}
	}
}

func playerIndex(players []*PlayerInfo, userID string) int {
	for i, p := range players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// otherPlayerIDsLocked lists member IDs excluding one. Pass "" for all.
func otherPlayerIDsLocked(room *roomState, except string) []string {
	ids := make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		if p.UserID != except {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func snapshotRoom(room *roomState) *RoomView {
	room.mu.Lock()
	defer room.mu.Unlock()
	return snapshotRoomLocked(room)
}

func snapshotRoomLocked(room *roomState) *RoomView {
	players := make([]PlayerInfo, len(room.Players))
	for i, p := range room.Players {
		players[i] = *p
	}
	return &RoomView{
		Code:        room.Code,
		Name:        room.Name,
		HostID:      room.HostID,
		Settings:    room.Settings,
		Players:     players,
		PlayerCount: len(players),
		MaxPlayers:  roomMaxPlayers,
		Status:      room.Status,
		HasPassword: room.Password != "",
		CreatedAt:   room.CreatedAt,
	}
}
