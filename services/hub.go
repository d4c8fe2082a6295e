package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"numball/store"
)

// Envelope is the wire frame for every websocket message, both directions.
// The type names the event; the payload shape depends on it and is decoded
// per event at the boundary.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// PresenceStore flips the durable online flag; the user repository
// implements it.
type PresenceStore interface {
	SetOnline(ctx context.Context, id string, online bool) error
}

// Hub owns every live websocket connection, keyed by user. It fans server
// events out through the Notifier interface and dispatches client events to
// the coordinators.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	session  store.SessionStore
	presence PresenceStore

	games       *GameService
	rooms       *RoomService
	matchmaking *MatchmakingService
}

type Client struct {
	hub      *Hub
	id       string
	userID   string
	username string
	socket   *websocket.Conn

	sendMu sync.Mutex
	closed bool
	send   chan []byte
}

// trySend queues an outbound frame. It reports false when the buffer is full
// or the client has already shut down; either way the caller drops the client.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once; trySend may race with it
// safely. The write pump drains whatever is still queued and exits.
func (c *Client) shutdown() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
	if c.socket != nil {
		c.socket.Close()
	}
}

func NewHub(session store.SessionStore, presence PresenceStore) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		session:    session,
		presence:   presence,
	}
}

// Attach wires the coordinators in after construction; they need the hub as
// their Notifier first.
func (h *Hub) Attach(games *GameService, rooms *RoomService, matchmaking *MatchmakingService) {
	h.games = games
	h.rooms = rooms
	h.matchmaking = matchmaking
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			old := h.clients[client.userID]
			h.clients[client.userID] = client
			h.mutex.Unlock()
			if old != nil {
				// A second connection for the same user replaces the first.
				old.shutdown()
			}
			h.onConnect(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			current, ok := h.clients[client.userID]
			if ok && current == client {
				delete(h.clients, client.userID)
				client.shutdown()
			}
			h.mutex.Unlock()
			if ok && current == client {
				h.onDisconnect(client)
			}
		}
	}
}

func (h *Hub) onConnect(client *Client) {
	ctx := context.Background()
	if err := h.session.SAdd(ctx, "online_users", client.userID); err != nil {
		log.Warn().Err(err).Str("user", client.userID).Msg("failed to record online presence")
	}
	if err := h.session.Set(ctx, "socket:"+client.userID, client.id, 0); err != nil {
		log.Warn().Err(err).Str("user", client.userID).Msg("failed to record socket id")
	}
	if err := h.presence.SetOnline(ctx, client.userID, true); err != nil {
		log.Warn().Err(err).Str("user", client.userID).Msg("failed to flag user online")
	}

	h.ToUser(client.userID, "connection:established", map[string]interface{}{
		"userId":   client.userID,
		"socketId": client.id,
	})
	// A returning player picks their live game back up.
	h.games.HandleReconnect(ctx, client.userID)
	log.Info().Str("user", client.userID).Str("socket", client.id).Msg("client connected")
}

func (h *Hub) onDisconnect(client *Client) {
	ctx := context.Background()
	if err := h.session.SRem(ctx, "online_users", client.userID); err != nil && err != store.ErrNotFound {
		log.Warn().Err(err).Str("user", client.userID).Msg("failed to clear online presence")
	}
	if err := h.session.Del(ctx, "socket:"+client.userID); err != nil && err != store.ErrNotFound {
		log.Warn().Err(err).Str("user", client.userID).Msg("failed to clear socket id")
	}
	if err := h.presence.SetOnline(ctx, client.userID, false); err != nil {
		log.Warn().Err(err).Str("user", client.userID).Msg("failed to flag user offline")
	}

	h.matchmaking.HandleDisconnect(ctx, client.userID)
	h.rooms.LeaveRoom(ctx, client.userID)
	h.games.HandleDisconnect(ctx, client.userID)
	log.Info().Str("user", client.userID).Msg("client disconnected")
}

// ToUser delivers one event to one connected user. Unknown or offline users
// are skipped silently; game-level disconnect handling already covers them.
func (h *Hub) ToUser(userID, event string, payload interface{}) {
	data, err := json.Marshal(outEnvelope{Type: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}

	h.mutex.RLock()
	client, ok := h.clients[userID]
	h.mutex.RUnlock()
	if !ok {
		return
	}
	if !client.trySend(data) {
		// Slow consumer; drop the connection rather than block the hub.
		go h.UnregisterClient(client)
	}
}

func (h *Hub) ToUsers(userIDs []string, event string, payload interface{}) {
	for _, id := range userIDs {
		h.ToUser(id, event, payload)
	}
}

// ToLobby broadcasts to every connected client.
func (h *Hub) ToLobby(event string, payload interface{}) {
	data, err := json.Marshal(outEnvelope{Type: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal lobby event")
		return
	}

	h.mutex.RLock()
	stale := make([]*Client, 0)
	for _, client := range h.clients {
		if !client.trySend(data) {
			stale = append(stale, client)
		}
	}
	h.mutex.RUnlock()
	for _, client := range stale {
		go h.UnregisterClient(client)
	}
}

// BroadcastOnlineStats pushes the lobby headcount. Called from a ticker in
// main.
func (h *Hub) BroadcastOnlineStats(ctx context.Context) {
	online, err := h.session.SCard(ctx, "online_users")
	if err != nil {
		return
	}
	inGame, err := h.session.SCard(ctx, "in_game_users")
	if err != nil {
		inGame = 0
	}
	h.ToLobby("lobby:onlineCount", map[string]interface{}{
		"online": online,
		"inGame": inGame,
	})
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID, username string) *Client {
	client := &Client{
		hub:      h,
		id:       uuid.New().String(),
		userID:   userID,
		username: username,
		socket:   conn,
		send:     make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("user", c.userID).Msg("websocket read error")
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Debug().Err(err).Str("user", c.userID).Msg("malformed envelope")
			continue
		}
		c.handleMessage(env)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

// Inbound payload shapes, decoded per event.
type (
	matchStartPayload struct {
		Mode   string `json:"mode"`
		Ranked bool   `json:"ranked"`
	}
	roomCreatePayload struct {
		Name     string       `json:"name"`
		Password string       `json:"password"`
		Settings RoomSettings `json:"settings"`
	}
	roomJoinPayload struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	roomReadyPayload struct {
		IsReady bool `json:"isReady"`
	}
	roomKickPayload struct {
		UserID string `json:"userId"`
	}
	roomSettingsPayload struct {
		Settings RoomSettings `json:"settings"`
	}
	roomListPayload struct {
		Mode  string `json:"mode"`
		Page  int    `json:"page"`
		Limit int    `json:"limit"`
	}
	chatPayload struct {
		Message string `json:"message"`
	}
	typingPayload struct {
		IsTyping bool `json:"isTyping"`
	}
	secretPayload struct {
		Secret string `json:"secret"`
	}
	guessPayload struct {
		Guess string `json:"guess"`
	}
	hintPayload struct {
		HintLevel int `json:"hintLevel"`
	}
	itemPayload struct {
		ItemID string `json:"itemId"`
	}
	rematchPayload struct {
		GameID string `json:"gameId"`
	}
)

func (c *Client) handleMessage(env Envelope) {
	ctx := context.Background()
	h := c.hub

	switch env.Type {
	case "ping":
		h.ToUser(c.userID, "pong", nil)

	case "matchmaking:start":
		var p matchStartPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.matchmaking.Enqueue(ctx, c.userID, p.Mode, p.Ranked); err != nil {
			c.sendError("matchmaking:error", err)
		}

	case "matchmaking:cancel":
		if err := h.matchmaking.Cancel(ctx, c.userID); err != nil {
			c.sendError("matchmaking:error", err)
		}

	case "room:create":
		var p roomCreatePayload
		if !c.decode(env, &p) {
			return
		}
		if _, err := h.rooms.CreateRoom(ctx, c.userID, p.Name, p.Password, p.Settings); err != nil {
			c.sendError("room:error", err)
		}

	case "room:join":
		var p roomJoinPayload
		if !c.decode(env, &p) {
			return
		}
		if _, err := h.rooms.JoinRoom(ctx, c.userID, normalizeCode(p.Code), p.Password); err != nil {
			c.sendError("room:error", err)
		}

	case "room:leave":
		h.rooms.LeaveRoom(ctx, c.userID)

	case "room:ready":
		var p roomReadyPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.rooms.SetReady(ctx, c.userID, p.IsReady); err != nil {
			c.sendError("room:error", err)
		}

	case "room:kick":
		var p roomKickPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.rooms.KickPlayer(ctx, c.userID, p.UserID); err != nil {
			c.sendError("room:error", err)
		}

	case "room:updateSettings":
		var p roomSettingsPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.rooms.UpdateSettings(ctx, c.userID, p.Settings); err != nil {
			c.sendError("room:error", err)
		}

	case "room:startGame":
		if err := h.rooms.StartGame(ctx, c.userID); err != nil {
			c.sendError("room:error", err)
		}

	case "room:list":
		var p roomListPayload
		c.decode(env, &p)
		h.ToUser(c.userID, "lobby:roomList", map[string]interface{}{
			"rooms": h.rooms.ListPublicRooms(p.Mode, p.Page, p.Limit),
		})

	case "room:chat":
		var p chatPayload
		if !c.decode(env, &p) || p.Message == "" {
			return
		}
		h.rooms.Chat(c.userID, c.username, p.Message)

	case "chat:message":
		var p chatPayload
		if !c.decode(env, &p) || p.Message == "" {
			return
		}
		h.ToLobby("chat:message", map[string]interface{}{
			"userId":    c.userID,
			"username":  c.username,
			"message":   p.Message,
			"timestamp": time.Now().UnixMilli(),
		})

	case "chat:typing":
		var p typingPayload
		if !c.decode(env, &p) {
			return
		}
		h.rooms.Typing(c.userID, c.username, p.IsTyping)

	case "game:setSecret":
		var p secretPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.games.SetSecret(ctx, c.userID, p.Secret); err != nil {
			c.sendError("game:error", err)
		}

	case "game:guess":
		var p guessPayload
		if !c.decode(env, &p) {
			return
		}
		if _, err := h.games.MakeGuess(ctx, c.userID, p.Guess); err != nil {
			c.sendError("game:error", err)
		}

	case "game:hint":
		var p hintPayload
		if !c.decode(env, &p) {
			return
		}
		if _, err := h.games.UseHint(ctx, c.userID, p.HintLevel); err != nil {
			c.sendError("game:error", err)
		}

	case "game:useItem":
		var p itemPayload
		c.decode(env, &p)
		if err := h.games.UseItem(ctx, c.userID, p.ItemID); err != nil {
			c.sendError("game:error", err)
		}

	case "game:surrender":
		if err := h.games.Surrender(ctx, c.userID); err != nil {
			c.sendError("game:error", err)
		}

	case "game:rematchRequest":
		var p rematchPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.games.RequestRematch(ctx, c.userID, p.GameID); err != nil {
			c.sendError("game:error", err)
		}

	case "game:rematchDecline":
		var p rematchPayload
		if !c.decode(env, &p) {
			return
		}
		if err := h.games.DeclineRematch(ctx, c.userID, p.GameID); err != nil {
			c.sendError("game:error", err)
		}

	default:
		log.Debug().Str("type", env.Type).Str("user", c.userID).Msg("unknown event type")
	}
}

func (c *Client) decode(env Envelope, into interface{}) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		c.sendError(errEventFor(env.Type), err)
		return false
	}
	return true
}

func (c *Client) sendError(event string, err error) {
	payload := map[string]interface{}{"message": err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) {
		payload["errors"] = verr.Problems
	}
	c.hub.ToUser(c.userID, event, payload)
}

func errEventFor(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "game:"):
		return "game:error"
	case strings.HasPrefix(eventType, "matchmaking:"):
		return "matchmaking:error"
	default:
		return "room:error"
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
