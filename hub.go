package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/whogotwho/game"
)

// Messages coming from clients
type ClientMessage struct {
	Type        string `json:"type"`
	PackID      string `json:"packId,omitempty"`      // select_pack
	TaskID      string `json:"taskId,omitempty"`      // swap_task, claim_gotcha, open_dispute
	Outcome     string `json:"outcome,omitempty"`     // claim_gotcha
	TargetID    string `json:"targetId,omitempty"`    // claim_gotcha
	ChallengeID string `json:"challengeId,omitempty"` // complete_challenge
	Proof       []byte `json:"proof,omitempty"`       // complete_challenge, base64 in JSON
	DisputeID   string `json:"disputeId,omitempty"`   // cast_vote
	Uphold      *bool  `json:"uphold,omitempty"`      // cast_vote
	Locked      *bool  `json:"locked,omitempty"`      // lock_in
}

// SnapshotMessage carries the full game after every committed change.
type SnapshotMessage struct {
	Type string    `json:"type"` // "snapshot"
	Game game.Game `json:"game"`
}

// ErrorMessage is sent only to the client whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SimpleMessage is for notifications without a payload ("deleted", "left").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

// Hub fans one game's snapshots out to its connected clients and runs their
// requests against the game manager, one at a time.
type Hub struct {
	id    string
	games *game.Manager
	cfg   *Config

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	events   chan game.Event
	done     chan struct{}
	stopOnce sync.Once

	unsubscribe func()
	onDeleted   func()

	mu         sync.RWMutex
	lastActive time.Time
	latest     game.Game
	version    int64
	// connections counts open clients per player id.
	connections map[string]int
}

func newHub(cfg *Config, games *game.Manager, gameID string) *Hub {
	return &Hub{
		id:         gameID,
		games:      games,
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		events:     make(chan game.Event, 16),
		done:       make(chan struct{}),
		lastActive: time.Now(),

		connections: make(map[string]int),
	}
}

// subscribe starts delivery of store events to the hub. The store sends the
// current game first.
func (h *Hub) subscribe(ctx context.Context) error {
	unsubscribe, err := h.games.Subscribe(ctx, h.id, func(ev game.Event) {
		select {
		case h.events <- ev:
		case <-h.done:
		}
	})
	if err != nil {
		return err
	}
	h.unsubscribe = unsubscribe
	return nil
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
	})
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActive
}

func (h *Hub) snapshot() (game.Game, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.version > 0
}

func (h *Hub) run() {
	defer h.closeAll()

	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.touch()
			h.clients[c] = true
			h.setOnline(c.playerID, 1)

			if g, ok := h.snapshot(); ok {
				h.deliver(c, SnapshotMessage{Type: "snapshot", Game: g})
			}

		case c := <-h.unreg:
			h.touch()

			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.drop(c)

			if !h.online(c.playerID) {
				if g, ok := h.snapshot(); ok && g.Status == game.StatusDraft {
					go h.scheduleRemoval(c.playerID, h.cfg.playerTimeout)
				}
			}

		case ev := <-h.events:
			h.touch()

			if ev.Deleted {
				logf(h.cfg, "GAMES: Game %s was removed", h.id)
				h.broadcast(SimpleMessage{Type: "deleted", Message: "this game has been closed"})
				if h.onDeleted != nil {
					h.onDeleted()
				}
				h.stop()
				return
			}

			h.mu.Lock()
			stale := ev.Game.Version <= h.version
			if !stale {
				h.latest = ev.Game
				h.version = ev.Game.Version
			}
			h.mu.Unlock()

			if !stale {
				h.broadcast(SnapshotMessage{Type: "snapshot", Game: ev.Game})
			}

		case cmd := <-h.commands:
			h.touch()
			h.handleCommand(cmd)
		}
	}
}

func (h *Hub) setOnline(playerID string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[playerID] += delta
	if h.connections[playerID] <= 0 {
		delete(h.connections, playerID)
	}
}

func (h *Hub) online(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connections[playerID] > 0
}

// drop forgets a client and closes its send queue, which makes its write
// pump hang up.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setOnline(c.playerID, -1)
}

// deliver queues msg for one client, dropping the client if it is too far
// behind.
func (h *Hub) deliver(c *Client, msg any) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.drop(c)
	}
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.deliver(c, msg)
	}
}

func (h *Hub) sendError(c *Client, err error) {
	pe := describeError(h.cfg, err)
	h.deliver(c, ErrorMessage{Type: "error", Kind: pe.kind, Message: pe.message})
}

// scheduleRemoval waits for d, and if the player has not reconnected and the
// game has not started, takes them out of the lobby.
func (h *Hub) scheduleRemoval(playerID string, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-h.done:
		return
	}

	if h.online(playerID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, err := h.games.Get(ctx, h.id)
	if err != nil || g.Status != game.StatusDraft || g.Player(playerID) == nil {
		return
	}

	if _, _, err := h.games.LeaveGame(ctx, h.id, playerID); err != nil && !errors.Is(err, game.ErrNotFound) {
		logf(h.cfg, "ERROR: Removing idle player %s from %s: %v", playerID, h.id, err)
		return
	}
	logf(h.cfg, "GAMES: Removed disconnected player %s from %s", playerID, h.id)
}

// closeAll disconnects all clients of this hub once their queued messages
// are written.
func (h *Hub) closeAll() {
	for c := range h.clients {
		h.drop(c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// readLimit leaves room for a base64 encoded proof photo.
func readLimit(cfg *Config) int64 {
	return int64(cfg.proofMaxSize)/3*4 + 64<<10
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit(h.cfg))

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case h.commands <- command{client: c, msg: msg}:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// HubManager holds one hub per game that has connected clients.
type HubManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	games       *game.Manager
	idleTimeout time.Duration
}

func newHubManager(games *game.Manager, idleTimeout time.Duration) *HubManager {
	return &HubManager{
		hubs:        make(map[string]*Hub),
		games:       games,
		idleTimeout: idleTimeout,
	}
}

// getHub returns the running hub for gameID, starting one if needed.
func (hm *HubManager) getHub(ctx context.Context, cfg *Config, gameID string) (*Hub, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[gameID]; ok {
		return hub, nil
	}

	hub := newHub(cfg, hm.games, gameID)
	hub.onDeleted = func() { hm.remove(gameID, hub) }
	if err := hub.subscribe(ctx); err != nil {
		return nil, err
	}
	hm.hubs[gameID] = hub
	go hub.run()
	return hub, nil
}

func (hm *HubManager) remove(gameID string, hub *Hub) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.hubs[gameID] == hub {
		delete(hm.hubs, gameID)
	}
}

func (hm *HubManager) count() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// reap periodically stops hubs that have been idle longer than idleTimeout,
// until ctx is done.
func (hm *HubManager) reap(ctx context.Context) error {
	if hm.idleTimeout <= 0 {
		<-ctx.Done()
		hm.stopAll()
		return nil
	}

	ticker := time.NewTicker(hm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hm.stopAll()
			return nil
		case <-ticker.C:
			hm.reapIdle(time.Now().Add(-hm.idleTimeout))
		}
	}
}

func (hm *HubManager) reapIdle(cutoff time.Time) int {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	reaped := 0
	for id, hub := range hm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(hm.hubs, id)
			hub.stop()
			reaped++
		}
	}
	return reaped
}

func (hm *HubManager) stopAll() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	for id, hub := range hm.hubs {
		delete(hm.hubs, id)
		hub.stop()
	}
}

// serveWS upgrades a player's connection and attaches it to the game's hub.
func serveWS(cfg *Config, games *game.Manager, hm *HubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := gameIDParam(ps)

		s, ok := readSession(r)
		if !ok || s.gameID != gameID {
			writeError(cfg, w, game.ErrUnauthorized)
			return
		}

		g, err := games.Get(r.Context(), gameID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		if g.Player(s.playerID) == nil {
			writeError(cfg, w, game.ErrNotFound)
			return
		}

		hub, err := hm.getHub(context.WithoutCancel(r.Context()), cfg, gameID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrading connection from %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: s.playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %s connected to %s from %s", s.playerID, gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}
