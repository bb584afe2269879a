// Sync Lounge paired-session coordinator
//
// Exactly two authenticated participants share a room identified by an
// opaque couple code, and the server relays low-latency events between
// them: shared-canvas strokes, movie swipe/match signals, synchronized
// question-and-answer reveals, and heartbeats.
//
// Features:
// - Authenticated WebSocket at /ws, room selected via join_room
// - Shareable landing page and QR code per room at /lounge/:roomid
// - Bearer-token handshake check before any event is accepted
// - Membership capped at two distinct users; third joins are rejected
// - Canvas history resync, clear, and author-scoped undo
// - Mutual movie likes trigger a match broadcast, idempotent per connection
// - Mind-meld and truth-or-dare rounds with per-recipient reveals
// - Daily pulse question shared room-wide, with partner-submitted nudges
// - Fridge notes (create/move/delete) relayed to the partner verbatim
// - Prompt generation guarded by a per-room busy window with fallback text
// - Disconnects purge pending answers and likes, and notify the partner
// - Rooms auto-reaped after a configurable idle timeout
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn *websocket.Conn
	send chan any

	id       string // connection id, ephemeral
	userID   string // resolved by the authorization gate
	authRoom string // room the identity provider authorizes, canonical

	hub *Hub // set on successful join, touched only by the read pump

	mu     sync.Mutex
	closed bool // set once, when the client is dropped or disconnects
}

// trySend queues msg for the write pump. Returns false if the client is
// already closed or its buffer is full; it never blocks and never panics,
// so callers can race against shutdown safely.
func (c *Client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown marks the client closed, closes its send channel exactly once,
// and tears down the connection so both pumps wind down. Safe to call from
// any goroutine, any number of times.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// broadcast scope, threaded through every send so the self-inclusion policy
// is explicit per event type.
type scope int

const (
	toAll scope = iota
	toOthers
	toOne
)

// Hub owns every piece of state for one room. All mutation goes through
// methods that hold mu; nothing outside the hub keeps authoritative copies.
type Hub struct {
	id string // canonical room code

	mu      sync.RWMutex
	clients map[*Client]bool
	canvas  []Stroke
	likes   map[int]map[string]bool // movie id -> liker connection ids
	rounds  map[string]*round       // feature -> round in flight
	page    int                     // deterministic movie sync page

	createdAt  time.Time
	lastActive time.Time

	gate  *genGate
	store RoundStore
}

func newHub(roomID string, gate *genGate, store RoundStore) *Hub {
	now := time.Now()
	return &Hub{
		id:         roomID,
		clients:    make(map[*Client]bool),
		likes:      make(map[int]map[string]bool),
		rounds:     make(map[string]*round),
		page:       syncPageFor(roomID),
		createdAt:  now,
		lastActive: now,
		gate:       gate,
		store:      store,
	}
}

// admit enforces the two-participant invariant and performs the resync side
// effects for the joining connection. "Already a member" is keyed by user
// identity, so a user rejoining over their own stale tab is not
// capacity-rejected.
func (h *Hub) admit(c *Client) error {
	if c.isClosed() {
		return ErrConnClosed
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if !h.clients[c] {
		users := make(map[string]bool, 2)
		for member := range h.clients {
			users[member.userID] = true
		}
		if len(users) >= 2 && !users[c.userID] {
			logrus.WithFields(logrus.Fields{
				"room_id": h.id,
				"user_id": c.userID,
			}).Warn("ROOMS: Join rejected, room full")
			return ErrRoomFull
		}
		h.clients[c] = true
	}

	logrus.WithFields(logrus.Fields{
		"room_id": h.id,
		"user_id": c.userID,
		"conn_id": c.id,
	}).Info("ROOMS: Client joined")

	// Resync: canvas history, any round in progress, and the movie page
	// seed, to this connection only.
	if len(h.canvas) > 0 {
		h.sendLocked(c, CanvasHistoryMessage{
			Type:    "canvas:history",
			Strokes: append([]Stroke(nil), h.canvas...),
		})
	}
	for feature, r := range h.rounds {
		if r.state == roundActive {
			h.sendLocked(c, promptMessageFor(feature, r))
		}
	}
	h.sendLocked(c, SyncPageMessage{
		Type: "movie:sync_page",
		Page: h.page,
	})

	return nil
}

// leave removes the connection and purges everything that references it, so
// a later reconnect by the same person cannot inherit stale half-finished
// contributions. The remaining member gets a partner-left notice.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	delete(h.clients, c)
	c.shutdown()

	for _, r := range h.rounds {
		delete(r.answers, c.id)
	}
	for movieID, likers := range h.likes {
		delete(likers, c.id)
		if len(likers) == 0 {
			delete(h.likes, movieID)
		}
	}

	// A duplicate tab closing is not the partner leaving; only notify once
	// no connection for this user remains.
	stillHere := false
	for member := range h.clients {
		if member.userID == c.userID {
			stillHere = true
			break
		}
	}
	if !stillHere {
		h.broadcastLocked(toAll, nil, SimpleMessage{
			Type:    "room:partner_left",
			Message: "Your partner left the room.",
		})
	}

	logrus.WithFields(logrus.Fields{
		"room_id": h.id,
		"user_id": c.userID,
		"conn_id": c.id,
	}).Info("ROOMS: Client left")
}

// sendLocked queues a message for one client, dropping the client if its
// send buffer is full. The drop goes through Client.shutdown so the pumps
// wind down and later sends (or a rejoin attempt) see a closed client
// instead of a closed channel. Assumes h.mu is held.
func (h *Hub) sendLocked(c *Client, msg any) {
	if !c.trySend(msg) {
		delete(h.clients, c)
		c.shutdown()
	}
}

// broadcastLocked delivers msg to room members according to the scope:
// everyone, everyone but ref, or ref alone. Assumes h.mu is held.
func (h *Hub) broadcastLocked(s scope, ref *Client, msg any) {
	for client := range h.clients {
		switch s {
		case toOthers:
			if client == ref {
				continue
			}
		case toOne:
			if client != ref {
				continue
			}
		}
		h.sendLocked(client, msg)
	}
}

// relay forwards a pre-built message with the given scope, with no state
// change. Used for typing indicators and heartbeats.
func (h *Hub) relay(s scope, ref *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()
	h.broadcastLocked(s, ref, msg)
}

// closeAll disconnects all clients of this hub (used by the reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		c.shutdown()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS is the authorization gate and transport entry point. The bearer
// token must arrive with the handshake; a connection with a missing or
// invalid token (or an unreachable identity provider) is refused before the
// upgrade, so no event is ever accepted from it.
func serveWSForManager(rm *RoomManager, identity IdentityProvider) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		token := bearerToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"))

		ident, err := identity.Resolve(r.Context(), token)
		if err != nil {
			logrus.WithError(err).Warn("AUTH: Connection refused")
			http.Error(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("WS: Upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			id:       uuid.NewString(),
			userID:   ident.UserID,
			authRoom: ident.RoomID,
		}

		logrus.WithFields(logrus.Fields{
			"user_id": client.userID,
			"conn_id": client.id,
			"remote":  realIP(r),
		}).Debug("WS: Client connected")

		go client.writePump()
		client.readPump(rm)
	}
}

func (c *Client) readPump(rm *RoomManager) {
	defer func() {
		if c.hub != nil {
			c.hub.leave(c)
		} else {
			c.shutdown()
		}
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msg.Type == "join_room" {
			if err := rm.Join(c, msg.RoomID); err != nil {
				c.trySend(SimpleMessage{
					Type:    "room:error",
					Message: joinErrorText(err),
				})
			}
			continue
		}

		// Every other event requires membership first.
		if c.hub == nil {
			continue
		}

		switch msg.Type {
		case "canvas:draw":
			c.hub.draw(c, Stroke{
				PrevX:    msg.PrevX,
				PrevY:    msg.PrevY,
				X:        msg.X,
				Y:        msg.Y,
				Color:    msg.Color,
				StrokeID: msg.StrokeID,
				author:   c.id,
			})
		case "canvas:clear":
			c.hub.clearCanvas()
		case "canvas:undo":
			c.hub.undo(c)
		case "movie:swipe":
			c.hub.swipe(c, msg.MovieID, msg.Direction)
		case "mind:generate_question":
			// Generation blocks on the upstream call, so it must not stall
			// the read pump; the hub and gate both guard duplicates.
			go c.hub.requestRound(c, "mind", msg)
		case "truth:generate":
			go c.hub.requestRound(c, "truth", msg)
		case "daily:generate":
			go c.hub.requestRound(c, "daily", msg)
		case "daily:submit":
			// Answers are stored by the client app; the server only nudges
			// the partner.
			c.hub.relay(toOthers, c, SimpleMessage{Type: "daily:partner_submitted"})
		case "note:create":
			c.hub.noteCreate(c, msg.Note)
		case "note:move":
			c.hub.noteMove(c, msg.NoteID, msg.X, msg.Y)
		case "note:delete":
			c.hub.noteDelete(c, msg.NoteID)
		case "mind:submit":
			c.hub.submitAnswer(c, "mind", msg.Answer)
		case "truth:submit":
			c.hub.submitAnswer(c, "truth", msg.Answer)
		case "mind:typing":
			c.hub.relay(toOthers, c, TypingMessage{Type: "mind:partner_typing", IsTyping: msg.IsTyping})
		case "truth:typing":
			c.hub.relay(toOthers, c, TypingMessage{Type: "truth:partner_typing", IsTyping: msg.IsTyping})
		case "heart:beat":
			c.hub.relay(toOthers, c, SimpleMessage{Type: "heart:beat"})
		default:
			// ignore unknown types
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
}

// QR handler: generates a PNG QR code for the current room URL so one
// partner can share the couple code with the other.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := canonicalRoomID(ps.ByName("roomid"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("Room "+roomID, "Room "+roomID+". Open the Sync Lounge app and enter this code to join your partner.")))
	}
}

// registerLounge sets up routes so that:
//   - /ws                   → authenticated WebSocket, room chosen via join_room
//   - $path/:roomid         → shareable landing page for a room code
//   - $path/:roomid/qr      → PNG QR code for that room URL
func registerLounge(cfg *Config, path string, mux *httprouter.Router, rm *RoomManager, identity IdentityProvider) {
	mux.GET(cfg.prefix+"/ws", serveWSForManager(rm, identity))

	mux.GET(cfg.prefix+path+"/:roomid", serveRoomPage(cfg))

	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
