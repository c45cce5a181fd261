// Wordcast Hangman Game
//
// A television opens a session and shows a QR code; two phones scan it and
// join as player 1 and player 2. Each player privately submits a secret word
// plus an optional hint, then the TV reveals the words letter-by-letter over
// two guessing rounds while scores accumulate.
//
// Features:
// - WebSocket endpoint per session: /path/ws?session=<id>&type=tv|mobile
// - Mobile connections are seated in join order: player 1, then player 2
// - Player 2 is told to wait until player 1 has submitted a word
// - Secret words are only ever sent to the television, never to players
// - Round scores broadcast to the TV between rounds, to everyone at the end
// - play-again keeps seats and scores but clears words for a fresh game
// - Sessions expire a fixed time after creation, with a one-shot sweep
// - Random join codes via crypto/rand, with server-side collision check
// - REST fallback for session lifecycle and word submission
// - QR join links via go-qrcode, as a data URL and as a PNG endpoint

package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	roleTV     = "tv"
	roleMobile = "mobile"
)

// Messages coming from clients
type ClientMessage struct {
	Type    string `json:"type"`              // "submit-word", "round-complete", "play-again", "quit"
	Word    string `json:"word,omitempty"`    // submit-word
	Hint    string `json:"hint,omitempty"`    // submit-word
	Winner  bool   `json:"winner,omitempty"`  // round-complete
	Guesser int    `json:"guesser,omitempty"` // round-complete
}

// ErrorMessage is a structured error frame sent to a single client.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// SimpleMessage is for generic notifications ("game-started", "enter-words", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionStateMessage gives a freshly connected television the full picture.
type SessionStateMessage struct {
	Type    string       `json:"type"` // "session-state"
	Session SessionState `json:"session"`
}

type SessionState struct {
	Status               string `json:"status"`
	Player1Connected     bool   `json:"player1Connected"`
	Player2Connected     bool   `json:"player2Connected"`
	Player1WordSubmitted bool   `json:"player1WordSubmitted"`
	Player2WordSubmitted bool   `json:"player2WordSubmitted"`
}

// AssignedMessage tells a mobile client which seat it got and whether it may
// enter a word right away.
type AssignedMessage struct {
	Type         string `json:"type"` // "assigned"
	PlayerNumber int    `json:"playerNumber"`
	CanEnterWord bool   `json:"canEnterWord"`
	WaitingFor   int    `json:"waitingFor,omitempty"`
}

type PlayerJoinedMessage struct {
	Type         string `json:"type"` // "player-joined"
	PlayerNumber int    `json:"playerNumber"`
}

type WaitForWordMessage struct {
	Type       string `json:"type"` // "wait-for-word"
	WaitingFor int    `json:"waitingFor"`
}

type WordAcceptedMessage struct {
	Type       string `json:"type"` // "word-accepted"
	WordLength int    `json:"wordLength"`
}

// WordSubmittedMessage tells the television a word arrived. Length only,
// never the word itself.
type WordSubmittedMessage struct {
	Type         string `json:"type"` // "word-submitted"
	PlayerNumber int    `json:"playerNumber"`
	WordLength   int    `json:"wordLength"`
}

type YourTurnMessage struct {
	Type         string `json:"type"` // "your-turn"
	Message      string `json:"message,omitempty"`
	CanEnterWord bool   `json:"canEnterWord,omitempty"`
}

// GameReadyMessage carries both words to the television once the pair is in.
type GameReadyMessage struct {
	Type         string   `json:"type"` // "game-ready"
	Player1Word  WordView `json:"player1Word"`
	Player2Word  WordView `json:"player2Word"`
	CurrentRound int      `json:"currentRound"`
}

type Scores struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type NewRoundMessage struct {
	Type   string `json:"type"` // "new-round"
	Round  int    `json:"round"`
	Scores Scores `json:"scores"`
}

type GameCompleteMessage struct {
	Type   string `json:"type"` // "game-complete"
	Scores Scores `json:"scores"`
}

type PlayerDisconnectedMessage struct {
	Type         string `json:"type"` // "player-disconnected"
	PlayerNumber int    `json:"playerNumber,omitempty"`
	IsTV         bool   `json:"isTV,omitempty"`
}

type Client struct {
	conn         *websocket.Conn
	send         chan any
	id           string
	sessionID    string
	role         string
	playerNumber int // 0 for the television

	mu     sync.Mutex // guards closed and sends into send
	closed bool
}

// reply queues a frame for this client. Dropped if the client is gone or
// not keeping up.
func (c *Client) reply(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// closeSend shuts the send channel exactly once; queued frames are still
// flushed by the write pump before the socket closes.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Gateway owns the live websocket connections for one game and translates
// inbound messages into store mutations and role-filtered broadcasts. The
// store only ever sees connection ids.
type Gateway struct {
	cfg   *Config
	store *Store

	mu      sync.RWMutex
	clients map[string]*Client // conn id -> client
}

func newGateway(cfg *Config, store *Store) *Gateway {
	return &Gateway{
		cfg:     cfg,
		store:   store,
		clients: make(map[string]*Client),
	}
}

func (g *Gateway) register(c *Client) {
	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()
}

// unregister drops the client from the registry, clears its seat in the
// store, and tells the rest of the session who left.
func (g *Gateway) unregister(c *Client) {
	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()

	c.closeSend()

	result, ok := g.store.Unbind(c.id)
	if !ok {
		return
	}

	logf(g.cfg, "GAMES: Connection left session %s", result.SessionID)

	g.broadcastToSession(result.SessionID, PlayerDisconnectedMessage{
		Type:         "player-disconnected",
		PlayerNumber: result.PlayerNumber,
		IsTV:         result.IsTV,
	}, c.id)
}

// broadcastToSession sends msg to every connection in the session, skipping
// excludeID when non-empty. A missing or slow recipient is silently skipped.
func (g *Gateway) broadcastToSession(sessionID string, msg any, excludeID string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, c := range g.clients {
		if c.sessionID != sessionID || c.id == excludeID {
			continue
		}
		c.reply(msg)
	}
}

// broadcastToTV sends msg to the session's current television connection,
// if any. A television replaced by a later one no longer receives frames.
func (g *Gateway) broadcastToTV(sessionID string, msg any) {
	sess, err := g.store.Get(sessionID)
	if err != nil {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if c, ok := g.clients[sess.TVConnID]; ok {
		c.reply(msg)
	}
}

// broadcastToPlayer sends msg to the one connection seated at playerNumber,
// if any.
func (g *Gateway) broadcastToPlayer(sessionID string, playerNumber int, msg any) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, c := range g.clients {
		if c.sessionID != sessionID || c.role != roleMobile || c.playerNumber != playerNumber {
			continue
		}
		c.reply(msg)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveHangmanSocket admits tv and mobile connections, identified by the
// session and type query parameters.
func serveHangmanSocket(cfg *Config, g *Gateway) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessionID := r.URL.Query().Get("session")
		clientType := r.URL.Query().Get("type")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade: %v", err)
			return
		}

		if sessionID == "" {
			_ = conn.WriteJSON(ErrorMessage{Type: "error", Message: "session id required"})
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Websocket connection: session=%s, type=%s", sessionID, clientType)

		client := &Client{
			conn:      conn,
			send:      make(chan any, 8),
			id:        uuid.NewString(),
			sessionID: sessionID,
		}

		var admitted bool
		if clientType == roleTV {
			admitted = g.admitTV(client)
		} else {
			admitted = g.admitPlayer(client)
		}
		if !admitted {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(g)
	}
}

// admitTV binds the connection as the session's television and hands it a
// full state snapshot. A second television silently replaces the first.
func (g *Gateway) admitTV(c *Client) bool {
	sess, err := g.store.BindTV(c.sessionID, c.id)
	if err != nil {
		_ = c.conn.WriteJSON(ErrorMessage{Type: "error", Message: err.Error()})
		return false
	}

	c.role = roleTV
	g.register(c)

	c.reply(SessionStateMessage{
		Type: "session-state",
		Session: SessionState{
			Status:               sess.Status,
			Player1Connected:     sess.Players[0].Connected,
			Player2Connected:     sess.Players[1].Connected,
			Player1WordSubmitted: sess.Players[0].Word != "",
			Player2WordSubmitted: sess.Players[1].Word != "",
		},
	})

	return true
}

// admitPlayer seats the connection in the first free slot and tells it
// which seat it got.
func (g *Gateway) admitPlayer(c *Client) bool {
	playerNumber, sess, err := g.store.BindPlayer(c.sessionID, c.id)
	if err != nil {
		_ = c.conn.WriteJSON(ErrorMessage{Type: "error", Message: err.Error()})
		return false
	}

	c.role = roleMobile
	c.playerNumber = playerNumber
	g.register(c)

	// Player 1 may enter a word immediately; player 2 only once player 1
	// has submitted, read off the freshly bound snapshot.
	assigned := AssignedMessage{
		Type:         "assigned",
		PlayerNumber: playerNumber,
		CanEnterWord: playerNumber == 1 || sess.Players[0].Word != "",
	}
	if playerNumber == 2 {
		assigned.WaitingFor = 1
	}
	c.reply(assigned)

	g.broadcastToTV(c.sessionID, PlayerJoinedMessage{
		Type:         "player-joined",
		PlayerNumber: playerNumber,
	})

	if playerNumber == 2 && sess.Players[0].Word == "" {
		c.reply(WaitForWordMessage{
			Type:       "wait-for-word",
			WaitingFor: 1,
		})
	}

	logf(g.cfg, "GAMES: Player %d joined session %s", playerNumber, c.sessionID)

	return true
}

func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logf(g.cfg, "ERROR: Unparseable frame on session %s: %v", c.sessionID, err)
			continue
		}

		switch msg.Type {
		case "submit-word":
			g.handleSubmitWord(c, msg)
		case "round-complete":
			g.handleRoundComplete(c, msg)
		case "play-again":
			g.handlePlayAgain(c)
		case "quit":
			g.handleQuit(c)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (g *Gateway) handleSubmitWord(c *Client, msg ClientMessage) {
	if c.role != roleMobile {
		return
	}

	result, err := g.store.SubmitWord(c.sessionID, c.playerNumber, msg.Word, msg.Hint)
	if err != nil {
		c.reply(ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	logf(g.cfg, "GAMES: Player %d submitted a %d-letter word in %s", c.playerNumber, result.WordLength, c.sessionID)

	c.reply(WordAcceptedMessage{
		Type:       "word-accepted",
		WordLength: result.WordLength,
	})

	g.broadcastToTV(c.sessionID, WordSubmittedMessage{
		Type:         "word-submitted",
		PlayerNumber: c.playerNumber,
		WordLength:   result.WordLength,
	})

	if c.playerNumber == 1 {
		g.broadcastToPlayer(c.sessionID, 2, YourTurnMessage{
			Type:    "your-turn",
			Message: "Player 1 submitted. Enter your word!",
		})
	}

	if result.BothSubmitted {
		data, err := g.store.GameData(c.sessionID)
		if err != nil {
			return
		}

		// The television gets the actual words; the players never do.
		g.broadcastToTV(c.sessionID, GameReadyMessage{
			Type:         "game-ready",
			Player1Word:  data.Player1Word,
			Player2Word:  data.Player2Word,
			CurrentRound: data.CurrentRound,
		})

		g.broadcastToSession(c.sessionID, SimpleMessage{
			Type:    "game-started",
			Message: "Look at the TV!",
		}, "")
	}
}

// handleRoundComplete credits the winning guesser, then either advances to
// round 2 or reports the final scores to the whole session. The session is
// left up for an explicit quit.
func (g *Gateway) handleRoundComplete(c *Client, msg ClientMessage) {
	if msg.Winner && msg.Guesser != 1 && msg.Guesser != 2 {
		logf(g.cfg, "ERROR: round-complete with bad guesser %d on session %s", msg.Guesser, c.sessionID)
		return
	}

	result, err := g.store.CompleteRound(c.sessionID, msg.Guesser, msg.Winner)
	if err != nil {
		return
	}

	scores := Scores{
		Player1: result.Session.Players[0].Score,
		Player2: result.Session.Players[1].Score,
	}

	if !result.GameOver {
		g.broadcastToTV(c.sessionID, NewRoundMessage{
			Type:   "new-round",
			Round:  2,
			Scores: scores,
		})

		return
	}

	g.broadcastToSession(c.sessionID, GameCompleteMessage{
		Type:   "game-complete",
		Scores: scores,
	}, "")
}

// handlePlayAgain clears the words for a rematch. Seats and scores carry
// over; player 1 enters first again.
func (g *Gateway) handlePlayAgain(c *Client) {
	if _, err := g.store.ResetForNewGame(c.sessionID); err != nil {
		return
	}

	logf(g.cfg, "GAMES: Session %s reset for a new game", c.sessionID)

	g.broadcastToSession(c.sessionID, SimpleMessage{
		Type:    "enter-words",
		Message: "Enter your new words!",
	}, "")

	g.broadcastToPlayer(c.sessionID, 1, YourTurnMessage{
		Type:         "your-turn",
		CanEnterWord: true,
	})

	g.broadcastToPlayer(c.sessionID, 2, WaitForWordMessage{
		Type:       "wait-for-word",
		WaitingFor: 1,
	})
}

// handleQuit ends the session and winds down every connection bound to it.
// The session-ended frame is queued before each send channel closes, so the
// write pump flushes it before closing the socket.
func (g *Gateway) handleQuit(c *Client) {
	g.store.End(c.sessionID)

	logf(g.cfg, "GAMES: Session %s ended", c.sessionID)

	g.mu.Lock()
	defer g.mu.Unlock()

	for id, cl := range g.clients {
		if cl.sessionID != c.sessionID {
			continue
		}
		cl.reply(SimpleMessage{Type: "session-ended", Message: "Game ended"})
		delete(g.clients, id)
		cl.closeSend()
	}
}

// registerHangmanGame sets up routes so that:
//   - $path/session and subroutes → REST session lifecycle (create, status,
//     word fallback, reset, end, QR)
//   - $path/ws                    → websocket for tv and mobile clients
//   - $path/tv, $path/mobile      → embedded clients
func registerHangmanGame(cfg *Config, path string, mux *httprouter.Router) *Gateway {
	store := newStore(cfg.sessionExpiry)
	gw := newGateway(cfg, store)

	mux.GET(cfg.prefix+path+"/ws", serveHangmanSocket(cfg, gw))

	mux.POST(cfg.prefix+path+"/session", serveCreateSession(cfg, store))
	mux.GET(cfg.prefix+path+"/session/:id", serveSessionStatus(cfg, store))
	mux.POST(cfg.prefix+path+"/session/:id/word", serveSubmitWord(cfg, store))
	mux.POST(cfg.prefix+path+"/session/:id/reset", serveResetSession(cfg, store))
	mux.DELETE(cfg.prefix+path+"/session/:id", serveEndSession(cfg, store))
	mux.GET(cfg.prefix+path+"/session/:id/qr", serveSessionQR(cfg, store))

	mux.GET(cfg.prefix+path+"/tv", serveTVPage(cfg))
	mux.GET(cfg.prefix+path+"/mobile", serveMobilePage(cfg))

	return gw
}
