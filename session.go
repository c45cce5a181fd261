// Wordcast game sessions
//
// A session is one instance of a two-round, two-player guessing game bound
// to a short join code. Each of the two mobile players privately submits a
// secret word, and the television reveals and drives the guessing. All
// session state lives in memory for at most the configured expiry, counted
// from creation.
//
// The store is the only owner of session state. The websocket layer funnels
// every mutation through the operation set below, which keeps the status
// machine consistent under concurrent connections. Connections themselves
// are never stored here, only their opaque identifiers.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is full")
	ErrInvalidWord     = errors.New("word must be 2-12 letters")
)

// Session statuses, in lifecycle order.
const (
	StatusWaitingForPlayers = "waiting_for_players"
	StatusWaitingForWords   = "waiting_for_words"
	StatusReady             = "ready"
	StatusEnded             = "ended"
)

// PlayerSlot is one of the two guesser seats in a session. ConnID is a
// back-reference into the gateway's connection registry, never a live
// connection.
type PlayerSlot struct {
	Connected bool
	ConnID    string
	Word      string
	Hint      string
	Score     int
}

type Session struct {
	ID        string
	CreatedAt time.Time
	Round     int
	Status    string
	Players   [2]PlayerSlot // index 0 is player 1, index 1 is player 2
	TVConnID  string
}

// slot maps a 1-based player number to its seat.
func (sess *Session) slot(playerNumber int) *PlayerSlot {
	if playerNumber == 1 {
		return &sess.Players[0]
	}
	return &sess.Players[1]
}

func (sess *Session) bothWordsSubmitted() bool {
	return sess.Players[0].Word != "" && sess.Players[1].Word != ""
}

func statusRank(status string) int {
	switch status {
	case StatusWaitingForWords:
		return 1
	case StatusReady:
		return 2
	case StatusEnded:
		return 3
	default:
		return 0
	}
}

// statusOf derives the status from the seats alone.
func statusOf(sess *Session) string {
	switch {
	case sess.Status == StatusEnded:
		return StatusEnded
	case sess.bothWordsSubmitted():
		return StatusReady
	case sess.Players[0].Connected && sess.Players[1].Connected:
		return StatusWaitingForWords
	default:
		return StatusWaitingForPlayers
	}
}

// recomputeStatus refreshes the cached status projection at the end of a
// mutation. The status only ever moves forward; ResetForNewGame assigns it
// directly instead.
func (sess *Session) recomputeStatus() {
	next := statusOf(sess)
	if statusRank(next) > statusRank(sess.Status) {
		sess.Status = next
	}
}

// normalizeWord strips everything but letters and uppercases the rest.
func normalizeWord(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const maxHintLength = 100

// Store holds every live session behind a single lock, which serializes
// per-session mutations as a side effect. Operations hand out snapshot
// copies; the live records never leave the lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	expiry   time.Duration
}

func newStore(expiry time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		expiry:   expiry,
	}
}

// Create allocates a session with a fresh join code and schedules its
// one-shot expiry sweep.
func (s *Store) Create() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id = hex.EncodeToString(buf)
		if _, exists := s.sessions[id]; !exists {
			break
		}
	}

	sess := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Round:     1,
		Status:    StatusWaitingForPlayers,
	}
	s.sessions[id] = sess

	// Reclaims the session even if nothing ever touches it again.
	time.AfterFunc(s.expiry+time.Second, func() {
		s.sweep(id)
	})

	return *sess
}

// sweep removes the session if it has actually expired. Lazy eviction or an
// explicit end may already have removed it; running redundantly is fine.
func (s *Store) sweep(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok && s.expiredLocked(sess) {
		delete(s.sessions, id)
	}
}

func (s *Store) expiredLocked(sess *Session) bool {
	return time.Since(sess.CreatedAt) > s.expiry
}

// getLocked returns the live session, evicting it first if it is past its
// expiry. Callers must hold s.mu.
func (s *Store) getLocked(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.expiredLocked(sess) {
		delete(s.sessions, id)
		return nil
	}
	return sess
}

func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// BindPlayer seats a connection in the first free slot, player 1 before
// player 2, and returns the assigned player number.
func (s *Store) BindPlayer(id, connID string) (int, Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return 0, Session{}, ErrSessionNotFound
	}

	for i := range sess.Players {
		if sess.Players[i].Connected {
			continue
		}
		sess.Players[i].Connected = true
		sess.Players[i].ConnID = connID
		sess.recomputeStatus()
		return i + 1, *sess, nil
	}

	return 0, Session{}, ErrSessionFull
}

// BindTV stores the television connection. A later TV connection replaces
// the earlier one without notice, which is what lets a restarted TV rejoin.
func (s *Store) BindTV(id, connID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return Session{}, ErrSessionNotFound
	}

	sess.TVConnID = connID
	return *sess, nil
}

type SubmitResult struct {
	Session       Session
	WordLength    int
	BothSubmitted bool
}

// SubmitWord normalizes and validates the word, stores it with its hint,
// and reports whether this submission completed the pair.
// playerNumber must be 1 or 2.
func (s *Store) SubmitWord(id string, playerNumber int, word, hint string) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return SubmitResult{}, ErrSessionNotFound
	}

	clean := normalizeWord(word)
	if len(clean) < 2 || len(clean) > 12 {
		return SubmitResult{}, ErrInvalidWord
	}

	if runes := []rune(hint); len(runes) > maxHintLength {
		hint = string(runes[:maxHintLength])
	}

	seat := sess.slot(playerNumber)
	seat.Word = clean
	seat.Hint = hint

	sess.recomputeStatus()

	return SubmitResult{
		Session:       *sess,
		WordLength:    len(clean),
		BothSubmitted: sess.bothWordsSubmitted(),
	}, nil
}

// WordView is one slot's word as revealed when the game becomes ready.
// Word itself is only ever forwarded to the television.
type WordView struct {
	Length int    `json:"length"`
	Hint   string `json:"hint"`
	Word   string `json:"word"`
}

type GameData struct {
	Player1Word  WordView `json:"player1Word"`
	Player2Word  WordView `json:"player2Word"`
	CurrentRound int      `json:"currentRound"`
}

func (s *Store) GameData(id string) (GameData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return GameData{}, ErrSessionNotFound
	}

	return GameData{
		Player1Word: WordView{
			Length: len(sess.Players[0].Word),
			Hint:   sess.Players[0].Hint,
			Word:   sess.Players[0].Word,
		},
		Player2Word: WordView{
			Length: len(sess.Players[1].Word),
			Hint:   sess.Players[1].Hint,
			Word:   sess.Players[1].Word,
		},
		CurrentRound: sess.Round,
	}, nil
}

// RoundResult reports the scores after a completed round and whether that
// round was the last one.
type RoundResult struct {
	Session  Session
	GameOver bool
}

// CompleteRound credits the guesser with a point when won is true, then
// advances round 1 to round 2. Completing round 2 ends the game instead.
// Credit and advance happen under one lock, so concurrent completions of
// the same round cannot both see it as round 1.
func (s *Store) CompleteRound(id string, guesser int, won bool) (RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return RoundResult{}, ErrSessionNotFound
	}

	if won {
		sess.slot(guesser).Score++
	}

	result := RoundResult{
		Session:  *sess,
		GameOver: sess.Round != 1,
	}
	if !result.GameOver {
		sess.Round = 2
	}

	return result, nil
}

// ResetForNewGame clears both words and hints and rewinds to round 1, but
// keeps the seats bound and the scores accumulated.
func (s *Store) ResetForNewGame(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(id)
	if sess == nil {
		return Session{}, ErrSessionNotFound
	}

	for i := range sess.Players {
		sess.Players[i].Word = ""
		sess.Players[i].Hint = ""
	}
	sess.Round = 1
	sess.Status = StatusWaitingForWords

	return *sess, nil
}

// UnbindResult reports which seat a closed connection occupied.
type UnbindResult struct {
	SessionID    string
	PlayerNumber int
	IsTV         bool
}

// Unbind clears whichever seat holds connID, scanning every live session.
// Words and scores survive so the player can reconnect into the same game.
func (s *Store) Unbind(connID string) (UnbindResult, bool) {
	if connID == "" {
		return UnbindResult{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		for i := range sess.Players {
			if sess.Players[i].ConnID == connID {
				sess.Players[i].Connected = false
				sess.Players[i].ConnID = ""
				return UnbindResult{SessionID: id, PlayerNumber: i + 1}, true
			}
		}
		if sess.TVConnID == connID {
			sess.TVConnID = ""
			return UnbindResult{SessionID: id, IsTV: true}, true
		}
	}

	return UnbindResult{}, false
}

// End removes the session. Ending one that is already gone is a no-op.
func (s *Store) End(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}
