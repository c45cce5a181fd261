package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 280 // sized for a phone camera pointed at a television

func respondJSON(cfg *Config, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondError(cfg *Config, w http.ResponseWriter, status int, message string) {
	respondJSON(cfg, w, status, errorResponse{Error: message})
}

// mobileJoinURL builds the phone-facing join link for a session, preferring
// the configured public base url over the request host.
func mobileJoinURL(cfg *Config, r *http.Request, sessionID string) string {
	base := cfg.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}

	return strings.TrimSuffix(base, "/") + cfg.prefix + "/hangman/mobile?session=" + sessionID
}

type createSessionResponse struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"sessionId"`
	MobileURL     string `json:"mobileUrl"`
	QRCodeDataURL string `json:"qrCodeDataUrl"`
	Status        string `json:"status"`
}

func serveCreateSession(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		sess := store.Create()
		mobileURL := mobileJoinURL(cfg, r, sess.ID)

		png, err := qrcode.Encode(mobileURL, qrcode.Medium, qrSize)
		if err != nil {
			respondError(cfg, w, http.StatusInternalServerError, "failed to create session")
			return
		}

		respondJSON(cfg, w, http.StatusOK, createSessionResponse{
			Success:       true,
			SessionID:     sess.ID,
			MobileURL:     mobileURL,
			QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			Status:        sess.Status,
		})

		logf(cfg, "SERVE: Created session %s for %s in %s",
			sess.ID,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

type sessionStatusResponse struct {
	Success              bool   `json:"success"`
	SessionID            string `json:"sessionId"`
	Status               string `json:"status"`
	Player1Connected     bool   `json:"player1Connected"`
	Player2Connected     bool   `json:"player2Connected"`
	Player1WordSubmitted bool   `json:"player1WordSubmitted"`
	Player2WordSubmitted bool   `json:"player2WordSubmitted"`
	CurrentRound         int    `json:"currentRound"`
	Scores               Scores `json:"scores"`
}

func serveSessionStatus(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		sess, err := store.Get(p.ByName("id"))
		if err != nil {
			respondError(cfg, w, http.StatusNotFound, err.Error())
			return
		}

		respondJSON(cfg, w, http.StatusOK, sessionStatusResponse{
			Success:              true,
			SessionID:            sess.ID,
			Status:               sess.Status,
			Player1Connected:     sess.Players[0].Connected,
			Player2Connected:     sess.Players[1].Connected,
			Player1WordSubmitted: sess.Players[0].Word != "",
			Player2WordSubmitted: sess.Players[1].Word != "",
			CurrentRound:         sess.Round,
			Scores: Scores{
				Player1: sess.Players[0].Score,
				Player2: sess.Players[1].Score,
			},
		})
	}
}

type submitWordRequest struct {
	PlayerNumber int    `json:"playerNumber"`
	Word         string `json:"word"`
	Hint         string `json:"hint"`
}

type submitWordResponse struct {
	Success            bool   `json:"success"`
	WordLength         int    `json:"wordLength"`
	BothWordsSubmitted bool   `json:"bothWordsSubmitted"`
	Status             string `json:"status"`
}

// serveSubmitWord is the non-socket fallback for phones that lose their
// websocket; same contract as the submit-word frame.
func serveSubmitWord(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req submitWordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(cfg, w, http.StatusBadRequest, "invalid request body")
			return
		}

		if (req.PlayerNumber != 1 && req.PlayerNumber != 2) || req.Word == "" {
			respondError(cfg, w, http.StatusBadRequest, "player number and word are required")
			return
		}

		result, err := store.SubmitWord(p.ByName("id"), req.PlayerNumber, req.Word, req.Hint)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			respondError(cfg, w, http.StatusNotFound, err.Error())
			return
		case err != nil:
			respondError(cfg, w, http.StatusBadRequest, err.Error())
			return
		}

		respondJSON(cfg, w, http.StatusOK, submitWordResponse{
			Success:            true,
			WordLength:         result.WordLength,
			BothWordsSubmitted: result.BothSubmitted,
			Status:             result.Session.Status,
		})
	}
}

type resetSessionResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

func serveResetSession(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		sess, err := store.ResetForNewGame(p.ByName("id"))
		if err != nil {
			respondError(cfg, w, http.StatusNotFound, err.Error())
			return
		}

		respondJSON(cfg, w, http.StatusOK, resetSessionResponse{
			Success: true,
			Status:  sess.Status,
		})
	}
}

type endSessionResponse struct {
	Success bool `json:"success"`
}

// serveEndSession is idempotent; deleting an unknown session still succeeds.
func serveEndSession(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		store.End(p.ByName("id"))

		respondJSON(cfg, w, http.StatusOK, endSessionResponse{Success: true})
	}
}

// serveSessionQR returns the join link for a live session as a PNG QR code.
func serveSessionQR(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("id")
		if _, err := store.Get(id); err != nil {
			respondError(cfg, w, http.StatusNotFound, err.Error())
			return
		}

		png, err := qrcode.Encode(mobileJoinURL(cfg, r, id), qrcode.Medium, qrSize)
		if err != nil {
			respondError(cfg, w, http.StatusInternalServerError, "qr generation failed")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}
