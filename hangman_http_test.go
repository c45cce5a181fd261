package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	buf := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(buf).Encode(body))
	}

	res, err := http.Post(url, "application/json", buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })

	return res
}

func TestCreateSessionResponse(t *testing.T) {
	srv := newGameServer(t, nil)

	created := createGameSession(t, srv)

	assert.Len(t, created.SessionID, 12)
	assert.Equal(t, StatusWaitingForPlayers, created.Status)
	assert.Contains(t, created.MobileURL, "/hangman/mobile?session="+created.SessionID)
	assert.True(t, strings.HasPrefix(created.QRCodeDataURL, "data:image/png;base64,"))
}

func TestCreateSessionUsesConfiguredBaseURL(t *testing.T) {
	cfg := &Config{
		sessionExpiry: time.Minute,
		baseURL:       "https://games.example.com/",
	}
	srv := newGameServer(t, cfg)

	created := createGameSession(t, srv)

	assert.True(t, strings.HasPrefix(created.MobileURL, "https://games.example.com/hangman/mobile?session="), created.MobileURL)
}

func TestSessionStatusNotFound(t *testing.T) {
	srv := newGameServer(t, nil)

	_, code := getSessionStatus(t, srv, "ffffffffffff")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSubmitWordFallback(t *testing.T) {
	srv := newGameServer(t, nil)
	created := createGameSession(t, srv)
	base := srv.URL + "/hangman/session/" + created.SessionID

	res := postJSON(t, base+"/word", submitWordRequest{PlayerNumber: 1, Word: "Ca7!t", Hint: "a pet"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body submitWordResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.WordLength)
	assert.False(t, body.BothWordsSubmitted)

	res = postJSON(t, base+"/word", submitWordRequest{PlayerNumber: 2, Word: "ox"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	body = submitWordResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body.BothWordsSubmitted)
	assert.Equal(t, StatusReady, body.Status)
}

func TestSubmitWordFallbackRejections(t *testing.T) {
	srv := newGameServer(t, nil)
	created := createGameSession(t, srv)
	base := srv.URL + "/hangman/session/" + created.SessionID

	res := postJSON(t, base+"/word", submitWordRequest{PlayerNumber: 1, Word: "a"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, base+"/word", submitWordRequest{PlayerNumber: 3, Word: "dog"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, base+"/word", submitWordRequest{PlayerNumber: 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, srv.URL+"/hangman/session/ffffffffffff/word", submitWordRequest{PlayerNumber: 1, Word: "dog"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestResetSessionEndpoint(t *testing.T) {
	srv := newGameServer(t, nil)
	created := createGameSession(t, srv)
	base := srv.URL + "/hangman/session/" + created.SessionID

	res := postJSON(t, base+"/word", submitWordRequest{PlayerNumber: 1, Word: "dog"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = postJSON(t, base+"/reset", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body resetSessionResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, StatusWaitingForWords, body.Status)

	status, _ := getSessionStatus(t, srv, created.SessionID)
	assert.False(t, status.Player1WordSubmitted)

	res = postJSON(t, srv.URL+"/hangman/session/ffffffffffff/reset", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEndSessionEndpoint(t *testing.T) {
	srv := newGameServer(t, nil)
	created := createGameSession(t, srv)

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/hangman/session/"+created.SessionID, nil)
		require.NoError(t, err)

		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()

		assert.Equal(t, http.StatusOK, res.StatusCode, "delete attempt %d", i+1)
	}

	_, code := getSessionStatus(t, srv, created.SessionID)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionQREndpoint(t *testing.T) {
	srv := newGameServer(t, nil)
	created := createGameSession(t, srv)

	res, err := http.Get(srv.URL + "/hangman/session/" + created.SessionID + "/qr")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))

	magic := make([]byte, 8)
	_, err = io.ReadFull(res.Body, magic)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, magic)

	res, err = http.Get(srv.URL + "/hangman/session/ffffffffffff/qr")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMobileJoinURLFallsBackToRequestHost(t *testing.T) {
	cfg := &Config{sessionExpiry: time.Minute}

	r := httptest.NewRequest(http.MethodPost, "/hangman/session", nil)
	r.Host = "tv.local:8080"

	got := mobileJoinURL(cfg, r, "abc123def456")
	assert.Equal(t, "http://tv.local:8080/hangman/mobile?session=abc123def456", got)

	r.Header.Set("X-Forwarded-Proto", "https")
	got = mobileJoinURL(cfg, r, "abc123def456")
	assert.Equal(t, "https://tv.local:8080/hangman/mobile?session=abc123def456", got)
}
