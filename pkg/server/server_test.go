package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptick/pkg/config"
	"cryptick/pkg/watcher"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestHandleStatus(t *testing.T) {
	sched := watcher.NewScheduler(config.DefaultState(), nil, nil)
	s := NewServer(sched)

	req, _ := http.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "High Risk Assets", resp["active_profile"])
	assert.Len(t, resp["profiles"], 3)
	assert.Contains(t, resp, "results")
}

func TestHandleCycle(t *testing.T) {
	sched := watcher.NewScheduler(config.DefaultState(), nil, nil)
	s := NewServer(sched)

	// GET is rejected; only an explicit trigger may cycle.
	req, _ := http.NewRequest("GET", "/api/cycle", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "High Risk Assets", sched.Snapshot().ActiveProfile)

	req, _ = http.NewRequest("POST", "/api/cycle", nil)
	rr = httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Medium Risk Assets", resp["active_profile"])
	assert.Equal(t, "Medium Risk Assets", sched.Snapshot().ActiveProfile)
}

func TestHandleWS(t *testing.T) {
	sched := watcher.NewScheduler(config.DefaultState(), nil, nil)
	s := NewServer(sched)
	server := httptest.NewServer(s.mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var initial struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	assert.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "initial", initial.Type)
	assert.Equal(t, "High Risk Assets", initial.Data["active_profile"])
}

func TestBroadcast(t *testing.T) {
	sched := watcher.NewScheduler(config.DefaultState(), nil, nil)
	s := NewServer(sched)
	server := httptest.NewServer(s.mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var initial map[string]interface{}
	assert.NoError(t, conn.ReadJSON(&initial))

	s.broadcast(watcher.Event{
		Type: watcher.EventStatusUpdated,
		Data: watcher.StatusData{Message: "Refreshed monitors: [0]. Next in ~30s."},
	})

	var event struct {
		Type string `json:"Type"`
		Data struct {
			Message string `json:"Message"`
		} `json:"Data"`
	}
	assert.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, string(watcher.EventStatusUpdated), event.Type)
	assert.Contains(t, event.Data.Message, "Refreshed monitors")
}
