package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"cryptick/pkg/watcher"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the scheduler over HTTP: a status snapshot, the
// cycle-active-profile trigger for external hotkey daemons, and a websocket
// that live detail views attach to.
type Server struct {
	scheduler *watcher.Scheduler
	clients   map[*websocket.Conn]bool
	mu        sync.Mutex
	mux       *http.ServeMux
}

func NewServer(s *watcher.Scheduler) *Server {
	srv := &Server{
		scheduler: s,
		clients:   make(map[*websocket.Conn]bool),
		mux:       http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/cycle", s.handleCycle)
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) Start(port int) error {
	go s.listenToScheduler()

	fmt.Printf("API Server listening on :%d\n", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.mux)
}

func (s *Server) statusPayload() map[string]interface{} {
	snap := s.scheduler.Snapshot()
	results := map[string]interface{}{}
	for _, name := range snap.ProfileNames() {
		results[name] = s.scheduler.Results(name)
	}
	return map[string]interface{}{
		"profiles":       snap.ProfileNames(),
		"active_profile": snap.ActiveProfile,
		"results":        results,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.statusPayload())
}

// handleCycle advances the active profile. The global hotkey itself lives
// outside the process; anything able to POST here can act as the trigger.
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := s.scheduler.CycleActiveProfile()
	_ = json.NewEncoder(w).Encode(map[string]string{"active_profile": name})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	// Send initial state
	initialData := map[string]interface{}{
		"type": "initial",
		"data": s.statusPayload(),
	}
	_ = conn.WriteJSON(initialData)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToScheduler() {
	sub := s.scheduler.Subscribe()
	defer s.scheduler.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
