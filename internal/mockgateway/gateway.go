package mockgateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/socketmode/internal/envelope"
)

// Paths served by the gateway.
const (
	OpenPath = "/apps.connections.open"
	LinkPath = "/link"
)

// Config configures a Gateway.
type Config struct {
	AppToken     string        // Required bearer token; empty accepts any
	AppID        string        // Reported in hello
	SendHello    bool          // Send hello when a socket opens
	Echo         bool          // Echo non-ack frames back to the sender
	OpenFailures int           // First N open calls fail with HTTP 500
	PingInterval time.Duration // WebSocket ping interval, 0 disables
	ExpiresIn    int           // Seconds reported by apps.connections.open

	// OnSession runs in its own goroutine for every accepted socket.
	OnSession func(s *Session)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AppID:     "A0MOCKAPP",
		SendHello: true,
		Echo:      true,
		ExpiresIn: 30,
	}
}

// Gateway is an http.Handler serving the socket-mode endpoints.
type Gateway struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu        sync.Mutex
	tickets   map[string]struct{}
	sessions  []*Session
	acks      []envelope.Ack
	received  [][]byte
	openCalls int
	wg        sync.WaitGroup
}

// New creates a Gateway.
func New(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		tickets: make(map[string]struct{}),
	}
	g.mux.HandleFunc(OpenPath, g.handleOpen)
	g.mux.HandleFunc(LinkPath, g.handleLink)
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

type openResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	URL       string `json:"url,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

func (g *Gateway) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g.mu.Lock()
	g.openCalls++
	n := g.openCalls
	g.mu.Unlock()

	if n <= g.cfg.OpenFailures {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if g.cfg.AppToken != "" && r.Header.Get("Authorization") != "Bearer "+g.cfg.AppToken {
		json.NewEncoder(w).Encode(openResponse{OK: false, Error: "invalid_auth"})
		return
	}

	ticket := uuid.NewString()
	g.mu.Lock()
	g.tickets[ticket] = struct{}{}
	g.mu.Unlock()

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	json.NewEncoder(w).Encode(openResponse{
		OK:        true,
		URL:       scheme + "://" + r.Host + LinkPath + "?ticket=" + ticket,
		ExpiresIn: g.cfg.ExpiresIn,
	})
}

func (g *Gateway) handleLink(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")

	g.mu.Lock()
	_, ok := g.tickets[ticket]
	delete(g.tickets, ticket)
	g.mu.Unlock()

	if !ok {
		http.Error(w, "invalid or used ticket", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", "error", err)
		return
	}

	g.mu.Lock()
	s := newSession(g, conn, len(g.sessions), r.URL.Query().Get("debug_reconnects") == "true")
	g.sessions = append(g.sessions, s)
	g.mu.Unlock()

	g.logger.Info("session opened", "session", s.ID, "index", s.Index)

	if g.cfg.SendHello {
		s.SendEnvelope(&envelope.Envelope{
			Type:           envelope.TypeHello,
			NumConnections: g.openSessions(),
			DebugInfo: &envelope.DebugInfo{
				Host:                      "mockgateway",
				ApproximateConnectionTime: g.cfg.ExpiresIn * 1000,
			},
			ConnectionInfo: &envelope.ConnectionInfo{AppID: g.cfg.AppID},
		})
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		s.pingLoop(g.cfg.PingInterval)
	}()
	if g.cfg.OnSession != nil {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.cfg.OnSession(s)
		}()
	}

	s.readLoop()
	s.Drop()
	g.logger.Info("session closed", "session", s.ID)
}

// record stores an inbound frame and reports whether it was an ack.
func (g *Gateway) record(s *Session, data []byte) (envelope.Ack, bool) {
	var ack envelope.Ack
	var head struct {
		Type       string `json:"type"`
		EnvelopeID string `json:"envelope_id"`
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(data, &head) == nil && head.Type == "" && head.EnvelopeID != "" {
		if err := json.Unmarshal(data, &ack); err == nil {
			g.mu.Lock()
			g.acks = append(g.acks, ack)
			g.mu.Unlock()
			return ack, true
		}
	}

	g.mu.Lock()
	g.received = append(g.received, append([]byte(nil), data...))
	g.mu.Unlock()
	return ack, false
}

func (g *Gateway) openSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, s := range g.sessions {
		if !s.closed() {
			n++
		}
	}
	return n
}

// Acks returns every ack received, in arrival order.
func (g *Gateway) Acks() []envelope.Ack {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]envelope.Ack(nil), g.acks...)
}

// Received returns every non-ack frame received, in arrival order.
func (g *Gateway) Received() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.received))
	for i, b := range g.received {
		out[i] = string(b)
	}
	return out
}

// Sessions returns every session accepted so far.
func (g *Gateway) Sessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Session(nil), g.sessions...)
}

// Session returns the i-th accepted session, or nil.
func (g *Gateway) Session(i int) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.sessions) {
		return nil
	}
	return g.sessions[i]
}

// OpenCalls returns how many times apps.connections.open was called.
func (g *Gateway) OpenCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openCalls
}

// Broadcast sends env to every open session.
func (g *Gateway) Broadcast(env *envelope.Envelope) {
	for _, s := range g.Sessions() {
		if !s.closed() {
			if err := s.SendEnvelope(env); err != nil {
				g.logger.Debug("broadcast failed", "session", s.ID, "error", err)
			}
		}
	}
}

// Close drops every session and waits for session goroutines.
func (g *Gateway) Close() {
	for _, s := range g.Sessions() {
		s.Close()
	}
	g.wg.Wait()
}
