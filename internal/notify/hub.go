// Package notify pushes unlock events to clients over websocket.
package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"estateBack/internal/models"
)

const (
	readLimit     = 1024
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
	pingPeriod    = 30 * time.Second

	EventAgentUnlocked = "agent_unlocked"
)

// ErrNotConnected is returned when the client has no open socket.
var ErrNotConnected = errors.New("notify: client not connected")

// UnlockEvent is sent to the client's dashboard after a committed unlock.
type UnlockEvent struct {
	Type       string    `json:"type"`
	AgentID    int       `json:"agent_id"`
	AgentPhone string    `json:"agent_phone"`
	PropertyID int       `json:"property_id"`
	Reference  string    `json:"reference"`
	Date       time.Time `json:"date"`
}

// Hub keeps one socket per client. A new connection replaces the old one.
type Hub struct {
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	pingEvery time.Duration

	mu    sync.RWMutex
	conns map[int]*websocket.Conn
	wmu   map[int]*sync.Mutex
}

func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
		logger:    logger,
		pingEvery: pingPeriod,
		conns:     make(map[int]*websocket.Conn),
		wmu:       make(map[int]*sync.Mutex),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the authenticated client's connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID, ok := r.Context().Value(models.ContextUserID).(int)
	if !ok || clientID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "client_id", clientID, "error", err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[clientID]; ok {
		_ = old.Close()
	}
	h.conns[clientID] = conn
	if _, ok := h.wmu[clientID]; !ok {
		h.wmu[clientID] = &sync.Mutex{}
	}
	h.mu.Unlock()

	go h.pingLoop(clientID, conn)
	go h.readLoop(clientID, conn)
}

// pingLoop keeps quiet dashboards alive: every pong pushes the read deadline
// out again. It stops once conn is closed or replaced.
func (h *Hub) pingLoop(clientID int, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		alive := h.conns[clientID] == conn
		h.mu.RUnlock()
		if !alive {
			return
		}
		// WriteControl may run alongside WriteMessage
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
			h.logger.Debug("ws ping failed", "client_id", clientID, "error", err)
			_ = conn.Close()
			return
		}
	}
}

func (h *Hub) readLoop(clientID int, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		h.mu.Lock()
		if h.conns[clientID] == conn {
			delete(h.conns, clientID)
			delete(h.wmu, clientID)
		}
		h.mu.Unlock()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		if mt == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
			h.write(clientID, []byte("pong"))
		}
	}
}

func (h *Hub) write(clientID int, payload []byte) error {
	h.mu.RLock()
	conn := h.conns[clientID]
	mu := h.wmu[clientID]
	h.mu.RUnlock()
	if conn == nil || mu == nil {
		return ErrNotConnected
	}

	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// NotifyUnlocked sends an agent_unlocked event. A client without an open
// socket is not an error.
func (h *Hub) NotifyUnlocked(clientID int, rec models.PaymentRecord, agentPhone string) error {
	payload, err := json.Marshal(UnlockEvent{
		Type:       EventAgentUnlocked,
		AgentID:    rec.AgentID,
		AgentPhone: agentPhone,
		PropertyID: rec.PropertyID,
		Reference:  rec.Reference,
		Date:       rec.Date,
	})
	if err != nil {
		return err
	}
	err = h.write(clientID, payload)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	if err != nil {
		h.logger.Warn("ws write failed", "client_id", clientID, "error", err)
		return err
	}
	return nil
}

// Connected reports whether clientID has an open socket.
func (h *Hub) Connected(clientID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[clientID]
	return ok
}
