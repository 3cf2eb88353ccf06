package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeTimeout = 10 * time.Second

// WebSocketHandler streams analysis progress events to connected clients.
type WebSocketHandler struct {
	logger           arbor.ILogger
	events           interfaces.EventService
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	allowedEvents    map[string]bool // Whitelist of events to broadcast (empty = allow all)
	serverInstanceID string          // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		events:           events,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		allowedEvents:    make(map[string]bool),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// WebSocketHandler handles GET /ws upgrade requests. Each connection gets its
// own event subscription; the connection closes when the client goes away or
// the event service shuts down.
func (h *WebSocketHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	h.addClient(conn)
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	// Tell the client which server instance it landed on
	h.writeEvent(conn, models.ProgressEvent{
		Type:      "connected",
		Message:   h.serverInstanceID,
		Timestamp: time.Now(),
	})

	events, unsubscribe := h.events.Subscribe()

	// Reader goroutine: we never expect client messages, but reading is how
	// websocket close frames get processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		unsubscribe()
		h.removeClient(conn)
		conn.Close()
		h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client disconnected")
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !h.eventAllowed(event.Type) {
				continue
			}
			if err := h.writeEvent(conn, event); err != nil {
				h.logger.Debug().Err(err).Msg("Failed to write websocket event")
				return
			}
		}
	}
}

func (h *WebSocketHandler) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
}

// writeEvent serializes a single event to one connection, holding that
// connection's write mutex. Gorilla connections do not allow concurrent
// writers.
func (h *WebSocketHandler) writeEvent(conn *websocket.Conn, event models.ProgressEvent) error {
	h.mu.RLock()
	mu, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}

	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(event)
}

func (h *WebSocketHandler) eventAllowed(eventType string) bool {
	if len(h.allowedEvents) == 0 {
		return true
	}
	return h.allowedEvents[eventType] || eventType == "connected"
}

// ClientCount returns the number of currently connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
