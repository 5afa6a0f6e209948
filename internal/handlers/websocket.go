// -----------------------------------------------------------------------
// Last Modified: Monday, 19th October 2026 2:18:07 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
	"golang.org/x/time/rate"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// HelloPayload is sent once per connection
type HelloPayload struct {
	ServerInstanceID string `json:"serverInstanceId"`
	Version          string `json:"version"`
}

// CapturePayload is the live form of a capture event
type CapturePayload struct {
	Key              string               `json:"key"`
	Credential       CredentialView       `json:"credential"`
	RotationDetected bool                 `json:"rotationDetected"`
	Previous         *models.ExpiredToken `json:"previous,omitempty"`
}

type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	endpointThrottler *rate.Limiter // Rate limiter for endpoint_tracked events
	revealValues      bool
	serverInstanceID  string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	if config != nil {
		h.revealValues = config.RevealValues

		// Nil throttler = no throttling
		if config.EndpointThrottle != "" {
			if duration, err := time.ParseDuration(config.EndpointThrottle); err == nil && duration > 0 {
				h.endpointThrottler = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", string(interfaces.EventEndpointTracked)).
					Str("interval", config.EndpointThrottle).
					Msg("Throttler initialized for endpoint events")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", config.EndpointThrottle).
					Msg("Failed to parse endpoint throttle interval - throttler disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToEvents()
	}

	return h
}

// ServerInstanceID identifies this process to reconnecting clients
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

func (h *WebSocketHandler) subscribeToEvents() {
	subscriptions := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventCredentialCaptured:   h.handleCredentialCaptured,
		interfaces.EventEndpointTracked:      h.handleEndpointTracked,
		interfaces.EventCaptureConfigChanged: h.handleConfigChanged,
	}
	for eventType, handler := range subscriptions {
		if err := h.eventService.Subscribe(eventType, handler); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
		}
	}
}

func (h *WebSocketHandler) handleCredentialCaptured(ctx context.Context, event interfaces.Event) error {
	capture, ok := event.Payload.(*models.CaptureEvent)
	if !ok || capture.Stored == nil {
		return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
	}

	payload := CapturePayload{
		Key:              capture.Stored.Key,
		Credential:       NewCredentialView(capture.Stored, h.revealValues),
		RotationDetected: capture.RotationDetected,
	}
	if capture.Previous != nil {
		previous := *capture.Previous
		if !h.revealValues {
			previous.Value = common.MaskValue(previous.Value)
		}
		payload.Previous = &previous
	}

	h.broadcast(string(interfaces.EventCredentialCaptured), payload)
	return nil
}

func (h *WebSocketHandler) handleEndpointTracked(ctx context.Context, event interfaces.Event) error {
	if h.endpointThrottler != nil && !h.endpointThrottler.Allow() {
		return nil
	}
	tracked, ok := event.Payload.(*models.EndpointTrackedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
	}

	payload := *tracked
	if !h.revealValues {
		payload.URL = common.MaskQuery(tracked.URL)
	}
	h.broadcast(string(interfaces.EventEndpointTracked), payload)
	return nil
}

func (h *WebSocketHandler) handleConfigChanged(ctx context.Context, event interfaces.Event) error {
	h.broadcast(string(interfaces.EventCaptureConfigChanged), event.Payload)
	return nil
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	h.send(conn, mutex, WSMessage{
		Type: "hello",
		Payload: HelloPayload{
			ServerInstanceID: h.serverInstanceID,
			Version:          common.GetVersion(),
		},
	})

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	mutex.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
	}
}

// broadcast sends a message to all connected clients
func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType, Payload: payload}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.send(conn, mutexes[i], msg)
	}
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, mutex := range h.clientMutex {
		mutex.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
}
