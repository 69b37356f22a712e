package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain"
	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
	"github.com/satriahrh/scribe/internal/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	// Time allowed for a control message to complete.
	controlTimeout = 15 * time.Second
)

var (
	_ repositories.EventSink   = (*Hub)(nil)
	_ repositories.AudioSource = (*Hub)(nil)
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// clients are authenticated with a token before the upgrade
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionController is the part of the transcription service driven over the socket
type SessionController interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() entities.Snapshot
	Snapshot() entities.Snapshot
}

// Hub maintains the set of active clients. It broadcasts session events to every
// client and forwards PCM audio from the single connected device to the session.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// The connected audio device, if any.
	device *Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients and device
	mu sync.RWMutex

	audioMu   sync.Mutex
	capturing bool
	onData    func([]byte)
	onError   func(error)

	controller SessionController
	validator  *MessageValidator
	logger     *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// SetController attaches the session the clients control. It must be called before Run.
func (h *Hub) SetController(controller SessionController) {
	h.controller = controller
}

// Run starts the hub's main loop and closes every client when ctx is done
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closeLocked()
			}
			h.device = nil
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if client.isDevice() && h.device != nil {
				h.logger.Warn("Rejecting second audio device",
					zap.String("subject", client.subject),
					zap.String("connected", h.device.subject))
				client.queueLocked(CreateErrorMessage("DEVICE_BUSY", "another audio device is already connected", ""))
				client.closeLocked()
				h.mu.Unlock()
				continue
			}
			h.clients[client] = true
			if client.isDevice() {
				h.device = client
			}
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("role", client.role),
				zap.String("subject", client.subject))

		case client := <-h.unregister:
			h.mu.Lock()
			lostDevice := false
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeLocked()
				if h.device == client {
					h.device = nil
					lostDevice = true
				}
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

			if lostDevice {
				h.deviceLost(client)
			}
		}
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DeviceConnected reports whether an audio device is connected
func (h *Hub) DeviceConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.device != nil
}

// Emit broadcasts a status change to every client. Slow clients miss the event.
func (h *Hub) Emit(event entities.StatusChangeEvent) {
	payload, err := json.Marshal(CreateEventMessage(event))
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		default:
			h.logger.Warn("Client send buffer full, dropping event",
				zap.String("clientID", client.id),
				zap.String("event", string(event.Type)))
		}
	}
}

// Start begins forwarding device audio to onData
func (h *Hub) Start(ctx context.Context, onData func([]byte), onError func(error)) error {
	h.audioMu.Lock()
	defer h.audioMu.Unlock()

	if h.capturing {
		return fmt.Errorf("websocket source already capturing: %w", domain.ErrAudioSourceFailed)
	}
	h.capturing = true
	h.onData = onData
	h.onError = onError

	if !h.DeviceConnected() {
		h.logger.Info("Waiting for an audio device to connect")
	}
	return nil
}

// Stop stops forwarding device audio
func (h *Hub) Stop() error {
	h.audioMu.Lock()
	defer h.audioMu.Unlock()

	h.capturing = false
	h.onData = nil
	h.onError = nil
	return nil
}

func (h *Hub) handleAudio(c *Client, data []byte) {
	if !c.isDevice() {
		c.sendJSON(CreateErrorMessage("FORBIDDEN", "only devices may stream audio", ""))
		return
	}

	h.audioMu.Lock()
	onData := h.onData
	capturing := h.capturing
	h.audioMu.Unlock()

	if !capturing || onData == nil {
		c.logger.Debug("Dropping audio frame, no session capturing", zap.Int("size", len(data)))
		return
	}
	onData(data)
}

func (h *Hub) deviceLost(c *Client) {
	h.audioMu.Lock()
	onError := h.onError
	capturing := h.capturing
	h.audioMu.Unlock()

	if capturing && onError != nil {
		onError(fmt.Errorf("device %s disconnected: %w", c.subject, domain.ErrAudioSourceFailed))
	}
}

func (h *Hub) handleText(c *Client, message []byte) {
	parsed, err := h.validator.ValidateMessage(message)
	if err != nil {
		c.sendJSON(CreateErrorMessage("INVALID_MESSAGE", "could not process message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	case *ControlMessage:
		h.handleControl(c, msg)
	}
}

func (h *Hub) handleControl(c *Client, msg *ControlMessage) {
	if h.controller == nil {
		c.sendJSON(CreateErrorMessage("UNAVAILABLE", "no session controller", ""))
		return
	}
	if msg.Type == MessageTypeStatus {
		c.sendJSON(CreateSnapshotMessage(h.controller.Status()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case MessageTypeStart:
		err = h.controller.Start(ctx)
	case MessageTypePause:
		err = h.controller.Pause(ctx)
	case MessageTypeResume:
		err = h.controller.Resume(ctx)
	case MessageTypeStop:
		err = h.controller.Stop(ctx)
	}
	if err != nil {
		c.logger.Warn("Control message failed", zap.String("type", string(msg.Type)), zap.Error(err))
		c.sendJSON(CreateErrorMessage(ErrorCode(err), err.Error(), ""))
		return
	}
	c.sendJSON(CreateAckMessage(msg.Type, msg.MessageID))
}

// ErrorCode maps session errors to stable client-facing codes
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		return "ALREADY_RUNNING"
	case errors.Is(err, domain.ErrNotRunning):
		return "NOT_RUNNING"
	case errors.Is(err, domain.ErrAlreadyPaused):
		return "ALREADY_PAUSED"
	case errors.Is(err, domain.ErrNotPaused):
		return "NOT_PAUSED"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, domain.ErrAudioSourceFailed):
		return "AUDIO_SOURCE_FAILED"
	default:
		return "INTERNAL"
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id      string
	role    string
	subject string

	// set once send is closed, guarded by hub.mu
	closed bool

	logger *zap.Logger
}

func (c *Client) isDevice() bool {
	return c.role == auth.RoleDevice
}

// sendJSON queues a message without blocking the caller
func (c *Client) sendJSON(msg interface{}) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	c.queueLocked(msg)
}

func (c *Client) queueLocked(msg interface{}) {
	if c.closed {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HandleWebSocketWithAuth upgrades a request whose token has already been validated
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, claims *auth.JWTClaims) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan WriteData, 256),
		id:      id,
		role:    claims.Role,
		subject: claims.Subject(),
		logger: hub.logger.With(
			zap.String("clientID", id),
			zap.String("subject", claims.Subject())),
	}

	if hub.controller != nil {
		client.sendJSON(CreateSnapshotMessage(hub.controller.Snapshot()))
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.hub.handleText(c, message)
		case websocket.BinaryMessage:
			c.hub.handleAudio(c, message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
