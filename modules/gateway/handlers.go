package gateway

import (
	"context"
	"encoding/json"
	"strconv"

	domain "github.com/example/relay-chat/domain/chat"
	"github.com/example/relay-chat/events"
	"github.com/example/relay-chat/modules/broadcast"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Inbound frame throttling per connection.
const (
	framesPerSecond = 10
	frameBurst      = 20
)

const maxHistoryLimit = 50

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes() {
	// Health check
	m.app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := m.app.Group("/api/v1")
	api.Get("/stats", m.getStats)
	api.Get("/rooms/:room/roster", m.getRoster)
	api.Get("/rooms/:room/history", m.getHistory)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	stats, err := m.chatPort.Stats(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:  "unhealthy",
			Details: map[string]any{"error": err.Error()},
		})
	}
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"process_id":        stats.ProcessID,
			"connected_clients": m.hub.ClientCount(),
			"in_rooms":          stats.InRooms,
		},
	})
}

// getStats handles GET /api/v1/stats.
func (m *Module) getStats(c *fiber.Ctx) error {
	stats, err := m.chatPort.Stats(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "stats_failed",
			Message: "Failed to read process stats",
		})
	}
	return c.JSON(stats)
}

// getRoster handles GET /api/v1/rooms/:room/roster.
func (m *Module) getRoster(c *fiber.Ctx) error {
	roster, err := m.chatPort.Roster(c.UserContext(), c.Params("room"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_room",
			Message: err.Error(),
		})
	}
	return c.JSON(roster)
}

// getHistory handles GET /api/v1/rooms/:room/history. Without an offset it
// returns the newest messages, otherwise the page counted back from the tail.
func (m *Module) getHistory(c *fiber.Ctx) error {
	room := c.Params("room")
	limit := m.cfg.HistoryInitial
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxHistoryLimit {
			limit = parsed
		}
	}

	var err error
	resp := HistoryResponse{Room: room}
	if o := c.Query("offset"); o != "" {
		offset, convErr := strconv.Atoi(o)
		if convErr != nil || offset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "offset must be a non-negative integer",
			})
		}
		resp.Messages, err = m.history.Page(c.UserContext(), room, offset, limit)
	} else {
		resp.Messages, err = m.history.Recent(c.UserContext(), room, limit)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "history_failed",
			Message: err.Error(),
		})
	}
	if resp.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	return c.JSON(resp)
}

// handleWebSocket handles WebSocket connections at /ws.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	connectionID := uuid.New().String()
	ctx := context.Background()

	m.hub.Register(&broadcast.Client{ID: connectionID, Conn: c})
	if err := m.handler.Connect(ctx, connectionID); err != nil {
		m.logger.Error("Failed to accept connection", "connectionId", connectionID, "error", err)
		m.hub.Unregister(connectionID)
		return
	}
	defer func() {
		m.handler.Disconnect(ctx, connectionID)
		m.hub.Unregister(connectionID)
		m.logger.Info("WebSocket client disconnected", "connectionId", connectionID)
	}()

	m.logger.Info("WebSocket client connected", "connectionId", connectionID)

	limiter := rate.NewLimiter(rate.Limit(framesPerSecond), frameBurst)
	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("Read error", "connectionId", connectionID, "error", err)
			}
			return
		}

		if !limiter.Allow() {
			m.sendError(connectionID, "Rate limit exceeded, please slow down")
			continue
		}

		var msg events.Inbound
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			m.sendError(connectionID, "Invalid message format")
			continue
		}

		m.dispatch(ctx, connectionID, msg)
	}
}

func (m *Module) dispatch(ctx context.Context, connectionID string, msg events.Inbound) {
	switch msg.Type {
	case events.JoinRoom:
		m.handler.JoinRoom(ctx, connectionID, msg.DisplayName, msg.Room)
	case events.SendMessage:
		m.handler.SendMessage(ctx, connectionID, msg.Text)
	case events.Typing:
		m.handler.Typing(connectionID)
	case events.StopTyping:
		m.handler.StopTyping(connectionID)
	case events.LoadMore:
		m.handler.LoadMore(ctx, connectionID, msg.Offset, msg.Limit)
	case events.SendPrivate:
		m.handler.SendPrivate(ctx, connectionID, msg.RecipientID, msg.Text)
	case events.LeaveRoom:
		m.handler.LeaveRoom(ctx, connectionID)
	default:
		m.sendError(connectionID, "Unknown message type: "+msg.Type)
	}
}

func (m *Module) sendError(connectionID, message string) {
	m.hub.EmitTo(connectionID, events.Envelope{
		Type: events.Error,
		Data: events.ErrorPayload{Message: message},
	})
}
