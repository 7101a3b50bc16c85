package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/relay-chat/config"
	"github.com/example/relay-chat/modules/broadcast"
	"github.com/example/relay-chat/modules/chat"
	"github.com/example/relay-chat/modules/history"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// HandlerProvider hands out the lifecycle handler once the chat module runs.
type HandlerProvider interface {
	Handler() *chat.Handler
}

// Module is the HTTP and WebSocket entry point of a relay process.
type Module struct {
	cfg      config.Config
	app      *fiber.App
	chat     HandlerProvider
	handler  *chat.Handler
	hub      *broadcast.Hub
	history  history.HistoryPort
	chatPort chat.ChatPort
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new gateway Module.
func NewModule(cfg config.Config, chatModule HandlerProvider, hub *broadcast.Hub, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		chat:   chatModule,
		hub:    hub,
		logger: logger.WithModule("gateway"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "gateway"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"history", "chat"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "history":
		m.history = history.NewAdapter(container)
	case "chat":
		m.chatPort = chat.NewChatAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *Module) Start(_ context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}

	addr := ":" + strconv.Itoa(m.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.cfg.Port,
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

func (m *Module) setup() error {
	if m.history == nil {
		return fmt.Errorf("history adapter dependency not set")
	}
	if m.chatPort == nil {
		return fmt.Errorf("chat adapter dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}
	m.handler = m.chat.Handler()
	if m.handler == nil {
		return fmt.Errorf("chat handler not started")
	}

	m.app = fiber.New(fiber.Config{
		AppName:               "Relay Chat",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(m.loggerMiddleware())
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.CORSAllowedOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	m.setupRoutes()
	return nil
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware logs each request except WebSocket upgrades.
func (m *Module) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		m.logger.Debug("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String())
		return err
	}
}
