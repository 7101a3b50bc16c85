package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/relay-chat/config"
	"github.com/example/relay-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// maxServiceCount caps how many entries a single service call may request.
const maxServiceCount = 1000

// Module owns the room log and exposes it to other modules through
// request-reply services.
type Module struct {
	cfg    config.Config
	log    Log
	client *redis.Client
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a history module; the backing store is opened on Start.
func NewModule(cfg config.Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger.WithModule("history"),
	}
}

// NewModuleWithLog creates a history module around an already opened log.
func NewModuleWithLog(log Log, logger types.Logger) *Module {
	return &Module{
		log:    log,
		logger: logger.WithModule("history"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "history"
}

// RegisterServices registers the append, recent and page services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceAppend, json.Unmarshal, json.Marshal, m.handleAppend,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceAppend, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecent, json.Unmarshal, json.Marshal, m.handleRecent,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecent, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePage, json.Unmarshal, json.Marshal, m.handlePage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePage, err)
	}

	return nil
}

// Start opens the configured store.
func (m *Module) Start(ctx context.Context) error {
	if m.log != nil {
		m.logger.Info("History module started with injected store")
		return nil
	}

	switch m.cfg.StoreDriver {
	case config.DriverMemory:
		m.log = NewMemoryLog(m.cfg.HistoryCapacity)
	case config.DriverRedis:
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.cfg.RedisAddr,
			Password:     m.cfg.RedisPassword,
			DB:           m.cfg.RedisDB,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := m.client.Ping(ctx).Err(); err != nil {
			_ = m.client.Close()
			m.client = nil
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.log = NewRedisLog(m.client, m.cfg.HistoryCapacity)
	default:
		return fmt.Errorf("unsupported store driver %q", m.cfg.StoreDriver)
	}

	m.logger.Info("History module started",
		"driver", m.cfg.StoreDriver,
		"capacity", m.cfg.HistoryCapacity)
	return nil
}

// Stop closes the store and any Redis connection it owns.
func (m *Module) Stop(_ context.Context) error {
	if m.log != nil {
		if err := m.log.Close(); err != nil {
			m.logger.Warn("Error closing history store", "error", err)
		}
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	m.logger.Info("History module stopped")
	return nil
}

// Health reports whether the backing store answers.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.log == nil {
		return mono.HealthStatus{Healthy: false, Message: "store not initialized"}
	}
	if err := m.log.Ping(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.cfg.StoreDriver,
		},
	}
}

// Log returns the room log. Valid after Start.
func (m *Module) Log() Log {
	return m.log
}

func (m *Module) handleAppend(ctx context.Context, req AppendRequest, _ *mono.Msg) (AppendResponse, error) {
	if err := chat.ValidateRoomName(req.Room); err != nil {
		return AppendResponse{}, err
	}
	if err := m.log.Append(ctx, req.Room, req.Message); err != nil {
		m.logger.Warn("Failed to append to history", "room", req.Room, "error", err)
		return AppendResponse{}, err
	}
	n, err := m.log.Len(ctx, req.Room)
	if err != nil {
		return AppendResponse{}, err
	}
	return AppendResponse{Room: req.Room, Length: n}, nil
}

func (m *Module) handleRecent(ctx context.Context, req RecentRequest, _ *mono.Msg) (MessagesResponse, error) {
	if err := chat.ValidateRoomName(req.Room); err != nil {
		return MessagesResponse{}, err
	}
	count := req.Count
	if count > maxServiceCount {
		count = maxServiceCount
	}

	// A non-positive count yields an empty slice; callers pick the default.
	msgs, err := m.log.Recent(ctx, req.Room, count)
	if err != nil {
		m.logger.Warn("Failed to read recent history", "room", req.Room, "error", err)
		return MessagesResponse{}, err
	}
	return MessagesResponse{Room: req.Room, Messages: msgs}, nil
}

func (m *Module) handlePage(ctx context.Context, req PageRequest, _ *mono.Msg) (MessagesResponse, error) {
	if err := chat.ValidateRoomName(req.Room); err != nil {
		return MessagesResponse{}, err
	}
	if req.Limit > maxServiceCount {
		req.Limit = maxServiceCount
	}

	msgs, err := m.log.Page(ctx, req.Room, req.Offset, req.Limit)
	if err != nil {
		m.logger.Warn("Failed to read history page", "room", req.Room, "error", err)
		return MessagesResponse{}, err
	}
	return MessagesResponse{Room: req.Room, Messages: msgs}, nil
}
