package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/relay-chat/config"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Module owns the process's bus connection.
type Module struct {
	cfg    config.Config
	bus    Bus
	client *redis.Client
	nc     *nats.Conn
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a bus module; the transport is connected on Start.
func NewModule(cfg config.Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger.WithModule("bus"),
	}
}

// NewModuleWithBus creates a bus module around an existing Bus.
func NewModuleWithBus(b Bus, logger types.Logger) *Module {
	return &Module{
		bus:    b,
		logger: logger.WithModule("bus"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "bus"
}

// RegisterServices registers the ping service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePing, json.Unmarshal, json.Marshal, m.handlePing,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePing, err)
	}
	return nil
}

// Start connects the configured transport.
func (m *Module) Start(ctx context.Context) error {
	if m.bus != nil {
		m.logger.Info("Bus module started with injected transport")
		return nil
	}

	switch m.cfg.BusDriver {
	case config.DriverMemory:
		m.bus = NewMemoryBus()
	case config.DriverRedis:
		// A dedicated client keeps subscriber connections apart from the
		// history store's command pool.
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.cfg.RedisAddr,
			Password:     m.cfg.RedisPassword,
			DB:           m.cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := m.client.Ping(ctx).Err(); err != nil {
			_ = m.client.Close()
			m.client = nil
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.bus = NewRedisBus(m.client, m.logger)
	case config.DriverNATS:
		natsCfg := DefaultNatsConfig()
		natsCfg.URL = m.cfg.NatsURL
		natsCfg.Name = "relay-chat-" + m.cfg.ProcessID
		nc, err := ConnectNats(natsCfg)
		if err != nil {
			return err
		}
		m.nc = nc
		m.bus = NewNatsBus(nc, m.logger)
	default:
		return fmt.Errorf("unsupported bus driver %q", m.cfg.BusDriver)
	}

	m.logger.Info("Bus module started", "driver", m.cfg.BusDriver)
	return nil
}

// Stop releases subscriptions and closes owned connections.
func (m *Module) Stop(_ context.Context) error {
	if m.bus != nil {
		if err := m.bus.Close(); err != nil {
			m.logger.Warn("Error closing bus", "error", err)
		}
	}
	if m.nc != nil {
		m.nc.Close()
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	m.logger.Info("Bus module stopped")
	return nil
}

// Health reports whether the transport answers.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.bus == nil {
		return mono.HealthStatus{Healthy: false, Message: "bus not initialized"}
	}
	if err := m.bus.Ping(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.cfg.BusDriver,
		},
	}
}

// Bus returns the transport. Valid after Start.
func (m *Module) Bus() Bus {
	return m.bus
}

func (m *Module) handlePing(ctx context.Context, _ PingRequest, _ *mono.Msg) (PingResponse, error) {
	if m.bus == nil {
		return PingResponse{}, ErrClosed
	}
	if err := m.bus.Ping(ctx); err != nil {
		return PingResponse{}, err
	}
	return PingResponse{Driver: m.cfg.BusDriver}, nil
}
