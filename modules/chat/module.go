package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/relay-chat/config"
	domain "github.com/example/relay-chat/domain/chat"
	"github.com/example/relay-chat/modules/bus"
	"github.com/example/relay-chat/modules/history"
	"github.com/example/relay-chat/modules/presence"
	"github.com/example/relay-chat/modules/relay"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"go.opentelemetry.io/otel"
)

// BusProvider hands out the process's bus once it is connected.
type BusProvider interface {
	Bus() bus.Bus
}

// Module wires the relays and the lifecycle handler of this process.
type Module struct {
	cfg      config.Config
	presence *presence.Registry
	buses    BusProvider
	out      relay.Deliverer
	history  history.HistoryPort
	rooms    *relay.RoomRelay
	private  *relay.PrivateRelay
	handler  *Handler
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule(cfg config.Config, registry *presence.Registry, buses BusProvider, out relay.Deliverer, logger types.Logger) *Module {
	return &Module{
		cfg:      cfg,
		presence: registry,
		buses:    buses,
		out:      out,
		logger:   logger.WithModule("chat"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"history", "bus"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	// The bus itself arrives through BusProvider; "bus" is listed so it
	// starts first.
	switch dependency {
	case "history":
		m.history = history.NewAdapter(container)
	}
}

// SetHistory replaces the history port, for wiring without a container.
func (m *Module) SetHistory(h history.HistoryPort) {
	m.history = h
}

// RegisterServices registers the roster and stats services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRoster, json.Unmarshal, json.Marshal, m.handleRoster,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRoster, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceStats, json.Unmarshal, json.Marshal, m.handleStats,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceStats, err)
	}

	return nil
}

// Start builds the relays over the connected bus.
func (m *Module) Start(_ context.Context) error {
	if m.history == nil {
		return fmt.Errorf("history dependency not set")
	}
	b := m.buses.Bus()
	if b == nil {
		return fmt.Errorf("bus not started")
	}

	metrics, err := relay.NewMetrics(otel.Meter(relay.InstrumentationName))
	if err != nil {
		return err
	}

	m.rooms = relay.NewRoomRelay(m.cfg.ProcessID, b, m.out, metrics, m.logger)
	m.private = relay.NewPrivateRelay(m.cfg.ProcessID, b, m.presence, m.out, metrics, m.logger)
	m.handler = NewHandler(Deps{
		ProcessID:      m.cfg.ProcessID,
		InitialHistory: m.cfg.HistoryInitial,
		History:        m.history,
		Presence:       m.presence,
		Rooms:          m.rooms,
		Private:        m.private,
		Out:            m.out,
		Logger:         m.logger,
	})

	m.logger.Info("Chat module started", "processId", m.cfg.ProcessID)
	return nil
}

// Stop logs the final state. Bus subscriptions are released by the bus module.
func (m *Module) Stop(_ context.Context) error {
	if m.handler != nil {
		m.logger.Info("Chat module stopped", "connections", m.handler.SessionCount())
		return nil
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.handler == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"process_id":       m.cfg.ProcessID,
			"connections":      m.handler.SessionCount(),
			"in_rooms":         m.presence.Count(),
			"subscribed_rooms": len(m.rooms.Rooms()),
			"private_channels": m.private.OpenCount(),
		},
	}
}

// Handler returns the lifecycle handler. Valid after Start.
func (m *Module) Handler() *Handler {
	return m.handler
}

func (m *Module) handleRoster(_ context.Context, req RosterRequest, _ *mono.Msg) (domain.Roster, error) {
	if err := domain.ValidateRoomName(req.Room); err != nil {
		return domain.Roster{}, err
	}
	return domain.NewRoster(req.Room, m.presence.RosterFor(req.Room)), nil
}

func (m *Module) handleStats(_ context.Context, _ StatsRequest, _ *mono.Msg) (StatsResponse, error) {
	if m.handler == nil {
		return StatsResponse{}, fmt.Errorf("chat module not started")
	}
	return StatsResponse{
		ProcessID:       m.cfg.ProcessID,
		Connections:     m.handler.SessionCount(),
		InRooms:         m.presence.Count(),
		Rooms:           m.presence.Rooms(),
		SubscribedRooms: m.rooms.Rooms(),
		PrivateChannels: m.private.OpenCount(),
	}, nil
}
