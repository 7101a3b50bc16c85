// Package relay moves chat messages between processes over the bus.
//
// RoomRelay fans room messages out to every process holding members of the
// room. PrivateRelay carries point-to-point messages over a channel owned by
// the recipient's connection. Neither delivers to local connections on the
// publishing side; that is the caller's job.
package relay

import (
	"context"
	"fmt"

	"github.com/example/relay-chat/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the meter name used for relay counters.
const InstrumentationName = "github.com/example/relay-chat/modules/relay"

// Deliverer hands outbound events to connections held by this process.
type Deliverer interface {
	EmitTo(connectionID string, env events.Envelope)
	EmitToRoom(room string, env events.Envelope, except ...string)
}

var (
	scopeRoom    = metric.WithAttributes(attribute.String("scope", "room"))
	scopePrivate = metric.WithAttributes(attribute.String("scope", "private"))
)

// Metrics counts relay traffic.
type Metrics struct {
	published  metric.Int64Counter
	delivered  metric.Int64Counter
	suppressed metric.Int64Counter
	dropped    metric.Int64Counter
}

// NewMetrics creates the relay counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	published, err := meter.Int64Counter("relay_messages_published_total",
		metric.WithDescription("Messages published to the bus"))
	if err != nil {
		return nil, fmt.Errorf("failed to create published counter: %w", err)
	}
	delivered, err := meter.Int64Counter("relay_messages_delivered_total",
		metric.WithDescription("Bus messages delivered to local connections"))
	if err != nil {
		return nil, fmt.Errorf("failed to create delivered counter: %w", err)
	}
	suppressed, err := meter.Int64Counter("relay_echo_suppressed_total",
		metric.WithDescription("Room messages ignored because this process published them"))
	if err != nil {
		return nil, fmt.Errorf("failed to create suppressed counter: %w", err)
	}
	dropped, err := meter.Int64Counter("relay_payloads_dropped_total",
		metric.WithDescription("Bus payloads dropped because they could not be decoded"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dropped counter: %w", err)
	}
	return &Metrics{
		published:  published,
		delivered:  delivered,
		suppressed: suppressed,
		dropped:    dropped,
	}, nil
}

func (m *Metrics) add(c metric.Int64Counter, scope metric.AddOption) {
	c.Add(context.Background(), 1, scope)
}
