// Package telemetry installs the process-wide OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"fmt"

	"github.com/example/relay-chat/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown flushes and stops the installed providers.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init sets the global meter provider to push over OTLP/gRPC when metrics
// are enabled. Otherwise the global no-op provider stays in place. The
// endpoint is read by the exporter from OTEL_EXPORTER_OTLP_ENDPOINT.
func Init(ctx context.Context, cfg config.Config) (Shutdown, error) {
	if !cfg.MetricsEnabled {
		return noop, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricsInterval))

	shutdown, err := install(ctx, cfg, reader)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}
	return shutdown, nil
}

// install builds a meter provider around reader and makes it global.
func install(ctx context.Context, cfg config.Config, reader sdkmetric.Reader) (Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceInstanceIDKey.String(cfg.ProcessID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down meter provider: %w", err)
		}
		return nil
	}, nil
}
