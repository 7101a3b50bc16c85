package main

import (
	"context"
	"log"
	"os"

	"github.com/example/relay-chat/config"
	"github.com/example/relay-chat/modules/broadcast"
	"github.com/example/relay-chat/modules/bus"
	"github.com/example/relay-chat/modules/chat"
	"github.com/example/relay-chat/modules/gateway"
	"github.com/example/relay-chat/modules/history"
	"github.com/example/relay-chat/modules/presence"
	"github.com/example/relay-chat/telemetry"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Relay Chat - Fiber + Redis/NATS fanout ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Relay counters are built from the global meter when the chat module
	// starts, so the provider must be installed first.
	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Presence and the hub are shared in-process state, handed to modules
	// directly rather than through a ServiceContainer.
	registry := presence.NewRegistry()

	historyModule := history.NewModule(cfg, logger)
	busModule := bus.NewModule(cfg, logger)
	broadcastModule := broadcast.NewModule(registry, logger)
	chatModule := chat.NewModule(cfg, registry, busModule, broadcastModule.Hub(), logger)
	gatewayModule := gateway.NewModule(cfg, chatModule, broadcastModule.Hub(), logger)

	// Register modules with the framework.
	// - history: bounded room log (Redis or memory)
	// - bus: cross-process fanout transport (Redis, NATS or memory)
	// - broadcast: WebSocket hub, writes envelopes to local connections
	// - chat: presence, relays and the connection lifecycle
	// - gateway: Fiber HTTP/WebSocket server
	for _, module := range []mono.Module{historyModule, busModule, broadcastModule, chatModule, gatewayModule} {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register %s module: %v", module.Name(), err)
		}
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
			"telemetry": func(ctx context.Context) error {
				return shutdownTelemetry(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  Process ID:   %s", cfg.ProcessID)
	log.Printf("  Bus driver:   %s", cfg.BusDriver)
	log.Printf("  Store driver: %s", cfg.StoreDriver)
	if cfg.NeedsRedis() {
		log.Printf("  Redis:        %s", cfg.RedisAddr)
	}
	if cfg.BusDriver == config.DriverNATS {
		log.Printf("  NATS URL:     %s", cfg.NatsURL)
	}
	log.Printf("  History:      last %d of %d per room", cfg.HistoryInitial, cfg.HistoryCapacity)
	if cfg.MetricsEnabled {
		log.Printf("  Metrics:      OTLP every %s as %s", cfg.MetricsInterval, cfg.ServiceName)
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", cfg.Port)
	log.Println("  GET    /health                        - Health check")
	log.Println("  GET    /api/v1/stats                  - Process stats")
	log.Println("  GET    /api/v1/rooms/:room/roster     - Local roster of a room")
	log.Println("  GET    /api/v1/rooms/:room/history    - Room history (?limit=N&offset=M)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws):", cfg.Port)
	log.Println("  Client events: join-room, send-message, typing, stop-typing,")
	log.Println("                 load-more, send-private, leave-room")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
