package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.BusDriver != DriverRedis || cfg.StoreDriver != DriverRedis {
		t.Errorf("drivers = %s/%s, want redis/redis", cfg.BusDriver, cfg.StoreDriver)
	}
	if cfg.HistoryCapacity != 50 {
		t.Errorf("HistoryCapacity = %d, want 50", cfg.HistoryCapacity)
	}
	if cfg.HistoryInitial != 10 {
		t.Errorf("HistoryInitial = %d, want 10", cfg.HistoryInitial)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.ProcessID == "" {
		t.Error("expected a generated process id")
	}
	if cfg.MetricsEnabled {
		t.Error("metrics export must be off by default")
	}
	if cfg.MetricsInterval != 30*time.Second || cfg.ServiceName != "relay-chat" {
		t.Errorf("metrics = %s/%q, want 30s/relay-chat", cfg.MetricsInterval, cfg.ServiceName)
	}
}

func TestLoad_GeneratesDistinctProcessIDs(t *testing.T) {
	a, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	b, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if a.ProcessID == b.ProcessID {
		t.Error("two processes must not share a generated id")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "4100")
	t.Setenv("PROCESS_ID", "node-a")
	t.Setenv("BUS_DRIVER", "nats")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("METRICS_INTERVAL", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 4100 || cfg.ProcessID != "node-a" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.BusDriver != DriverNATS || cfg.StoreDriver != DriverMemory {
		t.Errorf("drivers = %s/%s", cfg.BusDriver, cfg.StoreDriver)
	}
	if cfg.NeedsRedis() {
		t.Error("nats+memory should not need redis")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
	if !cfg.MetricsEnabled || cfg.MetricsInterval != 10*time.Second {
		t.Errorf("metrics = %v/%s", cfg.MetricsEnabled, cfg.MetricsInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:            3000,
		ProcessID:       "p",
		BusDriver:       DriverMemory,
		StoreDriver:     DriverMemory,
		HistoryCapacity: 50,
		HistoryInitial:  10,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(_ *Config) {}, false},
		{"unknown bus", func(c *Config) { c.BusDriver = "kafka" }, true},
		{"nats store unsupported", func(c *Config) { c.StoreDriver = DriverNATS }, true},
		{"zero capacity", func(c *Config) { c.HistoryCapacity = 0 }, true},
		{"initial above capacity", func(c *Config) { c.HistoryInitial = 51 }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"missing process id", func(c *Config) { c.ProcessID = "" }, true},
		{"metrics without interval", func(c *Config) { c.MetricsEnabled = true }, true},
		{"metrics with interval", func(c *Config) { c.MetricsEnabled, c.MetricsInterval = true, time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
