package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.HistoryLimit != 20 || cfg.Store.Driver != DriverSQLite {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"addr: \":9090\"",
		"history_limit: 15",
		"store:",
		"  driver: mongo",
		"  mongo_database: chat",
		"  op_timeout: 2s",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROOMRELAY_HISTORY_LIMIT", "30")
	t.Setenv("ROOMRELAY_STORE_MONGO_URI", "mongodb://db:27017")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("file value lost: %q", cfg.Addr)
	}
	if cfg.HistoryLimit != 30 {
		t.Fatalf("env should override file, got %d", cfg.HistoryLimit)
	}
	if cfg.Store.Driver != DriverMongo || cfg.Store.MongoDatabase != "chat" || cfg.Store.MongoURI != "mongodb://db:27017" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Store.OpTimeout != 2*time.Second {
		t.Fatalf("unexpected op timeout: %v", cfg.Store.OpTimeout)
	}
	if cfg.ClientBuffer != 64 {
		t.Fatalf("default lost for unset key: %d", cfg.ClientBuffer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "redis" }, wantErr: "unknown store.driver"},
		{name: "zero history", mutate: func(c *Config) { c.HistoryLimit = 0 }, wantErr: "history_limit"},
		{name: "mongo without uri", mutate: func(c *Config) {
			c.Store.Driver = DriverMongo
			c.Store.MongoURI = ""
		}, wantErr: "mongo_uri"},
		{name: "negative rate limit", mutate: func(c *Config) { c.RateLimitPerMinute = -1 }, wantErr: "rate_limit_per_minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7000", Store: StoreConfig{Driver: DriverMongo}, RateLimitPerMinute: 60})

	if cfg.Addr != ":7000" || cfg.Store.Driver != DriverMongo || cfg.RateLimitPerMinute != 60 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Store.SQLitePath != "roomrelay.db" || cfg.HistoryLimit != 20 {
		t.Fatalf("zero values should not override: %+v", cfg)
	}
}
