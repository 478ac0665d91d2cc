package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "openshelf", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}
	if cfg.Store.Driver != config.DriverSQLite {
		t.Fatalf("driver = %q, want sqlite", cfg.Store.Driver)
	}
	if want := filepath.Join(tempHome, ".local", "share", "openshelf", "openshelf.db"); cfg.Store.Path != want {
		t.Fatalf("store path = %q, want %q", cfg.Store.Path, want)
	}
	if got := cfg.Policy(); got != openshelf.DefaultPolicy() {
		t.Fatalf("policy = %+v, want default", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openshelf.toml")
	doc := `
[store]
driver = "BOLT"
path = "` + filepath.ToSlash(filepath.Join(t.TempDir(), "shelf.db")) + `"

[market]
platform_account = "treasury"
pricing = "fixed"

[split]
author_bps = 8000
stake_bps = 0
platform_bps = 2000

[staking]
require_purchase = true
allow_top_up = false

[lock]
driver = "redis"
redis_addr = "127.0.0.1:6379"
lease_seconds = 3

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if cfg.Store.Driver != config.DriverBolt {
		t.Errorf("driver = %q, want bolt", cfg.Store.Driver)
	}

	p := cfg.Policy()
	if p.PlatformAccount != "treasury" || p.Pricing != openshelf.PricingFixed {
		t.Errorf("market not applied: %+v", p)
	}
	if p.Split.StakeBps != 0 || p.Split.AuthorBps != 8000 {
		t.Errorf("split = %v", p.Split)
	}
	if !p.RequirePurchaseToStake || p.AllowStakeTopUp {
		t.Errorf("staking not applied: %+v", p)
	}
	// Unset keys keep their defaults.
	if p.MaxStakers != openshelf.DefaultMaxStakers {
		t.Errorf("MaxStakers = %d, want default", p.MaxStakers)
	}
	if cfg.LeaseTTL().Seconds() != 3 {
		t.Errorf("LeaseTTL = %v", cfg.LeaseTTL())
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openshelf.toml")
	if err := os.WriteFile(path, []byte("[market]\nfee = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "dynamo" }, "store.driver"},
		{"postgres without dsn", func(c *config.Config) { c.Store.Driver = config.DriverPostgres }, "store.dsn"},
		{"mongo without uri", func(c *config.Config) { c.Store.Driver = config.DriverMongo }, "store.uri"},
		{"redis without addr", func(c *config.Config) { c.Lock.Driver = config.LockRedis }, "lock.redis_addr"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"split not 100%", func(c *config.Config) { c.Split.PlatformBps = 0 }, "market"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	cfg := config.Default()
	cfg.Split.PlatformBps = 0
	if err := cfg.Validate(); !errors.Is(err, openshelf.ErrInvalidInput) {
		t.Fatalf("split error should wrap ErrInvalidInput, got %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.Write(path, config.Default(), false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode written config: %v", err)
	}
	if decoded.Split != config.Default().Split {
		t.Errorf("split = %+v", decoded.Split)
	}

	if err := config.Write(path, config.Default(), false); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if err := config.Write(path, config.Default(), true); err != nil {
		t.Fatalf("forced Write: %v", err)
	}
}
