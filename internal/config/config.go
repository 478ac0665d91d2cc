// Package config loads the TOML configuration used by the openshelf CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/split"
)

// Store selects and addresses the storage backend.
type Store struct {
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	DSN      string `toml:"dsn"`
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// Market contains the pricing and account rules.
type Market struct {
	Currency        string `toml:"currency"`
	PlatformAccount string `toml:"platform_account"`
	Pricing         string `toml:"pricing"`
	MaxChapters     int    `toml:"max_chapters"`
	MaxChapterPrice int64  `toml:"max_chapter_price"`
	MintConcurrency int    `toml:"mint_concurrency"`
}

// Split is the revenue split in basis points.
type Split struct {
	AuthorBps   uint32 `toml:"author_bps"`
	StakeBps    uint32 `toml:"stake_bps"`
	PlatformBps uint32 `toml:"platform_bps"`
}

// Staking contains the stake pool rules.
type Staking struct {
	RequirePurchase bool  `toml:"require_purchase"`
	AllowTopUp      bool  `toml:"allow_top_up"`
	MaxStakeAmount  int64 `toml:"max_stake_amount"`
	MaxStakers      int   `toml:"max_stakers"`
}

// Lock selects the per-book lock.
type Lock struct {
	Driver        string `toml:"driver"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	LeaseSeconds  int    `toml:"lease_seconds"`
}

// Logging configures the CLI logger.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Store   Store   `toml:"store"`
	Market  Market  `toml:"market"`
	Split   Split   `toml:"split"`
	Staking Staking `toml:"staking"`
	Lock    Lock    `toml:"lock"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/openshelf/config.toml")
}

// Load parses and validates the configuration at path. A missing file yields
// the defaults; exists reports whether the file was found. An empty path uses
// DefaultConfigPath.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	if path == "" {
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
	}
	resolved, err = expandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, "", false, fmt.Errorf("read config: %w", err)
	default:
		exists = true
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolved, exists, nil
}

// Write stores cfg at path, creating parent directories. It refuses to
// overwrite an existing file unless force is set.
func Write(path string, cfg Config, force bool) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(expanded); err == nil {
			return fmt.Errorf("config %s already exists", expanded)
		}
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Policy converts the market sections into an engine policy.
func (c *Config) Policy() openshelf.Policy {
	p := openshelf.DefaultPolicy()
	p.Currency = c.Market.Currency
	p.PlatformAccount = c.Market.PlatformAccount
	p.Pricing = openshelf.PricingMode(c.Market.Pricing)
	p.MaxChapters = c.Market.MaxChapters
	p.MaxChapterPrice = c.Market.MaxChapterPrice
	p.MintConcurrency = c.Market.MintConcurrency
	p.Split = split.Policy{
		AuthorBps:   c.Split.AuthorBps,
		StakeBps:    c.Split.StakeBps,
		PlatformBps: c.Split.PlatformBps,
	}
	p.RequirePurchaseToStake = c.Staking.RequirePurchase
	p.AllowStakeTopUp = c.Staking.AllowTopUp
	p.MaxStakeAmount = c.Staking.MaxStakeAmount
	p.MaxStakers = c.Staking.MaxStakers
	return p
}

// LeaseTTL returns the Redis lock lease.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Lock.LeaseSeconds) * time.Second
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) normalize() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Lock.Driver = strings.ToLower(strings.TrimSpace(c.Lock.Driver))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Market.Currency = strings.ToLower(strings.TrimSpace(c.Market.Currency))
	if c.Store.Path != "" {
		p, err := expandPath(c.Store.Path)
		if err != nil {
			return err
		}
		c.Store.Path = p
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	cleaned := strings.TrimSpace(pathValue)
	if strings.HasPrefix(cleaned, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		cleaned = filepath.Join(home, strings.TrimPrefix(cleaned, "~"))
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return abs, nil
}
