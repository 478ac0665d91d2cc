package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/internal/config"
	"github.com/xraph/openshelf/lock/redislock"
	"github.com/xraph/openshelf/store"
	boltstore "github.com/xraph/openshelf/store/bolt"
	"github.com/xraph/openshelf/store/memory"
	mongostore "github.com/xraph/openshelf/store/mongo"
	"github.com/xraph/openshelf/store/postgres"
	"github.com/xraph/openshelf/store/sqlite"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	mintFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag, mintFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		mintFlag:   mintFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withShelf opens the configured store, starts a Shelf on it, runs fn and
// closes everything again.
func (c *commandContext) withShelf(cmd *cobra.Command, fn func(context.Context, *openshelf.Shelf) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []openshelf.Option{
		openshelf.WithPolicy(cfg.Policy()),
		openshelf.WithLogger(logger),
	}
	if cfg.Lock.Driver == config.LockRedis {
		locker, err := redislock.New(redislock.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
			TTL:      cfg.LeaseTTL(),
			Logger:   logger,
		})
		if err != nil {
			_ = st.Close()
			return err
		}
		defer locker.Close()
		opts = append(opts, openshelf.WithLocker(locker))
	}
	if c.mintFlag != nil && *c.mintFlag {
		opts = append(opts, openshelf.WithMinter(accessgate.NewMemoryMinter()))
	}

	shelf, err := openshelf.New(st, opts...)
	if err != nil {
		_ = st.Close()
		return err
	}
	if err := shelf.Start(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if cerr := shelf.Stop(); cerr != nil {
			logger.Warn("openshelf: close store", "error", cerr)
		}
	}()

	return fn(ctx, shelf)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverBolt:
		if err := ensureParentDir(cfg.Store.Path); err != nil {
			return nil, err
		}
		return boltstore.Open(cfg.Store.Path, 0o600)
	case config.DriverSQLite:
		if err := ensureParentDir(cfg.Store.Path); err != nil {
			return nil, err
		}
		return sqlite.Open(cfg.Store.Path)
	case config.DriverPostgres:
		return postgres.Open(cfg.Store.DSN)
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.Store.URI, cfg.Store.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory %q: %w", dir, err)
	}
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseBookID(arg string) (id.BookID, error) {
	bookID, err := id.ParseBookID(strings.TrimSpace(arg))
	if err != nil {
		return id.Nil, fmt.Errorf("invalid book id %q: %w", arg, err)
	}
	return bookID, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
