// Package extension provides the Forge extension adapter for OpenShelf.
//
// It implements the forge.Extension interface to integrate the marketplace
// engine into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.openshelf" or
// "openshelf" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/store"
	"github.com/xraph/openshelf/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "openshelf"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Book marketplace with chapter sales, staking and access tokens"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts OpenShelf as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	shelf     *openshelf.Shelf
	store     store.Store
	shelfOpts []openshelf.Option
}

// New creates a new OpenShelf Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Shelf returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Shelf() *openshelf.Shelf { return e.shelf }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*openshelf.Shelf, error) {
		return e.shelf, nil
	})
}

// build constructs the engine from the resolved config.
func (e *Extension) build() error {
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	shelf, err := openshelf.New(e.store, e.buildShelfOpts()...)
	if err != nil {
		return err
	}
	e.shelf = shelf
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.shelf == nil {
		return errors.New("openshelf: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.shelf.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.shelf != nil {
		if err := e.shelf.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("openshelf: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildShelfOpts constructs openshelf.Option values from the resolved config.
// Pass-through options come last so they can override the policy.
func (e *Extension) buildShelfOpts() []openshelf.Option {
	opts := make([]openshelf.Option, 0, len(e.shelfOpts)+1)
	opts = append(opts, openshelf.WithPolicy(e.config.Policy()))
	return append(opts, e.shelfOpts...)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("openshelf: configuration is required but not found in config files; " +
				"ensure 'extensions.openshelf' or 'openshelf' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("openshelf: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("platform_account", e.config.PlatformAccount),
		forge.F("split", e.config.Policy().Split.String()),
		forge.F("pricing", e.config.Pricing),
		forge.F("require_purchase_to_stake", e.config.RequirePurchaseToStake),
		forge.F("mint_concurrency", e.config.MintConcurrency),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.openshelf", "openshelf"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("openshelf: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("openshelf: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.PlatformAccount == "" {
		cfg.PlatformAccount = defaults.PlatformAccount
	}
	if !cfg.splitSet() {
		cfg.AuthorBps = defaults.AuthorBps
		cfg.StakeBps = defaults.StakeBps
		cfg.PlatformBps = defaults.PlatformBps
	}
	if cfg.Pricing == "" {
		cfg.Pricing = defaults.Pricing
	}
	if cfg.MintConcurrency == 0 {
		cfg.MintConcurrency = defaults.MintConcurrency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.RequirePurchaseToStake {
		yamlConfig.RequirePurchaseToStake = true
	}
	if programmaticConfig.DisableStakeTopUp {
		yamlConfig.DisableStakeTopUp = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.PlatformAccount == "" {
		yamlConfig.PlatformAccount = programmaticConfig.PlatformAccount
	}
	if yamlConfig.Pricing == "" {
		yamlConfig.Pricing = programmaticConfig.Pricing
	}

	// The split is taken as a whole from one source.
	if !yamlConfig.splitSet() {
		yamlConfig.AuthorBps = programmaticConfig.AuthorBps
		yamlConfig.StakeBps = programmaticConfig.StakeBps
		yamlConfig.PlatformBps = programmaticConfig.PlatformBps
	}
	if yamlConfig.MintConcurrency == 0 {
		yamlConfig.MintConcurrency = programmaticConfig.MintConcurrency
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
