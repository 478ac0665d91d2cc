package extension

import (
	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/lock"
	"github.com/xraph/openshelf/plugin"
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/store"
)

// Option configures the OpenShelf Forge extension.
type Option func(*Extension)

// WithStore sets the store for the marketplace engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithShelfOption passes an openshelf.Option through to the underlying engine.
func WithShelfOption(opt openshelf.Option) Option {
	return func(e *Extension) {
		e.shelfOpts = append(e.shelfOpts, opt)
	}
}

// WithPlugin registers an OpenShelf plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.shelfOpts = append(e.shelfOpts, openshelf.WithPlugin(p))
	}
}

// WithMinter sets the access token minting collaborator.
func WithMinter(m accessgate.Minter) Option {
	return func(e *Extension) {
		e.shelfOpts = append(e.shelfOpts, openshelf.WithMinter(m))
	}
}

// WithLocker sets the per-book lock used by the engine.
func WithLocker(l lock.Locker) Option {
	return func(e *Extension) {
		e.shelfOpts = append(e.shelfOpts, openshelf.WithLocker(l))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSplit sets the revenue split.
func WithSplit(p split.Policy) Option {
	return func(e *Extension) {
		e.config.AuthorBps = p.AuthorBps
		e.config.StakeBps = p.StakeBps
		e.config.PlatformBps = p.PlatformBps
	}
}

// WithPlatformAccount sets the account receiving platform fees.
func WithPlatformAccount(name string) Option {
	return func(e *Extension) { e.config.PlatformAccount = name }
}

// WithRequirePurchaseToStake limits staking to full-book readers.
func WithRequirePurchaseToStake() Option {
	return func(e *Extension) { e.config.RequirePurchaseToStake = true }
}

// WithMintConcurrency bounds concurrent minting retries.
func WithMintConcurrency(n int) Option {
	return func(e *Extension) { e.config.MintConcurrency = n }
}
