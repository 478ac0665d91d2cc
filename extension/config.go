package extension

import (
	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/split"
)

// Config holds the OpenShelf extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.openshelf" or "openshelf" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the unit every amount is expressed in (default: "sol").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// PlatformAccount receives the platform share of every purchase
	// (default: "platform").
	PlatformAccount string `json:"platform_account" mapstructure:"platform_account" yaml:"platform_account"`

	// AuthorBps, StakeBps and PlatformBps describe the revenue split in
	// basis points. They must add up to 10000 (default: 7000/2000/1000).
	AuthorBps   uint32 `json:"author_bps" mapstructure:"author_bps" yaml:"author_bps"`
	StakeBps    uint32 `json:"stake_bps" mapstructure:"stake_bps" yaml:"stake_bps"`
	PlatformBps uint32 `json:"platform_bps" mapstructure:"platform_bps" yaml:"platform_bps"`

	// Pricing is "sum_of_chapters" or "fixed" (default: "sum_of_chapters").
	Pricing string `json:"pricing" mapstructure:"pricing" yaml:"pricing"`

	// RequirePurchaseToStake limits staking to readers of the full book.
	RequirePurchaseToStake bool `json:"require_purchase_to_stake" mapstructure:"require_purchase_to_stake" yaml:"require_purchase_to_stake"`

	// DisableStakeTopUp rejects a second stake by the same staker.
	DisableStakeTopUp bool `json:"disable_stake_top_up" mapstructure:"disable_stake_top_up" yaml:"disable_stake_top_up"`

	// MintConcurrency bounds concurrent minting retries (default: 4).
	MintConcurrency int `json:"mint_concurrency" mapstructure:"mint_concurrency" yaml:"mint_concurrency"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	p := openshelf.DefaultPolicy()
	return Config{
		Currency:        p.Currency,
		PlatformAccount: p.PlatformAccount,
		AuthorBps:       p.Split.AuthorBps,
		StakeBps:        p.Split.StakeBps,
		PlatformBps:     p.Split.PlatformBps,
		Pricing:         string(p.Pricing),
		MintConcurrency: p.MintConcurrency,
	}
}

// Policy converts the config into a market policy. Limits not exposed by
// Config keep their defaults.
func (c Config) Policy() openshelf.Policy {
	p := openshelf.DefaultPolicy()
	p.Currency = c.Currency
	p.PlatformAccount = c.PlatformAccount
	p.Split = split.Policy{AuthorBps: c.AuthorBps, StakeBps: c.StakeBps, PlatformBps: c.PlatformBps}
	p.Pricing = openshelf.PricingMode(c.Pricing)
	p.RequirePurchaseToStake = c.RequirePurchaseToStake
	p.AllowStakeTopUp = !c.DisableStakeTopUp
	p.MintConcurrency = c.MintConcurrency
	return p
}

// splitSet reports whether any split share was configured.
func (c Config) splitSet() bool {
	return c.AuthorBps != 0 || c.StakeBps != 0 || c.PlatformBps != 0
}
