package openshelf

import (
	"fmt"
	"strings"

	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/types"
)

// PricingMode selects how a book's full price relates to its chapters.
type PricingMode string

const (
	// PricingSumOfChapters keeps FullBookPrice equal to the sum of chapter
	// prices; it is recomputed when a chapter is added.
	PricingSumOfChapters PricingMode = "sum_of_chapters"
	// PricingFixed uses the price supplied at creation.
	PricingFixed PricingMode = "fixed"
)

// Policy holds the market rules applied by a Shelf.
type Policy struct {
	// Currency is the unit every amount is expressed in.
	Currency string `json:"currency" toml:"currency" yaml:"currency" mapstructure:"currency"`
	// PlatformAccount receives the platform share of every purchase.
	PlatformAccount string `json:"platform_account" toml:"platform_account" yaml:"platform_account" mapstructure:"platform_account"`

	Split   split.Policy `json:"split" toml:"split" yaml:"split" mapstructure:"split"`
	Pricing PricingMode  `json:"pricing" toml:"pricing" yaml:"pricing" mapstructure:"pricing"`

	// RequirePurchaseToStake limits staking to full-book readers.
	RequirePurchaseToStake bool `json:"require_purchase_to_stake" toml:"require_purchase_to_stake" yaml:"require_purchase_to_stake" mapstructure:"require_purchase_to_stake"`
	// AllowStakeTopUp lets an existing staker add to their position.
	AllowStakeTopUp bool `json:"allow_stake_top_up" toml:"allow_stake_top_up" yaml:"allow_stake_top_up" mapstructure:"allow_stake_top_up"`

	MaxChapters     int   `json:"max_chapters" toml:"max_chapters" yaml:"max_chapters" mapstructure:"max_chapters"`
	MaxChapterPrice int64 `json:"max_chapter_price" toml:"max_chapter_price" yaml:"max_chapter_price" mapstructure:"max_chapter_price"`
	MaxStakeAmount  int64 `json:"max_stake_amount" toml:"max_stake_amount" yaml:"max_stake_amount" mapstructure:"max_stake_amount"`
	MaxStakers      int   `json:"max_stakers" toml:"max_stakers" yaml:"max_stakers" mapstructure:"max_stakers"`

	// MintConcurrency bounds RetryPendingMints.
	MintConcurrency int `json:"mint_concurrency" toml:"mint_concurrency" yaml:"mint_concurrency" mapstructure:"mint_concurrency"`
}

// Market limits.
const (
	DefaultMaxChapters     = 255
	DefaultMaxChapterPrice = 1_000_000_000
	DefaultMaxStakeAmount  = 10_000_000_000
	DefaultMaxStakers      = 255
	DefaultMintConcurrency = 4
	DefaultPlatformAccount = "platform"
	DefaultCurrency        = "sol"
)

// DefaultPolicy returns a 70/20/10 split with open staking.
func DefaultPolicy() Policy {
	return Policy{
		Currency:        DefaultCurrency,
		PlatformAccount: DefaultPlatformAccount,
		Split:           split.Default,
		Pricing:         PricingSumOfChapters,
		AllowStakeTopUp: true,
		MaxChapters:     DefaultMaxChapters,
		MaxChapterPrice: DefaultMaxChapterPrice,
		MaxStakeAmount:  DefaultMaxStakeAmount,
		MaxStakers:      DefaultMaxStakers,
		MintConcurrency: DefaultMintConcurrency,
	}
}

// Validate checks the policy for consistency.
func (p Policy) Validate() error {
	if err := p.Split.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if strings.TrimSpace(p.Currency) == "" {
		return invalid("currency", "must not be empty")
	}
	if !types.KnownCurrency(p.Currency) {
		return invalid("currency", "unknown currency %q", p.Currency)
	}
	if err := checkAccount("platform_account", p.PlatformAccount); err != nil {
		return err
	}
	switch p.Pricing {
	case PricingSumOfChapters, PricingFixed:
	default:
		return invalid("pricing", "unknown pricing mode %q", p.Pricing)
	}
	if p.MaxChapters <= 0 {
		return invalid("max_chapters", "must be positive")
	}
	if p.MaxChapterPrice < 0 {
		return invalid("max_chapter_price", "must not be negative")
	}
	if p.MaxStakeAmount <= 0 {
		return invalid("max_stake_amount", "must be positive")
	}
	if p.MaxStakers <= 0 {
		return invalid("max_stakers", "must be positive")
	}
	if p.MintConcurrency <= 0 {
		return invalid("mint_concurrency", "must be positive")
	}
	return nil
}
