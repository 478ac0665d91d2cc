// Package split computes how a purchase price is divided between the
// author, the stake pool and the platform, and how a stake-pool share is
// accrued across stakers.
//
// All amounts are integers in the smallest currency unit. Products are
// computed in 128 bits so large prices and stakes never overflow.
package split

import (
	"errors"
	"fmt"
	"math/bits"
)

// TotalBps is the number of basis points in a whole.
const TotalBps = 10000

// Policy is the revenue split triple in basis points.
type Policy struct {
	AuthorBps   uint32 `json:"author_bps" toml:"author_bps" yaml:"author_bps" mapstructure:"author_bps"`
	StakeBps    uint32 `json:"stake_bps" toml:"stake_bps" yaml:"stake_bps" mapstructure:"stake_bps"`
	PlatformBps uint32 `json:"platform_bps" toml:"platform_bps" yaml:"platform_bps" mapstructure:"platform_bps"`
}

// Named policies observed across deployments.
var (
	// Default pays 70% to the author, 20% to stakers and 10% to the platform.
	Default = Policy{AuthorBps: 7000, StakeBps: 2000, PlatformBps: 1000}

	// NoStaking pays 80% to the author and 20% to the platform.
	NoStaking = Policy{AuthorBps: 8000, StakeBps: 0, PlatformBps: 2000}
)

// ErrInvalidPolicy is returned by Validate.
var ErrInvalidPolicy = errors.New("split: invalid policy")

// Validate checks that the triple sums to exactly TotalBps.
func (p Policy) Validate() error {
	sum := uint64(p.AuthorBps) + uint64(p.StakeBps) + uint64(p.PlatformBps)
	if sum != TotalBps {
		return fmt.Errorf("%w: %d/%d/%d sums to %d, want %d",
			ErrInvalidPolicy, p.AuthorBps, p.StakeBps, p.PlatformBps, sum, TotalBps)
	}
	return nil
}

// String renders the policy as percentages, e.g. "70/20/10".
func (p Policy) String() string {
	return fmt.Sprintf("%s/%s/%s", pct(p.AuthorBps), pct(p.StakeBps), pct(p.PlatformBps))
}

func pct(bps uint32) string {
	if bps%100 == 0 {
		return fmt.Sprintf("%d", bps/100)
	}
	return fmt.Sprintf("%d.%02d", bps/100, bps%100)
}

// Shares is the outcome of splitting one price.
type Shares struct {
	Author   int64 `json:"author"`
	Stake    int64 `json:"stake"`
	Platform int64 `json:"platform"`

	// Redirected is true when the stake share was folded into Author
	// because the book had no stake.
	Redirected bool `json:"redirected,omitempty"`
}

// Total returns Author + Stake + Platform.
func (s Shares) Total() int64 { return s.Author + s.Stake + s.Platform }

// Split divides price according to p. The stake and platform shares are
// floored; the author receives the remainder so the shares always sum to
// price. When hasStakers is false the stake share goes to the author.
//
// price must be non-negative and p must be valid.
func (p Policy) Split(price int64, hasStakers bool) Shares {
	if price <= 0 {
		return Shares{}
	}
	stake := int64(MulDiv(uint64(price), uint64(p.StakeBps), TotalBps))
	platform := int64(MulDiv(uint64(price), uint64(p.PlatformBps), TotalBps))
	s := Shares{
		Author:   price - stake - platform,
		Stake:    stake,
		Platform: platform,
	}
	if !hasStakers && s.Stake > 0 {
		s.Author += s.Stake
		s.Stake = 0
		s.Redirected = true
	}
	return s
}

// MulDiv returns floor(a*b/c) using a 128-bit intermediate product.
// It panics if c is zero or the quotient does not fit in 64 bits.
func MulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}
