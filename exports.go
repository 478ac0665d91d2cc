package openshelf

import (
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/types"
)

// Re-export common types for convenience so users don't have to import the
// types and split packages.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// SplitPolicy is re-exported from split package.
type SplitPolicy = split.Policy

// Re-export Money constructors
var (
	SOL  = types.SOL
	USDC = types.USDC
	USD  = types.USD
	Zero = types.Zero
)

// Re-export split presets
var (
	DefaultSplit   = split.Default
	NoStakingSplit = split.NoStaking
)
