package config

import (
	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/lock/redislock"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Default returns the configuration used when no file is present: an
// SQLite store under ~/.local/share/openshelf and the default market policy.
func Default() Config {
	p := openshelf.DefaultPolicy()
	return Config{
		Store: Store{
			Driver:   DriverSQLite,
			Path:     "~/.local/share/openshelf/openshelf.db",
			Database: "openshelf",
		},
		Market: Market{
			Currency:        p.Currency,
			PlatformAccount: p.PlatformAccount,
			Pricing:         string(p.Pricing),
			MaxChapters:     p.MaxChapters,
			MaxChapterPrice: p.MaxChapterPrice,
			MintConcurrency: p.MintConcurrency,
		},
		Split: Split{
			AuthorBps:   p.Split.AuthorBps,
			StakeBps:    p.Split.StakeBps,
			PlatformBps: p.Split.PlatformBps,
		},
		Staking: Staking{
			RequirePurchase: p.RequirePurchaseToStake,
			AllowTopUp:      p.AllowStakeTopUp,
			MaxStakeAmount:  p.MaxStakeAmount,
			MaxStakers:      p.MaxStakers,
		},
		Lock: Lock{
			Driver:       LockLocal,
			LeaseSeconds: int(redislock.DefaultTTL.Seconds()),
		},
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
	}
}
