// Package plugin provides an extensible plugin system for OpenShelf.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, shelf any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnBookCreated is called after a book is stored.
type OnBookCreated interface {
	Plugin
	OnBookCreated(ctx context.Context, b *book.Book) error
}

// OnChapterAdded is called after a chapter is registered.
type OnChapterAdded interface {
	Plugin
	OnChapterAdded(ctx context.Context, b *book.Book, ch *book.Chapter) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnChapterPurchased is called after a chapter purchase is committed.
type OnChapterPurchased interface {
	Plugin
	OnChapterPurchased(ctx context.Context, b *book.Book, r *purchase.Receipt) error
}

// OnBookPurchased is called after a full-book purchase is committed.
type OnBookPurchased interface {
	Plugin
	OnBookPurchased(ctx context.Context, b *book.Book, r *purchase.Receipt) error
}

// ──────────────────────────────────────────────────
// Stake pool hooks
// ──────────────────────────────────────────────────

// OnStakePlaced is called after a stake or top-up is committed. amount is
// the amount added by this call.
type OnStakePlaced interface {
	Plugin
	OnStakePlaced(ctx context.Context, b *book.Book, staker string, amount int64) error
}

// OnEarningsAccrued is called when a purchase credits stakers.
type OnEarningsAccrued interface {
	Plugin
	OnEarningsAccrued(ctx context.Context, bookID id.BookID, accruals []split.Accrual) error
}

// OnEarningsClaimed is called after a staker claims.
type OnEarningsClaimed interface {
	Plugin
	OnEarningsClaimed(ctx context.Context, bookID id.BookID, staker string, amount int64) error
}

// ──────────────────────────────────────────────────
// Access gate hooks
// ──────────────────────────────────────────────────

// OnAccessTokenIssued is called after a token is minted or updated.
type OnAccessTokenIssued interface {
	Plugin
	OnAccessTokenIssued(ctx context.Context, t *accessgate.Token) error
}

// OnMintFailed is called when the minting collaborator fails.
type OnMintFailed interface {
	Plugin
	OnMintFailed(ctx context.Context, bookID id.BookID, owner string, err error) error
}

// ──────────────────────────────────────────────────
// Rejections
// ──────────────────────────────────────────────────

// OnOperationRejected is called when an operation fails with a domain
// error. op is the operation name, e.g. "purchase_chapter".
type OnOperationRejected interface {
	Plugin
	OnOperationRejected(ctx context.Context, op string, err error) error
}
