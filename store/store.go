package store

import (
	"context"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/purchase"
)

// Store is the unified storage interface for all OpenShelf entities.
// The sub-interfaces use distinct method names so they can be embedded.
type Store interface {
	book.Store
	account.Store
	purchase.Store
	accessgate.Store

	// Commit applies ch atomically. See Change for the contract.
	Commit(ctx context.Context, ch *Change) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
