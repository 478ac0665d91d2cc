package account

import (
	"context"

	"github.com/xraph/openshelf/id"
)

// Store persists balances and the transfer journal. Transfers other than
// deposits are written by the unified store's atomic commit.
type Store interface {
	// Deposit credits t.To and journals t. t.From must be empty.
	Deposit(ctx context.Context, t *Transfer) error
	// GetBalance returns 0 for accounts that never received funds.
	GetBalance(ctx context.Context, account string) (int64, error)
	ListTransfers(ctx context.Context, opts ListOpts) ([]*Transfer, error)
}

// ListOpts filters ListTransfers. Account matches either side.
type ListOpts struct {
	Account string
	BookID  id.BookID
	Kind    Kind
	Limit   int
	Offset  int
}

// Match reports whether t passes the filters (Limit and Offset excluded).
func (o ListOpts) Match(t *Transfer) bool {
	if o.Account != "" && t.From != o.Account && t.To != o.Account {
		return false
	}
	if !o.BookID.IsNil() && t.BookID.String() != o.BookID.String() {
		return false
	}
	if o.Kind != "" && t.Kind != o.Kind {
		return false
	}
	return true
}
