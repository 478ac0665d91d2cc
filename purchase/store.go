package purchase

import (
	"context"
	"slices"

	"github.com/xraph/openshelf/id"
)

// Store persists receipts. Receipts are inserted by the unified store's
// atomic commit; only their access state changes afterwards.
type Store interface {
	GetReceipt(ctx context.Context, receiptID id.PurchaseID) (*Receipt, error)
	ListReceipts(ctx context.Context, opts ListOpts) ([]*Receipt, error)
	UpdateReceiptAccess(ctx context.Context, receiptID id.PurchaseID, state AccessState) error
}

// ListOpts filters ListReceipts. Receipts are returned oldest first.
type ListOpts struct {
	BookID         id.BookID
	Buyer          string
	AccessStatuses []AccessStatus
	Limit          int
	Offset         int
}

// Match reports whether r passes the filters (Limit and Offset excluded).
func (o ListOpts) Match(r *Receipt) bool {
	if !o.BookID.IsNil() && r.BookID.String() != o.BookID.String() {
		return false
	}
	if o.Buyer != "" && r.Buyer != o.Buyer {
		return false
	}
	if len(o.AccessStatuses) > 0 && !slices.Contains(o.AccessStatuses, r.Access.Status) {
		return false
	}
	return true
}
