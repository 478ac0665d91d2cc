// Package purchase defines the receipts produced by chapter and full-book
// purchases, including the state of the access token requested with them.
package purchase

import (
	"strconv"
	"time"

	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/split"
)

// Mode is what a receipt bought.
type Mode string

const (
	ModeChapter  Mode = "chapter"
	ModeFullBook Mode = "full_book"
)

// AccessStatus tracks the access token requested with a purchase.
type AccessStatus string

const (
	AccessNone    AccessStatus = "none"
	AccessPending AccessStatus = "pending"
	AccessIssued  AccessStatus = "issued"
	AccessFailed  AccessStatus = "failed"
)

// FullyPurchasedAttribute is the token attribute key recorded for a
// full-book purchase. Chapter purchases use the chapter index as key.
const FullyPurchasedAttribute = "fully_purchased"

// AccessState is the outcome of the mint attempted after a purchase.
type AccessState struct {
	Status    AccessStatus `json:"status"`
	AssetID   string       `json:"asset_id,omitempty"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Receipt records a settled purchase. Its ID is the transaction id written
// into access token attributes.
type Receipt struct {
	ID           id.PurchaseID   `json:"id"`
	BookID       id.BookID       `json:"book_id"`
	Buyer        string          `json:"buyer"`
	Mode         Mode            `json:"mode"`
	ChapterIndex int             `json:"chapter_index"`
	Price        int64           `json:"price"`
	Currency     string          `json:"currency"`
	Shares       split.Shares    `json:"shares"`
	Accruals     []split.Accrual `json:"accruals,omitempty"`

	// Accrued is the part of Shares.Stake credited to stakers. The rest
	// stays in the revenue pool as rounding dust.
	Accrued int64 `json:"accrued"`

	// Promoted is set when a chapter purchase completed the buyer's set of
	// chapters and made them a full-book reader.
	Promoted bool `json:"promoted"`

	NeedsAccessToken bool        `json:"needs_access_token"`
	Access           AccessState `json:"access"`
	CreatedAt        time.Time   `json:"created_at"`
}

// AccessAttribute returns the token attribute recording this purchase.
func (r *Receipt) AccessAttribute() (key, value string) {
	if r.Mode == ModeFullBook {
		return FullyPurchasedAttribute, r.ID.String()
	}
	return strconv.Itoa(r.ChapterIndex), r.ID.String()
}

// Clone returns a copy of r that shares no slices with it.
func (r *Receipt) Clone() *Receipt {
	cp := *r
	if r.Accruals != nil {
		cp.Accruals = append([]split.Accrual(nil), r.Accruals...)
	}
	return &cp
}
