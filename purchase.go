package openshelf

import (
	"context"

	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/store"
)

// PurchaseChapterInput describes a single-chapter purchase.
type PurchaseChapterInput struct {
	BookID          id.BookID `json:"book_id"`
	Buyer           string    `json:"buyer"`
	ChapterIndex    int       `json:"chapter_index"`
	NeedAccessToken bool      `json:"need_access_token"`
}

// PurchaseBookInput describes a full-book purchase.
type PurchaseBookInput struct {
	BookID          id.BookID `json:"book_id"`
	Buyer           string    `json:"buyer"`
	NeedAccessToken bool      `json:"need_access_token"`
}

// ──────────────────────────────────────────────────
// Purchase Processor
// ──────────────────────────────────────────────────

// PurchaseChapter buys one chapter. The price is split between the author,
// the stake pool and the platform in the same commit that records the
// buyer as a reader. Buying the last missing chapter makes the buyer a
// full-book reader.
//
// When in.NeedAccessToken is set the token is issued after the commit. A
// minting failure is recorded on the returned receipt and does not fail
// the purchase.
func (s *Shelf) PurchaseChapter(ctx context.Context, in PurchaseChapterInput) (*purchase.Receipt, error) {
	if err := checkAccount("buyer", in.Buyer); err != nil {
		return nil, s.reject(ctx, "purchase_chapter", err)
	}

	var rc *purchase.Receipt
	ch, err := s.mutateBook(ctx, in.BookID, func(b *book.Book) (*store.Change, error) {
		chapter, ok := b.Chapter(in.ChapterIndex)
		if !ok {
			return nil, ErrInvalidChapterIndex
		}
		if chapter.HasReader(in.Buyer) {
			return nil, ErrAlreadyPurchased
		}

		rc = s.newReceipt(b, in.Buyer, purchase.ModeChapter, chapter.Price, in.NeedAccessToken)
		rc.ChapterIndex = in.ChapterIndex
		transfers := s.settlePurchase(b, in.Buyer, chapter.Price, rc)

		chapter.Readers = append(chapter.Readers, in.Buyer)
		if !b.HasReader(in.Buyer) && b.OwnsEveryChapter(in.Buyer) {
			b.Readers = append(b.Readers, in.Buyer)
			rc.Promoted = true
		}
		b.UpdatedAt = s.now()
		return &store.Change{Book: b, Transfers: transfers, Receipt: rc}, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "purchase_chapter", err)
	}

	s.afterPurchase(ctx, ch.Book, rc)
	s.plugins.EmitChapterPurchased(ctx, ch.Book, rc)
	return rc, nil
}

// PurchaseFullBook buys every chapter of a book at its full-book price.
func (s *Shelf) PurchaseFullBook(ctx context.Context, in PurchaseBookInput) (*purchase.Receipt, error) {
	if err := checkAccount("buyer", in.Buyer); err != nil {
		return nil, s.reject(ctx, "purchase_full_book", err)
	}

	var rc *purchase.Receipt
	ch, err := s.mutateBook(ctx, in.BookID, func(b *book.Book) (*store.Change, error) {
		if b.HasReader(in.Buyer) {
			return nil, ErrAlreadyPurchased
		}

		rc = s.newReceipt(b, in.Buyer, purchase.ModeFullBook, b.FullBookPrice, in.NeedAccessToken)
		transfers := s.settlePurchase(b, in.Buyer, b.FullBookPrice, rc)

		b.Readers = append(b.Readers, in.Buyer)
		for i := range b.Chapters {
			if !b.Chapters[i].HasReader(in.Buyer) {
				b.Chapters[i].Readers = append(b.Chapters[i].Readers, in.Buyer)
			}
		}
		b.UpdatedAt = s.now()
		return &store.Change{Book: b, Transfers: transfers, Receipt: rc}, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "purchase_full_book", err)
	}

	s.afterPurchase(ctx, ch.Book, rc)
	s.plugins.EmitBookPurchased(ctx, ch.Book, rc)
	return rc, nil
}

func (s *Shelf) newReceipt(b *book.Book, buyer string, mode purchase.Mode, price int64, needToken bool) *purchase.Receipt {
	rc := &purchase.Receipt{
		ID:               id.NewPurchaseID(),
		BookID:           b.ID,
		Buyer:            buyer,
		Mode:             mode,
		Price:            price,
		Currency:         s.policy.Currency,
		NeedsAccessToken: needToken,
		Access:           purchase.AccessState{Status: purchase.AccessNone},
		CreatedAt:        s.now(),
	}
	if needToken {
		rc.Access = purchase.AccessState{Status: purchase.AccessPending, UpdatedAt: rc.CreatedAt}
	}
	return rc
}

// settlePurchase splits price, credits stakers on b and returns the
// transfers paying the shares out of buyer. Zero shares produce no
// transfer.
func (s *Shelf) settlePurchase(b *book.Book, buyer string, price int64, rc *purchase.Receipt) []*account.Transfer {
	shares := s.policy.Split.Split(price, b.TotalStake > 0)

	positions := make([]split.Position, 0, len(b.Stakes))
	for _, st := range b.Stakes {
		positions = append(positions, split.Position{Staker: st.Staker, Amount: st.Amount})
	}
	accruals := split.Accrue(shares.Stake, positions)
	for _, a := range accruals {
		if st, ok := b.Stake(a.Staker); ok {
			st.Earnings += a.Amount
		}
	}

	rc.Shares = shares
	rc.Accruals = accruals
	rc.Accrued = split.Sum(accruals)

	ref := rc.ID.String()
	var transfers []*account.Transfer
	add := func(to string, amount int64, kind account.Kind) {
		if amount > 0 {
			transfers = append(transfers, s.transfer(b.ID, buyer, to, amount, kind, ref))
		}
	}
	add(b.Author, shares.Author, account.KindPurchaseAuthor)
	add(s.policy.PlatformAccount, shares.Platform, account.KindPurchasePlatform)
	add(account.RevenuePool(b.ID), shares.Stake, account.KindPurchaseStakePool)
	return transfers
}

func (s *Shelf) afterPurchase(ctx context.Context, b *book.Book, rc *purchase.Receipt) {
	s.logger.Debug("openshelf: purchase committed",
		"receipt_id", rc.ID.String(),
		"book_id", b.ID.String(),
		"buyer", rc.Buyer,
		"mode", rc.Mode,
		"price", rc.Price,
		"split", rc.Shares,
	)
	if len(rc.Accruals) > 0 {
		s.plugins.EmitEarningsAccrued(ctx, b.ID, rc.Accruals)
	}
	if rc.NeedsAccessToken {
		s.issueAccess(ctx, b, rc)
	}
}

// GetReceipt returns a purchase receipt by ID.
func (s *Shelf) GetReceipt(ctx context.Context, receiptID id.PurchaseID) (*purchase.Receipt, error) {
	return s.store.GetReceipt(ctx, receiptID)
}

// Receipts returns receipts matching opts.
func (s *Shelf) Receipts(ctx context.Context, opts purchase.ListOpts) ([]*purchase.Receipt, error) {
	return s.store.ListReceipts(ctx, opts)
}
