package openshelf

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
)

// AuthorAttributeValue is recorded instead of a receipt id when an author
// mints a token for their own book.
const AuthorAttributeValue = "author"

// ──────────────────────────────────────────────────
// Access Gate
// ──────────────────────────────────────────────────

// issueAccess mints or updates the buyer's token after a committed
// purchase and records the outcome on the receipt. It never fails the
// purchase.
func (s *Shelf) issueAccess(ctx context.Context, b *book.Book, rc *purchase.Receipt) {
	key, value := rc.AccessAttribute()
	tok, err := s.grantToken(ctx, b, rc.Buyer, map[string]string{key: value})

	state := rc.Access
	state.Attempts++
	state.UpdatedAt = s.now()
	if err != nil {
		state.Status = purchase.AccessFailed
		state.LastError = err.Error()
		s.logger.Warn("openshelf: access token mint failed",
			"receipt_id", rc.ID.String(),
			"book_id", b.ID.String(),
			"owner", rc.Buyer,
			"attempts", state.Attempts,
			"error", err,
		)
		s.plugins.EmitMintFailed(ctx, b.ID, rc.Buyer, err)
	} else {
		state.Status = purchase.AccessIssued
		state.AssetID = tok.AssetID
		state.LastError = ""
	}

	if uerr := s.store.UpdateReceiptAccess(ctx, rc.ID, state); uerr != nil {
		s.logger.Warn("openshelf: record access state failed",
			"receipt_id", rc.ID.String(),
			"error", uerr,
		)
	}
	rc.Access = state
}

// grantToken adds attrs to owner's token for b, minting the token first if
// owner has none. Calls for the same book and owner are serialized so a
// token is minted at most once.
func (s *Shelf) grantToken(ctx context.Context, b *book.Book, owner string, attrs map[string]string) (*accessgate.Token, error) {
	if s.minter == nil {
		return nil, ErrMinterNotConfigured
	}

	release, err := s.locker.Acquire(ctx, "token:"+b.ID.String()+":"+owner)
	if err != nil {
		return nil, err
	}
	defer release()

	tok, err := s.store.GetToken(ctx, b.ID, owner)
	switch {
	case err == nil:
		if merr := s.minter.UpdateAsset(ctx, tok.AssetID, attrs); merr != nil {
			return nil, &MintError{Op: "update asset", BookID: b.ID.String(), Owner: owner, Err: merr}
		}
		tok.Attributes = accessgate.MergeAttributes(tok.Attributes, attrs)
		tok.UpdatedAt = s.now()

	case errors.Is(err, ErrTokenNotFound):
		var collectionID string
		c, cerr := s.store.GetCollection(ctx, owner)
		switch {
		case cerr == nil:
			collectionID = c.CollectionID
		case !errors.Is(cerr, ErrCollectionNotFound):
			return nil, cerr
		}

		assetID, merr := s.minter.MintAsset(ctx, accessgate.MintRequest{
			RequestID:    id.NewMintID(),
			Owner:        owner,
			CollectionID: collectionID,
			BookID:       b.ID,
			Name:         b.Title,
			URI:          b.ImageURL,
			Attributes:   attrs,
		})
		if merr != nil {
			return nil, &MintError{Op: "mint asset", BookID: b.ID.String(), Owner: owner, Err: merr}
		}
		now := s.now()
		tok = &accessgate.Token{
			BookID:     b.ID,
			Owner:      owner,
			AssetID:    assetID,
			Attributes: accessgate.MergeAttributes(nil, attrs),
			CreatedAt:  now,
			UpdatedAt:  now,
		}

	default:
		return nil, err
	}

	if err := s.store.SaveToken(ctx, tok); err != nil {
		return nil, err
	}
	s.plugins.EmitAccessTokenIssued(ctx, tok)
	return tok, nil
}

// RetryPendingMints retries every receipt whose token is pending or
// failed and returns how many were issued. Mint failures are recorded on
// the receipts; only store errors are returned.
func (s *Shelf) RetryPendingMints(ctx context.Context) (int, error) {
	receipts, err := s.store.ListReceipts(ctx, purchase.ListOpts{
		AccessStatuses: []purchase.AccessStatus{purchase.AccessPending, purchase.AccessFailed},
	})
	if err != nil {
		return 0, err
	}

	var issued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.policy.MintConcurrency)

	for _, rc := range receipts {
		if !rc.NeedsAccessToken {
			continue
		}
		g.Go(func() error {
			b, err := s.store.GetBook(gctx, rc.BookID)
			if err != nil {
				return err
			}
			s.issueAccess(gctx, b, rc)
			if rc.Access.Status == purchase.AccessIssued {
				issued.Add(1)
			}
			return nil
		})
	}

	err = g.Wait()
	s.logger.Info("openshelf: pending mints retried",
		"candidates", len(receipts),
		"issued", issued.Load(),
	)
	return int(issued.Load()), err
}

// CreateUserCollection returns owner's collection, creating it through the
// minter on first use.
func (s *Shelf) CreateUserCollection(ctx context.Context, owner string) (*accessgate.Collection, error) {
	if err := checkAccount("owner", owner); err != nil {
		return nil, s.reject(ctx, "create_collection", err)
	}
	if s.minter == nil {
		return nil, s.reject(ctx, "create_collection", ErrMinterNotConfigured)
	}

	release, err := s.locker.Acquire(ctx, "collection:"+owner)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.store.GetCollection(ctx, owner)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return nil, err
	}

	collectionID, err := s.minter.CreateCollection(ctx, owner)
	if err != nil {
		merr := &MintError{Op: "create collection", Owner: owner, Err: err}
		s.plugins.EmitMintFailed(ctx, id.Nil, owner, merr)
		return nil, s.reject(ctx, "create_collection", merr)
	}

	c := &accessgate.Collection{Owner: owner, CollectionID: collectionID, CreatedAt: s.now()}
	if err := s.store.SaveCollection(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MintBookToken issues or updates owner's token for a whole book. Owner
// must be a full-book reader or the author.
func (s *Shelf) MintBookToken(ctx context.Context, bookID id.BookID, owner string) (*accessgate.Token, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, s.reject(ctx, "mint_book_token", err)
	}
	if b.Author != owner && !b.HasReader(owner) {
		return nil, s.reject(ctx, "mint_book_token", ErrBookNotPurchased)
	}

	value, err := s.proofOfPurchase(ctx, b, owner, func(rc *purchase.Receipt) bool {
		return rc.Mode == purchase.ModeFullBook || rc.Promoted
	})
	if err != nil {
		return nil, err
	}

	tok, err := s.grantToken(ctx, b, owner, map[string]string{purchase.FullyPurchasedAttribute: value})
	if err != nil {
		s.mintFailed(ctx, b.ID, owner, err)
		return nil, s.reject(ctx, "mint_book_token", err)
	}
	return tok, nil
}

// MintChapterToken issues or updates owner's token for one chapter. Owner
// must be a reader of that chapter or the author.
func (s *Shelf) MintChapterToken(ctx context.Context, bookID id.BookID, owner string, chapterIndex int) (*accessgate.Token, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, s.reject(ctx, "mint_chapter_token", err)
	}
	ch, ok := b.Chapter(chapterIndex)
	if !ok {
		return nil, s.reject(ctx, "mint_chapter_token", ErrInvalidChapterIndex)
	}
	if b.Author != owner && !ch.HasReader(owner) {
		return nil, s.reject(ctx, "mint_chapter_token", ErrBookNotPurchased)
	}

	value, err := s.proofOfPurchase(ctx, b, owner, func(rc *purchase.Receipt) bool {
		return rc.Mode == purchase.ModeFullBook ||
			(rc.Mode == purchase.ModeChapter && rc.ChapterIndex == chapterIndex)
	})
	if err != nil {
		return nil, err
	}

	tok, err := s.grantToken(ctx, b, owner, map[string]string{strconv.Itoa(chapterIndex): value})
	if err != nil {
		s.mintFailed(ctx, b.ID, owner, err)
		return nil, s.reject(ctx, "mint_chapter_token", err)
	}
	return tok, nil
}

// mintFailed reports collaborator failures. Other errors are left to
// reject.
func (s *Shelf) mintFailed(ctx context.Context, bookID id.BookID, owner string, err error) {
	var me *MintError
	if errors.As(err, &me) || errors.Is(err, ErrMinterNotConfigured) {
		s.logger.Warn("openshelf: access token mint failed",
			"book_id", bookID.String(),
			"owner", owner,
			"error", err,
		)
		s.plugins.EmitMintFailed(ctx, bookID, owner, err)
	}
}

// proofOfPurchase returns the id of the latest receipt of owner on b that
// matches, or AuthorAttributeValue for the author. Receipts are ordered by
// creation time; ids minted within one millisecond carry no order.
func (s *Shelf) proofOfPurchase(ctx context.Context, b *book.Book, owner string, match func(*purchase.Receipt) bool) (string, error) {
	receipts, err := s.store.ListReceipts(ctx, purchase.ListOpts{BookID: b.ID, Buyer: owner})
	if err != nil {
		return "", err
	}
	slices.SortStableFunc(receipts, func(x, y *purchase.Receipt) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	for i := len(receipts) - 1; i >= 0; i-- {
		if match(receipts[i]) {
			return receipts[i].ID.String(), nil
		}
	}
	if b.Author == owner {
		return AuthorAttributeValue, nil
	}
	// Readers seeded into a chapter added after their purchase have no
	// receipt for it.
	if len(receipts) > 0 {
		return receipts[len(receipts)-1].ID.String(), nil
	}
	return "", ErrBookNotPurchased
}
