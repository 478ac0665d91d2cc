// Package memory provides an in-process implementation of store.Store.
// It is intended for tests and single-process development setups.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps every record in maps guarded by a single mutex. Records are
// copied on the way in and on the way out.
type Store struct {
	mu sync.RWMutex

	books       map[string]*book.Book
	balances    map[string]int64
	transfers   []*account.Transfer
	receipts    map[string]*purchase.Receipt
	collections map[string]*accessgate.Collection
	tokens      map[string]*accessgate.Token

	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		books:       make(map[string]*book.Book),
		balances:    make(map[string]int64),
		receipts:    make(map[string]*purchase.Receipt),
		collections: make(map[string]*accessgate.Collection),
		tokens:      make(map[string]*accessgate.Token),
	}
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return openshelf.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ==================== Book Store ====================

func (s *Store) CreateBook(_ context.Context, b *book.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[b.ID.String()]; exists {
		return openshelf.ErrAlreadyExists
	}
	s.books[b.ID.String()] = b.Clone()
	return nil
}

func (s *Store) GetBook(_ context.Context, bookID id.BookID) (*book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.books[bookID.String()]; ok {
		return b.Clone(), nil
	}
	return nil, openshelf.ErrBookNotFound
}

func (s *Store) ListBooks(_ context.Context, opts book.ListOpts) ([]*book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*book.Book, 0, len(s.books))
	for _, b := range s.books {
		if opts.Match(b) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return book.Page(result, opts.Offset, opts.Limit), nil
}

// ==================== Account Store ====================

func (s *Store) Deposit(_ context.Context, t *account.Transfer) error {
	if t.From != "" {
		return fmt.Errorf("%w: deposit with a source account", openshelf.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	credited, err := account.Credit(s.balances[t.To], t.Amount)
	if err != nil {
		return settleError(err)
	}
	s.balances[t.To] = credited
	cp := *t
	s.transfers = append(s.transfers, &cp)
	return nil
}

func (s *Store) GetBalance(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[name], nil
}

func (s *Store) ListTransfers(_ context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Transfer, 0)
	for _, t := range s.transfers {
		if opts.Match(t) {
			cp := *t
			result = append(result, &cp)
		}
	}
	return book.Page(result, opts.Offset, opts.Limit), nil
}

// ==================== Purchase Store ====================

func (s *Store) GetReceipt(_ context.Context, receiptID id.PurchaseID) (*purchase.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.receipts[receiptID.String()]; ok {
		return r.Clone(), nil
	}
	return nil, openshelf.ErrReceiptNotFound
}

func (s *Store) ListReceipts(_ context.Context, opts purchase.ListOpts) ([]*purchase.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*purchase.Receipt, 0)
	for _, r := range s.receipts {
		if opts.Match(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return book.Page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateReceiptAccess(_ context.Context, receiptID id.PurchaseID, state purchase.AccessState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receipts[receiptID.String()]
	if !ok {
		return openshelf.ErrReceiptNotFound
	}
	r.Access = state
	return nil
}

// ==================== Access Gate Store ====================

func (s *Store) SaveCollection(_ context.Context, c *accessgate.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[c.Owner]; exists {
		return openshelf.ErrAlreadyExists
	}
	cp := *c
	s.collections[c.Owner] = &cp
	return nil
}

func (s *Store) GetCollection(_ context.Context, owner string) (*accessgate.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[owner]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, openshelf.ErrCollectionNotFound
}

func (s *Store) SaveToken(_ context.Context, t *accessgate.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[tokenKey(t.BookID, t.Owner)] = t.Clone()
	return nil
}

func (s *Store) GetToken(_ context.Context, bookID id.BookID, owner string) (*accessgate.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tokens[tokenKey(bookID, owner)]; ok {
		return t.Clone(), nil
	}
	return nil, openshelf.ErrTokenNotFound
}

func tokenKey(bookID id.BookID, owner string) string {
	return bookID.String() + "|" + owner
}

// ==================== Commit ====================

func (s *Store) Commit(_ context.Context, ch *store.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.books[ch.Book.ID.String()]
	if !ok {
		return openshelf.ErrBookNotFound
	}
	if cur.Version != ch.Book.Version {
		return openshelf.ErrConflict
	}
	if ch.Receipt != nil {
		if _, exists := s.receipts[ch.Receipt.ID.String()]; exists {
			return openshelf.ErrAlreadyExists
		}
	}

	balances, err := account.Settle(ch.Transfers, func(name string) (int64, error) {
		return s.balances[name], nil
	})
	if err != nil {
		return settleError(err)
	}

	// Nothing below can fail.
	ch.Book.Version++
	s.books[ch.Book.ID.String()] = ch.Book.Clone()
	for name, amount := range balances {
		s.balances[name] = amount
	}
	for _, t := range ch.Transfers {
		cp := *t
		s.transfers = append(s.transfers, &cp)
	}
	if ch.Receipt != nil {
		s.receipts[ch.Receipt.ID.String()] = ch.Receipt.Clone()
	}
	return nil
}

func settleError(err error) error {
	var sf *account.ShortfallError
	if errors.As(err, &sf) {
		return fmt.Errorf("%w: %v", openshelf.ErrInsufficientFunds, sf)
	}
	if errors.Is(err, account.ErrOverflow) {
		return fmt.Errorf("%w: %v", openshelf.ErrInvalidInput, err)
	}
	return err
}
