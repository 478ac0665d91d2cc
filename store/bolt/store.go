// Package bolt implements store.Store on an embedded BoltDB file.
//
// Every record is JSON in a bucket keyed by its id. Balances are 8-byte
// big-endian integers and transfers are keyed by the bucket sequence so
// they list in journal order. Commit runs in one write transaction, which
// bolt serializes with every other writer.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "github.com/boltdb/bolt"

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

var (
	bucketBooks       = []byte("books")
	bucketBalances    = []byte("balances")
	bucketTransfers   = []byte("transfers")
	bucketReceipts    = []byte("receipts")
	bucketCollections = []byte("collections")
	bucketTokens      = []byte("tokens")

	allBuckets = [][]byte{
		bucketBooks, bucketBalances, bucketTransfers,
		bucketReceipts, bucketCollections, bucketTokens,
	}
)

// Store implements store.Store using BoltDB.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string, mode os.FileMode) (*Store, error) {
	if mode == 0 {
		mode = 0o600
	}
	db, err := bolt.Open(path, mode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("openshelf/bolt: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// New wraps an already open database.
func New(db *bolt.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying bolt database for direct access.
func (s *Store) DB() *bolt.DB { return s.db }

// Migrate creates the buckets. It is safe to run on every start.
func (s *Store) Migrate(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: openshelf/bolt: %w", openshelf.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks that the database is open and migrated.
func (s *Store) Ping(_ context.Context) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBooks) == nil {
			return errors.New("books bucket missing")
		}
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return openshelf.ErrStoreClosed
	}
	if err != nil {
		return fmt.Errorf("openshelf/bolt: ping: %w", err)
	}
	return nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Book Store ====================

func (s *Store) CreateBook(_ context.Context, b *book.Book) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketBooks)
		key := []byte(b.ID.String())
		if bk.Get(key) != nil {
			return openshelf.ErrAlreadyExists
		}
		return putJSON(bk, key, b)
	})
}

func (s *Store) GetBook(_ context.Context, bookID id.BookID) (*book.Book, error) {
	var b book.Book
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketBooks), []byte(bookID.String()), &b, openshelf.ErrBookNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBooks(_ context.Context, opts book.ListOpts) ([]*book.Book, error) {
	result := make([]*book.Book, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBooks).ForEach(func(_, v []byte) error {
			var b book.Book
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if opts.Match(&b) {
				result = append(result, &b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("openshelf/bolt: list books: %w", err)
	}
	return book.Page(result, opts.Offset, opts.Limit), nil
}

// ==================== Account Store ====================

func (s *Store) Deposit(_ context.Context, t *account.Transfer) error {
	if t.From != "" {
		return fmt.Errorf("%w: deposit with a source account", openshelf.ErrInvalidInput)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bal := tx.Bucket(bucketBalances)
		credited, err := account.Credit(getInt(bal, t.To), t.Amount)
		if err != nil {
			return settleError(err)
		}
		if err := putInt(bal, t.To, credited); err != nil {
			return err
		}
		return appendTransfer(tx.Bucket(bucketTransfers), t)
	})
}

func (s *Store) GetBalance(_ context.Context, name string) (int64, error) {
	var amount int64
	err := s.db.View(func(tx *bolt.Tx) error {
		amount = getInt(tx.Bucket(bucketBalances), name)
		return nil
	})
	return amount, err
}

func (s *Store) ListTransfers(_ context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	result := make([]*account.Transfer, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransfers).ForEach(func(_, v []byte) error {
			var t account.Transfer
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if opts.Match(&t) {
				result = append(result, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("openshelf/bolt: list transfers: %w", err)
	}
	return book.Page(result, opts.Offset, opts.Limit), nil
}

// ==================== Purchase Store ====================

func (s *Store) GetReceipt(_ context.Context, receiptID id.PurchaseID) (*purchase.Receipt, error) {
	var r purchase.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketReceipts), []byte(receiptID.String()), &r, openshelf.ErrReceiptNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListReceipts(_ context.Context, opts purchase.ListOpts) ([]*purchase.Receipt, error) {
	result := make([]*purchase.Receipt, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReceipts).ForEach(func(_, v []byte) error {
			var r purchase.Receipt
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if opts.Match(&r) {
				result = append(result, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("openshelf/bolt: list receipts: %w", err)
	}
	return book.Page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateReceiptAccess(_ context.Context, receiptID id.PurchaseID, state purchase.AccessState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketReceipts)
		key := []byte(receiptID.String())
		var r purchase.Receipt
		if err := getJSON(bk, key, &r, openshelf.ErrReceiptNotFound); err != nil {
			return err
		}
		r.Access = state
		return putJSON(bk, key, &r)
	})
}

// ==================== Access Gate Store ====================

func (s *Store) SaveCollection(_ context.Context, c *accessgate.Collection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketCollections)
		key := []byte(c.Owner)
		if bk.Get(key) != nil {
			return openshelf.ErrAlreadyExists
		}
		return putJSON(bk, key, c)
	})
}

func (s *Store) GetCollection(_ context.Context, owner string) (*accessgate.Collection, error) {
	var c accessgate.Collection
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketCollections), []byte(owner), &c, openshelf.ErrCollectionNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) SaveToken(_ context.Context, t *accessgate.Token) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTokens), tokenKey(t.BookID, t.Owner), t)
	})
}

func (s *Store) GetToken(_ context.Context, bookID id.BookID, owner string) (*accessgate.Token, error) {
	var t accessgate.Token
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTokens), tokenKey(bookID, owner), &t, openshelf.ErrTokenNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ==================== Commit ====================

func (s *Store) Commit(_ context.Context, ch *store.Change) error {
	next := ch.Book.Clone()
	next.Version++

	err := s.db.Update(func(tx *bolt.Tx) error {
		books := tx.Bucket(bucketBooks)
		key := []byte(ch.Book.ID.String())

		var cur book.Book
		if err := getJSON(books, key, &cur, openshelf.ErrBookNotFound); err != nil {
			return err
		}
		if cur.Version != ch.Book.Version {
			return openshelf.ErrConflict
		}

		receipts := tx.Bucket(bucketReceipts)
		if ch.Receipt != nil && receipts.Get([]byte(ch.Receipt.ID.String())) != nil {
			return openshelf.ErrAlreadyExists
		}

		bal := tx.Bucket(bucketBalances)
		balances, err := account.Settle(ch.Transfers, func(name string) (int64, error) {
			return getInt(bal, name), nil
		})
		if err != nil {
			return settleError(err)
		}

		// Any error from here on rolls the whole transaction back.
		if err := putJSON(books, key, next); err != nil {
			return err
		}
		for name, amount := range balances {
			if err := putInt(bal, name, amount); err != nil {
				return err
			}
		}
		journal := tx.Bucket(bucketTransfers)
		for _, t := range ch.Transfers {
			if err := appendTransfer(journal, t); err != nil {
				return err
			}
		}
		if ch.Receipt != nil {
			return putJSON(receipts, []byte(ch.Receipt.ID.String()), ch.Receipt)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ch.Book.Version = next.Version
	return nil
}

// ==================== helpers ====================

func tokenKey(bookID id.BookID, owner string) []byte {
	return []byte(bookID.String() + "|" + owner)
}

func putJSON(bk *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bk.Put(key, data)
}

func getJSON(bk *bolt.Bucket, key []byte, v any, notFound error) error {
	data := bk.Get(key)
	if data == nil {
		return notFound
	}
	return json.Unmarshal(data, v)
}

func getInt(bk *bolt.Bucket, name string) int64 {
	v := bk.Get([]byte(name))
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func putInt(bk *bolt.Bucket, name string, amount int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(amount))
	return bk.Put([]byte(name), buf[:])
}

func appendTransfer(bk *bolt.Bucket, t *account.Transfer) error {
	seq, err := bk.NextSequence()
	if err != nil {
		return err
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return putJSON(bk, key[:], t)
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
