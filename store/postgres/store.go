// Package postgres implements store.Store on PostgreSQL through gorm.
//
// Commit runs in one transaction that locks the book row and every debited
// balance row with SELECT ... FOR UPDATE. Credits are applied as increments
// so concurrent commits on different books never overwrite each other.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

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

// Store implements store.Store using PostgreSQL via gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at dsn. Slow queries and errors are logged
// to stderr.
func Open(dsn string) (*Store, error) {
	gormLog := gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("openshelf/postgres: open db: %w", err)
	}
	return New(db), nil
}

// New wraps an open gorm database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying gorm database for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates the tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&bookModel{},
		&balanceModel{},
		&transferModel{},
		&receiptModel{},
		&collectionModel{},
		&tokenModel{},
	)
	if err != nil {
		return fmt.Errorf("%w: openshelf/postgres: %w", openshelf.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("openshelf/postgres: ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("openshelf/postgres: ping: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ==================== Book Store ====================

func (s *Store) CreateBook(ctx context.Context, b *book.Book) error {
	m, err := toBookModel(b)
	if err != nil {
		return fmt.Errorf("openshelf/postgres: create book: %w", err)
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if res.Error != nil {
		return fmt.Errorf("openshelf/postgres: create book: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return openshelf.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, bookID id.BookID) (*book.Book, error) {
	var m bookModel
	if err := s.db.WithContext(ctx).Where("id = ?", bookID.String()).Take(&m).Error; err != nil {
		if isNotFound(err) {
			return nil, openshelf.ErrBookNotFound
		}
		return nil, fmt.Errorf("openshelf/postgres: get book: %w", err)
	}
	return fromBookModel(&m)
}

func (s *Store) ListBooks(ctx context.Context, opts book.ListOpts) ([]*book.Book, error) {
	q := s.db.WithContext(ctx).Model(&bookModel{})
	if opts.Author != "" {
		q = q.Where("author = ?", opts.Author)
	}
	if opts.Genre != "" {
		q = q.Where("genre = ?", opts.Genre)
	}
	if opts.MinStakers > 0 {
		q = q.Where("staker_count >= ?", opts.MinStakers)
	}

	var models []bookModel
	if err := page(q, opts.Limit, opts.Offset).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("openshelf/postgres: list books: %w", err)
	}
	result := make([]*book.Book, 0, len(models))
	for i := range models {
		b, err := fromBookModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("openshelf/postgres: decode book: %w", err)
		}
		result = append(result, b)
	}
	return result, nil
}

// ==================== Account Store ====================

func (s *Store) Deposit(ctx context.Context, t *account.Transfer) error {
	if t.From != "" {
		return fmt.Errorf("%w: deposit with a source account", openshelf.ErrInvalidInput)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		have, err := balance(tx, t.To, true)
		if err != nil {
			return err
		}
		if _, err := account.Credit(have, t.Amount); err != nil {
			return settleError(err)
		}
		if err := credit(tx, t.To, t.Amount); err != nil {
			return err
		}
		return tx.Create(toTransferModel(t)).Error
	})
	if err != nil {
		return fmt.Errorf("openshelf/postgres: deposit: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, name string) (int64, error) {
	amount, err := balance(s.db.WithContext(ctx), name, false)
	if err != nil {
		return 0, fmt.Errorf("openshelf/postgres: get balance: %w", err)
	}
	return amount, nil
}

func (s *Store) ListTransfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	q := s.db.WithContext(ctx).Model(&transferModel{})
	if opts.Account != "" {
		q = q.Where("(from_account = ? OR to_account = ?)", opts.Account, opts.Account)
	}
	if !opts.BookID.IsNil() {
		q = q.Where("book_id = ?", opts.BookID.String())
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}

	var models []transferModel
	if err := page(q, opts.Limit, opts.Offset).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("openshelf/postgres: list transfers: %w", err)
	}
	result := make([]*account.Transfer, 0, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("openshelf/postgres: decode transfer: %w", err)
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Purchase Store ====================

func (s *Store) GetReceipt(ctx context.Context, receiptID id.PurchaseID) (*purchase.Receipt, error) {
	var m receiptModel
	if err := s.db.WithContext(ctx).Where("id = ?", receiptID.String()).Take(&m).Error; err != nil {
		if isNotFound(err) {
			return nil, openshelf.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("openshelf/postgres: get receipt: %w", err)
	}
	return fromReceiptModel(&m)
}

func (s *Store) ListReceipts(ctx context.Context, opts purchase.ListOpts) ([]*purchase.Receipt, error) {
	q := s.db.WithContext(ctx).Model(&receiptModel{})
	if !opts.BookID.IsNil() {
		q = q.Where("book_id = ?", opts.BookID.String())
	}
	if opts.Buyer != "" {
		q = q.Where("buyer = ?", opts.Buyer)
	}
	if len(opts.AccessStatuses) > 0 {
		statuses := make([]string, len(opts.AccessStatuses))
		for i, st := range opts.AccessStatuses {
			statuses[i] = string(st)
		}
		q = q.Where("access_status IN ?", statuses)
	}

	var models []receiptModel
	if err := page(q, opts.Limit, opts.Offset).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("openshelf/postgres: list receipts: %w", err)
	}
	result := make([]*purchase.Receipt, 0, len(models))
	for i := range models {
		r, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("openshelf/postgres: decode receipt: %w", err)
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *Store) UpdateReceiptAccess(ctx context.Context, receiptID id.PurchaseID, state purchase.AccessState) error {
	res := s.db.WithContext(ctx).Model(&receiptModel{}).
		Where("id = ?", receiptID.String()).
		Updates(map[string]any{
			"access_status":     string(state.Status),
			"access_asset_id":   state.AssetID,
			"access_attempts":   state.Attempts,
			"access_last_error": state.LastError,
			"access_updated_at": timePtr(state.UpdatedAt),
		})
	if res.Error != nil {
		return fmt.Errorf("openshelf/postgres: update receipt access: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return openshelf.ErrReceiptNotFound
	}
	return nil
}

// ==================== Access Gate Store ====================

func (s *Store) SaveCollection(ctx context.Context, c *accessgate.Collection) error {
	m := &collectionModel{Owner: c.Owner, CollectionID: c.CollectionID, CreatedAt: c.CreatedAt}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if res.Error != nil {
		return fmt.Errorf("openshelf/postgres: save collection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return openshelf.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetCollection(ctx context.Context, owner string) (*accessgate.Collection, error) {
	var m collectionModel
	if err := s.db.WithContext(ctx).Where("owner = ?", owner).Take(&m).Error; err != nil {
		if isNotFound(err) {
			return nil, openshelf.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("openshelf/postgres: get collection: %w", err)
	}
	return &accessgate.Collection{Owner: m.Owner, CollectionID: m.CollectionID, CreatedAt: m.CreatedAt}, nil
}

func (s *Store) SaveToken(ctx context.Context, t *accessgate.Token) error {
	m, err := toTokenModel(t)
	if err != nil {
		return fmt.Errorf("openshelf/postgres: save token: %w", err)
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}, {Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"asset_id", "attributes", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("openshelf/postgres: save token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, bookID id.BookID, owner string) (*accessgate.Token, error) {
	var m tokenModel
	err := s.db.WithContext(ctx).
		Where("book_id = ? AND owner = ?", bookID.String(), owner).
		Take(&m).Error
	if err != nil {
		if isNotFound(err) {
			return nil, openshelf.ErrTokenNotFound
		}
		return nil, fmt.Errorf("openshelf/postgres: get token: %w", err)
	}
	return fromTokenModel(&m)
}

// ==================== Commit ====================

func (s *Store) Commit(ctx context.Context, ch *store.Change) error {
	next, err := toBookModel(ch.Book)
	if err != nil {
		return fmt.Errorf("openshelf/postgres: commit: %w", err)
	}
	next.Version = ch.Book.Version + 1

	var receipt *receiptModel
	if ch.Receipt != nil {
		if receipt, err = toReceiptModel(ch.Receipt); err != nil {
			return fmt.Errorf("openshelf/postgres: commit: %w", err)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur bookModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "version").
			Where("id = ?", next.ID).
			Take(&cur).Error
		if isNotFound(err) {
			return openshelf.ErrBookNotFound
		}
		if err != nil {
			return err
		}
		if cur.Version != ch.Book.Version {
			return openshelf.ErrConflict
		}

		if receipt != nil {
			var n int64
			if err := tx.Model(&receiptModel{}).Where("id = ?", receipt.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return openshelf.ErrAlreadyExists
			}
		}

		debited := make(map[string]bool)
		for _, t := range ch.Transfers {
			if t.From != "" {
				debited[t.From] = true
			}
		}
		start := make(map[string]int64)
		final, err := account.Settle(ch.Transfers, func(name string) (int64, error) {
			amount, err := balance(tx, name, debited[name])
			start[name] = amount
			return amount, err
		})
		if err != nil {
			return settleError(err)
		}

		if err := tx.Save(next).Error; err != nil {
			return err
		}
		for name, amount := range final {
			if delta := amount - start[name]; delta != 0 {
				if err := credit(tx, name, delta); err != nil {
					return err
				}
			}
		}
		if len(ch.Transfers) > 0 {
			models := make([]*transferModel, len(ch.Transfers))
			for i, t := range ch.Transfers {
				models[i] = toTransferModel(t)
			}
			if err := tx.Create(models).Error; err != nil {
				return err
			}
		}
		if receipt != nil {
			return tx.Create(receipt).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("openshelf/postgres: commit: %w", err)
	}
	ch.Book.Version = next.Version
	return nil
}

// ==================== helpers ====================

// balance reads an account balance, locking the row when forUpdate is set.
// Missing accounts hold zero.
func balance(tx *gorm.DB, name string, forUpdate bool) (int64, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m balanceModel
	err := q.Where("account = ?", name).Take(&m).Error
	if isNotFound(err) {
		return 0, nil
	}
	return m.Amount, err
}

// credit adds delta to name, creating the balance row on first use.
func credit(tx *gorm.DB, name string, delta int64) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount":     gorm.Expr("openshelf_balances.amount + EXCLUDED.amount"),
			"updated_at": gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(&balanceModel{Account: name, Amount: delta}).Error
}

func page(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
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
