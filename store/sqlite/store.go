// Package sqlite implements store.Store on SQLite through database/sql and
// the pure-Go modernc.org/sqlite driver.
//
// Chapters, stakes and readers are stored as JSON columns of the book row.
// The store holds a single connection, so every transaction is serialized
// and Commit sees no concurrent writer between its version check and its
// writes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

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

// Store implements store.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the pragmas
// the store relies on. Call Migrate before use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("openshelf/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("openshelf/sqlite: apply pragma %q: %w", pragma, err)
		}
	}
	return New(db), nil
}

// New wraps an open database. The caller should limit it to one open
// connection.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("openshelf/sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Book Store ====================

const bookColumns = `id, author, title, description, genre, image_url, full_book_price,
    total_stake, chapters, stakes, readers, version, created_at, updated_at`

func (s *Store) CreateBook(ctx context.Context, b *book.Book) error {
	chapters, stakes, readers, err := encodeBookLists(b)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: create book: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO openshelf_books (`+bookColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		b.ID.String(), b.Author, b.Title, b.Description, b.Genre, b.ImageURL, b.FullBookPrice,
		b.TotalStake, chapters, stakes, readers, b.Version,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: create book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return openshelf.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, bookID id.BookID) (*book.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM openshelf_books WHERE id = ?`, bookID.String())
	b, err := scanBook(row)
	if err != nil {
		if isNoRows(err) {
			return nil, openshelf.ErrBookNotFound
		}
		return nil, fmt.Errorf("openshelf/sqlite: get book: %w", err)
	}
	return b, nil
}

func (s *Store) ListBooks(ctx context.Context, opts book.ListOpts) ([]*book.Book, error) {
	var (
		where []string
		args  []any
	)
	if opts.Author != "" {
		where = append(where, "author = ?")
		args = append(args, opts.Author)
	}
	if opts.Genre != "" {
		where = append(where, "genre = ?")
		args = append(args, opts.Genre)
	}
	if opts.MinStakers > 0 {
		where = append(where, "json_array_length(stakes) >= ?")
		args = append(args, opts.MinStakers)
	}

	q := `SELECT ` + bookColumns + ` FROM openshelf_books` + whereClause(where) + ` ORDER BY id` + pageClause(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("openshelf/sqlite: list books: %w", err)
	}
	defer rows.Close()

	result := make([]*book.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("openshelf/sqlite: list books: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// ==================== Account Store ====================

func (s *Store) Deposit(ctx context.Context, t *account.Transfer) error {
	if t.From != "" {
		return fmt.Errorf("%w: deposit with a source account", openshelf.ErrInvalidInput)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		have, err := balance(ctx, tx, t.To)
		if err != nil {
			return err
		}
		if _, err := account.Credit(have, t.Amount); err != nil {
			return settleError(err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO openshelf_balances (account, amount, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (account) DO UPDATE SET amount = amount + excluded.amount, updated_at = excluded.updated_at`,
			t.To, t.Amount, formatTime(s.now()),
		); err != nil {
			return err
		}
		return insertTransfer(ctx, tx, t)
	})
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: deposit: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, name string) (int64, error) {
	amount, err := balance(ctx, s.db, name)
	if err != nil {
		return 0, fmt.Errorf("openshelf/sqlite: get balance: %w", err)
	}
	return amount, nil
}

func (s *Store) ListTransfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	var (
		where []string
		args  []any
	)
	if opts.Account != "" {
		where = append(where, "(from_account = ? OR to_account = ?)")
		args = append(args, opts.Account, opts.Account)
	}
	if !opts.BookID.IsNil() {
		where = append(where, "book_id = ?")
		args = append(args, opts.BookID.String())
	}
	if opts.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(opts.Kind))
	}

	q := `SELECT id, book_id, from_account, to_account, amount, kind, reference, created_at
FROM openshelf_transfers` + whereClause(where) + ` ORDER BY seq` + pageClause(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("openshelf/sqlite: list transfers: %w", err)
	}
	defer rows.Close()

	result := make([]*account.Transfer, 0)
	for rows.Next() {
		var (
			t       account.Transfer
			kind    string
			created string
		)
		if err := rows.Scan(&t.ID, &t.BookID, &t.From, &t.To, &t.Amount, &kind, &t.Reference, &created); err != nil {
			return nil, fmt.Errorf("openshelf/sqlite: list transfers: %w", err)
		}
		t.Kind = account.Kind(kind)
		t.CreatedAt = parseTime(created)
		result = append(result, &t)
	}
	return result, rows.Err()
}

// ==================== Purchase Store ====================

const receiptColumns = `id, book_id, buyer, mode, chapter_index, price, currency, shares, accruals,
    accrued, promoted, needs_access_token, access_status, access_asset_id, access_attempts,
    access_last_error, access_updated_at, created_at`

func (s *Store) GetReceipt(ctx context.Context, receiptID id.PurchaseID) (*purchase.Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM openshelf_receipts WHERE id = ?`, receiptID.String())
	r, err := scanReceipt(row)
	if err != nil {
		if isNoRows(err) {
			return nil, openshelf.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("openshelf/sqlite: get receipt: %w", err)
	}
	return r, nil
}

func (s *Store) ListReceipts(ctx context.Context, opts purchase.ListOpts) ([]*purchase.Receipt, error) {
	var (
		where []string
		args  []any
	)
	if !opts.BookID.IsNil() {
		where = append(where, "book_id = ?")
		args = append(args, opts.BookID.String())
	}
	if opts.Buyer != "" {
		where = append(where, "buyer = ?")
		args = append(args, opts.Buyer)
	}
	if len(opts.AccessStatuses) > 0 {
		marks := make([]string, len(opts.AccessStatuses))
		for i, st := range opts.AccessStatuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "access_status IN ("+strings.Join(marks, ", ")+")")
	}

	q := `SELECT ` + receiptColumns + ` FROM openshelf_receipts` + whereClause(where) + ` ORDER BY id` + pageClause(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("openshelf/sqlite: list receipts: %w", err)
	}
	defer rows.Close()

	result := make([]*purchase.Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("openshelf/sqlite: list receipts: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) UpdateReceiptAccess(ctx context.Context, receiptID id.PurchaseID, state purchase.AccessState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE openshelf_receipts SET
    access_status = ?, access_asset_id = ?, access_attempts = ?, access_last_error = ?, access_updated_at = ?
WHERE id = ?`,
		string(state.Status), state.AssetID, state.Attempts, state.LastError, formatTime(state.UpdatedAt),
		receiptID.String(),
	)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: update receipt access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return openshelf.ErrReceiptNotFound
	}
	return nil
}

// ==================== Access Gate Store ====================

func (s *Store) SaveCollection(ctx context.Context, c *accessgate.Collection) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO openshelf_collections (owner, collection_id, created_at)
VALUES (?, ?, ?) ON CONFLICT (owner) DO NOTHING`,
		c.Owner, c.CollectionID, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: save collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return openshelf.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetCollection(ctx context.Context, owner string) (*accessgate.Collection, error) {
	var (
		c       accessgate.Collection
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, collection_id, created_at FROM openshelf_collections WHERE owner = ?`, owner,
	).Scan(&c.Owner, &c.CollectionID, &created)
	if err != nil {
		if isNoRows(err) {
			return nil, openshelf.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("openshelf/sqlite: get collection: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func (s *Store) SaveToken(ctx context.Context, t *accessgate.Token) error {
	attrs, err := json.Marshal(t.Attributes)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: save token: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO openshelf_tokens (book_id, owner, asset_id, attributes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (book_id, owner) DO UPDATE SET
    asset_id = excluded.asset_id, attributes = excluded.attributes, updated_at = excluded.updated_at`,
		t.BookID.String(), t.Owner, t.AssetID, string(attrs), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: save token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, bookID id.BookID, owner string) (*accessgate.Token, error) {
	var (
		t                accessgate.Token
		attrs            string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT book_id, owner, asset_id, attributes, created_at, updated_at
FROM openshelf_tokens WHERE book_id = ? AND owner = ?`, bookID.String(), owner,
	).Scan(&t.BookID, &t.Owner, &t.AssetID, &attrs, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, openshelf.ErrTokenNotFound
		}
		return nil, fmt.Errorf("openshelf/sqlite: get token: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &t.Attributes); err != nil {
		return nil, fmt.Errorf("openshelf/sqlite: decode token attributes: %w", err)
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

// ==================== Commit ====================

func (s *Store) Commit(ctx context.Context, ch *store.Change) error {
	b := ch.Book
	chapters, stakes, readers, err := encodeBookLists(b)
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: commit: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM openshelf_books WHERE id = ?`, b.ID.String()).Scan(&version)
		if isNoRows(err) {
			return openshelf.ErrBookNotFound
		}
		if err != nil {
			return err
		}
		if version != b.Version {
			return openshelf.ErrConflict
		}

		if ch.Receipt != nil {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM openshelf_receipts WHERE id = ?`, ch.Receipt.ID.String()).Scan(&exists)
			if err != nil {
				return err
			}
			if exists > 0 {
				return openshelf.ErrAlreadyExists
			}
		}

		balances, err := account.Settle(ch.Transfers, func(name string) (int64, error) {
			return balance(ctx, tx, name)
		})
		if err != nil {
			return settleError(err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE openshelf_books SET
    title = ?, description = ?, genre = ?, image_url = ?, full_book_price = ?, total_stake = ?,
    chapters = ?, stakes = ?, readers = ?, version = ?, updated_at = ?
WHERE id = ? AND version = ?`,
			b.Title, b.Description, b.Genre, b.ImageURL, b.FullBookPrice, b.TotalStake,
			chapters, stakes, readers, b.Version+1, formatTime(b.UpdatedAt),
			b.ID.String(), b.Version,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return openshelf.ErrConflict
		}

		now := formatTime(s.now())
		for name, amount := range balances {
			if _, err := tx.ExecContext(ctx, `INSERT INTO openshelf_balances (account, amount, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (account) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
				name, amount, now,
			); err != nil {
				return err
			}
		}
		for _, t := range ch.Transfers {
			if err := insertTransfer(ctx, tx, t); err != nil {
				return err
			}
		}
		if ch.Receipt != nil {
			return insertReceipt(ctx, tx, ch.Receipt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("openshelf/sqlite: commit: %w", err)
	}
	b.Version++
	return nil
}

// ==================== helpers ====================

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func balance(ctx context.Context, q queryer, name string) (int64, error) {
	var amount int64
	err := q.QueryRowContext(ctx, `SELECT amount FROM openshelf_balances WHERE account = ?`, name).Scan(&amount)
	if isNoRows(err) {
		return 0, nil
	}
	return amount, err
}

func insertTransfer(ctx context.Context, tx *sql.Tx, t *account.Transfer) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO openshelf_transfers
    (id, book_id, from_account, to_account, amount, kind, reference, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.BookID.String(), t.From, t.To, t.Amount, string(t.Kind), t.Reference, formatTime(t.CreatedAt),
	)
	return err
}

func insertReceipt(ctx context.Context, tx *sql.Tx, r *purchase.Receipt) error {
	shares, err := json.Marshal(r.Shares)
	if err != nil {
		return err
	}
	accruals, err := json.Marshal(r.Accruals)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO openshelf_receipts (`+receiptColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.BookID.String(), r.Buyer, string(r.Mode), r.ChapterIndex, r.Price, r.Currency,
		string(shares), string(accruals), r.Accrued, r.Promoted, r.NeedsAccessToken,
		string(r.Access.Status), r.Access.AssetID, r.Access.Attempts, r.Access.LastError,
		formatTime(r.Access.UpdatedAt), formatTime(r.CreatedAt),
	)
	return err
}

func scanBook(row scanner) (*book.Book, error) {
	var (
		b                         book.Book
		chapters, stakes, readers string
		created, updated          string
	)
	if err := row.Scan(&b.ID, &b.Author, &b.Title, &b.Description, &b.Genre, &b.ImageURL, &b.FullBookPrice,
		&b.TotalStake, &chapters, &stakes, &readers, &b.Version, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(chapters), &b.Chapters); err != nil {
		return nil, fmt.Errorf("decode chapters: %w", err)
	}
	if err := json.Unmarshal([]byte(stakes), &b.Stakes); err != nil {
		return nil, fmt.Errorf("decode stakes: %w", err)
	}
	if err := json.Unmarshal([]byte(readers), &b.Readers); err != nil {
		return nil, fmt.Errorf("decode readers: %w", err)
	}
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

func scanReceipt(row scanner) (*purchase.Receipt, error) {
	var (
		r                      purchase.Receipt
		mode, status           string
		shares, accruals       string
		accessUpdated, created string
	)
	if err := row.Scan(&r.ID, &r.BookID, &r.Buyer, &mode, &r.ChapterIndex, &r.Price, &r.Currency,
		&shares, &accruals, &r.Accrued, &r.Promoted, &r.NeedsAccessToken,
		&status, &r.Access.AssetID, &r.Access.Attempts, &r.Access.LastError,
		&accessUpdated, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(shares), &r.Shares); err != nil {
		return nil, fmt.Errorf("decode shares: %w", err)
	}
	if err := json.Unmarshal([]byte(accruals), &r.Accruals); err != nil {
		return nil, fmt.Errorf("decode accruals: %w", err)
	}
	r.Mode = purchase.Mode(mode)
	r.Access.Status = purchase.AccessStatus(status)
	r.Access.UpdatedAt = parseTime(accessUpdated)
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func encodeBookLists(b *book.Book) (chapters, stakes, readers string, err error) {
	c, err := json.Marshal(nonNil(b.Chapters))
	if err != nil {
		return "", "", "", err
	}
	st, err := json.Marshal(nonNil(b.Stakes))
	if err != nil {
		return "", "", "", err
	}
	r, err := json.Marshal(nonNil(b.Readers))
	if err != nil {
		return "", "", "", err
	}
	return string(c), string(st), string(r), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func pageClause(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(offset, 0))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
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
