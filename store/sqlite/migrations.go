package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xraph/openshelf"
)

type migration struct {
	version string
	name    string
	sql     string
}

// migrations are applied in order and recorded in openshelf_migrations.
var migrations = []migration{
	{
		version: "20250101000001",
		name:    "create_openshelf_books",
		sql: `
CREATE TABLE IF NOT EXISTS openshelf_books (
    id              TEXT PRIMARY KEY,
    author          TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    genre           TEXT NOT NULL DEFAULT '',
    image_url       TEXT NOT NULL DEFAULT '',
    full_book_price INTEGER NOT NULL DEFAULT 0,
    total_stake     INTEGER NOT NULL DEFAULT 0,
    chapters        TEXT NOT NULL DEFAULT '[]',
    stakes          TEXT NOT NULL DEFAULT '[]',
    readers         TEXT NOT NULL DEFAULT '[]',
    version         INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_openshelf_books_author ON openshelf_books (author);
CREATE INDEX IF NOT EXISTS idx_openshelf_books_genre ON openshelf_books (genre);
`,
	},
	{
		version: "20250101000002",
		name:    "create_openshelf_accounts",
		sql: `
CREATE TABLE IF NOT EXISTS openshelf_balances (
    account    TEXT PRIMARY KEY,
    amount     INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS openshelf_transfers (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    book_id      TEXT NOT NULL DEFAULT '',
    from_account TEXT NOT NULL DEFAULT '',
    to_account   TEXT NOT NULL,
    amount       INTEGER NOT NULL,
    kind         TEXT NOT NULL,
    reference    TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_openshelf_transfers_from ON openshelf_transfers (from_account);
CREATE INDEX IF NOT EXISTS idx_openshelf_transfers_to ON openshelf_transfers (to_account);
CREATE INDEX IF NOT EXISTS idx_openshelf_transfers_book ON openshelf_transfers (book_id);
`,
	},
	{
		version: "20250101000003",
		name:    "create_openshelf_receipts",
		sql: `
CREATE TABLE IF NOT EXISTS openshelf_receipts (
    id                 TEXT PRIMARY KEY,
    book_id            TEXT NOT NULL,
    buyer              TEXT NOT NULL,
    mode               TEXT NOT NULL,
    chapter_index      INTEGER NOT NULL DEFAULT 0,
    price              INTEGER NOT NULL,
    currency           TEXT NOT NULL DEFAULT '',
    shares             TEXT NOT NULL DEFAULT '{}',
    accruals           TEXT NOT NULL DEFAULT '[]',
    accrued            INTEGER NOT NULL DEFAULT 0,
    promoted           INTEGER NOT NULL DEFAULT 0,
    needs_access_token INTEGER NOT NULL DEFAULT 0,
    access_status      TEXT NOT NULL DEFAULT 'none',
    access_asset_id    TEXT NOT NULL DEFAULT '',
    access_attempts    INTEGER NOT NULL DEFAULT 0,
    access_last_error  TEXT NOT NULL DEFAULT '',
    access_updated_at  TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_openshelf_receipts_book_buyer ON openshelf_receipts (book_id, buyer);
CREATE INDEX IF NOT EXISTS idx_openshelf_receipts_access ON openshelf_receipts (access_status);
`,
	},
	{
		version: "20250101000004",
		name:    "create_openshelf_access_gate",
		sql: `
CREATE TABLE IF NOT EXISTS openshelf_collections (
    owner         TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS openshelf_tokens (
    book_id    TEXT NOT NULL,
    owner      TEXT NOT NULL,
    asset_id   TEXT NOT NULL,
    attributes TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (book_id, owner)
);
`,
	},
}

// Migrate creates the required tables and indexes. Pending migrations are
// applied in a single transaction.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS openshelf_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
			return fmt.Errorf("ensure openshelf_migrations: %w", err)
		}

		for _, m := range migrations {
			var count int
			row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM openshelf_migrations WHERE version = ?", m.version)
			if err := row.Scan(&count); err != nil {
				return fmt.Errorf("scan migration version: %w", err)
			}
			if count > 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO openshelf_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.version, m.name, formatTime(s.now()),
			); err != nil {
				return fmt.Errorf("record migration %s: %w", m.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: openshelf/sqlite: %w", openshelf.ErrMigrationFailed, err)
	}
	return nil
}
