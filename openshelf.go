package openshelf

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/lock"
	"github.com/xraph/openshelf/plugin"
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/store"
)

// maxCommitAttempts bounds retries of a commit that lost a version race.
const maxCommitAttempts = 3

// Shelf is the marketplace engine. It is safe for concurrent use.
type Shelf struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	locker  lock.Locker
	minter  accessgate.Minter
	policy  Policy
	now     func() time.Time
}

// New creates a Shelf on top of s. It fails when the resulting policy is
// invalid.
func New(s store.Store, opts ...Option) (*Shelf, error) {
	sh := &Shelf{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		locker:  lock.NewLocal(),
		policy:  DefaultPolicy(),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(sh)
	}

	if err := sh.policy.Validate(); err != nil {
		return nil, err
	}
	return sh, nil
}

// Option configures a Shelf instance.
type Option func(*Shelf)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shelf) {
		s.logger = logger
		s.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(s *Shelf) {
		_ = s.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPolicy replaces the whole market policy.
func WithPolicy(p Policy) Option {
	return func(s *Shelf) { s.policy = p }
}

// WithSplit sets only the revenue split.
func WithSplit(p split.Policy) Option {
	return func(s *Shelf) { s.policy.Split = p }
}

// WithLocker sets the per-book lock. Use a distributed locker when several
// processes share one store.
func WithLocker(l lock.Locker) Option {
	return func(s *Shelf) { s.locker = l }
}

// WithMinter sets the collaborator used to issue access tokens.
func WithMinter(m accessgate.Minter) Option {
	return func(s *Shelf) { s.minter = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Shelf) { s.now = now }
}

// Policy returns the active market policy.
func (s *Shelf) Policy() Policy { return s.policy }

// Store returns the underlying store.
func (s *Shelf) Store() store.Store { return s.store }

// Plugins returns the plugin registry.
func (s *Shelf) Plugins() *plugin.Registry { return s.plugins }

// Start migrates the store and initializes plugins.
func (s *Shelf) Start(ctx context.Context) error {
	if err := s.store.Migrate(ctx); err != nil {
		return err
	}

	s.plugins.EmitInit(ctx, s)

	s.logger.Info("openshelf started",
		"split", s.policy.Split.String(),
		"pricing", s.policy.Pricing,
		"currency", s.policy.Currency,
		"minter", s.minter != nil,
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (s *Shelf) Stop() error {
	s.plugins.EmitShutdown(context.Background())
	return s.store.Close()
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

// mutateBook runs fn under the book lock against a private copy of the
// stored book and commits the change it returns. Version conflicts with
// other processes are retried.
func (s *Shelf) mutateBook(ctx context.Context, bookID id.BookID, fn func(b *book.Book) (*store.Change, error)) (*store.Change, error) {
	release, err := s.locker.Acquire(ctx, bookID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 1; ; attempt++ {
		cur, err := s.store.GetBook(ctx, bookID)
		if err != nil {
			return nil, err
		}
		ch, err := fn(cur.Clone())
		if err != nil {
			return nil, err
		}
		err = s.store.Commit(ctx, ch)
		if err == nil {
			return ch, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= maxCommitAttempts {
			return nil, err
		}
		s.logger.Debug("openshelf: commit conflict, retrying",
			"book_id", bookID.String(),
			"attempt", attempt,
		)
	}
}

// reject reports a failed operation and returns err unchanged.
func (s *Shelf) reject(ctx context.Context, op string, err error) error {
	s.logger.Debug("openshelf: operation rejected",
		"op", op,
		"kind", KindOf(err),
		"error", err,
	)
	s.plugins.EmitOperationRejected(ctx, op, err)
	return err
}

func (s *Shelf) transfer(bookID id.BookID, from, to string, amount int64, kind account.Kind, ref string) *account.Transfer {
	return &account.Transfer{
		ID:        id.NewTransferID(),
		BookID:    bookID,
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		Reference: ref,
		CreatedAt: s.now(),
	}
}
