package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit              []OnInit
	onShutdown          []OnShutdown
	onBookCreated       []OnBookCreated
	onChapterAdded      []OnChapterAdded
	onChapterPurchased  []OnChapterPurchased
	onBookPurchased     []OnBookPurchased
	onStakePlaced       []OnStakePlaced
	onEarningsAccrued   []OnEarningsAccrued
	onEarningsClaimed   []OnEarningsClaimed
	onAccessTokenIssued []OnAccessTokenIssued
	onMintFailed        []OnMintFailed
	onRejected          []OnOperationRejected
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	add := func(name string) { hooks = append(hooks, name) }

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		add("OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		add("OnShutdown")
	}
	if v, ok := p.(OnBookCreated); ok {
		r.onBookCreated = append(r.onBookCreated, v)
		add("OnBookCreated")
	}
	if v, ok := p.(OnChapterAdded); ok {
		r.onChapterAdded = append(r.onChapterAdded, v)
		add("OnChapterAdded")
	}
	if v, ok := p.(OnChapterPurchased); ok {
		r.onChapterPurchased = append(r.onChapterPurchased, v)
		add("OnChapterPurchased")
	}
	if v, ok := p.(OnBookPurchased); ok {
		r.onBookPurchased = append(r.onBookPurchased, v)
		add("OnBookPurchased")
	}
	if v, ok := p.(OnStakePlaced); ok {
		r.onStakePlaced = append(r.onStakePlaced, v)
		add("OnStakePlaced")
	}
	if v, ok := p.(OnEarningsAccrued); ok {
		r.onEarningsAccrued = append(r.onEarningsAccrued, v)
		add("OnEarningsAccrued")
	}
	if v, ok := p.(OnEarningsClaimed); ok {
		r.onEarningsClaimed = append(r.onEarningsClaimed, v)
		add("OnEarningsClaimed")
	}
	if v, ok := p.(OnAccessTokenIssued); ok {
		r.onAccessTokenIssued = append(r.onAccessTokenIssued, v)
		add("OnAccessTokenIssued")
	}
	if v, ok := p.(OnMintFailed); ok {
		r.onMintFailed = append(r.onMintFailed, v)
		add("OnMintFailed")
	}
	if v, ok := p.(OnOperationRejected); ok {
		r.onRejected = append(r.onRejected, v)
		add("OnOperationRejected")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every hook implementation. Failures are logged and
// never returned.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, shelf any) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, shelf) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitBookCreated emits a book created event.
func (r *Registry) EmitBookCreated(ctx context.Context, b *book.Book) {
	emit(ctx, r, "OnBookCreated", func(r *Registry) []OnBookCreated { return r.onBookCreated },
		func(p OnBookCreated) error { return p.OnBookCreated(ctx, b) })
}

// EmitChapterAdded emits a chapter added event.
func (r *Registry) EmitChapterAdded(ctx context.Context, b *book.Book, ch *book.Chapter) {
	emit(ctx, r, "OnChapterAdded", func(r *Registry) []OnChapterAdded { return r.onChapterAdded },
		func(p OnChapterAdded) error { return p.OnChapterAdded(ctx, b, ch) })
}

// EmitChapterPurchased emits a chapter purchased event.
func (r *Registry) EmitChapterPurchased(ctx context.Context, b *book.Book, rc *purchase.Receipt) {
	emit(ctx, r, "OnChapterPurchased", func(r *Registry) []OnChapterPurchased { return r.onChapterPurchased },
		func(p OnChapterPurchased) error { return p.OnChapterPurchased(ctx, b, rc) })
}

// EmitBookPurchased emits a full-book purchased event.
func (r *Registry) EmitBookPurchased(ctx context.Context, b *book.Book, rc *purchase.Receipt) {
	emit(ctx, r, "OnBookPurchased", func(r *Registry) []OnBookPurchased { return r.onBookPurchased },
		func(p OnBookPurchased) error { return p.OnBookPurchased(ctx, b, rc) })
}

// EmitStakePlaced emits a stake placed event.
func (r *Registry) EmitStakePlaced(ctx context.Context, b *book.Book, staker string, amount int64) {
	emit(ctx, r, "OnStakePlaced", func(r *Registry) []OnStakePlaced { return r.onStakePlaced },
		func(p OnStakePlaced) error { return p.OnStakePlaced(ctx, b, staker, amount) })
}

// EmitEarningsAccrued emits an earnings accrued event.
func (r *Registry) EmitEarningsAccrued(ctx context.Context, bookID id.BookID, accruals []split.Accrual) {
	emit(ctx, r, "OnEarningsAccrued", func(r *Registry) []OnEarningsAccrued { return r.onEarningsAccrued },
		func(p OnEarningsAccrued) error { return p.OnEarningsAccrued(ctx, bookID, accruals) })
}

// EmitEarningsClaimed emits an earnings claimed event.
func (r *Registry) EmitEarningsClaimed(ctx context.Context, bookID id.BookID, staker string, amount int64) {
	emit(ctx, r, "OnEarningsClaimed", func(r *Registry) []OnEarningsClaimed { return r.onEarningsClaimed },
		func(p OnEarningsClaimed) error { return p.OnEarningsClaimed(ctx, bookID, staker, amount) })
}

// EmitAccessTokenIssued emits an access token issued event.
func (r *Registry) EmitAccessTokenIssued(ctx context.Context, t *accessgate.Token) {
	emit(ctx, r, "OnAccessTokenIssued", func(r *Registry) []OnAccessTokenIssued { return r.onAccessTokenIssued },
		func(p OnAccessTokenIssued) error { return p.OnAccessTokenIssued(ctx, t) })
}

// EmitMintFailed emits a mint failed event.
func (r *Registry) EmitMintFailed(ctx context.Context, bookID id.BookID, owner string, mintErr error) {
	emit(ctx, r, "OnMintFailed", func(r *Registry) []OnMintFailed { return r.onMintFailed },
		func(p OnMintFailed) error { return p.OnMintFailed(ctx, bookID, owner, mintErr) })
}

// EmitOperationRejected emits an operation rejected event.
func (r *Registry) EmitOperationRejected(ctx context.Context, op string, opErr error) {
	emit(ctx, r, "OnOperationRejected", func(r *Registry) []OnOperationRejected { return r.onRejected },
		func(p OnOperationRejected) error { return p.OnOperationRejected(ctx, op, opErr) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the purchase pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
