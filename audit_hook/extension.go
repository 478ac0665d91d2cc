// Package audithook bridges OpenShelf lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit library. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/plugin"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnBookCreated       = (*Extension)(nil)
	_ plugin.OnChapterAdded      = (*Extension)(nil)
	_ plugin.OnChapterPurchased  = (*Extension)(nil)
	_ plugin.OnBookPurchased     = (*Extension)(nil)
	_ plugin.OnStakePlaced       = (*Extension)(nil)
	_ plugin.OnEarningsAccrued   = (*Extension)(nil)
	_ plugin.OnEarningsClaimed   = (*Extension)(nil)
	_ plugin.OnAccessTokenIssued = (*Extension)(nil)
	_ plugin.OnMintFailed        = (*Extension)(nil)
	_ plugin.OnOperationRejected = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges OpenShelf lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnBookCreated implements plugin.OnBookCreated.
func (e *Extension) OnBookCreated(ctx context.Context, b *book.Book) error {
	return e.record(ctx, ActionBookCreated, SeverityInfo, OutcomeSuccess,
		ResourceBook, b.ID.String(), CategoryCatalog, nil,
		"author", b.Author,
		"chapters", len(b.Chapters),
		"full_book_price", b.FullBookPrice,
	)
}

// OnChapterAdded implements plugin.OnChapterAdded.
func (e *Extension) OnChapterAdded(ctx context.Context, b *book.Book, ch *book.Chapter) error {
	return e.record(ctx, ActionChapterAdded, SeverityInfo, OutcomeSuccess,
		ResourceChapter, b.ID.String(), CategoryCatalog, nil,
		"index", ch.Index,
		"price", ch.Price,
		"seeded_readers", len(ch.Readers),
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnChapterPurchased implements plugin.OnChapterPurchased.
func (e *Extension) OnChapterPurchased(ctx context.Context, b *book.Book, r *purchase.Receipt) error {
	return e.record(ctx, ActionChapterPurchased, SeverityInfo, OutcomeSuccess,
		ResourceReceipt, r.ID.String(), CategoryPayment, nil,
		"book_id", b.ID.String(),
		"buyer", r.Buyer,
		"chapter", r.ChapterIndex,
		"price", r.Price,
		"promoted", r.Promoted,
	)
}

// OnBookPurchased implements plugin.OnBookPurchased.
func (e *Extension) OnBookPurchased(ctx context.Context, b *book.Book, r *purchase.Receipt) error {
	return e.record(ctx, ActionBookPurchased, SeverityInfo, OutcomeSuccess,
		ResourceReceipt, r.ID.String(), CategoryPayment, nil,
		"book_id", b.ID.String(),
		"buyer", r.Buyer,
		"price", r.Price,
	)
}

// ──────────────────────────────────────────────────
// Stake pool hooks
// ──────────────────────────────────────────────────

// OnStakePlaced implements plugin.OnStakePlaced.
func (e *Extension) OnStakePlaced(ctx context.Context, b *book.Book, staker string, amount int64) error {
	return e.record(ctx, ActionStakePlaced, SeverityInfo, OutcomeSuccess,
		ResourceStake, b.ID.String(), CategoryStaking, nil,
		"staker", staker,
		"amount", amount,
		"total_stake", b.TotalStake,
	)
}

// OnEarningsAccrued implements plugin.OnEarningsAccrued.
func (e *Extension) OnEarningsAccrued(ctx context.Context, bookID id.BookID, accruals []split.Accrual) error {
	return e.record(ctx, ActionEarningsAccrued, SeverityInfo, OutcomeSuccess,
		ResourceStake, bookID.String(), CategoryStaking, nil,
		"stakers", len(accruals),
		"total", split.Sum(accruals),
	)
}

// OnEarningsClaimed implements plugin.OnEarningsClaimed.
func (e *Extension) OnEarningsClaimed(ctx context.Context, bookID id.BookID, staker string, amount int64) error {
	return e.record(ctx, ActionEarningsClaimed, SeverityInfo, OutcomeSuccess,
		ResourceStake, bookID.String(), CategoryStaking, nil,
		"staker", staker,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Access gate hooks
// ──────────────────────────────────────────────────

// OnAccessTokenIssued implements plugin.OnAccessTokenIssued.
func (e *Extension) OnAccessTokenIssued(ctx context.Context, t *accessgate.Token) error {
	return e.record(ctx, ActionAccessTokenIssued, SeverityInfo, OutcomeSuccess,
		ResourceAccessToken, t.AssetID, CategoryAccess, nil,
		"book_id", t.BookID.String(),
		"owner", t.Owner,
		"attributes", len(t.Attributes),
	)
}

// OnMintFailed implements plugin.OnMintFailed.
func (e *Extension) OnMintFailed(ctx context.Context, bookID id.BookID, owner string, err error) error {
	return e.record(ctx, ActionMintFailed, SeverityWarning, OutcomeFailure,
		ResourceAccessToken, bookID.String(), CategoryAccess, err,
		"owner", owner,
	)
}

// OnOperationRejected implements plugin.OnOperationRejected.
func (e *Extension) OnOperationRejected(ctx context.Context, op string, err error) error {
	return e.record(ctx, ActionOperationRejected, SeverityInfo, OutcomeFailure,
		ResourceOperation, op, categoryOf(op), err,
		"op", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func categoryOf(op string) string {
	switch op {
	case "create_book", "add_chapter":
		return CategoryCatalog
	case "stake", "claim":
		return CategoryStaking
	case "create_collection", "mint_book_token", "mint_chapter_token":
		return CategoryAccess
	default:
		return CategoryPayment
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
