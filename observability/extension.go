// Package observability provides a metrics extension for OpenShelf that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/plugin"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnBookCreated       = (*MetricsExtension)(nil)
	_ plugin.OnChapterAdded      = (*MetricsExtension)(nil)
	_ plugin.OnChapterPurchased  = (*MetricsExtension)(nil)
	_ plugin.OnBookPurchased     = (*MetricsExtension)(nil)
	_ plugin.OnStakePlaced       = (*MetricsExtension)(nil)
	_ plugin.OnEarningsAccrued   = (*MetricsExtension)(nil)
	_ plugin.OnEarningsClaimed   = (*MetricsExtension)(nil)
	_ plugin.OnAccessTokenIssued = (*MetricsExtension)(nil)
	_ plugin.OnMintFailed        = (*MetricsExtension)(nil)
	_ plugin.OnOperationRejected = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an OpenShelf plugin to track marketplace activity.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	BookCreated  Counter
	ChapterAdded Counter

	// Purchase metrics
	ChapterPurchased Counter
	BookPurchased    Counter
	PurchaseAmount   Histogram
	ReadersPromoted  Counter

	// Stake pool metrics
	StakePlaced     Counter
	StakeAmount     Histogram
	EarningsAccrued Counter
	EarningsClaimed Counter

	// Access gate metrics
	AccessTokenIssued Counter
	MintFailed        Counter

	// Error metrics
	OperationRejected Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		BookCreated:  factory.Counter("openshelf.book.created"),
		ChapterAdded: factory.Counter("openshelf.chapter.added"),

		ChapterPurchased: factory.Counter("openshelf.chapter.purchased"),
		BookPurchased:    factory.Counter("openshelf.book.purchased"),
		PurchaseAmount:   factory.Histogram("openshelf.purchase.amount"),
		ReadersPromoted:  factory.Counter("openshelf.reader.promoted"),

		StakePlaced:     factory.Counter("openshelf.stake.placed"),
		StakeAmount:     factory.Histogram("openshelf.stake.amount"),
		EarningsAccrued: factory.Counter("openshelf.earnings.accrued"),
		EarningsClaimed: factory.Counter("openshelf.earnings.claimed"),

		AccessTokenIssued: factory.Counter("openshelf.access_token.issued"),
		MintFailed:        factory.Counter("openshelf.mint.failed"),

		OperationRejected: factory.Counter("openshelf.operation.rejected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnBookCreated(_ context.Context, _ *book.Book) error {
	m.BookCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnChapterAdded(_ context.Context, _ *book.Book, _ *book.Chapter) error {
	m.ChapterAdded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnChapterPurchased(_ context.Context, _ *book.Book, r *purchase.Receipt) error {
	m.ChapterPurchased.Inc()
	m.PurchaseAmount.Observe(float64(r.Price))
	if r.Promoted {
		m.ReadersPromoted.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnBookPurchased(_ context.Context, _ *book.Book, r *purchase.Receipt) error {
	m.BookPurchased.Inc()
	m.PurchaseAmount.Observe(float64(r.Price))
	return nil
}

// ──────────────────────────────────────────────────
// Stake pool hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnStakePlaced(_ context.Context, _ *book.Book, _ string, amount int64) error {
	m.StakePlaced.Inc()
	m.StakeAmount.Observe(float64(amount))
	return nil
}

// OnEarningsAccrued adds the accrued amount, not the number of stakers.
func (m *MetricsExtension) OnEarningsAccrued(_ context.Context, _ id.BookID, accruals []split.Accrual) error {
	m.EarningsAccrued.Add(float64(split.Sum(accruals)))
	return nil
}

func (m *MetricsExtension) OnEarningsClaimed(_ context.Context, _ id.BookID, _ string, amount int64) error {
	m.EarningsClaimed.Add(float64(amount))
	return nil
}

// ──────────────────────────────────────────────────
// Access gate hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnAccessTokenIssued(_ context.Context, _ *accessgate.Token) error {
	m.AccessTokenIssued.Inc()
	return nil
}

func (m *MetricsExtension) OnMintFailed(_ context.Context, _ id.BookID, _ string, _ error) error {
	m.MintFailed.Inc()
	return nil
}

func (m *MetricsExtension) OnOperationRejected(_ context.Context, _ string, _ error) error {
	m.OperationRejected.Inc()
	return nil
}
