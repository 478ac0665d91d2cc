package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
)

type recorder struct {
	name string

	mu     sync.Mutex
	events []string
	fail   bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("hook failed")
	}
	return nil
}

func (r *recorder) OnBookCreated(_ context.Context, b *book.Book) error {
	return r.record("created:" + b.Title)
}

func (r *recorder) OnEarningsClaimed(_ context.Context, _ id.BookID, staker string, _ int64) error {
	return r.record("claimed:" + staker)
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnBookCreated(context.Context, *book.Book) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesOnlyImplementedHooks(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()

	r.EmitBookCreated(ctx, &book.Book{Title: "Kindred"})
	r.EmitEarningsClaimed(ctx, id.NewBookID(), "sam", 5)
	r.EmitStakePlaced(ctx, &book.Book{}, "sam", 5) // not implemented

	if len(rec.events) != 2 || rec.events[0] != "created:Kindred" || rec.events[1] != "claimed:sam" {
		t.Errorf("events = %v", rec.events)
	}
}

func TestEmitSwallowsErrors(t *testing.T) {
	r := NewRegistry()
	failing := &recorder{name: "failing", fail: true}
	after := &recorder{name: "after"}
	_ = r.Register(failing)
	_ = r.Register(after)

	r.EmitBookCreated(context.Background(), &book.Book{Title: "x"})

	if len(after.events) != 1 {
		t.Error("a failing plugin stopped dispatch")
	}
}

func TestEmitTimeout(t *testing.T) {
	r := NewRegistry().WithTimeout(10 * time.Millisecond)
	_ = r.Register(slow{})

	start := time.Now()
	r.EmitBookCreated(context.Background(), &book.Book{})
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit waited %v for a slow plugin", elapsed)
	}
}
