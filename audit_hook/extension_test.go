package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
	audithook "github.com/xraph/openshelf/audit_hook"
	"github.com/xraph/openshelf/store/memory"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) record(_ context.Context, evt *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func newShelf(t *testing.T, ext *audithook.Extension) *openshelf.Shelf {
	t.Helper()
	s, err := openshelf.New(memory.New(),
		openshelf.WithPlugin(ext),
		openshelf.WithMinter(accessgate.NewMemoryMinter()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func bookInput() openshelf.CreateBookInput {
	return openshelf.CreateBookInput{
		Author: "author",
		Title:  "Kindred",
		Genre:  "fiction",
		Chapters: []openshelf.ChapterInput{
			{Index: 0, Name: "The River", URL: "https://c.example/0", Price: 10},
		},
	}
}

func TestExtensionRecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	sk := &sink{}
	s := newShelf(t, audithook.New(audithook.RecorderFunc(sk.record)))

	b, err := s.CreateBook(ctx, bookInput())
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if _, err := s.Deposit(ctx, "bob", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{
		BookID: b.ID, Buyer: "bob", ChapterIndex: 0, NeedAccessToken: true,
	}); err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}
	_, _ = s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})

	want := []string{
		audithook.ActionBookCreated,
		audithook.ActionAccessTokenIssued,
		audithook.ActionChapterPurchased,
		audithook.ActionOperationRejected,
	}
	got := sk.actions()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("actions[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	last := sk.events[len(sk.events)-1]
	if last.Outcome != audithook.OutcomeFailure || last.Reason == "" || last.Category != audithook.CategoryPayment {
		t.Errorf("rejection event = %+v", last)
	}
}

func TestExtensionEnabledActions(t *testing.T) {
	ctx := context.Background()
	sk := &sink{}
	s := newShelf(t, audithook.New(audithook.RecorderFunc(sk.record),
		audithook.WithDisabledActions(audithook.ActionBookCreated),
	))

	if _, err := s.CreateBook(ctx, bookInput()); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if len(sk.actions()) != 0 {
		t.Errorf("disabled action recorded: %v", sk.actions())
	}
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnEarningsClaimed(context.Background(), openshelf.ID{}, "sam", 5); err != nil {
		t.Fatalf("hook returned %v", err)
	}
}

func TestExtensionWithCategories(t *testing.T) {
	ctx := context.Background()
	sk := &sink{}
	s := newShelf(t, audithook.New(audithook.RecorderFunc(sk.record),
		audithook.WithCategories(audithook.CategoryPayment),
	))

	b, err := s.CreateBook(ctx, bookInput())
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if _, err := s.Deposit(ctx, "bob", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{
		BookID: b.ID, Buyer: "bob", ChapterIndex: 0, NeedAccessToken: true,
	}); err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	got := sk.actions()
	if len(got) != 1 || got[0] != audithook.ActionChapterPurchased {
		t.Fatalf("actions = %v, want only %s", got, audithook.ActionChapterPurchased)
	}
}
