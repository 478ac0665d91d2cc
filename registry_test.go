package openshelf_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
)

func validBookInput() openshelf.CreateBookInput {
	return openshelf.CreateBookInput{
		Author:      "author",
		Title:       "Kindred",
		Description: "Dana travels back",
		Genre:       "fiction",
		ImageURL:    "https://img.example/kindred.png",
		Chapters: []openshelf.ChapterInput{
			{Index: 0, Name: "The River", URL: "https://c/0", Price: 10},
			{Index: 1, Name: "The Fire", URL: "https://c/1", Price: 15},
		},
	}
}

func TestCreateBook(t *testing.T) {
	s := newShelf(t)
	b, err := s.CreateBook(context.Background(), validBookInput())
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	if b.ID.Prefix() != id.PrefixBook {
		t.Errorf("prefix = %q", b.ID.Prefix())
	}
	if b.TotalStake != 0 || len(b.Stakes) != 0 || len(b.Readers) != 0 {
		t.Errorf("new book not empty: %+v", b)
	}
	if b.FullBookPrice != 25 {
		t.Errorf("full price = %d, want 25", b.FullBookPrice)
	}

	got := getBook(t, s, b)
	if got.Title != "Kindred" || len(got.Chapters) != 2 {
		t.Errorf("stored book = %+v", got)
	}
}

func TestCreateBookFixedPricing(t *testing.T) {
	p := openshelf.DefaultPolicy()
	p.Pricing = openshelf.PricingFixed
	s := newShelf(t, openshelf.WithPolicy(p))

	in := validBookInput()
	in.FullBookPrice = 18
	b, err := s.CreateBook(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if b.FullBookPrice != 18 {
		t.Errorf("full price = %d, want 18", b.FullBookPrice)
	}

	b, err = s.AddChapter(context.Background(), openshelf.AddChapterInput{
		BookID: b.ID, Author: "author",
		ChapterInput: openshelf.ChapterInput{Index: 2, Name: "The Storm", URL: "https://c/2", Price: 40},
	})
	if err != nil {
		t.Fatalf("AddChapter: %v", err)
	}
	if b.FullBookPrice != 18 {
		t.Errorf("fixed price changed to %d", b.FullBookPrice)
	}
}

func TestCreateBookValidation(t *testing.T) {
	s := newShelf(t)

	tests := []struct {
		name   string
		mutate func(in *openshelf.CreateBookInput)
		kind   openshelf.Kind
	}{
		{"empty author", func(in *openshelf.CreateBookInput) { in.Author = "" }, openshelf.KindInvalidInput},
		{"empty title", func(in *openshelf.CreateBookInput) { in.Title = "" }, openshelf.KindInvalidInput},
		{"long title", func(in *openshelf.CreateBookInput) { in.Title = strings.Repeat("t", 51) }, openshelf.KindInvalidInput},
		{"long description", func(in *openshelf.CreateBookInput) { in.Description = strings.Repeat("d", 201) }, openshelf.KindInvalidInput},
		{"empty genre", func(in *openshelf.CreateBookInput) { in.Genre = "   " }, openshelf.KindInvalidInput},
		{"long image url", func(in *openshelf.CreateBookInput) { in.ImageURL = strings.Repeat("u", 201) }, openshelf.KindInvalidInput},
		{"negative price", func(in *openshelf.CreateBookInput) { in.Chapters[0].Price = -1 }, openshelf.KindInvalidInput},
		{"price above max", func(in *openshelf.CreateBookInput) { in.Chapters[0].Price = 1_000_000_001 }, openshelf.KindInvalidInput},
		{"empty chapter name", func(in *openshelf.CreateBookInput) { in.Chapters[1].Name = "" }, openshelf.KindInvalidInput},
		{"long chapter name", func(in *openshelf.CreateBookInput) { in.Chapters[1].Name = strings.Repeat("n", 101) }, openshelf.KindInvalidInput},
		{"duplicate index", func(in *openshelf.CreateBookInput) { in.Chapters[1].Index = 0 }, openshelf.KindInvalidInput},
		{"index out of range", func(in *openshelf.CreateBookInput) { in.Chapters[1].Index = 255 }, openshelf.KindInvalidChapterIndex},
		{"negative index", func(in *openshelf.CreateBookInput) { in.Chapters[1].Index = -1 }, openshelf.KindInvalidChapterIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validBookInput()
			tt.mutate(&in)
			_, err := s.CreateBook(context.Background(), in)
			expectKind(t, err, tt.kind)
		})
	}

	books, err := s.ListBooks(context.Background(), book.ListOpts{})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != 0 {
		t.Errorf("rejected inputs stored %d books", len(books))
	}
}

func TestCreateBookMultibyteTitle(t *testing.T) {
	s := newShelf(t)
	in := validBookInput()
	in.Title = strings.Repeat("ß", 50)
	if _, err := s.CreateBook(context.Background(), in); err != nil {
		t.Fatalf("50-rune title rejected: %v", err)
	}
}

func TestAddChapter(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10, 20)

	fund(t, s, "reader", 30)
	if _, err := s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: "reader"}); err != nil {
		t.Fatalf("PurchaseFullBook: %v", err)
	}

	got, err := s.AddChapter(ctx, openshelf.AddChapterInput{
		BookID: b.ID, Author: "author",
		ChapterInput: openshelf.ChapterInput{Index: 7, Name: "Epilogue", URL: "https://c/7", Price: 5},
	})
	if err != nil {
		t.Fatalf("AddChapter: %v", err)
	}
	if len(got.Chapters) != 3 || got.FullBookPrice != 35 {
		t.Errorf("chapters = %d, price = %d", len(got.Chapters), got.FullBookPrice)
	}
	ch, ok := got.Chapter(7)
	if !ok || !ch.HasReader("reader") {
		t.Errorf("full-book reader not seeded into new chapter: %+v", ch)
	}

	can, err := s.CanRead(ctx, b.ID, "reader", 7)
	if err != nil || !can {
		t.Errorf("CanRead = %v, %v", can, err)
	}
}

func TestAddChapterErrors(t *testing.T) {
	s := newShelf(t)
	b := publish(t, s, 10, 20)

	tests := []struct {
		name   string
		author string
		index  int
		chName string
		kind   openshelf.Kind
	}{
		{"not the author", "mallory", 5, "x", openshelf.KindUnauthorized},
		{"index too large", "author", 255, "x", openshelf.KindInvalidChapterIndex},
		{"negative index", "author", -1, "x", openshelf.KindInvalidChapterIndex},
		{"duplicate index", "author", 1, "x", openshelf.KindDuplicateChapterIndex},
		{"empty name", "author", 5, "", openshelf.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddChapter(context.Background(), openshelf.AddChapterInput{
				BookID: b.ID, Author: tt.author,
				ChapterInput: openshelf.ChapterInput{Index: tt.index, Name: tt.chName, URL: "https://c/x", Price: 1},
			})
			expectKind(t, err, tt.kind)
		})
	}

	got := getBook(t, s, b)
	if len(got.Chapters) != 2 || got.Version != b.Version {
		t.Errorf("rejected chapters changed the book: %+v", got)
	}
}

// A duplicate index is rejected and the chapter list is unchanged.
func TestAddChapterDuplicateIndex(t *testing.T) {
	s := newShelf(t)
	b := publish(t, s, 30, 30, 40)

	_, err := s.AddChapter(context.Background(), openshelf.AddChapterInput{
		BookID: b.ID, Author: "author",
		ChapterInput: openshelf.ChapterInput{Index: 2, Name: "Again", URL: "https://c/2b", Price: 1},
	})
	if !errors.Is(err, openshelf.ErrDuplicateChapterIndex) {
		t.Fatalf("expected ErrDuplicateChapterIndex, got %v", err)
	}

	got := getBook(t, s, b)
	if len(got.Chapters) != 3 {
		t.Fatalf("chapters = %d, want 3", len(got.Chapters))
	}
	for i, ch := range got.Chapters {
		if ch.Index != b.Chapters[i].Index || ch.Name != b.Chapters[i].Name || ch.Price != b.Chapters[i].Price {
			t.Errorf("chapter %d changed: %+v", i, ch)
		}
	}
}

func TestAddChapterMaxChapters(t *testing.T) {
	p := openshelf.DefaultPolicy()
	p.MaxChapters = 3
	s := newShelf(t, openshelf.WithPolicy(p))
	b := publish(t, s, 1, 1, 1)

	_, err := s.AddChapter(context.Background(), openshelf.AddChapterInput{
		BookID: b.ID, Author: "author",
		ChapterInput: openshelf.ChapterInput{Index: 1, Name: "x", URL: "https://c/x", Price: 1},
	})
	if !errors.Is(err, openshelf.ErrMaxChaptersReached) {
		t.Fatalf("expected ErrMaxChaptersReached, got %v", err)
	}
	expectKind(t, err, openshelf.KindInvalidChapterIndex)
}

func TestAddChapterUnknownBook(t *testing.T) {
	s := newShelf(t)
	_, err := s.AddChapter(context.Background(), openshelf.AddChapterInput{
		BookID: id.NewBookID(), Author: "author",
		ChapterInput: openshelf.ChapterInput{Index: 0, Name: "x", URL: "https://c/x"},
	})
	if !errors.Is(err, openshelf.ErrBookNotFound) || !openshelf.IsNotFound(err) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestCanRead(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10, 20)
	fund(t, s, "bob", 10)
	if _, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0}); err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	tests := []struct {
		name   string
		reader string
		index  int
		want   bool
	}{
		{"author", "author", 1, true},
		{"bought chapter", "bob", 0, true},
		{"other chapter", "bob", 1, false},
		{"stranger", "eve", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.CanRead(ctx, b.ID, tt.reader, tt.index)
			if err != nil {
				t.Fatalf("CanRead: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanRead = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := s.CanRead(ctx, b.ID, "bob", 9); !errors.Is(err, openshelf.ErrInvalidChapterIndex) {
		t.Errorf("expected ErrInvalidChapterIndex, got %v", err)
	}
}

func TestListBooksByAuthor(t *testing.T) {
	s := newShelf(t)
	publish(t, s, 1)
	in := validBookInput()
	in.Author = "octavia"
	if _, err := s.CreateBook(context.Background(), in); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	books, err := s.ListBooks(context.Background(), book.ListOpts{Author: "octavia"})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != 1 || books[0].Author != "octavia" {
		t.Errorf("books = %v", books)
	}
}
