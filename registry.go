package openshelf

import (
	"context"
	"slices"

	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/store"
	"github.com/xraph/openshelf/types"
)

// ChapterInput describes a chapter to register.
type ChapterInput struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Price int64  `json:"price"`
}

// CreateBookInput describes a book to publish. FullBookPrice is only used
// with PricingFixed.
type CreateBookInput struct {
	Author        string         `json:"author"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Genre         string         `json:"genre"`
	ImageURL      string         `json:"image_url"`
	FullBookPrice int64          `json:"full_book_price"`
	Chapters      []ChapterInput `json:"chapters"`
}

// AddChapterInput describes a chapter appended by the book's author.
type AddChapterInput struct {
	BookID id.BookID `json:"book_id"`
	Author string    `json:"author"`
	ChapterInput
}

// ──────────────────────────────────────────────────
// Book & Chapter Registry
// ──────────────────────────────────────────────────

// CreateBook publishes a new book with no stakes and no readers.
func (s *Shelf) CreateBook(ctx context.Context, in CreateBookInput) (*book.Book, error) {
	if err := s.validateBookInput(in); err != nil {
		return nil, s.reject(ctx, "create_book", err)
	}

	b := &book.Book{
		Entity:      types.NewEntity(s.now()),
		ID:          id.NewBookID(),
		Author:      in.Author,
		Title:       in.Title,
		Description: in.Description,
		Genre:       in.Genre,
		ImageURL:    in.ImageURL,
		Chapters:    make([]book.Chapter, 0, len(in.Chapters)),
		Stakes:      []book.Stake{},
		Readers:     []string{},
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	for _, ch := range in.Chapters {
		b.Chapters = append(b.Chapters, book.Chapter{
			Index:   ch.Index,
			Name:    ch.Name,
			URL:     ch.URL,
			Price:   ch.Price,
			Readers: []string{},
		})
	}
	b.FullBookPrice = s.fullBookPrice(b, in.FullBookPrice)

	if err := s.store.CreateBook(ctx, b); err != nil {
		return nil, s.reject(ctx, "create_book", err)
	}

	s.logger.Debug("openshelf: book created",
		"book_id", b.ID.String(),
		"author", b.Author,
		"chapters", len(b.Chapters),
	)
	s.plugins.EmitBookCreated(ctx, b)
	return b, nil
}

// AddChapter registers a chapter on an existing book. Readers of the full
// book are granted the new chapter.
func (s *Shelf) AddChapter(ctx context.Context, in AddChapterInput) (*book.Book, error) {
	ch, err := s.mutateBook(ctx, in.BookID, func(b *book.Book) (*store.Change, error) {
		if b.Author != in.Author {
			return nil, ErrUnauthorized
		}
		if len(b.Chapters) >= s.policy.MaxChapters {
			return nil, ErrMaxChaptersReached
		}
		if in.Index < 0 || in.Index >= s.policy.MaxChapters {
			return nil, ErrInvalidChapterIndex
		}
		if _, exists := b.Chapter(in.Index); exists {
			return nil, ErrDuplicateChapterIndex
		}
		if err := s.validateChapter(in.Index, in.Name, in.URL, in.Price); err != nil {
			return nil, err
		}

		b.Chapters = append(b.Chapters, book.Chapter{
			Index:   in.Index,
			Name:    in.Name,
			URL:     in.URL,
			Price:   in.Price,
			Readers: slices.Clone(b.Readers),
		})
		b.FullBookPrice = s.fullBookPrice(b, b.FullBookPrice)
		b.UpdatedAt = s.now()
		return &store.Change{Book: b}, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "add_chapter", err)
	}

	added, _ := ch.Book.Chapter(in.Index)
	s.plugins.EmitChapterAdded(ctx, ch.Book, added)
	return ch.Book, nil
}

// fullBookPrice applies the pricing mode. fixed is the price to keep when
// the mode is PricingFixed.
func (s *Shelf) fullBookPrice(b *book.Book, fixed int64) int64 {
	if s.policy.Pricing == PricingFixed {
		return fixed
	}
	return b.ChapterPriceSum()
}

// GetBook returns a book by ID.
func (s *Shelf) GetBook(ctx context.Context, bookID id.BookID) (*book.Book, error) {
	return s.store.GetBook(ctx, bookID)
}

// ListBooks returns books matching opts.
func (s *Shelf) ListBooks(ctx context.Context, opts book.ListOpts) ([]*book.Book, error) {
	return s.store.ListBooks(ctx, opts)
}

// CanRead reports whether reader may read the chapter with the given
// index. Authors can read their own books.
func (s *Shelf) CanRead(ctx context.Context, bookID id.BookID, reader string, chapterIndex int) (bool, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return false, err
	}
	ch, ok := b.Chapter(chapterIndex)
	if !ok {
		return false, ErrInvalidChapterIndex
	}
	return b.Author == reader || b.HasReader(reader) || ch.HasReader(reader), nil
}
