package book

import (
	"context"

	"github.com/xraph/openshelf/id"
)

// Store persists books. Mutations after creation go through the atomic
// commit of the unified store.
type Store interface {
	CreateBook(ctx context.Context, b *Book) error
	GetBook(ctx context.Context, bookID id.BookID) (*Book, error)
	ListBooks(ctx context.Context, opts ListOpts) ([]*Book, error)
}

// ListOpts filters ListBooks. Zero values match everything.
type ListOpts struct {
	Author     string
	Genre      string
	MinStakers int
	Limit      int
	Offset     int
}

// Match reports whether b passes the filters (Limit and Offset excluded).
func (o ListOpts) Match(b *Book) bool {
	if o.Author != "" && b.Author != o.Author {
		return false
	}
	if o.Genre != "" && b.Genre != o.Genre {
		return false
	}
	if o.MinStakers > 0 && b.StakerCount() < o.MinStakers {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already filtered slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
