// Package book defines the book, chapter and stake records owned by the
// registry and the stake pool.
package book

import (
	"slices"
	"time"

	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/types"
)

// Book is a published work. It is created once and then mutated in place by
// chapter registration, purchases, stakes and claims. Books are never deleted.
type Book struct {
	types.Entity
	ID            id.BookID `json:"id"`
	Author        string    `json:"author"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Genre         string    `json:"genre"`
	ImageURL      string    `json:"image_url"`
	FullBookPrice int64     `json:"full_book_price"`
	TotalStake    int64     `json:"total_stake"`
	Chapters      []Chapter `json:"chapters"`
	Stakes        []Stake   `json:"stakes"`
	Readers       []string  `json:"readers"`

	// Version is bumped by every committed change and guards against lost
	// updates between processes.
	Version int64 `json:"version"`
}

// Chapter is a priced part of a book. Index is assigned by the author and
// is unique within the book; it need not match the chapter's position.
type Chapter struct {
	Index   int      `json:"index"`
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Price   int64    `json:"price"`
	Readers []string `json:"readers"`
}

// Stake is one staker's position in a book's pool.
type Stake struct {
	Staker    string    `json:"staker"`
	Amount    int64     `json:"amount"`
	Earnings  int64     `json:"earnings"`
	Claimed   int64     `json:"claimed"`
	CreatedAt time.Time `json:"created_at"`
}

// Chapter returns the chapter registered under index.
func (b *Book) Chapter(index int) (*Chapter, bool) {
	for i := range b.Chapters {
		if b.Chapters[i].Index == index {
			return &b.Chapters[i], true
		}
	}
	return nil, false
}

// Stake returns the position held by staker.
func (b *Book) Stake(staker string) (*Stake, bool) {
	for i := range b.Stakes {
		if b.Stakes[i].Staker == staker {
			return &b.Stakes[i], true
		}
	}
	return nil, false
}

// HasReader reports whether who bought the full book.
func (b *Book) HasReader(who string) bool { return slices.Contains(b.Readers, who) }

// HasReader reports whether who bought this chapter.
func (c *Chapter) HasReader(who string) bool { return slices.Contains(c.Readers, who) }

// OwnsEveryChapter reports whether who is a reader of every chapter.
// It is false for a book without chapters.
func (b *Book) OwnsEveryChapter(who string) bool {
	if len(b.Chapters) == 0 {
		return false
	}
	for i := range b.Chapters {
		if !b.Chapters[i].HasReader(who) {
			return false
		}
	}
	return true
}

// ChapterPriceSum returns the sum of all chapter prices.
func (b *Book) ChapterPriceSum() int64 {
	var sum int64
	for _, c := range b.Chapters {
		sum += c.Price
	}
	return sum
}

// StakeSum returns the sum of all stake amounts. It equals TotalStake for
// every committed book.
func (b *Book) StakeSum() int64 {
	var sum int64
	for _, s := range b.Stakes {
		sum += s.Amount
	}
	return sum
}

// StakerCount returns the number of stakers.
func (b *Book) StakerCount() int { return len(b.Stakes) }

// Clone returns a deep copy of b so it can be mutated without affecting
// the original.
func (b *Book) Clone() *Book {
	c := *b
	c.Readers = slices.Clone(b.Readers)
	c.Stakes = slices.Clone(b.Stakes)
	c.Chapters = make([]Chapter, len(b.Chapters))
	for i, ch := range b.Chapters {
		ch.Readers = slices.Clone(ch.Readers)
		c.Chapters[i] = ch
	}
	return &c
}
