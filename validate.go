package openshelf

import (
	"strings"
	"unicode/utf8"

	"github.com/xraph/openshelf/account"
)

// Field length limits, in runes.
const (
	MaxTitleLen       = 50
	MaxDescriptionLen = 200
	MaxGenreLen       = 50
	MaxURLLen         = 200
	MaxChapterNameLen = 100
)

func checkLen(field, value string, maxLen int) error {
	n := utf8.RuneCountInString(value)
	if n == 0 || strings.TrimSpace(value) == "" {
		return invalid(field, "must not be empty")
	}
	if n > maxLen {
		return invalid(field, "must be at most %d characters, got %d", maxLen, n)
	}
	return nil
}

// checkAccount validates a caller-supplied identity. Book pool accounts
// are only ever moved by the engine itself.
func checkAccount(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(field, "must not be empty")
	}
	if account.IsPool(name) {
		return invalid(field, "%s is a pool account", name)
	}
	return nil
}

func (s *Shelf) validateBookInput(in CreateBookInput) error {
	if err := checkAccount("author", in.Author); err != nil {
		return err
	}
	if err := checkLen("title", in.Title, MaxTitleLen); err != nil {
		return err
	}
	if err := checkLen("description", in.Description, MaxDescriptionLen); err != nil {
		return err
	}
	if err := checkLen("genre", in.Genre, MaxGenreLen); err != nil {
		return err
	}
	if err := checkLen("image_url", in.ImageURL, MaxURLLen); err != nil {
		return err
	}
	if len(in.Chapters) > s.policy.MaxChapters {
		return invalid("chapters", "at most %d chapters, got %d", s.policy.MaxChapters, len(in.Chapters))
	}
	if in.FullBookPrice < 0 {
		return invalid("full_book_price", "must not be negative")
	}

	seen := make(map[int]struct{}, len(in.Chapters))
	for _, ch := range in.Chapters {
		if err := s.validateChapter(ch.Index, ch.Name, ch.URL, ch.Price); err != nil {
			return err
		}
		if _, dup := seen[ch.Index]; dup {
			return invalid("chapters", "duplicate chapter index %d", ch.Index)
		}
		seen[ch.Index] = struct{}{}
	}
	return nil
}

// validateChapter checks the index range and the fields of one chapter.
// An index out of range is ErrInvalidChapterIndex, not an input error.
func (s *Shelf) validateChapter(index int, name, url string, price int64) error {
	if index < 0 || index >= s.policy.MaxChapters {
		return ErrInvalidChapterIndex
	}
	if err := checkLen("chapter.name", name, MaxChapterNameLen); err != nil {
		return err
	}
	if err := checkLen("chapter.url", url, MaxURLLen); err != nil {
		return err
	}
	if price < 0 || price > s.policy.MaxChapterPrice {
		return invalid("chapter.price", "must be within [0, %d], got %d", s.policy.MaxChapterPrice, price)
	}
	return nil
}
