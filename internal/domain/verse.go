package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVerseRef is returned when a verse reference cannot be parsed or
// does not identify a location.
var ErrInvalidVerseRef = errors.New("invalid verse reference")

// VerseRef identifies a scripture location.
type VerseRef struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
}

// String renders the reference as "Book chapter:verse".
func (r VerseRef) String() string {
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.Verse)
}

// Equal reports whether both references point at the same verse.
// Book names must match exactly, as stored.
func (r VerseRef) Equal(other VerseRef) bool {
	return r.Book == other.Book && r.Chapter == other.Chapter && r.Verse == other.Verse
}

// Validate checks that the reference has a book and positive chapter/verse.
func (r VerseRef) Validate() error {
	if NormalizeText(r.Book) == "" {
		return fmt.Errorf("%w: book is required", ErrInvalidVerseRef)
	}
	if r.Chapter < 1 {
		return fmt.Errorf("%w: chapter must be >= 1, got %d", ErrInvalidVerseRef, r.Chapter)
	}
	if r.Verse < 1 {
		return fmt.Errorf("%w: verse must be >= 1, got %d", ErrInvalidVerseRef, r.Verse)
	}
	return nil
}

// ParseVerseRef parses references such as "John 3:16" or "1 Corinthians 13:4".
// The book is everything before the last space.
func ParseVerseRef(s string) (VerseRef, error) {
	s = NormalizeText(s)
	idx := strings.LastIndex(s, " ")
	if idx <= 0 {
		return VerseRef{}, fmt.Errorf("%w: %q: expected \"Book chapter:verse\"", ErrInvalidVerseRef, s)
	}

	book := strings.TrimSpace(s[:idx])
	chapterStr, verseStr, ok := strings.Cut(s[idx+1:], ":")
	if !ok {
		return VerseRef{}, fmt.Errorf("%w: %q: missing ':'", ErrInvalidVerseRef, s)
	}

	chapter, err := strconv.Atoi(chapterStr)
	if err != nil {
		return VerseRef{}, fmt.Errorf("%w: %q: chapter: %v", ErrInvalidVerseRef, s, err)
	}
	verse, err := strconv.Atoi(verseStr)
	if err != nil {
		return VerseRef{}, fmt.Errorf("%w: %q: verse: %v", ErrInvalidVerseRef, s, err)
	}

	ref := VerseRef{Book: book, Chapter: chapter, Verse: verse}
	if err := ref.Validate(); err != nil {
		return VerseRef{}, err
	}
	return ref, nil
}
