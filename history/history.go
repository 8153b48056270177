// Package history keeps the list of recognized translations.
//
// Entries are kept newest first and capped; deleting by text removes every
// entry with that text.
package history

import (
	"context"
	"errors"
)

// DefaultMaxItems caps the history length.
const DefaultMaxItems = 50

// Entry is one recorded translation.
type Entry struct {
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp"` // wall clock, Unix ms
}

// Store persists translation history.
type Store interface {
	// Add prepends e and drops the oldest entries beyond the cap.
	Add(ctx context.Context, e Entry) error
	// List returns entries newest first.
	List(ctx context.Context) ([]Entry, error)
	// DeleteByText removes all entries whose text equals text and returns
	// how many were removed.
	DeleteByText(ctx context.Context, text string) (int, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// ErrEmptyText is returned when adding an entry without text.
var ErrEmptyText = errors.New("history: empty text")
