// Package faq holds the static question/answer knowledge base the assistant
// grounds its replies in.
package faq

import (
	"github.com/rs/zerolog"
)

// Entry is one question/answer pair.
type Entry struct {
	ID       int    `json:"id" yaml:"id"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	Category string `json:"category" yaml:"category"`
}

// Store is an immutable, load-once FAQ sequence.
type Store struct {
	entries []Entry
}

// NewStore wraps entries. The slice is copied.
func NewStore(entries []Entry) *Store {
	return &Store{entries: append([]Entry(nil), entries...)}
}

// Open loads the knowledge base at path. A missing or malformed file yields
// an empty store; the failure is logged, never returned.
func Open(path string, logger zerolog.Logger) *Store {
	entries, err := Load(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("faq knowledge base unavailable, continuing with no entries")
		return NewStore(nil)
	}
	logger.Info().Int("entries", len(entries)).Str("path", path).Msg("faq knowledge base loaded")
	return NewStore(entries)
}

// List returns the entries in load order. Every call returns an equal copy.
func (s *Store) List() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}
