// Package memory is an in-process Document Store.
package memory

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
)

// Store keeps documents in a map guarded by a RWMutex. Listing is ordered by id.
type Store struct {
	mu   sync.RWMutex
	docs map[string]document.Document
	now  func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]document.Document), now: time.Now}
}

// Put stores doc, assigning a UUID when the id is empty. An existing id is overwritten.
func (s *Store) Put(_ context.Context, doc document.Document) (string, error) {
	if doc.ID() == "" {
		doc = doc.WithID(uuid.NewString())
	}
	if doc.IngestedAt().IsZero() {
		doc = doc.WithIngestedAt(s.now().UTC())
	}

	s.mu.Lock()
	s.docs[doc.ID()] = doc
	s.mu.Unlock()
	return doc.ID(), nil
}

// Get returns the document and whether it exists.
func (s *Store) Get(_ context.Context, id string) (document.Document, bool, error) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	return doc, ok, nil
}

// Delete removes the document and reports whether it existed.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return false, nil
	}
	delete(s.docs, id)
	return true, nil
}

// List yields matching documents in id order. Each range starts a fresh pass.
func (s *Store) List(ctx context.Context, f filter.Filter) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		if err := f.Validate(); err != nil {
			yield(document.Document{}, err)
			return
		}

		s.mu.RLock()
		ids := slices.Sorted(maps.Keys(s.docs))
		s.mu.RUnlock()

		emitted := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(document.Document{}, err)
				return
			}
			s.mu.RLock()
			doc, ok := s.docs[id]
			s.mu.RUnlock()
			if !ok || !f.Matches(&doc) {
				continue
			}
			if !yield(doc, nil) {
				return
			}
			emitted++
			if f.Limit > 0 && emitted >= f.Limit {
				return
			}
		}
	}
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
