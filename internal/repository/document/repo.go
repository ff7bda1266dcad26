// Package document is the Redis-hash Document Store. Each entry is a hash <prefix>doc:<id>.
package document

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
)

// listPageSize bounds how many hashes List fetches per round-trip.
const listPageSize = 100

// store is the consumer interface for documents (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// Repo implements the Document Store on Redis hashes.
type Repo struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates a document repository. keyPrefix namespaces keys, e.g. "regcheck:".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix + "doc:", now: time.Now}
}

func (r *Repo) key(id string) string { return r.prefix + id }

// Put stores doc, assigning a UUID when the id is empty. An existing id is overwritten.
func (r *Repo) Put(ctx context.Context, doc document.Document) (string, error) {
	if doc.ID() == "" {
		doc = doc.WithID(uuid.NewString())
	}
	if doc.IngestedAt().IsZero() {
		doc = doc.WithIngestedAt(r.now().UTC())
	}
	if err := r.store.HSet(ctx, r.key(doc.ID()), buildHashFields(&doc)); err != nil {
		return "", unavailable("put "+doc.ID(), err)
	}
	return doc.ID(), nil
}

// Get returns the document and whether it exists.
func (r *Repo) Get(ctx context.Context, id string) (document.Document, bool, error) {
	m, err := r.store.HGetAll(ctx, r.key(id))
	if err != nil {
		return document.Document{}, false, unavailable("get "+id, err)
	}
	if len(m) == 0 {
		return document.Document{}, false, nil
	}
	return parseHashFields(id, m), true, nil
}

// Delete removes the document and reports whether it existed.
func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := r.store.Del(ctx, r.key(id))
	if err != nil {
		return false, unavailable("delete "+id, err)
	}
	return removed, nil
}

// List yields matching documents in id order. Each range re-scans the keyspace, so the
// sequence is restartable; hashes are fetched lazily one page at a time.
func (r *Repo) List(ctx context.Context, f filter.Filter) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		if err := f.Validate(); err != nil {
			yield(document.Document{}, err)
			return
		}

		keys, err := r.store.Scan(ctx, r.prefix+"*")
		if err != nil {
			yield(document.Document{}, unavailable("list", err))
			return
		}
		slices.Sort(keys)

		emitted := 0
		for page := range slices.Chunk(keys, listPageSize) {
			maps, err := r.store.HGetAllMulti(ctx, page)
			if err != nil {
				yield(document.Document{}, unavailable("list", err))
				return
			}
			for i, m := range maps {
				if len(m) == 0 {
					continue // deleted between SCAN and HGETALL
				}
				doc := parseHashFields(strings.TrimPrefix(page[i], r.prefix), m)
				if !f.Matches(&doc) {
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
}

// Count returns the number of stored documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return 0, unavailable("count", err)
	}
	return len(keys), nil
}

// Ping checks the backing connection.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("document store %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
