// Package memory is an exact brute-force vector index held in process memory.
//
// Readers load an immutable snapshot through an atomic pointer and never block.
// Writers serialize on a mutex and publish a fresh snapshot (copy-on-write).
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

type entry struct {
	id     string
	source string
	vec    []float32 // L2-normalized
}

type snapshot struct {
	entries []entry
	pos     map[string]int
}

// Index is the in-memory exact cosine index.
type Index struct {
	dim  int
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New creates an empty index of the given dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	idx := &Index{dim: dim}
	idx.snap.Store(&snapshot{pos: map[string]int{}})
	return idx, nil
}

// Dimension returns the fixed vector length.
func (x *Index) Dimension() int { return x.dim }

// Insert adds one vector. Fails with ErrDuplicateID or ErrDimensionMismatch.
func (x *Index) Insert(ctx context.Context, item vector.Item) error {
	return x.InsertBatch(ctx, []vector.Item{item})
}

// InsertBatch validates every item before publishing any of them.
func (x *Index) InsertBatch(ctx context.Context, items []vector.Item) error {
	if err := ctx.Err(); err != nil {
		return domain.ContextError(err)
	}
	if len(items) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	added := make([]entry, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := vector.CheckDimension(it.Vector, x.dim); err != nil {
			return fmt.Errorf("insert %q: %w: %w", it.ID, domain.ErrDimensionMismatch, err)
		}
		if _, ok := cur.pos[it.ID]; ok {
			return fmt.Errorf("insert %q: %w", it.ID, domain.ErrDuplicateID)
		}
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("insert %q: %w", it.ID, domain.ErrDuplicateID)
		}
		seen[it.ID] = struct{}{}
		added = append(added, entry{id: it.ID, source: it.Metadata.Source, vec: vector.Normalize(it.Vector)})
	}

	next := &snapshot{
		entries: make([]entry, 0, len(cur.entries)+len(added)),
		pos:     maps.Clone(cur.pos),
	}
	next.entries = append(next.entries, cur.entries...)
	for _, e := range added {
		next.pos[e.id] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	x.snap.Store(next)
	return nil
}

// Delete removes a vector. Fails with ErrNotFound if absent.
func (x *Index) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return domain.ContextError(err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	i, ok := cur.pos[id]
	if !ok {
		return fmt.Errorf("delete %q: %w", id, domain.ErrNotFound)
	}

	next := &snapshot{
		entries: make([]entry, 0, len(cur.entries)-1),
		pos:     make(map[string]int, len(cur.pos)-1),
	}
	next.entries = append(next.entries, cur.entries[:i]...)
	next.entries = append(next.entries, cur.entries[i+1:]...)
	for j, e := range next.entries {
		next.pos[e.id] = j
	}
	x.snap.Store(next)
	return nil
}

// Contains reports whether id is indexed.
func (x *Index) Contains(_ context.Context, id string) (bool, error) {
	_, ok := x.snap.Load().pos[id]
	return ok, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len(_ context.Context) (int, error) {
	return len(x.snap.Load().entries), nil
}

// Search scores every vector against the normalized query.
func (x *Index) Search(ctx context.Context, q vector.Query) ([]vector.Hit, error) {
	if err := vector.CheckDimension(q.Vector, x.dim); err != nil {
		return nil, fmt.Errorf("search: %w: %w", domain.ErrDimensionMismatch, err)
	}
	if q.K <= 0 {
		return nil, nil
	}

	snap := x.snap.Load()
	qv := vector.Normalize(q.Vector)
	hits := make([]vector.Hit, 0, len(snap.entries))
	for i := range snap.entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, domain.ContextError(err)
			}
		}
		e := &snap.entries[i]
		if q.Source != "" && e.source != q.Source {
			continue
		}
		hits = append(hits, vector.Hit{ID: e.id, Similarity: vector.Dot(qv, e.vec)})
	}
	return vector.Select(hits, q.K, q.MinSimilarity), nil
}

// Rebuild republishes the snapshot with tight capacity.
func (x *Index) Rebuild(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.ContextError(err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	next := &snapshot{
		entries: make([]entry, len(cur.entries)),
		pos:     make(map[string]int, len(cur.entries)),
	}
	copy(next.entries, cur.entries)
	for i, e := range next.entries {
		next.pos[e.id] = i
	}
	x.snap.Store(next)
	return nil
}
