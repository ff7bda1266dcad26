// Package index is the Redis query-engine vector index. Each vector lives in a hash
// <prefix>vec:<id> indexed by an FT index with a COSINE vector field.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/db"
	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// Hash field names.
const (
	fieldVector = "vector"
	fieldSource = "source"
	fieldDocID  = "doc_id"
)

// tieSlack over-fetches candidates so equal scores at the k boundary resolve by id.
const tieSlack = 8

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Index implements the vector index on Redis.
type Index struct {
	store     store
	keyPrefix string
	name      string
	dim       int
	params    db.VectorParams
	efRuntime int
	logger    *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithVectorParams selects FLAT (exact) or HNSW (approximate) and its build parameters.
func WithVectorParams(p db.VectorParams) Option {
	return func(x *Index) { x.params = p }
}

// WithEFRuntime sets the HNSW query-time candidate list size.
func WithEFRuntime(n int) Option {
	return func(x *Index) { x.efRuntime = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// New creates a Redis vector index. keyPrefix namespaces keys, e.g. "regcheck:".
func New(s store, keyPrefix string, dim int, opts ...Option) *Index {
	x := &Index{
		store:     s,
		keyPrefix: keyPrefix + "vec:",
		name:      keyPrefix + "vec:idx",
		dim:       dim,
		params:    db.VectorParams{Algorithm: db.VectorFlat, Distance: db.DistanceCosine},
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Dimension returns the fixed vector length.
func (x *Index) Dimension() int { return x.dim }

func (x *Index) definition() *db.IndexDefinition {
	return db.NewIndex(x.name).
		Prefix(x.keyPrefix).
		Tag(fieldSource).
		Vector(fieldVector, x.dim, x.params).
		MustBuild()
}

// EnsureIndex creates the FT index if it does not exist yet.
func (x *Index) EnsureIndex(ctx context.Context) error {
	exists, err := x.store.IndexExists(ctx, x.name)
	if err != nil {
		return x.unavailable("probe index", err)
	}
	if exists {
		return nil
	}
	if err := x.store.CreateIndex(ctx, x.definition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return x.unavailable("create index", err)
	}
	x.logger.Info("Vector index created",
		zap.String("index", x.name),
		zap.Int("dimensions", x.dim),
		zap.String("algorithm", string(x.params.Algorithm)),
	)
	return nil
}

func (x *Index) key(id string) string { return x.keyPrefix + id }

func (x *Index) fields(it vector.Item) map[string]string {
	return map[string]string{
		fieldVector: string(vector.Bytes(vector.Normalize(it.Vector))),
		fieldSource: it.Metadata.Source,
		fieldDocID:  it.ID,
	}
}

// Insert adds one vector. Fails with ErrDuplicateID or ErrDimensionMismatch.
func (x *Index) Insert(ctx context.Context, it vector.Item) error {
	if err := vector.CheckDimension(it.Vector, x.dim); err != nil {
		return fmt.Errorf("insert %q: %w: %w", it.ID, domain.ErrDimensionMismatch, err)
	}
	exists, err := x.store.Exists(ctx, x.key(it.ID))
	if err != nil {
		return x.unavailable("insert", err)
	}
	if exists {
		return fmt.Errorf("insert %q: %w", it.ID, domain.ErrDuplicateID)
	}
	if err := x.store.HSet(ctx, x.key(it.ID), x.fields(it)); err != nil {
		return x.unavailable("insert", err)
	}
	return nil
}

// InsertBatch validates every item, then writes all hashes in one round-trip.
func (x *Index) InsertBatch(ctx context.Context, items []vector.Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := vector.CheckDimension(it.Vector, x.dim); err != nil {
			return fmt.Errorf("insert %q: %w: %w", it.ID, domain.ErrDimensionMismatch, err)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("insert %q: %w", it.ID, domain.ErrDuplicateID)
		}
		seen[it.ID] = struct{}{}
	}
	for _, it := range items {
		exists, err := x.store.Exists(ctx, x.key(it.ID))
		if err != nil {
			return x.unavailable("insert batch", err)
		}
		if exists {
			return fmt.Errorf("insert %q: %w", it.ID, domain.ErrDuplicateID)
		}
	}

	hs := make([]db.HashSetItem, len(items))
	for i, it := range items {
		hs[i] = db.HashSetItem{Key: x.key(it.ID), Fields: x.fields(it)}
	}
	if err := x.store.HSetMulti(ctx, hs); err != nil {
		return x.unavailable("insert batch", err)
	}
	return nil
}

// Delete removes a vector. Fails with ErrNotFound if absent.
func (x *Index) Delete(ctx context.Context, id string) error {
	removed, err := x.store.Del(ctx, x.key(id))
	if err != nil {
		return x.unavailable("delete", err)
	}
	if !removed {
		return fmt.Errorf("delete %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Contains reports whether id is indexed.
func (x *Index) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := x.store.Exists(ctx, x.key(id))
	if err != nil {
		return false, x.unavailable("contains", err)
	}
	return ok, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len(ctx context.Context) (int, error) {
	n, err := x.store.SearchCount(ctx, x.name, "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, x.unavailable("len", err)
	}
	return n, nil
}

// Search runs KNN on the server, then re-applies the threshold and the tie rule.
func (x *Index) Search(ctx context.Context, q vector.Query) ([]vector.Hit, error) {
	if err := vector.CheckDimension(q.Vector, x.dim); err != nil {
		return nil, fmt.Errorf("search: %w: %w", domain.ErrDimensionMismatch, err)
	}
	if q.K <= 0 {
		return nil, nil
	}

	kq := &db.KNNQuery{
		IndexName:    x.name,
		VectorField:  fieldVector,
		Vector:       vector.Normalize(q.Vector),
		K:            q.K + tieSlack,
		ReturnFields: []string{fieldDocID},
	}
	if x.params.Algorithm == db.VectorHNSW {
		kq.EFRuntime = x.efRuntime
	}
	if q.Source != "" {
		kq.Filters = []db.TagFilter{{Field: fieldSource, Value: q.Source}}
	}

	sr, err := x.store.SearchKNN(ctx, kq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.ContextError(ctxErr)
		}
		return nil, x.unavailable("search", err)
	}

	hits := make([]vector.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id := e.Fields[fieldDocID]
		if id == "" {
			id = strings.TrimPrefix(e.Key, x.keyPrefix)
		}
		hits = append(hits, vector.Hit{ID: id, Similarity: e.Score})
	}
	return vector.Select(hits, q.K, q.MinSimilarity), nil
}

// Rebuild drops and recreates the FT index. Hashes stay and are re-indexed by prefix.
func (x *Index) Rebuild(ctx context.Context) error {
	if err := x.store.DropIndex(ctx, x.name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return x.unavailable("rebuild", err)
	}
	if err := x.store.CreateIndex(ctx, x.definition()); err != nil {
		return x.unavailable("rebuild", err)
	}
	x.logger.Info("Vector index rebuilt", zap.String("index", x.name))
	return nil
}

func (x *Index) unavailable(op string, err error) error {
	return fmt.Errorf("vector index %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
