// Package pgvector is the PostgreSQL vector index on the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/db/postgres"
	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// tieSlack over-fetches candidates so equal scores at the k boundary resolve by id.
const tieSlack = 8

// HNSW holds optional approximate index parameters. Zero M disables the index (exact scan).
type HNSW struct {
	M              int
	EFConstruction int
}

// Index implements the vector index on a registry_vectors table.
type Index struct {
	db     *sql.DB
	dim    int
	hnsw   HNSW
	logger *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithHNSW enables an HNSW index on the embedding column.
func WithHNSW(p HNSW) Option {
	return func(x *Index) { x.hnsw = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// New creates a pgvector index over an open pool.
func New(db *sql.DB, dim int, opts ...Option) *Index {
	x := &Index{db: db, dim: dim, logger: zap.NewNop()}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Dimension returns the fixed vector length.
func (x *Index) Dimension() int { return x.dim }

// EnsureSchema creates the extension, the table and the optional HNSW index.
func (x *Index) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS registry_vectors (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	embedding vector(%d) NOT NULL
)`, x.dim),
		`CREATE INDEX IF NOT EXISTS idx_registry_vectors_source ON registry_vectors(source)`,
	}
	if x.hnsw.M > 0 {
		ef := x.hnsw.EFConstruction
		if ef <= 0 {
			ef = 64
		}
		ddl = append(ddl, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_registry_vectors_hnsw ON registry_vectors `+
				`USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			x.hnsw.M, ef))
	}
	if err := postgres.WithSchemaLock(ctx, x.db, postgres.LockVectors, ddl...); err != nil {
		return fmt.Errorf("vector schema: %w", err)
	}
	return nil
}

// Insert adds one vector. Fails with ErrDuplicateID or ErrDimensionMismatch.
func (x *Index) Insert(ctx context.Context, it vector.Item) error {
	if err := vector.CheckDimension(it.Vector, x.dim); err != nil {
		return fmt.Errorf("insert %q: %w: %w", it.ID, domain.ErrDimensionMismatch, err)
	}
	res, err := x.db.ExecContext(ctx, insertSQL, it.ID, it.Metadata.Source, pgvector.NewVector(vector.Normalize(it.Vector)))
	return x.checkInserted(it.ID, res, err)
}

const insertSQL = `
INSERT INTO registry_vectors (id, source, embedding)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING
`

func (x *Index) checkInserted(id string, res sql.Result, err error) error {
	if err != nil {
		return x.unavailable("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return x.unavailable("insert", err)
	}
	if n == 0 {
		return fmt.Errorf("insert %q: %w", id, domain.ErrDuplicateID)
	}
	return nil
}

// InsertBatch inserts all items in one transaction; any failure rolls back the whole batch.
func (x *Index) InsertBatch(ctx context.Context, items []vector.Item) error {
	for _, it := range items {
		if err := vector.CheckDimension(it.Vector, x.dim); err != nil {
			return fmt.Errorf("insert %q: %w: %w", it.ID, domain.ErrDimensionMismatch, err)
		}
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return x.unavailable("insert batch", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, it := range items {
		res, err := tx.ExecContext(ctx, insertSQL, it.ID, it.Metadata.Source, pgvector.NewVector(vector.Normalize(it.Vector)))
		if err := x.checkInserted(it.ID, res, err); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return x.unavailable("insert batch", err)
	}
	return nil
}

// Delete removes a vector. Fails with ErrNotFound if absent.
func (x *Index) Delete(ctx context.Context, id string) error {
	res, err := x.db.ExecContext(ctx, `DELETE FROM registry_vectors WHERE id = $1`, id)
	if err != nil {
		return x.unavailable("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return x.unavailable("delete", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Contains reports whether id is indexed.
func (x *Index) Contains(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := x.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM registry_vectors WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, x.unavailable("contains", err)
	}
	return ok, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT count(*) FROM registry_vectors`).Scan(&n); err != nil {
		return 0, x.unavailable("len", err)
	}
	return n, nil
}

// Search orders by cosine distance on the server, then re-applies the threshold and tie rule.
func (x *Index) Search(ctx context.Context, q vector.Query) ([]vector.Hit, error) {
	if err := vector.CheckDimension(q.Vector, x.dim); err != nil {
		return nil, fmt.Errorf("search: %w: %w", domain.ErrDimensionMismatch, err)
	}
	if q.K <= 0 {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `
SELECT id, 1 - (embedding <=> $1) AS similarity
FROM registry_vectors
WHERE $2 = '' OR source = $2
ORDER BY embedding <=> $1, id
LIMIT $3
`, pgvector.NewVector(vector.Normalize(q.Vector)), q.Source, q.K+tieSlack)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.ContextError(ctxErr)
		}
		return nil, x.unavailable("search", err)
	}
	defer rows.Close()

	var hits []vector.Hit
	for rows.Next() {
		var h vector.Hit
		if err := rows.Scan(&h.ID, &h.Similarity); err != nil {
			return nil, x.unavailable("search scan", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, x.unavailable("search rows", err)
	}
	return vector.Select(hits, q.K, q.MinSimilarity), nil
}

// Rebuild reindexes the table (and its HNSW graph when enabled).
func (x *Index) Rebuild(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `REINDEX TABLE registry_vectors`); err != nil {
		return x.unavailable("rebuild", err)
	}
	x.logger.Info("Vector index rebuilt", zap.String("table", "registry_vectors"))
	return nil
}

func (x *Index) unavailable(op string, err error) error {
	return fmt.Errorf("vector index %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
