// Package postgres is the PostgreSQL Document Store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/regcheck/internal/db/postgres"
	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// DefaultPageSize is the keyset page used by List.
const DefaultPageSize = 200

// Store implements the Document Store on a registry_documents table.
type Store struct {
	db       *sql.DB
	pageSize int
	now      func() time.Time
}

// New creates a store over an open pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, pageSize: DefaultPageSize, now: time.Now}
}

var schemaDDL = []string{`
CREATE TABLE IF NOT EXISTS registry_documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	registry_number TEXT NOT NULL DEFAULT '',
	decision_date DATE,
	court_name TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	material_name TEXT NOT NULL DEFAULT '',
	extra JSONB,
	embedding BYTEA,
	ingested_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_registry_documents_source ON registry_documents(source)`,
	`CREATE INDEX IF NOT EXISTS idx_registry_documents_decision_date ON registry_documents(decision_date)`,
}

// EnsureSchema creates the table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := postgres.WithSchemaLock(ctx, s.db, postgres.LockDocuments, schemaDDL...); err != nil {
		return fmt.Errorf("document schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO registry_documents
	(id, content, source, registry_number, decision_date, court_name, reason, material_name, extra, embedding, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	content = EXCLUDED.content,
	source = EXCLUDED.source,
	registry_number = EXCLUDED.registry_number,
	decision_date = EXCLUDED.decision_date,
	court_name = EXCLUDED.court_name,
	reason = EXCLUDED.reason,
	material_name = EXCLUDED.material_name,
	extra = EXCLUDED.extra,
	embedding = EXCLUDED.embedding,
	ingested_at = EXCLUDED.ingested_at
`

// Put stores doc, assigning a UUID when the id is empty. An existing id is overwritten.
func (s *Store) Put(ctx context.Context, doc document.Document) (string, error) {
	if doc.ID() == "" {
		doc = doc.WithID(uuid.NewString())
	}
	if doc.IngestedAt().IsZero() {
		doc = doc.WithIngestedAt(s.now().UTC())
	}

	md := doc.Metadata()
	var extra []byte
	if len(md.Extra) > 0 {
		data, err := json.Marshal(md.Extra)
		if err != nil {
			return "", fmt.Errorf("marshal extra: %w", err)
		}
		extra = data
	}
	var embedding []byte
	if len(doc.Embedding()) > 0 {
		embedding = vector.Bytes(doc.Embedding())
	}

	_, err := s.db.ExecContext(ctx, upsertSQL,
		doc.ID(), doc.Content(), md.Source, md.RegistryNumber, nullDate(md.DecisionDate),
		md.CourtName, md.Reason, md.MaterialName, extra, embedding, doc.IngestedAt())
	if err != nil {
		return "", unavailable("put "+doc.ID(), err)
	}
	return doc.ID(), nil
}

const selectColumns = `id, content, source, registry_number, decision_date, court_name, reason, material_name, extra, embedding, ingested_at`

// Get returns the document and whether it exists.
func (s *Store) Get(ctx context.Context, id string) (document.Document, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM registry_documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, false, nil
	}
	if err != nil {
		return document.Document{}, false, unavailable("get "+id, err)
	}
	return doc, true, nil
}

// Delete removes the document and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registry_documents WHERE id = $1`, id)
	if err != nil {
		return false, unavailable("delete "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("delete "+id, err)
	}
	return n > 0, nil
}

const listSQL = `SELECT ` + selectColumns + `
FROM registry_documents
WHERE id > $1
	AND ($2 = '' OR source = $2)
	AND ($3::date IS NULL OR decision_date >= $3)
	AND ($4::date IS NULL OR decision_date <= $4)
ORDER BY id
LIMIT $5`

// List yields matching documents in id order, one keyset page per query.
// Each range starts from the first id again.
func (s *Store) List(ctx context.Context, f filter.Filter) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		if err := f.Validate(); err != nil {
			yield(document.Document{}, err)
			return
		}

		after, emitted := "", 0
		for {
			limit := s.pageSize
			if f.Limit > 0 && f.Limit-emitted < limit {
				limit = f.Limit - emitted
			}
			page, err := s.listPage(ctx, f, after, limit)
			if err != nil {
				yield(document.Document{}, err)
				return
			}
			for _, doc := range page {
				if !yield(doc, nil) {
					return
				}
				emitted++
			}
			if len(page) < limit || (f.Limit > 0 && emitted >= f.Limit) {
				return
			}
			after = page[len(page)-1].ID()
		}
	}
}

func (s *Store) listPage(ctx context.Context, f filter.Filter, after string, limit int) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, listSQL, after, f.Source, nullDate(f.From), nullDate(f.To), limit)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer func() { _ = rows.Close() }()

	page := make([]document.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, unavailable("list", err)
		}
		page = append(page, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return page, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM registry_documents`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (document.Document, error) {
	var (
		id, content      string
		md               document.Metadata
		decisionDate     sql.NullTime
		extra, embedding []byte
		ingestedAt       time.Time
	)
	if err := r.Scan(&id, &content, &md.Source, &md.RegistryNumber, &decisionDate,
		&md.CourtName, &md.Reason, &md.MaterialName, &extra, &embedding, &ingestedAt); err != nil {
		return document.Document{}, err
	}
	if decisionDate.Valid {
		md.DecisionDate = decisionDate.Time.UTC()
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &md.Extra); err != nil {
			return document.Document{}, fmt.Errorf("unmarshal extra for %q: %w", id, err)
		}
	}
	var vec []float32
	if len(embedding) > 0 {
		v, err := vector.FromBytes(embedding)
		if err != nil {
			return document.Document{}, fmt.Errorf("decode embedding for %q: %w", id, err)
		}
		vec = v
	}
	return document.Reconstruct(id, content, md, vec, ingestedAt), nil
}

func nullDate(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("document store %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
