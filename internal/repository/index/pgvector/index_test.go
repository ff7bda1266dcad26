package pgvector

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

func newIndexWithMock(t *testing.T, opts ...Option) (*Index, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return New(db, 3, opts...), mock, func() { _ = db.Close() }
}

func item(id string, v ...float32) vector.Item {
	return vector.Item{ID: id, Vector: v, Metadata: document.Metadata{Source: document.SourceMinjust}}
}

func TestEnsureSchema_CreatesHNSWWhenEnabled(t *testing.T) {
	x, mock, done := newIndexWithMock(t, WithHNSW(HNSW{M: 16}))
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`embedding vector(3) NOT NULL`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`idx_registry_vectors_source`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := x.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsert_DuplicateWhenNoRowsAffected(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectExec(`INSERT INTO registry_vectors`).
		WithArgs("a", document.SourceMinjust, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := x.Insert(context.Background(), item("a", 1, 0, 0))
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsert_DimensionCheckedBeforeQuery(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	if err := x.Insert(context.Background(), item("a", 1, 0)); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertBatch_RollsBackOnDuplicate(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registry_vectors`).WithArgs("a", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO registry_vectors`).WithArgs("b", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := x.InsertBatch(context.Background(), []vector.Item{item("a", 1, 0, 0), item("b", 0, 1, 0)})
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectExec(`DELETE FROM registry_vectors`).WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := x.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch_FiltersAndOrders(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "similarity"}).
		AddRow("b", 0.9).
		AddRow("a", 0.9).
		AddRow("c", 0.2)
	mock.ExpectQuery(`SELECT id, 1 - \(embedding <=> \$1\) AS similarity`).
		WithArgs(sqlmock.AnyArg(), "", 5+tieSlack).
		WillReturnRows(rows)

	hits, err := x.Search(context.Background(), vector.Query{Vector: []float32{1, 0, 0}, K: 5, MinSimilarity: 0.3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[1].ID != "b" {
		t.Errorf("hits = %+v, want a, b", hits)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearch_StoreFailure(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT id`).WillReturnError(errors.New("connection refused"))

	_, err := x.Search(context.Background(), vector.Query{Vector: []float32{1, 0, 0}, K: 1})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLenAndContains(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM registry_vectors`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	n, err := x.Len(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("Len = %d, %v", n, err)
	}
	ok, err := x.Contains(context.Background(), "a")
	if err != nil || !ok {
		t.Fatalf("Contains = %v, %v", ok, err)
	}
}

func TestRebuild_Reindexes(t *testing.T) {
	x, mock, done := newIndexWithMock(t)
	defer done()

	mock.ExpectExec(`REINDEX TABLE registry_vectors`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := x.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
