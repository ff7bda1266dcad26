package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
	docmem "github.com/kailas-cloud/regcheck/internal/repository/document/memory"
	idxmem "github.com/kailas-cloud/regcheck/internal/repository/index/memory"
)

const testDim = 8

// hashEmbedder derives a deterministic vector from the text digest.
type hashEmbedder struct {
	dim        int
	err        error
	batchCalls int
	texts      int
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

func (e *hashEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.batchCalls++
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		v := make([]float32, e.dim)
		for j := range v {
			v[j] = float32(sum[j%len(sum)]) - 127.5
		}
		out[i] = v
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type fixture struct {
	svc   *Service
	store *docmem.Store
	index *idxmem.Index
	embed *hashEmbedder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	idx, err := idxmem.New(testDim)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	store := docmem.New()
	emb := &hashEmbedder{dim: testDim}
	return &fixture{
		svc:   New(store, idx, emb, opts...),
		store: store,
		index: idx,
		embed: emb,
	}
}

func (f *fixture) indexed(t *testing.T, id string) bool {
	t.Helper()
	ok, err := f.index.Contains(context.Background(), id)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	return ok
}

// flakyStore fails the next failPuts calls to Put.
type flakyStore struct {
	*docmem.Store
	failPuts int
}

func (s *flakyStore) Put(ctx context.Context, doc document.Document) (string, error) {
	if s.failPuts > 0 {
		s.failPuts--
		return "", errors.New("store write failed")
	}
	return s.Store.Put(ctx, doc)
}

// flakyIndex fails the next failInserts calls to Insert.
type flakyIndex struct {
	*idxmem.Index
	failInserts int
}

func (x *flakyIndex) Insert(ctx context.Context, item vector.Item) error {
	if x.failInserts > 0 {
		x.failInserts--
		return errors.New("index write failed")
	}
	return x.Index.Insert(ctx, item)
}
