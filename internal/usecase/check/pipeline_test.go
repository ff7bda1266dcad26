package check

import (
	"context"
	"testing"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
	docmem "github.com/kailas-cloud/regcheck/internal/repository/document/memory"
	idxmem "github.com/kailas-cloud/regcheck/internal/repository/index/memory"
	"github.com/kailas-cloud/regcheck/internal/usecase/decision"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

type fixedEmbedder []float32

func (e fixedEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: e}, nil
}

func TestCheck_NearDuplicateEntriesThroughMemoryBackends(t *testing.T) {
	ctx := context.Background()
	idx, err := idxmem.New(2)
	if err != nil {
		t.Fatalf("idxmem.New: %v", err)
	}
	store := docmem.New()
	md := document.Metadata{Source: document.SourceMinjust, CourtName: "Supreme Court"}
	for id, vec := range map[string][]float32{"a": {1, 0.001}, "b": {1, 0}} {
		doc, err := document.New(id, "entry "+id, md)
		if err != nil {
			t.Fatalf("document.New: %v", err)
		}
		if _, err := store.Put(ctx, doc); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := idx.Insert(ctx, vector.Item{ID: id, Vector: vec, Metadata: md}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	r := retrieval.New(fixedEmbedder{1, 0}, idx, store)
	p, err := decision.New(decision.DefaultConfig())
	if err != nil {
		t.Fatalf("decision.New: %v", err)
	}
	s := New(r, p, nil, Config{GenerationMode: GenerationOff}, nil)

	evidence, err := r.Retrieve(ctx, "entry", retrieval.DefaultOptions())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(evidence) != 2 || evidence[0].DocumentID() != "a" || evidence[0].Score() >= evidence[1].Score() {
		t.Fatalf("expected a near tie with a first, got %d results", len(evidence))
	}

	v, err := s.Check(ctx, "entry", 0)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Classification() != verdict.Matched {
		t.Fatalf("classification = %s", v.Classification())
	}
	if doc, ok := v.MatchedDocument(); !ok || doc.DocumentID() != "a" {
		t.Errorf("matched = %v %v", doc.DocumentID(), ok)
	}
}
