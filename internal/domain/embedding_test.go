package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = append(s.got, text)
	return s.result, s.err
}

type stubBatchEmbedder struct {
	stubEmbedder
	batch    BatchEmbeddingResult
	batchErr error
	calls    int
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	s.calls++
	s.got = append(s.got, texts...)
	return s.batch, s.batchErr
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "query: ")

	result, err := emb.Embed(context.Background(), "патриот")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.got) != 1 || inner.got[0] != "query: патриот" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewInstructionEmbedder(&stubEmbedder{err: innerErr}, "query: ")

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstructionEmbedder_BatchUsesNativeBatch(t *testing.T) {
	inner := &stubBatchEmbedder{batch: BatchEmbeddingResult{
		Embeddings: [][]float32{{1}, {2}},
	}}
	emb := NewInstructionEmbedder(inner, "passage: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected one batch call, got %d", inner.calls)
	}
	if inner.got[0] != "passage: a" || inner.got[1] != "passage: b" {
		t.Errorf("unexpected texts: %q", inner.got)
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
}

func TestEmbedAll_FallbackSumsUsage(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{1, 0}, PromptTokens: 2, TotalTokens: 3}}

	res, err := EmbedAll(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 6 || res.TotalTokens != 9 {
		t.Errorf("usage = %d/%d, want 6/9", res.PromptTokens, res.TotalTokens)
	}
}

func TestEmbedAll_BatchLengthMismatch(t *testing.T) {
	inner := &stubBatchEmbedder{batch: BatchEmbeddingResult{Embeddings: [][]float32{{1}}}}

	_, err := EmbedAll(context.Background(), inner, []string{"a", "b"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedAll_Empty(t *testing.T) {
	inner := &stubEmbedder{}
	res, err := EmbedAll(context.Background(), inner, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 || len(inner.got) != 0 {
		t.Errorf("expected no calls for empty input")
	}
}

func TestContextError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"canceled", context.Canceled, ErrCanceled},
		{"already mapped", ErrTimeout, ErrTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContextError(tc.in); !errors.Is(got, tc.want) {
				t.Errorf("ContextError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	other := errors.New("boom")
	if got := ContextError(other); got != other {
		t.Errorf("expected passthrough, got %v", got)
	}
	if ContextError(nil) != nil {
		t.Error("expected nil for nil")
	}
}

func TestPreconditionError_Unwrap(t *testing.T) {
	err := NewPreconditionViolation(2, "evidence not sorted")
	if !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected ErrPreconditionViolation, got %v", err)
	}
	var pe *PreconditionError
	if !errors.As(err, &pe) || pe.Index != 2 {
		t.Errorf("expected PreconditionError at 2, got %#v", err)
	}
}
