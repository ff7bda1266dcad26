package vector

import (
	"math"
	"testing"
)

func TestNormalize_UnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v, want [0.6 0.8]", v)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for _, f := range v {
		if f != 0 {
			t.Fatalf("expected zeros, got %v", v)
		}
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []float32{2, 0}
	_ = Normalize(in)
	if in[0] != 2 {
		t.Errorf("input mutated: %v", in)
	}
}

func TestCosine_ScaleInvariant(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{10, 20, 30}
	if got := Cosine(a, b); math.Abs(got-1) > 1e-6 {
		t.Errorf("Cosine = %f, want 1", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-6 {
		t.Errorf("Cosine opposite = %f, want -1", got)
	}
}

func TestSort_TieBreakByID(t *testing.T) {
	hits := []Hit{
		{ID: "c", Similarity: 0.5},
		{ID: "b", Similarity: 0.9},
		{ID: "a", Similarity: 0.5 + 1e-8},
		{ID: "d", Similarity: 0.7},
	}
	Sort(hits)

	want := []string{"b", "d", "a", "c"}
	for i, id := range want {
		if hits[i].ID != id {
			t.Fatalf("position %d = %s, want %s (%v)", i, hits[i].ID, id, hits)
		}
	}
}

func TestSelect_ThresholdAndLimit(t *testing.T) {
	hits := []Hit{
		{ID: "a", Similarity: 0.2},
		{ID: "b", Similarity: 0.8},
		{ID: "c", Similarity: 0.31},
		{ID: "d", Similarity: 0.6},
	}

	got := Select(hits, 2, 0.3)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "d" {
		t.Errorf("Select = %v", got)
	}

	if got := Select(hits, 10, 0.9); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
	if got := Select(hits, 0, 0); got != nil {
		t.Errorf("expected nil for k=0, got %v", got)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3}
	out, err := FromBytes(Bytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("round trip mismatch: %v != %v", in, out)
		}
	}

	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestCheckDimension(t *testing.T) {
	if err := CheckDimension([]float32{1, 2}, 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckDimension([]float32{1}, 2); err == nil {
		t.Error("expected error")
	}
}
