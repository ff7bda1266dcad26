package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_RegistrySchema(t *testing.T) {
	idx := NewIndex("regcheck:vec:idx").
		Prefix("regcheck:vec:").
		Tag("source").
		Vector("vector", 384, VectorParams{}).
		MustBuild()

	if len(idx.Fields) != 2 {
		t.Fatalf("fields count = %d, want 2", len(idx.Fields))
	}
	if f := idx.Fields[0]; f.Type != IndexFieldTag || !f.TagCaseSensitive {
		t.Errorf("field[0] = %+v, want case-sensitive TAG", f)
	}
	v := idx.Fields[1]
	if v.Vector.Algorithm != VectorFlat {
		t.Errorf("default algo = %q, want FLAT", v.Vector.Algorithm)
	}
	if v.Vector.Distance != DistanceCosine {
		t.Errorf("default distance = %q, want COSINE", v.Vector.Distance)
	}
	if v.VectorDim != 384 {
		t.Errorf("dim = %d, want 384", v.VectorDim)
	}
}

func TestIndexBuilder_HNSW(t *testing.T) {
	idx := NewIndex("hnsw-idx").
		Vector("vec", 768, VectorParams{Algorithm: VectorHNSW, M: 32, EFConstruction: 400}).
		MustBuild()

	p := idx.Fields[0].Vector
	if p.Algorithm != VectorHNSW || p.M != 32 || p.EFConstruction != 400 {
		t.Errorf("params = %+v", p)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Tag("f")},
		{"invalid name", NewIndex("bad name!").Tag("f")},
		{"no fields", NewIndex("idx")},
		{"zero dim", NewIndex("idx").Vector("v", 0, VectorParams{})},
		{"duplicate", NewIndex("idx").Tag("f").Tag("f")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIndexBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewIndex("").MustBuild()
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("idx").
		Prefix("p:").
		Tag("source").
		Vector("vector", 3, VectorParams{}).
		MustBuild()

	s := idx.String()
	for _, want := range []string{"FT.CREATE idx ON HASH", "PREFIX 1 p:", "source TAG", "VECTOR FLAT DIM 3 COSINE"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestParseVectorAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    VectorAlgorithm
		wantErr bool
	}{
		{"", VectorFlat, false},
		{"flat", VectorFlat, false},
		{"hnsw", VectorHNSW, false},
		{"HNSW", VectorHNSW, false},
		{"ivf", "", true},
	}
	for _, tc := range tests {
		got, err := ParseVectorAlgorithm(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseVectorAlgorithm(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseVectorAlgorithm(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	if !IsValidIdentifier("regcheck:vec_idx-1") {
		t.Error("expected valid")
	}
	if IsValidIdentifier("") || IsValidIdentifier("a b") {
		t.Error("expected invalid")
	}
}
