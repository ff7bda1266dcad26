// Package vector holds the similarity math shared by every index backend.
package vector

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/kailas-cloud/regcheck/internal/domain/document"
)

// TieEpsilon is the similarity difference below which two hits are ordered by id.
const TieEpsilon = 1e-6

// Item is a single (id, vector, metadata) triple stored in an index.
type Item struct {
	ID       string
	Vector   []float32
	Metadata document.Metadata
}

// Hit is a single index match.
type Hit struct {
	ID         string
	Similarity float64
}

// Query is the input of a k-nearest-neighbor search.
type Query struct {
	Vector        []float32
	K             int
	MinSimilarity float64
	// Source restricts the search to entries of one provenance. Empty means all.
	Source string
}

// Normalize returns an L2-normalized copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) * inv)
	}
	return out
}

// Dot returns the inner product of a and b. Both must have the same length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) float64 {
	return Dot(Normalize(a), Normalize(b))
}

// Compare orders hits by similarity descending; near-equal scores fall back to ascending id.
func Compare(a, b Hit) int {
	if math.Abs(a.Similarity-b.Similarity) > TieEpsilon {
		if a.Similarity > b.Similarity {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort orders hits deterministically in place.
func Sort(hits []Hit) {
	slices.SortStableFunc(hits, Compare)
}

// Select keeps hits with similarity >= minSimilarity, sorts them and truncates to k.
func Select(hits []Hit, k int, minSimilarity float64) []Hit {
	if k <= 0 {
		return nil
	}
	out := make([]Hit, 0, min(len(hits), k))
	for _, h := range hits {
		if h.Similarity >= minSimilarity {
			out = append(out, h)
		}
	}
	Sort(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// CheckDimension returns an error when len(v) != dim.
func CheckDimension(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("got %d, want %d", len(v), dim)
	}
	return nil
}

// Bytes serializes v as little-endian float32 (the FT.SEARCH FLOAT32 blob layout).
func Bytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// FromBytes deserializes a little-endian float32 blob.
func FromBytes(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob: len=%d (not multiple of 4)", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
