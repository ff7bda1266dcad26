package db

// TagFilter restricts a KNN query to hashes whose TAG field equals Value.
type TagFilter struct {
	Field string
	Value string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "vector"
	Filters      []TagFilter
	Vector       []float32
	K            int
	EFRuntime    int // HNSW only; 0 keeps the server default
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hash hit from a search.
// Score is cosine similarity (1 - distance), so it may be negative.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
