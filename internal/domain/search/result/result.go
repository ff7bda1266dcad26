package result

import "github.com/kailas-cloud/regcheck/internal/domain/document"

// Result is a single ranked piece of evidence (transient, never persisted).
type Result struct {
	documentID string
	content    string
	metadata   document.Metadata
	score      float64
	rank       int
}

// New creates a search result. rank is 1-based.
func New(documentID, content string, md document.Metadata, score float64, rank int) Result {
	return Result{documentID: documentID, content: content, metadata: md, score: score, rank: rank}
}

// FromDocument builds a result from a hydrated document.
func FromDocument(doc *document.Document, score float64, rank int) Result {
	return New(doc.ID(), doc.Content(), doc.Metadata(), score, rank)
}

// DocumentID returns the matched document identifier.
func (r Result) DocumentID() string { return r.documentID }

// Content returns the matched registry entry text.
func (r Result) Content() string { return r.content }

// Metadata returns the matched entry provenance.
func (r Result) Metadata() document.Metadata { return r.metadata }

// Score returns the cosine similarity in [-1, 1].
func (r Result) Score() float64 { return r.score }

// Rank returns the 1-based position in the evidence list.
func (r Result) Rank() int { return r.rank }

// WithRank returns a copy with the given rank.
func (r Result) WithRank(rank int) Result {
	r.rank = rank
	return r
}
