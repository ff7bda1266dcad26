package document

import (
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// MaxContentSize is the maximum registry entry size in bytes.
const MaxContentSize = 163840 // 160KB

// MaxIDLength is the maximum document id length.
const MaxIDLength = 256

// DateLayout is the wire layout of decision dates.
const DateLayout = "2006-01-02"

// SourceMinjust marks entries taken from the federal list of extremist materials.
const SourceMinjust = "minjust"

// Metadata holds registry provenance fields. Zero values mean "absent".
type Metadata struct {
	Source         string
	RegistryNumber string
	DecisionDate   time.Time
	CourtName      string
	Reason         string
	MaterialName   string
	Extra          map[string]string
}

// HasDecisionDate reports whether the decision date is known.
func (m Metadata) HasDecisionDate() bool { return !m.DecisionDate.IsZero() }

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	c := m
	c.Extra = maps.Clone(m.Extra)
	return c
}

// Document is the registry entry aggregate (immutable value object).
type Document struct {
	id         string
	content    string
	metadata   Metadata
	embedding  []float32
	ingestedAt time.Time
}

// New validates and creates a Document. An empty id is allowed: the store assigns one on Put.
func New(id, content string, md Metadata) (Document, error) {
	if id != "" {
		if err := ValidateID(id); err != nil {
			return Document{}, err
		}
	}
	if content == "" {
		return Document{}, fmt.Errorf("content is required: %w", domain.ErrInvalidDocument)
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes): %w", MaxContentSize, domain.ErrInvalidDocument)
	}

	return Document{id: id, content: content, metadata: md.Clone()}, nil
}

// ValidateID checks the id charset and length.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID is required: %w", domain.ErrInvalidDocument)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("document ID too long (max %d): %w", MaxIDLength, domain.ErrInvalidDocument)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("document ID %q has invalid characters: %w", id, domain.ErrInvalidDocument)
	}
	return nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, content string, md Metadata, embedding []float32, ingestedAt time.Time) Document {
	return Document{id: id, content: content, metadata: md, embedding: embedding, ingestedAt: ingestedAt}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Content returns the canonical registry entry text.
func (d *Document) Content() string { return d.content }

// Metadata returns the provenance fields.
func (d *Document) Metadata() Metadata { return d.metadata }

// Embedding returns the stored embedding vector, nil if not yet computed.
func (d *Document) Embedding() []float32 { return d.embedding }

// IngestedAt returns the ingestion timestamp.
func (d *Document) IngestedAt() time.Time { return d.ingestedAt }

// WithID returns a copy with the given id.
func (d *Document) WithID(id string) Document {
	c := *d
	c.id = id
	return c
}

// WithEmbedding returns a copy carrying the given embedding.
func (d *Document) WithEmbedding(v []float32) Document {
	c := *d
	c.embedding = v
	return c
}

// WithIngestedAt returns a copy stamped with t.
func (d *Document) WithIngestedAt(t time.Time) Document {
	c := *d
	c.ingestedAt = t
	return c
}
