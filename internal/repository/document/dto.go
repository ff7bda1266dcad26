package document

import (
	"encoding/json"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// Hash field names.
const (
	fContent        = "content"
	fSource         = "source"
	fRegistryNumber = "registry_number"
	fDecisionDate   = "decision_date"
	fCourtName      = "court_name"
	fReason         = "reason"
	fMaterialName   = "material_name"
	fExtra          = "extra"
	fEmbedding      = "embedding"
	fIngestedAt     = "ingested_at"
)

// buildHashFields flattens a Document for HSET. Every field is always written so an
// overwrite never leaves stale values behind.
func buildHashFields(doc *document.Document) map[string]string {
	md := doc.Metadata()
	m := map[string]string{
		fContent:        doc.Content(),
		fSource:         md.Source,
		fRegistryNumber: md.RegistryNumber,
		fDecisionDate:   "",
		fCourtName:      md.CourtName,
		fReason:         md.Reason,
		fMaterialName:   md.MaterialName,
		fExtra:          "",
		fEmbedding:      string(vector.Bytes(doc.Embedding())),
		fIngestedAt:     doc.IngestedAt().UTC().Format(time.RFC3339Nano),
	}
	if md.HasDecisionDate() {
		m[fDecisionDate] = md.DecisionDate.Format(document.DateLayout)
	}
	if len(md.Extra) > 0 {
		if data, err := json.Marshal(md.Extra); err == nil {
			m[fExtra] = string(data)
		}
	}
	return m
}

// parseHashFields rebuilds a Document from HGETALL output.
// Unparseable optional fields are dropped rather than failing the read.
func parseHashFields(id string, m map[string]string) document.Document {
	md := document.Metadata{
		Source:         m[fSource],
		RegistryNumber: m[fRegistryNumber],
		CourtName:      m[fCourtName],
		Reason:         m[fReason],
		MaterialName:   m[fMaterialName],
	}
	if s := m[fDecisionDate]; s != "" {
		if t, err := time.Parse(document.DateLayout, s); err == nil {
			md.DecisionDate = t
		}
	}
	if s := m[fExtra]; s != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(s), &extra); err == nil {
			md.Extra = extra
		}
	}

	var embedding []float32
	if s := m[fEmbedding]; s != "" {
		if v, err := vector.FromBytes([]byte(s)); err == nil {
			embedding = v
		}
	}

	var ingestedAt time.Time
	if s := m[fIngestedAt]; s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ingestedAt = t
		}
	}

	return document.Reconstruct(id, m[fContent], md, embedding, ingestedAt)
}
