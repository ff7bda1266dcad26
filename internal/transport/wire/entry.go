// Package wire holds the JSON shapes shared by the HTTP API, the NATS consumer and regload.
package wire

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain"
	dombatch "github.com/kailas-cloud/regcheck/internal/domain/batch"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/usecase/ingest"
)

// Entry is one registry record on the wire.
type Entry struct {
	ID             string            `json:"id,omitempty"`
	Content        string            `json:"content"`
	Source         string            `json:"source,omitempty"`
	RegistryNumber string            `json:"registry_number,omitempty"`
	DecisionDate   string            `json:"decision_date,omitempty"`
	CourtName      string            `json:"court_name,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	MaterialName   string            `json:"material_name,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// ToIngest converts the wire entry. A malformed decision date is rejected.
func (e Entry) ToIngest() (ingest.Entry, error) {
	md := document.Metadata{
		Source:         e.Source,
		RegistryNumber: e.RegistryNumber,
		CourtName:      e.CourtName,
		Reason:         e.Reason,
		MaterialName:   e.MaterialName,
		Extra:          e.Extra,
	}
	if e.DecisionDate != "" {
		t, err := time.Parse(document.DateLayout, e.DecisionDate)
		if err != nil {
			return ingest.Entry{}, fmt.Errorf("entry %q: decision_date must be YYYY-MM-DD: %w",
				e.ID, domain.ErrInvalidDocument)
		}
		md.DecisionDate = t
	}
	return ingest.Entry{ID: e.ID, Content: e.Content, Metadata: md}, nil
}

// ToIngestAll converts a batch, stopping at the first malformed entry.
func ToIngestAll(entries []Entry) ([]ingest.Entry, error) {
	out := make([]ingest.Entry, len(entries))
	for i, e := range entries {
		ie, err := e.ToIngest()
		if err != nil {
			return nil, err
		}
		out[i] = ie
	}
	return out, nil
}

// Metadata is the provenance block of a returned document.
type Metadata struct {
	Source         string            `json:"source,omitempty"`
	RegistryNumber string            `json:"registry_number,omitempty"`
	DecisionDate   string            `json:"decision_date,omitempty"`
	CourtName      string            `json:"court_name,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	MaterialName   string            `json:"material_name,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// FromMetadata renders domain metadata. Absent fields are omitted.
func FromMetadata(md document.Metadata) Metadata {
	out := Metadata{
		Source:         md.Source,
		RegistryNumber: md.RegistryNumber,
		CourtName:      md.CourtName,
		Reason:         md.Reason,
		MaterialName:   md.MaterialName,
		Extra:          md.Extra,
	}
	if md.HasDecisionDate() {
		out.DecisionDate = md.DecisionDate.Format(document.DateLayout)
	}
	return out
}

// UpsertRequest is the body of PUT /v1/documents and the registry.entries.upsert payload.
type UpsertRequest struct {
	Documents []Entry `json:"documents"`
}

// RetractRequest is the body of POST /v1/documents/retract and the registry.entries.retract payload.
type RetractRequest struct {
	IDs []string `json:"ids"`
}

// ItemError describes a failed batch item.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchItem is one per-entry outcome.
type BatchItem struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	Action string     `json:"action,omitempty"`
	Error  *ItemError `json:"error,omitempty"`
}

// BatchResponse reports a batch write.
type BatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// FromBatch renders batch results. code maps an item error to its wire code.
func FromBatch(results []dombatch.Result, code func(error) (string, string)) BatchResponse {
	sum := dombatch.Summarize(results)
	resp := BatchResponse{
		Items:     make([]BatchItem, len(results)),
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
	}
	for i, r := range results {
		item := BatchItem{ID: r.ID(), Status: string(r.Status()), Action: string(r.Action())}
		if r.Err() != nil {
			c, msg := code(r.Err())
			item.Error = &ItemError{Code: c, Message: msg}
		}
		resp.Items[i] = item
	}
	return resp
}
