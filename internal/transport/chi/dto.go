package chi

import (
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
	"github.com/kailas-cloud/regcheck/internal/transport/wire"
	checkuc "github.com/kailas-cloud/regcheck/internal/usecase/check"
)

type checkRequest struct {
	Query     string `json:"query"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

type evidenceItem struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Similarity float64       `json:"similarity"`
	Rank       int           `json:"rank"`
	Metadata   wire.Metadata `json:"metadata"`
}

type checkResponse struct {
	Classification   string        `json:"classification"`
	Confidence       float64       `json:"confidence"`
	Explanation      string        `json:"explanation"`
	Corroboration    string        `json:"corroboration"`
	MatchedDocument  *evidenceItem `json:"matched_document,omitempty"`
	ProcessingTimeMS float64       `json:"processing_time_ms"`
}

// undeterminedResponse is returned when a check fails. It is deliberately distinct from a
// NOT_MATCHED verdict body.
type undeterminedResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequest struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	Source        string   `json:"source,omitempty"`
}

type searchResponse struct {
	Items []evidenceItem `json:"items"`
	Total int            `json:"total"`
}

type statsResponse struct {
	Total               int64            `json:"total"`
	Failed              int64            `json:"failed"`
	ByClassification    map[string]int64 `json:"by_classification"`
	GenerationCalls     int64            `json:"generation_calls"`
	GenerationErrors    int64            `json:"generation_errors"`
	AverageProcessingMS float64          `json:"average_processing_ms"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	IndexSize int               `json:"index_size"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func evidenceToDTO(r *result.Result) evidenceItem {
	return evidenceItem{
		ID:         r.DocumentID(),
		Content:    r.Content(),
		Similarity: r.Score(),
		Rank:       r.Rank(),
		Metadata:   wire.FromMetadata(r.Metadata()),
	}
}

func verdictToDTO(v verdict.Verdict) checkResponse {
	resp := checkResponse{
		Classification:   string(v.Classification()),
		Confidence:       v.Confidence(),
		Explanation:      v.Explanation(),
		Corroboration:    string(v.Corroboration()),
		ProcessingTimeMS: float64(v.ProcessingTime().Microseconds()) / 1000,
	}
	if doc, ok := v.MatchedDocument(); ok {
		item := evidenceToDTO(&doc)
		resp.MatchedDocument = &item
	}
	return resp
}

func statsToDTO(s checkuc.Stats) statsResponse {
	by := make(map[string]int64, len(s.ByClassification))
	for k, v := range s.ByClassification {
		by[string(k)] = v
	}
	return statsResponse{
		Total:               s.Total,
		Failed:              s.Failed,
		ByClassification:    by,
		GenerationCalls:     s.GenerationCalls,
		GenerationErrors:    s.GenerationErrors,
		AverageProcessingMS: float64(s.AverageProcessing.Microseconds()) / 1000,
	}
}
