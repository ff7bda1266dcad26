// Package verdict holds the immutable outcome of a registry check.
package verdict

import (
	"math"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
)

// Classification is the tagged outcome of a check.
type Classification string

// Classification values.
const (
	Matched    Classification = "MATCHED"
	NotMatched Classification = "NOT_MATCHED"
	Uncertain  Classification = "UNCERTAIN"
)

// Corroboration records how the generation judgment was read.
type Corroboration string

// Corroboration values.
const (
	CorroborationNone      Corroboration = "none"
	CorroborationAffirmed  Corroboration = "affirmed"
	CorroborationNegated   Corroboration = "negated"
	CorroborationAmbiguous Corroboration = "ambiguous"
)

// Verdict is the result of retrieval plus decision. Construct via NewMatched / NewNotMatched / NewUncertain.
type Verdict struct {
	classification Classification
	confidence     float64
	matched        result.Result
	hasMatch       bool
	explanation    string
	corroboration  Corroboration
	processingTime time.Duration
}

// NewMatched creates a MATCHED verdict carrying the matched evidence.
func NewMatched(doc result.Result, confidence float64, explanation string, c Corroboration) Verdict {
	return Verdict{
		classification: Matched,
		confidence:     clamp(confidence),
		matched:        doc,
		hasMatch:       true,
		explanation:    explanation,
		corroboration:  c,
	}
}

// NewNotMatched creates a NOT_MATCHED verdict.
func NewNotMatched(confidence float64, explanation string, c Corroboration) Verdict {
	return Verdict{classification: NotMatched, confidence: clamp(confidence), explanation: explanation, corroboration: c}
}

// NewUncertain creates an UNCERTAIN verdict.
func NewUncertain(confidence float64, explanation string, c Corroboration) Verdict {
	return Verdict{classification: Uncertain, confidence: clamp(confidence), explanation: explanation, corroboration: c}
}

// Classification returns the outcome.
func (v Verdict) Classification() Classification { return v.classification }

// Confidence returns a value in [0, 1].
func (v Verdict) Confidence() float64 { return v.confidence }

// MatchedDocument returns the matched evidence; ok is false unless the verdict is MATCHED.
func (v Verdict) MatchedDocument() (result.Result, bool) { return v.matched, v.hasMatch }

// Explanation returns the human-readable summary of evidence fields.
func (v Verdict) Explanation() string { return v.explanation }

// Corroboration returns how the generation judgment influenced the verdict.
func (v Verdict) Corroboration() Corroboration { return v.corroboration }

// ProcessingTime returns the wall-clock time of the full pipeline.
func (v Verdict) ProcessingTime() time.Duration { return v.processingTime }

// WithProcessingTime returns a copy stamped with d.
func (v Verdict) WithProcessingTime(d time.Duration) Verdict {
	v.processingTime = d
	return v
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
