// Package decision classifies a query from ranked registry evidence.
package decision

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/registry"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
)

// Policy is a stateless decision function over evidence. Safe for concurrent use.
type Policy struct {
	cfg Config
}

// New creates a policy. Invalid configs are rejected.
func New(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decision config: %w", err)
	}
	return &Policy{cfg: cfg}, nil
}

// Config returns the active configuration.
func (p *Policy) Config() Config { return p.cfg }

// NeedsCorroboration reports whether a generation judgment could change the verdict,
// i.e. the top score falls in the uncertain band.
func (p *Policy) NeedsCorroboration(evidence []result.Result) bool {
	if len(evidence) == 0 {
		return false
	}
	top := evidence[0].Score()
	return top >= p.cfg.MinSimilarity && top < p.cfg.HighConfidence
}

// Decide classifies query. generation is the optional judgment text; nil means none.
// Corroboration may promote UNCERTAIN to MATCHED but never raises confidence above the
// top score and never demotes a high-confidence match.
func (p *Policy) Decide(query string, evidence []result.Result, generation *string) (verdict.Verdict, error) {
	if err := checkEvidence(evidence); err != nil {
		if p.cfg.Strict {
			panic(err)
		}
		return verdict.Verdict{}, err
	}

	if len(evidence) == 0 {
		return verdict.NewNotMatched(1-p.cfg.UncertaintyFloor, notFoundExplanation(query), verdict.CorroborationNone), nil
	}

	top := evidence[0]
	score := top.Score()
	corroboration := verdict.CorroborationNone
	if generation != nil {
		corroboration = p.cfg.Markers.Read(*generation)
	}

	switch {
	case score >= p.cfg.HighConfidence:
		return verdict.NewMatched(top, score, p.matchExplanation(top), corroboration), nil
	case score >= p.cfg.MinSimilarity:
		if corroboration == verdict.CorroborationAffirmed {
			return verdict.NewMatched(top, score, p.matchExplanation(top), corroboration), nil
		}
		return verdict.NewUncertain(score, p.uncertainExplanation(top), corroboration), nil
	default:
		return verdict.NewNotMatched(1-p.cfg.UncertaintyFloor, notFoundExplanation(query), corroboration), nil
	}
}

// checkEvidence enforces ranks 1..N and descending scores. Scores within
// vector.TieEpsilon count as tied, since ties are ordered by document id.
func checkEvidence(evidence []result.Result) error {
	for i, r := range evidence {
		if r.Rank() != i+1 {
			return domain.NewPreconditionViolation(i, fmt.Sprintf("rank %d, want %d", r.Rank(), i+1))
		}
		if i > 0 && r.Score() > evidence[i-1].Score()+vector.TieEpsilon {
			return domain.NewPreconditionViolation(i, "evidence not sorted by score")
		}
	}
	return nil
}

func notFoundExplanation(query string) string {
	return fmt.Sprintf("Запрос %q не совпадает ни с одной записью реестра.", registry.Truncate(query, 80))
}

func (p *Policy) uncertainExplanation(top result.Result) string {
	return fmt.Sprintf("Частичное совпадение (сходство %.2f) с записью: %s. Требуется ручная проверка.",
		top.Score(), p.describe(top))
}

func (p *Policy) matchExplanation(top result.Result) string {
	return fmt.Sprintf("Совпадение с записью реестра: %s.", p.describe(top))
}

// describe lists only the metadata fields that are present.
func (p *Policy) describe(r result.Result) string {
	md := r.Metadata()
	name := md.MaterialName
	if name == "" {
		name = registry.Truncate(registry.Normalize(r.Content(), false), p.cfg.ExcerptRunes)
	}
	parts := []string{name}
	if md.RegistryNumber != "" {
		parts = append(parts, "№ "+md.RegistryNumber)
	}
	if md.HasDecisionDate() {
		parts = append(parts, "решение от "+md.DecisionDate.Format(document.DateLayout))
	}
	if md.CourtName != "" {
		parts = append(parts, md.CourtName)
	}
	if md.Reason != "" {
		parts = append(parts, "основание: "+md.Reason)
	}
	return strings.Join(parts, "; ")
}
