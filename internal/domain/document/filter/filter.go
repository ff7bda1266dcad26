// Package filter holds Document Store listing predicates.
package filter

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
)

// Filter selects documents by provenance and decision date. Zero fields do not constrain.
type Filter struct {
	Source string
	// From and To bound the decision date, both inclusive.
	From  time.Time
	To    time.Time
	Limit int
}

// Validate rejects inverted date ranges and negative limits.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("date range start %s is after end %s: %w",
			f.From.Format(document.DateLayout), f.To.Format(document.DateLayout), domain.ErrInvalidQuery)
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %w", domain.ErrInvalidQuery)
	}
	return nil
}

// HasDateRange reports whether either date bound is set.
func (f Filter) HasDateRange() bool { return !f.From.IsZero() || !f.To.IsZero() }

// Matches reports whether doc satisfies every set predicate.
// Documents without a decision date never match a date range.
func (f Filter) Matches(doc *document.Document) bool {
	md := doc.Metadata()
	if f.Source != "" && md.Source != f.Source {
		return false
	}
	if !f.HasDateRange() {
		return true
	}
	if !md.HasDecisionDate() {
		return false
	}
	day := truncateDay(md.DecisionDate)
	if !f.From.IsZero() && day.Before(truncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(truncateDay(f.To)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
