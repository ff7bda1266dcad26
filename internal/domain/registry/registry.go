// Package registry holds text handling specific to banned-materials registry entries.
package registry

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/regcheck/internal/domain/document"
)

// Normalize trims, folds runs of whitespace into single spaces and optionally lower-cases.
// Ingestion and queries must use the same settings so embeddings stay comparable.
func Normalize(text string, lower bool) string {
	out := strings.Join(strings.Fields(text), " ")
	if lower {
		out = strings.ToLower(out)
	}
	return out
}

var (
	datePattern  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	quotePattern = regexp.MustCompile(`«([^»]+)»`)

	// Ordered from most to least specific: the first hit wins.
	courtPatterns = compileAll(
		`(?i)Верховн\S* суд\S*`,
		`(?i)Московск\S* городск\S* суд\S*`,
		`(?i)Санкт-Петербургск\S* городск\S* суд\S*`,
		`(?i)\S+ областн\S* суд\S*`,
		`(?i)\S+ краев\S* суд\S*`,
		`(?i)\S+ республиканск\S* суд\S*`,
		`(?i)\S+ районн\S* суд\S*`,
		`(?i)\S+ городск\S* суд\S*`,
	)

	materialPatterns = compileAll(
		`(?i)печатная книга[^,]*`,
		`(?i)книга[^,]*`,
		`(?i)статья[^,]*`,
		`(?i)видео[^,]*`,
		`(?i)аудио[^,]*`,
		`(?i)издание[^,]*`,
		`(?i)брошюра[^,]*`,
		`(?i)печатный материал[^,]*`,
		`(?i)материал[^,]*`,
	)
)

const (
	fallbackWords    = 8
	fallbackMaxRunes = 50
)

// Extracted holds fields recovered from free-form entry text. Empty fields were not found.
type Extracted struct {
	DecisionDate time.Time
	CourtName    string
	MaterialName string
}

// Extract recovers the decision date, court name and material name from an entry text.
func Extract(text string) Extracted {
	var out Extracted

	if m := datePattern.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2.1.2006", m[1]+"."+m[2]+"."+m[3]); err == nil {
			out.DecisionDate = t
		}
	}

	for _, re := range courtPatterns {
		if m := re.FindString(text); m != "" {
			out.CourtName = strings.TrimRight(m, ".,;")
			break
		}
	}

	out.MaterialName = extractMaterial(text)
	return out
}

func extractMaterial(text string) string {
	// Quoted titles are the most reliable; take the longest.
	var longest string
	for _, m := range quotePattern.FindAllStringSubmatch(text, -1) {
		if utf8.RuneCountInString(m[1]) > utf8.RuneCountInString(longest) {
			longest = m[1]
		}
	}
	if longest != "" {
		return "«" + longest + "»"
	}

	for _, re := range materialPatterns {
		if m := strings.TrimSpace(re.FindString(text)); m != "" {
			return m
		}
	}

	head, _, _ := strings.Cut(text, ",")
	words := strings.Fields(head)
	if len(words) > fallbackWords {
		words = words[:fallbackWords]
	}
	return Truncate(strings.Join(words, " "), fallbackMaxRunes)
}

// Enrich fills absent metadata fields from the entry text. Present fields are never overwritten.
func Enrich(md document.Metadata, text string) document.Metadata {
	out := md.Clone()
	ex := Extract(text)
	if !out.HasDecisionDate() {
		out.DecisionDate = ex.DecisionDate
	}
	if out.CourtName == "" {
		out.CourtName = ex.CourtName
	}
	if out.MaterialName == "" {
		out.MaterialName = ex.MaterialName
	}
	return out
}

// Truncate cuts s to at most n runes, appending "..." when something was dropped.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// HasDate reports whether a decision date was found.
func (e Extracted) HasDate() bool { return !e.DecisionDate.IsZero() }
