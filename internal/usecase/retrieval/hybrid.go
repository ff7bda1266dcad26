package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/document/filter"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/domain/vector"
)

// Mode selects how retrieval gathers candidates.
type Mode string

// Retrieval modes.
const (
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// DefaultExactThreshold is the keyword score above which semantic search is skipped.
const DefaultExactThreshold = 0.5

// ParseMode maps a config value to a Mode. Empty means semantic.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSemantic:
		return ModeSemantic, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown retrieval mode %q", s)
	}
}

// WithKeywordSearch turns on hybrid retrieval. Every query also scores stored entries
// by the share of its keywords they contain. When some entry scores above exactThreshold
// those keyword hits are the whole answer; otherwise they are merged with the vector hits,
// keeping the best score per document.
func WithKeywordSearch(docs DocumentLister, exactThreshold float64) Option {
	return func(s *Service) {
		s.keywords = docs
		s.exactThreshold = exactThreshold
		if s.exactThreshold <= 0 {
			s.exactThreshold = DefaultExactThreshold
		}
	}
}

func (s *Service) hybrid(ctx context.Context, q string, opts Options) ([]result.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ContextError(err)
	}
	exact, loaded, err := s.keywordHits(ctx, q, opts)
	if err != nil {
		return nil, err
	}

	strong := make([]vector.Hit, 0, len(exact))
	for _, h := range exact {
		if h.Similarity > s.exactThreshold {
			strong = append(strong, h)
		}
	}
	if len(strong) > 0 {
		return s.hydrate(ctx, vector.Select(strong, opts.TopK, opts.MinSimilarity), loaded)
	}

	semantic, err := s.semantic(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, vector.Select(mergeBest(exact, semantic), opts.TopK, opts.MinSimilarity), loaded)
}

// keywordHits scans the store and returns the top keyword hits with the documents it read.
func (s *Service) keywordHits(ctx context.Context, q string, opts Options) ([]vector.Hit, map[string]document.Document, error) {
	words := keywords(q)
	if len(words) == 0 {
		return nil, nil, nil
	}

	var (
		hits   []vector.Hit
		loaded = map[string]document.Document{}
	)
	for doc, err := range s.keywords.List(ctx, filter.Filter{Source: opts.Source}) {
		if err != nil {
			return nil, nil, fmt.Errorf("keyword scan: %w", domain.ContextError(err))
		}
		score := keywordScore(words, strings.ToLower(doc.Content()))
		if score <= 0 {
			continue
		}
		hits = append(hits, vector.Hit{ID: doc.ID(), Similarity: score})
		loaded[doc.ID()] = doc
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, domain.ContextError(err)
	}

	hits = vector.Select(hits, opts.TopK, -1)
	kept := make(map[string]document.Document, len(hits))
	for _, h := range hits {
		kept[h.ID] = loaded[h.ID]
	}
	return hits, kept, nil
}

// mergeBest unions two hit lists, keeping the higher similarity for a repeated id.
func mergeBest(a, b []vector.Hit) []vector.Hit {
	best := make(map[string]int, len(a)+len(b))
	out := make([]vector.Hit, 0, len(a)+len(b))
	for _, list := range [][]vector.Hit{a, b} {
		for _, h := range list {
			if i, ok := best[h.ID]; ok {
				if h.Similarity > out[i].Similarity {
					out[i].Similarity = h.Similarity
				}
				continue
			}
			best[h.ID] = len(out)
			out = append(out, h)
		}
	}
	return out
}

var stopWords = map[string]struct{}{
	"и": {}, "в": {}, "на": {}, "с": {}, "по": {}, "для": {}, "от": {}, "до": {}, "из": {}, "за": {},
	"о": {}, "об": {}, "а": {}, "но": {}, "или": {}, "что": {}, "как": {}, "где": {}, "когда": {},
}

// keywords lower-cases q and keeps words longer than two runes that are not stop words.
func keywords(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, w := range fields {
		if _, stop := stopWords[w]; stop || utf8.RuneCountInString(w) <= 2 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// keywordScore is the fraction of words found as substrings of text.
func keywordScore(words []string, text string) float64 {
	if len(words) == 0 {
		return 0
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}
