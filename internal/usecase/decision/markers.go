package decision

import (
	"strings"

	"github.com/kailas-cloud/regcheck/internal/domain/verdict"
)

// Markers are the keyword tables used to read a generation judgment.
// Matching is case-insensitive substring search over the generation text.
type Markers struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// DefaultMarkers returns the Russian registry vocabulary plus English equivalents.
func DefaultMarkers() Markers {
	return Markers{
		Positive: []string{
			"запрещ",
			"признан экстремистским",
			"признана экстремистской",
			"признано экстремистским",
			"включен в реестр",
			"включена в реестр",
			"внесен в список",
			"banned",
			"recognized as extremist",
			"listed in the registry",
			"included in the registry",
		},
		Negative: []string{
			"не найден",
			"не признан экстремистским",
			"не признана экстремистской",
			"не включен",
			"не запрещ",
			"разрешен",
			"not found",
			"not banned",
			"permitted",
			"not recognized as extremist",
			"not listed",
			"not included",
		},
	}
}

// Read classifies text. Negative markers are matched first and their spans masked, so a
// negated phrase ("не признан экстремистским") cannot also count as its positive part.
func (m Markers) Read(text string) verdict.Corroboration {
	if strings.TrimSpace(text) == "" {
		return verdict.CorroborationNone
	}
	masked := []rune(strings.ToLower(text))

	negative := false
	for _, marker := range m.Negative {
		if maskAll(masked, []rune(strings.ToLower(marker))) {
			negative = true
		}
	}

	positive := false
	rest := string(masked)
	for _, marker := range m.Positive {
		if marker != "" && strings.Contains(rest, strings.ToLower(marker)) {
			positive = true
			break
		}
	}

	switch {
	case positive && !negative:
		return verdict.CorroborationAffirmed
	case negative && !positive:
		return verdict.CorroborationNegated
	default:
		return verdict.CorroborationAmbiguous
	}
}

// maskAll blanks every occurrence of marker in text and reports whether any was found.
func maskAll(text, marker []rune) bool {
	if len(marker) == 0 || len(marker) > len(text) {
		return false
	}
	found := false
	for i := 0; i+len(marker) <= len(text); i++ {
		if !runesEqual(text[i:i+len(marker)], marker) {
			continue
		}
		for j := i; j < i+len(marker); j++ {
			text[j] = ' '
		}
		found = true
		i += len(marker) - 1
	}
	return found
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
