package decision

import (
	"errors"
	"fmt"
)

// Config holds the similarity bands and marker tables.
type Config struct {
	HighConfidence   float64 `yaml:"high_confidence"`
	MinSimilarity    float64 `yaml:"min_similarity"`
	UncertaintyFloor float64 `yaml:"uncertainty_floor"`
	// ExcerptRunes bounds the content excerpt used when MaterialName is absent.
	ExcerptRunes int `yaml:"excerpt_runes"`
	// Strict panics on a broken evidence contract instead of returning PreconditionError.
	Strict  bool    `yaml:"strict"`
	Markers Markers `yaml:"markers"`
}

// DefaultConfig returns 0.7 / 0.3 bands with a 0.1 uncertainty floor.
func DefaultConfig() Config {
	return Config{
		HighConfidence:   0.7,
		MinSimilarity:    0.3,
		UncertaintyFloor: 0.1,
		ExcerptRunes:     120,
		Markers:          DefaultMarkers(),
	}
}

// Validate checks that the bands are ordered within [-1, 1].
func (c Config) Validate() error {
	var errs []error
	if c.HighConfidence < -1 || c.HighConfidence > 1 {
		errs = append(errs, fmt.Errorf("high_confidence %v out of [-1, 1]", c.HighConfidence))
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("min_similarity %v out of [-1, 1]", c.MinSimilarity))
	}
	if c.MinSimilarity > c.HighConfidence {
		errs = append(errs, fmt.Errorf("min_similarity %v above high_confidence %v", c.MinSimilarity, c.HighConfidence))
	}
	if c.UncertaintyFloor < 0 || c.UncertaintyFloor > 1 {
		errs = append(errs, fmt.Errorf("uncertainty_floor %v out of [0, 1]", c.UncertaintyFloor))
	}
	if c.ExcerptRunes < 0 {
		errs = append(errs, errors.New("excerpt_runes must not be negative"))
	}
	return errors.Join(errs...)
}
