package sections

import (
	"fmt"
	"regexp"
	"strings"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
)

// ShortSectionPolicy decides what happens to a section that closes before
// reaching MinSectionDuration.
type ShortSectionPolicy string

const (
	// PolicyDrop discards the short section's entries. A warning is logged.
	PolicyDrop ShortSectionPolicy = "drop"

	// PolicyMerge folds the short section into the previously emitted one,
	// or into the next section when nothing has been emitted yet.
	PolicyMerge ShortSectionPolicy = "merge"
)

// ParseShortSectionPolicy parses a policy name. The empty string means drop.
func ParseShortSectionPolicy(s string) (ShortSectionPolicy, error) {
	switch ShortSectionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyMerge:
		return PolicyMerge, nil
	default:
		return "", fmt.Errorf("%w: unknown short section policy %q (want drop or merge)", sterrors.ErrValidation, s)
	}
}

// Default transition phrases, matched against lower-cased entry text.
var defaultTransitionPhrases = []string{
	`\bnow\s+let['’]?s\b`,
	`\bnext\s+we['’]?ll\b`,
	`\bmoving\s+on\b`,
	`\bin\s+this\s+section\b`,
	`\blet['’]?s\s+talk\s+about\b`,
	`\blet['’]?s\s+discuss\b`,
	`\blet['’]?s\s+look\s+at\b`,
	`\bchapter\s+\d+\b`,
	`\bpart\s+\d+\b`,
}

// Title patterns capture the topic that follows a transition phrase.
var defaultTitlePhrases = []string{
	`now let['’]?s\s+(?:talk about|discuss|look at)\s+(.+?)(?:\.|,|$)`,
	`next we['’]?ll\s+(?:cover|discuss|learn about)\s+(.+?)(?:\.|,|$)`,
	`in this section\s+(?:we['’]?ll|we will)\s+(?:cover|discuss|learn)\s+(.+?)(?:\.|,|$)`,
}

// Heuristics holds every tunable used by the Detector. Durations are seconds.
type Heuristics struct {
	TransitionPatterns []*regexp.Regexp
	TitlePatterns      []*regexp.Regexp

	// A gap longer than PauseThreshold between consecutive entries cuts the
	// open section once it holds more than MinPauseEntries entries.
	PauseThreshold  float64
	MinPauseEntries int

	MinSectionDuration float64
	MinSections        int

	FallbackSliceDuration float64
	MinFallbackParts      int

	ShortSectionPolicy ShortSectionPolicy
}

// DefaultHeuristics returns the stock phrase tables and thresholds.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		TransitionPatterns:    mustCompile(defaultTransitionPhrases),
		TitlePatterns:         mustCompile(defaultTitlePhrases),
		PauseThreshold:        3.0,
		MinPauseEntries:       10,
		MinSectionDuration:    300,
		MinSections:           2,
		FallbackSliceDuration: 900,
		MinFallbackParts:      3,
		ShortSectionPolicy:    PolicyDrop,
	}
}

// DefaultTransitionPhrases returns the source of the default transition patterns.
func DefaultTransitionPhrases() []string {
	return append([]string(nil), defaultTransitionPhrases...)
}

// CompilePhrases compiles configured phrases into patterns. Each phrase is a
// regular expression matched case-insensitively.
func CompilePhrases(phrases []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid phrase %q: %v", sterrors.ErrValidation, p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// Validate checks that thresholds are usable.
func (h Heuristics) Validate() error {
	switch {
	case h.PauseThreshold < 0:
		return fmt.Errorf("%w: pause threshold must not be negative", sterrors.ErrValidation)
	case h.MinPauseEntries < 0:
		return fmt.Errorf("%w: min pause entries must not be negative", sterrors.ErrValidation)
	case h.MinSectionDuration < 0:
		return fmt.Errorf("%w: min section duration must not be negative", sterrors.ErrValidation)
	case h.FallbackSliceDuration <= 0:
		return fmt.Errorf("%w: fallback slice duration must be positive", sterrors.ErrValidation)
	case h.MinFallbackParts < 1:
		return fmt.Errorf("%w: min fallback parts must be at least 1", sterrors.ErrValidation)
	}
	_, err := ParseShortSectionPolicy(string(h.ShortSectionPolicy))
	return err
}

func mustCompile(phrases []string) []*regexp.Regexp {
	patterns, err := CompilePhrases(phrases)
	if err != nil {
		panic(err)
	}
	return patterns
}
