// Package transcript defines the timestamped caption entry shared by every
// stage of the study-notes pipeline, plus the timestamp parser and formatter.
package transcript

import (
	"fmt"
	"math"
	"strings"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
)

// Entry is one timestamped caption fragment. Start and Duration are in seconds.
type Entry struct {
	Text     string  `json:"text" yaml:"text"`
	Start    float64 `json:"start" yaml:"start"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// NewEntry trims text and validates the timing of a caption fragment.
func NewEntry(text string, start, duration float64) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, fmt.Errorf("%w: entry text is empty", sterrors.ErrValidation)
	}
	if !validSeconds(start) {
		return Entry{}, fmt.Errorf("%w: invalid entry start %v", sterrors.ErrValidation, start)
	}
	if !validSeconds(duration) {
		return Entry{}, fmt.Errorf("%w: invalid entry duration %v", sterrors.ErrValidation, duration)
	}
	return Entry{Text: text, Start: start, Duration: duration}, nil
}

// MustEntry is NewEntry for literals known to be valid. It panics otherwise.
func MustEntry(text string, start, duration float64) Entry {
	e, err := NewEntry(text, start, duration)
	if err != nil {
		panic(err)
	}
	return e
}

// End returns the offset at which the entry stops being displayed.
func (e Entry) End() float64 {
	return e.Start + e.Duration
}

// WordCount returns the number of whitespace-delimited tokens in Text.
func (e Entry) WordCount() int {
	return len(strings.Fields(e.Text))
}

// TotalDuration returns the end of the last entry, or 0 for an empty sequence.
func TotalDuration(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].End()
}

// JoinText joins entry texts with single spaces, in order.
func JoinText(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Text)
	}
	return b.String()
}

// WordCount sums the word counts of entries.
func WordCount(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += e.WordCount()
	}
	return n
}

func validSeconds(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
