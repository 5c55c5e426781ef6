// Package sections splits a transcript into topical sections.
//
// Boundaries come from spoken transition phrases ("now let's talk about...")
// and long pauses. When too few sections survive, the transcript is instead
// cut into evenly sized parts.
package sections

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// Method records how a section boundary was found.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodFallback  Method = "fallback"
)

const (
	introductionTitle = "Introduction"
	genericTitle      = "Section"
)

// Section is a contiguous run of entries about one topic.
type Section struct {
	StartTime float64            `json:"start_time" yaml:"start_time"`
	EndTime   float64            `json:"end_time" yaml:"end_time"`
	Title     string             `json:"title" yaml:"title"`
	Method    Method             `json:"method" yaml:"method"`
	Entries   []transcript.Entry `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// Duration returns EndTime - StartTime.
func (s Section) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Stats describes one detection run. Dropped and merged counts describe the
// returned sections, so they are zero when the fallback replaced them.
type Stats struct {
	Entries         int  `json:"entries" yaml:"entries"`
	Transitions     int  `json:"transitions" yaml:"transitions"`
	Pauses          int  `json:"pauses" yaml:"pauses"`
	Sections        int  `json:"sections" yaml:"sections"`
	DroppedSections int  `json:"dropped_sections" yaml:"dropped_sections"`
	DroppedEntries  int  `json:"dropped_entries" yaml:"dropped_entries"`
	MergedSections  int  `json:"merged_sections" yaml:"merged_sections"`
	FallbackUsed    bool `json:"fallback_used" yaml:"fallback_used"`
}

// Detector finds section boundaries. It holds no per-run state and may be
// shared between goroutines.
type Detector struct {
	h      Heuristics
	logger logging.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for drop warnings and fallback notices.
func WithLogger(l logging.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDetector creates a Detector using h.
func NewDetector(h Heuristics, opts ...Option) *Detector {
	d := &Detector{h: h, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logging.Component("section_detector"))
	return d
}

// Heuristics returns the configuration the detector runs with.
func (d *Detector) Heuristics() Heuristics {
	return d.h
}

// Detect returns the sections of entries ordered by StartTime.
func (d *Detector) Detect(entries []transcript.Entry) []Section {
	sections, _ := d.DetectWithStats(entries)
	return sections
}

// DetectWithStats is Detect plus counters describing the run.
func (d *Detector) DetectWithStats(entries []transcript.Entry) ([]Section, Stats) {
	stats := Stats{Entries: len(entries)}
	if len(entries) == 0 {
		return nil, stats
	}

	var (
		emitted []Section
		open    *Section
	)

	for i, entry := range entries {
		lower := strings.ToLower(entry.Text)

		isTransition := d.matchesTransition(lower)
		isLongPause := i > 0 && open != nil &&
			entry.Start-entries[i-1].End() > d.h.PauseThreshold &&
			len(open.Entries) > d.h.MinPauseEntries

		if !isTransition && !isLongPause {
			if open == nil {
				open = newSection(introductionTitle, entry)
				continue
			}
			open.Entries = append(open.Entries, entry)
			open.EndTime = entry.End()
			continue
		}

		if isTransition {
			stats.Transitions++
		} else {
			stats.Pauses++
		}

		var carried []transcript.Entry
		if open != nil {
			emitted, carried = d.close(open, emitted, &stats)
		}

		open = newSection(d.extractTitle(lower), entry)
		if len(carried) > 0 {
			open.Entries = append(carried, open.Entries...)
			open.StartTime = carried[0].Start
		}
	}

	if open != nil {
		emitted = append(emitted, *open)
	}

	if len(emitted) < d.h.MinSections {
		d.logger.Debug("Too few sections detected, slicing uniformly",
			logging.F("detected", len(emitted)),
			logging.F("min_sections", d.h.MinSections),
		)
		emitted = d.fallback(entries)
		stats.FallbackUsed = true
		stats.DroppedSections, stats.DroppedEntries, stats.MergedSections = 0, 0, 0
	}

	stats.Sections = len(emitted)
	return emitted, stats
}

// close applies the length rule to the open section. It returns the updated
// emitted list and any entries that must be carried into the next section.
func (d *Detector) close(open *Section, emitted []Section, stats *Stats) ([]Section, []transcript.Entry) {
	if open.Duration() >= d.h.MinSectionDuration {
		return append(emitted, *open), nil
	}

	if d.h.ShortSectionPolicy == PolicyMerge {
		stats.MergedSections++
		if len(emitted) == 0 {
			return emitted, open.Entries
		}
		last := &emitted[len(emitted)-1]
		last.Entries = append(last.Entries, open.Entries...)
		last.EndTime = open.EndTime
		return emitted, nil
	}

	stats.DroppedSections++
	stats.DroppedEntries += len(open.Entries)
	d.logger.Warn("Dropping short section",
		logging.F("title", open.Title),
		logging.F("entries", len(open.Entries)),
		logging.F("start", transcript.FormatTimestamp(open.StartTime)),
		logging.F("duration_seconds", open.Duration()),
	)
	return emitted, nil
}

func (d *Detector) matchesTransition(lower string) bool {
	for _, re := range d.h.TransitionPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// extractTitle pulls the topic out of a transition phrase, title-cased.
func (d *Detector) extractTitle(lower string) string {
	lower = strings.TrimSpace(lower)
	for _, re := range d.h.TitlePatterns {
		m := re.FindStringSubmatch(lower)
		if len(m) < 2 {
			continue
		}
		if topic := strings.TrimSpace(m[1]); topic != "" {
			// Casers are stateful; one per call keeps Detector shareable.
			return cases.Title(language.English).String(topic)
		}
	}
	return genericTitle
}

// fallback partitions entries into n contiguous groups whose sizes differ by
// at most one.
func (d *Detector) fallback(entries []transcript.Entry) []Section {
	total := transcript.TotalDuration(entries)

	n := d.h.MinFallbackParts
	if d.h.FallbackSliceDuration > 0 {
		if byTime := int(total / d.h.FallbackSliceDuration); byTime > n {
			n = byTime
		}
	}
	if n < 1 {
		n = 1
	}
	if n > len(entries) {
		n = len(entries)
	}

	out := make([]Section, 0, n)
	for i := 0; i < n; i++ {
		lo := i * len(entries) / n
		hi := (i + 1) * len(entries) / n
		group := append([]transcript.Entry(nil), entries[lo:hi]...)

		out = append(out, Section{
			StartTime: group[0].Start,
			EndTime:   group[len(group)-1].End(),
			Title:     fmt.Sprintf("Part %d", i+1),
			Method:    MethodFallback,
			Entries:   group,
		})
	}
	return out
}

func newSection(title string, first transcript.Entry) *Section {
	return &Section{
		StartTime: first.Start,
		EndTime:   first.End(),
		Title:     title,
		Method:    MethodHeuristic,
		Entries:   []transcript.Entry{first},
	}
}
