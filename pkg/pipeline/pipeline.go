// Package pipeline runs the transcript to study-document flow for one
// request: decode, detect sections, summarize each section, assemble.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/otherjamesbrown/studynotes-cli/pkg/captions"
	"github.com/otherjamesbrown/studynotes-cli/pkg/document"
	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	"github.com/otherjamesbrown/studynotes-cli/pkg/summarize"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// NoTranscriptSentinel is returned instead of a document for an empty transcript.
const NoTranscriptSentinel = "No transcript available for summarization."

// DefaultTitle is used when the caller supplies no video title.
const DefaultTitle = "Educational Video"

// Stats describes one run.
type Stats struct {
	RequestID     string         `json:"request_id" yaml:"request_id"`
	Entries       int            `json:"entries" yaml:"entries"`
	Sections      int            `json:"sections" yaml:"sections"`
	Chunks        int            `json:"chunks" yaml:"chunks"`
	FailedChunks  int            `json:"failed_chunks" yaml:"failed_chunks"`
	TotalDuration float64        `json:"total_duration" yaml:"total_duration"`
	Detection     sections.Stats `json:"detection" yaml:"detection"`
	Elapsed       time.Duration  `json:"elapsed" yaml:"elapsed"`
}

// Output is the result of a run.
type Output struct {
	Document string
	Title    string

	// Sentinel is true when Document is NoTranscriptSentinel.
	Sentinel bool

	// Decode is set by SummarizePayload.
	Decode captions.Result

	Summaries []summarize.SectionSummary
	Stats     Stats
}

// Pipeline wires a detector, a summarizer and an assembler together.
type Pipeline struct {
	detector           *sections.Detector
	summarizer         *summarize.Summarizer
	assembler          document.Assembler
	sectionConcurrency int
	logger             logging.Logger
	metrics            *observability.Metrics
	tracer             *observability.Tracer
	newID              func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSectionConcurrency summarizes up to n sections at once. Results are
// still assembled in detected order.
func WithSectionConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.sectionConcurrency = n
	}
}

// WithAssembler replaces the default document assembler.
func WithAssembler(a document.Assembler) Option {
	return func(p *Pipeline) { p.assembler = a }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records decode, detection and run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer wraps runs and stages in spans.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New creates a Pipeline.
func New(detector *sections.Detector, summarizer *summarize.Summarizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:           detector,
		summarizer:         summarizer,
		sectionConcurrency: 1,
		logger:             logging.NewNopLogger(),
		newID:              func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logging.Component("pipeline"))
	return p
}

// SummarizeVideo turns entries into a study document, or the sentinel when
// entries is empty. The only error returned is the context's.
func (p *Pipeline) SummarizeVideo(ctx context.Context, entries []transcript.Entry, videoTitle string) (string, error) {
	out, err := p.Run(ctx, entries, videoTitle)
	if err != nil {
		return "", err
	}
	return out.Document, nil
}

// SummarizePayload decodes raw and summarizes the result. A payload in no
// recognized format returns an error wrapping errors.ErrDecodeFailure.
func (p *Pipeline) SummarizePayload(ctx context.Context, raw, videoTitle string) (Output, error) {
	res := p.decode(ctx, raw)
	if res.Err != nil {
		return Output{Decode: res, Title: titleOrDefault(videoTitle)}, fmt.Errorf("decode caption payload: %w", res.Err)
	}

	out, err := p.Run(ctx, res.Entries, videoTitle)
	out.Decode = res
	return out, err
}

// decode decodes raw and records the outcome.
func (p *Pipeline) decode(ctx context.Context, raw string) captions.Result {
	_, span := p.tracer.StartStageSpan(ctx, sterrors.StageDecode)
	defer span.End()

	res := captions.Decode(raw)

	status := observability.StatusSuccess
	switch {
	case res.Err != nil:
		status = observability.StatusFailed
		observability.NewSpanHelper(span).SetError(res.Err, string(sterrors.ErrParseError), false)
	case res.Empty():
		status = observability.StatusEmpty
	}
	p.metrics.RecordDecode(string(res.Format), status, res.SkippedCues)

	p.logger.WithContext(ctx).Info("Decoded caption payload",
		logging.F("format", string(res.Format)),
		logging.F("entries", len(res.Entries)),
		logging.F("skipped_cues", res.SkippedCues),
		logging.F("status", status),
	)
	return res
}

// Run is SummarizeVideo with the full Output.
func (p *Pipeline) Run(ctx context.Context, entries []transcript.Entry, videoTitle string) (Output, error) {
	started := time.Now()
	title := titleOrDefault(videoTitle)

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = p.newID()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	log := p.logger.WithContext(ctx)

	if len(entries) == 0 {
		log.Info("No transcript entries, returning sentinel", logging.F("title", title))
		p.metrics.RecordPipelineRun(observability.StatusEmpty, time.Since(started).Seconds())
		return Output{
			Document: NoTranscriptSentinel,
			Title:    title,
			Sentinel: true,
			Stats:    Stats{RequestID: requestID},
		}, nil
	}

	ctx, span := p.tracer.StartRunSpan(ctx, requestID, title, len(entries))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	totalDuration := transcript.TotalDuration(entries)
	log.Info("Starting study notes run",
		logging.F("title", title),
		logging.F("entries", len(entries)),
		logging.F("duration", transcript.FormatTimestamp(totalDuration)),
	)

	secs, detection := p.detect(ctx, entries)
	log.Info("Detected sections",
		logging.F("sections", len(secs)),
		logging.F("transitions", detection.Transitions),
		logging.F("pauses", detection.Pauses),
		logging.F("fallback", detection.FallbackUsed),
		logging.F("dropped_entries", detection.DroppedEntries),
	)

	summaries, err := p.summarizeSections(ctx, log, secs)
	if err != nil {
		classified := sterrors.ClassifyError(err, sterrors.StageSummarize)
		helper.SetError(err, string(classified.Code), false)
		p.metrics.RecordPipelineRun(observability.StatusCancelled, time.Since(started).Seconds())
		log.Warn("Run cancelled", logging.Err(err))
		return Output{}, err
	}

	doc := p.assembler.Assemble(summaries, title, totalDuration)

	stats := Stats{
		RequestID:     requestID,
		Entries:       len(entries),
		Sections:      len(summaries),
		TotalDuration: totalDuration,
		Detection:     detection,
	}
	for _, s := range summaries {
		stats.Chunks += s.Chunks
		stats.FailedChunks += s.FailedChunks
	}
	stats.Elapsed = time.Since(started)

	helper.SetSectionResult(stats.Chunks, stats.FailedChunks)
	helper.SetSuccess()
	p.metrics.RecordPipelineRun(observability.StatusSuccess, stats.Elapsed.Seconds())

	log.Info("Study document assembled",
		logging.F("sections", stats.Sections),
		logging.F("chunks", stats.Chunks),
		logging.F("failed_chunks", stats.FailedChunks),
		logging.F("elapsed", stats.Elapsed),
	)

	return Output{
		Document:  doc,
		Title:     title,
		Summaries: summaries,
		Stats:     stats,
	}, nil
}

func (p *Pipeline) detect(ctx context.Context, entries []transcript.Entry) ([]sections.Section, sections.Stats) {
	_, span := p.tracer.StartStageSpan(ctx, sterrors.StageDetect)
	defer span.End()

	secs, stats := p.detector.DetectWithStats(entries)

	method := string(sections.MethodHeuristic)
	if stats.FallbackUsed {
		method = string(sections.MethodFallback)
	}
	p.metrics.RecordDetection(method, len(secs), stats.DroppedEntries, stats.FallbackUsed)
	return secs, stats
}

func (p *Pipeline) summarizeSections(ctx context.Context, log logging.Logger, secs []sections.Section) ([]summarize.SectionSummary, error) {
	summaries := make([]summarize.SectionSummary, len(secs))
	total := len(secs)

	one := func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info(fmt.Sprintf("Summarizing section %d/%d: %s", i+1, total, secs[i].Title))
		s, err := p.summarizer.Summarize(ctx, secs[i], i+1, total)
		if err != nil {
			return err
		}
		summaries[i] = s
		return nil
	}

	if p.sectionConcurrency <= 1 {
		for i := range secs {
			if err := one(i); err != nil {
				return nil, err
			}
		}
		return summaries, nil
	}

	var g errgroup.Group
	g.SetLimit(p.sectionConcurrency)
	for i := range secs {
		g.Go(func() error { return one(i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// PlannedSection is a detected section with the number of generation calls
// it would need.
type PlannedSection struct {
	Number  int              `json:"number" yaml:"number"`
	Title   string           `json:"title" yaml:"title"`
	Start   string           `json:"start" yaml:"start"`
	End     string           `json:"end" yaml:"end"`
	Method  sections.Method  `json:"method" yaml:"method"`
	Words   int              `json:"words" yaml:"words"`
	Chunks  int              `json:"chunks" yaml:"chunks"`
	Section sections.Section `json:"-" yaml:"-"`
}

// Plan detects sections and chunks them without calling the generator.
func (p *Pipeline) Plan(entries []transcript.Entry) ([]PlannedSection, sections.Stats) {
	secs, stats := p.detector.DetectWithStats(entries)
	chunker := p.summarizer.Chunker()

	planned := make([]PlannedSection, len(secs))
	for i, s := range secs {
		planned[i] = PlannedSection{
			Number:  i + 1,
			Title:   s.Title,
			Start:   transcript.FormatTimestamp(s.StartTime),
			End:     transcript.FormatTimestamp(s.EndTime),
			Method:  s.Method,
			Words:   transcript.WordCount(s.Entries),
			Chunks:  len(chunker.Chunk(s)),
			Section: s,
		}
	}
	return planned, stats
}

func titleOrDefault(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return DefaultTitle
}
