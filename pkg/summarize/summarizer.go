// Package summarize produces the summary of one transcript section by
// generating a summary per chunk and stitching the results in order.
package summarize

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/otherjamesbrown/studynotes-cli/pkg/chunking"
	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/generation"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// SectionSummary is the summarized form of one section.
type SectionSummary struct {
	SectionNumber int     `json:"section_number" yaml:"section_number"`
	Title         string  `json:"title" yaml:"title"`
	StartTime     float64 `json:"start_time" yaml:"start_time"`
	EndTime       float64 `json:"end_time" yaml:"end_time"`
	Summary       string  `json:"summary" yaml:"summary"`
	Timestamp     string  `json:"timestamp" yaml:"timestamp"`
	Chunks        int     `json:"chunks" yaml:"chunks"`
	FailedChunks  int     `json:"failed_chunks" yaml:"failed_chunks"`
}

// Summarizer summarizes sections through a Generator.
type Summarizer struct {
	gen         generation.Generator
	chunker     *chunking.Chunker
	concurrency int
	logger      logging.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithConcurrency allows up to n chunk generations in flight per section.
// Values below 2 keep calls strictly sequential.
func WithConcurrency(n int) Option {
	return func(s *Summarizer) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records placeholder substitutions.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Summarizer) { s.metrics = m }
}

// WithTracer wraps each section in a span.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Summarizer) { s.tracer = t }
}

// New creates a Summarizer. A nil chunker uses chunking.DefaultMaxWords.
func New(gen generation.Generator, chunker *chunking.Chunker, opts ...Option) *Summarizer {
	if chunker == nil {
		chunker = chunking.New(chunking.DefaultMaxWords)
	}
	s := &Summarizer{
		gen:         gen,
		chunker:     chunker,
		concurrency: 1,
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("summarizer"))
	return s
}

// Chunker returns the chunker used to split sections.
func (s *Summarizer) Chunker() *chunking.Chunker {
	return s.chunker
}

// chunkResult is one indexed slot of the output.
type chunkResult struct {
	text   string
	failed bool
}

// Summarize summarizes section, numbered sectionNumber of totalSections.
// Failed chunks become placeholders; the only error returned is the
// context's when it is cancelled.
func (s *Summarizer) Summarize(ctx context.Context, section sections.Section, sectionNumber, totalSections int) (SectionSummary, error) {
	ctx, span := s.tracer.StartSectionSpan(ctx, sectionNumber, section.Title)
	defer span.End()

	chunks := s.chunker.Chunk(section)
	results := make([]chunkResult, len(chunks))

	if s.concurrency > 1 && len(chunks) > 1 {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i := range chunks {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = s.summarizeChunk(ctx, chunks[i], chunkTitle(section.Title, i, len(chunks)), sectionNumber, totalSections)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return SectionSummary{}, err
		}
	} else {
		for i, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return SectionSummary{}, err
			}
			results[i] = s.summarizeChunk(ctx, chunk, chunkTitle(section.Title, i, len(chunks)), sectionNumber, totalSections)
		}
	}

	// An in-flight call abandoned by cancellation produced a placeholder; discard it.
	if err := ctx.Err(); err != nil {
		return SectionSummary{}, err
	}

	parts := make([]string, len(results))
	failed := 0
	for i, r := range results {
		parts[i] = r.text
		if r.failed {
			failed++
		}
	}
	observability.NewSpanHelper(span).SetSectionResult(len(chunks), failed)

	return SectionSummary{
		SectionNumber: sectionNumber,
		Title:         section.Title,
		StartTime:     section.StartTime,
		EndTime:       section.EndTime,
		Summary:       strings.Join(parts, "\n\n"),
		Timestamp:     transcript.FormatTimestamp(section.StartTime),
		Chunks:        len(chunks),
		FailedChunks:  failed,
	}, nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, chunk chunking.Chunk, title string, sectionNumber, totalSections int) chunkResult {
	prompt := BuildPrompt(chunk, title, sectionNumber, totalSections)

	text, err := s.gen.Generate(ctx, prompt)
	if err == nil {
		return chunkResult{text: text}
	}

	classified := sterrors.ClassifyError(err, sterrors.StageSummarize)
	s.logger.WithContext(ctx).Warn("Chunk summary failed, using placeholder",
		logging.F("section", sectionNumber),
		logging.F("chunk_title", title),
		logging.F("chunk_start", transcript.FormatTimestamp(chunk.StartTime)),
		logging.F("error_code", string(classified.Code)),
		logging.Err(err),
	)
	s.metrics.RecordPlaceholder(string(classified.Code))

	return chunkResult{text: Placeholder(chunk.StartTime), failed: true}
}
