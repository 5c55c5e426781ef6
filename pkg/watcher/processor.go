package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/pipeline"
)

// Summarizer is the part of *pipeline.Pipeline the processor needs.
type Summarizer interface {
	SummarizePayload(ctx context.Context, raw, videoTitle string) (pipeline.Output, error)
}

// Processor writes one markdown document per caption file into OutDir.
type Processor struct {
	summarizer Summarizer
	outDir     string
	emitter    *observability.EventEmitter
	logger     logging.Logger
}

// NewProcessor creates a processor. A nil emitter discards events.
func NewProcessor(s Summarizer, outDir string, emitter *observability.EventEmitter, logger logging.Logger) *Processor {
	if emitter == nil {
		emitter = observability.NewEventEmitter(nil)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Processor{
		summarizer: s,
		outDir:     outDir,
		emitter:    emitter,
		logger:     logger.With(logging.Component("watcher")),
	}
}

// Handle is a Handler.
func (p *Processor) Handle(ctx context.Context, path string) error {
	title := TitleFromPath(path)
	log := p.logger.WithContext(ctx).With(logging.F("path", path))

	raw, err := os.ReadFile(path)
	if err != nil {
		p.fail(ctx, path, sterrors.StageDecode, err)
		return fmt.Errorf("read caption file: %w", err)
	}

	out, err := p.summarizer.SummarizePayload(ctx, string(raw), title)
	if err != nil {
		stage := sterrors.StageSummarize
		if errors.Is(err, sterrors.ErrDecodeFailure) {
			stage = sterrors.StageDecode
		}
		p.fail(ctx, path, stage, err)
		return err
	}

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	target := OutputPath(p.outDir, path)
	if err := os.WriteFile(target, []byte(out.Document+"\n"), 0o644); err != nil {
		p.fail(ctx, path, sterrors.StageAssemble, err)
		return fmt.Errorf("write document: %w", err)
	}

	log.Info("Study document written",
		logging.F("output", target),
		logging.F("sections", out.Stats.Sections),
		logging.F("failed_chunks", out.Stats.FailedChunks),
	)

	event := observability.NewDocumentCompletedEvent(out.Stats.RequestID, path, out.Title)
	event.Output = target
	event.Format = string(out.Decode.Format)
	event.Entries = out.Stats.Entries
	event.Sections = out.Stats.Sections
	event.Chunks = out.Stats.Chunks
	event.FailedChunks = out.Stats.FailedChunks
	event.DurationMs = out.Stats.Elapsed.Milliseconds()
	if err := p.emitter.EmitDocumentCompleted(ctx, event); err != nil {
		log.Warn("Failed to publish completion event", logging.Err(err))
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, path, stage string, err error) {
	classified := sterrors.ClassifyError(err, stage)
	event := observability.NewDocumentFailedEvent(path, stage, string(classified.Code), err.Error(), sterrors.IsRetryable(classified.Code))
	event.RequestID = logging.RequestIDFromContext(ctx)
	if pubErr := p.emitter.EmitDocumentFailed(ctx, event); pubErr != nil {
		p.logger.Warn("Failed to publish failure event", logging.Err(pubErr))
	}
}

// TitleFromPath derives a document title from a caption file name:
// "intro-to_arrays.en.vtt" becomes "intro to arrays".
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if ext := filepath.Ext(base); isLanguageTag(ext) {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// isLanguageTag matches a ".en" or ".por" style subtitle language suffix.
func isLanguageTag(ext string) bool {
	if len(ext) < 3 || len(ext) > 4 {
		return false
	}
	for _, r := range ext[1:] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// OutputPath is the markdown path for a caption file inside outDir.
func OutputPath(outDir, path string) string {
	base := filepath.Base(path)
	return filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".md")
}
