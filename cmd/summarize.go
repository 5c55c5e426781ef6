package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/pkg/captions"
	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/pipeline"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	"github.com/otherjamesbrown/studynotes-cli/pkg/summarize"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// PipelineCommandDeps holds the dependencies for the summarize, decode,
// sections and watch commands.
type PipelineCommandDeps struct {
	Config       *config.CLIConfig
	LoadConfig   func() (*config.CLIConfig, error)
	NewGenerator GeneratorFactory
	Stdin        io.Reader

	// Metrics is shared by every run of a process. Nil records nothing.
	Metrics *observability.Metrics
}

// DefaultPipelineDeps returns the default dependencies for production use.
func DefaultPipelineDeps() *PipelineCommandDeps {
	return &PipelineCommandDeps{
		LoadConfig:   config.LoadConfig,
		NewGenerator: DefaultGeneratorFactory,
		Stdin:        os.Stdin,
	}
}

func (d *PipelineCommandDeps) loadConfig() (*config.CLIConfig, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

// Summarize command flags.
type summarizeOptions struct {
	title  string
	out    string
	output string
	dryRun bool
}

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand(deps *PipelineCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultPipelineDeps()
	}
	opts := &summarizeOptions{}

	cmd := &cobra.Command{
		Use:   "summarize <file|->",
		Short: "Turn a caption file into a study document",
		Long: `Turn a caption file into a markdown study document.

The payload may be YouTube's json3 caption format, WebVTT or SRT. The
transcript is split into sections (transition phrases, long pauses, or
fixed time slices as a fallback), each section is summarized by the
configured Gemini model, and the results are assembled with a table of
contents and study tips.

A chunk whose generation call fails is replaced by a placeholder paragraph;
the rest of the document is still produced.

Examples:
  # Summarize a WebVTT file to stdout
  studynotes summarize lecture.en.vtt

  # Write the document to a file with an explicit title
  studynotes summarize lecture.json3 --title "Data Structures 101" --out notes.md

  # Read from stdin
  cat lecture.vtt | studynotes summarize -

  # Show the section plan without calling the model
  studynotes summarize lecture.vtt --dry-run

  # Document plus run statistics as JSON
  studynotes summarize lecture.vtt --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummarize(cmd.Context(), cmd, deps, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (default: file name)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Write the document to this file instead of stdout")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Detect sections and chunks without calling the model")

	return cmd
}

// summarizeReport is the json/yaml form of a run.
type summarizeReport struct {
	Title       string                     `json:"title" yaml:"title"`
	Sentinel    bool                       `json:"sentinel" yaml:"sentinel"`
	Format      captions.Format            `json:"format" yaml:"format"`
	SkippedCues int                        `json:"skipped_cues" yaml:"skipped_cues"`
	Stats       pipeline.Stats             `json:"stats" yaml:"stats"`
	Sections    []summarize.SectionSummary `json:"sections" yaml:"sections"`
	Document    string                     `json:"document" yaml:"document"`
}

func runSummarize(ctx context.Context, cmd *cobra.Command, deps *PipelineCommandDeps, opts *summarizeOptions, path string) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	format, err := resolveOutputFormat(cfg, opts.output)
	if err != nil {
		return err
	}

	raw, err := readPayload(path, deps.Stdin)
	if err != nil {
		return err
	}
	title := titleFor(path, opts.title)

	rt := newRuntime(deps.Metrics)
	defer rt.Close()

	if opts.dryRun {
		return runPlan(cmd.OutOrStdout(), cfg, rt, raw, format)
	}

	rt.connectCache(ctx, cfg)
	gen, err := deps.NewGenerator(ctx, cfg, rt)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	p, err := buildPipeline(cfg, gen, rt)
	if err != nil {
		return err
	}

	out, err := p.SummarizePayload(ctx, raw, title)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.out != "" {
		target := config.ExpandPath(opts.out)
		if err := os.WriteFile(target, []byte(out.Document+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", opts.out, err)
		}
		rt.Logger.Info("Study document written", logFields(out, target)...)
		if format == config.OutputFormatText {
			fmt.Fprintf(w, "Wrote %s (%d sections, %d chunks, %d failed)\n",
				target, out.Stats.Sections, out.Stats.Chunks, out.Stats.FailedChunks)
			return nil
		}
	}

	switch format {
	case config.OutputFormatJSON, config.OutputFormatYAML:
		report := summarizeReport{
			Title:       out.Title,
			Sentinel:    out.Sentinel,
			Format:      out.Decode.Format,
			SkippedCues: out.Decode.SkippedCues,
			Stats:       out.Stats,
			Sections:    out.Summaries,
			Document:    out.Document,
		}
		if format == config.OutputFormatJSON {
			return outputJSON(w, report)
		}
		return outputYAML(w, report)
	default:
		_, err := fmt.Fprintln(w, out.Document)
		return err
	}
}

// runPlan prints the detected sections for raw without generating anything.
func runPlan(w io.Writer, cfg *config.CLIConfig, rt *Runtime, raw string, format config.OutputFormat) error {
	res := captions.Decode(raw)
	if res.Err != nil {
		return fmt.Errorf("decode caption payload: %w", res.Err)
	}
	if res.Empty() {
		return fmt.Errorf("%w: %s payload has no caption entries", sterrors.ErrEmptyTranscript, res.Format)
	}

	p, err := buildPipeline(cfg, nil, rt)
	if err != nil {
		return err
	}
	planned, stats := p.Plan(res.Entries)

	switch format {
	case config.OutputFormatJSON:
		return outputJSON(w, planReport{Format: res.Format, Stats: stats, Sections: planned})
	case config.OutputFormatYAML:
		return outputYAML(w, planReport{Format: res.Format, Stats: stats, Sections: planned})
	default:
		return outputPlanText(w, res, planned, stats)
	}
}

type planReport struct {
	Format   captions.Format           `json:"format" yaml:"format"`
	Stats    sections.Stats            `json:"stats" yaml:"stats"`
	Sections []pipeline.PlannedSection `json:"sections" yaml:"sections"`
}

func outputPlanText(w io.Writer, res captions.Result, planned []pipeline.PlannedSection, stats sections.Stats) error {
	fmt.Fprintf(w, "Format: %s  Entries: %d  Skipped cues: %d  Duration: %s\n",
		res.Format, len(res.Entries), res.SkippedCues, transcript.FormatTimestamp(res.TotalDuration()))
	method := "heuristic"
	if stats.FallbackUsed {
		method = "fallback"
	}
	fmt.Fprintf(w, "Sections: %d (%s, %d transitions, %d pauses, %d dropped entries)\n\n",
		len(planned), method, stats.Transitions, stats.Pauses, stats.DroppedEntries)

	fmt.Fprintf(w, "%-4s %-9s %-9s %-10s %6s %6s  %s\n", "#", "START", "END", "METHOD", "WORDS", "CHUNKS", "TITLE")
	totalChunks := 0
	for _, s := range planned {
		fmt.Fprintf(w, "%-4d %-9s %-9s %-10s %6d %6d  %s\n",
			s.Number, s.Start, s.End, s.Method, s.Words, s.Chunks, truncate(s.Title, 60))
		totalChunks += s.Chunks
	}
	_, err := fmt.Fprintf(w, "\nGeneration calls needed: %d\n", totalChunks)
	return err
}

func logFields(out pipeline.Output, target string) []logging.Field {
	return []logging.Field{
		logging.F("output", target),
		logging.F("request_id", out.Stats.RequestID),
		logging.F("sections", out.Stats.Sections),
		logging.F("failed_chunks", out.Stats.FailedChunks),
	}
}
