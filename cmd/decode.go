package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/pkg/captions"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(deps *PipelineCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultPipelineDeps()
	}
	var output string

	cmd := &cobra.Command{
		Use:   "decode <file|->",
		Short: "Decode a caption file into transcript entries",
		Long: `Decode a caption payload and print its transcript entries.

The format is detected from the content: a payload starting with '{' is
read as json3 events, anything else as timed cue blocks (WebVTT or SRT).
Cues with unparsable timings are skipped and counted.

Examples:
  studynotes decode lecture.en.vtt
  studynotes decode lecture.json3 --output json
  cat lecture.srt | studynotes decode -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.OutOrStdout(), deps, output, args[0])
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

type decodeReport struct {
	Format        captions.Format    `json:"format" yaml:"format"`
	SkippedCues   int                `json:"skipped_cues" yaml:"skipped_cues"`
	TotalDuration float64            `json:"total_duration" yaml:"total_duration"`
	Entries       []transcript.Entry `json:"entries" yaml:"entries"`
}

func runDecode(w io.Writer, deps *PipelineCommandDeps, output, path string) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}
	format, err := resolveOutputFormat(cfg, output)
	if err != nil {
		return err
	}

	raw, err := readPayload(path, deps.Stdin)
	if err != nil {
		return err
	}

	res := captions.Decode(raw)
	deps.Metrics.RecordDecode(string(res.Format), decodeStatus(res), res.SkippedCues)
	if res.Err != nil {
		return fmt.Errorf("decode caption payload: %w", res.Err)
	}

	report := decodeReport{
		Format:        res.Format,
		SkippedCues:   res.SkippedCues,
		TotalDuration: res.TotalDuration(),
		Entries:       res.Entries,
	}
	if report.Entries == nil {
		report.Entries = []transcript.Entry{}
	}

	switch format {
	case config.OutputFormatJSON:
		return outputJSON(w, report)
	case config.OutputFormatYAML:
		return outputYAML(w, report)
	default:
		fmt.Fprintf(w, "Format: %s  Entries: %d  Skipped cues: %d  Duration: %s\n\n",
			res.Format, len(res.Entries), res.SkippedCues, transcript.FormatTimestamp(res.TotalDuration()))
		for _, e := range res.Entries {
			fmt.Fprintf(w, "[%s] %s\n", transcript.FormatTimestamp(e.Start), e.Text)
		}
		return nil
	}
}

func decodeStatus(res captions.Result) string {
	switch {
	case res.Err != nil:
		return observability.StatusFailed
	case res.Empty():
		return observability.StatusEmpty
	default:
		return observability.StatusSuccess
	}
}
