package cmd

import (
	"github.com/spf13/cobra"
)

// NewSectionsCommand creates the sections command.
func NewSectionsCommand(deps *PipelineCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultPipelineDeps()
	}
	var output string

	cmd := &cobra.Command{
		Use:   "sections <file|->",
		Short: "Show detected sections and chunk counts",
		Long: `Decode a caption payload and show how it would be split, without
calling the model.

Each section lists its time range, how its boundary was found (heuristic or
fallback), its word count and the number of generation calls it needs. Use
this to tune the heuristics block of the config file.

Examples:
  studynotes sections lecture.en.vtt
  studynotes sections lecture.json3 --output yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.loadConfig()
			if err != nil {
				return err
			}
			format, err := resolveOutputFormat(cfg, output)
			if err != nil {
				return err
			}
			raw, err := readPayload(args[0], deps.Stdin)
			if err != nil {
				return err
			}
			rt := newRuntime(deps.Metrics)
			defer rt.Close()
			return runPlan(cmd.OutOrStdout(), cfg, rt, raw, format)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}
