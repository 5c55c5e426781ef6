// Package main provides the studynotes CLI entry point.
// studynotes turns lecture captions into markdown study documents.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/studynotes-cli/cmd"
	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/pkg/buildinfo"
	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
)

// Global flags and state.
var (
	cfgFile      string
	timeout      time.Duration
	outputFormat string
	logFormat    string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig

	// cancelTimeout releases the per-command deadline.
	cancelTimeout context.CancelFunc
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "studynotes",
	Short: "Turn lecture captions into study documents",
	Long: `studynotes turns lecture caption files into markdown study documents.

A caption payload (YouTube json3, WebVTT or SRT) is decoded into timed
transcript entries, split into sections, and each section is summarized by a
Gemini model. The summaries are assembled into one document with a table of
contents, timestamps and study tips.

COMMON WORKFLOWS:
  First run:        studynotes auth set-key  →  studynotes config init
  One lecture:      studynotes summarize lecture.en.vtt --out notes.md
  Tune sections:    studynotes sections lecture.en.vtt
  A folder:         studynotes watch ./captions --out ./notes

Every command that prints data supports --output json|yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Load configuration.
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadConfigFrom(cfgFile)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if timeout != 0 {
			cfg.Timeout = timeout
		}
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
		}
		if logFormat != "" {
			cfg.LogFormat = config.LogFormat(logFormat)
		}
		if debug {
			cfg.Debug = true
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", sterrors.ErrValidation, err)
		}

		initLogger(cfg)

		// Watch runs until interrupted; everything else gets the configured deadline.
		if cmd.Name() != "watch" {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			cancelTimeout = cancel
			cmd.SetContext(ctx)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cancelTimeout != nil {
			cancelTimeout()
		}
		return nil
	},
}

// initLogger installs the global logger from the loaded configuration.
func initLogger(c *config.CLIConfig) {
	level := logging.LevelInfo
	if c.Debug {
		level = logging.LevelDebug
	}
	logging.SetGlobal(logging.NewLogger(&logging.Config{
		Level:       level,
		ServiceName: "studynotes",
		JSONFormat:  c.LogFormat == config.LogFormatJSON,
		Output:      os.Stderr,
	}))
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the studynotes CLI.

Examples:
  studynotes version
  studynotes version --output-json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get("studynotes")
		out := cmd.OutOrStdout()

		if versionOutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Fprintf(out, "studynotes version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s (%s)\n", info.GoVersion, info.Platform)
		return nil
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the studynotes configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration (file, environment and flags combined).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := config.ConfigPath()
		if cfgFile != "" {
			configPath = config.ExpandPath(cfgFile)
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:     %s\n", configPath)
		fmt.Fprintf(out, "  Timeout:         %s\n", cfg.Timeout)
		fmt.Fprintf(out, "  Output format:   %s\n", cfg.OutputFormat)
		fmt.Fprintf(out, "  Log format:      %s\n", cfg.LogFormat)
		fmt.Fprintf(out, "  Provider:        %s\n", cfg.Generation.Provider)
		fmt.Fprintf(out, "  Model:           %s\n", cfg.Generation.Model)
		fmt.Fprintf(out, "  Max retries:     %d\n", cfg.Generation.MaxRetries)
		fmt.Fprintf(out, "  API keys:        %d configured\n", len(cfg.Generation.APIKeys))
		fmt.Fprintf(out, "  Cache:           %s\n", valueOrDefault(cfg.Cache.Addr, "(disabled)"))
		fmt.Fprintf(out, "  Events:          %t\n", cfg.Events.Enabled)
		fmt.Fprintf(out, "  Short sections:  %s\n", cfg.Heuristics.ShortSectionPolicy)
		fmt.Fprintf(out, "  Max chunk words: %d\n", cfg.Heuristics.MaxChunkWords)
		fmt.Fprintf(out, "  Concurrency:     %d sections, %d chunks\n", cfg.Concurrency.Sections, cfg.Concurrency.Chunks)
		fmt.Fprintf(out, "  Metrics address: %s\n", valueOrDefault(cfg.MetricsAddr, "(not set)"))
		fmt.Fprintf(out, "  Debug:           %t\n", cfg.Debug)

		return nil
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}
		out := cmd.OutOrStdout()

		// Check if config already exists.
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'studynotes config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  Model:          %s\n", defaultCfg.Generation.Model)
		fmt.Fprintf(out, "  Timeout:        %s\n", defaultCfg.Timeout)
		fmt.Fprintf(out, "  Output format:  %s\n", defaultCfg.OutputFormat)

		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  timeout              - Overall run timeout (e.g., 10m, 1h)
  output_format        - Default output format (text, json, yaml)
  log_format           - Log format (console, json)
  model                - Gemini model name
  provider             - gemini or vertex
  max_retries          - Retries per generation call
  cache_addr           - Redis address for the response cache (empty disables)
  events               - Publish watch events over Redis (true/false)
  short_section_policy - drop or merge
  max_chunk_words      - Words per generation call
  metrics_addr         - Address for /metrics in watch mode
  debug                - Enable debug logging (true/false)

Examples:
  studynotes config set model gemini-2.5-flash
  studynotes config set short_section_policy merge
  studynotes config set cache_addr localhost:6379`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		// Load current config.
		currentCfg, err := config.LoadConfig()
		if err != nil {
			// If config doesn't exist or is invalid, start with defaults.
			currentCfg = config.DefaultConfig()
		}

		if err := setConfigValue(currentCfg, key, value); err != nil {
			return err
		}
		if err := currentCfg.Validate(); err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}

		if err := config.SaveConfig(currentCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// setConfigValue applies one key/value pair to c.
func setConfigValue(c *config.CLIConfig, key, value string) error {
	switch key {
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		c.Timeout = d
	case "output_format":
		format := config.OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		c.OutputFormat = format
	case "log_format":
		c.LogFormat = config.LogFormat(value)
	case "model":
		c.Generation.Model = value
	case "provider":
		c.Generation.Provider = value
	case "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_retries value: %s", value)
		}
		c.Generation.MaxRetries = n
	case "cache_addr":
		c.Cache.Addr = value
	case "events":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Events.Enabled = b
	case "short_section_policy":
		c.Heuristics.ShortSectionPolicy = value
	case "max_chunk_words":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_chunk_words value: %s", value)
		}
		c.Heuristics.MaxChunkWords = n
	case "metrics_addr":
		c.MetricsAddr = value
	case "debug":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Debug = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	switch value {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s value: %s (must be true or false)", key, value)
	}
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for studynotes.

To load completions:

Bash:
  $ source <(studynotes completion bash)

Zsh:
  $ studynotes completion zsh > "${fpath[1]}/_studynotes"

Fish:
  $ studynotes completion fish | source`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
	},
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// loadedConfig hands the config loaded in PersistentPreRunE to the commands.
func loadedConfig() (*config.CLIConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.studynotes/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall run timeout (e.g., 10m, 1h)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add command groups for organized help output.
	rootCmd.AddGroup(
		&cobra.Group{ID: "notes", Title: "Study Notes:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	pipelineDeps := cmd.DefaultPipelineDeps()
	pipelineDeps.LoadConfig = loadedConfig

	for _, c := range []*cobra.Command{
		cmd.NewSummarizeCommand(pipelineDeps),
		cmd.NewSectionsCommand(pipelineDeps),
		cmd.NewDecodeCommand(pipelineDeps),
		cmd.NewWatchCommand(pipelineDeps),
	} {
		c.GroupID = "notes"
		rootCmd.AddCommand(c)
	}

	authDeps := cmd.DefaultAuthDeps()
	authDeps.LoadConfig = loadedConfig
	authCmd := cmd.NewAuthCommand(authDeps)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)

	versionCmd.GroupID = "setup"
	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)

	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)
}

func main() {
	// Cancel in-flight work on SIGINT/SIGTERM; watch drains before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
