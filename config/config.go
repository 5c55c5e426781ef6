// Package config provides CLI configuration management for the studynotes command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/studynotes-cli/pkg/chunking"
	"github.com/otherjamesbrown/studynotes-cli/pkg/generation"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// LogFormat selects the log encoder.
type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// Default configuration values.
const (
	DefaultTimeout           = 30 * time.Minute
	DefaultOutputFormat      = OutputFormatText
	DefaultLogFormat         = LogFormatConsole
	DefaultConfigDir         = ".studynotes"
	DefaultConfigFile        = "config.yaml"
	DefaultProvider          = generation.ProviderGemini
	DefaultGenerationTimeout = 2 * time.Minute
	DefaultCacheTTL          = 7 * 24 * time.Hour
	DefaultVertexLocation    = "us-central1"
)

// GenerationConfig configures the text generation backend.
type GenerationConfig struct {
	// Provider is "gemini" (API keys) or "vertex" (project and location).
	Provider string `yaml:"provider"`

	// Model is the model name, e.g. gemini-2.5-flash.
	Model string `yaml:"model"`

	// APIKeys are rotated when one is rate limited. Keys stored in the
	// system keyring are appended by the CLI at startup.
	APIKeys []string `yaml:"api_keys,omitempty"`

	Project  string `yaml:"project,omitempty"`
	Location string `yaml:"location,omitempty"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `yaml:"timeout"`

	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RetryPolicy builds the retry policy for the generation decorator.
func (g GenerationConfig) RetryPolicy() generation.RetryPolicy {
	policy := generation.DefaultRetryPolicy()
	policy.MaxRetries = g.MaxRetries
	if g.InitialBackoff > 0 {
		policy.InitialBackoff = g.InitialBackoff
	}
	if g.MaxBackoff > 0 {
		policy.MaxBackoff = g.MaxBackoff
	}
	return policy
}

// CacheConfig holds the Redis response cache settings. The cache is
// disabled when Addr is empty.
type CacheConfig struct {
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix,omitempty"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.Addr != ""
}

// EventsConfig controls document events published over Redis pub/sub in
// watch mode. Events reuse the cache connection settings.
type EventsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// HeuristicsConfig holds the section detector and chunker tunables.
// Durations are in seconds of transcript time.
type HeuristicsConfig struct {
	// TransitionPhrases replaces the built-in phrase table when non-empty.
	// Each phrase is a case-insensitive regular expression.
	TransitionPhrases     []string `yaml:"transition_phrases,omitempty"`
	PauseThreshold        float64  `yaml:"pause_threshold"`
	MinPauseEntries       int      `yaml:"min_pause_entries"`
	MinSectionDuration    float64  `yaml:"min_section_duration"`
	FallbackSliceDuration float64  `yaml:"fallback_slice_duration"`
	MinFallbackParts      int      `yaml:"min_fallback_parts"`
	MaxChunkWords         int      `yaml:"max_chunk_words"`
	ShortSectionPolicy    string   `yaml:"short_section_policy"`
}

// Build turns the configured values into detector heuristics.
func (h HeuristicsConfig) Build() (sections.Heuristics, error) {
	out := sections.DefaultHeuristics()
	if len(h.TransitionPhrases) > 0 {
		patterns, err := sections.CompilePhrases(h.TransitionPhrases)
		if err != nil {
			return sections.Heuristics{}, err
		}
		out.TransitionPatterns = patterns
	}
	policy, err := sections.ParseShortSectionPolicy(h.ShortSectionPolicy)
	if err != nil {
		return sections.Heuristics{}, err
	}
	out.PauseThreshold = h.PauseThreshold
	out.MinPauseEntries = h.MinPauseEntries
	out.MinSectionDuration = h.MinSectionDuration
	out.FallbackSliceDuration = h.FallbackSliceDuration
	out.MinFallbackParts = h.MinFallbackParts
	out.ShortSectionPolicy = policy
	if err := out.Validate(); err != nil {
		return sections.Heuristics{}, err
	}
	return out, nil
}

// ConcurrencyConfig bounds parallel generation. 1 means sequential.
type ConcurrencyConfig struct {
	Sections int `yaml:"sections"`
	Chunks   int `yaml:"chunks"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// Timeout bounds a whole command run.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// LogFormat is console or json.
	LogFormat LogFormat `yaml:"log_format"`

	Generation  GenerationConfig  `yaml:"generation"`
	Cache       CacheConfig       `yaml:"cache"`
	Events      EventsConfig      `yaml:"events"`
	Heuristics  HeuristicsConfig  `yaml:"heuristics"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`

	// MetricsAddr is where watch mode serves /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	h := sections.DefaultHeuristics()
	retry := generation.DefaultRetryPolicy()
	return &CLIConfig{
		Timeout:      DefaultTimeout,
		OutputFormat: DefaultOutputFormat,
		LogFormat:    DefaultLogFormat,
		Generation: GenerationConfig{
			Provider:       DefaultProvider,
			Model:          generation.DefaultGeminiModel,
			Location:       DefaultVertexLocation,
			Timeout:        DefaultGenerationTimeout,
			MaxRetries:     retry.MaxRetries,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
		},
		Cache: CacheConfig{
			TTL:    DefaultCacheTTL,
			Prefix: generation.DefaultCachePrefix,
		},
		Heuristics: HeuristicsConfig{
			PauseThreshold:        h.PauseThreshold,
			MinPauseEntries:       h.MinPauseEntries,
			MinSectionDuration:    h.MinSectionDuration,
			FallbackSliceDuration: h.FallbackSliceDuration,
			MinFallbackParts:      h.MinFallbackParts,
			MaxChunkWords:         chunking.DefaultMaxWords,
			ShortSectionPolicy:    string(h.ShortSectionPolicy),
		},
		Concurrency: ConcurrencyConfig{
			Sections: 1,
			Chunks:   1,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $STUDYNOTES_CONFIG_DIR if set, otherwise ~/.studynotes
func ConfigDir() (string, error) {
	if dir := os.Getenv("STUDYNOTES_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from the default file location and
// environment variables.
func LoadConfig() (*CLIConfig, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return load(configPath, false)
}

// LoadConfigFrom loads configuration from an explicit file, which must exist.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file
// 3. Environment variables (STUDYNOTES_*)
func LoadConfigFrom(path string) (*CLIConfig, error) {
	return load(ExpandPath(path), true)
}

func load(configPath string, required bool) (*CLIConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	} else if required {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	// Overlay environment variables.
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile mirrors CLIConfig with durations as strings.
type configFile struct {
	Timeout      string       `yaml:"timeout,omitempty"`
	OutputFormat OutputFormat `yaml:"output_format,omitempty"`
	Debug        bool         `yaml:"debug,omitempty"`
	LogFormat    LogFormat    `yaml:"log_format,omitempty"`
	Generation   struct {
		Provider       string   `yaml:"provider,omitempty"`
		Model          string   `yaml:"model,omitempty"`
		APIKeys        []string `yaml:"api_keys,omitempty"`
		Project        string   `yaml:"project,omitempty"`
		Location       string   `yaml:"location,omitempty"`
		Timeout        string   `yaml:"timeout,omitempty"`
		MaxRetries     *int     `yaml:"max_retries,omitempty"`
		InitialBackoff string   `yaml:"initial_backoff,omitempty"`
		MaxBackoff     string   `yaml:"max_backoff,omitempty"`
	} `yaml:"generation"`
	Cache struct {
		Addr     string `yaml:"addr,omitempty"`
		Password string `yaml:"password,omitempty"`
		DB       int    `yaml:"db,omitempty"`
		TTL      string `yaml:"ttl,omitempty"`
		Prefix   string `yaml:"prefix,omitempty"`
	} `yaml:"cache"`
	Events     EventsConfig `yaml:"events,omitempty"`
	Heuristics struct {
		TransitionPhrases     []string `yaml:"transition_phrases,omitempty"`
		PauseThreshold        *float64 `yaml:"pause_threshold,omitempty"`
		MinPauseEntries       *int     `yaml:"min_pause_entries,omitempty"`
		MinSectionDuration    *float64 `yaml:"min_section_duration,omitempty"`
		FallbackSliceDuration *float64 `yaml:"fallback_slice_duration,omitempty"`
		MinFallbackParts      *int     `yaml:"min_fallback_parts,omitempty"`
		MaxChunkWords         *int     `yaml:"max_chunk_words,omitempty"`
		ShortSectionPolicy    string   `yaml:"short_section_policy,omitempty"`
	} `yaml:"heuristics"`
	Concurrency ConcurrencyConfig `yaml:"concurrency,omitempty"`
	MetricsAddr string            `yaml:"metrics_addr,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if err := setDuration(&cfg.Timeout, fileCfg.Timeout, "timeout"); err != nil {
		return err
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.LogFormat != "" {
		cfg.LogFormat = fileCfg.LogFormat
	}
	cfg.Debug = fileCfg.Debug

	gen := fileCfg.Generation
	if gen.Provider != "" {
		cfg.Generation.Provider = gen.Provider
	}
	if gen.Model != "" {
		cfg.Generation.Model = gen.Model
	}
	if gen.APIKeys != nil {
		cfg.Generation.APIKeys = gen.APIKeys
	}
	if gen.Project != "" {
		cfg.Generation.Project = gen.Project
	}
	if gen.Location != "" {
		cfg.Generation.Location = gen.Location
	}
	if gen.MaxRetries != nil {
		cfg.Generation.MaxRetries = *gen.MaxRetries
	}
	if err := setDuration(&cfg.Generation.Timeout, gen.Timeout, "generation.timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Generation.InitialBackoff, gen.InitialBackoff, "generation.initial_backoff"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Generation.MaxBackoff, gen.MaxBackoff, "generation.max_backoff"); err != nil {
		return err
	}

	cache := fileCfg.Cache
	if cache.Addr != "" {
		cfg.Cache.Addr = cache.Addr
	}
	if cache.Password != "" {
		cfg.Cache.Password = cache.Password
	}
	if cache.DB != 0 {
		cfg.Cache.DB = cache.DB
	}
	if cache.Prefix != "" {
		cfg.Cache.Prefix = cache.Prefix
	}
	if err := setDuration(&cfg.Cache.TTL, cache.TTL, "cache.ttl"); err != nil {
		return err
	}

	cfg.Events = fileCfg.Events

	h := fileCfg.Heuristics
	if h.TransitionPhrases != nil {
		cfg.Heuristics.TransitionPhrases = h.TransitionPhrases
	}
	if h.PauseThreshold != nil {
		cfg.Heuristics.PauseThreshold = *h.PauseThreshold
	}
	if h.MinPauseEntries != nil {
		cfg.Heuristics.MinPauseEntries = *h.MinPauseEntries
	}
	if h.MinSectionDuration != nil {
		cfg.Heuristics.MinSectionDuration = *h.MinSectionDuration
	}
	if h.FallbackSliceDuration != nil {
		cfg.Heuristics.FallbackSliceDuration = *h.FallbackSliceDuration
	}
	if h.MinFallbackParts != nil {
		cfg.Heuristics.MinFallbackParts = *h.MinFallbackParts
	}
	if h.MaxChunkWords != nil {
		cfg.Heuristics.MaxChunkWords = *h.MaxChunkWords
	}
	if h.ShortSectionPolicy != "" {
		cfg.Heuristics.ShortSectionPolicy = h.ShortSectionPolicy
	}

	if fileCfg.Concurrency.Sections != 0 {
		cfg.Concurrency.Sections = fileCfg.Concurrency.Sections
	}
	if fileCfg.Concurrency.Chunks != 0 {
		cfg.Concurrency.Chunks = fileCfg.Concurrency.Chunks
	}
	if fileCfg.MetricsAddr != "" {
		cfg.MetricsAddr = fileCfg.MetricsAddr
	}

	return nil
}

func setDuration(dst *time.Duration, value, name string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
// Unparsable numeric or duration values are ignored.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("STUDYNOTES_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("STUDYNOTES_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("STUDYNOTES_LOG_FORMAT"); v != "" {
		cfg.LogFormat = LogFormat(v)
	}

	if v := os.Getenv("STUDYNOTES_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	// Generation environment variables.
	if v := os.Getenv("STUDYNOTES_PROVIDER"); v != "" {
		cfg.Generation.Provider = v
	}

	if v := os.Getenv("STUDYNOTES_MODEL"); v != "" {
		cfg.Generation.Model = v
	}

	if v := os.Getenv("STUDYNOTES_API_KEYS"); v != "" {
		cfg.Generation.APIKeys = splitList(v)
	}

	if v := os.Getenv("STUDYNOTES_VERTEX_PROJECT"); v != "" {
		cfg.Generation.Project = v
	}

	if v := os.Getenv("STUDYNOTES_VERTEX_LOCATION"); v != "" {
		cfg.Generation.Location = v
	}

	if v := os.Getenv("STUDYNOTES_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.MaxRetries = n
		}
	}

	// Cache environment variables.
	if v := os.Getenv("STUDYNOTES_REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}

	if v := os.Getenv("STUDYNOTES_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}

	if v := os.Getenv("STUDYNOTES_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = ttl
		}
	}

	if v := os.Getenv("STUDYNOTES_EVENTS_ENABLED"); v == "true" || v == "1" {
		cfg.Events.Enabled = true
	}

	if v := os.Getenv("STUDYNOTES_SHORT_SECTION_POLICY"); v != "" {
		cfg.Heuristics.ShortSectionPolicy = v
	}

	if v := os.Getenv("STUDYNOTES_MAX_CHUNK_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Heuristics.MaxChunkWords = n
		}
	}

	if v := os.Getenv("STUDYNOTES_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}

	switch c.Generation.Provider {
	case generation.ProviderGemini, generation.ProviderVertex:
	default:
		return fmt.Errorf("invalid generation.provider: %q (must be gemini or vertex)", c.Generation.Provider)
	}

	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}

	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must not be negative")
	}

	if c.Cache.Enabled() && c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	if c.Heuristics.MaxChunkWords <= 0 {
		return fmt.Errorf("heuristics.max_chunk_words must be positive")
	}

	if _, err := c.Heuristics.Build(); err != nil {
		return fmt.Errorf("heuristics: %w", err)
	}

	if c.Concurrency.Sections < 1 || c.Concurrency.Chunks < 1 {
		return fmt.Errorf("concurrency values must be at least 1")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	// Ensure config directory exists.
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	var fileCfg configFile
	fileCfg.Timeout = cfg.Timeout.String()
	fileCfg.OutputFormat = cfg.OutputFormat
	fileCfg.Debug = cfg.Debug
	fileCfg.LogFormat = cfg.LogFormat

	fileCfg.Generation.Provider = cfg.Generation.Provider
	fileCfg.Generation.Model = cfg.Generation.Model
	fileCfg.Generation.APIKeys = cfg.Generation.APIKeys
	fileCfg.Generation.Project = cfg.Generation.Project
	fileCfg.Generation.Location = cfg.Generation.Location
	fileCfg.Generation.Timeout = cfg.Generation.Timeout.String()
	fileCfg.Generation.MaxRetries = &cfg.Generation.MaxRetries
	fileCfg.Generation.InitialBackoff = cfg.Generation.InitialBackoff.String()
	fileCfg.Generation.MaxBackoff = cfg.Generation.MaxBackoff.String()

	fileCfg.Cache.Addr = cfg.Cache.Addr
	fileCfg.Cache.Password = cfg.Cache.Password
	fileCfg.Cache.DB = cfg.Cache.DB
	fileCfg.Cache.TTL = cfg.Cache.TTL.String()
	fileCfg.Cache.Prefix = cfg.Cache.Prefix

	fileCfg.Events = cfg.Events

	h := cfg.Heuristics
	fileCfg.Heuristics.TransitionPhrases = h.TransitionPhrases
	fileCfg.Heuristics.PauseThreshold = &h.PauseThreshold
	fileCfg.Heuristics.MinPauseEntries = &h.MinPauseEntries
	fileCfg.Heuristics.MinSectionDuration = &h.MinSectionDuration
	fileCfg.Heuristics.FallbackSliceDuration = &h.FallbackSliceDuration
	fileCfg.Heuristics.MinFallbackParts = &h.MinFallbackParts
	fileCfg.Heuristics.MaxChunkWords = &h.MaxChunkWords
	fileCfg.Heuristics.ShortSectionPolicy = h.ShortSectionPolicy

	fileCfg.Concurrency = cfg.Concurrency
	fileCfg.MetricsAddr = cfg.MetricsAddr

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return original if home dir lookup fails.
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
