package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otherjamesbrown/studynotes-cli/pkg/generation"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
)

var envVars = []string{
	"STUDYNOTES_CONFIG_DIR",
	"STUDYNOTES_TIMEOUT",
	"STUDYNOTES_OUTPUT_FORMAT",
	"STUDYNOTES_LOG_FORMAT",
	"STUDYNOTES_DEBUG",
	"STUDYNOTES_PROVIDER",
	"STUDYNOTES_MODEL",
	"STUDYNOTES_API_KEYS",
	"STUDYNOTES_VERTEX_PROJECT",
	"STUDYNOTES_VERTEX_LOCATION",
	"STUDYNOTES_MAX_RETRIES",
	"STUDYNOTES_REDIS_ADDR",
	"STUDYNOTES_REDIS_PASSWORD",
	"STUDYNOTES_CACHE_TTL",
	"STUDYNOTES_EVENTS_ENABLED",
	"STUDYNOTES_SHORT_SECTION_POLICY",
	"STUDYNOTES_MAX_CHUNK_WORDS",
	"STUDYNOTES_METRICS_ADDR",
}

// isolateEnv clears every STUDYNOTES_ variable and points the config dir at
// a fresh temp directory.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("STUDYNOTES_CONFIG_DIR", dir)
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.OutputFormat != DefaultOutputFormat {
		t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, DefaultOutputFormat)
	}
	if cfg.LogFormat != LogFormatConsole {
		t.Errorf("LogFormat = %v, want console", cfg.LogFormat)
	}
	if cfg.Debug {
		t.Error("Debug should be false by default")
	}
	if cfg.Generation.Model != generation.DefaultGeminiModel {
		t.Errorf("Generation.Model = %v, want %v", cfg.Generation.Model, generation.DefaultGeminiModel)
	}
	if cfg.Generation.MaxRetries != 3 {
		t.Errorf("Generation.MaxRetries = %v, want 3", cfg.Generation.MaxRetries)
	}
	if cfg.Cache.Enabled() {
		t.Error("Cache should be disabled by default")
	}
	if cfg.Heuristics.MaxChunkWords != 1500 {
		t.Errorf("Heuristics.MaxChunkWords = %v, want 1500", cfg.Heuristics.MaxChunkWords)
	}
	if cfg.Heuristics.MinSectionDuration != 300 {
		t.Errorf("Heuristics.MinSectionDuration = %v, want 300", cfg.Heuristics.MinSectionDuration)
	}
	if cfg.Heuristics.ShortSectionPolicy != "drop" {
		t.Errorf("Heuristics.ShortSectionPolicy = %v, want drop", cfg.Heuristics.ShortSectionPolicy)
	}
	if cfg.Concurrency.Sections != 1 || cfg.Concurrency.Chunks != 1 {
		t.Errorf("Concurrency = %+v, want sequential", cfg.Concurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

// TestOutputFormat_IsValid verifies output format validation.
func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{OutputFormat("xml"), false},
		{OutputFormat(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCLIConfig_Validate verifies configuration validation.
func TestCLIConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*CLIConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *CLIConfig) {}},
		{name: "zero timeout", modify: func(c *CLIConfig) { c.Timeout = 0 }, wantErr: true},
		{name: "bad output format", modify: func(c *CLIConfig) { c.OutputFormat = "xml" }, wantErr: true},
		{name: "bad log format", modify: func(c *CLIConfig) { c.LogFormat = "logfmt" }, wantErr: true},
		{name: "unknown provider", modify: func(c *CLIConfig) { c.Generation.Provider = "openai" }, wantErr: true},
		{name: "vertex provider", modify: func(c *CLIConfig) { c.Generation.Provider = "vertex" }},
		{name: "empty model", modify: func(c *CLIConfig) { c.Generation.Model = "" }, wantErr: true},
		{name: "negative retries", modify: func(c *CLIConfig) { c.Generation.MaxRetries = -1 }, wantErr: true},
		{name: "zero chunk words", modify: func(c *CLIConfig) { c.Heuristics.MaxChunkWords = 0 }, wantErr: true},
		{name: "unknown policy", modify: func(c *CLIConfig) { c.Heuristics.ShortSectionPolicy = "keep" }, wantErr: true},
		{name: "merge policy", modify: func(c *CLIConfig) { c.Heuristics.ShortSectionPolicy = "merge" }},
		{name: "bad phrase", modify: func(c *CLIConfig) { c.Heuristics.TransitionPhrases = []string{"("} }, wantErr: true},
		{name: "zero fallback slice", modify: func(c *CLIConfig) { c.Heuristics.FallbackSliceDuration = 0 }, wantErr: true},
		{name: "zero concurrency", modify: func(c *CLIConfig) { c.Concurrency.Chunks = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestConfigDir verifies config directory path resolution.
func TestConfigDir(t *testing.T) {
	t.Run("with env var", func(t *testing.T) {
		customDir := "/tmp/test-studynotes-config"
		t.Setenv("STUDYNOTES_CONFIG_DIR", customDir)

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if dir != customDir {
			t.Errorf("ConfigDir() = %v, want %v", dir, customDir)
		}
	})

	t.Run("default without env var", func(t *testing.T) {
		t.Setenv("STUDYNOTES_CONFIG_DIR", "")

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultConfigDir)
		if dir != expected {
			t.Errorf("ConfigDir() = %v, want %v", dir, expected)
		}
	})
}

// TestConfigPath verifies config file path resolution.
func TestConfigPath(t *testing.T) {
	dir := isolateEnv(t)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}

	expected := filepath.Join(dir, DefaultConfigFile)
	if path != expected {
		t.Errorf("ConfigPath() = %v, want %v", path, expected)
	}
}

// TestLoadConfig_Defaults verifies default values when no config exists.
func TestLoadConfig_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.Generation.Provider != DefaultProvider {
		t.Errorf("Generation.Provider = %v, want %v", cfg.Generation.Provider, DefaultProvider)
	}
}

// TestLoadConfig_FromFile verifies loading from YAML file.
func TestLoadConfig_FromFile(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, `
timeout: 5m
output_format: json
log_format: json
debug: true
generation:
  model: gemini-2.5-pro
  api_keys: [key-a, key-b]
  timeout: 45s
  max_retries: 0
  initial_backoff: 500ms
cache:
  addr: localhost:6379
  ttl: 1h
  prefix: "notes:"
events:
  enabled: true
heuristics:
  transition_phrases: ['\bnext up\b']
  min_section_duration: 0
  max_chunk_words: 200
  short_section_policy: merge
concurrency:
  sections: 2
  chunks: 4
metrics_addr: ":9090"
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %v, want json", cfg.LogFormat)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Generation.Model != "gemini-2.5-pro" {
		t.Errorf("Generation.Model = %v, want gemini-2.5-pro", cfg.Generation.Model)
	}
	if len(cfg.Generation.APIKeys) != 2 {
		t.Errorf("Generation.APIKeys = %v, want 2 keys", cfg.Generation.APIKeys)
	}
	if cfg.Generation.Timeout != 45*time.Second {
		t.Errorf("Generation.Timeout = %v, want 45s", cfg.Generation.Timeout)
	}
	if cfg.Generation.MaxRetries != 0 {
		t.Errorf("Generation.MaxRetries = %v, want 0", cfg.Generation.MaxRetries)
	}
	if cfg.Generation.InitialBackoff != 500*time.Millisecond {
		t.Errorf("Generation.InitialBackoff = %v, want 500ms", cfg.Generation.InitialBackoff)
	}
	if cfg.Generation.MaxBackoff != generation.DefaultRetryPolicy().MaxBackoff {
		t.Errorf("Generation.MaxBackoff = %v, want default", cfg.Generation.MaxBackoff)
	}
	if !cfg.Cache.Enabled() || cfg.Cache.TTL != time.Hour || cfg.Cache.Prefix != "notes:" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if !cfg.Events.Enabled {
		t.Error("Events.Enabled should be true")
	}
	if cfg.Heuristics.MinSectionDuration != 0 {
		t.Errorf("Heuristics.MinSectionDuration = %v, want 0", cfg.Heuristics.MinSectionDuration)
	}
	if cfg.Heuristics.PauseThreshold != 3 {
		t.Errorf("Heuristics.PauseThreshold = %v, want default 3", cfg.Heuristics.PauseThreshold)
	}
	if cfg.Heuristics.MaxChunkWords != 200 {
		t.Errorf("Heuristics.MaxChunkWords = %v, want 200", cfg.Heuristics.MaxChunkWords)
	}
	if cfg.Concurrency.Sections != 2 || cfg.Concurrency.Chunks != 4 {
		t.Errorf("Concurrency = %+v, want {2 4}", cfg.Concurrency)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %v, want :9090", cfg.MetricsAddr)
	}

	h, err := cfg.Heuristics.Build()
	if err != nil {
		t.Fatalf("Heuristics.Build() error = %v", err)
	}
	if h.ShortSectionPolicy != sections.PolicyMerge {
		t.Errorf("ShortSectionPolicy = %v, want merge", h.ShortSectionPolicy)
	}
	if len(h.TransitionPatterns) != 1 || !h.TransitionPatterns[0].MatchString("Next Up we have loops") {
		t.Errorf("TransitionPatterns = %v, want the configured phrase", h.TransitionPatterns)
	}
}

// TestLoadConfig_WithEnvOverrides verifies environment variables win over the file.
func TestLoadConfig_WithEnvOverrides(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "timeout: 5m\ngeneration:\n  model: from-file\n")

	t.Setenv("STUDYNOTES_TIMEOUT", "45s")
	t.Setenv("STUDYNOTES_OUTPUT_FORMAT", "yaml")
	t.Setenv("STUDYNOTES_DEBUG", "1")
	t.Setenv("STUDYNOTES_MODEL", "from-env")
	t.Setenv("STUDYNOTES_API_KEYS", "one, two,,three")
	t.Setenv("STUDYNOTES_REDIS_ADDR", "redis:6379")
	t.Setenv("STUDYNOTES_EVENTS_ENABLED", "true")
	t.Setenv("STUDYNOTES_SHORT_SECTION_POLICY", "merge")
	t.Setenv("STUDYNOTES_MAX_CHUNK_WORDS", "700")
	t.Setenv("STUDYNOTES_METRICS_ADDR", ":9191")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatYAML {
		t.Errorf("OutputFormat = %v, want yaml", cfg.OutputFormat)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Generation.Model != "from-env" {
		t.Errorf("Generation.Model = %v, want from-env", cfg.Generation.Model)
	}
	want := []string{"one", "two", "three"}
	if len(cfg.Generation.APIKeys) != len(want) {
		t.Fatalf("Generation.APIKeys = %v, want %v", cfg.Generation.APIKeys, want)
	}
	for i := range want {
		if cfg.Generation.APIKeys[i] != want[i] {
			t.Errorf("APIKeys[%d] = %v, want %v", i, cfg.Generation.APIKeys[i], want[i])
		}
	}
	if cfg.Cache.Addr != "redis:6379" {
		t.Errorf("Cache.Addr = %v, want redis:6379", cfg.Cache.Addr)
	}
	if !cfg.Events.Enabled {
		t.Error("Events.Enabled should be true")
	}
	if cfg.Heuristics.ShortSectionPolicy != "merge" {
		t.Errorf("ShortSectionPolicy = %v, want merge", cfg.Heuristics.ShortSectionPolicy)
	}
	if cfg.Heuristics.MaxChunkWords != 700 {
		t.Errorf("MaxChunkWords = %v, want 700", cfg.Heuristics.MaxChunkWords)
	}
	if cfg.MetricsAddr != ":9191" {
		t.Errorf("MetricsAddr = %v, want :9191", cfg.MetricsAddr)
	}
}

// TestLoadFromEnv_InvalidValues verifies unparsable env values are ignored.
func TestLoadFromEnv_InvalidValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STUDYNOTES_TIMEOUT", "soon")
	t.Setenv("STUDYNOTES_MAX_RETRIES", "many")
	t.Setenv("STUDYNOTES_CACHE_TTL", "forever")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.Generation.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v, want 3", cfg.Generation.MaxRetries)
	}
	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, DefaultCacheTTL)
	}
}

// TestLoadConfig_InvalidTimeout verifies error handling for bad durations in the file.
func TestLoadConfig_InvalidTimeout(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "generation:\n  timeout: not-a-duration\n")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should fail for invalid generation.timeout")
	}
}

// TestLoadConfig_InvalidPolicy verifies validation runs after loading.
func TestLoadConfig_InvalidPolicy(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "heuristics:\n  short_section_policy: keep\n")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should fail for an unknown policy")
	}
	if !errors.Is(err, sterrors.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

// TestLoadConfigFrom verifies loading from an explicit path.
func TestLoadConfigFrom(t *testing.T) {
	isolateEnv(t)
	other := t.TempDir()
	path := writeConfig(t, other, "output_format: yaml\n")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if cfg.OutputFormat != OutputFormatYAML {
		t.Errorf("OutputFormat = %v, want yaml", cfg.OutputFormat)
	}

	if _, err := LoadConfigFrom(filepath.Join(other, "missing.yaml")); err == nil {
		t.Error("LoadConfigFrom() should fail for a missing file")
	}
}

// TestSaveConfig verifies a saved config loads back unchanged.
func TestSaveConfig(t *testing.T) {
	isolateEnv(t)

	cfg := DefaultConfig()
	cfg.Timeout = 60 * time.Second
	cfg.OutputFormat = OutputFormatYAML
	cfg.Debug = true
	cfg.Generation.APIKeys = []string{"saved-key"}
	cfg.Generation.MaxRetries = 0
	cfg.Cache.Addr = "localhost:6379"
	cfg.Cache.TTL = 2 * time.Hour
	cfg.Heuristics.MinSectionDuration = 0
	cfg.Heuristics.ShortSectionPolicy = "merge"
	cfg.Concurrency.Chunks = 3

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if loaded.Timeout != cfg.Timeout {
		t.Errorf("Timeout = %v, want %v", loaded.Timeout, cfg.Timeout)
	}
	if loaded.OutputFormat != cfg.OutputFormat {
		t.Errorf("OutputFormat = %v, want %v", loaded.OutputFormat, cfg.OutputFormat)
	}
	if loaded.Debug != cfg.Debug {
		t.Errorf("Debug = %v, want %v", loaded.Debug, cfg.Debug)
	}
	if len(loaded.Generation.APIKeys) != 1 || loaded.Generation.APIKeys[0] != "saved-key" {
		t.Errorf("Generation.APIKeys = %v, want [saved-key]", loaded.Generation.APIKeys)
	}
	if loaded.Generation.MaxRetries != 0 {
		t.Errorf("Generation.MaxRetries = %v, want 0", loaded.Generation.MaxRetries)
	}
	if loaded.Cache.TTL != cfg.Cache.TTL {
		t.Errorf("Cache.TTL = %v, want %v", loaded.Cache.TTL, cfg.Cache.TTL)
	}
	if loaded.Heuristics.MinSectionDuration != 0 {
		t.Errorf("MinSectionDuration = %v, want 0", loaded.Heuristics.MinSectionDuration)
	}
	if loaded.Heuristics.ShortSectionPolicy != "merge" {
		t.Errorf("ShortSectionPolicy = %v, want merge", loaded.Heuristics.ShortSectionPolicy)
	}
	if loaded.Concurrency.Chunks != 3 {
		t.Errorf("Concurrency.Chunks = %v, want 3", loaded.Concurrency.Chunks)
	}
}

// TestSaveConfig_CreatesDirectory verifies SaveConfig creates a missing directory.
func TestSaveConfig_CreatesDirectory(t *testing.T) {
	isolateEnv(t)
	nested := filepath.Join(t.TempDir(), "nested", "dir")
	t.Setenv("STUDYNOTES_CONFIG_DIR", nested)

	if err := SaveConfig(DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(nested, DefaultConfigFile)); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

// TestFilePermissions verifies config file permissions.
func TestFilePermissions(t *testing.T) {
	dir := isolateEnv(t)

	if err := SaveConfig(DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	// Should be 0600 (owner read/write only)
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("File permissions = %o, want 0600", mode)
	}
}

// TestEnsureConfigDir verifies directory creation.
func TestEnsureConfigDir(t *testing.T) {
	isolateEnv(t)
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv("STUDYNOTES_CONFIG_DIR", dir)

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}

func TestGenerationConfig_RetryPolicy(t *testing.T) {
	g := GenerationConfig{MaxRetries: 5, InitialBackoff: time.Second}
	policy := g.RetryPolicy()

	if policy.MaxRetries != 5 {
		t.Errorf("MaxRetries = %v, want 5", policy.MaxRetries)
	}
	if policy.InitialBackoff != time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", policy.InitialBackoff)
	}
	if policy.MaxBackoff != generation.DefaultRetryPolicy().MaxBackoff {
		t.Errorf("MaxBackoff = %v, want default", policy.MaxBackoff)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandPath("~/notes"); got != filepath.Join(home, "notes") {
		t.Errorf("ExpandPath(~/notes) = %v", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %v", got)
	}
}
