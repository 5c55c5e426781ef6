package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/pkg/buildinfo"
)

func TestVersionCommand(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}

	if versionCmd.Use != "version" {
		t.Errorf("Unexpected Use: %s", versionCmd.Use)
	}

	if versionCmd.Short != "Print version information" {
		t.Errorf("Unexpected Short: %s", versionCmd.Short)
	}

	if versionCmd.Flags().Lookup("output-json") == nil {
		t.Error("--output-json flag not found on version command")
	}
}

func TestVersionOutput(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "studynotes version "+buildinfo.Version) {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestVersionOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionOutputJSON = true
	defer func() { versionOutputJSON = false }()

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	var info buildinfo.Info
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if info.Name != "studynotes" {
		t.Errorf("Name = %q, want studynotes", info.Name)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := []string{"summarize", "sections", "decode", "watch", "auth", "config", "version", "completion"}

	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "timeout", "output", "log-format", "debug"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s persistent flag not found", name)
		}
	}
}

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
		check   func(*config.CLIConfig) bool
	}{
		{"timeout", "10m", false, func(c *config.CLIConfig) bool { return c.Timeout == 10*time.Minute }},
		{"timeout", "soon", true, nil},
		{"output_format", "json", false, func(c *config.CLIConfig) bool { return c.OutputFormat == config.OutputFormatJSON }},
		{"output_format", "xml", true, nil},
		{"model", "gemini-2.5-pro", false, func(c *config.CLIConfig) bool { return c.Generation.Model == "gemini-2.5-pro" }},
		{"max_retries", "5", false, func(c *config.CLIConfig) bool { return c.Generation.MaxRetries == 5 }},
		{"max_retries", "many", true, nil},
		{"cache_addr", "localhost:6379", false, func(c *config.CLIConfig) bool { return c.Cache.Addr == "localhost:6379" }},
		{"events", "true", false, func(c *config.CLIConfig) bool { return c.Events.Enabled }},
		{"events", "maybe", true, nil},
		{"short_section_policy", "merge", false, func(c *config.CLIConfig) bool { return c.Heuristics.ShortSectionPolicy == "merge" }},
		{"max_chunk_words", "1500", false, func(c *config.CLIConfig) bool { return c.Heuristics.MaxChunkWords == 1500 }},
		{"debug", "1", false, func(c *config.CLIConfig) bool { return c.Debug }},
		{"unknown_key", "x", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			c := config.DefaultConfig()
			err := setConfigValue(c, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("setConfigValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(c) {
				t.Errorf("setConfigValue(%s, %s) did not apply", tt.key, tt.value)
			}
		})
	}
}

func TestValueOrDefault(t *testing.T) {
	if got := valueOrDefault("", "(not set)"); got != "(not set)" {
		t.Errorf("valueOrDefault empty = %q", got)
	}
	if got := valueOrDefault("x", "(not set)"); got != "x" {
		t.Errorf("valueOrDefault set = %q", got)
	}
}
