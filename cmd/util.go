// Package cmd provides CLI commands for the studynotes tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/credentials"
	"github.com/otherjamesbrown/studynotes-cli/pkg/chunking"
	"github.com/otherjamesbrown/studynotes-cli/pkg/generation"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/pipeline"
	"github.com/otherjamesbrown/studynotes-cli/pkg/sections"
	"github.com/otherjamesbrown/studynotes-cli/pkg/summarize"
)

// GeneratorFactory builds the text generator for a run.
type GeneratorFactory func(ctx context.Context, cfg *config.CLIConfig, rt *Runtime) (generation.Generator, error)

// Runtime carries the shared collaborators of one command invocation.
type Runtime struct {
	Logger  logging.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Redis is set when a cache address is configured and reachable.
	Redis *redis.Client
}

// Close releases the Redis connection, if any.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Redis == nil {
		return nil
	}
	return rt.Redis.Close()
}

// connectToRedis establishes a Redis connection from the cache settings.
func connectToRedis(ctx context.Context, cfg *config.CLIConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("testing connection to %s: %w", cfg.Cache.Addr, err)
	}

	return client, nil
}

// newRuntime wires logging, metrics and tracing for one invocation.
func newRuntime(metrics *observability.Metrics) *Runtime {
	return &Runtime{
		Logger:  logging.MustGlobal(),
		Metrics: metrics,
		Tracer:  observability.NewTracer(),
	}
}

// connectCache connects to Redis when a cache address is configured. An
// unreachable Redis only disables caching and events.
func (rt *Runtime) connectCache(ctx context.Context, cfg *config.CLIConfig) {
	if !cfg.Cache.Enabled() || rt.Redis != nil {
		return
	}
	client, err := connectToRedis(ctx, cfg)
	if err != nil {
		rt.Logger.Warn("Redis unavailable, continuing without cache", logging.Err(err))
		return
	}
	rt.Redis = client
}

// DefaultGeneratorFactory builds the Gemini generator and wraps it with
// instrumentation, retry and, when Redis is available, the response cache.
func DefaultGeneratorFactory(ctx context.Context, cfg *config.CLIConfig, rt *Runtime) (generation.Generator, error) {
	gc := cfg.Generation

	var keys []string
	if gc.Provider == generation.ProviderGemini {
		resolved, source, err := credentials.NewStore().Resolve(gc.APIKeys)
		if err != nil {
			rt.Logger.Warn("Could not read API keys from keyring", logging.Err(err))
		}
		if len(resolved) == 0 {
			return nil, fmt.Errorf("no Gemini API key configured: run 'studynotes auth set-key' or set STUDYNOTES_API_KEYS")
		}
		rt.Logger.Debug("Resolved API keys", logging.F("source", source), logging.F("count", len(resolved)))
		keys = resolved
	}

	gemini, err := generation.NewGemini(ctx, generation.GeminiConfig{
		APIKeys:  keys,
		Project:  gc.Project,
		Location: gc.Location,
		Model:    gc.Model,
		Timeout:  gc.Timeout,
		Logger:   rt.Logger,
	})
	if err != nil {
		return nil, err
	}

	var gen generation.Generator = generation.WithInstrumentation(gemini, rt.Metrics, rt.Tracer, gemini.Model())
	gen = generation.WithRetry(gen, gc.RetryPolicy(), generation.WithRetryLogger(rt.Logger))
	if rt.Redis != nil {
		gen = generation.WithCache(gen, generation.NewRedisCache(rt.Redis, cfg.Cache.Prefix), cfg.Cache.TTL,
			generation.WithCacheLogger(rt.Logger),
			generation.WithCacheMetrics(rt.Metrics),
		)
	}
	return gen, nil
}

// buildPipeline assembles the detector, chunker and summarizer from config.
// gen may be nil for commands that only plan.
func buildPipeline(cfg *config.CLIConfig, gen generation.Generator, rt *Runtime) (*pipeline.Pipeline, error) {
	h, err := cfg.Heuristics.Build()
	if err != nil {
		return nil, fmt.Errorf("building section heuristics: %w", err)
	}

	detector := sections.NewDetector(h, sections.WithLogger(rt.Logger))
	summarizer := summarize.New(gen, chunking.New(cfg.Heuristics.MaxChunkWords),
		summarize.WithConcurrency(cfg.Concurrency.Chunks),
		summarize.WithLogger(rt.Logger),
		summarize.WithMetrics(rt.Metrics),
		summarize.WithTracer(rt.Tracer),
	)

	return pipeline.New(detector, summarizer,
		pipeline.WithSectionConcurrency(cfg.Concurrency.Sections),
		pipeline.WithLogger(rt.Logger),
		pipeline.WithMetrics(rt.Metrics),
		pipeline.WithTracer(rt.Tracer),
	), nil
}

// readPayload reads a caption payload from path, or from stdin when path is "-".
func readPayload(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(config.ExpandPath(path))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// titleFor picks the document title: the flag, else the file name.
func titleFor(path, flag string) string {
	if t := strings.TrimSpace(flag); t != "" {
		return t
	}
	if path == "-" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// resolveOutputFormat returns the flag value when set, else the config default.
func resolveOutputFormat(cfg *config.CLIConfig, flag string) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if flag != "" {
		format = config.OutputFormat(flag)
	}
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format: %q (must be text, json, or yaml)", format)
	}
	return format, nil
}

// outputJSON outputs data as JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML outputs data as YAML.
func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// truncate shortens s to maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
