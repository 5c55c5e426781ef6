package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/studynotes-cli/config"
	"github.com/otherjamesbrown/studynotes-cli/pkg/buildinfo"
	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
	"github.com/otherjamesbrown/studynotes-cli/pkg/watcher"
)

// Watch command flags.
type watchOptions struct {
	outDir          string
	metricsAddr     string
	debounce        time.Duration
	maxConcurrent   int
	processExisting bool
	events          bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(deps *PipelineCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultPipelineDeps()
	}
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Summarize caption files as they appear in a directory",
		Long: `Watch a directory and write a study document for every caption file
(.vtt, .srt, .json, .json3) created or updated in it.

Documents are written to --out as <name>.md. A file is handled once it has
been quiet for the debounce interval. Failures are logged and the watcher
keeps running; press Ctrl-C to stop after in-flight documents finish.

With --metrics-addr, Prometheus metrics are served at /metrics and build
information at /version. With events enabled (config events.enabled or
--events) and a Redis cache configured, document_completed and
document_failed events are published over Redis pub/sub.

Examples:
  # Watch ./captions and write notes to ./notes
  studynotes watch ./captions --out ./notes

  # Also handle files already present, expose metrics on :9090
  studynotes watch ./captions --out ./notes --process-existing --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), deps, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.outDir, "out", "", "Directory for generated documents (required)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /version on this address (overrides config)")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", watcher.DefaultDebounce, "Quiet period before a file is handled")
	cmd.Flags().IntVar(&opts.maxConcurrent, "max-concurrent", watcher.DefaultMaxConcurrent, "Files processed at once")
	cmd.Flags().BoolVar(&opts.processExisting, "process-existing", false, "Also handle caption files already in the directory")
	cmd.Flags().BoolVar(&opts.events, "events", false, "Publish document events over Redis pub/sub")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runWatch(ctx context.Context, deps *PipelineCommandDeps, opts *watchOptions, dir string) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}

	metrics := deps.Metrics
	reg := prometheus.NewRegistry()
	if metrics == nil {
		metrics = observability.NewMetrics(reg)
	}

	rt := newRuntime(metrics)
	defer rt.Close()
	rt.connectCache(ctx, cfg)
	log := rt.Logger.With(logging.Component("watch"))

	gen, err := deps.NewGenerator(ctx, cfg, rt)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	p, err := buildPipeline(cfg, gen, rt)
	if err != nil {
		return err
	}

	emitter := observability.NewEventEmitter(eventPublisher(cfg, rt, opts.events, log))
	defer emitter.Close()

	processor := watcher.NewProcessor(p, config.ExpandPath(opts.outDir), emitter, rt.Logger)
	w, err := watcher.New(watcher.Config{
		Dir:             config.ExpandPath(dir),
		Debounce:        opts.debounce,
		MaxConcurrent:   opts.maxConcurrent,
		ProcessExisting: opts.processExisting,
	}, processor.Handle, watcher.WithLogger(rt.Logger))
	if err != nil {
		return err
	}
	defer w.Close()

	addr := cfg.MetricsAddr
	if opts.metricsAddr != "" {
		addr = opts.metricsAddr
	}
	if addr != "" {
		srv, err := startMetricsServer(addr, reg, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return w.Run(ctx)
}

// eventPublisher returns a Redis publisher when events are enabled and Redis
// is connected, else nil (events discarded).
func eventPublisher(cfg *config.CLIConfig, rt *Runtime, flag bool, log logging.Logger) observability.EventPublisher {
	if !cfg.Events.Enabled && !flag {
		return nil
	}
	if rt.Redis == nil {
		log.Warn("Document events enabled but Redis is not connected; events are discarded")
		return nil
	}
	client := rt.Redis
	return observability.NewRedisEventPublisher(func(ctx context.Context, channel string, message interface{}) error {
		return client.Publish(ctx, channel, message).Err()
	})
}

// newMetricsMux serves the metrics registry and build information.
func newMetricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/version", buildinfo.Handler("studynotes"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func startMetricsServer(addr string, reg *prometheus.Registry, log logging.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           newMetricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", logging.Err(err))
		}
	}()
	log.Info("Serving metrics", logging.F("addr", ln.Addr().String()))
	return srv, nil
}
