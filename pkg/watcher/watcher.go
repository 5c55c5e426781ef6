// Package watcher turns caption files dropped into a directory into study
// documents.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
)

// Defaults applied by New.
const (
	DefaultDebounce      = 500 * time.Millisecond
	DefaultMaxConcurrent = 2
)

// DefaultExtensions lists the caption file types picked up by default.
var DefaultExtensions = []string{".vtt", ".srt", ".json", ".json3"}

// Handler processes one caption file.
type Handler func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	Dir string

	// Extensions are matched case-insensitively. Empty means DefaultExtensions.
	Extensions []string

	// Debounce is how long a file must stay quiet after its last create or
	// write event before it is handled.
	Debounce time.Duration

	MaxConcurrent int

	// ProcessExisting handles files already in Dir when Run starts.
	ProcessExisting bool
}

// Watcher monitors a directory and hands settled caption files to a Handler.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  logging.Logger
	fsw     *fsnotify.Watcher

	pending map[string]time.Time
	sem     chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l.With(logging.Component("watcher"))
		}
	}
}

// New creates a watcher on cfg.Dir.
func New(cfg Config, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watcher: handler is required")
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", cfg.Dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	w := &Watcher{
		cfg:     cfg,
		handler: handler,
		logger:  logging.NewNopLogger(),
		fsw:     fsw,
		pending: make(map[string]time.Time),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled, then waits for in-flight handlers.
// Cancellation is a clean stop and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("File watcher started",
		logging.F("dir", w.cfg.Dir),
		logging.F("extensions", strings.Join(w.cfg.Extensions, ",")),
		logging.F("max_concurrent", w.cfg.MaxConcurrent),
	)
	defer w.wg.Wait()

	if w.cfg.ProcessExisting {
		if err := w.queueExisting(); err != nil {
			return err
		}
	}

	tick := w.cfg.Debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Waiting for in-flight documents", logging.F("pending", len(w.pending)))
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				w.logger.Debug("Ignoring file", logging.F("path", event.Name))
				continue
			}
			w.pending[event.Name] = time.Now().Add(w.cfg.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Watcher error", logging.Err(err))

		case now := <-ticker.C:
			for _, path := range w.due(now) {
				if !w.dispatch(ctx, path) {
					return nil
				}
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Matches reports whether path has one of the configured extensions.
func (w *Watcher) Matches(path string) bool {
	return HasExtension(path, w.cfg.Extensions)
}

// HasExtension reports whether path ends in one of exts, ignoring case.
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func (w *Watcher) queueExisting() error {
	files, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}
	now := time.Now()
	for _, f := range files {
		if f.IsDir() || !w.Matches(f.Name()) {
			continue
		}
		w.pending[filepath.Join(w.cfg.Dir, f.Name())] = now
	}
	return nil
}

// due removes and returns the pending paths whose quiet period has passed.
func (w *Watcher) due(now time.Time) []string {
	var ready []string
	for path, at := range w.pending {
		if !now.Before(at) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// dispatch runs the handler for path once a slot is free. It returns false
// if ctx was cancelled while waiting.
func (w *Watcher) dispatch(ctx context.Context, path string) bool {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		w.logger.Info("Processing caption file", logging.F("path", path))
		if err := w.handler(ctx, path); err != nil {
			w.logger.Error("Failed to process caption file", logging.F("path", path), logging.Err(err))
		}
	}()
	return true
}
