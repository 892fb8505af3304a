package backend

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ocr-job-service/config"
	"ocr-job-service/internal/core/ports"
	"ocr-job-service/pkg/metrics"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// New builds the configured BackendAdapter, wrapped in the uniform retry
// policy every variant shares.
func New(cfg config.OCRConfig, logger zerolog.Logger, m *metrics.Metrics) ports.BackendAdapter {
	return NewRetrying(build(cfg), logger, m)
}

func build(cfg config.OCRConfig) Adapter {
	client := &http.Client{Timeout: cfg.RequestTimeout}
	switch cfg.Backend {
	case "hosted":
		return NewHosted(cfg.OllamaURL, cfg.HFToken, client)
	default:
		return NewSelfHosted(cfg.OllamaURL, cfg.HFModel, client)
	}
}

// Router holds a BackendAdapter that can be swapped at runtime when the
// optional routing config file changes, without restarting the worker
// pool. Most deployments never set OCR_ROUTING_CONFIG and get a single
// fixed adapter for the process lifetime.
type Router struct {
	cfg     config.OCRConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics

	current atomic.Value // ports.BackendAdapter
	watcher *fsnotify.Watcher
	mu      sync.Mutex
}

// NewRouter builds a Router and, if cfg.RoutingConfPath is set, starts
// watching it for writes that toggle which backend is active (the file's
// sole content is expected to be "hosted" or "self-hosted").
func NewRouter(cfg config.OCRConfig, logger zerolog.Logger, m *metrics.Metrics) (*Router, error) {
	r := &Router{cfg: cfg, logger: logger.With().Str("component", "backend_router").Logger(), metrics: m}
	r.current.Store(New(cfg, logger, m))

	if cfg.RoutingConfPath == "" {
		return r, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(cfg.RoutingConfPath); err != nil {
		watcher.Close()
		return nil, err
	}
	r.watcher = watcher
	go r.watchLoop()
	return r, nil
}

func (r *Router) Adapter() ports.BackendAdapter {
	return r.current.Load().(ports.BackendAdapter)
}

func (r *Router) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Router) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			time.Sleep(50 * time.Millisecond) // let the writer finish
			r.reload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn().Err(err).Msg("backend routing file watcher error")
		}
	}
}

func (r *Router) reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.cfg.RoutingConfPath)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to read backend routing config")
		return
	}

	backend := strings.TrimSpace(string(data))
	if backend != "hosted" && backend != "self-hosted" {
		r.logger.Warn().Str("value", backend).Msg("ignoring invalid backend routing value")
		return
	}

	if backend == r.cfg.Backend {
		return
	}

	r.cfg.Backend = backend
	r.current.Store(New(r.cfg, r.logger, r.metrics))
	r.logger.Info().Str("backend", backend).Msg("backend routing changed")
}
