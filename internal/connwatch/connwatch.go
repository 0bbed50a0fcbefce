// Package connwatch monitors the Home Assistant connection with
// exponential backoff and recovery callbacks.
//
// This is distinct from httpkit's transport-level retry, which covers
// sub-second dial errors. connwatch handles multi-second to
// multi-minute outages: platform restarts and network partitions. The
// watcher probes in two phases: startup with exponential backoff, then
// periodic background polling with state-transition callbacks (used to
// reconnect the WebSocket when the platform comes back).
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc checks whether the service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Config tunes a Watcher. Zero-value fields take the defaults noted on
// each field.
type Config struct {
	// Name identifies the service in logs.
	Name string
	// Probe checks service health. Must be safe for concurrent use.
	Probe ProbeFunc
	// OnReady fires when the service transitions to reachable. Runs in
	// its own goroutine. Optional.
	OnReady func()
	// OnDown fires when the service transitions to unreachable. Runs in
	// its own goroutine. Optional.
	OnDown func(err error)

	InitialDelay time.Duration // first startup retry delay (2s)
	MaxDelay     time.Duration // backoff ceiling (60s)
	MaxRetries   int           // startup probe attempts (10)
	PollInterval time.Duration // background check interval (60s)
	ProbeTimeout time.Duration // per-probe timeout (10s)

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Status is the health of the watched service, shaped for the health
// endpoint.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors a single service's health.
type Watcher struct {
	cfg    Config
	ready  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// Watch starts a watcher. It runs in a background goroutine until ctx
// is cancelled or Stop is called. Panics when Name or Probe is missing.
func Watch(ctx context.Context, cfg Config) *Watcher {
	if cfg.Name == "" {
		panic("connwatch: Config.Name must not be empty")
	}
	if cfg.Probe == nil {
		panic("connwatch: Config.Probe must not be nil")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		cfg:    cfg.withDefaults(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(watchCtx)
	return w
}

// IsReady reports whether the watched service is currently reachable.
func (w *Watcher) IsReady() bool {
	return w.ready.Load()
}

// Status returns the current health status.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Name:      w.cfg.Name,
		Ready:     w.ready.Load(),
		LastCheck: w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	log := w.cfg.Logger.With("service", w.cfg.Name)

	// Phase 1: startup probes with exponential backoff.
	delay := w.cfg.InitialDelay
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		err := w.probe(ctx)
		w.record(err)

		if err == nil {
			w.ready.Store(true)
			log.Info("service connected", "after_attempts", attempt)
			if w.cfg.OnReady != nil {
				go w.cfg.OnReady()
			}
			break
		}
		if attempt == w.cfg.MaxRetries {
			log.Info("startup connection failed, entering background polling",
				"attempts", attempt, "error", err)
			break
		}

		log.Debug("startup probe failed, retrying",
			"attempt", attempt, "next_delay", delay.String(), "error", err)
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = time.Duration(float64(delay) * 2)
		if delay > w.cfg.MaxDelay {
			delay = w.cfg.MaxDelay
		}
	}

	// Phase 2: background polling with transition callbacks.
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.probe(ctx)
			w.record(err)
			wasReady := w.ready.Load()

			switch {
			case wasReady && err != nil:
				w.ready.Store(false)
				log.Info("service became unreachable", "error", err)
				if w.cfg.OnDown != nil {
					go w.cfg.OnDown(err)
				}
			case !wasReady && err == nil:
				w.ready.Store(true)
				log.Info("service recovered")
				if w.cfg.OnReady != nil {
					go w.cfg.OnReady()
				}
			case !wasReady:
				log.Debug("service still unreachable", "error", err)
			}
		}
	}
}

func (w *Watcher) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()
	return w.cfg.Probe(probeCtx)
}

func (w *Watcher) record(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
