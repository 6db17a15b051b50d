package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"

	"lattice/internal/usecase"
)

// ReloadRecorder counts registry reload outcomes. *metrics.Metrics
// implements it.
type ReloadRecorder interface {
	IncReload(outcome string)
}

// Reloader rebuilds the agent registry and swaps it into a handle. A failed
// rebuild leaves the current registry in place.
type Reloader struct {
	handle  *usecase.RegistryHandle
	build   func() (*usecase.AgentRegistry, error)
	log     *slog.Logger
	metrics ReloadRecorder

	mu   sync.Mutex // serializes rebuilds
	cron *cron.Cron
}

// NewReloader creates a Reloader. build is typically a closure that reloads
// the config file and calls BuildRegistry. metrics may be nil.
func NewReloader(handle *usecase.RegistryHandle, build func() (*usecase.AgentRegistry, error), log *slog.Logger, metrics ReloadRecorder) *Reloader {
	return &Reloader{handle: handle, build: build, log: log, metrics: metrics}
}

// Reload rebuilds and swaps the registry once.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.build()
	if err != nil {
		r.record("error")
		r.log.Warn("agent registry reload failed, keeping current registry", "error", err)
		return fmt.Errorf("reload agents: %w", err)
	}
	r.handle.Swap(reg)
	r.record("ok")
	r.log.Info("agent registry reloaded", "agents", reg.Len(), "default", reg.DefaultAgent())
	return nil
}

// Start reloads on SIGHUP and, when schedule is non-blank, on that cron
// schedule. It returns once the watchers are running; they stop when ctx
// is done.
func (r *Reloader) Start(ctx context.Context, schedule string) error {
	if schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(schedule, func() { _ = r.Reload() }); err != nil {
			return fmt.Errorf("reload schedule %q: %w", schedule, err)
		}
		c.Start()
		r.cron = c
		r.log.Info("agent reload scheduled", "schedule", schedule)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				r.log.Info("SIGHUP received, reloading agents")
				_ = r.Reload()
			case <-ctx.Done():
				if r.cron != nil {
					<-r.cron.Stop().Done()
				}
				return
			}
		}
	}()
	return nil
}

func (r *Reloader) record(outcome string) {
	if r.metrics != nil {
		r.metrics.IncReload(outcome)
	}
}
