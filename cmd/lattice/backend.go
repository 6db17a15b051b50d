package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"lattice/internal/adapter/plugin"
	"lattice/internal/adapter/store"
	"lattice/internal/domain"
	"lattice/internal/infra/config"
	"lattice/internal/infra/env"
	"lattice/internal/infra/logger"
	"lattice/internal/infra/metrics"
	"lattice/internal/infra/tracer"
	"lattice/internal/usecase"
)

// backendFlags are shared by every command that builds the backend.
type backendFlags struct {
	configPath string
	agent      string
	agents     string
}

func (f *backendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "config file (default $LATTICE_CONFIG or ./lattice.yaml)")
	cmd.Flags().StringVar(&f.agent, "agent", "", "default agent id or name (sets AGENT_DEFAULT)")
	cmd.Flags().StringVar(&f.agents, "agents", "", "comma-separated enabled agent ids (sets AGENT_PLUGINS)")
}

// exportEnv forwards agent flags to the env vars config.Load reads, so a
// registry rebuilt on reload sees the same selection.
func (f *backendFlags) exportEnv() error {
	if f.agent != "" {
		if err := os.Setenv("AGENT_DEFAULT", f.agent); err != nil {
			return err
		}
	}
	if f.agents != "" {
		if err := os.Setenv("AGENT_PLUGINS", f.agents); err != nil {
			return err
		}
	}
	return nil
}

func (f *backendFlags) path() string {
	if f.configPath != "" {
		return f.configPath
	}
	if p, ok := env.Read("LATTICE_CONFIG"); ok {
		return p
	}
	return "lattice.yaml"
}

// backendOptions tweak how the backend is assembled.
type backendOptions struct {
	memory bool
	// workspaceMode overrides the configured workspace mode when non-blank.
	workspaceMode string
	// logOutput overrides cfg.Logger.Output when non-blank.
	logOutput func(config.StorageConfig) string
	// registerer receives the metrics; nil disables them.
	registerer prometheus.Registerer
}

// backend is everything the server and the in-process chat share.
type backend struct {
	cfg      *config.Config
	storage  config.StorageConfig
	log      *slog.Logger
	store    domain.SessionStore
	handle   *usecase.RegistryHandle
	reloader *plugin.Reloader
	metrics  *metrics.Metrics
	service  *usecase.Service

	closers []func() error
}

// buildBackend loads config, resolves storage and wires the store, registry
// and service. Close releases everything in reverse order.
func buildBackend(ctx context.Context, flags *backendFlags, opts backendOptions) (*backend, error) {
	if err := flags.exportEnv(); err != nil {
		return nil, fmt.Errorf("export agent flags: %w", err)
	}
	cfgPath := flags.path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if opts.workspaceMode != "" {
		cfg.Storage.WorkspaceMode = opts.workspaceMode
	}
	storage, err := config.ResolveStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := config.EnsureStorageDirs(storage); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	b := &backend{cfg: cfg, storage: storage}

	if opts.logOutput != nil {
		if out := opts.logOutput(storage); out != "" {
			cfg.Logger.Output = out
		}
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	b.log = log
	b.closers = append(b.closers, logCloser)

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	b.closers = append(b.closers, func() error { return tracerShutdown(context.Background()) })

	if opts.registerer != nil {
		b.metrics = metrics.MustNewMetrics(opts.registerer)
	}

	if opts.memory {
		b.store = store.NewMemoryStore()
	} else {
		sq, err := store.OpenSQLite(storage.DBPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = sq
	}
	b.closers = append(b.closers, b.store.Close)

	reg, err := plugin.BuildRegistry(cfg.Agents, logger.Component(log, "plugin"))
	if err != nil {
		b.Close()
		return nil, err
	}
	b.handle = usecase.NewRegistryHandle(reg)

	var reloadMetrics plugin.ReloadRecorder
	if b.metrics != nil {
		reloadMetrics = b.metrics
	}
	b.reloader = plugin.NewReloader(b.handle, func() (*usecase.AgentRegistry, error) {
		next, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		return plugin.BuildRegistry(next.Agents, logger.Component(log, "plugin"))
	}, logger.Component(log, "reload"), reloadMetrics)

	deps := usecase.ServiceDeps{
		Store:       b.store,
		Registry:    b.handle,
		Logger:      logger.Component(log, "service"),
		Workspace:   storage.WorkspaceDir,
		ProjectRoot: storage.ProjectRoot,
	}
	if b.metrics != nil {
		deps.Metrics = b.metrics
	}
	b.service = usecase.NewService(deps)

	log.Debug("backend ready",
		"config", cfgPath,
		"project_root", storage.ProjectRoot,
		"workspace_mode", storage.WorkspaceMode,
		"db", storage.DBPath,
		"memory", opts.memory,
		"agents", reg.Len(),
		"default_agent", reg.DefaultAgent(),
	)
	return b, nil
}

// Close runs the closers in reverse and returns the first error.
func (b *backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
