package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lattice/internal/adapter/gateway"
	"lattice/internal/adapter/httpapi"
	"lattice/internal/infra/config"
	"lattice/internal/infra/logger"
	"lattice/internal/infra/middleware"
)

type serverFlags struct {
	backendFlags
	host      string
	port      int
	workspace string
	memory    bool
}

func newServerCmd() *cobra.Command {
	var f serverFlags
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API server for the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd, &f)
		},
	}
	f.backendFlags.register(cmd)
	cmd.Flags().StringVar(&f.host, "host", "127.0.0.1", "host interface to bind")
	cmd.Flags().IntVar(&f.port, "port", 8000, "port to bind")
	cmd.Flags().StringVar(&f.workspace, "workspace", config.ModeLocal, "workspace mode: local or central")
	cmd.Flags().BoolVar(&f.memory, "memory", false, "keep sessions in memory instead of SQLite")
	return cmd
}

// serverEnv seeds LATTICE_PROJECT_ROOT and LATTICE_WORKSPACE_MODE. Values
// already in the environment win unless --workspace was given explicitly.
func serverEnv(cmd *cobra.Command, f *serverFlags) error {
	if _, ok := os.LookupEnv("LATTICE_PROJECT_ROOT"); !ok {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve project root: %w", err)
		}
		if err := os.Setenv("LATTICE_PROJECT_ROOT", wd); err != nil {
			return err
		}
	}
	if _, ok := os.LookupEnv("LATTICE_WORKSPACE_MODE"); !ok || cmd.Flags().Changed("workspace") {
		switch f.workspace {
		case config.ModeLocal, config.ModeCentral:
		default:
			return fmt.Errorf("--workspace must be %q or %q, got %q", config.ModeLocal, config.ModeCentral, f.workspace)
		}
		if err := os.Setenv("LATTICE_WORKSPACE_MODE", f.workspace); err != nil {
			return err
		}
	}
	return nil
}

func runServer(cmd *cobra.Command, f *serverFlags) error {
	if err := serverEnv(cmd, f); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b, err := buildBackend(ctx, &f.backendFlags, backendOptions{memory: f.memory, registerer: promReg})
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	cfg := b.cfg
	if cmd.Flags().Changed("host") || cfg.Server.Host == "" {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") || cfg.Server.Port == 0 {
		cfg.Server.Port = f.port
	}

	sessionID, err := config.LoadOrCreateSessionID(b.storage.SessionIDPath)
	if err != nil {
		return err
	}

	if err := b.reloader.Start(ctx, cfg.Agents.ReloadSchedule); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(ctx, cfg.Server.RateLimit, cfg.Server.TrustedProxies)
	sessionIDFunc := func() (string, error) {
		return config.LoadOrCreateSessionID(b.storage.SessionIDPath)
	}
	router := httpapi.NewRouter(httpapi.Options{
		Service:       b.service,
		Storage:       b.storage,
		SessionIDFunc: sessionIDFunc,
		Version:       version,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Limiter:       limiter,
		Recorder:      b.metrics,
		Gatherer:      promReg,
		Logger:        logger.Component(b.log, "http"),
	})
	api := httpapi.NewServer(cfg.Server.Addr(), router, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger.Component(b.log, "http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Start(gctx) })

	if cfg.Gateway.Enabled {
		gw := gateway.NewServer(gateway.NewStaticTokenAuth(cfg.Gateway.Tokens), cfg.Gateway.Addr, limiter, logger.Component(b.log, "gateway"))
		gateway.RegisterDefaultHandlers(gw, gateway.HandlerDeps{Service: b.service, SessionID: sessionID})
		g.Go(func() error { return gw.Start(gctx) })
	}

	reg := b.handle.Load()
	b.log.Info("lattice server starting",
		"addr", cfg.Server.Addr(),
		"project_root", b.storage.ProjectRoot,
		"workspace_mode", b.storage.WorkspaceMode,
		"memory", f.memory,
		"agents", reg.Len(),
		"default_agent", reg.DefaultAgent(),
		"gateway", cfg.Gateway.Enabled,
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	b.log.Info("lattice server stopped")
	return nil
}
