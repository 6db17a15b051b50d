package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lattice/internal/adapter/client"
	"lattice/internal/adapter/tui/chat"
	"lattice/internal/infra/config"
	"lattice/internal/infra/logger"
)

type chatFlags struct {
	backendFlags
	server string
	local  bool
	thread string
}

func newChatCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat",
		Long: `Open the terminal chat.

Without --server or --local the chat probes ` + client.DefaultServerURL + ` and uses it
when it serves the current project; otherwise the backend runs in-process.
--agent and --agents apply to the in-process backend only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, &f)
		},
	}
	f.backendFlags.register(cmd)
	cmd.Flags().StringVar(&f.server, "server", "", "connect to this server URL")
	cmd.Flags().BoolVar(&f.local, "local", false, "run in-process and skip server discovery")
	cmd.Flags().StringVar(&f.thread, "thread", "", "thread to open (default: first thread, else \"default\")")
	cmd.MarkFlagsMutuallyExclusive("server", "local")
	return cmd
}

func runChat(cmd *cobra.Command, f *chatFlags) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chat needs an interactive terminal")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer cancel()

	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	c, info, sessionPath, err := connect(ctx, f, projectRoot)
	if err != nil {
		return err
	}
	defer c.Close()

	sessionID, err := config.LoadOrCreateSessionID(sessionPath)
	if err != nil {
		return err
	}

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	sess, history, err := chat.Open(openCtx, c, sessionID, f.thread)
	openCancel()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), info.StatusMessage())
	return chat.Run(ctx, chat.ChatModelDeps{
		Session:    sess,
		History:    history,
		Connection: info,
	})
}

// connect picks the backend: an explicit --server must be healthy, --local
// always runs in-process, and otherwise a server on the default port is
// used only when it serves projectRoot. It also returns where the terminal
// session id is persisted.
func connect(ctx context.Context, f *chatFlags, projectRoot string) (client.Client, client.ConnectionInfo, string, error) {
	hc := &http.Client{Timeout: 5 * time.Minute}

	if !f.local {
		if f.server != "" {
			url, err := client.NormalizeServerURL(f.server)
			if err != nil {
				return nil, client.ConnectionInfo{}, "", err
			}
			if !client.Healthy(ctx, hc, url) {
				return nil, client.ConnectionInfo{}, "", fmt.Errorf("server not reachable at %s. Start it with `lattice server`", url)
			}
			return serverClient(url, hc, projectRoot)
		}
		if url, ok := client.Discover(ctx, hc, client.DefaultServerURL, projectRoot); ok {
			return serverClient(url, hc, projectRoot)
		}
	}

	// The in-process backend always uses the project-local workspace.
	b, err := buildBackend(ctx, &f.backendFlags, backendOptions{
		workspaceMode: config.ModeLocal,
		logOutput: func(sc config.StorageConfig) string {
			return filepath.Join(sc.DataDir, "lattice.log")
		},
	})
	if err != nil {
		return nil, client.ConnectionInfo{}, "", err
	}
	if err := b.reloader.Start(ctx, b.cfg.Agents.ReloadSchedule); err != nil {
		b.Close()
		return nil, client.ConnectionInfo{}, "", err
	}
	logger.Component(b.log, "chat").Info("in-process backend started", "project_root", b.storage.ProjectRoot)
	return client.NewInProcess(b.service, b.Close), client.ConnectionInfo{Mode: client.ModeLocal}, b.storage.SessionIDPath, nil
}

// serverClient returns an HTTP client for url. The session id file is the
// one this project would use locally, so a terminal keeps its session when
// it switches between server and local mode.
func serverClient(url string, hc *http.Client, projectRoot string) (client.Client, client.ConnectionInfo, string, error) {
	sc, err := config.ResolveStorage(config.StorageConfig{ProjectRoot: projectRoot})
	if err != nil {
		return nil, client.ConnectionInfo{}, "", err
	}
	info := client.ConnectionInfo{Mode: client.ModeServer, ServerURL: url}
	return client.NewHTTPClient(url, hc), info, sc.SessionIDPath, nil
}
