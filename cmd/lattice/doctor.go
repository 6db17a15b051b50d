package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lattice/internal/adapter/client"
	"lattice/internal/adapter/plugin"
	"lattice/internal/adapter/store"
	"lattice/internal/infra/config"
	"lattice/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func newDoctorCmd() *cobra.Command {
	var f backendFlags
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check config, storage, agents and server reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := f.exportEnv(); err != nil {
				return err
			}
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), f.path())
		},
	}
	f.register(cmd)
	return cmd
}

// runDoctor executes all health checks and reports results.
func runDoctor(ctx context.Context, out io.Writer, cfgPath string) error {
	// Some checks work without a loaded config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Storage", Fn: checkStorage},
		{Name: "Session database", Fn: checkSessionDB},
		{Name: "Agents", Fn: checkAgents},
		{Name: "Agent credentials", Fn: checkAgentCredentials},
		{Name: "Server", Fn: checkServer(ctx, http.DefaultClient)},
	}

	fmt.Fprintln(out, "lattice doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and parsed. A
// missing file only warns: defaults plus env vars still work.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Fix %s (YAML syntax, permissions 0600, LATTICE_CONFIG_KEY for enc: values)", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create lattice.yaml to define agents",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkStorage resolves the data directory and verifies it is writable.
func checkStorage(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	sc, err := config.ResolveStorage(cfg.Storage)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if err := config.EnsureStorageDirs(sc); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", sc.DataDir),
		}
	}

	probe := filepath.Join(sc.DataDir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s is not writable: %v", sc.DataDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 755 %s", sc.DataDir),
		}
	}
	os.Remove(probe)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s mode, data in %s", sc.WorkspaceMode, sc.DataDir),
	}
}

// checkSessionDB opens the SQLite store, which also runs its migration.
func checkSessionDB(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	sc, err := config.ResolveStorage(cfg.Storage)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	s, err := store.OpenSQLite(sc.DBPath)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Remove or move the database file if it is corrupt",
		}
	}
	s.Close()
	return CheckResult{Status: StatusPass, Message: "opened " + sc.DBPath}
}

// checkAgents builds the agent registry the server would start with.
func checkAgents(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	reg, err := plugin.BuildRegistry(cfg.Agents, logger.Discard())
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Check agents.definitions, agents.enabled (AGENT_PLUGINS) and agents.default (AGENT_DEFAULT)",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agent(s): %s (default %s)", reg.Len(), strings.Join(reg.DisplayNames(), ", "), reg.DefaultAgent()),
	}
}

// checkAgentCredentials warns about OpenAI-compatible agents without a key.
func checkAgentCredentials(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	var missing []string
	remote := 0
	for _, d := range cfg.Agents.Definitions {
		if d.Type != "openai" {
			continue
		}
		remote++
		if d.APIKey == "" {
			missing = append(missing, d.ID)
		}
	}
	switch {
	case remote == 0:
		return CheckResult{Status: StatusPass, Message: "no remote agents configured"}
	case len(missing) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: "no api_key for: " + strings.Join(missing, ", "),
			Fix:     "Set api_key in the agent definition or OPENAI_API_KEY",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d remote agent(s) have keys", remote)}
}

// checkServer reports whether a server answers on the configured address
// and whether it serves this project.
func checkServer(ctx context.Context, hc *http.Client) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		addr := client.DefaultServerURL
		if cfg != nil {
			addr = "http://" + cfg.Server.Addr()
		}
		if !client.Healthy(ctx, hc, addr) {
			return CheckResult{
				Status:  StatusWarn,
				Message: "no server at " + addr + ", chat will run in-process",
				Fix:     "Start one with `lattice server` to share sessions",
			}
		}
		wd, err := os.Getwd()
		if err != nil {
			return CheckResult{Status: StatusWarn, Message: err.Error()}
		}
		if !client.SameProject(ctx, hc, addr, wd) {
			return CheckResult{
				Status:  StatusWarn,
				Message: "server at " + addr + " serves a different project",
				Fix:     "Run `lattice server` from this directory or use `lattice chat --server`",
			}
		}
		return CheckResult{Status: StatusPass, Message: "server at " + addr + " serves this project"}
	}
}
