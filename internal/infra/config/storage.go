package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"lattice/internal/infra/env"
)

// Workspace modes.
const (
	ModeLocal   = "local"
	ModeCentral = "central"
)

// SessionIDEnv overrides the persisted terminal session id.
const SessionIDEnv = "LATTICE_SESSION_ID"

// ResolveStorage fills in every blank StorageConfig field. Explicit values win,
// then LATTICE_* env vars, then locations derived from the workspace mode.
// It performs no filesystem writes.
func ResolveStorage(sc StorageConfig) (StorageConfig, error) {
	out := StorageConfig{}

	root, err := resolvePath(sc.ProjectRoot, "LATTICE_PROJECT_ROOT")
	if err != nil {
		return out, err
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return out, fmt.Errorf("resolve project root: %w", err)
		}
	}
	out.ProjectRoot = root
	out.WorkspaceMode = resolveMode(sc.WorkspaceMode)

	if out.DataDir, err = resolvePath(sc.DataDir, "LATTICE_DATA_DIR"); err != nil {
		return out, err
	}
	if out.DataDir == "" {
		if out.WorkspaceMode == ModeLocal {
			out.DataDir = filepath.Join(out.ProjectRoot, ".lattice")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return out, fmt.Errorf("resolve home dir: %w", err)
			}
			out.DataDir = filepath.Join(home, ".lattice")
		}
	}

	if out.WorkspaceDir, err = resolvePath(sc.WorkspaceDir, "LATTICE_WORKSPACE_DIR"); err != nil {
		return out, err
	}
	if out.WorkspaceDir == "" {
		out.WorkspaceDir = filepath.Join(out.DataDir, "workspace")
	}

	if out.DBPath, err = resolvePath(sc.DBPath, "LATTICE_DB_PATH"); err != nil {
		return out, err
	}
	if out.DBPath == "" {
		out.DBPath = filepath.Join(out.DataDir, "lattice.db")
	}

	if out.SessionIDPath, err = resolvePath(sc.SessionIDPath, "LATTICE_SESSION_FILE"); err != nil {
		return out, err
	}
	if out.SessionIDPath == "" {
		out.SessionIDPath = filepath.Join(out.DataDir, "session_id")
	}
	return out, nil
}

// EnsureStorageDirs creates the data and workspace directories.
func EnsureStorageDirs(sc StorageConfig) error {
	for _, dir := range []string{sc.DataDir, sc.WorkspaceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// LoadOrCreateSessionID returns the terminal session id: LATTICE_SESSION_ID if
// set, else the contents of path, else a fresh "tui-" id written to path.
func LoadOrCreateSessionID(path string) (string, error) {
	if v, ok := env.Read(SessionIDEnv); ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read session id: %w", err)
	}

	id := "tui-" + strings.ToLower(ulid.Make().String())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("write session id: %w", err)
	}
	return id, nil
}

// resolveMode maps "local", "project" and "cwd" to ModeLocal and anything
// else non-blank to ModeCentral. Blank falls back to the env var, then local.
func resolveMode(explicit string) string {
	v := strings.TrimSpace(explicit)
	if v == "" {
		v, _ = env.Read("LATTICE_WORKSPACE_MODE")
	}
	switch strings.ToLower(v) {
	case "", "local", "project", "cwd":
		return ModeLocal
	}
	return ModeCentral
}

func resolvePath(explicit, envVar string) (string, error) {
	v := strings.TrimSpace(explicit)
	if v == "" {
		v, _ = env.Read(envVar)
	}
	if v == "" {
		return "", nil
	}
	return expandHome(v)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
