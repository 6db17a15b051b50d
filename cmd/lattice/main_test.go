package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/infra/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"server", "chat", "doctor", "encrypt"})

	chat, _, err := root.Find([]string{"chat"})
	require.NoError(t, err)
	for _, flag := range []string{"server", "local", "agent", "agents", "thread", "config"} {
		assert.NotNil(t, chat.Flags().Lookup(flag), "chat --%s", flag)
	}
	server, _, err := root.Find([]string{"server"})
	require.NoError(t, err)
	for _, flag := range []string{"host", "port", "workspace", "agent", "agents", "config", "memory"} {
		assert.NotNil(t, server.Flags().Lookup(flag), "server --%s", flag)
	}
	assert.Equal(t, "8000", server.Flags().Lookup("port").DefValue)
}

func TestChatServerAndLocalExclusive(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"chat", "--local", "--server", "http://x"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestEncryptCommand(t *testing.T) {
	t.Setenv("LATTICE_CONFIG_KEY", "passphrase")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"encrypt", "sk-secret"})
	root.SetOut(&out)
	require.NoError(t, root.Execute())

	enc := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(enc, "enc:"), enc)
	plain, err := config.DecryptValue(strings.TrimPrefix(enc, "enc:"), "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", plain)
}

func TestEncryptNeedsKey(t *testing.T) {
	t.Setenv("LATTICE_CONFIG_KEY", "")
	root := newRootCmd()
	root.SetArgs([]string{"encrypt", "x"})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestServerEnv(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	t.Run("defaults", func(t *testing.T) {
		unsetEnv(t, "LATTICE_PROJECT_ROOT")
		unsetEnv(t, "LATTICE_WORKSPACE_MODE")
		cmd := newServerCmd()
		require.NoError(t, serverEnv(cmd, &serverFlags{workspace: config.ModeLocal}))
		assert.Equal(t, cwd, os.Getenv("LATTICE_PROJECT_ROOT"))
		assert.Equal(t, config.ModeLocal, os.Getenv("LATTICE_WORKSPACE_MODE"))
	})

	t.Run("env wins over flag default", func(t *testing.T) {
		t.Setenv("LATTICE_PROJECT_ROOT", "/srv/project")
		t.Setenv("LATTICE_WORKSPACE_MODE", config.ModeCentral)
		cmd := newServerCmd()
		require.NoError(t, serverEnv(cmd, &serverFlags{workspace: config.ModeLocal}))
		assert.Equal(t, "/srv/project", os.Getenv("LATTICE_PROJECT_ROOT"))
		assert.Equal(t, config.ModeCentral, os.Getenv("LATTICE_WORKSPACE_MODE"))
	})

	t.Run("explicit flag wins", func(t *testing.T) {
		t.Setenv("LATTICE_PROJECT_ROOT", cwd)
		t.Setenv("LATTICE_WORKSPACE_MODE", config.ModeLocal)
		cmd := newServerCmd()
		require.NoError(t, cmd.Flags().Set("workspace", config.ModeCentral))
		require.NoError(t, serverEnv(cmd, &serverFlags{workspace: config.ModeCentral}))
		assert.Equal(t, config.ModeCentral, os.Getenv("LATTICE_WORKSPACE_MODE"))
	})

	t.Run("invalid mode", func(t *testing.T) {
		t.Setenv("LATTICE_PROJECT_ROOT", cwd)
		unsetEnv(t, "LATTICE_WORKSPACE_MODE")
		cmd := newServerCmd()
		assert.Error(t, serverEnv(cmd, &serverFlags{workspace: "global"}))
	})
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
