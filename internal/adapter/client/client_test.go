package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/adapter/httpapi"
	"lattice/internal/adapter/plugin"
	"lattice/internal/adapter/store"
	"lattice/internal/domain"
	"lattice/internal/infra/config"
	"lattice/internal/infra/logger"
	"lattice/internal/usecase"
	"lattice/pkg/protocol"
)

func init() { gin.SetMode(gin.TestMode) }

func newService(t *testing.T) *usecase.Service {
	t.Helper()
	reg, err := plugin.BuildRegistry(config.AgentsConfig{
		Definitions: []config.AgentDefinition{
			{ID: "echo", Name: "Echo"},
			{ID: "loud", Name: "Loud Echo", DefaultModel: "big", Models: []string{"big", "small"}},
		},
	}, logger.Discard())
	require.NoError(t, err)
	return usecase.NewService(usecase.ServiceDeps{
		Store:    store.NewMemoryStore(),
		Registry: usecase.NewRegistryHandle(reg),
		Logger:   logger.Discard(),
	})
}

func newTestServer(t *testing.T, projectRoot string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Options{
		Service:   newService(t),
		Storage:   config.StorageConfig{ProjectRoot: projectRoot, WorkspaceMode: config.ModeLocal},
		SessionID: "tui-server",
		Logger:    logger.Discard(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

// clients returns both implementations so every behavior is checked on each.
func clients(t *testing.T) map[string]Client {
	srv := newTestServer(t, t.TempDir())
	return map[string]Client{
		"http":      NewHTTPClient(srv.URL, srv.Client()),
		"inprocess": NewInProcess(newService(t)),
	}
}

func TestClientThreadLifecycle(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer c.Close()

			id, err := c.CreateThread(ctx, "s", "t1")
			require.NoError(t, err)
			assert.Equal(t, "t1", id)

			_, err = c.CreateThread(ctx, "s", "t1")
			assert.ErrorIs(t, err, domain.ErrThreadExists)

			generated, err := c.CreateThread(ctx, "s", "")
			require.NoError(t, err)
			assert.NotEmpty(t, generated)

			ids, err := c.ListThreads(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, []string{"t1", generated}, ids)

			require.NoError(t, c.ClearThread(ctx, "s", "t1"))
			require.NoError(t, c.DeleteThread(ctx, "s", "t1"))

			_, err = c.Messages(ctx, "s", "t1")
			assert.True(t, IsNotFound(err), "got %v", err)
			assert.ErrorIs(t, c.DeleteThread(ctx, "s", "t1"), domain.ErrThreadNotFound)
		})
	}
}

func TestClientAgentsAndModels(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			agents, err := c.Agents(ctx)
			require.NoError(t, err)
			assert.Equal(t, "echo", agents.DefaultAgent)

			sel, err := c.SetThreadAgent(ctx, "s", "t1", "loud")
			require.NoError(t, err)
			assert.Equal(t, "loud", sel.Agent)

			_, err = c.SetThreadAgent(ctx, "s", "t1", "zzz")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnknownAgent)
			assert.Contains(t, err.Error(), "Available: Echo, Loud Echo")

			got, err := c.ThreadAgent(ctx, "s", "t1")
			require.NoError(t, err)
			assert.Equal(t, "Loud Echo", got.AgentName)

			models, err := c.ThreadModels(ctx, "s", "t1")
			require.NoError(t, err)
			assert.Equal(t, protocol.ModelListResponse{DefaultModel: "big", Models: []string{"big", "small"}}, models)

			ms, err := c.SetSessionModel(ctx, "s", "t1", "small")
			require.NoError(t, err)
			assert.Equal(t, "small", ms.Model)

			_, err = c.SetSessionModel(ctx, "s", "t1", "giant")
			assert.ErrorIs(t, err, domain.ErrInvalidModel)

			ms, err = c.SessionModel(ctx, "s", "t1")
			require.NoError(t, err)
			assert.Equal(t, "small", ms.Model)
		})
	}
}

func TestClientChat(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			resp, err := c.Chat(ctx, protocol.ChatRequest{
				SessionID: "s",
				ThreadID:  "t1",
				Messages:  []protocol.Message{{Role: domain.RoleUser, Content: "ping"}},
			})
			require.NoError(t, err)
			assert.Equal(t, "ping", resp.Output)
			assert.Equal(t, "s", resp.SessionID)

			msgs, err := c.Messages(ctx, "s", "t1")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
		})
	}
}

func TestAPIErrorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, srv.Client()).Agents(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.Nil(t, apiErr.Unwrap())
}

func TestInProcessCloseOrder(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	c := NewInProcess(newService(t),
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	)
	assert.ErrorIs(t, c.Close(), boom)
	assert.Equal(t, []int{2, 1}, order)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	srv := newTestServer(t, root)
	ctx := context.Background()

	url, ok := Discover(ctx, srv.Client(), srv.URL, root)
	assert.True(t, ok)
	assert.Equal(t, srv.URL, url)

	// Same directory reached through a trailing separator still matches.
	_, ok = Discover(ctx, srv.Client(), srv.URL, root+string(filepath.Separator))
	assert.True(t, ok)

	_, ok = Discover(ctx, srv.Client(), srv.URL, t.TempDir())
	assert.False(t, ok, "different project falls back to local")

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	_, ok = Discover(ctx, nil, down.URL, root)
	assert.False(t, ok, "unreachable server falls back to local")
}

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"127.0.0.1:8000", "http://127.0.0.1:8000", false},
		{"http://localhost:9000/some/path", "http://localhost:9000", false},
		{"https://example.com", "https://example.com", false},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeServerURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestConnectionInfoStatus(t *testing.T) {
	assert.Equal(t, "Connected to server at http://x", ConnectionInfo{Mode: ModeServer, ServerURL: "http://x"}.StatusMessage())
	assert.Equal(t, "Running in local mode", ConnectionInfo{Mode: ModeLocal}.StatusMessage())
}
