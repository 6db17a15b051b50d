// Package integration exercises the full lattice stack: SQLite store,
// agent registry, HTTP API and WebSocket gateway wired as the server does.
package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lattice/internal/adapter/client"
	"lattice/internal/adapter/gateway"
	"lattice/internal/adapter/httpapi"
	"lattice/internal/adapter/plugin"
	"lattice/internal/adapter/store"
	"lattice/internal/infra/config"
	"lattice/internal/infra/logger"
	"lattice/internal/usecase"
)

// SessionID is the server session used when requests omit one.
const SessionID = "tui-e2e"

// GatewayToken authenticates test WebSocket clients.
const GatewayToken = "e2e-token"

// Stack is a running server over a real SQLite file.
type Stack struct {
	Store   *store.SQLiteStore
	Handle  *usecase.RegistryHandle
	Service *usecase.Service
	HTTP    *httptest.Server
	Gateway *gateway.Server
	Client  *client.HTTPClient

	cancel context.CancelFunc
}

// DefaultAgents is an echo agent plus one with a static model list.
func DefaultAgents() config.AgentsConfig {
	return config.AgentsConfig{
		Definitions: []config.AgentDefinition{
			{ID: "echo", Name: "Echo", Type: "echo"},
			{ID: "loud", Name: "Loud Echo", Type: "echo", DefaultModel: "big", Models: []string{"big", "small"}},
		},
	}
}

// NewStack starts the HTTP API and gateway backed by the database at dbPath.
// Everything is torn down when the test ends; Close stops it earlier.
func NewStack(t *testing.T, dbPath string, agents config.AgentsConfig) *Stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	reg, err := plugin.BuildRegistry(agents, logger.Discard())
	if err != nil {
		db.Close()
		t.Fatalf("build registry: %v", err)
	}

	s := &Stack{Store: db, Handle: usecase.NewRegistryHandle(reg)}
	s.Service = usecase.NewService(usecase.ServiceDeps{
		Store:    db,
		Registry: s.Handle,
		Logger:   logger.Discard(),
	})
	s.HTTP = httptest.NewServer(httpapi.NewRouter(httpapi.Options{
		Service:   s.Service,
		Storage:   config.StorageConfig{ProjectRoot: t.TempDir(), WorkspaceMode: config.ModeLocal},
		SessionID: SessionID,
		Logger:    logger.Discard(),
	}))
	s.Client = client.NewHTTPClient(s.HTTP.URL, s.HTTP.Client())

	s.Gateway = gateway.NewServer(
		gateway.NewStaticTokenAuth([]config.TokenConfig{{Token: GatewayToken, Name: "e2e"}}),
		"127.0.0.1:0", nil, logger.Discard(),
	)
	gateway.RegisterDefaultHandlers(s.Gateway, gateway.HandlerDeps{Service: s.Service, SessionID: SessionID})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { _ = s.Gateway.Start(ctx) }()
	deadline := time.Now().Add(3 * time.Second)
	for s.Gateway.BoundAddr() == "" {
		if time.Now().After(deadline) {
			s.Close()
			t.Fatal("gateway did not start in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(s.Close)
	return s
}

// Close stops both servers and closes the store. It is safe to call twice.
func (s *Stack) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	_ = s.Gateway.Stop(context.Background())
	s.HTTP.Close()
	_ = s.Store.Close()
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
