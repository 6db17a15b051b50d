package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/adapter/plugin"
	"lattice/internal/adapter/store"
	"lattice/internal/domain"
	"lattice/internal/infra/config"
	"lattice/internal/infra/logger"
	"lattice/internal/infra/metrics"
	"lattice/internal/usecase"
	"lattice/pkg/protocol"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	reg, err := plugin.BuildRegistry(config.AgentsConfig{
		Definitions: []config.AgentDefinition{
			{ID: "echo", Name: "Echo"},
			{ID: "loud", Name: "Loud Echo", DefaultModel: "big", Models: []string{"big", "small"}},
		},
	}, logger.Discard())
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(promReg)
	svc := usecase.NewService(usecase.ServiceDeps{
		Store:    store.NewMemoryStore(),
		Registry: usecase.NewRegistryHandle(reg),
		Logger:   logger.Discard(),
		Metrics:  m,
	})
	return NewRouter(Options{
		Service: svc,
		Storage: config.StorageConfig{
			ProjectRoot:   "/work/proj",
			DataDir:       "/work/proj/.lattice",
			WorkspaceDir:  "/work/proj/.lattice/workspace",
			WorkspaceMode: config.ModeLocal,
		},
		SessionID: "tui-default",
		Version:   "test",
		Recorder:  m,
		Gatherer:  promReg,
		Logger:    logger.Discard(),
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndInfo(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[protocol.HealthResponse](t, w).Status)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(t, r, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decodeBody[protocol.ServerInfoResponse](t, w)
	assert.Equal(t, "/work/proj", info.ProjectRoot)
	assert.Equal(t, protocol.WorkspaceModeLocal, info.WorkspaceMode)
	assert.Equal(t, "Echo", info.AgentName)
	assert.Equal(t, "test", info.Version)
	assert.NotZero(t, info.PID)
}

func TestThreadRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/sessions/s1/threads", protocol.ThreadCreateRequest{ThreadID: "t1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "t1", decodeBody[protocol.ThreadCreateResponse](t, w).ThreadID)

	w = do(t, r, http.MethodPost, "/sessions/s1/threads", protocol.ThreadCreateRequest{ThreadID: "t1"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(domain.CodeThreadExists), decodeBody[protocol.ErrorResponse](t, w).Error.Code)

	w = do(t, r, http.MethodPost, "/sessions/s1/threads", nil)
	require.Equal(t, http.StatusCreated, w.Code, "empty body generates an id")
	generated := decodeBody[protocol.ThreadCreateResponse](t, w).ThreadID
	assert.Len(t, generated, 26)

	w = do(t, r, http.MethodGet, "/sessions/s1/threads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"t1", generated}, decodeBody[protocol.ThreadListResponse](t, w).Threads)

	w = do(t, r, http.MethodGet, "/sessions/other/threads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"threads":[]}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/sessions/s1/threads/t1/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1", decodeBody[protocol.ThreadClearResponse](t, w).Cleared)

	w = do(t, r, http.MethodGet, "/sessions/s1/threads/t1/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())

	w = do(t, r, http.MethodDelete, "/sessions/s1/threads/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1", decodeBody[protocol.ThreadDeleteResponse](t, w).Deleted)

	for _, path := range []string{
		"/sessions/s1/threads/t1/messages",
		"/sessions/s1/threads/t1/models",
	} {
		w = do(t, r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w = do(t, r, http.MethodDelete, "/sessions/s1/threads/t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateThreadBodyOfUnknownLength(t *testing.T) {
	r := newTestRouter(t)

	for name, body := range map[string]string{"empty": "", "named": `{"thread_id":"chunked"}`} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions/s1/threads", io.NopCloser(strings.NewReader(body)))
			req.ContentLength = -1
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			id := decodeBody[protocol.ThreadCreateResponse](t, w).ThreadID
			if body == "" {
				assert.Len(t, id, 26)
			} else {
				assert.Equal(t, "chunked", id)
			}
		})
	}
}

func TestAgentRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[protocol.AgentListResponse](t, w)
	assert.Equal(t, "echo", list.DefaultAgent)
	assert.Equal(t, []protocol.AgentInfo{{ID: "echo", Name: "Echo"}, {ID: "loud", Name: "Loud Echo"}}, list.Agents)

	w = do(t, r, http.MethodGet, "/sessions/s1/threads/t1/agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, protocol.ThreadAgentResponse{Agent: "echo", DefaultAgent: "echo", IsDefault: true, AgentName: "Echo"},
		decodeBody[protocol.ThreadAgentResponse](t, w))

	w = do(t, r, http.MethodPut, "/sessions/s1/threads/t1/agent", protocol.ThreadAgentRequest{Agent: "LOUD"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "loud", decodeBody[protocol.ThreadAgentResponse](t, w).Agent)

	w = do(t, r, http.MethodPut, "/sessions/s1/threads/t1/agent", protocol.ThreadAgentRequest{Agent: "nobody"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody[protocol.ErrorResponse](t, w)
	assert.Equal(t, string(domain.CodeUnknownAgent), body.Error.Code)
	assert.Equal(t, "Unknown or ambiguous agent 'nobody'. Available: Echo, Loud Echo", body.Error.Message)

	w = do(t, r, http.MethodGet, "/sessions/s1/threads/t1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, protocol.ModelListResponse{DefaultModel: "big", Models: []string{"big", "small"}},
		decodeBody[protocol.ModelListResponse](t, w))

	w = do(t, r, http.MethodPut, "/sessions/s1/threads/t1/agent", nil)
	require.Equal(t, http.StatusOK, w.Code, "empty body resets to the default")
	assert.True(t, decodeBody[protocol.ThreadAgentResponse](t, w).IsDefault)
}

func TestSessionModelRoutes(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPut, "/sessions/s1/threads/t1/agent", protocol.ThreadAgentRequest{Agent: "loud"})

	w := do(t, r, http.MethodGet, "/sessions/s1/model?thread_id=t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, protocol.SessionModelResponse{Model: "big", DefaultModel: "big", IsDefault: true},
		decodeBody[protocol.SessionModelResponse](t, w))

	w = do(t, r, http.MethodPut, "/sessions/s1/model?thread_id=t1", protocol.SessionModelRequest{Model: " small "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, protocol.SessionModelResponse{Model: "small", DefaultModel: "big"},
		decodeBody[protocol.SessionModelResponse](t, w))

	w = do(t, r, http.MethodPut, "/sessions/s1/model?thread_id=t1", protocol.SessionModelRequest{Model: "giant"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody[protocol.ErrorResponse](t, w)
	assert.Equal(t, string(domain.CodeInvalidModel), body.Error.Code)
	assert.Contains(t, body.Error.Message, "giant")

	w = do(t, r, http.MethodGet, "/sessions/s1/model?thread_id=t1", nil)
	assert.Equal(t, "small", decodeBody[protocol.SessionModelResponse](t, w).Model, "rejected model is not stored")
}

func TestChatRoute(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/ui/chat", protocol.ChatRequest{
		ThreadID: "t1",
		Messages: []protocol.Message{{Role: domain.RoleUser, Content: "hi **there**"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[protocol.ChatResponse](t, w)
	assert.Equal(t, "tui-default", resp.SessionID)
	assert.Equal(t, "echo", resp.Agent)
	assert.Equal(t, "hi **there**", resp.Output)
	require.Len(t, resp.Messages, 1)

	w = do(t, r, http.MethodGet, "/sessions/tui-default/threads/t1/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[protocol.ThreadMessagesResponse](t, w).Messages, 2)

	w = do(t, r, http.MethodPost, "/ui/chat", protocol.ChatRequest{
		SessionID: "web",
		ThreadID:  "t1",
		Agent:     "loud",
		Messages:  []protocol.Message{{Role: domain.RoleUser, Content: "x"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[protocol.ChatResponse](t, w)
	assert.Equal(t, "web", resp.SessionID)
	assert.Equal(t, "[big] x", resp.Output)
}

func TestChatRouteErrors(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   domain.ErrorCode
	}{
		{"missing thread", `{"messages":[{"role":"user","content":"x"}]}`, http.StatusBadRequest, domain.CodeInvalidInput},
		{"no messages", `{"thread_id":"t1","messages":[]}`, http.StatusBadRequest, domain.CodeInvalidInput},
		{"bad role", `{"thread_id":"t1","messages":[{"role":"robot","content":"x"}]}`, http.StatusBadRequest, domain.CodeInvalidInput},
		{"unknown agent", `{"thread_id":"t1","agent":"zzz","messages":[{"role":"user","content":"x"}]}`, http.StatusBadRequest, domain.CodeUnknownAgent},
		{"malformed json", `{"thread_id":`, http.StatusBadRequest, domain.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ui/chat", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, string(tt.code), decodeBody[protocol.ErrorResponse](t, w).Error.Code)
		})
	}
}

func TestChatRouteIDSpellings(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name    string
		body    string
		session string
		thread  string
	}{
		{"camel case", `{"threadId":"t1","sessionId":"s9","messages":[{"role":"user","content":"hi"}]}`, "s9", "t1"},
		{"camel thread only", `{"threadId":"t2","messages":[{"role":"user","content":"hi"}]}`, "tui-default", "t2"},
		{"snake wins", `{"thread_id":"t3","threadId":"x","session_id":"s1","sessionId":"y","messages":[{"role":"user","content":"hi"}]}`, "s1", "t3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ui/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decodeBody[protocol.ChatResponse](t, w)
			assert.Equal(t, tt.session, resp.SessionID)
			assert.Equal(t, tt.thread, resp.ThreadID)
		})
	}
}

func newRouterWithRegistry(t *testing.T, reg *usecase.AgentRegistry, opts Options) *gin.Engine {
	t.Helper()
	opts.Service = usecase.NewService(usecase.ServiceDeps{
		Store:    store.NewMemoryStore(),
		Registry: usecase.NewRegistryHandle(reg),
		Logger:   logger.Discard(),
	})
	opts.Logger = logger.Discard()
	return NewRouter(opts)
}

func TestChatRouteResolvesSessionPerRequest(t *testing.T) {
	reg, err := plugin.BuildRegistry(config.AgentsConfig{
		Definitions: []config.AgentDefinition{{ID: "echo", Name: "Echo"}},
	}, logger.Discard())
	require.NoError(t, err)

	ids := []string{"tui-first", "tui-second"}
	calls := 0
	var failWith error
	next := func() (string, error) {
		if failWith != nil {
			return "", failWith
		}
		id := ids[calls%len(ids)]
		calls++
		return id, nil
	}
	r := newRouterWithRegistry(t, reg, Options{SessionID: "ignored", SessionIDFunc: next})
	chat := func(body protocol.ChatRequest) *httptest.ResponseRecorder {
		body.Messages = []protocol.Message{{Role: domain.RoleUser, Content: "hi"}}
		return do(t, r, http.MethodPost, "/ui/chat", body)
	}

	w := chat(protocol.ChatRequest{ThreadID: "t"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "tui-first", decodeBody[protocol.ChatResponse](t, w).SessionID)

	w = chat(protocol.ChatRequest{ThreadID: "t"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "tui-second", decodeBody[protocol.ChatResponse](t, w).SessionID)

	w = chat(protocol.ChatRequest{SessionID: "web", ThreadID: "t"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls, "an explicit session skips the lookup")

	failWith = errors.New("session file unreadable")
	w = chat(protocol.ChatRequest{ThreadID: "t"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestChatRouteAgentConstructionFailure(t *testing.T) {
	reg, err := usecase.NewAgentRegistry([]*domain.AgentPlugin{
		{
			ID: "broken",
			CreateAgent: func(string) (domain.Runner, error) {
				return nil, errors.New("cannot build agent")
			},
		},
		{
			ID: "nomodel",
			CreateAgent: func(string) (domain.Runner, error) {
				return nil, &domain.ModelValidationError{Err: errors.New(`agent "nomodel" has no model configured`)}
			},
		},
	}, "broken")
	require.NoError(t, err)
	r := newRouterWithRegistry(t, reg, Options{SessionID: "s"})

	tests := []struct {
		agent string
		code  domain.ErrorCode
	}{
		{"broken", domain.CodeInvalidInput},
		{"nomodel", domain.CodeInvalidModel},
	}
	for _, tt := range tests {
		t.Run(tt.agent, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/ui/chat", protocol.ChatRequest{
				ThreadID: "t",
				Agent:    tt.agent,
				Messages: []protocol.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, string(tt.code), decodeBody[protocol.ErrorResponse](t, w).Error.Code)
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodGet, "/health", nil)

	w := do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lattice_http_requests_total{method="GET",route="/health",status="2xx"} 1`)
}

func TestUnmatchedRoute(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
