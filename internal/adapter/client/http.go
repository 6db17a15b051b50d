package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lattice/internal/domain"
	"lattice/pkg/protocol"
)

const maxResponseBody = 10 << 20

// APIError is a non-2xx response decoded from the server's error body.
// It unwraps to the domain sentinel named by Code so callers can use
// errors.Is across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d (%s)", e.Status, e.Code)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return domain.SentinelFor(domain.ErrorCode(e.Code))
}

// HTTPClient talks to a lattice server's REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for baseURL. A nil hc uses a client with a
// five minute timeout so long turns complete.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func threadPath(sessionID, threadID string) string {
	return "/sessions/" + url.PathEscape(sessionID) + "/threads/" + url.PathEscape(threadID)
}

func modelPath(sessionID, threadID string) string {
	return "/sessions/" + url.PathEscape(sessionID) + "/model?thread_id=" + url.QueryEscape(threadID)
}

func (c *HTTPClient) ListThreads(ctx context.Context, sessionID string) ([]string, error) {
	var resp protocol.ThreadListResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/threads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

func (c *HTTPClient) CreateThread(ctx context.Context, sessionID, threadID string) (string, error) {
	var resp protocol.ThreadCreateResponse
	req := protocol.ThreadCreateRequest{ThreadID: threadID}
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/threads", req, &resp); err != nil {
		return "", err
	}
	return resp.ThreadID, nil
}

func (c *HTTPClient) DeleteThread(ctx context.Context, sessionID, threadID string) error {
	return c.do(ctx, http.MethodDelete, threadPath(sessionID, threadID), nil, nil)
}

func (c *HTTPClient) ClearThread(ctx context.Context, sessionID, threadID string) error {
	return c.do(ctx, http.MethodPost, threadPath(sessionID, threadID)+"/clear", nil, nil)
}

func (c *HTTPClient) Messages(ctx context.Context, sessionID, threadID string) ([]domain.Message, error) {
	var resp protocol.ThreadMessagesResponse
	if err := c.do(ctx, http.MethodGet, threadPath(sessionID, threadID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *HTTPClient) Agents(ctx context.Context) (protocol.AgentListResponse, error) {
	var resp protocol.AgentListResponse
	err := c.do(ctx, http.MethodGet, "/agents", nil, &resp)
	return resp, err
}

func (c *HTTPClient) ThreadAgent(ctx context.Context, sessionID, threadID string) (protocol.ThreadAgentResponse, error) {
	var resp protocol.ThreadAgentResponse
	err := c.do(ctx, http.MethodGet, threadPath(sessionID, threadID)+"/agent", nil, &resp)
	return resp, err
}

func (c *HTTPClient) SetThreadAgent(ctx context.Context, sessionID, threadID, agent string) (protocol.ThreadAgentResponse, error) {
	var resp protocol.ThreadAgentResponse
	err := c.do(ctx, http.MethodPut, threadPath(sessionID, threadID)+"/agent", protocol.ThreadAgentRequest{Agent: agent}, &resp)
	return resp, err
}

func (c *HTTPClient) ThreadModels(ctx context.Context, sessionID, threadID string) (protocol.ModelListResponse, error) {
	var resp protocol.ModelListResponse
	err := c.do(ctx, http.MethodGet, threadPath(sessionID, threadID)+"/models", nil, &resp)
	return resp, err
}

func (c *HTTPClient) SessionModel(ctx context.Context, sessionID, threadID string) (protocol.SessionModelResponse, error) {
	var resp protocol.SessionModelResponse
	err := c.do(ctx, http.MethodGet, modelPath(sessionID, threadID), nil, &resp)
	return resp, err
}

func (c *HTTPClient) SetSessionModel(ctx context.Context, sessionID, threadID, model string) (protocol.SessionModelResponse, error) {
	var resp protocol.SessionModelResponse
	err := c.do(ctx, http.MethodPut, modelPath(sessionID, threadID), protocol.SessionModelRequest{Model: model}, &resp)
	return resp, err
}

func (c *HTTPClient) Chat(ctx context.Context, req protocol.ChatRequest) (protocol.ChatResponse, error) {
	var resp protocol.ChatResponse
	err := c.do(ctx, http.MethodPost, "/ui/chat", req, &resp)
	return resp, err
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends body as JSON and decodes a 2xx response into out when non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var body protocol.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return &APIError{Status: status, Code: string(domain.CodeUnknown), Message: strings.TrimSpace(string(data))}
	}
	return &APIError{Status: status, Code: body.Error.Code, Message: body.Error.Message}
}

// IsNotFound reports whether err means the thread does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrThreadNotFound) || errors.Is(err, domain.ErrNotFound)
}
