// Package protocol holds the JSON request and response shapes shared by the
// lattice HTTP API, the WebSocket gateway and their clients.
//
// Message types are aliases of internal/domain so in-tree callers avoid a
// conversion step.
package protocol

import (
	"encoding/json"

	"lattice/internal/domain"
)

// Re-exported domain types.
type (
	Message  = domain.Message
	ToolCall = domain.ToolCall
)

// Workspace modes reported by ServerInfoResponse.
const (
	WorkspaceModeLocal   = "local"
	WorkspaceModeCentral = "central"
)

// --- Threads ---

type ThreadCreateRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
}

type ThreadCreateResponse struct {
	ThreadID string `json:"thread_id"`
}

type ThreadDeleteResponse struct {
	Deleted string `json:"deleted"`
}

type ThreadClearResponse struct {
	Cleared string `json:"cleared"`
}

type ThreadListResponse struct {
	Threads []string `json:"threads"`
}

type ThreadMessagesResponse struct {
	Messages []Message `json:"messages"`
}

// --- Agents and models ---

type AgentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AgentListResponse struct {
	DefaultAgent string      `json:"default_agent"`
	Agents       []AgentInfo `json:"agents"`
}

// ThreadAgentRequest sets a thread's agent. A blank or missing Agent resets
// the thread to the default.
type ThreadAgentRequest struct {
	Agent string `json:"agent,omitempty"`
}

type ThreadAgentResponse struct {
	Agent        string `json:"agent"`
	DefaultAgent string `json:"default_agent"`
	IsDefault    bool   `json:"is_default"`
	AgentName    string `json:"agent_name,omitempty"`
}

type ModelListResponse struct {
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
}

// SessionModelRequest sets the session's model. A blank or missing Model
// clears the override.
type SessionModelRequest struct {
	Model string `json:"model,omitempty"`
}

type SessionModelResponse struct {
	Model        string `json:"model"`
	DefaultModel string `json:"default_model"`
	IsDefault    bool   `json:"is_default"`
}

// --- Chat ---

// ChatRequest runs one turn. SessionID defaults to the server's terminal
// session; ThreadID is required. Agent and Model override the stored
// selection for this turn only.
type ChatRequest struct {
	SessionID string    `json:"session_id,omitempty"`
	ThreadID  string    `json:"thread_id"`
	Agent     string    `json:"agent,omitempty"`
	Model     string    `json:"model,omitempty"`
	Messages  []Message `json:"messages"`
}

// UnmarshalJSON also accepts sessionId and threadId. The snake_case keys win
// when both spellings carry a value.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	var aux struct {
		plain
		SessionIDCamel string `json:"sessionId"`
		ThreadIDCamel  string `json:"threadId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ChatRequest(aux.plain)
	if r.SessionID == "" {
		r.SessionID = aux.SessionIDCamel
	}
	if r.ThreadID == "" {
		r.ThreadID = aux.ThreadIDCamel
	}
	return nil
}

type ChatResponse struct {
	SessionID string    `json:"session_id"`
	ThreadID  string    `json:"thread_id"`
	Agent     string    `json:"agent"`
	AgentName string    `json:"agent_name,omitempty"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Output    string    `json:"output"`
}

// --- Server ---

type HealthResponse struct {
	Status string `json:"status"`
}

type ServerInfoResponse struct {
	Version       string `json:"version"`
	PID           int    `json:"pid"`
	ProjectRoot   string `json:"project_root"`
	DataDir       string `json:"data_dir"`
	WorkspaceDir  string `json:"workspace_dir"`
	WorkspaceMode string `json:"workspace_mode"`
	AgentName     string `json:"agent_name,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
