// Package client gives the terminal UI one interface over a running lattice
// server or an in-process service.
package client

import (
	"context"

	"lattice/internal/domain"
	"lattice/pkg/protocol"
)

// Client is the terminal's view of a lattice backend. Every call names its
// session explicitly.
type Client interface {
	ListThreads(ctx context.Context, sessionID string) ([]string, error)
	// CreateThread returns the created id; a blank threadID generates one.
	CreateThread(ctx context.Context, sessionID, threadID string) (string, error)
	DeleteThread(ctx context.Context, sessionID, threadID string) error
	ClearThread(ctx context.Context, sessionID, threadID string) error
	Messages(ctx context.Context, sessionID, threadID string) ([]domain.Message, error)

	Agents(ctx context.Context) (protocol.AgentListResponse, error)
	ThreadAgent(ctx context.Context, sessionID, threadID string) (protocol.ThreadAgentResponse, error)
	SetThreadAgent(ctx context.Context, sessionID, threadID, agent string) (protocol.ThreadAgentResponse, error)
	ThreadModels(ctx context.Context, sessionID, threadID string) (protocol.ModelListResponse, error)
	SessionModel(ctx context.Context, sessionID, threadID string) (protocol.SessionModelResponse, error)
	SetSessionModel(ctx context.Context, sessionID, threadID, model string) (protocol.SessionModelResponse, error)

	Chat(ctx context.Context, req protocol.ChatRequest) (protocol.ChatResponse, error)

	Close() error
}

// Connection modes.
const (
	ModeServer = "server"
	ModeLocal  = "local"
)

// ConnectionInfo records how the terminal reached its backend.
type ConnectionInfo struct {
	Mode      string
	ServerURL string
}

// StatusMessage is a one-line description for the terminal banner.
func (c ConnectionInfo) StatusMessage() string {
	if c.Mode == ModeServer {
		return "Connected to server at " + c.ServerURL
	}
	return "Running in local mode"
}
