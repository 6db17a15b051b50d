package client

import (
	"context"

	"lattice/internal/adapter/wire"
	"lattice/internal/domain"
	"lattice/internal/usecase"
	"lattice/pkg/protocol"
)

// InProcess serves the Client interface directly from a usecase.Service.
type InProcess struct {
	svc     *usecase.Service
	closers []func() error
}

// NewInProcess wraps svc. closers run in reverse order on Close.
func NewInProcess(svc *usecase.Service, closers ...func() error) *InProcess {
	return &InProcess{svc: svc, closers: closers}
}

func (c *InProcess) ListThreads(ctx context.Context, sessionID string) ([]string, error) {
	return c.svc.Threads().List(ctx, sessionID)
}

func (c *InProcess) CreateThread(ctx context.Context, sessionID, threadID string) (string, error) {
	return c.svc.Threads().Create(ctx, sessionID, threadID)
}

func (c *InProcess) DeleteThread(ctx context.Context, sessionID, threadID string) error {
	return c.svc.Threads().Delete(ctx, sessionID, threadID)
}

func (c *InProcess) ClearThread(ctx context.Context, sessionID, threadID string) error {
	return c.svc.Threads().Clear(ctx, sessionID, threadID)
}

func (c *InProcess) Messages(ctx context.Context, sessionID, threadID string) ([]domain.Message, error) {
	return c.svc.Threads().Messages(ctx, sessionID, threadID)
}

func (c *InProcess) Agents(context.Context) (protocol.AgentListResponse, error) {
	return wire.AgentList(c.svc.Registry()), nil
}

func (c *InProcess) ThreadAgent(ctx context.Context, sessionID, threadID string) (protocol.ThreadAgentResponse, error) {
	sel, err := c.svc.ThreadAgent(ctx, sessionID, threadID)
	if err != nil {
		return protocol.ThreadAgentResponse{}, err
	}
	return wire.ThreadAgent(sel), nil
}

func (c *InProcess) SetThreadAgent(ctx context.Context, sessionID, threadID, agent string) (protocol.ThreadAgentResponse, error) {
	sel, err := c.svc.SetThreadAgent(ctx, sessionID, threadID, agent)
	if err != nil {
		return protocol.ThreadAgentResponse{}, err
	}
	return wire.ThreadAgent(sel), nil
}

func (c *InProcess) ThreadModels(ctx context.Context, sessionID, threadID string) (protocol.ModelListResponse, error) {
	def, models, err := c.svc.ThreadModels(ctx, sessionID, threadID)
	if err != nil {
		return protocol.ModelListResponse{}, err
	}
	return protocol.ModelListResponse{DefaultModel: def, Models: models}, nil
}

func (c *InProcess) SessionModel(ctx context.Context, sessionID, threadID string) (protocol.SessionModelResponse, error) {
	ms, err := c.svc.SessionModel(ctx, sessionID, threadID)
	if err != nil {
		return protocol.SessionModelResponse{}, err
	}
	return wire.SessionModel(ms), nil
}

func (c *InProcess) SetSessionModel(ctx context.Context, sessionID, threadID, model string) (protocol.SessionModelResponse, error) {
	ms, err := c.svc.SetSessionModel(ctx, sessionID, threadID, model)
	if err != nil {
		return protocol.SessionModelResponse{}, err
	}
	return wire.SessionModel(ms), nil
}

func (c *InProcess) Chat(ctx context.Context, req protocol.ChatRequest) (protocol.ChatResponse, error) {
	turn := wire.TurnRequest(req, req.SessionID)
	res, err := c.svc.RunTurn(ctx, turn)
	if err != nil {
		return protocol.ChatResponse{}, err
	}
	return wire.Chat(turn, res), nil
}

// Close runs the registered closers, returning the first error.
func (c *InProcess) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
