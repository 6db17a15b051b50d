package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"lattice/internal/adapter/wire"
	"lattice/internal/domain"
	"lattice/internal/usecase"
	"lattice/pkg/protocol"
)

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Service *usecase.Service
	// SessionID is used when a request omits session_id.
	SessionID string
}

// threadRef addresses a thread in RPC payloads.
type threadRef struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("threads.list", threadsListHandler(deps))
	s.RegisterHandler("threads.create", threadsCreateHandler(s, deps))
	s.RegisterHandler("threads.delete", threadsDeleteHandler(s, deps))
	s.RegisterHandler("threads.clear", threadsClearHandler(s, deps))
	s.RegisterHandler("threads.messages", threadsMessagesHandler(deps))
	s.RegisterHandler("agents.list", agentsListHandler(deps))
	s.RegisterHandler("agent.get", agentGetHandler(deps))
	s.RegisterHandler("agent.set", agentSetHandler(deps))
	s.RegisterHandler("model.get", modelGetHandler(deps))
	s.RegisterHandler("model.set", modelSetHandler(deps))
	s.RegisterHandler("chat.send", chatSendHandler(s, deps))
}

// decode unmarshals payload into v. An empty payload leaves v untouched.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRPCInvalidPayload, err)
	}
	return nil
}

func (deps HandlerDeps) session(id string) string {
	if id != "" {
		return id
	}
	return deps.SessionID
}

// --- threads ---

func threadsListHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		ids, err := deps.Service.Threads().List(ctx, deps.session(req.SessionID))
		if err != nil {
			return nil, err
		}
		return wire.Threads(ids), nil
	}
}

func threadsCreateHandler(s *Server, deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		sessionID := deps.session(req.SessionID)
		id, err := deps.Service.Threads().Create(ctx, sessionID, req.ThreadID)
		if err != nil {
			return nil, err
		}
		s.Broadcast(EventThreadCreated, ThreadEvent{SessionID: sessionID, ThreadID: id})
		return protocol.ThreadCreateResponse{ThreadID: id}, nil
	}
}

func threadsDeleteHandler(s *Server, deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		sessionID := deps.session(req.SessionID)
		if err := deps.Service.Threads().Delete(ctx, sessionID, req.ThreadID); err != nil {
			return nil, err
		}
		s.Broadcast(EventThreadDeleted, ThreadEvent{SessionID: sessionID, ThreadID: req.ThreadID})
		return protocol.ThreadDeleteResponse{Deleted: req.ThreadID}, nil
	}
}

func threadsClearHandler(s *Server, deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		sessionID := deps.session(req.SessionID)
		if err := deps.Service.Threads().Clear(ctx, sessionID, req.ThreadID); err != nil {
			return nil, err
		}
		s.Broadcast(EventThreadUpdated, ThreadEvent{SessionID: sessionID, ThreadID: req.ThreadID})
		return protocol.ThreadClearResponse{Cleared: req.ThreadID}, nil
	}
}

func threadsMessagesHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		msgs, err := deps.Service.Threads().Messages(ctx, deps.session(req.SessionID), req.ThreadID)
		if err != nil {
			return nil, err
		}
		return wire.Messages(msgs), nil
	}
}

// --- agents and models ---

func agentsListHandler(deps HandlerDeps) RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (any, error) {
		return wire.AgentList(deps.Service.Registry()), nil
	}
}

func agentGetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		sel, err := deps.Service.ThreadAgent(ctx, deps.session(req.SessionID), req.ThreadID)
		if err != nil {
			return nil, err
		}
		return wire.ThreadAgent(sel), nil
	}
}

type agentSetRequest struct {
	threadRef
	Agent string `json:"agent"`
}

func agentSetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req agentSetRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		sel, err := deps.Service.SetThreadAgent(ctx, deps.session(req.SessionID), req.ThreadID, req.Agent)
		if err != nil {
			return nil, err
		}
		return wire.ThreadAgent(sel), nil
	}
}

func modelGetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req threadRef
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		ms, err := deps.Service.SessionModel(ctx, deps.session(req.SessionID), req.ThreadID)
		if err != nil {
			return nil, err
		}
		return wire.SessionModel(ms), nil
	}
}

type modelSetRequest struct {
	threadRef
	Model string `json:"model"`
}

func modelSetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req modelSetRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		ms, err := deps.Service.SetSessionModel(ctx, deps.session(req.SessionID), req.ThreadID, req.Model)
		if err != nil {
			return nil, err
		}
		return wire.SessionModel(ms), nil
	}
}

// --- chat ---

func chatSendHandler(s *Server, deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req protocol.ChatRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		turn := wire.TurnRequest(req, deps.SessionID)
		res, err := deps.Service.RunTurn(ctx, turn)
		if err != nil {
			return nil, err
		}
		s.Broadcast(EventThreadUpdated, ThreadEvent{SessionID: turn.SessionID, ThreadID: turn.ThreadID, Agent: res.AgentID})
		return wire.Chat(turn, res), nil
	}
}
