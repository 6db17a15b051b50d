// Package wire converts usecase results into pkg/protocol shapes. The HTTP
// API and the WebSocket gateway share it so both surfaces answer alike.
package wire

import (
	"errors"
	"net/http"

	"lattice/internal/domain"
	"lattice/internal/usecase"
	"lattice/pkg/protocol"
)

// AgentList describes every registered agent.
func AgentList(reg *usecase.AgentRegistry) protocol.AgentListResponse {
	agents := reg.Agents()
	out := protocol.AgentListResponse{
		DefaultAgent: reg.DefaultAgent(),
		Agents:       make([]protocol.AgentInfo, len(agents)),
	}
	for i, p := range agents {
		out.Agents[i] = protocol.AgentInfo{ID: p.ID, Name: p.DisplayName()}
	}
	return out
}

func ThreadAgent(sel usecase.AgentSelection) protocol.ThreadAgentResponse {
	return protocol.ThreadAgentResponse{
		Agent:        sel.AgentID,
		DefaultAgent: sel.DefaultAgent,
		IsDefault:    sel.IsDefault,
		AgentName:    sel.AgentName,
	}
}

func SessionModel(ms usecase.ModelSelection) protocol.SessionModelResponse {
	return protocol.SessionModelResponse{
		Model:        ms.Model,
		DefaultModel: ms.DefaultModel,
		IsDefault:    ms.IsDefault,
	}
}

func Messages(msgs []domain.Message) protocol.ThreadMessagesResponse {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return protocol.ThreadMessagesResponse{Messages: msgs}
}

func Threads(ids []string) protocol.ThreadListResponse {
	if ids == nil {
		ids = []string{}
	}
	return protocol.ThreadListResponse{Threads: ids}
}

// TurnRequest converts a chat request. sessionID replaces a blank
// req.SessionID.
func TurnRequest(req protocol.ChatRequest, sessionID string) usecase.TurnRequest {
	if req.SessionID != "" {
		sessionID = req.SessionID
	}
	return usecase.TurnRequest{
		SessionID: sessionID,
		ThreadID:  req.ThreadID,
		Agent:     req.Agent,
		Model:     req.Model,
		Messages:  req.Messages,
	}
}

func Chat(req usecase.TurnRequest, res *usecase.TurnResult) protocol.ChatResponse {
	msgs := res.NewMessages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return protocol.ChatResponse{
		SessionID: req.SessionID,
		ThreadID:  req.ThreadID,
		Agent:     res.AgentID,
		AgentName: res.AgentName,
		Model:     res.Model,
		Messages:  msgs,
		Output:    res.Output,
	}
}

// Error builds the error body for err.
func Error(err error) protocol.ErrorResponse {
	return protocol.ErrorResponse{Error: protocol.ErrorBody{
		Code:    string(domain.ErrorCodeOf(err)),
		Message: errorMessage(err),
	}}
}

// errorMessage prefers the innermost user-facing message: the bare text of
// an unknown-agent or model rejection rather than its wrapping op chain.
func errorMessage(err error) string {
	var ua *domain.UnknownAgentError
	if errors.As(err, &ua) {
		return ua.Error()
	}
	var mv *domain.ModelValidationError
	if errors.As(err, &mv) {
		return mv.Error()
	}
	return err.Error()
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownAgent),
		errors.Is(err, domain.ErrInvalidModel),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrRPCInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrThreadNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrThreadExists), errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAgentUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
