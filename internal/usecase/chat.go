package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lattice/internal/domain"
	"lattice/internal/infra/tracer"
)

// TurnRequest is one chat turn for a (session, thread). Agent and Model are
// per-request overrides; they are resolved and validated but never persisted.
type TurnRequest struct {
	SessionID string
	ThreadID  string
	Agent     string
	Model     string
	Messages  []domain.Message
}

// TurnResult reports what a turn produced.
type TurnResult struct {
	AgentID     string
	AgentName   string
	Model       string
	NewMessages []domain.Message
	Output      string
	// HistoryLen is the number of stored messages fed to the agent.
	HistoryLen int
}

// RunTurn executes a chat turn. The thread lock is held from settings load
// through persistence. The merged history is saved only after the agent
// returns successfully and ctx is still live, so a failed or cancelled turn
// leaves the stored thread untouched.
func (s *Service) RunTurn(ctx context.Context, req TurnRequest) (_ *TurnResult, err error) {
	if err := validateTurn(req); err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "chat.turn", tracer.ThreadAttrs(req.SessionID, req.ThreadID))
	defer span.End()

	start := time.Now()
	agentLabel := "unresolved"
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.ErrorCodeOf(err))
			tracer.RecordError(span, err)
		} else {
			tracer.SetOK(span)
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveTurn(agentLabel, outcome, time.Since(start))
		}
	}()

	unlock, err := s.deps.Locker.Lock(ctx, req.SessionID, req.ThreadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	reg := s.Registry()

	sel, err := s.resolveTurnAgent(ctx, reg, req)
	if err != nil {
		return nil, err
	}
	agentLabel = sel.AgentID

	model, err := s.resolveTurnModel(ctx, req, sel)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr(tracer.AttrAgent, sel.AgentID), tracer.StringAttr(tracer.AttrModel, model))

	runner, err := sel.Plugin.CreateAgent(model)
	if err != nil {
		return nil, domain.NewDomainError("Service.RunTurn", constructionError(err), sel.AgentID)
	}

	stored, err := s.deps.Store.LoadThread(ctx, req.SessionID, req.ThreadID)
	if err != nil {
		return nil, domain.WrapOp("load thread", err)
	}
	incoming := stampMessages(req.Messages)
	history := SelectMessageHistory(incoming, stored)

	rc := domain.RunContext{
		SessionID:   req.SessionID,
		ThreadID:    req.ThreadID,
		AgentID:     sel.AgentID,
		Model:       model,
		Workspace:   s.deps.Workspace,
		ProjectRoot: s.deps.ProjectRoot,
		Incoming:    incoming,
	}
	var deps any
	if sel.Plugin.CreateDeps != nil {
		if deps, err = sel.Plugin.CreateDeps(rc); err != nil {
			return nil, domain.NewDomainError("Service.RunTurn", fmt.Errorf("%w: %w", domain.ErrAgentUnavailable, err), "create deps")
		}
	}

	s.log.DebugContext(ctx, "running turn",
		"session", req.SessionID, "thread", req.ThreadID, "agent", sel.AgentID, "model", model,
		"incoming_roles", roles(incoming), "history", len(history))

	result, err := runner.Run(ctx, domain.RunInput{Messages: incoming, History: history, Deps: deps})
	if err != nil {
		return nil, domain.WrapOp("run agent", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapOp("run agent", err)
	}
	if result == nil {
		result = &domain.RunResult{}
	}
	produced := stampMessages(result.NewMessages)

	merged := MergeMessages(history, incoming, produced)
	if err := s.deps.Store.SaveThread(ctx, req.SessionID, req.ThreadID, merged); err != nil {
		return nil, domain.WrapOp("save thread", err)
	}

	if sel.Plugin.OnComplete != nil {
		sel.Plugin.OnComplete(ctx, rc, &domain.RunResult{NewMessages: produced, Output: result.Output})
	}

	return &TurnResult{
		AgentID:     sel.AgentID,
		AgentName:   sel.AgentName,
		Model:       model,
		NewMessages: produced,
		Output:      result.Output,
		HistoryLen:  len(history),
	}, nil
}

func (s *Service) resolveTurnAgent(ctx context.Context, reg *AgentRegistry, req TurnRequest) (AgentSelection, error) {
	if strings.TrimSpace(req.Agent) != "" {
		return ResolveRequestedAgent(reg, req.Agent)
	}
	sel, err := SelectAgentForThread(ctx, s.deps.Store, reg, req.SessionID, req.ThreadID)
	if err != nil {
		return AgentSelection{}, err
	}
	s.noteFallback(sel, req.SessionID, req.ThreadID)
	return sel, nil
}

func (s *Service) resolveTurnModel(ctx context.Context, req TurnRequest, sel AgentSelection) (string, error) {
	if m := strings.TrimSpace(req.Model); m != "" {
		if err := ValidateModel(sel.Plugin, m); err != nil {
			return "", err
		}
		return m, nil
	}
	ms, err := SelectSessionModel(ctx, s.deps.Store, req.SessionID, sel.Plugin, s.modelListErr(ctx, sel.AgentID))
	if err != nil {
		return "", err
	}
	return ms.Model, nil
}

// constructionError classifies a CreateAgent failure. Errors that already
// carry a domain code keep it; anything else is a request the caller can fix
// by choosing another agent or model.
func constructionError(err error) error {
	if domain.ErrorCodeOf(err) != domain.CodeUnknown {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
}

func validateTurn(req TurnRequest) error {
	if err := requireID("session", req.SessionID); err != nil {
		return err
	}
	if err := requireID("thread", req.ThreadID); err != nil {
		return err
	}
	if len(req.Messages) == 0 {
		return domain.NewDomainError("Service.RunTurn", domain.ErrInvalidInput, "no messages")
	}
	for i, m := range req.Messages {
		if !domain.IsKnownRole(m.Role) {
			return domain.NewDomainError("Service.RunTurn", domain.ErrInvalidInput, fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
	}
	return nil
}

// stampMessages copies msgs, filling in a missing id or timestamp.
func stampMessages(msgs []domain.Message) []domain.Message {
	out := domain.CloneMessages(msgs)
	now := time.Now().UTC()
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = NewID()
		}
		if out[i].Timestamp.IsZero() {
			out[i].Timestamp = now
		}
	}
	return out
}

func roles(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
