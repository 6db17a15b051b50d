package usecase

import (
	"context"
	"log/slog"
	"time"

	"lattice/internal/domain"
)

// Recorder receives turn and resolution metrics. *metrics.Metrics
// implements it; nil disables recording.
type Recorder interface {
	ObserveTurn(agent, outcome string, d time.Duration)
	IncAgentFallback(stored string)
	IncModelListFailure(agent string)
	SetActiveLocks(n int)
}

// ServiceDeps holds injected dependencies for the Service.
type ServiceDeps struct {
	Store       domain.SessionStore
	Registry    *RegistryHandle
	Locker      *ThreadLocker // optional, nil = private locker
	Logger      *slog.Logger  // optional, nil = slog.Default()
	Metrics     Recorder      // optional, nil = no metrics
	Workspace   string
	ProjectRoot string
}

// Service is the session/thread facade shared by the HTTP API, the
// WebSocket gateway and the in-process terminal client.
type Service struct {
	deps    ServiceDeps
	threads *ThreadService
	log     *slog.Logger
}

// NewService wires a Service from deps.
func NewService(deps ServiceDeps) *Service {
	if deps.Locker == nil {
		deps.Locker = NewThreadLocker()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics != nil {
		deps.Locker.OnChange(deps.Metrics.SetActiveLocks)
	}
	return &Service{
		deps:    deps,
		threads: NewThreadService(deps.Store, deps.Locker),
		log:     deps.Logger,
	}
}

// Threads returns the thread lifecycle service.
func (s *Service) Threads() *ThreadService { return s.threads }

// Registry returns the current registry snapshot.
func (s *Service) Registry() *AgentRegistry { return s.deps.Registry.Load() }

// ThreadAgent returns the agent the thread currently resolves to.
func (s *Service) ThreadAgent(ctx context.Context, sessionID, threadID string) (AgentSelection, error) {
	sel, err := SelectAgentForThread(ctx, s.deps.Store, s.Registry(), sessionID, threadID)
	if err != nil {
		return AgentSelection{}, err
	}
	s.noteFallback(sel, sessionID, threadID)
	return sel, nil
}

// SetThreadAgent changes (or with a blank request, clears) the thread's agent.
func (s *Service) SetThreadAgent(ctx context.Context, sessionID, threadID, requested string) (AgentSelection, error) {
	unlock, err := s.deps.Locker.Lock(ctx, sessionID, threadID)
	if err != nil {
		return AgentSelection{}, err
	}
	defer unlock()

	sel, err := SetThreadAgent(ctx, s.deps.Store, s.Registry(), sessionID, threadID, requested)
	if err != nil {
		return AgentSelection{}, err
	}
	s.log.Info("thread agent set", "session", sessionID, "thread", threadID, "agent", sel.AgentID)
	return sel, nil
}

// SessionModel returns the session's model for the agent of threadID.
func (s *Service) SessionModel(ctx context.Context, sessionID, threadID string) (ModelSelection, error) {
	sel, err := s.ThreadAgent(ctx, sessionID, threadID)
	if err != nil {
		return ModelSelection{}, err
	}
	return SelectSessionModel(ctx, s.deps.Store, sessionID, sel.Plugin, s.modelListErr(ctx, sel.AgentID))
}

// SetSessionModel changes (or with a blank request, clears) the session's
// model, validated against the agent of threadID.
func (s *Service) SetSessionModel(ctx context.Context, sessionID, threadID, requested string) (ModelSelection, error) {
	sel, err := s.ThreadAgent(ctx, sessionID, threadID)
	if err != nil {
		return ModelSelection{}, err
	}
	ms, err := SetSessionModel(ctx, s.deps.Store, sessionID, sel.Plugin, requested, s.modelListErr(ctx, sel.AgentID))
	if err != nil {
		return ModelSelection{}, err
	}
	s.log.Info("session model set", "session", sessionID, "model", ms.Model, "default", ms.IsDefault)
	return ms, nil
}

// ThreadModels returns the default model and the available models for an
// existing thread's agent.
func (s *Service) ThreadModels(ctx context.Context, sessionID, threadID string) (string, []string, error) {
	if err := s.threads.RequireThread(ctx, sessionID, threadID); err != nil {
		return "", nil, err
	}
	sel, err := s.ThreadAgent(ctx, sessionID, threadID)
	if err != nil {
		return "", nil, err
	}
	onErr := s.modelListErr(ctx, sel.AgentID)
	models := ListModels(ctx, sel.Plugin, onErr)
	if models == nil {
		models = []string{}
	}
	return ResolveDefaultModel(ctx, sel.Plugin, onErr), models, nil
}

func (s *Service) noteFallback(sel AgentSelection, sessionID, threadID string) {
	if sel.StaleAgent == "" {
		return
	}
	s.log.Info("stored agent not registered, using default",
		"session", sessionID, "thread", threadID, "stored", sel.StaleAgent, "default", sel.AgentID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.IncAgentFallback(sel.StaleAgent)
	}
}

func (s *Service) modelListErr(ctx context.Context, agentID string) func(error) {
	return func(err error) {
		s.log.DebugContext(ctx, "list models failed", "agent", agentID, "error", err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.IncModelListFailure(agentID)
		}
	}
}
