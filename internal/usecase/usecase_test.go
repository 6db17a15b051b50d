package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lattice/internal/adapter/store"
	"lattice/internal/domain"
)

// --- Fakes ---

// recordingStore wraps a MemoryStore, counting writes and optionally failing.
type recordingStore struct {
	*store.MemoryStore
	settingsWrites atomic.Int32
	modelWrites    atomic.Int32
	saves          atomic.Int32
	failGet        error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *recordingStore) GetThreadSettings(ctx context.Context, sessionID, threadID string) (domain.ThreadSettings, error) {
	if s.failGet != nil {
		return domain.ThreadSettings{}, s.failGet
	}
	return s.MemoryStore.GetThreadSettings(ctx, sessionID, threadID)
}

func (s *recordingStore) SetThreadSettings(ctx context.Context, sessionID, threadID string, settings domain.ThreadSettings) error {
	s.settingsWrites.Add(1)
	return s.MemoryStore.SetThreadSettings(ctx, sessionID, threadID, settings)
}

func (s *recordingStore) SetSessionModel(ctx context.Context, sessionID, model string) error {
	s.modelWrites.Add(1)
	return s.MemoryStore.SetSessionModel(ctx, sessionID, model)
}

func (s *recordingStore) SaveThread(ctx context.Context, sessionID, threadID string, messages []domain.Message) error {
	s.saves.Add(1)
	return s.MemoryStore.SaveThread(ctx, sessionID, threadID, messages)
}

// fakeRunner echoes the last incoming message and records what it saw.
type fakeRunner struct {
	mu    sync.Mutex
	model string
	seen  []domain.RunInput
	err   error
	block chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, in domain.RunInput) (*domain.RunResult, error) {
	r.mu.Lock()
	r.seen = append(r.seen, in)
	model := r.model
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	last := in.Messages[len(in.Messages)-1]
	reply := domain.Message{Role: domain.RoleAssistant, Content: model + ":" + last.Content}
	return &domain.RunResult{NewMessages: []domain.Message{reply}, Output: reply.Content}, nil
}

func (r *fakeRunner) inputs() []domain.RunInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunInput(nil), r.seen...)
}

func plugin(id, name, defaultModel string) *domain.AgentPlugin {
	return &domain.AgentPlugin{
		ID:           id,
		Name:         name,
		DefaultModel: defaultModel,
		CreateAgent: func(model string) (domain.Runner, error) {
			return &fakeRunner{model: model}, nil
		},
	}
}

// withRunner makes every CreateAgent call of p return r.
func withRunner(p *domain.AgentPlugin, r *fakeRunner) *domain.AgentPlugin {
	p.CreateAgent = func(model string) (domain.Runner, error) {
		r.mu.Lock()
		r.model = model
		r.mu.Unlock()
		return r, nil
	}
	return p
}

// scenarioRegistry is {alpha: "Alpha" (default), beta: "Beta Agent"}.
func scenarioRegistry() *AgentRegistry {
	reg, err := NewAgentRegistry([]*domain.AgentPlugin{
		plugin("alpha", "Alpha", "alpha-model"),
		plugin("beta", "Beta Agent", "beta-model"),
	}, "alpha")
	if err != nil {
		panic(err)
	}
	return reg
}

var errBoom = errors.New("boom")

type fakeRecorder struct {
	mu        sync.Mutex
	turns     []string
	fallbacks []string
	listFails []string
	locks     []int
}

func (f *fakeRecorder) ObserveTurn(agent, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, agent+"/"+outcome)
}

func (f *fakeRecorder) IncAgentFallback(stored string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, stored)
}

func (f *fakeRecorder) IncModelListFailure(agent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFails = append(f.listFails, agent)
}

func (f *fakeRecorder) SetActiveLocks(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, n)
}
