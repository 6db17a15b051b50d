package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/domain"
	"lattice/internal/infra/logger"
)

type chatFixture struct {
	svc    *Service
	store  *recordingStore
	alpha  *fakeRunner
	beta   *fakeRunner
	handle *RegistryHandle
	rec    *fakeRecorder
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	clearModelEnv(t)
	f := &chatFixture{
		store: newRecordingStore(),
		alpha: &fakeRunner{},
		beta:  &fakeRunner{},
		rec:   &fakeRecorder{},
	}
	reg, err := NewAgentRegistry([]*domain.AgentPlugin{
		withRunner(plugin("alpha", "Alpha", "alpha-model"), f.alpha),
		withRunner(plugin("beta", "Beta Agent", "beta-model"), f.beta),
	}, "alpha")
	require.NoError(t, err)
	f.handle = NewRegistryHandle(reg)
	f.svc = NewService(ServiceDeps{
		Store:    f.store,
		Registry: f.handle,
		Logger:   logger.Discard(),
		Metrics:  f.rec,
	})
	return f
}

func userTurn(content string) TurnRequest {
	return TurnRequest{SessionID: "s1", ThreadID: "t1", Messages: []domain.Message{msg("user", content)}}
}

func TestRunTurnPersistsMergedHistory(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	res, err := f.svc.RunTurn(ctx, userTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", res.AgentID)
	assert.Equal(t, "Alpha", res.AgentName)
	assert.Equal(t, "alpha-model", res.Model)
	assert.Equal(t, "alpha-model:hi", res.Output)
	assert.Zero(t, res.HistoryLen)

	res, err = f.svc.RunTurn(ctx, userTurn("again"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.HistoryLen)

	stored, err := f.store.LoadThread(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "alpha-model:hi", "again", "alpha-model:again"}, contents(stored))
	for _, m := range stored {
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.Timestamp.IsZero())
	}

	in := f.alpha.inputs()
	require.Len(t, in, 2)
	assert.Equal(t, []string{"hi", "alpha-model:hi"}, contents(in[1].History))
}

func TestRunTurnStatelessRequestReplacesHistory(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveThread(ctx, "s1", "t1", []domain.Message{msg("user", "x"), msg("assistant", "y")}))

	req := TurnRequest{SessionID: "s1", ThreadID: "t1", Messages: []domain.Message{
		msg("user", "a"), msg("assistant", "b"), msg("user", "c"),
	}}
	res, err := f.svc.RunTurn(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, res.HistoryLen)

	stored, err := f.store.LoadThread(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "alpha-model:c"}, contents(stored))
	assert.Empty(t, f.alpha.inputs()[0].History)
}

func TestRunTurnUsesThreadSettings(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetThreadAgent(ctx, "s1", "t1", "be")
	require.NoError(t, err)
	require.NoError(t, f.store.SetSessionModel(ctx, "s1", "custom"))

	res, err := f.svc.RunTurn(ctx, userTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, "beta", res.AgentID)
	assert.Equal(t, "custom", res.Model)
	assert.Len(t, f.beta.inputs(), 1)
	assert.Empty(t, f.alpha.inputs())
}

func TestRunTurnOverridesAreNotPersisted(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	req := userTurn("hi")
	req.Agent = "beta agent"
	req.Model = "one-off"
	res, err := f.svc.RunTurn(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "beta", res.AgentID)
	assert.Equal(t, "one-off", res.Model)

	assert.Zero(t, f.store.settingsWrites.Load())
	assert.Zero(t, f.store.modelWrites.Load())
	sel, err := f.svc.ThreadAgent(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", sel.AgentID)
}

func TestRunTurnUnknownOverride(t *testing.T) {
	f := newChatFixture(t)
	req := userTurn("hi")
	req.Agent = "nobody"
	_, err := f.svc.RunTurn(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrUnknownAgent)
	assert.Zero(t, f.store.saves.Load())
}

func TestRunTurnFailurePersistsNothing(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	prior := []domain.Message{msg("user", "x"), msg("assistant", "y")}
	require.NoError(t, f.store.SaveThread(ctx, "s1", "t1", prior))
	saves := f.store.saves.Load()

	f.alpha.err = errBoom
	_, err := f.svc.RunTurn(ctx, userTurn("hi"))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, saves, f.store.saves.Load())

	stored, err := f.store.LoadThread(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, contents(prior), contents(stored))
	assert.Equal(t, []string{"alpha/UNKNOWN"}, f.rec.turns)
}

func TestRunTurnCancelledPersistsNothing(t *testing.T) {
	f := newChatFixture(t)
	f.alpha.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunTurn(ctx, userTurn("hi"))
		done <- err
	}()
	require.Eventually(t, func() bool { return len(f.alpha.inputs()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.store.saves.Load())
}

func TestRunTurnValidation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		req  TurnRequest
	}{
		{"no session", TurnRequest{ThreadID: "t", Messages: []domain.Message{msg("user", "a")}}},
		{"no thread", TurnRequest{SessionID: "s", Messages: []domain.Message{msg("user", "a")}}},
		{"no messages", TurnRequest{SessionID: "s", ThreadID: "t"}},
		{"bad role", TurnRequest{SessionID: "s", ThreadID: "t", Messages: []domain.Message{msg("robot", "a")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RunTurn(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Empty(t, f.alpha.inputs())
}

func TestRunTurnInvalidModelOverride(t *testing.T) {
	f := newChatFixture(t)
	reg := f.svc.Registry()
	p, _ := reg.Get("alpha")
	p.ValidateModel = func(m string) error {
		if m != "alpha-model" {
			return errors.New("no such model")
		}
		return nil
	}

	req := userTurn("hi")
	req.Model = "bogus"
	_, err := f.svc.RunTurn(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
	assert.Empty(t, f.alpha.inputs())
}

func TestRunTurnCreateAgentFailure(t *testing.T) {
	f := newChatFixture(t)
	p, _ := f.svc.Registry().Get("alpha")
	p.CreateAgent = func(string) (domain.Runner, error) { return nil, errBoom }

	_, err := f.svc.RunTurn(context.Background(), userTurn("hi"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, domain.CodeInvalidInput, domain.ErrorCodeOf(err))
	assert.Empty(t, f.alpha.inputs())
}

func TestRunTurnCreateAgentKeepsDomainCode(t *testing.T) {
	f := newChatFixture(t)
	p, _ := f.svc.Registry().Get("alpha")
	p.CreateAgent = func(string) (domain.Runner, error) {
		return nil, &domain.ModelValidationError{Err: errors.New(`agent "alpha" has no model configured`)}
	}

	_, err := f.svc.RunTurn(context.Background(), userTurn("hi"))
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
	assert.Equal(t, domain.CodeInvalidModel, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "has no model configured")

	msgs, err := f.store.LoadThread(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRunTurnDepsAndCompletionHook(t *testing.T) {
	f := newChatFixture(t)
	p, _ := f.svc.Registry().Get("alpha")

	var gotRC domain.RunContext
	var completed *domain.RunResult
	p.CreateDeps = func(rc domain.RunContext) (any, error) {
		gotRC = rc
		return "deps-value", nil
	}
	p.OnComplete = func(_ context.Context, _ domain.RunContext, r *domain.RunResult) { completed = r }

	_, err := f.svc.RunTurn(context.Background(), userTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, "s1", gotRC.SessionID)
	assert.Equal(t, "t1", gotRC.ThreadID)
	assert.Equal(t, "alpha-model", gotRC.Model)
	assert.Equal(t, "deps-value", f.alpha.inputs()[0].Deps)
	require.NotNil(t, completed)
	assert.Equal(t, "alpha-model:hi", completed.Output)
}

func TestRunTurnSerializesSameThread(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.alpha.block = make(chan struct{})

	var wg sync.WaitGroup
	for _, content := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RunTurn(ctx, userTurn(content))
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return len(f.alpha.inputs()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.alpha.inputs(), 1, "second turn must wait for the lock")
	close(f.alpha.block)
	wg.Wait()

	stored, err := f.store.LoadThread(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Len(t, stored, 4, "no update is lost")
	assert.Len(t, f.alpha.inputs()[1].History, 2, "second turn sees the first turn's messages")
}

func TestRunTurnDistinctThreadsRunInParallel(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.alpha.block = make(chan struct{})

	var wg sync.WaitGroup
	for _, thread := range []string{"t1", "t2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := userTurn("hi")
			req.ThreadID = thread
			_, err := f.svc.RunTurn(ctx, req)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return len(f.alpha.inputs()) == 2 }, time.Second, 5*time.Millisecond)
	close(f.alpha.block)
	wg.Wait()
}

func TestRunTurnKeepsRegistrySnapshot(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.alpha.block = make(chan struct{})

	done := make(chan *TurnResult, 1)
	go func() {
		res, err := f.svc.RunTurn(ctx, userTurn("hi"))
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return len(f.alpha.inputs()) == 1 }, time.Second, 5*time.Millisecond)

	replacement, err := NewAgentRegistry([]*domain.AgentPlugin{plugin("gamma", "Gamma", "gamma-model")}, "")
	require.NoError(t, err)
	f.handle.Swap(replacement)
	close(f.alpha.block)

	res := <-done
	assert.Equal(t, "alpha", res.AgentID, "in-flight turn finishes on the old registry")

	// Later turns resolve against the new registry.
	res, err = f.svc.RunTurn(ctx, userTurn("next"))
	require.NoError(t, err)
	assert.Equal(t, "gamma", res.AgentID)
}

func TestRunTurnRecordsMetrics(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetThreadSettings(ctx, "s1", "t1", domain.ThreadSettings{Agent: "retired"}))

	_, err := f.svc.RunTurn(ctx, userTurn("hi"))
	require.NoError(t, err)

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	assert.Equal(t, []string{"alpha/ok"}, f.rec.turns)
	assert.Equal(t, []string{"retired"}, f.rec.fallbacks)
	require.NotEmpty(t, f.rec.locks)
	assert.Equal(t, 0, f.rec.locks[len(f.rec.locks)-1])
}

func TestServiceThreadModels(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	p, _ := f.svc.Registry().Get("alpha")
	p.ListModels = func(context.Context) ([]string, error) { return nil, errBoom }

	_, _, err := f.svc.ThreadModels(ctx, "s1", "t1")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)

	_, err = f.svc.Threads().Create(ctx, "s1", "t1")
	require.NoError(t, err)
	def, models, err := f.svc.ThreadModels(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "alpha-model", def)
	assert.NotNil(t, models)
	assert.Empty(t, models)
	assert.Equal(t, []string{"alpha"}, f.rec.listFails)
}

func TestServiceSessionModelFollowsThreadAgent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	ms, err := f.svc.SessionModel(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "alpha-model", ms.Model)

	_, err = f.svc.SetThreadAgent(ctx, "s1", "t1", "beta")
	require.NoError(t, err)
	ms, err = f.svc.SessionModel(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "beta-model", ms.Model)
	assert.True(t, ms.IsDefault)

	ms, err = f.svc.SetSessionModel(ctx, "s1", "t1", "beta-large")
	require.NoError(t, err)
	assert.False(t, ms.IsDefault)
	assert.Equal(t, "beta-model", ms.DefaultModel)
}
