package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/domain"
)

func TestThreadServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	svc := NewThreadService(st, nil)

	id, err := svc.Create(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	generated, err := svc.Create(ctx, "s1", "  ")
	require.NoError(t, err)
	assert.Len(t, generated, 26)
	assert.NotEqual(t, "t1", generated)

	_, err = svc.Create(ctx, "s1", "t1")
	assert.ErrorIs(t, err, domain.ErrThreadExists)

	ids, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", generated}, ids)

	require.NoError(t, svc.Delete(ctx, "s1", "t1"))
	assert.ErrorIs(t, svc.Delete(ctx, "s1", "t1"), domain.ErrThreadNotFound)

	ids, err = svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{generated}, ids)
}

func TestThreadServiceClearKeepsSettings(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	svc := NewThreadService(st, nil)

	_, err := svc.Create(ctx, "s1", "t1")
	require.NoError(t, err)
	require.NoError(t, st.SetThreadSettings(ctx, "s1", "t1", domain.ThreadSettings{Agent: "beta"}))
	require.NoError(t, st.SaveThread(ctx, "s1", "t1", []domain.Message{msg("user", "hi")}))

	require.NoError(t, svc.Clear(ctx, "s1", "t1"))

	msgs, err := svc.Messages(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	settings, err := st.GetThreadSettings(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "beta", settings.Agent)
}

func TestThreadServiceMissingThread(t *testing.T) {
	ctx := context.Background()
	svc := NewThreadService(newRecordingStore(), nil)

	assert.ErrorIs(t, svc.Clear(ctx, "s1", "nope"), domain.ErrThreadNotFound)
	_, err := svc.Messages(ctx, "s1", "nope")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestThreadServiceRequiresIDs(t *testing.T) {
	ctx := context.Background()
	svc := NewThreadService(newRecordingStore(), nil)

	_, err := svc.Create(ctx, "", "t1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.List(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.RequireThread(ctx, "s1", ""), domain.ErrInvalidInput)
}

func TestThreadServiceSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := NewThreadService(newRecordingStore(), nil)
	_, err := svc.Create(ctx, "s1", "t1")
	require.NoError(t, err)

	// The same thread id in another session is a different thread.
	_, err = svc.Create(ctx, "s2", "t1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "s2", "t1"))

	ids, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)
}

func TestThreadServiceClearWaitsForLock(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore()
	locker := NewThreadLocker()
	svc := NewThreadService(st, locker)
	_, err := svc.Create(ctx, "s1", "t1")
	require.NoError(t, err)

	unlock, err := locker.Lock(ctx, "s1", "t1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Clear(ctx, "s1", "t1") }()

	select {
	case <-done:
		t.Fatal("clear ran while the thread was locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	require.NoError(t, <-done)
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id], id)
		seen[id] = true
	}
}
