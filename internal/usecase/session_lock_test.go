package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadLockerBasic(t *testing.T) {
	tl := NewThreadLocker()

	unlock, err := tl.Lock(context.Background(), "s1", "t1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if tl.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", tl.ActiveCount())
	}

	unlock()
	unlock() // second call is a no-op

	if tl.ActiveCount() != 0 {
		t.Errorf("ActiveCount after unlock = %d, want 0", tl.ActiveCount())
	}
}

func TestThreadLockerSameThreadSerializes(t *testing.T) {
	tl := NewThreadLocker()

	unlock1, err := tl.Lock(context.Background(), "s1", "t1")
	require.NoError(t, err)

	order := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock2, err := tl.Lock(context.Background(), "s1", "t1")
		if err != nil {
			t.Errorf("Lock2: %v", err)
			return
		}
		order <- 2
		unlock2()
	}()

	// Give the second goroutine time to block.
	time.Sleep(50 * time.Millisecond)
	order <- 1
	unlock1()

	wg.Wait()
	close(order)

	var vals []int
	for v := range order {
		vals = append(vals, v)
	}
	assert.Equal(t, []int{1, 2}, vals)
}

func TestThreadLockerDistinctThreadsDoNotBlock(t *testing.T) {
	tl := NewThreadLocker()

	unlockA, err := tl.Lock(context.Background(), "s1", "t1")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Same session, other thread.
	unlockB, err := tl.Lock(ctx, "s1", "t2")
	require.NoError(t, err)
	defer unlockB()

	// Same thread id, other session.
	unlockC, err := tl.Lock(ctx, "s2", "t1")
	require.NoError(t, err)
	defer unlockC()

	assert.Equal(t, 3, tl.ActiveCount())
}

func TestThreadLockerKeyDoesNotCollide(t *testing.T) {
	tl := NewThreadLocker()

	unlock, err := tl.Lock(context.Background(), "a", "b:c")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := tl.Lock(ctx, "a:b", "c")
	require.NoError(t, err)
	unlock2()
}

func TestThreadLockerContextCancel(t *testing.T) {
	tl := NewThreadLocker()

	unlock1, err := tl.Lock(context.Background(), "s1", "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = tl.Lock(ctx, "s1", "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock1()
	assert.Equal(t, 0, tl.ActiveCount())

	// The thread is usable again after the cancelled waiter left.
	unlock3, err := tl.Lock(context.Background(), "s1", "t1")
	require.NoError(t, err)
	unlock3()
}

func TestThreadLockerOnChange(t *testing.T) {
	tl := NewThreadLocker()
	var mu sync.Mutex
	var seen []int
	tl.OnChange(func(n int) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	unlock, err := tl.Lock(context.Background(), "s", "t")
	require.NoError(t, err)
	unlock()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, seen)
}
