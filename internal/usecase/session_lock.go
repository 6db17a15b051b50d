package usecase

import (
	"context"
	"fmt"
	"sync"
)

// ThreadLocker serializes work on a single (session, thread) pair. Distinct
// pairs, including two threads of one session, never contend.
type ThreadLocker struct {
	mu       sync.Mutex
	locks    map[threadKey]*threadMutex
	onChange func(active int)
}

type threadKey struct {
	session string
	thread  string
}

// threadMutex is a one-slot semaphore so waiters can also select on ctx.
type threadMutex struct {
	sem      chan struct{}
	refCount int
}

// NewThreadLocker creates a new thread locker.
func NewThreadLocker() *ThreadLocker {
	return &ThreadLocker{locks: make(map[threadKey]*threadMutex)}
}

// OnChange registers fn to be called with ActiveCount after every change.
// It must be set before the locker is shared.
func (tl *ThreadLocker) OnChange(fn func(active int)) {
	tl.onChange = fn
}

// Lock acquires the lock for (sessionID, threadID). It blocks until the lock
// is acquired or ctx is done. The returned unlock func MUST be called exactly
// once when the operation is complete.
func (tl *ThreadLocker) Lock(ctx context.Context, sessionID, threadID string) (unlock func(), err error) {
	key := threadKey{session: sessionID, thread: threadID}

	tl.mu.Lock()
	tm, ok := tl.locks[key]
	if !ok {
		tm = &threadMutex{sem: make(chan struct{}, 1)}
		tl.locks[key] = tm
	}
	tm.refCount++
	active := len(tl.locks)
	tl.mu.Unlock()
	tl.notify(active)

	select {
	case tm.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-tm.sem
				tl.release(key, tm)
			})
		}, nil
	case <-ctx.Done():
		tl.release(key, tm)
		return nil, fmt.Errorf("thread lock %s/%s: %w", sessionID, threadID, ctx.Err())
	}
}

func (tl *ThreadLocker) release(key threadKey, tm *threadMutex) {
	tl.mu.Lock()
	tm.refCount--
	if tm.refCount == 0 {
		delete(tl.locks, key)
	}
	active := len(tl.locks)
	tl.mu.Unlock()
	tl.notify(active)
}

func (tl *ThreadLocker) notify(active int) {
	if tl.onChange != nil {
		tl.onChange(active)
	}
}

// ActiveCount returns the number of threads with held or pending locks.
func (tl *ThreadLocker) ActiveCount() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.locks)
}
