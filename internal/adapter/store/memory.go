package store

import (
	"context"
	"sync"
	"time"

	"lattice/internal/domain"
)

// MemoryStore is an in-process domain.SessionStore. Reads return copies.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	models   map[string]string
}

type memSession struct {
	order   []string
	threads map[string]*memThread
}

type memThread struct {
	settings  domain.ThreadSettings
	messages  []domain.Message
	createdAt time.Time
	updatedAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		models:   make(map[string]string),
	}
}

func (s *MemoryStore) thread(sessionID, threadID string, create bool) *memThread {
	sess, ok := s.sessions[sessionID]
	if !ok {
		if !create {
			return nil
		}
		sess = &memSession{threads: make(map[string]*memThread)}
		s.sessions[sessionID] = sess
	}
	th, ok := sess.threads[threadID]
	if !ok && create {
		now := time.Now().UTC()
		th = &memThread{createdAt: now, updatedAt: now}
		sess.threads[threadID] = th
		sess.order = append(sess.order, threadID)
	}
	return th
}

func (s *MemoryStore) GetThreadSettings(_ context.Context, sessionID, threadID string) (domain.ThreadSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if th := s.thread(sessionID, threadID, false); th != nil {
		return th.settings, nil
	}
	return domain.ThreadSettings{}, nil
}

func (s *MemoryStore) SetThreadSettings(_ context.Context, sessionID, threadID string, settings domain.ThreadSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.thread(sessionID, threadID, true)
	th.settings = settings
	th.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetSessionModel(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models[sessionID], nil
}

func (s *MemoryStore) SetSessionModel(_ context.Context, sessionID, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == "" {
		delete(s.models, sessionID)
		return nil
	}
	s.models[sessionID] = model
	return nil
}

func (s *MemoryStore) LoadThread(_ context.Context, sessionID, threadID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if th := s.thread(sessionID, threadID, false); th != nil {
		return domain.CloneMessages(th.messages), nil
	}
	return []domain.Message{}, nil
}

func (s *MemoryStore) SaveThread(_ context.Context, sessionID, threadID string, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.thread(sessionID, threadID, true)
	th.messages = domain.CloneMessages(messages)
	th.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListThreads(_ context.Context, sessionID string) ([]domain.ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return []domain.ThreadInfo{}, nil
	}
	out := make([]domain.ThreadInfo, 0, len(sess.order))
	for _, id := range sess.order {
		th := sess.threads[id]
		out = append(out, domain.ThreadInfo{
			ID:        id,
			Agent:     th.settings.Agent,
			Messages:  len(th.messages),
			CreatedAt: th.createdAt,
			UpdatedAt: th.updatedAt,
		})
	}
	return out, nil
}

func (s *MemoryStore) CreateThread(_ context.Context, sessionID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread(sessionID, threadID, false) != nil {
		return domain.ErrThreadExists
	}
	s.thread(sessionID, threadID, true)
	return nil
}

func (s *MemoryStore) DeleteThread(_ context.Context, sessionID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrThreadNotFound
	}
	if _, ok := sess.threads[threadID]; !ok {
		return domain.ErrThreadNotFound
	}
	delete(sess.threads, threadID)
	for i, id := range sess.order {
		if id == threadID {
			sess.order = append(sess.order[:i:i], sess.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ThreadExists(_ context.Context, sessionID, threadID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thread(sessionID, threadID, false) != nil, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ domain.SessionStore = (*MemoryStore)(nil)
