package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"lattice/internal/domain"
)

// NewID returns a lowercase ULID, sortable by creation time.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

// ThreadService implements thread lifecycle operations on top of a store.
// Clear and Delete take the thread lock so they cannot interleave with a turn.
type ThreadService struct {
	store  domain.SessionStore
	locker *ThreadLocker
}

// NewThreadService creates a ThreadService. A nil locker gets a private one.
func NewThreadService(store domain.SessionStore, locker *ThreadLocker) *ThreadService {
	if locker == nil {
		locker = NewThreadLocker()
	}
	return &ThreadService{store: store, locker: locker}
}

// Create creates an empty thread. A blank threadID generates one.
// It returns the thread id, or domain.ErrThreadExists.
func (s *ThreadService) Create(ctx context.Context, sessionID, threadID string) (string, error) {
	if err := requireID("session", sessionID); err != nil {
		return "", err
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		threadID = NewID()
	}
	if err := s.store.CreateThread(ctx, sessionID, threadID); err != nil {
		return "", domain.NewDomainError("ThreadService.Create", err, threadID)
	}
	return threadID, nil
}

// List returns the session's thread ids in creation order.
func (s *ThreadService) List(ctx context.Context, sessionID string) ([]string, error) {
	infos, err := s.ListInfo(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids, nil
}

// ListInfo returns thread summaries in creation order.
func (s *ThreadService) ListInfo(ctx context.Context, sessionID string) ([]domain.ThreadInfo, error) {
	if err := requireID("session", sessionID); err != nil {
		return nil, err
	}
	infos, err := s.store.ListThreads(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapOp("list threads", err)
	}
	return infos, nil
}

// Delete removes the thread's settings and history.
func (s *ThreadService) Delete(ctx context.Context, sessionID, threadID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID, threadID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.DeleteThread(ctx, sessionID, threadID); err != nil {
		return domain.NewDomainError("ThreadService.Delete", err, threadID)
	}
	return nil
}

// Clear empties the thread's history and keeps its settings.
func (s *ThreadService) Clear(ctx context.Context, sessionID, threadID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID, threadID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.RequireThread(ctx, sessionID, threadID); err != nil {
		return err
	}
	if err := s.store.SaveThread(ctx, sessionID, threadID, []domain.Message{}); err != nil {
		return domain.WrapOp("clear thread", err)
	}
	return nil
}

// RequireThread returns domain.ErrThreadNotFound unless the thread exists.
func (s *ThreadService) RequireThread(ctx context.Context, sessionID, threadID string) error {
	if err := requireID("session", sessionID); err != nil {
		return err
	}
	if err := requireID("thread", threadID); err != nil {
		return err
	}
	ok, err := s.store.ThreadExists(ctx, sessionID, threadID)
	if err != nil {
		return domain.WrapOp("require thread", err)
	}
	if !ok {
		return domain.NewDomainError("ThreadService.RequireThread", domain.ErrThreadNotFound, threadID)
	}
	return nil
}

// Messages returns the stored history of an existing thread.
func (s *ThreadService) Messages(ctx context.Context, sessionID, threadID string) ([]domain.Message, error) {
	if err := s.RequireThread(ctx, sessionID, threadID); err != nil {
		return nil, err
	}
	msgs, err := s.store.LoadThread(ctx, sessionID, threadID)
	if err != nil {
		return nil, domain.WrapOp("load messages", err)
	}
	return msgs, nil
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewDomainError("ThreadService", domain.ErrInvalidInput, fmt.Sprintf("%s id is required", kind))
	}
	return nil
}
