package domain

import (
	"context"
	"time"
)

// ThreadSettings is the mutable per-thread configuration.
// A blank Agent means "use the registry default".
type ThreadSettings struct {
	Agent string `json:"agent,omitempty"`
}

// ThreadInfo summarizes a thread for listings.
type ThreadInfo struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent,omitempty"`
	Messages  int       `json:"message_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore persists per-(session, thread) settings and history plus the
// per-session model override. Session and thread ids are opaque non-empty
// strings. Writes to settings or history create the thread lazily.
type SessionStore interface {
	GetThreadSettings(ctx context.Context, sessionID, threadID string) (ThreadSettings, error)
	SetThreadSettings(ctx context.Context, sessionID, threadID string, settings ThreadSettings) error

	// GetSessionModel returns "" when no override is stored.
	GetSessionModel(ctx context.Context, sessionID string) (string, error)
	// SetSessionModel stores the override; "" clears it.
	SetSessionModel(ctx context.Context, sessionID, model string) error

	// LoadThread returns an empty slice for unknown threads.
	LoadThread(ctx context.Context, sessionID, threadID string) ([]Message, error)
	// SaveThread replaces the thread's messages in a single write.
	SaveThread(ctx context.Context, sessionID, threadID string, messages []Message) error

	// ListThreads returns thread ids in creation order.
	ListThreads(ctx context.Context, sessionID string) ([]ThreadInfo, error)
	// CreateThread returns ErrThreadExists when the thread is already present.
	CreateThread(ctx context.Context, sessionID, threadID string) error
	// DeleteThread returns ErrThreadNotFound when the thread is absent.
	DeleteThread(ctx context.Context, sessionID, threadID string) error
	ThreadExists(ctx context.Context, sessionID, threadID string) (bool, error)

	Close() error
}
