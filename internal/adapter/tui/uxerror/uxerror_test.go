package uxerror

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"lattice/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"unknown agent", &domain.UnknownAgentError{Query: "x", Available: []string{"Echo"}}, "Unknown Agent"},
		{"wrapped not found", fmt.Errorf("messages: %w", domain.ErrThreadNotFound), "Thread Not Found"},
		{"exists", domain.ErrThreadExists, "Thread Exists"},
		{"unavailable", domain.ErrAgentUnavailable, "Agent Unavailable"},
		{"rate limit", domain.ErrRateLimit, "Rate Limited"},
		{"refused", errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"), "Connection Failed"},
		{"timeout", errors.New("context deadline exceeded"), "Request Timed Out"},
		{"other", errors.New("boom"), "Unexpected Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			if fe.Title != tt.title {
				t.Fatalf("Title = %q, want %q", fe.Title, tt.title)
			}
			if fe.Raw != tt.err.Error() {
				t.Fatalf("Raw = %q", fe.Raw)
			}
		})
	}
}

func TestHumanizeNil(t *testing.T) {
	if fe := Humanize(nil); fe.Title != "Unknown Error" {
		t.Fatalf("Title = %q", fe.Title)
	}
}

func TestRender(t *testing.T) {
	out := FriendlyError{Title: "T", Message: "M", Hints: []string{"h1", "h2"}}.Render()
	if !strings.HasPrefix(out, "T\nM\n") || !strings.Contains(out, "h1") || !strings.Contains(out, "h2") {
		t.Fatalf("Render = %q", out)
	}
}
