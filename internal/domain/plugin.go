package domain

import "context"

// RunContext describes the (session, thread) a plugin is running for.
type RunContext struct {
	SessionID   string
	ThreadID    string
	AgentID     string
	Model       string
	Workspace   string
	ProjectRoot string
	Incoming    []Message
}

// RunInput is handed to a Runner for one turn.
type RunInput struct {
	// Messages are the request's own messages.
	Messages []Message
	// History is the prior context chosen for this turn; empty when the
	// request already carries its own history.
	History []Message
	// Deps is whatever the plugin's CreateDeps returned, or nil.
	Deps any
}

// RunResult is what a Runner produced for one turn.
type RunResult struct {
	NewMessages []Message
	Output      string
}

// Runner performs inference for a single agent/model pair.
type Runner interface {
	Run(ctx context.Context, in RunInput) (*RunResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, in RunInput) (*RunResult, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	return f(ctx, in)
}

// AgentPlugin is an immutable descriptor of an agent backend.
// CreateAgent is required; the remaining capability funcs are optional and
// are only invoked when non-nil.
type AgentPlugin struct {
	ID           string
	Name         string
	DefaultModel string

	CreateAgent   func(model string) (Runner, error)
	CreateDeps    func(rc RunContext) (any, error)
	ListModels    func(ctx context.Context) ([]string, error)
	ValidateModel func(model string) error
	OnComplete    func(ctx context.Context, rc RunContext, result *RunResult)
}

// DisplayName returns Name, or ID when Name is blank.
func (p *AgentPlugin) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
