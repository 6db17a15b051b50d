package plugin

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"lattice/internal/domain"
	"lattice/internal/infra/config"
)

// NewEcho builds an agent that answers every turn with the last user
// message. It has no backend and is the default when nothing is configured.
func NewEcho(def config.AgentDefinition) *domain.AgentPlugin {
	models := slices.Clone(def.Models)
	p := &domain.AgentPlugin{
		ID:           def.ID,
		Name:         def.Name,
		DefaultModel: def.DefaultModel,
		CreateAgent: func(model string) (domain.Runner, error) {
			return domain.RunnerFunc(func(ctx context.Context, in domain.RunInput) (*domain.RunResult, error) {
				return echoReply(model, in), nil
			}), nil
		},
	}
	if len(models) > 0 {
		p.ListModels = func(context.Context) ([]string, error) { return slices.Clone(models), nil }
		p.ValidateModel = staticValidator(def.ID, models)
	}
	return p
}

func echoReply(model string, in domain.RunInput) *domain.RunResult {
	var last string
	for i := len(in.Messages) - 1; i >= 0; i-- {
		if in.Messages[i].Role == domain.RoleUser {
			last = in.Messages[i].Content
			break
		}
	}
	if model != "" {
		last = fmt.Sprintf("[%s] %s", model, last)
	}
	reply := domain.Message{Role: domain.RoleAssistant, Content: last}
	return &domain.RunResult{NewMessages: []domain.Message{reply}, Output: last}
}

// staticValidator accepts only models in the configured list.
func staticValidator(agentID string, models []string) func(string) error {
	return func(model string) error {
		if slices.Contains(models, strings.TrimSpace(model)) {
			return nil
		}
		return fmt.Errorf("model %q is not available for agent %q (available: %s)",
			model, agentID, strings.Join(models, ", "))
	}
}
