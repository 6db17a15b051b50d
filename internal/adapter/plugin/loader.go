package plugin

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"lattice/internal/domain"
	"lattice/internal/infra/config"
	"lattice/internal/usecase"
)

// Agent backend types.
const (
	TypeEcho   = "echo"
	TypeOpenAI = "openai"
)

// Build creates the plugin for one definition.
func Build(def config.AgentDefinition, cb config.CircuitBreakerConfig, log *slog.Logger) (*domain.AgentPlugin, error) {
	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case "", TypeEcho:
		return NewEcho(def), nil
	case TypeOpenAI:
		return NewOpenAIAgent(def, cb, log).Plugin(), nil
	default:
		return nil, fmt.Errorf("%w: agent %q has unknown type %q", domain.ErrInvalidInput, def.ID, def.Type)
	}
}

// BuildRegistry builds a registry from cfg. A non-empty Enabled list keeps
// only those definitions, in the listed order; an enabled id with no
// definition is an error. The default agent is resolved by the registry.
func BuildRegistry(cfg config.AgentsConfig, log *slog.Logger) (*usecase.AgentRegistry, error) {
	defs, err := enabledDefinitions(cfg)
	if err != nil {
		return nil, err
	}
	plugins := make([]*domain.AgentPlugin, 0, len(defs))
	for _, def := range defs {
		p, err := Build(def, cfg.CircuitBreaker, log)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	reg, err := usecase.NewAgentRegistry(plugins, cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("build agent registry: %w", err)
	}
	log.Info("agent registry built", "agents", reg.Len(), "default", reg.DefaultAgent())
	return reg, nil
}

func enabledDefinitions(cfg config.AgentsConfig) ([]config.AgentDefinition, error) {
	var enabled []string
	for _, id := range cfg.Enabled {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(enabled, id) {
			enabled = append(enabled, id)
		}
	}
	if len(enabled) == 0 {
		return cfg.Definitions, nil
	}

	out := make([]config.AgentDefinition, 0, len(enabled))
	for _, id := range enabled {
		i := slices.IndexFunc(cfg.Definitions, func(d config.AgentDefinition) bool { return d.ID == id })
		if i < 0 {
			ids := make([]string, len(cfg.Definitions))
			for j, d := range cfg.Definitions {
				ids[j] = d.ID
			}
			return nil, &domain.UnknownAgentError{Query: id, Available: ids}
		}
		out = append(out, cfg.Definitions[i])
	}
	return out, nil
}
