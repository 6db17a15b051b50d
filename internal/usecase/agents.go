package usecase

import (
	"context"
	"strings"

	"lattice/internal/domain"
)

// AgentSelection is the agent a thread resolves to.
type AgentSelection struct {
	AgentID      string
	AgentName    string
	Plugin       *domain.AgentPlugin
	DefaultAgent string
	IsDefault    bool
	// StaleAgent is the stored id that no longer resolved, if any.
	StaleAgent string
}

func newSelection(reg *AgentRegistry, id string) AgentSelection {
	p, _ := reg.Get(id)
	return AgentSelection{
		AgentID:      id,
		AgentName:    p.DisplayName(),
		Plugin:       p,
		DefaultAgent: reg.DefaultAgent(),
		IsDefault:    id == reg.DefaultAgent(),
	}
}

// SelectAgentForThread resolves the thread's stored agent by exact id. An
// unset agent, or one that is no longer registered, yields the registry
// default; only a store failure is returned as an error.
func SelectAgentForThread(ctx context.Context, store domain.SessionStore, reg *AgentRegistry, sessionID, threadID string) (AgentSelection, error) {
	settings, err := store.GetThreadSettings(ctx, sessionID, threadID)
	if err != nil {
		return AgentSelection{}, domain.WrapOp("select agent", err)
	}
	stored := strings.TrimSpace(settings.Agent)
	if stored == "" {
		return newSelection(reg, reg.DefaultAgent()), nil
	}
	if id, ok := reg.ResolveID(stored, false); ok {
		return newSelection(reg, id), nil
	}
	sel := newSelection(reg, reg.DefaultAgent())
	sel.StaleAgent = stored
	return sel, nil
}

// ResolveRequestedAgent fuzzily resolves a client-supplied agent name or id.
func ResolveRequestedAgent(reg *AgentRegistry, requested string) (AgentSelection, error) {
	id, ok := reg.ResolveID(requested, true)
	if !ok {
		return AgentSelection{}, &domain.UnknownAgentError{Query: strings.TrimSpace(requested), Available: reg.DisplayNames()}
	}
	return newSelection(reg, id), nil
}

// SetThreadAgent stores the thread's agent. A blank request clears the stored
// agent. Otherwise the request is resolved fuzzily and the resolved id, not
// the raw query, is persisted. An unknown or ambiguous request returns
// *domain.UnknownAgentError and writes nothing.
func SetThreadAgent(ctx context.Context, store domain.SessionStore, reg *AgentRegistry, sessionID, threadID, requested string) (AgentSelection, error) {
	if strings.TrimSpace(requested) == "" {
		if err := store.SetThreadSettings(ctx, sessionID, threadID, domain.ThreadSettings{}); err != nil {
			return AgentSelection{}, domain.WrapOp("clear agent", err)
		}
		return newSelection(reg, reg.DefaultAgent()), nil
	}

	sel, err := ResolveRequestedAgent(reg, requested)
	if err != nil {
		return AgentSelection{}, err
	}
	if err := store.SetThreadSettings(ctx, sessionID, threadID, domain.ThreadSettings{Agent: sel.AgentID}); err != nil {
		return AgentSelection{}, domain.WrapOp("set agent", err)
	}
	return sel, nil
}
