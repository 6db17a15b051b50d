package usecase

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"lattice/internal/domain"
)

// AgentRegistry is an immutable, ordered catalog of agent plugins.
// Reloading builds a new registry and swaps it through a RegistryHandle.
type AgentRegistry struct {
	order        []string
	agents       map[string]*domain.AgentPlugin
	defaultAgent string
}

// NewAgentRegistry validates plugins and picks the default agent.
// A blank defaultAgent selects the first plugin; a non-blank one is resolved
// with fuzzy matching and must match exactly one plugin.
func NewAgentRegistry(plugins []*domain.AgentPlugin, defaultAgent string) (*AgentRegistry, error) {
	if len(plugins) == 0 {
		return nil, domain.NewDomainError("AgentRegistry.New", domain.ErrNoAgents, "")
	}
	r := &AgentRegistry{agents: make(map[string]*domain.AgentPlugin, len(plugins))}
	for i, p := range plugins {
		if p == nil || strings.TrimSpace(p.ID) == "" {
			return nil, domain.NewDomainError("AgentRegistry.New", domain.ErrInvalidInput, fmt.Sprintf("plugin %d has no id", i))
		}
		if p.CreateAgent == nil {
			return nil, domain.NewDomainError("AgentRegistry.New", domain.ErrInvalidInput, fmt.Sprintf("plugin %q has no CreateAgent", p.ID))
		}
		if _, dup := r.agents[p.ID]; dup {
			return nil, domain.NewDomainError("AgentRegistry.New", domain.ErrDuplicate, fmt.Sprintf("plugin %q", p.ID))
		}
		r.agents[p.ID] = p
		r.order = append(r.order, p.ID)
	}

	if strings.TrimSpace(defaultAgent) == "" {
		r.defaultAgent = r.order[0]
		return r, nil
	}
	id, ok := r.ResolveID(defaultAgent, true)
	if !ok {
		return nil, &domain.UnknownAgentError{Query: defaultAgent, Available: r.DisplayNames()}
	}
	r.defaultAgent = id
	return r, nil
}

// DefaultAgent returns the id of the default agent.
func (r *AgentRegistry) DefaultAgent() string { return r.defaultAgent }

// Get returns the plugin registered under id.
func (r *AgentRegistry) Get(id string) (*domain.AgentPlugin, bool) {
	p, ok := r.agents[id]
	return p, ok
}

// Default returns the default plugin.
func (r *AgentRegistry) Default() *domain.AgentPlugin { return r.agents[r.defaultAgent] }

// Agents returns the plugins in registration order.
func (r *AgentRegistry) Agents() []*domain.AgentPlugin {
	out := make([]*domain.AgentPlugin, len(r.order))
	for i, id := range r.order {
		out[i] = r.agents[id]
	}
	return out
}

// Len returns the number of registered plugins.
func (r *AgentRegistry) Len() int { return len(r.order) }

// DisplayNames returns the sorted, distinct display names.
func (r *AgentRegistry) DisplayNames() []string {
	seen := make(map[string]bool, len(r.order))
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		name := r.agents[id].DisplayName()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ResolveID maps query to a registered id.
//
// The trimmed query first matches ids exactly. With allowFuzzy it then tries
// a case-insensitive equality on id or name, then a case-insensitive
// substring of id or name. Each fuzzy stage accepts only a single candidate;
// several candidates mean no match, never a silent tie-break.
func (r *AgentRegistry) ResolveID(query string, allowFuzzy bool) (string, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", false
	}
	if _, ok := r.agents[q]; ok {
		return q, true
	}
	if !allowFuzzy {
		return "", false
	}

	needle := strings.ToLower(q)
	if id, n := r.match(func(id, name string) bool { return id == needle || name == needle }); n > 0 {
		return id, n == 1
	}
	id, n := r.match(func(id, name string) bool {
		return strings.Contains(id, needle) || strings.Contains(name, needle)
	})
	return id, n == 1
}

// match returns the first matching id and the number of matches. pred
// receives lowercased id and name.
func (r *AgentRegistry) match(pred func(id, name string) bool) (string, int) {
	var first string
	n := 0
	for _, id := range r.order {
		if pred(strings.ToLower(id), strings.ToLower(r.agents[id].Name)) {
			if n == 0 {
				first = id
			}
			n++
		}
	}
	if n != 1 {
		first = ""
	}
	return first, n
}

// RegistryHandle holds the live registry. Loads are lock-free snapshots and
// Swap replaces the whole registry at once.
type RegistryHandle struct {
	p atomic.Pointer[AgentRegistry]
}

// NewRegistryHandle returns a handle serving reg.
func NewRegistryHandle(reg *AgentRegistry) *RegistryHandle {
	h := &RegistryHandle{}
	h.p.Store(reg)
	return h
}

// Load returns the current registry snapshot.
func (h *RegistryHandle) Load() *AgentRegistry { return h.p.Load() }

// Swap installs reg and returns the previous registry.
func (h *RegistryHandle) Swap(reg *AgentRegistry) *AgentRegistry { return h.p.Swap(reg) }
