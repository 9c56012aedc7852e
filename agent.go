package optin

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultAcceptancePeriod is how long an entry can be confirmed when the
// agent does not set its own period.
const DefaultAcceptancePeriod = 24 * time.Hour

// Agent is a named consumer of the opt-in workflow.
type Agent struct {
	Name             string
	AcceptancePeriod time.Duration
	OptinCallback    OptinCallback
}

// HasCallback reports whether confirmations should invoke OptinCallback.
func (a Agent) HasCallback() bool {
	return a.OptinCallback != nil
}

// AgentOption customizes an agent at registration time.
type AgentOption func(*Agent)

// WithAcceptancePeriod sets how long entries stay confirmable.
// Non-positive values keep the default.
func WithAcceptancePeriod(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.AcceptancePeriod = d
		}
	}
}

// WithOptinCallback sets the action run after a successful confirmation.
func WithOptinCallback(fn OptinCallback) AgentOption {
	return func(a *Agent) {
		a.OptinCallback = fn
	}
}

// NormalizeAgentName lowercases the name and drops every character
// outside [a-z0-9_-].
func NormalizeAgentName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AgentRegistry maps normalized agent names to their configuration.
type AgentRegistry struct {
	mu            sync.RWMutex
	agents        map[string]Agent
	defaultPeriod time.Duration
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents:        map[string]Agent{},
		defaultPeriod: DefaultAcceptancePeriod,
	}
}

// SetDefaultAcceptancePeriod changes the period given to agents registered
// afterwards without an explicit WithAcceptancePeriod.
func (r *AgentRegistry) SetDefaultAcceptancePeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.defaultPeriod = d
	r.mu.Unlock()
}

// Register stores the agent, replacing any previous one with the same name.
func (r *AgentRegistry) Register(name string, opts ...AgentOption) Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent := Agent{
		Name:             NormalizeAgentName(name),
		AcceptancePeriod: r.defaultPeriod,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&agent)
		}
	}

	r.agents[agent.Name] = agent
	return agent
}

// Lookup returns the agent registered under name.
func (r *AgentRegistry) Lookup(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[NormalizeAgentName(name)]
	return agent, ok
}

// Unregister removes the agent. Entries bound to it stay pending.
func (r *AgentRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.agents, NormalizeAgentName(name))
	r.mu.Unlock()
}

// Agents returns the registered agents sorted by name.
func (r *AgentRegistry) Agents() []Agent {
	r.mu.RLock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
