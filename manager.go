package optin

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Verification describes the outcome of presenting a token.
type Verification struct {
	Entry *Entry
	// Found is false when no pending entry owns the token, including
	// tokens that were already resolved.
	Found bool
	// AgentMissing is set when the entry's agent is not registered; the
	// entry is left pending.
	AgentMissing bool
	Expired      bool
	OptedIn      bool
}

// Manager registers agents, starts opt-in sessions and verifies tokens.
type Manager struct {
	agents       *AgentRegistry
	store        EntryStore
	tokens       TokenGenerator
	machine      EntryStateMachine
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
	config       Config
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActivitySink sets the sink used to emit session and entry events.
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithTokenGenerator overrides how entry tokens are produced.
func WithTokenGenerator(g TokenGenerator) ManagerOption {
	return func(m *Manager) {
		if g != nil {
			m.tokens = g
		}
	}
}

// WithAgentRegistry shares an existing registry with the manager.
func WithAgentRegistry(r *AgentRegistry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.agents = r
		}
	}
}

// WithConfig applies the configured default acceptance period.
func WithConfig(cfg Config) ManagerOption {
	return func(m *Manager) {
		m.config = cfg
	}
}

// NewManager returns a Manager persisting entries in store.
func NewManager(store EntryStore, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("Missing EntryStore in opt-in manager...")
	}

	m := &Manager{
		agents:       NewAgentRegistry(),
		store:        store,
		tokens:       NewTokenGenerator(),
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.config != nil {
		m.agents.SetDefaultAcceptancePeriod(m.config.GetDefaultAcceptancePeriod())
	}

	m.machine = NewEntryStateMachine(store,
		WithStateMachineClock(m.now),
		WithStateMachineActivitySink(m.activitySink),
		WithStateMachineLogger(m.logger),
	)

	return m
}

// Agents returns the registry backing the manager.
func (m *Manager) Agents() *AgentRegistry {
	return m.agents
}

// RegisterAgent stores or replaces the agent configuration.
func (m *Manager) RegisterAgent(name string, opts ...AgentOption) Agent {
	agent := m.agents.Register(name, opts...)
	m.logger.Debug("registered agent %q with acceptance period %s", agent.Name, agent.AcceptancePeriod)
	return agent
}

// LookupAgent returns the agent registered under name.
func (m *Manager) LookupAgent(name string) (Agent, bool) {
	return m.agents.Lookup(name)
}

// UnregisterAgent removes the agent. Its pending entries stay pending.
func (m *Manager) UnregisterAgent(name string) {
	m.agents.Unregister(name)
}

// StartSession creates a pending entry for the agent. The returned entry
// carries the token to embed in the confirmation link.
func (m *Manager) StartSession(ctx context.Context, agentName string, properties map[string]any) (*Entry, error) {
	agent, ok := m.agents.Lookup(agentName)
	if !ok {
		return nil, ErrAgentNotFound
	}

	token, err := m.tokens.Generate()
	if err != nil {
		return nil, richError(err, "failed to generate opt-in token")
	}

	entry := &Entry{
		AgentName:  agent.Name,
		Token:      token,
		Status:     EntryStatusPending,
		Properties: properties,
		CreatedAt:  m.now().UTC(),
	}

	created, err := m.store.Create(ctx, entry)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create opt-in entry").
			WithMetadata(map[string]any{"agent": agent.Name})
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSessionStarted,
		EntryID:   created.ID.String(),
		AgentName: created.AgentName,
		ToStatus:  created.Status,
	})

	return created, nil
}

// VerifyToken confirms the entry owning token. It returns true only when
// the entry moved to opted-in during this call.
func (m *Manager) VerifyToken(ctx context.Context, token string) (bool, error) {
	v, err := m.Verify(ctx, token)
	if v == nil {
		return false, err
	}
	return v.OptedIn, err
}

// Verify is VerifyToken with the detailed outcome.
func (m *Manager) Verify(ctx context.Context, token string) (*Verification, error) {
	result := &Verification{}

	token = strings.TrimSpace(token)
	if token == "" {
		return result, nil
	}

	entry, err := m.store.FindPendingByToken(ctx, token)
	if err != nil {
		if IsNotFound(err) {
			return result, nil
		}
		return result, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up opt-in entry")
	}

	result.Found = true
	result.Entry = entry

	agent, ok := m.agents.Lookup(entry.AgentName)
	if !ok {
		result.AgentMissing = true
		m.logger.Warn("entry %s references unregistered agent %q, leaving it pending", entry.ID, entry.AgentName)
		m.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventAgentMissing,
			EntryID:    entry.ID.String(),
			AgentName:  entry.AgentName,
			FromStatus: entry.Status,
		})
		return result, nil
	}

	if IsOutsideAcceptancePeriod(entry.CreatedAt, agent.AcceptancePeriod, m.now()) {
		applied, err := m.machine.Transition(ctx, entry, EntryStatusExpired,
			WithTransitionReason("acceptance period elapsed"),
			WithTransitionMetadata(map[string]any{
				"expires_at": entry.ExpiresAt(agent.AcceptancePeriod),
			}),
		)
		if err != nil {
			return result, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark opt-in entry as expired")
		}
		result.Found = applied
		result.Expired = applied
		return result, nil
	}

	opts := []TransitionOption{WithTransitionReason("token verified")}
	if agent.HasCallback() {
		opts = append(opts, WithAfterTransitionHook(func(ctx context.Context, _ TransitionContext) error {
			return agent.OptinCallback(ctx)
		}))
	}

	applied, err := m.machine.Transition(ctx, entry, EntryStatusOptedIn, opts...)
	if err != nil {
		if !applied {
			return result, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark opt-in entry as opted in")
		}

		result.OptedIn = true
		m.logger.Error("opt-in callback for agent %q failed: %v", agent.Name, err)
		m.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventCallbackFailed,
			EntryID:    entry.ID.String(),
			AgentName:  agent.Name,
			FromStatus: EntryStatusPending,
			ToStatus:   EntryStatusOptedIn,
			Metadata:   map[string]any{"error": err.Error()},
		})
		return result, goerrors.Wrap(err, goerrors.CategoryOperation, "opt-in callback failed").
			WithTextCode(TextCodeCallbackFailed).
			WithMetadata(map[string]any{
				"agent":    agent.Name,
				"entry_id": entry.ID.String(),
			})
	}

	result.Found = applied
	result.OptedIn = applied
	return result, nil
}

func (m *Manager) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	if err := normalizeActivitySink(m.activitySink).Record(ctx, event); err != nil {
		m.logger.Warn("activity sink error: %v", err)
	}
}
