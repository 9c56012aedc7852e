package optin

import (
	"context"
	"time"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Entry *Entry
	From  EntryStatus
	To    EntryStatus
	At    time.Time
	Meta  TransitionMetadata
}

// TransitionHook is executed after a transition is persisted.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// EntryStateMachine moves entries out of pending exactly once.
type EntryStateMachine interface {
	// Transition persists the move to target. It reports false when another
	// caller resolved the entry first, in which case no hook runs.
	Transition(ctx context.Context, entry *Entry, target EntryStatus, opts ...TransitionOption) (bool, error)
	CanTransition(from, to EntryStatus) bool
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*entryStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *entryStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *entryStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *entryStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewEntryStateMachine returns the default implementation backed by store.
func NewEntryStateMachine(store EntryStore, opts ...StateMachineOption) EntryStateMachine {
	sm := &entryStateMachine{
		store: store,
		transitions: map[EntryStatus]map[EntryStatus]struct{}{
			EntryStatusPending: {
				EntryStatusOptedIn: {},
				EntryStatusExpired: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type entryStateMachine struct {
	store        EntryStore
	transitions  map[EntryStatus]map[EntryStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata   TransitionMetadata
	afterHooks []TransitionHook
}

func (sm *entryStateMachine) Transition(ctx context.Context, entry *Entry, target EntryStatus, opts ...TransitionOption) (bool, error) {
	if entry == nil || target == "" {
		return false, ErrInvalidTransition
	}

	entry.EnsureStatus()
	from := entry.Status

	if from.IsTerminal() {
		return false, ErrTerminalState
	}

	if !sm.CanTransition(from, target) {
		return false, ErrInvalidTransition
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	at := sm.now()
	applied, err := sm.store.UpdateStatus(ctx, entry.ID, from, target, at)
	if err != nil {
		return false, err
	}
	if !applied {
		sm.logger.Debug("entry %s already left %s, skipping transition to %s", entry.ID, from, target)
		return false, nil
	}

	entry.Status = target
	entry.ResolvedAt = &at

	tc := TransitionContext{
		Entry: entry,
		From:  from,
		To:    target,
		At:    at,
		Meta:  options.metadata,
	}

	sm.recordActivity(ctx, tc)

	for _, hook := range options.afterHooks {
		if err := hook(ctx, tc); err != nil {
			return true, err
		}
	}

	return true, nil
}

func (sm *entryStateMachine) CanTransition(from, to EntryStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *entryStateMachine) recordActivity(ctx context.Context, tc TransitionContext) {
	eventType := ActivityEventEntryOptedIn
	if tc.To == EntryStatusExpired {
		eventType = ActivityEventEntryExpired
	}

	var metadata map[string]any
	if tc.Meta.Reason != "" || len(tc.Meta.Metadata) > 0 {
		metadata = map[string]any{}
		if tc.Meta.Reason != "" {
			metadata["reason"] = tc.Meta.Reason
		}
		for k, v := range tc.Meta.Metadata {
			metadata[k] = v
		}
	}

	event := ActivityEvent{
		EventType:  eventType,
		EntryID:    tc.Entry.ID.String(),
		AgentName:  tc.Entry.AgentName,
		FromStatus: tc.From,
		ToStatus:   tc.To,
		Metadata:   metadata,
		OccurredAt: tc.At,
	}

	if err := normalizeActivitySink(sm.activitySink).Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}
