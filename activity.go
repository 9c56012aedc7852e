package optin

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionStarted ActivityEventType = "optin.session.started"
	ActivityEventEntryOptedIn   ActivityEventType = "optin.entry.opted_in"
	ActivityEventEntryExpired   ActivityEventType = "optin.entry.expired"
	ActivityEventAgentMissing   ActivityEventType = "optin.agent.missing"
	ActivityEventCallbackFailed ActivityEventType = "optin.callback.failed"
)

// ActivityEvent captures audit-friendly information about an entry.
type ActivityEvent struct {
	EventType  ActivityEventType
	EntryID    string
	AgentName  string
	FromStatus EntryStatus
	ToStatus   EntryStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink, returning the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
