package optin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	optin "github.com/goliatone/go-optin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEntryStateMachineTransitionToOptedInSetsTimestamp(t *testing.T) {
	store := &MockEntryStore{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := &optin.Entry{
		ID:        uuid.New(),
		AgentName: "newsletter",
		Status:    optin.EntryStatusPending,
	}

	store.On("UpdateStatus", mock.Anything, entry.ID, optin.EntryStatusPending, optin.EntryStatusOptedIn, now).
		Return(true, nil).Once()

	sm := optin.NewEntryStateMachine(store, optin.WithStateMachineClock(func() time.Time { return now }))

	applied, err := sm.Transition(context.Background(), entry, optin.EntryStatusOptedIn)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, optin.EntryStatusOptedIn, entry.Status)
	require.NotNil(t, entry.ResolvedAt)
	assert.Equal(t, now, *entry.ResolvedAt)
	store.AssertExpectations(t)
}

func TestEntryStateMachineRejectsTerminalEntries(t *testing.T) {
	for _, status := range []optin.EntryStatus{optin.EntryStatusOptedIn, optin.EntryStatusExpired} {
		store := &MockEntryStore{}
		entry := &optin.Entry{ID: uuid.New(), Status: status}

		sm := optin.NewEntryStateMachine(store)

		applied, err := sm.Transition(context.Background(), entry, optin.EntryStatusOptedIn)
		require.Error(t, err)
		assert.False(t, applied)
		assert.ErrorIs(t, err, optin.ErrTerminalState)
		store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestEntryStateMachineRejectsInvalidTransition(t *testing.T) {
	store := &MockEntryStore{}
	entry := &optin.Entry{ID: uuid.New(), Status: optin.EntryStatusPending}

	sm := optin.NewEntryStateMachine(store)

	_, err := sm.Transition(context.Background(), entry, optin.EntryStatusPending)
	require.Error(t, err)
	assert.ErrorIs(t, err, optin.ErrInvalidTransition)

	_, err = sm.Transition(context.Background(), nil, optin.EntryStatusOptedIn)
	assert.ErrorIs(t, err, optin.ErrInvalidTransition)

	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEntryStateMachineCanTransition(t *testing.T) {
	sm := optin.NewEntryStateMachine(&MockEntryStore{})

	assert.True(t, sm.CanTransition(optin.EntryStatusPending, optin.EntryStatusOptedIn))
	assert.True(t, sm.CanTransition(optin.EntryStatusPending, optin.EntryStatusExpired))
	assert.False(t, sm.CanTransition(optin.EntryStatusOptedIn, optin.EntryStatusExpired))
	assert.False(t, sm.CanTransition(optin.EntryStatusExpired, optin.EntryStatusOptedIn))
	assert.False(t, sm.CanTransition(optin.EntryStatusPending, optin.EntryStatusPending))
}

func TestEntryStateMachineLostRaceSkipsHooks(t *testing.T) {
	store := &MockEntryStore{}
	entry := &optin.Entry{ID: uuid.New(), Status: optin.EntryStatusPending}
	sink := &recordingSink{}

	store.On("UpdateStatus", mock.Anything, entry.ID, optin.EntryStatusPending, optin.EntryStatusOptedIn, mock.Anything).
		Return(false, nil).Once()

	sm := optin.NewEntryStateMachine(store, optin.WithStateMachineActivitySink(sink))

	hookCalled := false
	applied, err := sm.Transition(context.Background(), entry, optin.EntryStatusOptedIn,
		optin.WithAfterTransitionHook(func(context.Context, optin.TransitionContext) error {
			hookCalled = true
			return nil
		}),
	)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, hookCalled)
	assert.Equal(t, optin.EntryStatusPending, entry.Status)
	assert.Empty(t, sink.Types())
	store.AssertExpectations(t)
}

func TestEntryStateMachineRecordsActivityAndRunsHooks(t *testing.T) {
	store := &MockEntryStore{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := &optin.Entry{ID: uuid.New(), AgentName: "slowflow", Status: optin.EntryStatusPending}
	sink := &recordingSink{}

	store.On("UpdateStatus", mock.Anything, entry.ID, optin.EntryStatusPending, optin.EntryStatusExpired, now).
		Return(true, nil).Once()

	sm := optin.NewEntryStateMachine(store,
		optin.WithStateMachineClock(func() time.Time { return now }),
		optin.WithStateMachineActivitySink(sink),
	)

	var seen optin.TransitionContext
	applied, err := sm.Transition(context.Background(), entry, optin.EntryStatusExpired,
		optin.WithTransitionReason("acceptance period elapsed"),
		optin.WithTransitionMetadata(map[string]any{"source": "test"}),
		optin.WithAfterTransitionHook(func(_ context.Context, tc optin.TransitionContext) error {
			seen = tc
			return nil
		}),
	)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, optin.EntryStatusPending, seen.From)
	assert.Equal(t, optin.EntryStatusExpired, seen.To)
	assert.Equal(t, "acceptance period elapsed", seen.Meta.Reason)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, optin.ActivityEventEntryExpired, event.EventType)
	assert.Equal(t, entry.ID.String(), event.EntryID)
	assert.Equal(t, "slowflow", event.AgentName)
	assert.Equal(t, "acceptance period elapsed", event.Metadata["reason"])
	assert.Equal(t, "test", event.Metadata["source"])
	assert.Equal(t, now, event.OccurredAt)
}

func TestEntryStateMachineHookErrorKeepsTransition(t *testing.T) {
	store := &MockEntryStore{}
	entry := &optin.Entry{ID: uuid.New(), Status: optin.EntryStatusPending}
	hookErr := errors.New("hook failed")

	store.On("UpdateStatus", mock.Anything, entry.ID, optin.EntryStatusPending, optin.EntryStatusOptedIn, mock.Anything).
		Return(true, nil).Once()

	sm := optin.NewEntryStateMachine(store)

	applied, err := sm.Transition(context.Background(), entry, optin.EntryStatusOptedIn,
		optin.WithAfterTransitionHook(func(context.Context, optin.TransitionContext) error {
			return hookErr
		}),
	)
	assert.True(t, applied)
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, optin.EntryStatusOptedIn, entry.Status)
}

func TestEntryStateMachinePropagatesStoreErrors(t *testing.T) {
	store := &MockEntryStore{}
	entry := &optin.Entry{ID: uuid.New(), Status: optin.EntryStatusPending}
	storeErr := errors.New("database is locked")

	store.On("UpdateStatus", mock.Anything, entry.ID, optin.EntryStatusPending, optin.EntryStatusOptedIn, mock.Anything).
		Return(false, storeErr).Once()

	sm := optin.NewEntryStateMachine(store)

	applied, err := sm.Transition(context.Background(), entry, optin.EntryStatusOptedIn)
	assert.False(t, applied)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, optin.EntryStatusPending, entry.Status)
}
