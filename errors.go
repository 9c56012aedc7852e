package optin

import (
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeAgentNotFound     = "AGENT_NOT_FOUND"
	TextCodeEntryNotFound     = "ENTRY_NOT_FOUND"
	TextCodeInvalidTransition = "INVALID_ENTRY_STATE_TRANSITION"
	TextCodeTerminalState     = "TERMINAL_ENTRY_STATE"
	TextCodeCallbackFailed    = "OPTIN_CALLBACK_FAILED"
)

// ErrAgentNotFound is returned when a session targets an unregistered agent.
var ErrAgentNotFound = goerrors.New("opt-in agent not registered", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAgentNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEntryNotFound is returned by stores when no entry matches.
var ErrEntryNotFound = goerrors.New("opt-in entry not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeEntryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid entry state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move an entry out of opted-in or expired.
var ErrTerminalState = goerrors.New("entry state is terminal", goerrors.CategoryConflict).
	WithTextCode(TextCodeTerminalState).
	WithCode(goerrors.CodeConflict)

// IsNotFound reports whether err means a store had no matching record.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEntryNotFound) || errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return repository.IsRecordNotFound(err) || goerrors.IsNotFound(err)
}

func richError(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
