package optin

import (
	"context"
	"fmt"
	"time"
)

// TokenQueryKey is the request key carrying the confirmation token.
const TokenQueryKey = "doitoken"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds opt-in options
type Config interface {
	GetDefaultAcceptancePeriod() time.Duration
	GetTokenQueryKey() string
	GetVerifyRoute() string
	GetSuccessRedirect() string
	GetFailureRedirect() string
}

// OptinCallback runs once, synchronously, after an entry is confirmed.
type OptinCallback func(ctx context.Context) error

// EntryStore persists opt-in entries.
type EntryStore interface {
	Create(ctx context.Context, entry *Entry) (*Entry, error)
	FindPendingByToken(ctx context.Context, token string) (*Entry, error)
	// UpdateStatus moves the entry from one status to another. It reports
	// false when the entry was no longer in status from.
	UpdateStatus(ctx context.Context, id EntryID, from, to EntryStatus, at time.Time) (bool, error)
	GetByID(ctx context.Context, id EntryID) (*Entry, error)
}

// TokenGenerator produces tokens for new entries.
type TokenGenerator interface {
	Generate() (string, error)
}

// DefaultLogger returns the logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] OPTIN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] OPTIN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] OPTIN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] OPTIN "+newline(format), args...)
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
