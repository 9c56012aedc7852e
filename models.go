package optin

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EntryID identifies an opt-in entry
type EntryID = uuid.UUID

// EntryStatus is the lifecycle status of an entry
type EntryStatus string

const (
	// EntryStatusPending awaits confirmation
	EntryStatusPending EntryStatus = "pending"
	// EntryStatusOptedIn was confirmed within the acceptance period
	EntryStatusOptedIn EntryStatus = "opted-in"
	// EntryStatusExpired was presented after the acceptance period
	EntryStatusExpired EntryStatus = "expired"
)

// IsTerminal reports whether no further transitions are allowed.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusOptedIn || s == EntryStatusExpired
}

func (s EntryStatus) String() string {
	return string(s)
}

// Entry is one double opt-in attempt
type Entry struct {
	bun.BaseModel `bun:"table:optin_entries,alias:oe"`
	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	AgentName     string         `bun:"agent_name,notnull" json:"agent_name"`
	Token         string         `bun:"token,notnull,unique" json:"-"`
	Status        EntryStatus    `bun:"status,notnull" json:"status"`
	Properties    map[string]any `bun:"properties,type:jsonb" json:"properties,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
	ResolvedAt    *time.Time     `bun:"resolved_at,nullzero" json:"resolved_at,omitempty"`
}

// IsPending reports whether the entry can still be confirmed.
func (e *Entry) IsPending() bool {
	return e != nil && e.Status == EntryStatusPending
}

// ExpiresAt returns the instant after which the entry can no longer be
// confirmed under the given acceptance period.
func (e *Entry) ExpiresAt(period time.Duration) time.Time {
	return e.CreatedAt.Add(period)
}

// EnsureStatus defaults an empty status to pending.
func (e *Entry) EnsureStatus() {
	if e.Status == "" {
		e.Status = EntryStatusPending
	}
}

func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Properties != nil {
		c.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func newEntryID() EntryID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
