package optin

import (
	"bytes"
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[EntryID]*Entry
}

var _ EntryStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[EntryID]*Entry{}}
}

func (s *MemoryStore) Create(ctx context.Context, entry *Entry) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, goerrors.New("entry is required", goerrors.CategoryBadInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Token == entry.Token {
			return nil, goerrors.New("entry token already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict)
		}
	}

	record := entry.clone()
	if record.ID == (EntryID{}) {
		record.ID = newEntryID()
	}
	if _, exists := s.entries[record.ID]; exists {
		return nil, goerrors.New("entry id already exists", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	record.EnsureStatus()

	s.entries[record.ID] = record
	return record.clone(), nil
}

func (s *MemoryStore) FindPendingByToken(ctx context.Context, token string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Entry
	for _, e := range s.entries {
		if e.Token != token || e.Status != EntryStatusPending {
			continue
		}
		if found == nil || bytes.Compare(e.ID[:], found.ID[:]) < 0 {
			found = e
		}
	}

	if found == nil {
		return nil, ErrEntryNotFound
	}
	return found.clone(), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id EntryID, from, to EntryStatus, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false, ErrEntryNotFound
	}
	if e.Status != from {
		return false, nil
	}

	e.Status = to
	resolved := at
	e.ResolvedAt = &resolved
	return true, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id EntryID) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e.clone(), nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
