package optin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entries is the Bun backed EntryStore.
type Entries interface {
	EntryStore

	CreateTx(ctx context.Context, tx bun.IDB, entry *Entry) (*Entry, error)
	FindPendingByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Entry, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id EntryID, from, to EntryStatus, at time.Time) (bool, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id EntryID) (*Entry, error)
}

type entries struct {
	repo repository.Repository[*Entry]
	db   *bun.DB
}

var _ Entries = (*entries)(nil)

// NewEntriesRepository returns an Entries store over db.
func NewEntriesRepository(db *bun.DB) Entries {
	handlers := repository.ModelHandlers[*Entry]{
		NewRecord: func() *Entry {
			return &Entry{}
		},
		GetID: func(record *Entry) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Entry, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	}

	return &entries{
		repo: repository.NewRepository(db, handlers),
		db:   db,
	}
}

func (e *entries) Create(ctx context.Context, entry *Entry) (*Entry, error) {
	return e.CreateTx(ctx, e.db, entry)
}

func (e *entries) CreateTx(ctx context.Context, tx bun.IDB, entry *Entry) (*Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = newEntryID()
	}
	entry.EnsureStatus()
	if entry.Properties == nil {
		entry.Properties = map[string]any{}
	}
	return e.repo.CreateTx(ctx, tx, entry)
}

func (e *entries) FindPendingByToken(ctx context.Context, token string) (*Entry, error) {
	return e.FindPendingByTokenTx(ctx, e.db, token)
}

func (e *entries) FindPendingByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Entry, error) {
	record := &Entry{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.status = ?", EntryStatusPending).
		OrderExpr("?TableAlias.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"status": EntryStatusPending.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (e *entries) UpdateStatus(ctx context.Context, id EntryID, from, to EntryStatus, at time.Time) (bool, error) {
	return e.UpdateStatusTx(ctx, e.db, id, from, to, at)
}

// UpdateStatusTx only touches the row while it is still in status from,
// so concurrent verifications of one token resolve it once.
func (e *entries) UpdateStatusTx(ctx context.Context, tx bun.IDB, id EntryID, from, to EntryStatus, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Entry)(nil)).
		Set("status = ?", to).
		Set("resolved_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (e *entries) GetByID(ctx context.Context, id EntryID) (*Entry, error) {
	return e.GetByIDTx(ctx, e.db, id)
}

func (e *entries) GetByIDTx(ctx context.Context, tx bun.IDB, id EntryID) (*Entry, error) {
	record := &Entry{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

// CreateSchema creates the entries table and its lookup index.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	_, err := db.NewCreateIndex().
		Model((*Entry)(nil)).
		Index("optin_entries_status_token_idx").
		Column("status", "token").
		IfNotExists().
		Exec(ctx)
	return err
}
