package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/pivot-market/pivot-auth"
)

// AdministratorsSource is the source name reported on matched records
const AdministratorsSource = "administrators"

// Administrators reads sign in records from administrators
type Administrators struct {
	repository.Repository[*Administrator]
	db *bun.DB
}

var _ auth.CredentialSource = (*Administrators)(nil)

// NewAdministrators returns a repository over db
func NewAdministrators(db *bun.DB) *Administrators {
	repo := repository.NewRepository[*Administrator](db, repository.ModelHandlers[*Administrator]{
		NewRecord: func() *Administrator { return &Administrator{} },
		GetID: func(a *Administrator) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Administrator, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &Administrators{Repository: repo, db: db}
}

// Name implements auth.CredentialSource
func (r *Administrators) Name() string {
	return AdministratorsSource
}

// FindByIdentifier matches the username exactly or the email case
// insensitive. A miss returns (nil, nil).
func (r *Administrators) FindByIdentifier(ctx context.Context, identifier string) (*auth.CredentialRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	admin := new(Administrator)
	err := r.db.NewSelect().
		Model(admin).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.username = ?", identifier).
				WhereOr("lower(?TableAlias.email) = ?", strings.ToLower(identifier))
		}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find administrator: %w", err)
	}

	return admin.ToCredentialRecord(), nil
}

// Upsert inserts the administrator or refreshes its credentials. An
// existing row is matched on ID when set, on email otherwise.
func (r *Administrators) Upsert(ctx context.Context, admin *Administrator) (*Administrator, error) {
	admin.Email = strings.ToLower(strings.TrimSpace(admin.Email))

	var (
		existing *Administrator
		err      error
	)
	if admin.ID != uuid.Nil {
		existing, err = r.Repository.GetByID(ctx, admin.ID.String())
	} else {
		existing, err = r.Repository.GetByIdentifierTx(ctx, r.db, admin.Email)
	}

	if err == nil {
		admin.ID = existing.ID
		updated, err := r.Repository.UpdateTx(ctx, r.db, admin,
			repository.UpdateByID(admin.ID.String()),
			repository.UpdateSkipZeroValues(),
		)
		if err != nil {
			return nil, fmt.Errorf("update administrator: %w", err)
		}
		return updated, nil
	}

	if !repository.IsRecordNotFound(err) && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup administrator: %w", err)
	}

	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}

	created, err := r.Repository.CreateTx(ctx, r.db, admin)
	if err != nil {
		return nil, fmt.Errorf("create administrator: %w", err)
	}
	return created, nil
}
