package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/pivot-market/pivot-auth"
)

// PlatformUsersSource is the source name reported on matched records
const PlatformUsersSource = "platform_users"

// PlatformUsers reads sign in records from platform_users and writes the
// one time account type selection.
type PlatformUsers struct {
	repository.Repository[*PlatformUser]
	db *bun.DB
}

var (
	_ auth.CredentialSource    = (*PlatformUsers)(nil)
	_ auth.AccountTypeAssigner = (*PlatformUsers)(nil)
)

// NewPlatformUsers returns a repository over db
func NewPlatformUsers(db *bun.DB) *PlatformUsers {
	repo := repository.NewRepository[*PlatformUser](db, repository.ModelHandlers[*PlatformUser]{
		NewRecord: func() *PlatformUser { return &PlatformUser{} },
		GetID: func(u *PlatformUser) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *PlatformUser, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &PlatformUsers{Repository: repo, db: db}
}

// Name implements auth.CredentialSource
func (r *PlatformUsers) Name() string {
	return PlatformUsersSource
}

// FindByIdentifier matches the username exactly or the email case
// insensitive. A miss returns (nil, nil).
func (r *PlatformUsers) FindByIdentifier(ctx context.Context, identifier string) (*auth.CredentialRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	user := new(PlatformUser)
	err := r.db.NewSelect().
		Model(user).
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
		return nil, fmt.Errorf("find platform user: %w", err)
	}

	return user.ToCredentialRecord(), nil
}

// AssignAccountType sets account on a row where it is still NULL. The
// condition is part of the UPDATE so two concurrent selections cannot
// both win.
func (r *PlatformUsers) AssignAccountType(ctx context.Context, subjectID string, accountType auth.AccountType) (*auth.CredentialRecord, error) {
	id, err := uuid.Parse(subjectID)
	if err != nil {
		return nil, auth.ErrNotFound
	}

	res, err := r.db.NewUpdate().
		Model((*PlatformUser)(nil)).
		Set("account = ?", string(accountType)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("account IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign account type: %w", err)
	}

	user, err := r.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, auth.ErrAccountTypeAlreadySet.Clone().WithMetadata(map[string]any{
			"subject": subjectID,
		})
	}

	return user.ToCredentialRecord(), nil
}

// GetUser loads a user or returns auth.ErrNotFound
func (r *PlatformUsers) GetUser(ctx context.Context, id uuid.UUID) (*PlatformUser, error) {
	user, err := r.Repository.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("get platform user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a user, assigning an ID when missing. Registration
// lives elsewhere, this exists for seeding and tests.
func (r *PlatformUsers) CreateUser(ctx context.Context, user *PlatformUser) (*PlatformUser, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	created, err := r.Repository.CreateTx(ctx, r.db, user)
	if err != nil {
		return nil, fmt.Errorf("create platform user: %w", err)
	}
	return created, nil
}
