package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/pivot-market/pivot-auth"
)

// PlatformUser is a freelancer or client account. Account stays NULL until
// the user picks a role during account setup.
type PlatformUser struct {
	bun.BaseModel `bun:"table:platform_users,alias:pu"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName     string     `bun:"first_name" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name" json:"last_name,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Account       *string    `bun:"account,nullzero" json:"account,omitempty"`
	VStatus       bool       `bun:"vstatus,notnull,default:false" json:"vstatus"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Administrator is a back office account. Its account type is always admin.
type Administrator struct {
	bun.BaseModel `bun:"table:administrators,alias:adm"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// ToCredentialRecord maps the row to the sign in view
func (u *PlatformUser) ToCredentialRecord() *auth.CredentialRecord {
	rec := &auth.CredentialRecord{
		SubjectID:    u.ID.String(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Verified:     auth.StatusUnverified,
		Source:       PlatformUsersSource,
	}
	if u.VStatus {
		rec.Verified = auth.StatusVerified
	}
	if u.Account != nil {
		if at, ok := auth.ParseAccountType(*u.Account); ok {
			rec.AccountType = &at
		}
	}
	return rec
}

// ToCredentialRecord maps the row to the sign in view
func (a *Administrator) ToCredentialRecord() *auth.CredentialRecord {
	at := auth.AccountAdmin
	return &auth.CredentialRecord{
		SubjectID:    a.ID.String(),
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		AccountType:  &at,
		Verified:     auth.StatusVerified,
		Source:       AdministratorsSource,
	}
}
