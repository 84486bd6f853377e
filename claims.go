package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the payload carried by a session token
type IdentityClaims struct {
	jwt.RegisteredClaims
	UID      string      `json:"uid,omitempty"`
	Account  AccountType `json:"account,omitempty"`
	Username string      `json:"username,omitempty"`
	// Pending marks a token issued before the user picked an account type.
	Pending bool `json:"pending,omitempty"`
}

// SubjectID returns the identity the token was issued to
func (c *IdentityClaims) SubjectID() string {
	if c.RegisteredClaims.Subject != "" {
		return c.RegisteredClaims.Subject
	}
	return c.UID
}

// AccountType returns the account type the session was opened as
func (c *IdentityClaims) AccountType() AccountType {
	return c.Account
}

// Role satisfies the guard middleware claims view
func (c *IdentityClaims) Role() string {
	return string(c.Account)
}

// IsPending reports a role selection token
func (c *IdentityClaims) IsPending() bool {
	return c.Pending
}

// Expires returns the expiration time
func (c *IdentityClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *IdentityClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ValidAt reports whether the claims are live at t. The expiry is exclusive.
func (c *IdentityClaims) ValidAt(t time.Time) bool {
	exp := c.Expires()
	if exp.IsZero() {
		return false
	}
	return t.Before(exp)
}

func (c *IdentityClaims) clone() *IdentityClaims {
	cp := *c
	if c.RegisteredClaims.Audience != nil {
		cp.RegisteredClaims.Audience = append(jwt.ClaimStrings(nil), c.RegisteredClaims.Audience...)
	}
	return &cp
}
