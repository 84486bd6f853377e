package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the structured logger used across the package.
// Arguments after the message are read as key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenService signs and verifies session tokens
type TokenService interface {
	Sign(claims *IdentityClaims) (string, error)
	SignPending(subjectID, username string) (string, error)
	Verify(token string) (*IdentityClaims, error)
	VerifyAt(token string, at time.Time) (*IdentityClaims, error)
	Decode(token string) (*IdentityClaims, bool)
	TTL() time.Duration
	PendingTTL() time.Duration
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// CredentialSource is a store that can find sign-in records by
// username or email. A miss is reported as (nil, nil).
type CredentialSource interface {
	Name() string
	FindByIdentifier(ctx context.Context, identifier string) (*CredentialRecord, error)
}

// AccountTypeAssigner writes the account type of a pending record.
// Implementations must only update records whose account type is still
// unset and return ErrAccountTypeAlreadySet otherwise.
type AccountTypeAssigner interface {
	AssignAccountType(ctx context.Context, subjectID string, accountType AccountType) (*CredentialRecord, error)
}

// VerificationMailer is the boundary to whatever delivers verification
// emails. Rendering and delivery live elsewhere.
type VerificationMailer interface {
	SendVerification(ctx context.Context, record *CredentialRecord) error
}

// Config holds auth options
type Config interface {
	GetSigningMethod() string
	GetSigningKey() string
	GetPrivateKeyPath() string
	GetPublicKeyPath() string
	GetKeyID() string
	GetTokenExpiration() int
	GetPendingExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetCookiePrefix() string
	GetSecureCookies() bool
	GetAuthHeader() string
	GetAuthScheme() string
	GetLoginPath() string
	GetGuardRedirect() string
	GetRejectedRouteKey() string
	GetJWKSURL() string
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
