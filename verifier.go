package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// VerificationStatus is the email verification state of a record
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
)

// CredentialRecord is what a credential store knows about a user. The
// store owns it, this package only reads it.
type CredentialRecord struct {
	SubjectID    string
	Username     string
	Email        string
	PasswordHash string
	// AccountType is nil while the user has not picked a role.
	AccountType *AccountType
	Verified    VerificationStatus
	Source      string
}

// IsPending reports a record without an account type
func (r *CredentialRecord) IsPending() bool {
	return r.AccountType == nil || *r.AccountType == ""
}

// IsVerified reports whether the record passed email verification
func (r *CredentialRecord) IsVerified() bool {
	return r.Verified == StatusVerified
}

// Account returns the account type or the empty string when pending
func (r *CredentialRecord) Account() AccountType {
	if r.AccountType == nil {
		return ""
	}
	return *r.AccountType
}

// CredentialVerifier looks identities up across ordered sources and
// checks passwords against their stored hash.
type CredentialVerifier struct {
	sources  []CredentialSource
	password PasswordAuthenticator
	logger   Logger
}

// NewCredentialVerifier keeps the sources in the order given. The first
// source holding the identifier wins, so list the most privileged store
// first when an identifier can exist in several.
func NewCredentialVerifier(password PasswordAuthenticator, logger Logger, sources ...CredentialSource) *CredentialVerifier {
	if password == nil {
		password = BcryptAuthenticator{}
	}

	filtered := make([]CredentialSource, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			filtered = append(filtered, s)
		}
	}

	return &CredentialVerifier{
		sources:  filtered,
		password: password,
		logger:   normalizeLogger(logger),
	}
}

// Lookup returns the first record matching identifier, or ErrNotFound.
// Store failures are returned wrapped and stop the search.
func (v *CredentialVerifier) Lookup(ctx context.Context, identifier string) (*CredentialRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}

	for _, source := range v.sources {
		record, err := source.FindByIdentifier(ctx, identifier)
		if err != nil {
			if IsAuthError(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("credential source %s: %w", source.Name(), err)
		}
		if record == nil {
			continue
		}
		if record.Source == "" {
			record.Source = source.Name()
		}
		v.logger.Debug("credential lookup matched", "source", source.Name(), "subject", record.SubjectID)
		return record, nil
	}

	return nil, ErrNotFound
}

// Compare checks password against the record hash. A mismatch or an
// unreadable stored hash returns ErrPasswordMismatch, anything else is a
// hard failure.
func (v *CredentialVerifier) Compare(record *CredentialRecord, password string) error {
	if record == nil || record.PasswordHash == "" || password == "" {
		return ErrPasswordMismatch
	}

	if err := v.password.ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		if IsAuthError(err, ErrPasswordMismatch) {
			if cause := errors.Unwrap(err); cause != nil {
				v.logger.Error("stored password hash is unreadable",
					"source", record.Source,
					"subject", record.SubjectID,
					"error", cause,
				)
			}
			return ErrPasswordMismatch
		}
		return fmt.Errorf("compare password: %w", err)
	}

	return nil
}
