package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMissingCredential    = "MISSING_CREDENTIAL"
	TextCodeRoleMismatch         = "ROLE_MISMATCH"
	TextCodeNotFound             = "not-found"
	TextCodePasswordMismatch     = "password-mismatch"
	TextCodeUnverified           = "unverified-account"
	TextCodePendingRoleSelection = "pending-role-selection"
	TextCodeInvalidClaims        = "INVALID_CLAIMS"
	TextCodeAccountTypeSet       = "ACCOUNT_TYPE_SET"
	TextCodeInvalidAccountType   = "INVALID_ACCOUNT_TYPE"
	TextCodeSigningUnavailable   = "SIGNING_UNAVAILABLE"
	TextCodeInternal             = "INTERNAL"
)

var ErrMissingCredential = goerrors.New("missing session credential", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingCredential).
	WithCode(goerrors.CodeUnauthorized)

var ErrMalformedToken = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(goerrors.TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

var ErrExpiredToken = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(goerrors.TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrRoleMismatch = goerrors.New("account type does not match route", goerrors.CategoryAuthz).
	WithTextCode(TextCodeRoleMismatch).
	WithCode(goerrors.CodeForbidden)

// ErrNotFound answers 401 so sign in does not reveal which identities exist
var ErrNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeUnauthorized)

var ErrPasswordMismatch = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeUnauthorized)

var ErrUnverified = goerrors.New("account is not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnverified).
	WithCode(goerrors.CodeForbidden)

var ErrPendingRoleSelection = goerrors.New("account type not selected", goerrors.CategoryAuthz).
	WithTextCode(TextCodePendingRoleSelection).
	WithCode(goerrors.CodeForbidden)

var ErrInvalidClaims = goerrors.New("claims are missing subject or account type", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidClaims).
	WithCode(goerrors.CodeBadRequest)

var ErrAccountTypeAlreadySet = goerrors.New("account type already selected", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountTypeSet).
	WithCode(goerrors.CodeConflict)

var ErrInvalidAccountType = goerrors.New("account type is not selectable", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidAccountType).
	WithCode(goerrors.CodeBadRequest)

var ErrSigningUnavailable = goerrors.New("key material cannot sign tokens", goerrors.CategoryInternal).
	WithTextCode(TextCodeSigningUnavailable).
	WithCode(goerrors.CodeInternal)

var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(goerrors.TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// wrapAuthError returns a copy of base carrying err as its source.
// The sentinel itself is never mutated.
func wrapAuthError(base *goerrors.Error, err error) *goerrors.Error {
	clone := base.Clone()
	if err != nil {
		clone.Source = err
	}
	return clone
}

// withMeta returns a copy of base decorated with meta
func withMeta(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	return base.Clone().WithMetadata(meta)
}

// IsAuthError reports whether any error in the chain of err is target or a
// copy of it. Copies are matched on category and text code.
func IsAuthError(err error, target *goerrors.Error) bool {
	if err == nil || target == nil {
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if e == error(target) {
			return true
		}
		var rich *goerrors.Error
		if errors.As(e, &rich) && rich.TextCode == target.TextCode && rich.Category == target.Category {
			return true
		}
	}
	return false
}

// HTTPStatus maps err to a response status. Errors outside this package
// are a 500.
func HTTPStatus(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return goerrors.CodeInternal
	}
	if rich.Code > 0 {
		return rich.Code
	}
	switch rich.Category {
	case goerrors.CategoryAuth:
		return goerrors.CodeUnauthorized
	case goerrors.CategoryAuthz:
		return goerrors.CodeForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return goerrors.CodeBadRequest
	case goerrors.CategoryNotFound:
		return goerrors.CodeNotFound
	case goerrors.CategoryConflict:
		return goerrors.CodeConflict
	default:
		return goerrors.CodeInternal
	}
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err, ErrExpiredToken) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed or missing tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err, ErrMalformedToken) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed")
}
