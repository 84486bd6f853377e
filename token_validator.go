package auth

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*IdentityClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*IdentityClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*IdentityClaims, error) {
	if f == nil {
		return nil, ErrMalformedToken
	}
	return f(tokenString)
}

// MultiTokenValidator tries validators in order until one succeeds.
// It treats ErrMalformedToken as "try next" and returns the last malformed
// error if all validators fail.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*IdentityClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsMalformedError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrMalformedToken
}

// RemoteValidator verifies tokens against a published key set. Use it for
// services that guard routes but never issue sessions.
type RemoteValidator struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience jwt.ClaimStrings
	now      func() time.Time
}

// NewRemoteValidator fetches the key set at jwksURL and keeps it fresh in
// the background. Call Close on shutdown.
func NewRemoteValidator(jwksURL string, cfg Config, logger Logger) (*RemoteValidator, error) {
	logger = normalizeLogger(logger)

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to refresh remote key set", "url", jwksURL, "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load remote key set %s: %w", jwksURL, err)
	}

	v := &RemoteValidator{jwks: jwks, now: time.Now}
	if cfg != nil {
		v.issuer = cfg.GetIssuer()
		v.audience = cfg.GetAudience()
	}
	return v, nil
}

// Validate satisfies the TokenValidator interface.
func (v *RemoteValidator) Validate(tokenString string) (*IdentityClaims, error) {
	return parseIdentity(
		tokenString,
		v.jwks.Keyfunc,
		[]string{jwt.SigningMethodRS256.Alg()},
		v.issuer,
		v.audience,
		v.now(),
	)
}

// Close stops the background refresh
func (v *RemoteValidator) Close() {
	v.jwks.EndBackground()
}
