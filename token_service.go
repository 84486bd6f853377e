package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenExpiration is the session lifetime in hours
	DefaultTokenExpiration = 365 * 24
	// DefaultPendingExpiration is the role selection window in hours
	DefaultPendingExpiration = 24
)

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	keys       *KeyMaterial
	ttl        time.Duration
	pendingTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(keys *KeyMaterial, cfg Config, logger Logger, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if keys == nil {
		return nil, fmt.Errorf("token service requires key material")
	}

	ttl := time.Duration(DefaultTokenExpiration) * time.Hour
	pendingTTL := time.Duration(DefaultPendingExpiration) * time.Hour
	var issuer string
	var audience jwt.ClaimStrings

	if cfg != nil {
		if cfg.GetTokenExpiration() > 0 {
			ttl = time.Duration(cfg.GetTokenExpiration()) * time.Hour
		}
		if cfg.GetPendingExpiration() > 0 {
			pendingTTL = time.Duration(cfg.GetPendingExpiration()) * time.Hour
		}
		issuer = cfg.GetIssuer()
		if aud := cfg.GetAudience(); len(aud) > 0 {
			audience = append(jwt.ClaimStrings(nil), aud...)
		}
	}

	ts := &TokenServiceImpl{
		keys:       keys,
		ttl:        ttl,
		pendingTTL: pendingTTL,
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
		logger:     normalizeLogger(logger),
	}

	for _, opt := range opts {
		opt(ts)
	}

	return ts, nil
}

// TTL is the lifetime of a full session token
func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

// PendingTTL is the lifetime of a role selection token
func (ts *TokenServiceImpl) PendingTTL() time.Duration {
	return ts.pendingTTL
}

// Sign issues a session token. Subject and a valid account type are
// required. IssuedAt defaults to now and ExpiresAt to IssuedAt plus TTL.
func (ts *TokenServiceImpl) Sign(claims *IdentityClaims) (string, error) {
	if claims == nil || claims.SubjectID() == "" || !claims.Account.IsValid() {
		return "", ErrInvalidClaims
	}

	c := claims.clone()
	c.Pending = false
	return ts.sign(c, ts.ttl)
}

// SignPending issues the short lived token that lets a user without an
// account type reach the account setup page.
func (ts *TokenServiceImpl) SignPending(subjectID, username string) (string, error) {
	if subjectID == "" {
		return "", ErrInvalidClaims
	}

	return ts.sign(&IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subjectID},
		UID:              subjectID,
		Username:         username,
		Pending:          true,
	}, ts.pendingTTL)
}

func (ts *TokenServiceImpl) sign(c *IdentityClaims, ttl time.Duration) (string, error) {
	if !ts.keys.CanSign() {
		return "", ErrSigningUnavailable
	}

	if c.RegisteredClaims.Subject == "" {
		c.RegisteredClaims.Subject = c.UID
	}
	if c.UID == "" {
		c.UID = c.RegisteredClaims.Subject
	}

	if c.RegisteredClaims.IssuedAt == nil {
		c.RegisteredClaims.IssuedAt = jwt.NewNumericDate(ts.now())
	}
	if c.RegisteredClaims.ExpiresAt == nil {
		c.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(c.RegisteredClaims.IssuedAt.Add(ttl))
	}
	if c.RegisteredClaims.Issuer == "" {
		c.RegisteredClaims.Issuer = ts.issuer
	}
	if len(c.RegisteredClaims.Audience) == 0 && len(ts.audience) > 0 {
		c.RegisteredClaims.Audience = append(jwt.ClaimStrings(nil), ts.audience...)
	}
	if c.RegisteredClaims.ID == "" {
		c.RegisteredClaims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(ts.keys.Method(), c)
	token.Header["kid"] = ts.keys.KeyID()

	signed, err := token.SignedString(ts.keys.signingKey())
	if err != nil {
		ts.logger.Error("token service failed to sign", "error", err)
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// Verify checks signature and expiry against the service clock.
func (ts *TokenServiceImpl) Verify(token string) (*IdentityClaims, error) {
	return ts.VerifyAt(token, ts.now())
}

// VerifyAt checks the token as if the current time was at. A token is
// expired once at reaches its expiry, at second precision.
func (ts *TokenServiceImpl) VerifyAt(token string, at time.Time) (*IdentityClaims, error) {
	return parseIdentity(token, ts.keys.Keyfunc(), []string{ts.keys.Method().Alg()}, ts.issuer, ts.audience, at)
}

func parseIdentity(token string, kf jwt.Keyfunc, methods []string, issuer string, audience jwt.ClaimStrings, at time.Time) (*IdentityClaims, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return at }),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if len(audience) > 0 {
		opts = append(opts, jwt.WithAudience(audience[0]))
	}

	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, kf, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrapAuthError(ErrExpiredToken, err)
		}
		return nil, wrapAuthError(ErrMalformedToken, err)
	}

	if !parsed.Valid || claims.SubjectID() == "" {
		return nil, ErrMalformedToken
	}

	if !claims.Pending && !claims.Account.IsValid() {
		return nil, withMeta(ErrMalformedToken, map[string]any{
			"account": string(claims.Account),
		})
	}

	return claims, nil
}

// Decode reads the claims without checking signature or expiry. Never use
// the result for an access decision.
func (ts *TokenServiceImpl) Decode(token string) (*IdentityClaims, bool) {
	return DecodeUnverified(token)
}

// DecodeUnverified parses the token payload without verification.
func DecodeUnverified(token string) (*IdentityClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &IdentityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// Validate lets the service act as a guard token validator
func (ts *TokenServiceImpl) Validate(token string) (*IdentityClaims, error) {
	return ts.Verify(token)
}
