package jwtware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pivot-market/pivot-auth/credential"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
	// ErrTokenMissing is returned when no extractor found a credential.
	// The validator is never called in that case.
	ErrTokenMissing = errors.New("missing session token")
	// ErrRoleMismatch is returned when the token role is not the required one
	ErrRoleMismatch = errors.New("access denied: role mismatch")
)

// TokenValidator interface for validating tokens without import cycles
// This mirrors the TokenValidator interface from the auth package
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies TokenValidator
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	return f(tokenString)
}

// AuthClaims interface for structured claims without import cycles
// This mirrors the IdentityClaims accessors from the auth package
type AuthClaims interface {
	SubjectID() string
	Role() string
	IsPending() bool
}

// ValidationListener is invoked after a token has been validated but before authorization checks.
type ValidationListener func(ctx *fiber.Ctx, claims AuthClaims) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	ContextKey     string
	// TokenLookup is a comma separated list of "<source>:<name>" pairs
	// tried in order, e.g. "cookie:pvt-fr-ssid,header:Authorization".
	// Sources are cookie, header and query.
	TokenLookup string
	AuthScheme  string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// RequiredRole rejects tokens whose role differs. Empty admits any role.
	RequiredRole string
	// Authorize runs after RequiredRole and may reject with its own error.
	Authorize func(AuthClaims) error

	// ContextEnricher is an optional function to propagate claims to the standard
	// Go context. If provided, it will be called after successful token validation.
	ContextEnricher func(c context.Context, claims AuthClaims) context.Context

	// ValidationListeners are invoked after token validation succeeds.
	ValidationListeners []ValidationListener
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(ctx *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(ctx) {
			return ctx.Next()
		}

		claims, err := ValidateFirst(ctx, extractors, cfg.TokenValidator)
		if err != nil {
			return cfg.ErrorHandler(ctx, err)
		}

		if err := cfg.runValidationListeners(ctx, claims); err != nil {
			return cfg.ErrorHandler(ctx, err)
		}

		if err := performAuthorizationChecks(claims, cfg); err != nil {
			return cfg.ErrorHandler(ctx, err)
		}

		ctx.Locals(cfg.ContextKey, claims)

		if cfg.ContextEnricher != nil {
			ctx.SetUserContext(cfg.ContextEnricher(ctx.UserContext(), claims))
		}

		return cfg.SuccessHandler(ctx)
	}
}

func performAuthorizationChecks(claims AuthClaims, cfg Config) error {
	if cfg.RequiredRole != "" && claims.Role() != cfg.RequiredRole {
		return fmt.Errorf("%w: required '%s' got '%s'", ErrRoleMismatch, cfg.RequiredRole, claims.Role())
	}

	if cfg.Authorize != nil {
		return cfg.Authorize(claims)
	}

	return nil
}

// ValidateFirst validates every credential the extractors find, in order,
// and returns the claims of the first one that passes. A stale credential
// earlier in the lookup does not hide a valid one behind it. When none
// passes the first validation error is returned.
func ValidateFirst(ctx *fiber.Ctx, extractors []JWTExtractor, validator TokenValidator) (AuthClaims, error) {
	var firstErr error
	for _, extractor := range extractors {
		raw, ok := extractor(ctx)
		if !ok {
			continue
		}
		claims, err := validator.Validate(raw)
		if err == nil {
			return claims, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrTokenMissing
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx *fiber.Ctx) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if errors.Is(err, ErrRoleMismatch) {
				return c.Status(fiber.StatusForbidden).SendString("Forbidden")
			}
			return c.Status(fiber.StatusUnauthorized).SendString("Missing, invalid or expired token")
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = credential.DefaultScheme
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx *fiber.Ctx, claims AuthClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

// GetExtractors parses a TokenLookup definition
func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := credential.DefaultScheme
	if len(authSchemes) > 0 && authSchemes[0] != "" {
		authScheme = authSchemes[0]
	}

	// cookie:pvt-fr-ssid,header:Authorization,query:token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, found := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !found {
			continue
		}
		source = strings.TrimSpace(source)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

// JWTExtractor returns a raw credential and whether one was found
type JWTExtractor func(c *fiber.Ctx) (string, bool)

func fromHeader(header, authScheme string) JWTExtractor {
	return func(c *fiber.Ctx) (string, bool) {
		return credential.ExtractBearer(c.Get(header), authScheme)
	}
}

func fromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, bool) {
		token := c.Query(param)
		return token, token != ""
	}
}

func fromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, bool) {
		return credential.ExtractCookie(c.Get(fiber.HeaderCookie), name)
	}
}
