package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/pivot-market/pivot-auth/middleware/jwtware"
)

// DefaultGuardRedirect is where rejected browsers are sent
const DefaultGuardRedirect = "/?utm_source=authentication-redirect"

// RejectionHandler turns a guard failure into a response
type RejectionHandler func(c *fiber.Ctx, err *goerrors.Error) error

// Guards builds the per role route gates. Every guard reads only its own
// cookies, so a client session never opens a freelancer route.
type Guards struct {
	validator  TokenValidator
	namespace  *CookieNamespace
	sessions   *SessionIssuer
	header     string
	scheme     string
	redirectTo string
	logger     Logger
	listeners  []ValidationListener
	// OnReject replaces the default redirect or JSON rejection.
	OnReject RejectionHandler
}

// NewGuards wires guards over a validator. Use the TokenService for the
// issuing service and a RemoteValidator for services that only guard.
func NewGuards(validator TokenValidator, ns *CookieNamespace, sessions *SessionIssuer, cfg Config, logger Logger) *Guards {
	if ns == nil {
		ns = NewCookieNamespace(DefaultCookiePrefix)
	}
	logger = normalizeLogger(logger)
	if sessions == nil {
		sessions = NewSessionIssuer(ns, cfg, logger)
	}

	g := &Guards{
		validator:  validator,
		namespace:  ns,
		sessions:   sessions,
		header:     fiber.HeaderAuthorization,
		scheme:     "Bearer",
		redirectTo: DefaultGuardRedirect,
		logger:     logger,
	}

	if cfg != nil {
		if h := cfg.GetAuthHeader(); h != "" {
			g.header = h
		}
		if s := cfg.GetAuthScheme(); s != "" {
			g.scheme = s
		}
		if r := cfg.GetGuardRedirect(); r != "" {
			g.redirectTo = r
		}
	}

	g.OnReject = g.defaultReject
	return g
}

// OnValidated runs listeners after a token verifies and before the role
// check, on every guard built afterwards. A listener error rejects the
// request, e.g. for a revoked session.
func (g *Guards) OnValidated(listeners ...ValidationListener) *Guards {
	g.listeners = append(g.listeners, listeners...)
	return g
}

// Require admits only sessions of the given account type.
func (g *Guards) Require(at AccountType) fiber.Handler {
	name, ok := g.namespace.CookieFor(at)
	if !ok {
		panic(fmt.Sprintf("AUTH: no session cookie for account type %q", at))
	}

	return g.build([]string{name}, string(at), nil)
}

// Authenticated admits any full session, whatever the account type. Role
// cookies are tried in order and the first one that validates is used.
func (g *Guards) Authenticated() fiber.Handler {
	return g.build(g.namespace.RoleCookieNames(), "", func(claims jwtware.AuthClaims) error {
		if claims.IsPending() {
			return jwtware.ErrRoleMismatch
		}
		return nil
	})
}

// PendingSetup admits only role selection tokens.
func (g *Guards) PendingSetup() fiber.Handler {
	return g.build([]string{g.namespace.PendingCookie()}, "", func(claims jwtware.AuthClaims) error {
		if !claims.IsPending() {
			return jwtware.ErrRoleMismatch
		}
		return nil
	})
}

func (g *Guards) build(cookies []string, role string, authorize func(jwtware.AuthClaims) error) fiber.Handler {
	lookup := make([]string, 0, len(cookies)+1)
	for _, name := range cookies {
		lookup = append(lookup, "cookie:"+name)
	}
	lookup = append(lookup, "header:"+g.header)

	cfg := jwtware.Config{
		TokenLookup:     strings.Join(lookup, ","),
		AuthScheme:      g.scheme,
		ContextKey:      LocalsKey,
		TokenValidator:  jwtware.TokenValidatorFunc(g.validate),
		RequiredRole:    role,
		Authorize:       authorize,
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return g.OnReject(c, classifyGuardError(err))
		},
	}
	RegisterValidationListeners(&cfg, g.listeners...)

	return jwtware.New(cfg)
}

func (g *Guards) validate(token string) (jwtware.AuthClaims, error) {
	claims, err := g.validator.Validate(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func classifyGuardError(err error) *goerrors.Error {
	var rich *goerrors.Error
	switch {
	case errors.Is(err, jwtware.ErrTokenMissing):
		return wrapAuthError(ErrMissingCredential, err)
	case errors.Is(err, jwtware.ErrRoleMismatch):
		return wrapAuthError(ErrRoleMismatch, err)
	case goerrors.As(err, &rich):
		return rich
	default:
		return wrapAuthError(ErrMalformedToken, err)
	}
}

func (g *Guards) defaultReject(c *fiber.Ctx, err *goerrors.Error) error {
	g.logger.Info("guard rejected request",
		"category", err.Category,
		"text_code", err.TextCode,
		"status", HTTPStatus(err),
		"path", c.Path(),
	)

	if IsProgrammatic(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	if c.Method() == fiber.MethodGet {
		g.sessions.SetRedirect(c)
	}

	return c.Redirect(g.redirectTo, fiber.StatusMovedPermanently)
}
