package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultRejectedRouteKey names the cookie that remembers where a browser
// was going when a guard turned it away.
const DefaultRejectedRouteKey = "pvt-return-to"

// SessionIssuer writes and clears the session cookies of a namespace.
type SessionIssuer struct {
	namespace        *CookieNamespace
	secure           bool
	rejectedRouteKey string
	logger           Logger
}

// NewSessionIssuer builds an issuer for the namespace
func NewSessionIssuer(ns *CookieNamespace, cfg Config, logger Logger) *SessionIssuer {
	if ns == nil {
		ns = NewCookieNamespace(DefaultCookiePrefix)
	}

	s := &SessionIssuer{
		namespace:        ns,
		secure:           true,
		rejectedRouteKey: DefaultRejectedRouteKey,
		logger:           normalizeLogger(logger),
	}

	if cfg != nil {
		s.secure = cfg.GetSecureCookies()
		if key := cfg.GetRejectedRouteKey(); key != "" {
			s.rejectedRouteKey = key
		}
	}

	return s
}

// Issue clears every cookie in the namespace and then sets name. The
// clearing is written first so a browser never keeps two live sessions
// for different roles.
func (s *SessionIssuer) Issue(c *fiber.Ctx, name, token string, maxAge time.Duration) {
	s.clearNamespace(c, name)
	s.setCookieToken(c, name, token, maxAge)
}

// IssueResult writes the cookie carried by a sign in result, if any
func (s *SessionIssuer) IssueResult(c *fiber.Ctx, res SignInResult) {
	if !res.Outcome.IssuesCookie() || res.CookieName == "" {
		return
	}
	s.Issue(c, res.CookieName, res.Token, res.MaxAge)
}

// Logout clears every namespace cookie and the remembered route
func (s *SessionIssuer) Logout(c *fiber.Ctx) {
	s.clearNamespace(c, "")
	s.cookieDel(c, s.rejectedRouteKey)
}

// SetRedirect remembers the current route for a few minutes
func (s *SessionIssuer) SetRedirect(c *fiber.Ctx) {
	s.logger.Debug("setting redirect cookie", "key", s.rejectedRouteKey, "path", c.OriginalURL())

	c.Cookie(&fiber.Cookie{
		Name:     s.rejectedRouteKey,
		Value:    c.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// GetRedirect returns and forgets the remembered route. Only local paths
// are returned, anything else yields def.
func (s *SessionIssuer) GetRedirect(c *fiber.Ctx, def string) string {
	r := c.Cookies(s.rejectedRouteKey)
	if r == "" {
		return def
	}
	s.cookieDel(c, s.rejectedRouteKey)
	if !IsLocalRedirect(r) {
		return def
	}
	return r
}

// IsLocalRedirect accepts absolute paths on this host only
func IsLocalRedirect(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") {
		return false
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	return !strings.ContainsAny(target, "\r\n")
}

func (s *SessionIssuer) clearNamespace(c *fiber.Ctx, except string) {
	for _, name := range s.namespace.Names() {
		if name == except {
			continue
		}
		s.cookieDel(c, name)
	}
}

func (s *SessionIssuer) setCookieToken(c *fiber.Ctx, name, val string, duration time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		MaxAge:   int(duration.Seconds()),
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *SessionIssuer) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
