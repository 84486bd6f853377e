package jwtware_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivot-market/pivot-auth/middleware/jwtware"
)

type testClaims struct {
	sub     string
	role    string
	pending bool
}

func (c testClaims) SubjectID() string { return c.sub }
func (c testClaims) Role() string      { return c.role }
func (c testClaims) IsPending() bool   { return c.pending }

var errBadToken = errors.New("token is malformed")

// staticValidator accepts "good-<role>" tokens and counts calls
type staticValidator struct {
	calls int
}

func (v *staticValidator) Validate(token string) (jwtware.AuthClaims, error) {
	v.calls++
	switch token {
	case "good-freelancer":
		return testClaims{sub: "u1", role: "freelancer"}, nil
	case "good-client":
		return testClaims{sub: "u2", role: "client"}, nil
	default:
		return nil, errBadToken
	}
}

type ctxKey struct{}

func newApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected", jwtware.New(cfg), func(c *fiber.Ctx) error {
		claims, _ := c.Locals("user").(jwtware.AuthClaims)
		if claims == nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		if v, ok := c.UserContext().Value(ctxKey{}).(string); ok {
			c.Set("X-Enriched", v)
		}
		return c.SendString(claims.SubjectID())
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestJWTWare_HeaderExtraction(t *testing.T) {
	validator := &staticValidator{}
	app := newApp(jwtware.Config{TokenValidator: validator})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-freelancer")
	resp, body := do(t, app, req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", body)
}

func TestJWTWare_MissingTokenSkipsValidator(t *testing.T) {
	validator := &staticValidator{}
	var got error
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		TokenLookup:    "cookie:pvt-fr-ssid,header:Authorization",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp, _ := do(t, app, req)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.ErrorIs(t, got, jwtware.ErrTokenMissing)
	assert.Equal(t, 0, validator.calls)
}

func TestJWTWare_CookieBeforeHeader(t *testing.T) {
	validator := &staticValidator{}
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		TokenLookup:    "cookie:pvt-cl-ssid,header:Authorization",
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Cookie", "pvt-cl-ssid=good-client")
	req.Header.Set("Authorization", "Bearer good-freelancer")
	resp, body := do(t, app, req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "u2", body)
}

func TestJWTWare_StaleCookieFallsThrough(t *testing.T) {
	validator := &staticValidator{}
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		TokenLookup:    "cookie:pvt-fr-ssid,cookie:pvt-cl-ssid,header:Authorization",
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Cookie", "pvt-fr-ssid=expired; pvt-cl-ssid=good-client")
	resp, body := do(t, app, req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "u2", body)
	assert.Equal(t, 2, validator.calls)
}

func TestJWTWare_AllCandidatesFailReportsFirst(t *testing.T) {
	calls := []string{}
	var got error
	app := newApp(jwtware.Config{
		TokenValidator: jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
			calls = append(calls, token)
			return nil, fmt.Errorf("reject %s: %w", token, errBadToken)
		}),
		TokenLookup: "cookie:pvt-fr-ssid,cookie:pvt-cl-ssid",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Cookie", "pvt-fr-ssid=one; pvt-cl-ssid=two")
	resp, _ := do(t, app, req)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{"one", "two"}, calls)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "reject one")
}

func TestJWTWare_OtherRoleCookieIsIgnored(t *testing.T) {
	validator := &staticValidator{}
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		TokenLookup:    "cookie:pvt-fr-ssid",
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Cookie", "pvt-cl-ssid=good-client")
	resp, _ := do(t, app, req)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, validator.calls)
}

func TestJWTWare_InvalidToken(t *testing.T) {
	validator := &staticValidator{}
	var got error
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, _ := do(t, app, req)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.ErrorIs(t, got, errBadToken)
}

func TestJWTWare_RequiredRole(t *testing.T) {
	validator := &staticValidator{}
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		RequiredRole:   "client",
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-freelancer")
	resp, _ := do(t, app, req)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-client")
	resp, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTWare_AuthorizeHook(t *testing.T) {
	denied := errors.New("denied")
	app := newApp(jwtware.Config{
		TokenValidator: &staticValidator{},
		Authorize: func(c jwtware.AuthClaims) error {
			if c.SubjectID() == "u1" {
				return denied
			}
			return nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, denied) {
				return c.SendStatus(fiber.StatusTeapot)
			}
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-freelancer")
	resp, _ := do(t, app, req)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
}

func TestJWTWare_ContextEnricherAndListeners(t *testing.T) {
	var seen []string
	app := newApp(jwtware.Config{
		TokenValidator: &staticValidator{},
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			return context.WithValue(ctx, ctxKey{}, claims.Role())
		},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(_ *fiber.Ctx, claims jwtware.AuthClaims) error {
				seen = append(seen, claims.SubjectID())
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-client")
	resp, _ := do(t, app, req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "client", resp.Header.Get("X-Enriched"))
	assert.Equal(t, []string{"u2"}, seen)
}

func TestJWTWare_Filter(t *testing.T) {
	app := fiber.New()
	app.Get("/open", jwtware.New(jwtware.Config{
		TokenValidator: &staticValidator{},
		Filter:         func(*fiber.Ctx) bool { return true },
	}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestJWTWare_QueryLookup(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: &staticValidator{},
		TokenLookup:    "query:token",
	})

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/protected?token=good-client", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "u2", body)
}
