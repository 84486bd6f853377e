package auth_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/pivot-market/pivot-auth"
	"github.com/pivot-market/pivot-auth/middleware/jwtware"
)

type guardFixture struct {
	app    *fiber.App
	tokens *auth.TokenServiceImpl
	guards *auth.Guards
}

func newGuardFixture(t *testing.T) guardFixture {
	t.Helper()

	tokens := newTestTokenService(t, nil)
	ns := auth.NewCookieNamespace("pvt")
	opts := testOptions()
	sessions := auth.NewSessionIssuer(ns, opts, nopLogger{})
	guards := auth.NewGuards(tokens, ns, sessions, opts, nopLogger{})

	app := fiber.New()
	handler := func(c *fiber.Ctx) error {
		claims, ok := auth.ClaimsFromFiber(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		ctxClaims, ok := auth.GetClaims(c.UserContext())
		if !ok || ctxClaims.SubjectID() != claims.SubjectID() {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"subject": claims.SubjectID(), "account": claims.AccountType()})
	}

	app.Get("/:username/dashboard", guards.Require(auth.AccountFreelancer), handler)
	app.Get("/:username/account", guards.Require(auth.AccountClient), handler)
	app.Get("/admin", guards.Require(auth.AccountAdmin), handler)
	app.Post("/admin/users", guards.Require(auth.AccountAdmin), handler)
	app.Get("/me", guards.Authenticated(), handler)
	app.Get("/setup", guards.PendingSetup(), handler)

	return guardFixture{app: app, tokens: tokens, guards: guards}
}

func (f guardFixture) sign(t *testing.T, at auth.AccountType) string {
	t.Helper()
	token, err := f.tokens.Sign(&auth.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-" + string(at)},
		Account:          at,
		Username:         "ana",
	})
	require.NoError(t, err)
	return token
}

func jsonRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	return req
}

func TestGuards_OwnCookieAdmits(t *testing.T) {
	fx := newGuardFixture(t)

	tests := []struct {
		path   string
		cookie string
		at     auth.AccountType
	}{
		{"/ana/dashboard", "pvt-fr-ssid", auth.AccountFreelancer},
		{"/ana/account", "pvt-cl-ssid", auth.AccountClient},
		{"/admin", "pvt-adm-ssid", auth.AccountAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := jsonRequest(fiber.MethodGet, tt.path)
			req.AddCookie(&http.Cookie{Name: tt.cookie, Value: fx.sign(t, tt.at)})

			resp, err := fx.app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, string(tt.at), body["account"])
		})
	}
}

func TestGuards_NamespaceIsolation(t *testing.T) {
	fx := newGuardFixture(t)

	t.Run("client cookie on freelancer route", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/ana/dashboard")
		req.AddCookie(&http.Cookie{Name: "pvt-cl-ssid", Value: fx.sign(t, auth.AccountClient)})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("client token copied into freelancer cookie", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/ana/dashboard")
		req.AddCookie(&http.Cookie{Name: "pvt-fr-ssid", Value: fx.sign(t, auth.AccountClient)})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin cookie does not open client area", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/ana/account")
		req.AddCookie(&http.Cookie{Name: "pvt-adm-ssid", Value: fx.sign(t, auth.AccountAdmin)})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestGuards_HeaderFallback(t *testing.T) {
	fx := newGuardFixture(t)

	req := jsonRequest(fiber.MethodGet, "/admin")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+fx.sign(t, auth.AccountAdmin))

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	t.Run("wrong role in header", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/admin")
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+fx.sign(t, auth.AccountClient))

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/admin")
		req.Header.Set(fiber.HeaderAuthorization, "Token "+fx.sign(t, auth.AccountAdmin))

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestGuards_ExpiredAndMalformed(t *testing.T) {
	fx := newGuardFixture(t)

	expired, err := fx.tokens.Sign(&auth.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Account: auth.AccountFreelancer,
	})
	require.NoError(t, err)

	for name, value := range map[string]string{
		"expired":   expired,
		"malformed": "abc.def.ghi",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			req := jsonRequest(fiber.MethodGet, "/ana/dashboard")
			req.AddCookie(&http.Cookie{Name: "pvt-fr-ssid", Value: value})

			resp, err := fx.app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			assert.JSONEq(t, `{"error":"forbidden"}`, string(body))
		})
	}
}

func TestGuards_BrowserRedirect(t *testing.T) {
	fx := newGuardFixture(t)

	resp, err := fx.app.Test(httptest.NewRequest(fiber.MethodGet, "/ana/dashboard?tab=jobs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, auth.DefaultGuardRedirect, resp.Header.Get(fiber.HeaderLocation))

	var remembered *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultRejectedRouteKey {
			remembered = c
		}
	}
	require.NotNil(t, remembered)
	assert.Equal(t, "/ana/dashboard?tab=jobs", remembered.Value)

	t.Run("post is not remembered", func(t *testing.T) {
		resp, err := fx.app.Test(httptest.NewRequest(fiber.MethodPost, "/admin/users", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusMovedPermanently, resp.StatusCode)
		for _, c := range resp.Cookies() {
			assert.NotEqual(t, auth.DefaultRejectedRouteKey, c.Name)
		}
	})

	t.Run("xhr gets json", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodGet, "/ana/dashboard", nil)
		req.Header.Set(fiber.HeaderXRequestedWith, "XMLHttpRequest")

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestGuards_AuthenticatedAndPending(t *testing.T) {
	fx := newGuardFixture(t)

	pending, err := fx.tokens.SignPending("pe-1", "newbie")
	require.NoError(t, err)

	t.Run("any role cookie opens authenticated", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/me")
		req.AddCookie(&http.Cookie{Name: "pvt-cl-ssid", Value: fx.sign(t, auth.AccountClient)})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("expired cookie does not hide a valid one", func(t *testing.T) {
		expired, err := fx.tokens.Sign(&auth.IdentityClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "sub-freelancer",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
			Account: auth.AccountFreelancer,
		})
		require.NoError(t, err)

		req := jsonRequest(fiber.MethodGet, "/me")
		req.AddCookie(&http.Cookie{Name: "pvt-fr-ssid", Value: expired})
		req.AddCookie(&http.Cookie{Name: "pvt-cl-ssid", Value: fx.sign(t, auth.AccountClient)})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "sub-client", body["subject"])
		assert.Equal(t, string(auth.AccountClient), body["account"])
	})

	t.Run("only stale cookies are rejected", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/me")
		req.AddCookie(&http.Cookie{Name: "pvt-fr-ssid", Value: "abc.def.ghi"})
		req.AddCookie(&http.Cookie{Name: "pvt-adm-ssid", Value: "abc.def.ghi"})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("pending token is not a session", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/me")
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pending)

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("pending cookie opens setup", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/setup")
		req.AddCookie(&http.Cookie{Name: "pvt-profile", Value: pending})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("full session cannot use setup", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/setup")
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+fx.sign(t, auth.AccountClient))

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("pending token in role cookie", func(t *testing.T) {
		req := jsonRequest(fiber.MethodGet, "/ana/dashboard")
		req.AddCookie(&http.Cookie{Name: "pvt-fr-ssid", Value: pending})

		resp, err := fx.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestGuards_CustomRejection(t *testing.T) {
	fx := newGuardFixture(t)

	var got *goerrors.Error
	fx.guards.OnReject = func(c *fiber.Ctx, err *goerrors.Error) error {
		got = err
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	app := fiber.New()
	app.Get("/admin", fx.guards.Require(auth.AccountAdmin), func(c *fiber.Ctx) error { return nil })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/admin", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, got)
	assert.Equal(t, auth.TextCodeMissingCredential, got.TextCode)
	assert.Equal(t, goerrors.CategoryAuth, got.Category)
	assert.Equal(t, fiber.StatusUnauthorized, auth.HTTPStatus(got))
}

func TestGuards_RequireUnknownAccountType(t *testing.T) {
	fx := newGuardFixture(t)
	assert.Panics(t, func() {
		fx.guards.Require(auth.AccountType("owner"))
	})
}

func TestGuards_ValidationListeners(t *testing.T) {
	tokens := newTestTokenService(t, nil)
	ns := auth.NewCookieNamespace("pvt")
	guards := auth.NewGuards(tokens, ns, nil, testOptions(), nopLogger{})

	revoked := map[string]bool{"sub-client": true}
	guards.OnValidated(func(c *fiber.Ctx, claims jwtware.AuthClaims) error {
		if revoked[claims.SubjectID()] {
			return auth.ErrMalformedToken.Clone().WithMetadata(map[string]any{"revoked": true})
		}
		return nil
	})

	app := fiber.New()
	app.Get("/me", guards.Authenticated(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	fx := guardFixture{tokens: tokens}

	req := jsonRequest(fiber.MethodGet, "/me")
	req.AddCookie(&http.Cookie{Name: "pvt-cl-ssid", Value: fx.sign(t, auth.AccountClient)})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = jsonRequest(fiber.MethodGet, "/me")
	req.AddCookie(&http.Cookie{Name: "pvt-fr-ssid", Value: fx.sign(t, auth.AccountFreelancer)})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
