package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Options is the env backed Config implementation.
type Options struct {
	SigningMethod     string
	SigningKey        string
	PrivateKeyPath    string
	PublicKeyPath     string
	KeyID             string
	TokenExpiration   int
	PendingExpiration int
	Issuer            string
	Audience          []string
	CookiePrefix      string
	SecureCookies     bool
	AuthHeader        string
	AuthScheme        string
	LoginPath         string
	GuardRedirect     string
	RejectedRouteKey  string
	JWKSURL           string
}

var _ Config = Options{}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		SigningMethod:     "RS256",
		PrivateKeyPath:    "config/jwtRS256.key",
		PublicKeyPath:     "config/jwtRS256.key.pub",
		KeyID:             DefaultKeyID,
		TokenExpiration:   DefaultTokenExpiration,
		PendingExpiration: DefaultPendingExpiration,
		CookiePrefix:      DefaultCookiePrefix,
		SecureCookies:     true,
		AuthHeader:        "Authorization",
		AuthScheme:        "Bearer",
		LoginPath:         "/login",
		GuardRedirect:     DefaultGuardRedirect,
		RejectedRouteKey:  DefaultRejectedRouteKey,
	}
}

// LoadOptions reads AUTH_* variables, loading a .env file first when one
// exists. Unset variables keep their defaults.
func LoadOptions() (Options, error) {
	_ = godotenv.Load()

	o := DefaultOptions()

	o.SigningMethod = strings.ToUpper(getEnv("AUTH_SIGNING_METHOD", o.SigningMethod))
	o.SigningKey = getEnv("AUTH_SIGNING_KEY", o.SigningKey)
	o.PrivateKeyPath = getEnv("AUTH_PRIVATE_KEY_PATH", o.PrivateKeyPath)
	o.PublicKeyPath = getEnv("AUTH_PUBLIC_KEY_PATH", o.PublicKeyPath)
	o.KeyID = getEnv("AUTH_KEY_ID", o.KeyID)
	o.Issuer = getEnv("AUTH_ISSUER", o.Issuer)
	o.Audience = getEnvAsList("AUTH_AUDIENCE", o.Audience)
	o.CookiePrefix = getEnv("AUTH_COOKIE_PREFIX", o.CookiePrefix)
	o.AuthHeader = getEnv("AUTH_HEADER", o.AuthHeader)
	o.AuthScheme = getEnv("AUTH_SCHEME", o.AuthScheme)
	o.LoginPath = getEnv("AUTH_LOGIN_PATH", o.LoginPath)
	o.GuardRedirect = getEnv("AUTH_GUARD_REDIRECT", o.GuardRedirect)
	o.RejectedRouteKey = getEnv("AUTH_REJECTED_ROUTE_KEY", o.RejectedRouteKey)
	o.JWKSURL = getEnv("AUTH_JWKS_URL", o.JWKSURL)

	var err error
	if o.TokenExpiration, err = getEnvAsInt("AUTH_TOKEN_EXPIRATION_HOURS", o.TokenExpiration); err != nil {
		return o, err
	}
	if o.PendingExpiration, err = getEnvAsInt("AUTH_PENDING_EXPIRATION_HOURS", o.PendingExpiration); err != nil {
		return o, err
	}
	if o.SecureCookies, err = getEnvAsBool("AUTH_SECURE_COOKIES", o.SecureCookies); err != nil {
		return o, err
	}

	return o, o.Validate()
}

// Validate checks the combination of settings
func (o Options) Validate() error {
	switch o.SigningMethod {
	case "RS256":
		if o.PrivateKeyPath == "" && o.PublicKeyPath == "" {
			return fmt.Errorf("RS256 requires AUTH_PRIVATE_KEY_PATH or AUTH_PUBLIC_KEY_PATH")
		}
	case "HS256":
		if len(o.SigningKey) < 32 {
			return fmt.Errorf("HS256 requires AUTH_SIGNING_KEY of at least 32 bytes")
		}
	default:
		return fmt.Errorf("unsupported AUTH_SIGNING_METHOD %q", o.SigningMethod)
	}

	if o.TokenExpiration <= 0 || o.PendingExpiration <= 0 {
		return fmt.Errorf("token expirations must be positive")
	}

	return nil
}

func (o Options) GetSigningMethod() string  { return o.SigningMethod }
func (o Options) GetSigningKey() string     { return o.SigningKey }
func (o Options) GetPrivateKeyPath() string { return o.PrivateKeyPath }
func (o Options) GetPublicKeyPath() string  { return o.PublicKeyPath }
func (o Options) GetKeyID() string          { return o.KeyID }
func (o Options) GetTokenExpiration() int   { return o.TokenExpiration }
func (o Options) GetPendingExpiration() int { return o.PendingExpiration }
func (o Options) GetIssuer() string         { return o.Issuer }
func (o Options) GetAudience() []string     { return o.Audience }
func (o Options) GetCookiePrefix() string   { return o.CookiePrefix }
func (o Options) GetSecureCookies() bool    { return o.SecureCookies }
func (o Options) GetAuthHeader() string     { return o.AuthHeader }
func (o Options) GetAuthScheme() string     { return o.AuthScheme }
func (o Options) GetLoginPath() string      { return o.LoginPath }
func (o Options) GetGuardRedirect() string  { return o.GuardRedirect }
func (o Options) GetRejectedRouteKey() string {
	return o.RejectedRouteKey
}
func (o Options) GetJWKSURL() string { return o.JWKSURL }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvAsList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
