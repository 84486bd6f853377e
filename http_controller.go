package auth

import (
	"errors"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// RegisterAuthRoutes mounts the controller on app. Routes are relative to
// the router they are registered on, except the well known JWKS path.
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	group := app.Group(controller.Routes.Prefix)

	group.Post(controller.Routes.SignIn, controller.SignIn).Name("auth.sign-in")
	group.Get(controller.Routes.Logout, controller.LogOut).Name("auth.sign-out.get")
	group.Post(controller.Routes.Logout, controller.LogOut).Name("auth.sign-out.post")
	group.Post(controller.Routes.AccountSetup, controller.Guards.PendingSetup(), controller.AccountSetup).
		Name("auth.account-setup")
	group.Post(controller.Routes.ResendVerification, controller.ResendVerification).
		Name("auth.resend-verification")
	group.Get(controller.Routes.Session, controller.Guards.Authenticated(), controller.Session).
		Name("auth.session")

	if controller.Keys != nil {
		app.Get(controller.Routes.JWKS, JWKSHandler(controller.Keys)).Name("auth.jwks")
	}
}

type AuthControllerRoutes struct {
	Prefix             string
	SignIn             string
	Logout             string
	AccountSetup       string
	ResendVerification string
	Session            string
	JWKS               string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Routes       *AuthControllerRoutes
	Resolver     *RoleResolver
	Sessions     *SessionIssuer
	Guards       *Guards
	Keys         *KeyMaterial
	Mailer       VerificationMailer
	LoginPath    string
	LogoutPath   string
	ErrorHandler fiber.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

// WithVerificationMailer sets the collaborator used to resend verification
func WithVerificationMailer(m VerificationMailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = m
		return c
	}
}

// WithKeyMaterial publishes the public keys at the JWKS route
func WithKeyMaterial(k *KeyMaterial) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Keys = k
		return c
	}
}

// WithControllerConfig applies login path settings
func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if cfg != nil && cfg.GetLoginPath() != "" {
			c.LoginPath = cfg.GetLoginPath()
		}
		return c
	}
}

// WithDebug dumps sign in payloads, without passwords, to the logger
func WithDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(resolver *RoleResolver, sessions *SessionIssuer, guards *Guards, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:     defLogger{},
		Resolver:   resolver,
		Sessions:   sessions,
		Guards:     guards,
		LoginPath:  "/login",
		LogoutPath: "/",
		Routes: &AuthControllerRoutes{
			Prefix:             "/auth",
			SignIn:             "/signin",
			Logout:             "/logout",
			AccountSetup:       "/account-setup",
			ResendVerification: "/resend-verification",
			Session:            "/session",
			JWKS:               "/.well-known/jwks.json",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Resolver == nil {
		panic("Missing RoleResolver in auth controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in auth controller...")
	}

	if c.Guards == nil {
		panic("Missing Guards in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrHandler
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			validation.Length(1, 254),
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(1, 200),
		),
	)
}

// SignIn runs the sign in state machine. Browsers are redirected, programmatic
// clients get JSON.
func (a *AuthController) SignIn(c *fiber.Ctx) error {
	programmatic := IsProgrammatic(c)
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Warn("sign in parse payload", "error", err)
		return a.signInRejected(c, programmatic, fiber.StatusBadRequest, "invalid-payload", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.signInRejected(c, programmatic, fiber.StatusBadRequest, "invalid-payload", FormatValidationErrorToMap(err))
	}

	if a.Debug {
		a.Logger.Debug("sign in payload", "payload", print.MaybePrettyJSON(map[string]any{
			"identifier": payload.Identifier,
			"redirect":   c.Query("redirect"),
		}))
	}

	res, err := a.Resolver.SignIn(c.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	switch res.Outcome {
	case OutcomeAuthenticated:
		a.Sessions.IssueResult(c, res)

		target := res.LandingPath
		if r := c.Query("redirect"); IsLocalRedirect(r) {
			target = r
		} else {
			target = a.Sessions.GetRedirect(c, target)
		}

		if programmatic {
			return c.JSON(fiber.Map{
				"message":  res.Outcome.Code(),
				"username": res.Record.Username,
				"account":  res.Claims.AccountType(),
				"path":     target,
			})
		}
		return c.Redirect(target, fiber.StatusSeeOther)

	case OutcomePendingRoleSelection:
		a.Sessions.IssueResult(c, res)

		if programmatic {
			return c.JSON(fiber.Map{
				"message": res.Outcome.Code(),
				"path":    res.LandingPath,
			})
		}
		return c.Redirect(res.LandingPath, fiber.StatusSeeOther)

	case OutcomeUnverified:
		if programmatic {
			return c.JSON(fiber.Map{
				"error":    res.Outcome.Code(),
				"username": res.Record.Username,
			})
		}
		return c.Redirect(a.loginURL(res.Outcome.Code()), fiber.StatusSeeOther)

	default:
		return a.signInRejected(c, programmatic, fiber.StatusUnauthorized, res.Outcome.Code(), nil)
	}
}

func (a *AuthController) signInRejected(c *fiber.Ctx, programmatic bool, status int, code string, fields map[string]string) error {
	if programmatic {
		body := fiber.Map{"message": "error", "error": code}
		if len(fields) > 0 {
			body["validation"] = fields
		}
		return c.Status(status).JSON(body)
	}
	return c.Redirect(a.loginURL(code), fiber.StatusSeeOther)
}

func (a *AuthController) loginURL(reason string) string {
	return a.LoginPath + "?reason=" + url.QueryEscape(reason)
}

// LogOut clears every session cookie
func (a *AuthController) LogOut(c *fiber.Ctx) error {
	for _, name := range a.Sessions.namespace.Names() {
		if token := c.Cookies(name); token != "" {
			a.Resolver.SignOut(c.UserContext(), token)
			break
		}
	}

	a.Sessions.Logout(c)

	if IsProgrammatic(c) {
		return c.JSON(fiber.Map{"message": "signed-out"})
	}
	return c.Redirect(a.LogoutPath, fiber.StatusSeeOther)
}

// AccountSetupRequest is sent by a pending user picking a role
type AccountSetupRequest struct {
	AccountType string `form:"account_type" json:"account_type"`
}

// Validate will run validation rules
func selectableAccountValues() []any {
	types := SelectableAccountTypes()
	out := make([]any, 0, len(types))
	for _, at := range types {
		out = append(out, string(at))
	}
	return out
}

func (r AccountSetupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.AccountType,
			validation.Required,
			validation.In(selectableAccountValues()...),
		),
	)
}

// AccountSetup completes role selection for a pending session
func (a *AuthController) AccountSetup(c *fiber.Ctx) error {
	claims, ok := ClaimsFromFiber(c)
	if !ok {
		return a.ErrorHandler(c, ErrMissingCredential)
	}

	payload := new(AccountSetupRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.ErrorHandler(c, wrapAuthError(ErrInvalidAccountType, err))
	}
	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(c, withMeta(ErrInvalidAccountType, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	res, err := a.Resolver.CompleteRoleSelection(c.UserContext(), claims.SubjectID(), AccountType(payload.AccountType))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	a.Sessions.IssueResult(c, res)

	if IsProgrammatic(c) {
		return c.JSON(fiber.Map{
			"message":  res.Outcome.Code(),
			"username": res.Record.Username,
			"account":  res.Claims.AccountType(),
			"path":     res.LandingPath,
		})
	}
	return c.Redirect(res.LandingPath, fiber.StatusSeeOther)
}

// ResendVerificationRequest asks for a new verification email
type ResendVerificationRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
	)
}

// ResendVerification hands unverified records to the mailer. The response
// is the same whether or not the address is known.
func (a *AuthController) ResendVerification(c *fiber.Ctx) error {
	payload := new(ResendVerificationRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "error", "error": "invalid-payload"})
	}
	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message":    "error",
			"error":      "invalid-payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	accepted := fiber.Map{"message": "verification-sent"}
	if a.Mailer == nil {
		a.Logger.Warn("resend verification requested without a mailer")
		return c.Status(fiber.StatusAccepted).JSON(accepted)
	}

	record, err := a.Resolver.Verifier().Lookup(c.UserContext(), payload.Email)
	if err != nil {
		if IsAuthError(err, ErrNotFound) {
			return c.Status(fiber.StatusAccepted).JSON(accepted)
		}
		return a.ErrorHandler(c, err)
	}

	if !record.IsVerified() {
		if err := a.Mailer.SendVerification(c.UserContext(), record); err != nil {
			a.Logger.Error("resend verification failed", "subject", record.SubjectID, "error", err)
			return a.ErrorHandler(c, err)
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(accepted)
}

// Session describes the current session. It is meant for diagnostics.
func (a *AuthController) Session(c *fiber.Ctx) error {
	claims, ok := ClaimsFromFiber(c)
	if !ok {
		return a.ErrorHandler(c, ErrMissingCredential)
	}

	return c.JSON(fiber.Map{
		"subject":    claims.SubjectID(),
		"username":   claims.Username,
		"account":    claims.AccountType(),
		"issued_at":  claims.IssuedAt(),
		"expires_at": claims.Expires(),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors by field
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["form"] = err.Error()
	}
	return out
}

func (a *AuthController) defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected error occurred").
			WithTextCode(TextCodeInternal).
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Error("auth controller error",
		"error", err,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	if IsProgrammatic(c) {
		body := fiber.Map{"message": "error", "error": richErr.TextCode}
		if v, ok := richErr.Metadata["validation"]; ok {
			body["validation"] = v
		}
		return c.Status(HTTPStatus(richErr)).JSON(body)
	}

	return c.Redirect(a.loginURL(richErr.TextCode), fiber.StatusSeeOther)
}
