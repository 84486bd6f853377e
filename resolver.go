package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignInOutcome is the terminal state of a sign in attempt
type SignInOutcome string

const (
	OutcomeAuthenticated        SignInOutcome = "authenticated"
	OutcomeNotFound             SignInOutcome = "not-found"
	OutcomeUnverified           SignInOutcome = "unverified-account"
	OutcomePasswordMismatch     SignInOutcome = "password-mismatch"
	OutcomePendingRoleSelection SignInOutcome = "pending-role-selection"
)

// Code is the text code sent to clients
func (o SignInOutcome) Code() string {
	return string(o)
}

// IssuesCookie reports whether the outcome sets a session cookie
func (o SignInOutcome) IssuesCookie() bool {
	return o == OutcomeAuthenticated || o == OutcomePendingRoleSelection
}

// Err returns the taxonomy error for a failed outcome
func (o SignInOutcome) Err() error {
	switch o {
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeUnverified:
		return ErrUnverified
	case OutcomePasswordMismatch:
		return ErrPasswordMismatch
	case OutcomePendingRoleSelection:
		return ErrPendingRoleSelection
	default:
		return nil
	}
}

// SignInResult is the typed result of a sign in. Token and CookieName are
// only set when the outcome issues a cookie.
type SignInResult struct {
	Outcome     SignInOutcome
	Record      *CredentialRecord
	Claims      *IdentityClaims
	Token       string
	CookieName  string
	LandingPath string
	MaxAge      time.Duration
}

// RoleResolver runs the sign in state machine and the follow up role
// selection for pending accounts.
type RoleResolver struct {
	verifier  *CredentialVerifier
	tokens    TokenService
	namespace *CookieNamespace
	assigner  AccountTypeAssigner
	locker    IdentityLocker
	activity  ActivitySink
	logger    Logger
}

// ResolverOption configures a RoleResolver
type ResolverOption func(*RoleResolver)

// WithAccountTypeAssigner enables CompleteRoleSelection
func WithAccountTypeAssigner(a AccountTypeAssigner) ResolverOption {
	return func(r *RoleResolver) {
		r.assigner = a
	}
}

// WithIdentityLocker serializes concurrent sign ins per identifier
func WithIdentityLocker(l IdentityLocker) ResolverOption {
	return func(r *RoleResolver) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithActivitySink sets the sink for sign in events
func WithActivitySink(s ActivitySink) ResolverOption {
	return func(r *RoleResolver) {
		r.activity = normalizeActivitySink(s)
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(l Logger) ResolverOption {
	return func(r *RoleResolver) {
		r.logger = normalizeLogger(l)
	}
}

// NewRoleResolver wires a resolver. The namespace decides which cookie a
// resolved account type is stored under.
func NewRoleResolver(verifier *CredentialVerifier, tokens TokenService, ns *CookieNamespace, opts ...ResolverOption) *RoleResolver {
	if ns == nil {
		ns = NewCookieNamespace(DefaultCookiePrefix)
	}

	r := &RoleResolver{
		verifier:  verifier,
		tokens:    tokens,
		namespace: ns,
		locker:    NoopLocker{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Verifier returns the credential verifier used for lookups
func (r *RoleResolver) Verifier() *CredentialVerifier {
	return r.verifier
}

// Namespace returns the cookie namespace used by the resolver
func (r *RoleResolver) Namespace() *CookieNamespace {
	return r.namespace
}

// SignIn resolves identifier and password to an outcome. Only store and
// signing failures are returned as errors, every other result is a typed
// outcome.
//
// The checks run in order: lookup, verification, password, role. An
// unverified account is reported before the password is checked. Work
// after the lookup holds the lock of the resolved subject, so username and
// email sign ins for one account are serialized.
func (r *RoleResolver) SignIn(ctx context.Context, identifier, password string) (SignInResult, error) {
	record, err := r.verifier.Lookup(ctx, identifier)
	if err != nil {
		if IsAuthError(err, ErrNotFound) {
			return r.fail(ctx, identifier, nil, OutcomeNotFound), nil
		}
		r.logger.Error("sign in lookup failed", "error", err)
		return SignInResult{}, err
	}

	unlock, err := r.locker.Lock(ctx, LockKey(record.SubjectID))
	if err != nil {
		return SignInResult{}, fmt.Errorf("acquire sign in lock: %w", err)
	}
	defer unlock()

	if !record.IsVerified() {
		return r.fail(ctx, identifier, record, OutcomeUnverified), nil
	}

	if err := r.verifier.Compare(record, password); err != nil {
		if IsAuthError(err, ErrPasswordMismatch) {
			return r.fail(ctx, identifier, record, OutcomePasswordMismatch), nil
		}
		r.logger.Error("sign in password check failed", "error", err)
		return SignInResult{}, err
	}

	if record.IsPending() {
		return r.pending(ctx, record)
	}

	return r.authenticated(ctx, record, ActivityEventSignInSuccess)
}

// CompleteRoleSelection writes the chosen account type of a pending
// subject and opens a full session for it. The write happens once, a
// second selection fails with ErrAccountTypeAlreadySet.
func (r *RoleResolver) CompleteRoleSelection(ctx context.Context, subjectID string, accountType AccountType) (SignInResult, error) {
	if r.assigner == nil {
		return SignInResult{}, fmt.Errorf("role selection requires an account type assigner")
	}

	if !accountType.IsSelectable() {
		return SignInResult{}, withMeta(ErrInvalidAccountType, map[string]any{
			"account": string(accountType),
		})
	}

	record, err := r.assigner.AssignAccountType(ctx, subjectID, accountType)
	if err != nil {
		return SignInResult{}, err
	}

	return r.authenticated(ctx, record, ActivityEventAccountSetup)
}

// SignOut records the end of the session carried by token. Tokens that no
// longer verify are ignored, logging out always succeeds.
func (r *RoleResolver) SignOut(ctx context.Context, token string) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType:   ActivityEventLogout,
		SubjectID:   claims.SubjectID(),
		AccountType: claims.Account,
	})
}

func (r *RoleResolver) authenticated(ctx context.Context, record *CredentialRecord, event ActivityEventType) (SignInResult, error) {
	at := record.Account()
	cookieName, ok := r.namespace.CookieFor(at)
	if !ok {
		return SignInResult{}, withMeta(ErrInvalidClaims, map[string]any{
			"account": string(at),
		})
	}

	claims := &IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: record.SubjectID},
		UID:              record.SubjectID,
		Account:          at,
		Username:         record.Username,
	}

	token, err := r.tokens.Sign(claims)
	if err != nil {
		return SignInResult{}, err
	}
	if signed, ok := r.tokens.Decode(token); ok {
		claims = signed
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType:   event,
		SubjectID:   record.SubjectID,
		AccountType: at,
		Metadata:    map[string]any{"source": record.Source},
	})

	return SignInResult{
		Outcome:     OutcomeAuthenticated,
		Record:      record,
		Claims:      claims,
		Token:       token,
		CookieName:  cookieName,
		LandingPath: r.namespace.LandingPath(at, record.Username),
		MaxAge:      r.tokens.TTL(),
	}, nil
}

func (r *RoleResolver) pending(ctx context.Context, record *CredentialRecord) (SignInResult, error) {
	token, err := r.tokens.SignPending(record.SubjectID, record.Username)
	if err != nil {
		return SignInResult{}, err
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventSignInPending,
		SubjectID: record.SubjectID,
	})

	return SignInResult{
		Outcome:     OutcomePendingRoleSelection,
		Record:      record,
		Token:       token,
		CookieName:  r.namespace.PendingCookie(),
		LandingPath: r.namespace.SetupPath(record.Username),
		MaxAge:      r.tokens.PendingTTL(),
	}, nil
}

func (r *RoleResolver) fail(ctx context.Context, identifier string, record *CredentialRecord, outcome SignInOutcome) SignInResult {
	event := ActivityEvent{
		EventType:  ActivityEventSignInFailure,
		Identifier: identifier,
		Reason:     outcome.Code(),
	}
	if record != nil {
		event.SubjectID = record.SubjectID
	}
	recordActivity(ctx, r.activity, r.logger, event)

	return SignInResult{Outcome: outcome, Record: record}
}
