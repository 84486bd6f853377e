package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/pivot-market/pivot-auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// MockCredentialSource implements auth.CredentialSource
type MockCredentialSource struct {
	mock.Mock
	name string
}

func (m *MockCredentialSource) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *MockCredentialSource) FindByIdentifier(ctx context.Context, identifier string) (*auth.CredentialRecord, error) {
	args := m.Called(ctx, identifier)
	rec, _ := args.Get(0).(*auth.CredentialRecord)
	return rec, args.Error(1)
}

// MockAssigner implements auth.AccountTypeAssigner
type MockAssigner struct {
	mock.Mock
}

func (m *MockAssigner) AssignAccountType(ctx context.Context, subjectID string, at auth.AccountType) (*auth.CredentialRecord, error) {
	args := m.Called(ctx, subjectID, at)
	rec, _ := args.Get(0).(*auth.CredentialRecord)
	return rec, args.Error(1)
}

// MockMailer implements auth.VerificationMailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerification(ctx context.Context, record *auth.CredentialRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockLogger implements auth.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.Called(msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.Called(msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.Called(msg, args) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// memorySource is a map backed CredentialSource that also assigns account
// types, enough to drive the resolver end to end.
type memorySource struct {
	mu      sync.Mutex
	name    string
	records map[string]*auth.CredentialRecord
}

func newMemorySource(name string, records ...*auth.CredentialRecord) *memorySource {
	s := &memorySource{name: name, records: map[string]*auth.CredentialRecord{}}
	for _, r := range records {
		s.records[r.SubjectID] = r
	}
	return s
}

func (s *memorySource) Name() string { return s.name }

func (s *memorySource) FindByIdentifier(_ context.Context, identifier string) (*auth.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Username == identifier || strings.EqualFold(r.Email, identifier) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memorySource) AssignAccountType(_ context.Context, subjectID string, at auth.AccountType) (*auth.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[subjectID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if !r.IsPending() {
		return nil, auth.ErrAccountTypeAlreadySet
	}
	r.AccountType = &at
	cp := *r
	return &cp, nil
}

func accountPtr(at auth.AccountType) *auth.AccountType { return &at }

var (
	hashOnce sync.Once
	testHash string
)

// passwordHash is computed once, bcrypt is slow.
func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.BcryptAuthenticator{Cost: 4}.HashPassword("s3cret-pass")
		if err != nil {
			panic(fmt.Sprintf("hash: %v", err))
		}
		testHash = h
	})
	return testHash
}

func testRecord(t *testing.T, id, username string, at *auth.AccountType, verified bool) *auth.CredentialRecord {
	status := auth.StatusUnverified
	if verified {
		status = auth.StatusVerified
	}
	return &auth.CredentialRecord{
		SubjectID:    id,
		Username:     username,
		Email:        username + "@pivot.test",
		PasswordHash: passwordHash(t),
		AccountType:  at,
		Verified:     status,
	}
}

func testOptions() auth.Options {
	opts := auth.DefaultOptions()
	opts.SigningMethod = "HS256"
	opts.SigningKey = testSecret
	opts.SecureCookies = false
	return opts
}

func newTestTokenService(t *testing.T, now func() time.Time) *auth.TokenServiceImpl {
	t.Helper()
	keys, err := auth.NewHMACKeyMaterial([]byte(testSecret), "test")
	require.NoError(t, err)

	var opts []auth.TokenServiceOption
	if now != nil {
		opts = append(opts, auth.WithClock(now))
	}
	ts, err := auth.NewTokenService(keys, testOptions(), nopLogger{}, opts...)
	require.NoError(t, err)
	return ts
}
