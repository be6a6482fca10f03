package accounts_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	accounts "github.com/goliatone/go-accounts"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}

func (testLogger) Info(string, ...any) {}

func (testLogger) Warn(string, ...any) {}

func (testLogger) Error(string, ...any) {}

// testConfig implements accounts.Config with deterministic values.
type testConfig struct {
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey: "test-signing-key",
		accessTTL:  15 * time.Minute,
		refreshTTL: 24 * time.Hour,
	}
}

func (c testConfig) GetSigningKey() string { return c.signingKey }

func (c testConfig) GetAccessTokenTTL() time.Duration { return c.accessTTL }

func (c testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }

func (c testConfig) GetIssuer() string { return "accounts-test" }

func (c testConfig) GetAudience() []string { return []string{"accounts-test"} }

func (c testConfig) GetFrontendDomain() string { return "http://localhost:8080" }

func (c testConfig) GetEmailFrom() string { return "no-reply@test.local" }

// MockUserTracker implements accounts.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*accounts.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockIdentityProvider implements accounts.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(accounts.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(accounts.Identity)
	return identity, args.Error(1)
}

// TestIdentity is a plain Identity value for authenticator tests.
type TestIdentity struct {
	id     string
	email  string
	status accounts.UserStatus
}

func (t TestIdentity) ID() string                  { return t.id }
func (t TestIdentity) Email() string               { return t.email }
func (t TestIdentity) Status() accounts.UserStatus { return t.status }

// fakeUsers is an in memory Users repository. Methods the flows under
// test never reach stay on the embedded interface and panic if hit.
type fakeUsers struct {
	accounts.Users

	mu      sync.Mutex
	records map[uuid.UUID]*accounts.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{records: map[uuid.UUID]*accounts.User{}}
}

func (f *fakeUsers) add(user *accounts.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[user.ID] = user
}

func (f *fakeUsers) snapshot(id uuid.UUID) *accounts.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.records[id]; ok {
		clone := *u
		return &clone
	}
	return nil
}

func (f *fakeUsers) find(identifier string) *accounts.User {
	if id, err := uuid.Parse(identifier); err == nil {
		if u, ok := f.records[id]; ok {
			return u
		}
	}

	for _, u := range f.records {
		if u.Email == identifier {
			return u
		}
	}

	return nil
}

func (f *fakeUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	return f.GetByIdentifierTx(ctx, nil, identifier, criteria...)
}

func (f *fakeUsers) GetByIdentifierTx(_ context.Context, _ bun.IDB, identifier string, _ ...repository.SelectCriteria) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u := f.find(identifier); u != nil {
		clone := *u
		return &clone, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{"identifier": identifier})
}

func (f *fakeUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	return f.GetByIdentifierTx(ctx, nil, id, criteria...)
}

func (f *fakeUsers) CreateTx(_ context.Context, _ bun.IDB, record *accounts.User, _ ...repository.InsertCriteria) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	for _, u := range f.records {
		if u.Email == record.Email {
			return nil, fmt.Errorf("UNIQUE constraint failed: users.email")
		}
	}

	clone := *record
	f.records[record.ID] = &clone

	return record, nil
}

func (f *fakeUsers) Register(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	return f.CreateTx(ctx, nil, user)
}

func (f *fakeUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	return f.CreateTx(ctx, tx, user)
}

func (f *fakeUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) (*accounts.User, error) {
	return f.SetActiveTx(ctx, nil, id, active)
}

func (f *fakeUsers) SetActiveTx(_ context.Context, _ bun.IDB, id uuid.UUID, active bool) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	u.Active = active
	clone := *u

	return &clone, nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return f.UpdatePasswordTx(ctx, nil, id, passwordHash)
}

func (f *fakeUsers) UpdatePasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.PasswordHash = passwordHash

	return nil
}

func (f *fakeUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return f.ResetPasswordTx(ctx, nil, id, passwordHash)
}

func (f *fakeUsers) ResetPasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.records[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	u.PasswordHash = passwordHash
	u.Active = true

	return nil
}

func (f *fakeUsers) TrackAttemptedLogin(_ context.Context, user *accounts.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.records[user.ID]; ok {
		u.LoginAttempts++
		now := time.Now()
		u.LoginAttemptAt = &now
	}

	return nil
}

func (f *fakeUsers) TrackSuccessfulLogin(_ context.Context, user *accounts.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.records[user.ID]; ok {
		u.LoginAttempts = 0
		u.LoginAttemptAt = nil
		now := time.Now()
		u.LastLoginAt = &now
	}

	return nil
}

// fakeRepo is the RepositoryManager over fakeUsers. RunInTx invokes the
// callback directly since the fake store has no transactions.
type fakeRepo struct {
	users *fakeUsers
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: newFakeUsers()}
}

func (f *fakeRepo) Users() accounts.Users { return f.users }
func (f *fakeRepo) Validate() error       { return nil }
func (f *fakeRepo) MustValidate()         {}

func (f *fakeRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

// outboxMailer captures messages for assertions. Delivery happens on a
// background worker, so tests poll with wait instead of reading the
// slice directly.
type outboxMessage struct {
	To      string
	Subject string
	Body    string
}

type outboxMailer struct {
	mu       sync.Mutex
	messages []outboxMessage
}

func (o *outboxMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.messages = append(o.messages, outboxMessage{To: to, Subject: subject, Body: htmlBody})

	return nil
}

func (o *outboxMailer) wait(count int, timeout time.Duration) []outboxMessage {
	deadline := time.Now().Add(timeout)

	for {
		o.mu.Lock()
		if len(o.messages) >= count {
			out := make([]outboxMessage, len(o.messages))
			copy(out, o.messages)
			o.mu.Unlock()
			return out
		}
		o.mu.Unlock()

		if time.Now().After(deadline) {
			return nil
		}

		time.Sleep(5 * time.Millisecond)
	}
}
