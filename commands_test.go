package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, outbox *outboxMailer, verifier *accounts.Verifier) (*accounts.AccountNotifier, *accounts.MailDispatcher) {
	t.Helper()

	dispatcher := accounts.NewMailDispatcher(outbox, accounts.WithMailDispatcherLogger(testLogger{}))
	t.Cleanup(dispatcher.Close)

	notifier := accounts.NewAccountNotifier(verifier, dispatcher, newTestConfig(), "templates").
		WithLogger(testLogger{})
	require.NoError(t, notifier.Load())

	return notifier, dispatcher
}

func TestRegisterUserCreatesPendingAccount(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	outbox := &outboxMailer{}
	verifier := accounts.NewVerifier([]byte("secret"))
	notifier, _ := newTestNotifier(t, outbox, verifier)

	var created *accounts.User
	handler := accounts.NewRegisterUserHandler(repo, notifier).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		FirstName:       "Peyton",
		LastName:        "Reed",
		Email:           "Peyton@Example.com",
		Phone:           "1",
		Password:        "sup3r-secret",
		PasswordConfirm: "sup3r-secret",
		OnResponse:      func(u *accounts.User) { created = u },
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.False(t, created.Active, "accounts start pending until the activation link is used")
	assert.Equal(t, "peyton@example.com", created.Email)
	assert.Equal(t, "1", created.Phone, "unparseable phone numbers are stored as provided")
	assert.NotEqual(t, "sup3r-secret", created.PasswordHash)
	assert.NoError(t, accounts.ComparePasswordAndHash("sup3r-secret", created.PasswordHash))

	messages := outbox.wait(1, time.Second)
	require.Len(t, messages, 1)
	assert.Equal(t, "peyton@example.com", messages[0].To)
	assert.Equal(t, "Activate your account", messages[0].Subject)
	assert.Contains(t, messages[0].Body, "/auth/activate-user/")
}

func TestRegisterUserNormalizesPhone(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	var created *accounts.User
	handler := accounts.NewRegisterUserHandler(repo, nil).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		Email:           "peyton@example.com",
		Phone:           "(212) 555-0123",
		Password:        "sup3r-secret",
		PasswordConfirm: "sup3r-secret",
		OnResponse:      func(u *accounts.User) { created = u },
	})
	require.NoError(t, err)
	assert.Equal(t, "+12125550123", created.Phone)
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.users.add(&accounts.User{ID: uuid.New(), Email: "peyton@example.com"})

	handler := accounts.NewRegisterUserHandler(repo, nil).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		Email:           "peyton@example.com",
		Password:        "sup3r-secret",
		PasswordConfirm: "sup3r-secret",
	})
	assert.ErrorIs(t, err, accounts.ErrEmailRegistered)
}

func TestRegisterUserPasswordChecks(t *testing.T) {
	ctx := context.Background()
	handler := accounts.NewRegisterUserHandler(newFakeRepo(), nil).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		Email:           "peyton@example.com",
		Password:        "sup3r-secret",
		PasswordConfirm: "different",
	})
	assert.ErrorIs(t, err, accounts.ErrPasswordMismatch)

	err = handler.Execute(ctx, accounts.RegisterUserMessage{
		Email:           "peyton@example.com",
		Password:        "short",
		PasswordConfirm: "short",
	})
	assert.ErrorIs(t, err, accounts.ErrPasswordTooWeak)
}

func TestActivateUserFlipsFlag(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", Active: false}
	repo.users.add(user)

	verifier := accounts.NewVerifier([]byte("secret"))
	codec := accounts.TokenCodec{}

	handler := accounts.NewActivateUserHandler(repo, verifier).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.ActivateUserMessage{
		UID:   codec.EncodeString(user.ID.String()),
		Token: verifier.Composite(user),
	})
	require.NoError(t, err)

	assert.True(t, repo.users.snapshot(user.ID).Active)
}

func TestActivateUserConsumedTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", Active: false}
	repo.users.add(user)

	verifier := accounts.NewVerifier([]byte("secret"))
	codec := accounts.TokenCodec{}

	handler := accounts.NewActivateUserHandler(repo, verifier).WithLogger(testLogger{})

	msg := accounts.ActivateUserMessage{
		UID:   codec.EncodeString(user.ID.String()),
		Token: verifier.Composite(user),
	}

	require.NoError(t, handler.Execute(ctx, msg))

	// the signature was bound to the inactive state, so the same link
	// no longer validates
	err := handler.Execute(ctx, msg)
	assert.ErrorIs(t, err, accounts.ErrTokenInvalid)
}

func TestActivateUserExpiredLink(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", Active: false}
	repo.users.add(user)

	issued := time.Now().Add(-accounts.VerificationTokenTTL - time.Hour)
	stale := accounts.NewVerifier([]byte("secret"),
		accounts.WithVerifierClock(func() time.Time { return issued }),
	)
	token := stale.Composite(user)

	codec := accounts.TokenCodec{}
	handler := accounts.NewActivateUserHandler(repo, accounts.NewVerifier([]byte("secret"))).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.ActivateUserMessage{
		UID:   codec.EncodeString(user.ID.String()),
		Token: token,
	})
	assert.ErrorIs(t, err, accounts.ErrTokenExpired)
	assert.False(t, repo.users.snapshot(user.ID).Active)
}

func TestActivateUserBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	verifier := accounts.NewVerifier([]byte("secret"))
	codec := accounts.TokenCodec{}
	handler := accounts.NewActivateUserHandler(repo, verifier).WithLogger(testLogger{})

	// undecodable uid
	err := handler.Execute(ctx, accounts.ActivateUserMessage{UID: "%%%", Token: "x_y"})
	assert.ErrorIs(t, err, accounts.ErrTokenInvalid)

	// well formed uid for a user that does not exist
	err = handler.Execute(ctx, accounts.ActivateUserMessage{
		UID:   codec.EncodeString(uuid.NewString()),
		Token: "x_y",
	})
	assert.ErrorIs(t, err, accounts.ErrIdentityNotFound)
}

func TestInitializePasswordResetQueuesEmail(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", Active: true}
	repo.users.add(user)

	outbox := &outboxMailer{}
	verifier := accounts.NewVerifier([]byte("secret"))
	notifier, _ := newTestNotifier(t, outbox, verifier)

	handler := accounts.NewInitializePasswordResetHandler(repo, notifier).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.InitializePasswordResetMessage{Email: "Peyton@Example.com"})
	require.NoError(t, err)

	messages := outbox.wait(1, time.Second)
	require.Len(t, messages, 1)
	assert.Equal(t, "Reset password", messages[0].Subject)
	assert.Contains(t, messages[0].Body, "/auth/reset-password/")
}

func TestInitializePasswordResetUnknownEmail(t *testing.T) {
	ctx := context.Background()

	handler := accounts.NewInitializePasswordResetHandler(newFakeRepo(), nil).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.InitializePasswordResetMessage{Email: "nobody@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user registered")
}

func TestFinalizePasswordResetActivatesAccount(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	oldHash, err := accounts.HashPassword("old-secret1")
	require.NoError(t, err)

	// an inactive account finishing a reset proves mailbox control
	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", PasswordHash: oldHash, Active: false}
	repo.users.add(user)

	verifier := accounts.NewVerifier([]byte("secret"))
	codec := accounts.TokenCodec{}

	handler := accounts.NewFinalizePasswordResetHandler(repo, verifier).WithLogger(testLogger{})

	err = handler.Execute(ctx, accounts.FinalizePasswordResetMessage{
		UID:             codec.EncodeString(user.ID.String()),
		Token:           verifier.Composite(user),
		Password:        "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	require.NoError(t, err)

	stored := repo.users.snapshot(user.ID)
	assert.True(t, stored.Active)
	assert.NoError(t, accounts.ComparePasswordAndHash("new-secret1", stored.PasswordHash))
	assert.Error(t, accounts.ComparePasswordAndHash("old-secret1", stored.PasswordHash))
}

func TestFinalizePasswordResetRejectsBadToken(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", Active: true}
	repo.users.add(user)

	verifier := accounts.NewVerifier([]byte("secret"))
	forged := accounts.NewVerifier([]byte("wrong-secret"))
	codec := accounts.TokenCodec{}

	handler := accounts.NewFinalizePasswordResetHandler(repo, verifier).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.FinalizePasswordResetMessage{
		UID:             codec.EncodeString(user.ID.String()),
		Token:           forged.Composite(user),
		Password:        "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	assert.ErrorIs(t, err, accounts.ErrTokenInvalid)
}

func TestFinalizePasswordResetUnknownUser(t *testing.T) {
	ctx := context.Background()

	verifier := accounts.NewVerifier([]byte("secret"))
	codec := accounts.TokenCodec{}

	handler := accounts.NewFinalizePasswordResetHandler(newFakeRepo(), verifier).WithLogger(testLogger{})

	// the repository miss must surface as a not found, never as an
	// internal error
	err := handler.Execute(ctx, accounts.FinalizePasswordResetMessage{
		UID:             codec.EncodeString(uuid.NewString()),
		Token:           "x_y",
		Password:        "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	assert.ErrorIs(t, err, accounts.ErrIdentityNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	oldHash, err := accounts.HashPassword("old-secret1")
	require.NoError(t, err)

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", PasswordHash: oldHash, Active: true}
	repo.users.add(user)

	handler := accounts.NewChangePasswordHandler(repo).WithLogger(testLogger{})

	err = handler.Execute(ctx, accounts.ChangePasswordMessage{
		UserID:          user.ID.String(),
		OldPassword:     "old-secret1",
		NewPassword:     "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	require.NoError(t, err)

	stored := repo.users.snapshot(user.ID)
	assert.NoError(t, accounts.ComparePasswordAndHash("new-secret1", stored.PasswordHash))
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	oldHash, err := accounts.HashPassword("old-secret1")
	require.NoError(t, err)

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", PasswordHash: oldHash, Active: true}
	repo.users.add(user)

	handler := accounts.NewChangePasswordHandler(repo).WithLogger(testLogger{})

	err = handler.Execute(ctx, accounts.ChangePasswordMessage{
		UserID:          user.ID.String(),
		OldPassword:     "not-the-old-one1",
		NewPassword:     "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	assert.ErrorIs(t, err, accounts.ErrWrongOldPassword)

	// the stored hash is untouched
	stored := repo.users.snapshot(user.ID)
	assert.NoError(t, accounts.ComparePasswordAndHash("old-secret1", stored.PasswordHash))
}

type stubHasher struct {
	compared int
	hashed   int
}

func (s *stubHasher) HashPassword(password string) (string, error) {
	s.hashed++
	return "stub:" + password, nil
}

func (s *stubHasher) ComparePasswordAndHash(password, hash string) error {
	s.compared++
	if "stub:"+password != hash {
		return accounts.ErrMismatchedHashAndPassword
	}
	return nil
}

func TestChangePasswordCustomAuthenticator(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	user := &accounts.User{ID: uuid.New(), Email: "peyton@example.com", PasswordHash: "stub:old-secret1", Active: true}
	repo.users.add(user)

	hasher := &stubHasher{}
	handler := accounts.NewChangePasswordHandler(repo).
		WithPasswordAuthenticator(hasher).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.ChangePasswordMessage{
		UserID:          user.ID.String(),
		OldPassword:     "old-secret1",
		NewPassword:     "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, hasher.compared)
	assert.Equal(t, 1, hasher.hashed)
	assert.Equal(t, "stub:new-secret1", repo.users.snapshot(user.ID).PasswordHash)
}

func TestChangePasswordUnknownUser(t *testing.T) {
	ctx := context.Background()

	handler := accounts.NewChangePasswordHandler(newFakeRepo()).WithLogger(testLogger{})

	err := handler.Execute(ctx, accounts.ChangePasswordMessage{
		UserID:          uuid.NewString(),
		OldPassword:     "old-secret1",
		NewPassword:     "new-secret1",
		PasswordConfirm: "new-secret1",
	})
	assert.ErrorIs(t, err, accounts.ErrIdentityNotFound)
}
