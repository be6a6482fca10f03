package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceGenerateAndValidate(t *testing.T) {
	svc := accounts.NewTokenService(newTestConfig(), testLogger{})
	identity := TestIdentity{id: "user-123", email: "user@example.com", status: accounts.UserStatusActive}

	token, err := svc.Generate(identity, accounts.TokenTypeAccess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "user-123", claims.Subject())
	assert.Equal(t, accounts.TokenTypeAccess, claims.TokenType())
	assert.NotEmpty(t, claims.TokenID(), "every token carries a unique jti")
}

func TestTokenServiceRefreshTokensOutliveAccessTokens(t *testing.T) {
	svc := accounts.NewTokenService(newTestConfig(), testLogger{})
	identity := TestIdentity{id: "user-123"}

	access, err := svc.Generate(identity, accounts.TokenTypeAccess)
	require.NoError(t, err)
	refresh, err := svc.Generate(identity, accounts.TokenTypeRefresh)
	require.NoError(t, err)

	accessClaims, err := svc.Validate(access)
	require.NoError(t, err)
	refreshClaims, err := svc.Validate(refresh)
	require.NoError(t, err)

	assert.Equal(t, accounts.TokenTypeRefresh, refreshClaims.TokenType())
	assert.True(t, refreshClaims.Expires().After(accessClaims.Expires()))
}

func TestTokenServiceValidateExpired(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	issuer := accounts.NewTokenService(newTestConfig(), testLogger{},
		accounts.WithTokenServiceClock(func() time.Time { return past }),
	)

	token, err := issuer.Generate(TestIdentity{id: "user-123"}, accounts.TokenTypeAccess)
	require.NoError(t, err)

	checker := accounts.NewTokenService(newTestConfig(), testLogger{})

	_, err = checker.Validate(token)
	assert.ErrorIs(t, err, accounts.ErrTokenExpired)
}

func TestTokenServiceValidateRejectsWrongKey(t *testing.T) {
	cfg := newTestConfig()
	issuer := accounts.NewTokenService(cfg, testLogger{})

	cfg.signingKey = "a-different-signing-key"
	checker := accounts.NewTokenService(cfg, testLogger{})

	token, err := issuer.Generate(TestIdentity{id: "user-123"}, accounts.TokenTypeAccess)
	require.NoError(t, err)

	_, err = checker.Validate(token)
	require.Error(t, err)
	assert.True(t, accounts.IsTokenInvalidError(err))
}

func TestTokenServiceValidateRejectsGarbage(t *testing.T) {
	svc := accounts.NewTokenService(newTestConfig(), testLogger{})

	_, err := svc.Validate("not.a.jwt")
	require.Error(t, err)
	assert.True(t, accounts.IsMalformedError(err) || accounts.IsTokenInvalidError(err))
}

func TestTokenServiceGenerateNilIdentity(t *testing.T) {
	svc := accounts.NewTokenService(newTestConfig(), testLogger{})

	_, err := svc.Generate(nil, accounts.TokenTypeAccess)
	assert.Error(t, err)
}
