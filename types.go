package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is structured in the slog shape, a message followed by
// alternating key value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated principal.
type Identity interface {
	ID() string
	Email() string
	Status() UserStatus
}

// IdentityProvider ensures we have a store to retrieve auth identities.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// PasswordValidator enforces the password strength policy. Violations are
// validation errors with field-level detail.
type PasswordValidator interface {
	ValidatePassword(password string) error
}

// Mailer delivers a rendered HTML message to a recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// TokenBlacklist is the shared revocation store for refresh tokens. A token
// must be unusable as soon as Revoke returns, even against a refresh that
// raced the revocation.
type TokenBlacklist interface {
	Revoke(ctx context.Context, key string, ttl time.Duration) error
	IsRevoked(ctx context.Context, key string) (bool, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetFrontendDomain() string
	GetEmailFrom() string
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args) }

func (d defLogger) Warn(msg string, args ...any) { d.print("WRN", msg, args) }

func (d defLogger) Info(msg string, args ...any) { d.print("INF", msg, args) }

func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args) }

func (d defLogger) print(level, msg string, args []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ACCOUNTS %s", level, msg)

	i := 0
	for ; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if i < len(args) {
		fmt.Fprintf(&b, " %v", args[i])
	}

	fmt.Println(b.String())
}
