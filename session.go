package accounts

import (
	"context"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TokenPair is the payload returned by a successful login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Auther issues, refreshes, and revokes session token pairs.
type Auther struct {
	provider     IdentityProvider
	logger       Logger
	tokenService TokenService
	blacklist    TokenBlacklist
}

// NewAuthenticator returns a new Auther wired to the given identity provider.
func NewAuthenticator(provider IdentityProvider, cfg Config) *Auther {
	logger := defLogger{}

	return &Auther{
		provider:     provider,
		logger:       logger,
		tokenService: NewTokenService(cfg, logger),
		blacklist:    NewMemoryBlacklist(),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	return s
}

// WithTokenService overrides the default token service.
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
	}
	return s
}

// WithTokenBlacklist configures the store consulted for revoked refresh tokens.
func (s *Auther) WithTokenBlacklist(blacklist TokenBlacklist) *Auther {
	if blacklist != nil {
		s.blacklist = blacklist
	}
	return s
}

// TokenService returns the TokenService instance used by this Auther
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and returns a fresh access/refresh pair.
// Every credential failure surfaces as the same unauthorized error so a
// caller cannot tell a missing account from a wrong password.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		return nil, ErrIdentityNotFound
	}

	if status, err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("Login blocked due to user status", "status", status, "error", err)
		return nil, err
	}

	return s.generatePair(identity)
}

// Refresh validates a refresh token and mints a new access token for its
// subject. Revoked or expired refresh tokens are rejected.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("Refresh find identity error", "error", err)
		return "", ErrTokenInvalid
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		return "", ErrTokenInvalid
	}

	if status, err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("Refresh blocked due to user status", "status", status, "error", err)
		return "", err
	}

	return s.tokenService.Generate(identity, TokenTypeAccess)
}

// Logout revokes the refresh token for the remainder of its lifetime.
// Revocation is permanent: a blacklisted token stays rejected until it
// would have expired anyway.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	ttl := time.Until(claims.Expires())
	if ttl <= 0 {
		return nil
	}

	if err := s.blacklist.Revoke(ctx, blacklistKey(claims, refreshToken), ttl); err != nil {
		s.logger.Error("Logout failed to revoke refresh token", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}

	return nil
}

// SessionFromToken validates an access token and returns its claims.
func (s *Auther) SessionFromToken(raw string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	if claims.TokenType() != TokenTypeAccess {
		s.logger.Warn("SessionFromToken rejected non access token", "typ", claims.TokenType())
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (s *Auther) validateRefresh(ctx context.Context, refreshToken string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(refreshToken)
	if err != nil {
		s.logger.Error("Refresh token validation failed", "error", err)
		return nil, err
	}

	if claims.TokenType() != TokenTypeRefresh {
		s.logger.Warn("Rejected non refresh token", "typ", claims.TokenType())
		return nil, ErrTokenInvalid
	}

	revoked, err := s.blacklist.IsRevoked(ctx, blacklistKey(claims, refreshToken))
	if err != nil {
		s.logger.Error("Blacklist lookup failed", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token revocation")
	}

	if revoked {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (s *Auther) generatePair(identity Identity) (*TokenPair, error) {
	access, err := s.tokenService.Generate(identity, TokenTypeAccess)
	if err != nil {
		s.logger.Error("Login failed to sign access token", "error", err)
		return nil, err
	}

	refresh, err := s.tokenService.Generate(identity, TokenTypeRefresh)
	if err != nil {
		s.logger.Error("Login failed to sign refresh token", "error", err)
		return nil, err
	}

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Auther) ensureIdentityActive(identity Identity) (UserStatus, error) {
	status := identity.Status()
	if status == "" {
		status = UserStatusActive
	}

	if status != UserStatusActive {
		return status, ErrAccountInactive
	}

	return status, nil
}
