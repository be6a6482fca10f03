package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	UserID          string `json:"-"`
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (e ChangePasswordMessage) Type() string { return "user.password_change" }

// ChangePasswordHandler rotates the password for an authenticated user.
// The stored hash is untouched unless the old password verifies.
type ChangePasswordHandler struct {
	repo   RepositoryManager
	policy PasswordValidator
	hasher PasswordAuthenticator
	logger Logger
}

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:   repo,
		policy: DefaultPasswordPolicy(),
		hasher: BcryptAuthenticator{},
		logger: defLogger{},
	}
}

// WithPasswordValidator overrides the strength policy.
func (h *ChangePasswordHandler) WithPasswordValidator(policy PasswordValidator) *ChangePasswordHandler {
	if policy != nil {
		h.policy = policy
	}
	return h
}

// WithPasswordAuthenticator overrides the hash scheme.
func (h *ChangePasswordHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *ChangePasswordHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	if event.NewPassword != event.PasswordConfirm {
		return ErrPasswordMismatch
	}

	if err := h.policy.ValidatePassword(event.NewPassword); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password change")
		}

		if err := h.hasher.ComparePasswordAndHash(event.OldPassword, user.PasswordHash); err != nil {
			return ErrWrongOldPassword
		}

		passwordHash, err := h.hasher.HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change password")
	}

	return nil
}
