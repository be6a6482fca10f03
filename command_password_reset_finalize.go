package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	UID             string `json:"uid"`
	Token           string `json:"token"`
	Password        string `json:"new_password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler replaces the password once the reset
// token checks out. Finishing a reset proves control of the mailbox, so
// an inactive account comes out of it active.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	verifier *Verifier
	codec    TokenCodec
	policy   PasswordValidator
	metrics  MetricsCollector
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, verifier *Verifier) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		verifier: verifier,
		policy:   DefaultPasswordPolicy(),
		metrics:  noopMetrics{},
		logger:   defLogger{},
	}
}

// WithPasswordValidator overrides the strength policy.
func (h *FinalizePasswordResetHandler) WithPasswordValidator(policy PasswordValidator) *FinalizePasswordResetHandler {
	if policy != nil {
		h.policy = policy
	}
	return h
}

// WithMetrics sets the collector for reset counters.
func (h *FinalizePasswordResetHandler) WithMetrics(metrics MetricsCollector) *FinalizePasswordResetHandler {
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if event.Password != event.PasswordConfirm {
		return ErrPasswordMismatch
	}

	if err := h.policy.ValidatePassword(event.Password); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	raw, err := h.codec.DecodeString(event.UID)
	if err != nil {
		return ErrTokenInvalid
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return ErrTokenInvalid
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, id.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password reset")
		}

		if err := h.verifier.CheckValidity(event.Token, user); err != nil {
			return err
		}

		passwordHash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	h.metrics.RecordPasswordReset()

	return nil
}
