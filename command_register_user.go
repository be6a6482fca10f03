package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	UseHashid       bool
	OnResponse      func(*User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates a pending account and queues the
// activation email.
type RegisterUserHandler struct {
	repo     RepositoryManager
	policy   PasswordValidator
	notifier *AccountNotifier
	metrics  MetricsCollector
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, notifier *AccountNotifier) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		policy:   DefaultPasswordPolicy(),
		notifier: notifier,
		metrics:  noopMetrics{},
		logger:   defLogger{},
	}
}

// WithPasswordValidator overrides the strength policy.
func (h *RegisterUserHandler) WithPasswordValidator(policy PasswordValidator) *RegisterUserHandler {
	if policy != nil {
		h.policy = policy
	}
	return h
}

// WithMetrics sets the collector for registration counters.
func (h *RegisterUserHandler) WithMetrics(metrics MetricsCollector) *RegisterUserHandler {
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if event.Password != event.PasswordConfirm {
		return ErrPasswordMismatch
	}

	if err := h.policy.ValidatePassword(event.Password); err != nil {
		return err
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email := NormalizeEmail(event.Email)

		if _, err := h.repo.Users().GetByIdentifierTx(ctx, tx, email); err == nil {
			return ErrEmailRegistered
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing user")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = email
		user.Phone = normalizePhone(event.Phone)
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Active = false
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.metrics.RecordRegistration()

	if h.notifier != nil {
		if err := h.notifier.SendActivationEmail(user); err != nil {
			h.logger.Error("failed to queue activation email", "error", err, "user_id", user.ID)
		} else {
			h.metrics.RecordEmailQueued("activation")
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

// normalizePhone formats a phone number to E.164 when it parses. Numbers
// that do not parse are stored as provided, phone is never a reason to
// reject a registration.
func normalizePhone(phone string) string {
	if phone == "" {
		return phone
	}

	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return phone
	}

	return phonenumbers.Format(parsed, phonenumbers.E164)
}
