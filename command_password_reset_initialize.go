package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(*User)
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset_init" }

// InitializePasswordResetHandler issues a reset token and queues the
// reset email for a known account.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier *AccountNotifier
	metrics  MetricsCollector
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, notifier *AccountNotifier) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		metrics:  noopMetrics{},
		logger:   defLogger{},
	}
}

// WithMetrics sets the collector for reset counters.
func (h *InitializePasswordResetHandler) WithMetrics(metrics MetricsCollector) *InitializePasswordResetHandler {
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, NormalizeEmail(event.Email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.New("there is no user registered with this email address", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"field": "email"})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	if h.notifier != nil {
		if err := h.notifier.SendPasswordResetEmail(user); err != nil {
			h.logger.Error("failed to queue reset email", "error", err, "user_id", user.ID)
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to queue password reset email")
		}
		h.metrics.RecordEmailQueued("password_reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
