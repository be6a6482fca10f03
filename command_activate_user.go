package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type ActivateUserMessage struct {
	UID        string `json:"uid"`
	Token      string `json:"token"`
	OnResponse func(*User)
}

func (e ActivateUserMessage) Type() string { return "user.activate" }

// ActivateUserHandler flips the activation flag once the emailed token
// checks out against the user's current state.
type ActivateUserHandler struct {
	repo     RepositoryManager
	verifier *Verifier
	codec    TokenCodec
	machine  UserStateMachine
	metrics  MetricsCollector
	logger   Logger
}

// NewActivateUserHandler creates a handler with sane defaults.
func NewActivateUserHandler(repo RepositoryManager, verifier *Verifier) *ActivateUserHandler {
	return &ActivateUserHandler{
		repo:     repo,
		verifier: verifier,
		machine:  NewUserStateMachine(repo.Users()),
		metrics:  noopMetrics{},
		logger:   defLogger{},
	}
}

// WithStateMachine overrides the lifecycle machine applied on success.
func (h *ActivateUserHandler) WithStateMachine(machine UserStateMachine) *ActivateUserHandler {
	if machine != nil {
		h.machine = machine
	}
	return h
}

// WithMetrics sets the collector for activation counters.
func (h *ActivateUserHandler) WithMetrics(metrics MetricsCollector) *ActivateUserHandler {
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateUserHandler) WithLogger(logger Logger) *ActivateUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateUserHandler) Execute(ctx context.Context, event ActivateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateUserHandler) execute(ctx context.Context, event ActivateUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.lookupUser(ctx, event.UID)
	if err != nil {
		return err
	}

	// A link whose embedded expiry passed gets its own message before
	// any signature work happens.
	if h.verifier.ExpiredComposite(event.Token) {
		return ErrTokenExpired
	}

	if err := h.verifier.CheckValidity(event.Token, user); err != nil {
		return err
	}

	// The token only validates against the state it was issued under,
	// so an already active user here means the flag flipped between
	// issuance and now with the same token. Treat it as done.
	if user.Active {
		if event.OnResponse != nil {
			event.OnResponse(user)
		}
		return nil
	}

	actor := ActorRef{ID: user.ID.String(), Type: "user"}
	if _, err := h.machine.Transition(ctx, actor, user, UserStatusActive,
		WithTransitionReason("email verification"),
	); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate user")
	}

	h.metrics.RecordActivation()

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *ActivateUserHandler) lookupUser(ctx context.Context, encodedUID string) (*User, error) {
	raw, err := h.codec.DecodeString(encodedUID)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := h.repo.Users().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation")
	}

	return user, nil
}
