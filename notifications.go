package accounts

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

const (
	activationEmailSubject = "Activate your account"
	resetEmailSubject      = "Reset password"

	activationEmailTemplate = "activate"
	resetEmailTemplate      = "reset-password"
)

// AccountNotifier renders and dispatches the verification emails sent
// during registration and password reset.
type AccountNotifier struct {
	verifier   *Verifier
	codec      TokenCodec
	dispatcher *MailDispatcher
	engine     *django.Engine
	domain     string
	logger     Logger
}

// NewAccountNotifier builds a notifier rendering templates from the
// given directory. Call Load before the first use.
func NewAccountNotifier(verifier *Verifier, dispatcher *MailDispatcher, cfg Config, templatesDir string) *AccountNotifier {
	return &AccountNotifier{
		verifier:   verifier,
		dispatcher: dispatcher,
		engine:     django.New(templatesDir, ".html"),
		domain:     strings.TrimSuffix(cfg.GetFrontendDomain(), "/"),
		logger:     defLogger{},
	}
}

func (n *AccountNotifier) WithLogger(logger Logger) *AccountNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// Load parses the template directory. Must be called once before
// sending notifications.
func (n *AccountNotifier) Load() error {
	if err := n.engine.Load(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load mail templates")
	}
	return nil
}

// SendActivationEmail queues the account activation message for the user.
func (n *AccountNotifier) SendActivationEmail(user *User) error {
	return n.send(user, activationEmailTemplate, activationEmailSubject, "activate-user")
}

// SendPasswordResetEmail queues the password reset message for the user.
func (n *AccountNotifier) SendPasswordResetEmail(user *User) error {
	return n.send(user, resetEmailTemplate, resetEmailSubject, "reset-password")
}

// VerificationLink builds the URL embedded in emails. The path carries
// the encoded user id and the signature and expiry composite.
func (n *AccountNotifier) VerificationLink(user *User, action string) string {
	uid := n.codec.EncodeString(user.ID.String())
	composite := n.verifier.Composite(user)

	return fmt.Sprintf("%s/auth/%s/%s/%s/", n.domain, action, uid, composite)
}

func (n *AccountNotifier) send(user *User, template, subject, action string) error {
	link := n.VerificationLink(user, action)

	body, err := n.render(template, map[string]any{
		"name":  user.FullName(),
		"email": user.Email,
		"link":  link,
	})
	if err != nil {
		return err
	}

	n.dispatcher.Dispatch(user.Email, subject, body)
	n.logger.Debug("queued notification", "subject", subject, "to", user.Email)

	return nil
}

func (n *AccountNotifier) render(template string, binding map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := n.engine.Render(&buf, template, binding); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail template").
			WithMetadata(map[string]any{"template": template})
	}

	return buf.String(), nil
}
