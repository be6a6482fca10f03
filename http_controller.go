package accounts

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AccountsController exposes the JSON auth surface.
type AccountsController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auther   *Auther
	Verifier *Verifier
	Codec    TokenCodec
	Notifier *AccountNotifier
	Metrics  MetricsCollector
	Policy   PasswordValidator
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithControllerLogger(logger Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *Auther) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Auther = auther
		return c
	}
}

func WithControllerVerifier(verifier *Verifier) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Verifier = verifier
		return c
	}
}

func WithControllerNotifier(notifier *AccountNotifier) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Notifier = notifier
		return c
	}
}

func WithControllerMetrics(metrics MetricsCollector) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if metrics != nil {
			c.Metrics = metrics
		}
		return c
	}
}

func WithControllerPasswordValidator(policy PasswordValidator) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if policy != nil {
			c.Policy = policy
		}
		return c
	}
}

func WithControllerDebug(debug bool) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Debug = debug
		return c
	}
}

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:  defLogger{},
		Metrics: noopMetrics{},
		Policy:  DefaultPasswordPolicy(),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.Auther == nil {
		panic("Missing Auther in accounts controller...")
	}

	if c.Verifier == nil {
		panic("Missing Verifier in accounts controller...")
	}

	return c
}

// RegisterRoutes mounts the auth endpoints on the given router.
func RegisterRoutes(app fiber.Router, controller *AccountsController) {
	auth := app.Group("/auth")

	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.Refresh)
	auth.Post("/forgot-password", controller.ForgotPassword)
	auth.Get("/verify-token/:uid/:token", controller.VerifyToken)
	auth.Put("/reset-password/:uid/:token", controller.ResetPassword)
	auth.Get("/activate-user/:uid/:token", controller.ActivateUser)

	protected := NewBearerMiddleware(controller.Auther)

	auth.Post("/logout", protected, controller.Logout)
	auth.Get("/me", protected, controller.Me)
	auth.Put("/change-password", protected, controller.ChangePassword)
}

// RegisterPayload is the registration body
type RegisterPayload struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Required, validation.Length(1, 20)),
		validation.Field(&r.Password, validation.Required),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountsController) Register(ctx *fiber.Ctx) error {
	payload := new(RegisterPayload)

	if err := ctx.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	var created *User
	req := RegisterUserMessage{
		FirstName:       payload.FirstName,
		LastName:        payload.LastName,
		Email:           payload.Email,
		Phone:           payload.Phone,
		Password:        payload.Password,
		PasswordConfirm: payload.PasswordConfirm,
		OnResponse: func(u *User) {
			created = u
		},
	}

	handler := NewRegisterUserHandler(a.Repo, a.Notifier).
		WithPasswordValidator(a.Policy).
		WithMetrics(a.Metrics).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		a.Logger.Error("register user failed", "error", err)
		return renderError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    created.ID.String(),
		"email": created.Email,
	})
}

// LoginPayload is the login body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AccountsController) Login(ctx *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	pair, err := a.Auther.Login(ctx.UserContext(), payload.Email, payload.Password)
	if err != nil {
		a.Metrics.RecordLoginFailure()
		// Unknown account, bad password, and inactive account all get
		// the same response so callers cannot enumerate accounts.
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "No active account found with the given credentials",
		})
	}

	a.Metrics.RecordLoginSuccess()

	return ctx.JSON(pair)
}

// RefreshPayload is the token refresh body
type RefreshPayload struct {
	Refresh string `json:"refresh"`
}

func (a *AccountsController) Refresh(ctx *fiber.Ctx) error {
	payload := new(RefreshPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if payload.Refresh == "" {
		return badRequestJSON(ctx, "refresh token is required")
	}

	access, err := a.Auther.Refresh(ctx.UserContext(), payload.Refresh)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Token is invalid or expired",
		})
	}

	return ctx.JSON(fiber.Map{"access": access})
}

// LogoutPayload is the logout body
type LogoutPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *AccountsController) Logout(ctx *fiber.Ctx) error {
	payload := new(LogoutPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if err := a.Auther.Logout(ctx.UserContext(), payload.RefreshToken); err != nil {
		a.Logger.Warn("logout failed", "error", err)
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid token",
		})
	}

	return ctx.SendStatus(fiber.StatusResetContent)
}

// ForgotPasswordPayload is the reset request body
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AccountsController) ForgotPassword(ctx *fiber.Ctx) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Notifier).
		WithMetrics(a.Metrics).
		WithLogger(a.Logger)

	req := InitializePasswordResetMessage{Email: payload.Email}
	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		a.Logger.Error("forgot password failed", "error", err)
		return renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": "We have sent you a link to reset your password",
	})
}

func (a *AccountsController) VerifyToken(ctx *fiber.Ctx) error {
	user, err := a.userFromEncodedID(ctx.UserContext(), ctx.Params("uid"))
	if err != nil {
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"detail": "Token is invalid or expired",
		})
	}

	if err := a.Verifier.CheckValidity(ctx.Params("token"), user); err != nil {
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"detail": "Token is invalid or expired",
		})
	}

	return ctx.JSON(fiber.Map{"detail": "Token is valid"})
}

// ResetPasswordPayload is the reset finalize body
type ResetPasswordPayload struct {
	NewPassword     string `json:"new_password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AccountsController) ResetPassword(ctx *fiber.Ctx) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	handler := NewFinalizePasswordResetHandler(a.Repo, a.Verifier).
		WithPasswordValidator(a.Policy).
		WithMetrics(a.Metrics).
		WithLogger(a.Logger)

	req := FinalizePasswordResetMessage{
		UID:             ctx.Params("uid"),
		Token:           ctx.Params("token"),
		Password:        payload.NewPassword,
		PasswordConfirm: payload.PasswordConfirm,
	}

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		a.Logger.Error("reset password failed", "error", err)

		if IsTokenExpiredError(err) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"detail": "The reset link has expired",
			})
		}

		return renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": "Password reset successfully",
	})
}

func (a *AccountsController) ActivateUser(ctx *fiber.Ctx) error {
	handler := NewActivateUserHandler(a.Repo, a.Verifier).
		WithMetrics(a.Metrics).
		WithLogger(a.Logger)

	req := ActivateUserMessage{
		UID:   ctx.Params("uid"),
		Token: ctx.Params("token"),
	}

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		a.Logger.Error("activate user failed", "error", err)

		// An expired link gets its own message, everything else is one
		// undifferentiated failure.
		if IsTokenExpiredError(err) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"detail": "The activation link has expired",
			})
		}

		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Account activation failed",
		})
	}

	return ctx.JSON(fiber.Map{"detail": "Account activated"})
}

func (a *AccountsController) Me(ctx *fiber.Ctx) error {
	claims, ok := ClaimsFromFiberCtx(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Authentication credentials were not provided",
		})
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.UserContext(), claims.UserID())
	if err != nil {
		return renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"user_id":    user.ID.String(),
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}

// ChangePasswordPayload is the password change body
type ChangePasswordPayload struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AccountsController) ChangePassword(ctx *fiber.Ctx) error {
	claims, ok := ClaimsFromFiberCtx(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Authentication credentials were not provided",
		})
	}

	payload := new(ChangePasswordPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return badRequestJSON(ctx, "unable to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": FormatValidationErrorToMap(err),
		})
	}

	handler := NewChangePasswordHandler(a.Repo).
		WithPasswordValidator(a.Policy).
		WithLogger(a.Logger)

	req := ChangePasswordMessage{
		UserID:          claims.UserID(),
		OldPassword:     payload.OldPassword,
		NewPassword:     payload.NewPassword,
		PasswordConfirm: payload.PasswordConfirm,
	}

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		a.Logger.Error("change password failed", "error", err)
		return renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": "Password changed successfully",
	})
}

func (a *AccountsController) userFromEncodedID(ctx context.Context, encoded string) (*User, error) {
	raw, err := a.Codec.DecodeString(encoded)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return a.Repo.Users().GetByIdentifier(ctx, raw)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map suitable for a JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}

func badRequestJSON(ctx *fiber.Ctx, detail string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"detail": detail,
	})
}

// renderError maps rich errors to HTTP responses.
func renderError(ctx *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Internal server error",
		})
	}

	status := statusFromError(richErr)

	body := fiber.Map{"detail": richErr.Message}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return ctx.Status(status).JSON(body)
}

func statusFromError(err *goerrors.Error) int {
	switch err.Code {
	case goerrors.CodeBadRequest:
		return fiber.StatusBadRequest
	case goerrors.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case goerrors.CodeForbidden:
		return fiber.StatusForbidden
	case goerrors.CodeNotFound:
		return fiber.StatusNotFound
	case goerrors.CodeConflict:
		return fiber.StatusConflict
	}

	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	}

	return fiber.StatusInternalServerError
}
