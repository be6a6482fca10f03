package accounts

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeTokenExpired marks a verification composite whose expiry passed.
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenInvalid marks a composite that failed decoding or signature checks.
	TextCodeTokenInvalid = "TOKEN_INVALID"
	// TextCodeEmailRegistered marks a registration against a taken email.
	TextCodeEmailRegistered = "EMAIL_ALREADY_REGISTERED"
)

// ErrIdentityNotFound is returned when a login identifier matches no account.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString rejects empty secrets before they reach the hasher.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the uniform credential failure. Unknown
// email, wrong password, and inactive accounts all collapse into it so the
// response does not leak which one applied.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountInactive blocks authentication for unverified accounts. Callers
// on the login path must translate it to the same response as bad credentials.
var ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts enforces the failed-login cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token's expiry timestamp has passed.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid covers signature mismatches and undecodable tokens. The
// decode stage is the only place expired and invalid are told apart; once a
// composite decodes, state mismatches collapse into this error.
var ErrTokenInvalid = goerrors.New("token is invalid or has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenDecode is the codec-level failure for malformed base64 input.
var ErrTokenDecode = goerrors.New("unable to decode token", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailRegistered rejects a registration for an email already in use.
var ErrEmailRegistered = goerrors.New("email is already registered", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmailRegistered).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordMismatch rejects password/confirmation pairs that differ.
var ErrPasswordMismatch = goerrors.New("password fields didn't match", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrWrongOldPassword rejects a password change whose current password fails.
var ErrWrongOldPassword = goerrors.New("old password is not correct", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrPasswordTooWeak rejects passwords that fail the strength policy.
var ErrPasswordTooWeak = goerrors.New("password does not meet the strength requirements", goerrors.CategoryValidation).
	WithTextCode("PASSWORD_TOO_WEAK").
	WithCode(goerrors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsTokenInvalidError will check for tokens rejected by decode or signature checks
func IsTokenInvalidError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenInvalid {
		return true
	}
	return strings.Contains(err.Error(), "token is invalid")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
