package accounts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// VerificationTokenTTL is the window during which activation and password
// reset links stay usable. Both flows share the same policy.
const VerificationTokenTTL = 5 * 24 * time.Hour

// Verifier issues and checks the state-bound tokens embedded in account
// emails. Tokens are never stored: the signature is an HMAC over the user id,
// the issuance timestamp, and the current activation flag, so flipping the
// flag invalidates every token minted under the old value. Validation is pure
// recomputation, no I/O.
type Verifier struct {
	secret []byte
	ttl    time.Duration
	codec  TokenCodec
	now    func() time.Time
	logger Logger
}

// VerifierOption customizes Verifier construction.
type VerifierOption func(*Verifier)

// WithVerifierClock injects a custom clock (useful for tests).
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// WithVerifierTTL overrides the default token lifetime.
func WithVerifierTTL(ttl time.Duration) VerifierOption {
	return func(v *Verifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithVerifierLogger overrides the logger.
func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier creates a Verifier bound to the process-wide signing secret.
func NewVerifier(secret []byte, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret: secret,
		ttl:    VerificationTokenTTL,
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

// TTL returns the configured token lifetime.
func (v *Verifier) TTL() time.Duration {
	return v.ttl
}

// Issue derives a signature from the user's id, the current time, and the
// activation flag. The issuance timestamp travels inside the signature
// (base36 prefix) so Validate can recompute against it later.
func (v *Verifier) Issue(user *User) string {
	ts := v.now().UTC().Unix()
	return strconv.FormatInt(ts, 36) + "-" + v.signature(user, ts)
}

// Validate recomputes the expected signature from the user's current state
// and the timestamp embedded in the token. It returns false whenever the
// signature cannot be reproduced, which includes the activation flag having
// changed since issuance. That property is what makes consumed activation
// tokens single use.
func (v *Verifier) Validate(signature string, user *User) bool {
	if user == nil || signature == "" {
		return false
	}

	tsPart, mac, found := strings.Cut(signature, "-")
	if !found {
		return false
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return false
	}

	expected := v.signature(user, ts)
	return hmac.Equal([]byte(mac), []byte(expected))
}

// Composite assembles the token-and-expiry pair transported in email links:
// encode(signature) + "_" + encode(expiry). The expiry is appended outside
// the signature, which is why CheckValidity enforces it separately.
func (v *Verifier) Composite(user *User) string {
	signature := v.Issue(user)
	expiry := v.now().Add(v.ttl).UTC().Unix()

	return v.codec.EncodeString(signature) + "_" + v.codec.EncodeString(strconv.FormatInt(expiry, 10))
}

// CheckValidity decodes a composite and verifies both halves. Decode or
// parse failures surface as ErrTokenInvalid; a passed expiry surfaces as
// ErrTokenExpired before the signature is even looked at; a signature that
// does not reproduce against the user's current state is ErrTokenInvalid.
func (v *Verifier) CheckValidity(composite string, user *User) error {
	encodedSig, encodedExpiry, found := strings.Cut(composite, "_")
	if !found {
		return ErrTokenInvalid
	}

	signature, err := v.codec.DecodeString(encodedSig)
	if err != nil {
		return ErrTokenInvalid
	}

	expiryRaw, err := v.codec.DecodeString(encodedExpiry)
	if err != nil {
		return ErrTokenInvalid
	}

	expiry, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}

	if v.now().UTC().After(time.Unix(expiry, 0).UTC()) {
		return ErrTokenExpired
	}

	if !v.Validate(signature, user) {
		return ErrTokenInvalid
	}

	return nil
}

// ExpiredComposite reports whether a composite is structurally well formed
// but past its expiry. The activation endpoint uses it to emit a dedicated
// message before the signature check runs.
func (v *Verifier) ExpiredComposite(composite string) bool {
	_, encodedExpiry, found := strings.Cut(composite, "_")
	if !found {
		return false
	}

	expiryRaw, err := v.codec.DecodeString(encodedExpiry)
	if err != nil {
		return false
	}

	expiry, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return false
	}

	return v.now().UTC().After(time.Unix(expiry, 0).UTC())
}

func (v *Verifier) signature(user *User, ts int64) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(user.ID.String()))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatBool(user.Active)))
	return hex.EncodeToString(mac.Sum(nil))
}
