package accounts

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

// MinPasswordLength is the minimum accepted password length.
var MinPasswordLength = 8

var (
	hasLetterRe = regexp.MustCompile(`[a-zA-Z]`)
	hasDigitRe  = regexp.MustCompile(`[0-9]`)
)

// PasswordPolicy validates password strength before hashing. The zero
// value applies the default rules.
type PasswordPolicy struct {
	MinLength      int
	RequireLetter  bool
	RequireDigit   bool
	rulesOverriden bool
	rules          []validation.Rule
}

// DefaultPasswordPolicy returns the policy applied when none is configured.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:     MinPasswordLength,
		RequireLetter: true,
		RequireDigit:  true,
	}
}

// WithRules replaces the derived rule set with a custom one.
func (p *PasswordPolicy) WithRules(rules ...validation.Rule) *PasswordPolicy {
	p.rules = rules
	p.rulesOverriden = true
	return p
}

// ValidatePassword returns ErrPasswordTooWeak describing the first
// violated rule, or nil when the password satisfies the policy.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if err := validation.Validate(password, p.buildRules()...); err != nil {
		return ErrPasswordTooWeak.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	return nil
}

func (p *PasswordPolicy) buildRules() []validation.Rule {
	if p.rulesOverriden {
		return p.rules
	}

	minLength := p.MinLength
	if minLength <= 0 {
		minLength = MinPasswordLength
	}

	rules := []validation.Rule{
		validation.Required.Error("password is required"),
		validation.Length(minLength, 0).Error("password is too short"),
	}

	if p.RequireLetter {
		rules = append(rules, validation.Match(hasLetterRe).Error("password needs at least one letter"))
	}

	if p.RequireDigit {
		rules = append(rules, validation.Match(hasDigitRe).Error("password needs at least one digit"))
	}

	return rules
}

var _ PasswordValidator = (*PasswordPolicy)(nil)
