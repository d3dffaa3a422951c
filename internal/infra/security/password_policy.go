package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
)

const (
	defaultMinPasswordLength   = 10
	defaultMaxPasswordLength   = 128
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password against one requirement.
type PasswordRule func(password string, ctx domain.PasswordContext) error

// PasswordPolicySettings tunes the built-in rules.
type PasswordPolicySettings struct {
	MinLength           int
	MaxLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicySettings returns the service defaults.
func DefaultPasswordPolicySettings() PasswordPolicySettings {
	return PasswordPolicySettings{
		MinLength:           defaultMinPasswordLength,
		MaxLength:           defaultMaxPasswordLength,
		MinCharacterClasses: defaultMinCharacterClasses,
		MinStrengthScore:    defaultMinZxcvbnScore,
	}
}

// PasswordPolicy applies an ordered list of rules and reports the first violation.
type PasswordPolicy struct {
	rules []PasswordRule
}

// NewPasswordPolicy builds the standard policy from settings.
func NewPasswordPolicy(settings PasswordPolicySettings) *PasswordPolicy {
	return NewPasswordPolicyWithRules(
		MinLengthRule(settings.MinLength),
		MaxLengthRule(settings.MaxLength),
		RequireCharacterClassesRule(settings.MinCharacterClasses),
		RequireDifferentFromCurrentRule(),
		RequirePasswordStrengthRule(settings.MinStrengthScore),
	)
}

// NewPasswordPolicyWithRules builds a policy from explicit rules.
func NewPasswordPolicyWithRules(rules ...PasswordRule) *PasswordPolicy {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordPolicy{rules: copied}
}

// Validate returns a *domain.ValidationError wrapping the first violated rule.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}
	for _, rule := range p.rules {
		if err := rule(password, ctx); err != nil {
			var violation *PasswordValidationError
			if errors.As(err, &violation) {
				return domain.NewValidationError("new_password", violation.Message)
			}
			return err
		}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return func(password string, _ domain.PasswordContext) error {
		if min > 0 && len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	}
}

// MaxLengthRule bounds password length so hashing cost stays predictable.
func MaxLengthRule(max int) PasswordRule {
	return func(password string, _ domain.PasswordContext) error {
		if max > 0 && len([]rune(password)) > max {
			return &PasswordValidationError{
				Code:    "max_length",
				Message: fmt.Sprintf("password must be at most %d characters long", max),
			}
		}
		return nil
	}
}

// RequireCharacterClassesRule ensures the password mixes at least min of upper, lower, digit and symbol.
func RequireCharacterClassesRule(min int) PasswordRule {
	return func(password string, _ domain.PasswordContext) error {
		if min <= 0 {
			return nil
		}

		seen := map[string]bool{}
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				seen["upper"] = true
			case unicode.IsLower(r):
				seen["lower"] = true
			case unicode.IsDigit(r):
				seen["digit"] = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				seen["symbol"] = true
			}
		}
		if len(seen) >= min {
			return nil
		}
		return &PasswordValidationError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", min),
		}
	}
}

// RequireDifferentFromCurrentRule rejects reuse of the password being replaced.
func RequireDifferentFromCurrentRule() PasswordRule {
	return func(password string, ctx domain.PasswordContext) error {
		if ctx.Current != "" && password == ctx.Current {
			return &PasswordValidationError{
				Code:    "different",
				Message: "new password must be different from current password",
			}
		}
		return nil
	}
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score, penalising
// passwords built from the principal's own attributes.
func RequirePasswordStrengthRule(minScore int) PasswordRule {
	return func(password string, ctx domain.PasswordContext) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs(ctx))
		if result.Score >= minScore {
			return nil
		}
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}
}

func userInputs(ctx domain.PasswordContext) []string {
	inputs := make([]string, 0, 5)
	for _, value := range []string{ctx.Email, ctx.FirstName, ctx.LastName, ctx.EmployeeID} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}
	if local, _, ok := strings.Cut(ctx.Email, "@"); ok && local != "" {
		inputs = append(inputs, local)
	}
	return inputs
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
