package identity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/carecoord/authcore/internal/shared"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// bcrypt ignores bytes past 72.
const maxPasswordBytes = 72

// NormalizeEmail trims and Unicode lower-cases an address.
func NormalizeEmail(email string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}

// StrongPassword reports whether pw satisfies the strength policy.
func StrongPassword(pw string) bool {
	if len([]rune(pw)) < MinPasswordLength || len(pw) > maxPasswordBytes {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	return v
}

// validationError converts validator output into a shared.ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return shared.NewValidationError(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "password":
		return fmt.Sprintf("must be %d-%d characters with upper case, lower case and a digit", MinPasswordLength, maxPasswordBytes)
	default:
		return "is invalid"
	}
}

var (
	sharedOnce      sync.Once
	sharedValidator *validator.Validate
)

// ValidateStruct checks v's validate tags and reports failures as a
// shared.ValidationError keyed by JSON field name.
func ValidateStruct(v any) error {
	sharedOnce.Do(func() {
		sharedValidator = newValidator()
	})
	if err := sharedValidator.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}
