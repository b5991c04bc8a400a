package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/auth"
)

// forbiddenInPass may not appear anywhere in a password, in any case.
const forbiddenInPass = "password"

// The rule structs below carry the field rules as validator tags. They are
// filled from already-normalized input (trimmed, lowercased email) and
// checked before anything is written.

type profileRules struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"gte=0"`
}

type passwordRules struct {
	Password string `json:"password" validate:"required,min=7,notpassword"`
}

type taskRules struct {
	Description string `json:"description" validate:"required"`
}

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves the whole package.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name ("email"), which is what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// notpassword rejects any value containing "password", in any case.
	if err := v.RegisterValidation("notpassword", func(fl validator.FieldLevel) bool {
		return !strings.Contains(strings.ToLower(fl.Field().String()), forbiddenInPass)
	}); err != nil {
		panic(fmt.Sprintf("service: registering notpassword validation: %v", err))
	}

	return v
}

// check validates s and turns the first failing rule into an
// apperror.ValidationFailed naming the field.
func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
	}
	return fmt.Errorf("service: validating input: %w", err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "email is invalid"
	case "gte":
		return fe.Field() + " must be a positive number"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "notpassword":
		return `password cannot contain "password"`
	default:
		return fe.Field() + " is invalid"
	}
}

// checkPassword applies the password rules plus bcrypt's byte limit, which
// the rune-counting validator tags cannot express.
func checkPassword(pw string) error {
	if err := check(passwordRules{Password: pw}); err != nil {
		return err
	}
	if len(pw) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
