package authcore

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

type usernameField struct {
	Username string `validate:"required,min=3"`
}

type passwordField struct {
	Password string `validate:"required,min=8"`
}

// validateUsername enforces the username field is present and at least 3
// characters, surfacing the literal substrings the HTTP surface's error
// messages must contain.
func validateUsername(username string) error {
	if err := getValidator().Struct(usernameField{Username: username}); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			switch fe.Tag() {
			case "required":
				return fmt.Errorf("%w: username is required", ErrValidation)
			case "min":
				return fmt.Errorf("%w: username must be at least 3 characters", ErrValidation)
			}
		}
		return fmt.Errorf("%w: invalid username", ErrValidation)
	}
	return nil
}

// validatePassword enforces the password field is present and at least 8
// characters.
func validatePassword(password string) error {
	if err := getValidator().Struct(passwordField{Password: password}); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			switch fe.Tag() {
			case "required":
				return fmt.Errorf("%w: password is required", ErrValidation)
			case "min":
				return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
			}
		}
		return fmt.Errorf("%w: invalid password", ErrValidation)
	}
	return nil
}
