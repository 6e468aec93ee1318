package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)

// ValidateStruct validates a struct based on its validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidatePrefix checks that a serving prefix is an absolute http(s)
// URL with no path, query or fragment.
func ValidatePrefix(prefix string) error {
	u, err := url.Parse(prefix)
	if err != nil {
		return fmt.Errorf("prefix is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("prefix must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("prefix must name a host")
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("prefix must be scheme and host only")
	}
	return nil
}

// ValidateUsername checks that a preferred username is safe to embed
// in an IRI path.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must match %s", usernamePattern.String())
	}
	return nil
}

// ValidateIRI checks that a string is an absolute IRI.
func ValidateIRI(iri string) error {
	u, err := url.Parse(iri)
	if err != nil {
		return fmt.Errorf("not a valid IRI: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("IRI must be absolute")
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatFieldError(e))
		}
		return fmt.Errorf("%s", strings.Join(messages, "; "))
	}
	return err
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
