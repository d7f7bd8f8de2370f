package application

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Providers only accept function names from this alphabet, and agent names
// double as function names when a specialist is exposed as a tool.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

var customValidators = map[string]validator.Func{
	// modelformat accepts "provider/model" with both halves non-empty.
	// Empty values are left to omitempty or required.
	"modelformat": func(fl validator.FieldLevel) bool {
		spec := fl.Field().String()
		if spec == "" {
			return true
		}
		provider, model, ok := strings.Cut(spec, "/")
		return ok && provider != "" && model != ""
	},
	"identifier": func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	},
}

func registerValidators(v *validator.Validate) error {
	for tag, fn := range customValidators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}
