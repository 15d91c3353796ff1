// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/sourcetype"
)

// slugRegex validates slugs: lowercase letters, numbers, hyphens.
// Must start and end with alphanumeric, no consecutive hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// cronParser accepts the standard five-field schedule format.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("slug", validateSlug)
	_ = v.RegisterValidation("connector_type", validateConnectorType)
	_ = v.RegisterValidation("source_type", validateSourceType)
	_ = v.RegisterValidation("identity_type", validateIdentityType)
	_ = v.RegisterValidation("cron", validateCron)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}

	return result
}

// validateSlug validates that a string is a valid URL slug.
func validateSlug(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return slugRegex.MatchString(value)
}

// validateConnectorType validates that a string is a registered connector type.
func validateConnectorType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, ok := connector.LookupType(connector.TypeCode(value))
	return ok
}

// validateSourceType validates that a string is a known source type family.
func validateSourceType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return sourcetype.IsValid(sourcetype.SourceType(value))
}

// validateIdentityType validates that a string is a known identity type.
func validateIdentityType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	switch sourcetype.IdentityType(value) {
	case sourcetype.IdentityServiceAccount, sourcetype.IdentityCertificate:
		return true
	default:
		return false
	}
}

// validateCron validates a five-field cron schedule expression.
func validateCron(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, err := cronParser.Parse(value)
	return err == nil
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "slug":
		return "must be a valid slug (lowercase letters, numbers, hyphens only)"
	case "connector_type":
		return fmt.Sprintf("must be one of: %s", formatConnectorTypes())
	case "source_type":
		return fmt.Sprintf("must be one of: %s", formatSourceTypes())
	case "identity_type":
		return "must be one of: svc_acct, cert"
	case "cron":
		return "must be a valid five-field cron expression"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

// formatConnectorTypes returns a comma-separated list of registered connector types.
func formatConnectorTypes() string {
	descs := connector.Types()
	strs := make([]string, len(descs))
	for i, d := range descs {
		strs[i] = string(d.Code)
	}
	return strings.Join(strs, ", ")
}

// formatSourceTypes returns a comma-separated list of known source types.
func formatSourceTypes() string {
	families := sourcetype.All()
	strs := make([]string, len(families))
	for i, f := range families {
		strs[i] = string(f.Source)
	}
	return strings.Join(strs, ", ")
}
