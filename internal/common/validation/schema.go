package validation

import (
	"fmt"
	"strings"
)

// JSONSchema describes the expected shape of a loosely typed map such as an
// Airtable record's fields or a Zeebe job's variables.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	CodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	CodeEmptyValue           = "EMPTY_VALUE"
	CodeInvalidType          = "INVALID_TYPE"
	CodeExtraField           = "EXTRA_FIELD"
	CodeInvalidEnumValue     = "INVALID_ENUM_VALUE"
	CodeMinimumViolation     = "MINIMUM_VIOLATION"
	CodeMaximumViolation     = "MAXIMUM_VIOLATION"
)

// ValidateInput validates input against schema. Required string fields that
// are present but blank count as missing.
func ValidateInput(input map[string]interface{}, schema JSONSchema) *ValidationResult {
	errors := []ValidationError{}

	for _, requiredField := range schema.Required {
		value, exists := input[requiredField]
		if !exists || value == nil {
			errors = append(errors, ValidationError{
				Field:   requiredField,
				Message: "required field missing",
				Code:    CodeRequiredFieldMissing,
			})
			continue
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			errors = append(errors, ValidationError{
				Field:   requiredField,
				Message: "required field is empty",
				Code:    CodeEmptyValue,
			})
		}
	}

	for fieldName, value := range input {
		prop, exists := schema.Properties[fieldName]
		if !exists {
			if !schema.AdditionalProperties {
				errors = append(errors, ValidationError{
					Field:   fieldName,
					Message: "field not allowed in schema",
					Code:    CodeExtraField,
				})
			}
			continue
		}
		if value == nil {
			continue
		}
		errors = append(errors, validateField(fieldName, value, prop)...)
	}

	return &ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateField(fieldName string, value interface{}, prop Property) []ValidationError {
	if err := validateType(value, prop.Type); err != nil {
		return []ValidationError{{
			Field:   fieldName,
			Message: err.Error(),
			Code:    CodeInvalidType,
		}}
	}

	var errors []ValidationError

	if strVal, ok := value.(string); ok {
		if prop.MinLength != nil && len(strings.TrimSpace(strVal)) < *prop.MinLength {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be at least %d characters", *prop.MinLength),
				Code:    CodeEmptyValue,
			})
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, strVal) {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be one of %v", prop.Enum),
				Code:    CodeInvalidEnumValue,
			})
		}
	}

	if numVal, ok := toFloat(value); ok {
		if prop.Minimum != nil && numVal < *prop.Minimum {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be >= %v", *prop.Minimum),
				Code:    CodeMinimumViolation,
			})
		}
		if prop.Maximum != nil && numVal > *prop.Maximum {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be <= %v", *prop.Maximum),
				Code:    CodeMaximumViolation,
			})
		}
	}

	return errors
}

func validateType(value interface{}, expectedType string) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number":
		if _, ok := toFloat(value); !ok {
			return fmt.Errorf("expected number, got %T", value)
		}
	case "integer":
		f, ok := toFloat(value)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("expected integer, got %v", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	}
	return nil
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// GetErrorMessages returns a simple list of error messages.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// MissingFields lists the fields reported as absent or empty, once each.
func (vr *ValidationResult) MissingFields() []string {
	var fields []string
	seen := make(map[string]bool)
	for _, err := range vr.Errors {
		if err.Code != CodeRequiredFieldMissing && err.Code != CodeEmptyValue {
			continue
		}
		if !seen[err.Field] {
			seen[err.Field] = true
			fields = append(fields, err.Field)
		}
	}
	return fields
}

func IntPtr(i int) *int { return &i }

func FloatPtr(f float64) *float64 { return &f }
