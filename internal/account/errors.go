package account

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized covers unknown emails, wrong passwords and tokens that
	// do not resolve to a live identity. Callers cannot tell them apart.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrInvalidToken = errors.New("wrong or expired token")
)

type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationError is a field-scoped rejection of caller input.
type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// Map returns field -> message. The first message per field wins.
func (e *ValidationError) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Message
		}
	}
	return out
}

func fieldError(field, rule, message string) *ValidationError {
	return &ValidationError{Fields: []FieldViolation{{Field: field, Rule: rule, Message: message}}}
}

func emailTaken() *ValidationError {
	return fieldError("email", "unique", "This email address is already used")
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
