package account

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// bcrypt ignores everything past 72 bytes and x/crypto refuses to hash it, so
// a short but multibyte password still has to fit.
type passwordInput struct {
	Password string `json:"password" binding:"required,min=8,max=20,maxbytes=72"`
}

// newValidator reads the same `binding` tags gin uses so request rules live
// in one place and hold for every caller, not just HTTP.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	_ = v.RegisterValidation("maxbytes", maxBytes)
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return sf.Name
		}
		return name
	})
	return v
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

func (s *Service) validate(in any) error {
	err := s.validator.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make([]FieldViolation, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldViolation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: ValidationMessage(fe.Tag(), fe.Param()),
		})
	}
	return out
}

func ValidationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "maxbytes":
		return "must be at most " + param + " bytes"
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
