package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/beststore/accounts/internal/account"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// BindJSON decodes a JSON body into out and runs its binding rules.
func BindJSON(ctx *gin.Context, out any) bool {
	return bindWith(ctx, out, binding.JSON)
}

// BindAny accepts a JSON body, a form body or query parameters, picked by
// Content-Type.
func BindAny(ctx *gin.Context, out any) bool {
	return bindWith(ctx, out, binding.Default(ctx.Request.Method, ctx.ContentType()))
}

func bindWith(ctx *gin.Context, out any, b binding.Binding) bool {
	if err := ctx.ShouldBindWith(out, b); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large", nil)
			return false
		}

		RespondBadRequest(ctx, "Invalid request body", parseBindError(err, out))
		return false
	}

	return true
}

func parseBindError(err error, out any) any {
	rootType := baseStructType(out)

	// validator errors (struct bind tags)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))

		for _, fe := range verrs {
			name := jsonFieldName(rootType, fe.StructField())
			if _, seen := fields[name]; !seen {
				fields[name] = account.ValidationMessage(fe.Tag(), fe.Param())
			}
		}
		return gin.H{"fields": fields}
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) || errors.Is(err, io.ErrUnexpectedEOF) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	if errors.Is(err, io.EOF) {
		return gin.H{"json": "empty_body"}
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) {
		field := jsonPath(rootType, typeError.Field)

		return gin.H{
			"json": "invalid_json_type",
			"fields": gin.H{
				field: fmt.Sprintf("must be of type %s", typeError.Type.String()),
			},
		}
	}

	// final fallback if the error could not be deciphered
	return gin.H{"reason": err.Error()}
}

func baseStructType(v any) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

// jsonPath maps a dotted Go field path onto json tag names. Unknown segments
// pass through unchanged.
func jsonPath(rootType reflect.Type, dotPath string) string {
	dotPath = strings.TrimSpace(dotPath)
	if dotPath == "" {
		return ""
	}

	current := rootType
	parts := strings.Split(dotPath, ".")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if current == nil || current.Kind() != reflect.Struct {
			out = append(out, part)
			current = nil
			continue
		}

		sf, ok := current.FieldByName(part)
		if !ok {
			// encoding/json already reports json names for top-level fields
			out = append(out, part)
			current = nil
			continue
		}

		out = append(out, jsonNameFromStructField(sf))
		current = sf.Type
		for current.Kind() == reflect.Pointer {
			current = current.Elem()
		}
	}

	return strings.Join(out, ".")
}

func jsonFieldName(rootType reflect.Type, goName string) string {
	if rootType == nil {
		return goName
	}
	sf, ok := rootType.FieldByName(goName)
	if !ok {
		return goName
	}
	return jsonNameFromStructField(sf)
}

func jsonNameFromStructField(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}
