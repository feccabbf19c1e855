package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// apiError is an error with a status the client is allowed to see.
type apiError struct {
	status  int
	message string
	fields  []FieldError
}

func (e *apiError) Error() string {
	return e.message
}

func newAPIError(status int, format string, args ...interface{}) *apiError {
	return &apiError{status: status, message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...interface{}) error {
	return newAPIError(http.StatusBadRequest, format, args...)
}

func unauthorized(message string) error {
	return newAPIError(http.StatusUnauthorized, "%s", message)
}

func forbidden(message string) error {
	return newAPIError(http.StatusForbidden, "%s", message)
}

func invalidFields(fields ...FieldError) error {
	return &apiError{status: http.StatusBadRequest, message: "validation failed", fields: fields}
}

// lookupError maps a store miss on entity to a 404.
func lookupError(err error, entity string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "%s not found", entity)
	}
	return err
}

func (g *Gateway) fail(c *gin.Context, err error) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		body := gin.H{"message": apiErr.message}
		if len(apiErr.fields) > 0 {
			body["errors"] = apiErr.fields
		}
		c.AbortWithStatusJSON(apiErr.status, body)
	case errors.Is(err, repository.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "resource not found"})
	default:
		g.logger.Error("Request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": internalErrorMessage})
	}
}

var validationOnce sync.Once

// setupValidation rejects unknown JSON keys and reports fields by their
// JSON names.
func setupValidation() {
	validationOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonFieldName)
		}
	})
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func bindJSON(c *gin.Context, dst interface{}) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		return invalidFields(fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalidFields(FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be a %s", typeErr.Type.Kind()),
		})
	}
	if errors.Is(err, io.EOF) {
		return badRequest("request body is required")
	}
	return badRequest("malformed request body: %v", err)
}

// fieldPath drops the request struct name from the namespace, leaving
// e.g. orderItems[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		if isText(fe) {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if isText(fe) {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func isText(fe validator.FieldError) bool {
	return fe.Kind() == reflect.String
}
