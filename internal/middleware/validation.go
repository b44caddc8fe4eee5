package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Decimals are validated through their string form; otherwise the
	// validator treats them as nested structs and skips field tags.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("money", validateMoney)
	_ = v.RegisterValidation("cents", validateCents)
	return v
}

func fieldDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	switch v := fl.Field().Interface().(type) {
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Decimal{}, false
		}
		return *v, true
	default:
		return decimal.Decimal{}, false
	}
}

// validateCents accepts any decimal with at most two fraction digits.
func validateCents(fl validator.FieldLevel) bool {
	d, ok := fieldDecimal(fl)
	return ok && d.Equal(d.Round(2))
}

// validateMoney additionally rejects negative amounts.
func validateMoney(fl validator.FieldLevel) bool {
	d, ok := fieldDecimal(fl)
	return ok && !d.IsNegative() && d.Equal(d.Round(2))
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

// ErrorResponse is the body returned for every non-validation failure.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

func ValidateRequest(obj any) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}
	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: getErrorMsg(err),
			Type:    err.Tag(),
		})
	}

	return validationErrors
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "len":
		return "Value must be exactly " + err.Param() + " characters"
	case "oneof":
		return "Value must be one of: " + err.Param()
	case "uuid":
		return "Invalid identifier"
	case "money":
		return "Amount must be zero or positive with at most 2 decimal places"
	case "cents":
		return "Value must have at most 2 decimal places"
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, validationErrors []ValidationError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{
		Status:  code,
		Error:   http.StatusText(code),
		Message: message,
		Path:    c.Request.URL.Path,
	})
}

// RespondWithAppError maps the apperr taxonomy onto HTTP statuses. Anything
// outside the taxonomy is logged and answered with a generic 500.
func RespondWithAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, apperr.Message(err))
	case errors.Is(err, apperr.ErrValidation):
		RespondWithError(c, http.StatusBadRequest, apperr.Message(err))
	case errors.Is(err, apperr.ErrConflict):
		RespondWithError(c, http.StatusConflict, apperr.Message(err))
	case errors.Is(err, apperr.ErrUnauthorized):
		RespondWithError(c, http.StatusUnauthorized, apperr.Message(err))
	case errors.Is(err, apperr.ErrForbidden):
		RespondWithError(c, http.StatusForbidden, apperr.Message(err))
	default:
		slog.ErrorContext(c.Request.Context(), "unexpected error",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		RespondWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
