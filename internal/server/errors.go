package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	costreportdomain "github.com/cloudtally/cloudtally/internal/costreport/domain"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	ingestdomain "github.com/cloudtally/cloudtally/internal/ingest/domain"
	organizationdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, accountdomain.ErrDuplicateAccount),
		errors.Is(err, ingestdomain.ErrRunInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, credentialdomain.ErrCredentialDenied),
		errors.Is(err, vendordomain.ErrAuthDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "credential_denied",
			Message: "the vendor rejected the stored credentials",
		}
	case errors.Is(err, vendordomain.ErrMalformed):
		return http.StatusBadGateway, errorPayload{
			Type:    "vendor_malformed",
			Message: "the vendor returned an unreadable response",
		}
	case errors.Is(err, vendordomain.ErrRateLimited),
		errors.Is(err, vendordomain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "vendor_unavailable",
			Message: "the vendor is unavailable, try again later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, accountdomain.ErrUnsupportedProvider),
		errors.Is(err, accountdomain.ErrAccountInactive),
		errors.Is(err, credentialdomain.ErrInvalidRole),
		errors.Is(err, costreportdomain.ErrInvalidRange):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, credentialdomain.ErrCredentialNotFound),
		errors.Is(err, vendordomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, accountdomain.ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, accountdomain.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, credentialdomain.ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, costreportdomain.ErrInvalidRange):
		return "invalid_date_range"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unsupported_provider":
		return "provider"
	case "invalid_role":
		return "role_arn"
	case "invalid_date_range":
		return "since"
	default:
		if strings.HasPrefix(code, "invalid_") {
			return strings.TrimPrefix(code, "invalid_")
		}
		return ""
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code
// fields without leaking message internals.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	switch {
	case status >= 500:
		return "server_error", code
	case status >= 400:
		return "client_error", code
	default:
		return "", code
	}
}
