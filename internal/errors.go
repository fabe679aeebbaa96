package internal

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
	ErrorTypeIntegrity    ErrorType = "INTEGRITY_WARNING"
	ErrorTypeRateLimited  ErrorType = "RATE_LIMITED"
	ErrorTypeAmbiguous    ErrorType = "AMBIGUOUS_MATCH"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidKind      ErrorCode = "INVALID_KIND"
	ErrCodeInvalidRail      ErrorCode = "INVALID_PAYMENT_RAIL"
	ErrCodeInvalidEmail     ErrorCode = "INVALID_EMAIL"
	ErrCodeRefundTooLarge   ErrorCode = "REFUND_EXCEEDS_PAID"
	ErrCodeNotRefundable    ErrorCode = "NOT_REFUNDABLE"
	ErrCodeNotCheckoutable  ErrorCode = "NOT_CHECKOUTABLE"

	ErrCodeRequestNotFound      ErrorCode = "REQUEST_NOT_FOUND"
	ErrCodeOrganizationNotFound ErrorCode = "ORGANIZATION_NOT_FOUND"
	ErrCodePaymentNotFound      ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentCodeNotFound  ErrorCode = "PAYMENT_CODE_NOT_FOUND"
	ErrCodeNoMatch              ErrorCode = "NO_MATCHING_REQUEST"
	ErrCodeIssueNotFound        ErrorCode = "ISSUE_NOT_FOUND"

	ErrCodePaymentRefConflict ErrorCode = "PAYMENT_REF_CONFLICT"
	ErrCodeSessionConflict    ErrorCode = "SESSION_REF_CONFLICT"
	ErrCodeStaleWrite         ErrorCode = "STALE_WRITE"
	ErrCodeAmbiguousMatch     ErrorCode = "AMBIGUOUS_MATCH"
	ErrCodeRailMismatch       ErrorCode = "PAYMENT_RAIL_MISMATCH"

	ErrCodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired      ErrorCode = "TOKEN_EXPIRED"
	ErrCodeMissingPermission ErrorCode = "MISSING_PERMISSION"
	ErrCodeInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"

	ErrCodeGatewayError     ErrorCode = "GATEWAY_ERROR"
	ErrCodeGatewayTimeout   ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeIntegrityWarning ErrorCode = "INTEGRITY_WARNING"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {

			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewGatewayError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeGatewayError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewGatewayTimeoutError marks an outcome as unknown; callers may retry.
func NewGatewayTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeGatewayTimeout,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewIntegrityWarning(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeIntegrity,
		Code:       ErrCodeIntegrityWarning,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewAmbiguousMatchError(message string, candidates interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeAmbiguous,
		Code:       ErrCodeAmbiguousMatch,
		Message:    message,
		Details:    candidates,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       ErrCodeRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

var (
	ErrRequestNotFound      = NewNotFoundError("Request not found", ErrCodeRequestNotFound)
	ErrOrganizationNotFound = NewNotFoundError("Organization not found", ErrCodeOrganizationNotFound)
	ErrPaymentNotFound      = NewNotFoundError("Payment not found at gateway", ErrCodePaymentNotFound)

	ErrInvalidToken     = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired     = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrInvalidSignature = NewUnauthorizedError("Invalid webhook signature", ErrCodeInvalidSignature)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given AppError code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
