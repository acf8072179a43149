package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the extraction/export pipeline. Stable strings: they appear in
// job rows and API payloads.
const (
	CodeValidation    = "VALIDATION"
	CodeProvider      = "PROVIDER_ERROR"
	CodeNormalization = "NORMALIZATION_ERROR"
	CodeNoData        = "NO_DATA"
	CodeStorage       = "STORAGE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeNotReady      = "NOT_READY"
	CodeExpired       = "EXPIRED"
	CodeInternal      = "INTERNAL"
)

// AppError represents application-specific errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Constructors for the pipeline's error taxonomy.

func ValidationError(message string) error {
	return &AppError{Code: CodeValidation, Message: message}
}

func ValidationErrorf(format string, args ...any) error {
	return ValidationError(fmt.Sprintf(format, args...))
}

func ProviderError(message string, cause error) error {
	return &AppError{Code: CodeProvider, Message: message, Cause: cause}
}

func NormalizationError(message string, cause error) error {
	return &AppError{Code: CodeNormalization, Message: message, Cause: cause}
}

func NoDataError(message string) error {
	return &AppError{Code: CodeNoData, Message: message}
}

func StorageError(message string, cause error) error {
	return &AppError{Code: CodeStorage, Message: message, Cause: cause}
}

func NotFoundError(message string) error {
	return &AppError{Code: CodeNotFound, Message: message}
}

func NotReadyError(message string) error {
	return &AppError{Code: CodeNotReady, Message: message}
}

func ExpiredError(message string) error {
	return &AppError{Code: CodeExpired, Message: message}
}

// IsCode reports whether err (or anything it wraps) is an AppError with the code.
func IsCode(err error, code string) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}

// HTTPStatus maps an error to the status the export surface responds with.
func HTTPStatus(err error) int {
	var ae *AppError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotReady:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
