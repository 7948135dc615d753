package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Reason tags carried by DomainError so clients can branch without parsing messages.
const (
	ReasonMissingField        = "missing-field"
	ReasonWeakPassword        = "weak-password"
	ReasonInvalidPayload      = "invalid-payload"
	ReasonEmailTaken          = "email-taken"
	ReasonInvalidCredentials  = "invalid-credentials"
	ReasonMissingToken        = "missing-token"
	ReasonUnknownOrRevoked    = "unknown-or-revoked"
	ReasonInvalidToken        = "invalid-token"
	ReasonNoCredential        = "no-credential"
	ReasonMalformedCredential = "malformed-credential"
	ReasonInvalidOrExpired    = "invalid-or-expired"
	ReasonTooManyAttempts     = "too-many-attempts"
	ReasonUnknownEndpoint     = "unknown-endpoint"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Reason     string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, reason, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Reason: reason, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(reason, message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", reason, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(reason, message string) error {
	return NewDomainError("UNAUTHORIZED", reason, message, http.StatusUnauthorized, nil)
}

func NewConflict(reason, message string, details map[string]any) error {
	return NewDomainError("CONFLICT", reason, message, http.StatusConflict, details)
}

func NewTooManyRequests(message string) error {
	return NewDomainError("RATE_LIMITED", ReasonTooManyAttempts, message, http.StatusTooManyRequests, nil)
}

// NewInternalError hides err behind a generic message; err is only for server-side logs.
func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fromFiberError(fiberErr)
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func fromFiberError(err *fiber.Error) *DomainError {
	switch {
	case err.Code == http.StatusNotFound:
		return &DomainError{Code: "NOT_FOUND", Reason: ReasonUnknownEndpoint, Message: "endpoint not found", HTTPStatus: http.StatusNotFound}
	case err.Code == http.StatusMethodNotAllowed:
		return &DomainError{Code: "METHOD_NOT_ALLOWED", Message: err.Message, HTTPStatus: err.Code}
	case err.Code >= 400 && err.Code < 500:
		return &DomainError{Code: "BAD_REQUEST", Message: err.Message, HTTPStatus: err.Code}
	default:
		return &DomainError{
			Code:       "INTERNAL_ERROR",
			Message:    "internal server error",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}
}

// HasReason reports whether err is a DomainError tagged with reason.
func HasReason(err error, reason string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Reason == reason
}
