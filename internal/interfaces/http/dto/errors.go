package dto

import (
	"errors"
	"net/http"

	"github.com/graham/backend/internal/domain/shared"
)

// Error codes returned in the code field of error responses. Domain codes
// pass through unchanged; the rest are produced by the HTTP layer itself.
const (
	ErrCodeValidation          = shared.CodeValidation
	ErrCodeUnauthorized        = shared.CodeUnauthorized
	ErrCodeNotFound            = shared.CodeNotFound
	ErrCodeAlreadyExists       = shared.CodeAlreadyExist
	ErrCodePersistence         = shared.CodePersistence
	ErrCodeUpstream            = shared.CodeUpstream
	ErrCodeInvalidState        = shared.CodeInvalidState
	ErrCodeConcurrencyConflict = shared.CodeConflict

	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// InternalErrorMessage is the only message a 5xx response ever carries
const InternalErrorMessage = "Internal server error"

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodePersistence:         http.StatusInternalServerError,
	ErrCodeUpstream:            http.StatusBadGateway,
	ErrCodeUnavailable:         http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorFromDomain converts err into a status and error response.
// Server side failures never leak their message.
func ErrorFromDomain(err error) (int, Response) {
	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, NewErrorResponse(ErrCodeInternal, InternalErrorMessage)
	}
	status := GetHTTPStatus(domainErr.Code)
	if status >= http.StatusInternalServerError {
		return status, NewErrorResponse(domainErr.Code, InternalErrorMessage)
	}
	return status, NewErrorResponse(domainErr.Code, domainErr.Message)
}
