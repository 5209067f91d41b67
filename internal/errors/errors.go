package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict  = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")
)

// Coupon engine errors
var (
	ErrCouponNotFound         = new(ErrCodeCouponNotFound, "coupon not found")
	ErrCouponInactive         = new(ErrCodeCouponInactive, "coupon is inactive or expired")
	ErrCouponExhausted        = new(ErrCodeCouponExhausted, "coupon usage limit reached")
	ErrCouponUserLimitReached = new(ErrCodeCouponUserLimitReached, "coupon usage limit reached for user")
	ErrCouponNotEligible      = new(ErrCodeCouponNotEligible, "coupon not eligible for order")
	ErrOrderNotFound          = new(ErrCodeOrderNotFound, "order not found")
	ErrReservationRace        = new(ErrCodeReservationRace, "lost coupon reservation race")

	// ErrAlreadyUsedByUser is returned when a one time use coupon was already redeemed by the user
	ErrAlreadyUsedByUser = ErrCouponUserLimitReached
)

// maps errors to http status codes
var statusCodeMap = map[error]int{
	ErrDatabase:               http.StatusInternalServerError,
	ErrNotFound:               http.StatusNotFound,
	ErrAlreadyExists:          http.StatusConflict,
	ErrVersionConflict:        http.StatusConflict,
	ErrValidation:             http.StatusBadRequest,
	ErrInvalidOperation:       http.StatusBadRequest,
	ErrSystem:                 http.StatusInternalServerError,
	ErrCouponNotFound:         http.StatusNotFound,
	ErrCouponInactive:         http.StatusUnprocessableEntity,
	ErrCouponExhausted:        http.StatusConflict,
	ErrCouponUserLimitReached: http.StatusConflict,
	ErrCouponNotEligible:      http.StatusUnprocessableEntity,
	ErrOrderNotFound:          http.StatusNotFound,
	ErrReservationRace:        http.StatusConflict,
}

const (
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeVersionConflict  = "version_conflict"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeDatabase         = "database_error"

	ErrCodeCouponNotFound         = "coupon_not_found"
	ErrCodeCouponInactive         = "coupon_inactive"
	ErrCodeCouponExhausted        = "coupon_exhausted"
	ErrCodeCouponUserLimitReached = "coupon_user_limit_reached"
	ErrCodeCouponNotEligible      = "coupon_not_eligible"
	ErrCodeOrderNotFound          = "order_not_found"
	ErrCodeReservationRace        = "reservation_race"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

// Is reports whether err is marked with, or wraps, target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error of any kind
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsReservationRejected reports whether err is a rejected reservation that the
// order flow may skip instead of failing the order
func IsReservationRejected(err error) bool {
	return errors.Is(err, ErrCouponExhausted) ||
		errors.Is(err, ErrCouponUserLimitReached) ||
		errors.Is(err, ErrReservationRace)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// CodeFromErr returns the code of the first known sentinel err is marked with
func CodeFromErr(err error) string {
	for e := range statusCodeMap {
		if errors.Is(err, e) {
			return e.(*InternalError).Code
		}
	}
	return ErrCodeSystemError
}
