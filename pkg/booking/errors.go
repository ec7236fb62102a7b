package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrInvalidRange         = errors.New("invalid date range")
	ErrNotFound             = errors.New("not found")
	ErrNoAvailability       = errors.New("no availability")
	ErrConflict             = errors.New("reservation conflict")
	ErrInvalidState         = errors.New("invalid reservation state")
	ErrPriceNotConfigured   = errors.New("price not configured")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidGuests        = errors.New("invalid guest count")
	ErrInvalidStatus        = errors.New("invalid reservation status")
	ErrInvalidMetadataJSON  = errors.New("invalid metadata json")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// NoAvailabilityError reports the earliest date that disqualified a stay so
// callers can show a precise message. It unwraps to ErrNoAvailability.
type NoAvailabilityError struct {
	HomestayID HomestayID
	UnitID     UnitID
	Date       Date
	Status     DayStatus
	Reason     string
}

// Error returns the formatted failure message.
func (err NoAvailabilityError) Error() string {
	if err.Reason != "" {
		return fmt.Sprintf("no availability for homestay %d: %s", err.HomestayID, err.Reason)
	}
	if err.Date.IsZero() {
		return fmt.Sprintf("no availability for homestay %d", err.HomestayID)
	}
	return fmt.Sprintf("no availability for homestay %d: unit %d is %s on %s", err.HomestayID, err.UnitID, err.Status, err.Date)
}

// Unwrap links the error to ErrNoAvailability.
func (err NoAvailabilityError) Unwrap() error {
	return ErrNoAvailability
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
