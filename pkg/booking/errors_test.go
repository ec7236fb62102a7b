package booking

import (
	"errors"
	"testing"
)

func TestWrapErrorPreservesChain(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("commit", "reservation", "overlap", ErrConflict)
	if !errors.Is(wrapped, ErrConflict) {
		test.Fatalf("expected wrapped error to match ErrConflict")
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError in chain")
	}
	if operationError.Operation() != "commit" || operationError.Subject() != "reservation" || operationError.Code() != "overlap" {
		test.Fatalf("unexpected segments: %s.%s.%s", operationError.Operation(), operationError.Subject(), operationError.Code())
	}
	if wrapped.Error() != "commit.reservation.overlap: reservation conflict" {
		test.Fatalf("unexpected message: %s", wrapped.Error())
	}
}

func TestWrapErrorNilPassthrough(test *testing.T) {
	test.Parallel()
	if WrapError("commit", "reservation", "overlap", nil) != nil {
		test.Fatalf("wrapping nil must stay nil")
	}
}

func TestNoAvailabilityErrorUnwraps(test *testing.T) {
	test.Parallel()
	var err error = NoAvailabilityError{HomestayID: 1, UnitID: 10, Date: Date{}, Status: DayBooked}
	if !errors.Is(err, ErrNoAvailability) {
		test.Fatalf("expected ErrNoAvailability in chain")
	}
}

func TestNoAvailabilityErrorMessages(test *testing.T) {
	test.Parallel()
	date, parseErr := ParseDate("2025-10-14")
	if parseErr != nil {
		test.Fatalf("parse date: %v", parseErr)
	}
	dated := NoAvailabilityError{HomestayID: 1, UnitID: 10, Date: date, Status: DayBooked}
	if dated.Error() != "no availability for homestay 1: unit 10 is booked on 2025-10-14" {
		test.Fatalf("unexpected message: %s", dated.Error())
	}
	reasoned := NoAvailabilityError{HomestayID: 1, Reason: "no unit fits the requested guests"}
	if reasoned.Error() != "no availability for homestay 1: no unit fits the requested guests" {
		test.Fatalf("unexpected message: %s", reasoned.Error())
	}
	bare := NoAvailabilityError{HomestayID: 1}
	if bare.Error() != "no availability for homestay 1" {
		test.Fatalf("unexpected message: %s", bare.Error())
	}
}
