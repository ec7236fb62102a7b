package booking

import (
	"context"
	"errors"
	"testing"
)

func TestCommitCreatesPendingReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store, WithCodeGenerator(func() string { return "BKTEST1" }))

	reservation, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1,
		UnitID:     20,
		CheckIn:    mustDate(test, "2025-10-10"),
		CheckOut:   mustDate(test, "2025-10-12"),
		Guests:     2,
	})
	if err != nil {
		test.Fatalf("commit: %v", err)
	}
	if reservation.Status != ReservationStatusPending {
		test.Fatalf("expected pending, got %s", reservation.Status)
	}
	if reservation.Code != "BKTEST1" {
		test.Fatalf("unexpected code %s", reservation.Code)
	}
	if reservation.Total != 800000 {
		test.Fatalf("expected recomputed total 800000, got %d", reservation.Total)
	}
}

func TestCommitAppliesDiscountFlooredAtZero(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store)

	reservation, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1,
		UnitID:     20,
		CheckIn:    mustDate(test, "2025-10-10"),
		CheckOut:   mustDate(test, "2025-10-12"),
		Guests:     2,
		Discount:   150000,
	})
	if err != nil {
		test.Fatalf("commit: %v", err)
	}
	if reservation.Total != 650000 {
		test.Fatalf("expected discounted total 650000, got %d", reservation.Total)
	}

	oversized, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1,
		UnitID:     10,
		CheckIn:    mustDate(test, "2025-10-10"),
		CheckOut:   mustDate(test, "2025-10-11"),
		Guests:     2,
		Discount:   9000000,
	})
	if err != nil {
		test.Fatalf("commit: %v", err)
	}
	if oversized.Total != 0 {
		test.Fatalf("discount must floor at zero, got %d", oversized.Total)
	}
}

func TestCommitRejectsStaleQuote(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 400000, 550000)
	service := mustNewService(test, store)

	reservation, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID:  1,
		UnitID:      10,
		CheckIn:     mustDate(test, "2025-10-10"),
		CheckOut:    mustDate(test, "2025-10-12"),
		Guests:      2,
		QuotedTotal: amountPtr(800000),
	})
	if err != nil {
		test.Fatalf("commit with matching quote: %v", err)
	}
	if reservation.Total != 800000 {
		test.Fatalf("unexpected total: %d", reservation.Total)
	}

	// A price change after admission invalidates the old quote.
	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID:  1,
		UnitID:      20,
		CheckIn:     mustDate(test, "2025-10-10"),
		CheckOut:    mustDate(test, "2025-10-12"),
		Guests:      2,
		QuotedTotal: amountPtr(800000),
	}); !errors.Is(err, ErrConflict) {
		test.Fatalf("stale quote must surface ErrConflict, got %v", err)
	}
	if len(store.reservations) != 1 {
		test.Fatalf("rejected commit must not persist, got %d reservations", len(store.reservations))
	}
}

func TestCommitConflictsOnOverlap(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store)
	input := CommitInput{
		HomestayID: 1,
		UnitID:     20,
		CheckIn:    mustDate(test, "2025-10-10"),
		CheckOut:   mustDate(test, "2025-10-12"),
		Guests:     2,
	}
	if _, err := service.CommitReservation(context.Background(), input); err != nil {
		test.Fatalf("first commit: %v", err)
	}
	if _, err := service.CommitReservation(context.Background(), input); !errors.Is(err, ErrConflict) {
		test.Fatalf("expected ErrConflict, got %v", err)
	}
}

// A reservation for [Oct 10, Oct 12) occupies Oct 10 and 11 but not Oct 12,
// so a back-to-back stay starting Oct 12 must succeed.
func TestCommitHalfOpenBackToBack(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store)

	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	}); err != nil {
		test.Fatalf("first commit: %v", err)
	}
	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-12"),
		CheckOut: mustDate(test, "2025-10-14"),
	}); err != nil {
		test.Fatalf("back-to-back commit must succeed: %v", err)
	}
}

func TestCommitSurfacesStoreConflict(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	store.forcedInsert = WrapError("store", "reservation", "overlap", ErrConflict)
	service := mustNewService(test, store)

	_, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	})
	if !errors.Is(err, ErrConflict) {
		test.Fatalf("constraint violations must surface as ErrConflict, got %v", err)
	}
}

func TestPaymentConfirmIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store, WithCodeGenerator(func() string { return "BKPAY" }))
	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	}); err != nil {
		test.Fatalf("commit: %v", err)
	}

	if err := service.OnPaymentResult(context.Background(), "BKPAY", true); err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if err := service.OnPaymentResult(context.Background(), "BKPAY", true); err != nil {
		test.Fatalf("repeat confirm must be a no-op: %v", err)
	}
	reservation, err := service.Reservation(context.Background(), "BKPAY")
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if reservation.Status != ReservationStatusConfirmed {
		test.Fatalf("expected confirmed, got %s", reservation.Status)
	}
}

func TestPaymentFailureCancelsPending(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store, WithCodeGenerator(func() string { return "BKFAIL" }))
	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	}); err != nil {
		test.Fatalf("commit: %v", err)
	}

	if err := service.OnPaymentResult(context.Background(), "BKFAIL", false); err != nil {
		test.Fatalf("failure callback: %v", err)
	}
	reservation, err := service.Reservation(context.Background(), "BKFAIL")
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if reservation.Status != ReservationStatusCancelled {
		test.Fatalf("expected cancelled, got %s", reservation.Status)
	}
}

func TestPaymentConfirmOnCancelledIsInvalidState(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store, WithCodeGenerator(func() string { return "BKDEAD" }))
	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	}); err != nil {
		test.Fatalf("commit: %v", err)
	}
	if err := service.Cancel(context.Background(), "BKDEAD"); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if err := service.OnPaymentResult(context.Background(), "BKDEAD", true); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelFreesDatesForAdmission(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store, WithCodeGenerator(func() string { return "BKFREE" }))
	stayInput := CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	}
	if _, err := service.CommitReservation(context.Background(), stayInput); err != nil {
		test.Fatalf("commit: %v", err)
	}
	if err := service.OnPaymentResult(context.Background(), "BKFREE", true); err != nil {
		test.Fatalf("confirm: %v", err)
	}

	check := CheckStayInput{
		HomestayID: 1,
		CheckIn:    stayInput.CheckIn,
		CheckOut:   stayInput.CheckOut,
		Guests:     2,
		UnitID:     &stayInput.UnitID,
	}
	if _, err := service.CheckStay(context.Background(), check); !errors.Is(err, ErrNoAvailability) {
		test.Fatalf("expected occupied unit, got %v", err)
	}
	if err := service.Cancel(context.Background(), "BKFREE"); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if _, err := service.CheckStay(context.Background(), check); err != nil {
		test.Fatalf("cancelled reservation must free its dates: %v", err)
	}
}

func TestCompleteRequiresConfirmed(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store, WithCodeGenerator(func() string { return "BKDONE" }))
	if _, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 20, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	}); err != nil {
		test.Fatalf("commit: %v", err)
	}
	if err := service.Complete(context.Background(), "BKDONE"); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("completing a pending reservation must fail, got %v", err)
	}
	if err := service.OnPaymentResult(context.Background(), "BKDONE", true); err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if err := service.Complete(context.Background(), "BKDONE"); err != nil {
		test.Fatalf("complete: %v", err)
	}
	if err := service.Cancel(context.Background(), "BKDONE"); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("cancelling a completed reservation must fail, got %v", err)
	}
}

func TestCommitUnknownUnit(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store)
	_, err := service.CommitReservation(context.Background(), CommitInput{
		HomestayID: 1, UnitID: 999, Guests: 2,
		CheckIn:  mustDate(test, "2025-10-10"),
		CheckOut: mustDate(test, "2025-10-12"),
	})
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
	if _, err := NewService(newStubStore(), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}
