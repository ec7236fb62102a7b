package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service contains the booking domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	codeFn func() string
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	service.codeFn = func() string {
		return fmt.Sprintf("%s%s", bookingCodePrefix, uuid.NewString())
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CommitInput carries a validated stay into the exclusive commit.
// QuotedTotal, when set, is the pre-discount total the guest was quoted at
// admission; a commit whose recomputed total differs is rejected so a price
// change between check and commit can never silently alter the charge.
type CommitInput struct {
	HomestayID  HomestayID
	UnitID      UnitID
	CheckIn     Date
	CheckOut    Date
	Guests      int
	Discount    Amount
	QuotedTotal *Amount
	GuestInfo   MetadataJSON
}

// CommitReservation turns an admitted stay into a persisted pending
// reservation. The overlap re-check and the insert run as one atomic unit: if
// two commits race for overlapping dates on the same unit, at most one
// succeeds and the loser receives ErrConflict so the caller can re-run
// admission. The total is recomputed inside the transaction and the external
// discount is subtracted, floored at zero.
func (service *Service) CommitReservation(ctx context.Context, input CommitInput) (Reservation, error) {
	reservation, err := service.commitReservation(ctx, input)
	service.logOperation(ctx, OperationLog{
		Operation:       operationCommit,
		HomestayID:      input.HomestayID,
		UnitID:          input.UnitID,
		ReservationCode: reservation.Code,
		CheckIn:         input.CheckIn,
		CheckOut:        input.CheckOut,
		Amount:          reservation.Total,
		Error:           err,
	})
	return reservation, err
}

func (service *Service) commitReservation(ctx context.Context, input CommitInput) (Reservation, error) {
	stay, err := NewStayRange(input.CheckIn, input.CheckOut)
	if err != nil {
		return Reservation{}, err
	}
	if input.Guests < 1 {
		return Reservation{}, WrapError(operationCommit, "guests", "invalid", ErrInvalidGuests)
	}
	if input.Discount < 0 {
		return Reservation{}, WrapError(operationCommit, "discount", "invalid", ErrInvalidAmount)
	}
	var created Reservation
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		unit, err := txStore.GetUnit(ctx, input.UnitID)
		if err != nil {
			return err
		}
		if unit.HomestayID != input.HomestayID {
			return WrapError(operationCommit, "unit", "wrong_homestay", ErrNotFound)
		}
		data, err := service.loadCalendarData(ctx, txStore, []UnitID{unit.ID}, stay)
		if err != nil {
			return err
		}
		nightly, block, err := evaluateStay(unit, stay, data)
		if err != nil {
			return err
		}
		if block != nil {
			return WrapError(operationCommit, "reservation", "overlap", ErrConflict)
		}
		total := Amount(0)
		for _, quote := range nightly {
			total += quote.Price
		}
		if input.QuotedTotal != nil && *input.QuotedTotal != total {
			return WrapError(operationCommit, "price", "quote_mismatch", ErrConflict)
		}
		total -= input.Discount
		if total < 0 {
			total = 0
		}
		created, err = txStore.InsertReservation(ctx, ReservationInput{
			Code:           service.codeFn(),
			HomestayID:     input.HomestayID,
			UnitID:         unit.ID,
			CheckIn:        stay.CheckIn,
			CheckOut:       stay.CheckOut,
			Guests:         input.Guests,
			Total:          total,
			Status:         ReservationStatusPending,
			GuestInfo:      input.GuestInfo,
			CreatedUnixUTC: service.nowFn(),
		})
		return err
	})
	if err != nil {
		return Reservation{}, err
	}
	return created, nil
}

// OnPaymentResult applies the payment collaborator's callback. Success moves
// pending to confirmed and is idempotent for already-confirmed reservations;
// failure cancels a pending reservation, freeing its dates.
func (service *Service) OnPaymentResult(ctx context.Context, code string, success bool) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		reservation, err := txStore.GetReservationByCode(ctx, code)
		if err != nil {
			return err
		}
		if success {
			if reservation.Status == ReservationStatusConfirmed {
				return nil
			}
			if reservation.Status != ReservationStatusPending {
				return WrapError(operationPayment, "reservation", "not_pending", ErrInvalidState)
			}
			return txStore.UpdateReservationStatus(ctx, reservation.ID,
				[]ReservationStatus{ReservationStatusPending}, ReservationStatusConfirmed)
		}
		if reservation.Status == ReservationStatusCancelled {
			return nil
		}
		if reservation.Status != ReservationStatusPending {
			return WrapError(operationPayment, "reservation", "not_pending", ErrInvalidState)
		}
		return txStore.UpdateReservationStatus(ctx, reservation.ID,
			[]ReservationStatus{ReservationStatusPending}, ReservationStatusCancelled)
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationPayment,
		ReservationCode: code,
		Error:           operationError,
	})
	return operationError
}

// Cancel moves a pending or confirmed reservation to cancelled, freeing its
// dates immediately for future admission.
func (service *Service) Cancel(ctx context.Context, code string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		reservation, err := txStore.GetReservationByCode(ctx, code)
		if err != nil {
			return err
		}
		switch reservation.Status {
		case ReservationStatusPending, ReservationStatusConfirmed:
			return txStore.UpdateReservationStatus(ctx, reservation.ID,
				[]ReservationStatus{ReservationStatusPending, ReservationStatusConfirmed}, ReservationStatusCancelled)
		}
		return WrapError(operationCancel, "reservation", "closed", ErrInvalidState)
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationCancel,
		ReservationCode: code,
		Error:           operationError,
	})
	return operationError
}

// Complete moves a confirmed reservation to completed once the stay ends.
func (service *Service) Complete(ctx context.Context, code string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		reservation, err := txStore.GetReservationByCode(ctx, code)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationStatusConfirmed {
			return WrapError(operationComplete, "reservation", "not_confirmed", ErrInvalidState)
		}
		return txStore.UpdateReservationStatus(ctx, reservation.ID,
			[]ReservationStatus{ReservationStatusConfirmed}, ReservationStatusCompleted)
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationComplete,
		ReservationCode: code,
		Error:           operationError,
	})
	return operationError
}

// Reservation returns a reservation by its booking code.
func (service *Service) Reservation(ctx context.Context, code string) (Reservation, error) {
	return service.store.GetReservationByCode(ctx, code)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
