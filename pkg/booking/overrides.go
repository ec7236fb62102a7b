package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// BlockDates marks every (unit, date) pair in the span unavailable. Room
// units get availability overrides; the implicit whole-homestay unit gets
// per-date blocked reservations instead, so the block passes through the same
// overlap exclusivity as guest bookings. Dates already occupied by an active
// reservation are left alone. Re-applying the same span is a no-op.
// Blocking never cancels an existing reservation.
func (service *Service) BlockDates(ctx context.Context, homestayID HomestayID, unitIDs []UnitID, span DateRange) (int, error) {
	count, err := service.writeBlocks(ctx, homestayID, unitIDs, span, false)
	service.logOperation(ctx, OperationLog{
		Operation:  operationBlock,
		HomestayID: homestayID,
		CheckIn:    span.CheckIn,
		CheckOut:   span.CheckOut,
		Error:      err,
	})
	return count, err
}

// UnblockDates marks every (unit, date) pair in the span explicitly
// available. Blocked reservations on the implicit homestay unit inside the
// span are cancelled; guest reservations are never touched, and a cancelled
// reservation is never resurrected.
func (service *Service) UnblockDates(ctx context.Context, homestayID HomestayID, unitIDs []UnitID, span DateRange) (int, error) {
	count, err := service.writeBlocks(ctx, homestayID, unitIDs, span, true)
	service.logOperation(ctx, OperationLog{
		Operation:  operationUnblock,
		HomestayID: homestayID,
		CheckIn:    span.CheckIn,
		CheckOut:   span.CheckOut,
		Error:      err,
	})
	return count, err
}

// SetNightlyPrice upserts a price override for every (unit, date) pair in the
// span, leaving availability untouched. Idempotent.
func (service *Service) SetNightlyPrice(ctx context.Context, homestayID HomestayID, unitIDs []UnitID, span DateRange, price Amount) (int, error) {
	count, err := service.setNightlyPrice(ctx, homestayID, unitIDs, span, price)
	service.logOperation(ctx, OperationLog{
		Operation:  operationSetPrice,
		HomestayID: homestayID,
		CheckIn:    span.CheckIn,
		CheckOut:   span.CheckOut,
		Amount:     price,
		Error:      err,
	})
	return count, err
}

func (service *Service) setNightlyPrice(ctx context.Context, homestayID HomestayID, unitIDs []UnitID, span DateRange, price Amount) (int, error) {
	if price <= 0 {
		return 0, WrapError(operationSetPrice, "price", "invalid", ErrInvalidAmount)
	}
	count := 0
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		units, err := service.resolveTargetUnits(ctx, txStore, homestayID, unitIDs)
		if err != nil {
			return err
		}
		updates := make([]OverrideUpdate, 0, len(units)*span.Nights())
		value := price
		for _, unit := range units {
			for _, date := range span.Dates() {
				updates = append(updates, OverrideUpdate{UnitID: unit.ID, Date: date, PriceOverride: &value})
			}
		}
		count, err = txStore.UpsertOverrides(ctx, updates)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (service *Service) writeBlocks(ctx context.Context, homestayID HomestayID, unitIDs []UnitID, span DateRange, available bool) (int, error) {
	if span.Nights() < 1 {
		return 0, fmt.Errorf("%w: empty span", ErrInvalidRange)
	}
	count := 0
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		units, err := service.resolveTargetUnits(ctx, txStore, homestayID, unitIDs)
		if err != nil {
			return err
		}
		rooms := make([]Unit, 0, len(units))
		for _, unit := range units {
			if unit.Kind == UnitKindHomestay {
				written, err := service.writeHomestayBlocks(ctx, txStore, unit, span, available)
				if err != nil {
					return err
				}
				count += written
				continue
			}
			rooms = append(rooms, unit)
		}
		if len(rooms) == 0 {
			return nil
		}
		updates := make([]OverrideUpdate, 0, len(rooms)*span.Nights())
		flag := available
		for _, unit := range rooms {
			for _, date := range span.Dates() {
				updates = append(updates, OverrideUpdate{UnitID: unit.ID, Date: date, Available: &flag})
			}
		}
		written, err := txStore.UpsertOverrides(ctx, updates)
		if err != nil {
			return err
		}
		count += written
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// writeHomestayBlocks blocks or unblocks the implicit whole-homestay unit by
// inserting or cancelling per-date blocked reservations.
func (service *Service) writeHomestayBlocks(ctx context.Context, txStore Store, unit Unit, span DateRange, available bool) (int, error) {
	existing, err := txStore.ListActiveReservations(ctx, []UnitID{unit.ID}, span)
	if err != nil {
		return 0, err
	}
	if available {
		cancelled := 0
		for _, reservation := range existing {
			if reservation.Status != ReservationStatusBlocked {
				continue
			}
			if reservation.CheckIn.Before(span.CheckIn) || reservation.CheckOut.After(span.CheckOut) {
				continue
			}
			if err := txStore.UpdateReservationStatus(ctx, reservation.ID,
				[]ReservationStatus{ReservationStatusBlocked}, ReservationStatusCancelled); err != nil {
				return 0, err
			}
			cancelled++
		}
		return cancelled, nil
	}
	guestInfo, err := NewMetadataJSON(`{"reason":"blocked by host"}`)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, date := range span.Dates() {
		occupied := false
		for _, reservation := range existing {
			if reservation.Range().Contains(date) {
				occupied = true
				break
			}
		}
		if occupied {
			continue
		}
		_, err := txStore.InsertReservation(ctx, ReservationInput{
			Code:           fmt.Sprintf("%s_%d_%s", blockCodePrefix, unit.HomestayID, uuid.NewString()),
			HomestayID:     unit.HomestayID,
			UnitID:         unit.ID,
			CheckIn:        date,
			CheckOut:       date.AddDays(1),
			Guests:         0,
			Total:          0,
			Status:         ReservationStatusBlocked,
			GuestInfo:      guestInfo,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return 0, err
		}
		inserted++
	}
	return inserted, nil
}

// resolveTargetUnits expands an explicit unit selection, validating ownership,
// or falls back to every unit date operations run over.
func (service *Service) resolveTargetUnits(ctx context.Context, txStore Store, homestayID HomestayID, unitIDs []UnitID) ([]Unit, error) {
	if len(unitIDs) == 0 {
		return service.candidateUnits(ctx, txStore, homestayID, nil)
	}
	units := make([]Unit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		unit, err := txStore.GetUnit(ctx, unitID)
		if err != nil {
			return nil, err
		}
		if unit.HomestayID != homestayID {
			return nil, WrapError(operationBlock, "unit", "wrong_homestay", ErrNotFound)
		}
		units = append(units, unit)
	}
	sortUnitsByID(units)
	return units, nil
}
