package booking

import (
	"context"
	"fmt"
	"testing"
)

// stubStore is an in-memory Store for service tests. InsertReservation
// enforces the per-unit non-overlap rule the way the real stores do, so
// commit paths can be exercised without a database.
type stubStore struct {
	homestays     map[HomestayID]Homestay
	units         map[UnitID]Unit
	overrides     map[UnitID]map[string]Override
	reservations  []Reservation
	nextUnit      UnitID
	nextRes       ReservationID
	forcedInsert  error
	insertedCodes []string
}

func newStubStore() *stubStore {
	return &stubStore{
		homestays: make(map[HomestayID]Homestay),
		units:     make(map[UnitID]Unit),
		overrides: make(map[UnitID]map[string]Override),
		nextUnit:  100,
		nextRes:   1,
	}
}

func (store *stubStore) addHomestay(homestay Homestay) {
	store.homestays[homestay.ID] = homestay
}

func (store *stubStore) addUnit(unit Unit) {
	store.units[unit.ID] = unit
}

func (store *stubStore) setOverride(override Override) {
	byDate, ok := store.overrides[override.UnitID]
	if !ok {
		byDate = make(map[string]Override)
		store.overrides[override.UnitID] = byDate
	}
	byDate[override.Date.String()] = override
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetHomestay(_ context.Context, homestayID HomestayID) (Homestay, error) {
	homestay, ok := store.homestays[homestayID]
	if !ok {
		return Homestay{}, WrapError("store", "homestay", "get", ErrNotFound)
	}
	return homestay, nil
}

func (store *stubStore) ListUnits(_ context.Context, homestayID HomestayID) ([]Unit, error) {
	units := make([]Unit, 0)
	for _, unit := range store.units {
		if unit.HomestayID == homestayID && unit.Kind == UnitKindRoom && unit.Active {
			units = append(units, unit)
		}
	}
	return units, nil
}

func (store *stubStore) GetUnit(_ context.Context, unitID UnitID) (Unit, error) {
	unit, ok := store.units[unitID]
	if !ok {
		return Unit{}, WrapError("store", "unit", "get", ErrNotFound)
	}
	return unit, nil
}

func (store *stubStore) GetOrCreateHomestayUnit(ctx context.Context, homestayID HomestayID) (Unit, error) {
	for _, unit := range store.units {
		if unit.HomestayID == homestayID && unit.Kind == UnitKindHomestay {
			return unit, nil
		}
	}
	homestay, err := store.GetHomestay(ctx, homestayID)
	if err != nil {
		return Unit{}, err
	}
	store.nextUnit++
	unit := Unit{
		ID:           store.nextUnit,
		HomestayID:   homestayID,
		Kind:         UnitKindHomestay,
		Name:         homestay.Name,
		MaxGuests:    homestay.MaxGuests,
		NightlyPrice: homestay.NightlyPrice,
		Active:       true,
	}
	store.units[unit.ID] = unit
	return unit, nil
}

func (store *stubStore) ListOverrides(_ context.Context, unitIDs []UnitID, span DateRange) ([]Override, error) {
	overrides := make([]Override, 0)
	for _, unitID := range unitIDs {
		for _, override := range store.overrides[unitID] {
			if span.Contains(override.Date) {
				overrides = append(overrides, override)
			}
		}
	}
	return overrides, nil
}

func (store *stubStore) UpsertOverrides(_ context.Context, updates []OverrideUpdate) (int, error) {
	for _, update := range updates {
		byDate, ok := store.overrides[update.UnitID]
		if !ok {
			byDate = make(map[string]Override)
			store.overrides[update.UnitID] = byDate
		}
		override, ok := byDate[update.Date.String()]
		if !ok {
			override = Override{UnitID: update.UnitID, Date: update.Date, Available: true}
		}
		if update.Available != nil {
			override.Available = *update.Available
		}
		if update.PriceOverride != nil {
			override.PriceOverride = update.PriceOverride
		}
		if update.MinNights != nil {
			override.MinNights = *update.MinNights
		}
		byDate[update.Date.String()] = override
	}
	return len(updates), nil
}

func (store *stubStore) ListActiveReservations(_ context.Context, unitIDs []UnitID, span DateRange) ([]Reservation, error) {
	matched := make([]Reservation, 0)
	for _, reservation := range store.reservations {
		if !reservation.Status.IsActive() || !reservation.Range().Overlaps(span) {
			continue
		}
		for _, unitID := range unitIDs {
			if reservation.UnitID == unitID {
				matched = append(matched, reservation)
				break
			}
		}
	}
	return matched, nil
}

func (store *stubStore) InsertReservation(_ context.Context, input ReservationInput) (Reservation, error) {
	if store.forcedInsert != nil {
		return Reservation{}, store.forcedInsert
	}
	requested := DateRange{CheckIn: input.CheckIn, CheckOut: input.CheckOut}
	for _, existing := range store.reservations {
		if existing.UnitID == input.UnitID && existing.Status.IsActive() && existing.Range().Overlaps(requested) {
			return Reservation{}, WrapError("store", "reservation", "overlap", ErrConflict)
		}
	}
	store.nextRes++
	reservation := Reservation{
		ID:             store.nextRes,
		Code:           input.Code,
		HomestayID:     input.HomestayID,
		UnitID:         input.UnitID,
		CheckIn:        input.CheckIn,
		CheckOut:       input.CheckOut,
		Guests:         input.Guests,
		Total:          input.Total,
		Status:         input.Status,
		GuestInfo:      input.GuestInfo,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.reservations = append(store.reservations, reservation)
	store.insertedCodes = append(store.insertedCodes, input.Code)
	return reservation, nil
}

func (store *stubStore) GetReservationByCode(_ context.Context, code string) (Reservation, error) {
	for _, reservation := range store.reservations {
		if reservation.Code == code {
			return reservation, nil
		}
	}
	return Reservation{}, WrapError("store", "reservation", "get", ErrNotFound)
}

func (store *stubStore) UpdateReservationStatus(_ context.Context, reservationID ReservationID, from []ReservationStatus, to ReservationStatus) error {
	for index, reservation := range store.reservations {
		if reservation.ID != reservationID {
			continue
		}
		for _, status := range from {
			if reservation.Status == status {
				store.reservations[index].Status = to
				return nil
			}
		}
		return WrapError("store", "reservation", "update_status", ErrInvalidState)
	}
	return WrapError("store", "reservation", "update_status", ErrNotFound)
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustDate(test *testing.T, raw string) Date {
	test.Helper()
	date, err := ParseDate(raw)
	if err != nil {
		test.Fatalf("parse date %q: %v", raw, err)
	}
	return date
}

func mustStay(test *testing.T, checkIn string, checkOut string) DateRange {
	test.Helper()
	stay, err := NewStayRange(mustDate(test, checkIn), mustDate(test, checkOut))
	if err != nil {
		test.Fatalf("stay range: %v", err)
	}
	return stay
}

func amountPtr(value int64) *Amount {
	amount := Amount(value)
	return &amount
}

// twoRoomHomestay seeds homestay 1 with rooms 10 and 20.
func twoRoomHomestay(store *stubStore, priceRoom10 int64, priceRoom20 int64) {
	store.addHomestay(Homestay{ID: 1, Name: "Casa Valley", MaxGuests: 6, Active: true})
	store.addUnit(Unit{
		ID: 10, HomestayID: 1, Kind: UnitKindRoom, Name: "Room A",
		MaxGuests: 2, NightlyPrice: amountPtr(priceRoom10), Active: true,
	})
	store.addUnit(Unit{
		ID: 20, HomestayID: 1, Kind: UnitKindRoom, Name: "Room B",
		MaxGuests: 2, NightlyPrice: amountPtr(priceRoom20), Active: true,
	})
}

func seedReservation(store *stubStore, unitID UnitID, checkIn Date, checkOut Date, status ReservationStatus) Reservation {
	store.nextRes++
	reservation := Reservation{
		ID:         store.nextRes,
		Code:       fmt.Sprintf("seed-%d", store.nextRes),
		HomestayID: 1,
		UnitID:     unitID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     2,
		Status:     status,
	}
	store.reservations = append(store.reservations, reservation)
	return reservation
}
