package booking

import (
	"context"
	"errors"
	"testing"
)

func TestCalendarStatusPriority(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	unitID := UnitID(10)

	// Oct 10 confirmed, Oct 11 pending, Oct 12 blocked by override,
	// Oct 13 explicitly available, Oct 14 untouched.
	seedReservation(store, unitID, mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"), ReservationStatusConfirmed)
	seedReservation(store, unitID, mustDate(test, "2025-10-11"), mustDate(test, "2025-10-12"), ReservationStatusPending)
	store.setOverride(Override{UnitID: unitID, Date: mustDate(test, "2025-10-12"), Available: false})
	store.setOverride(Override{UnitID: unitID, Date: mustDate(test, "2025-10-13"), Available: true})

	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-15"))
	days, err := service.Calendar(context.Background(), 1, &unitID, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	want := []DayStatus{DayBooked, DayPending, DayBlocked, DayAvailable, DayNotSet}
	if len(days) != len(want) {
		test.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for index, status := range want {
		if days[index].Status != status {
			test.Fatalf("day %s: expected %s, got %s", days[index].Date, status, days[index].Status)
		}
	}
	if days[4].Price == nil || *days[4].Price != 500000 {
		test.Fatalf("not_set day must still price the unit")
	}
	if days[0].Price != nil {
		test.Fatalf("booked day must carry no price")
	}
}

func TestCalendarOverrideBeatsReservationOnlyWhenNoneCovers(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	unitID := UnitID(10)
	// A confirmed reservation outranks a same-day blocking override.
	seedReservation(store, unitID, mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"), ReservationStatusConfirmed)
	store.setOverride(Override{UnitID: unitID, Date: mustDate(test, "2025-10-10"), Available: false})

	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"))
	days, err := service.Calendar(context.Background(), 1, &unitID, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	if days[0].Status != DayBooked {
		test.Fatalf("expected booked, got %s", days[0].Status)
	}
}

func TestCalendarAggregateTakesMostAvailableAndMinPrice(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	// Room 20 is booked; room 10 stays open, so the aggregate is available
	// and priced at room 10's nightly rate.
	seedReservation(store, 20, mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"), ReservationStatusConfirmed)

	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"))
	days, err := service.Calendar(context.Background(), 1, nil, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	if days[0].Status != DayNotSet {
		test.Fatalf("expected not_set aggregate, got %s", days[0].Status)
	}
	if days[0].Price == nil || *days[0].Price != 500000 {
		test.Fatalf("expected min price over open units, got %v", days[0].Price)
	}
	if days[0].AvailableUnits != 1 || days[0].BookedUnits != 1 {
		test.Fatalf("unexpected counts: %+v", days[0])
	}
}

func TestCalendarAggregatePrefersExplicitAvailable(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	store.setOverride(Override{UnitID: 20, Date: mustDate(test, "2025-10-10"), Available: true})

	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"))
	days, err := service.Calendar(context.Background(), 1, nil, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	if days[0].Status != DayAvailable {
		test.Fatalf("one explicitly open unit must make the day available, got %s", days[0].Status)
	}
	if days[0].Price == nil || *days[0].Price != 400000 {
		test.Fatalf("expected cheapest open unit price, got %v", days[0].Price)
	}
}

func TestCalendarUnknownHomestay(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"))
	if _, err := service.Calendar(context.Background(), 99, nil, span); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlockDatesIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-13"))

	if _, err := service.BlockDates(context.Background(), 1, nil, span); err != nil {
		test.Fatalf("block: %v", err)
	}
	first, err := service.Calendar(context.Background(), 1, nil, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	if _, err := service.BlockDates(context.Background(), 1, nil, span); err != nil {
		test.Fatalf("second block: %v", err)
	}
	second, err := service.Calendar(context.Background(), 1, nil, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	for index := range first {
		if first[index].Status != DayBlocked || second[index].Status != first[index].Status {
			test.Fatalf("blocking twice changed the calendar on %s", first[index].Date)
		}
	}
}

func TestBlockThenUnblockLeavesExplicitAvailability(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	store.setOverride(Override{UnitID: 10, Date: mustDate(test, "2025-10-10"), Available: true, PriceOverride: amountPtr(650000)})
	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"))

	if _, err := service.BlockDates(context.Background(), 1, []UnitID{10}, span); err != nil {
		test.Fatalf("block: %v", err)
	}
	if _, err := service.UnblockDates(context.Background(), 1, []UnitID{10}, span); err != nil {
		test.Fatalf("unblock: %v", err)
	}
	unitID := UnitID(10)
	days, err := service.Calendar(context.Background(), 1, &unitID, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	if days[0].Status != DayAvailable {
		test.Fatalf("expected explicit available after unblock, got %s", days[0].Status)
	}
	if days[0].Price == nil || *days[0].Price != 650000 {
		test.Fatalf("blocking must not clobber the price override, got %v", days[0].Price)
	}
}

func TestSetNightlyPriceDoesNotTouchAvailability(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	store.setOverride(Override{UnitID: 10, Date: mustDate(test, "2025-10-10"), Available: false})
	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-12"))

	count, err := service.SetNightlyPrice(context.Background(), 1, []UnitID{10}, span, 800000)
	if err != nil {
		test.Fatalf("set price: %v", err)
	}
	if count != 2 {
		test.Fatalf("expected 2 upserts, got %d", count)
	}
	unitID := UnitID(10)
	days, err := service.Calendar(context.Background(), 1, &unitID, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	if days[0].Status != DayBlocked {
		test.Fatalf("pricing must not unblock a date, got %s", days[0].Status)
	}
	if days[1].Status != DayAvailable || days[1].Price == nil || *days[1].Price != 800000 {
		test.Fatalf("expected priced available day, got %+v", days[1])
	}
}

func TestSetNightlyPriceRejectsNonPositive(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-11"))
	if _, err := service.SetNightlyPrice(context.Background(), 1, nil, span, 0); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestBlockedDatesListing(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	twoRoomHomestay(store, 500000, 400000)
	store.setOverride(Override{UnitID: 10, Date: mustDate(test, "2025-10-11"), Available: false})
	seedReservation(store, 20, mustDate(test, "2025-10-10"), mustDate(test, "2025-10-12"), ReservationStatusConfirmed)

	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-10-10"), mustDate(test, "2025-10-13"))
	blocked, err := service.BlockedDates(context.Background(), 1, span)
	if err != nil {
		test.Fatalf("blocked dates: %v", err)
	}
	if len(blocked) != 3 {
		test.Fatalf("expected 3 entries, got %d: %+v", len(blocked), blocked)
	}
	if !blocked[0].Date.Equal(mustDate(test, "2025-10-10")) || blocked[0].UnitID != 20 || blocked[0].Status != DayBooked {
		test.Fatalf("unexpected first entry: %+v", blocked[0])
	}
	if !blocked[1].Date.Equal(mustDate(test, "2025-10-11")) || blocked[1].UnitID != 10 || blocked[1].Status != DayBlocked {
		test.Fatalf("unexpected second entry: %+v", blocked[1])
	}
}

func TestHomestayWithoutRoomsBlocksViaReservations(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHomestay(Homestay{ID: 2, Name: "Casa Sola", MaxGuests: 4, NightlyPrice: amountPtr(900000), Active: true})
	service := mustNewService(test, store)
	span, _ := NewSpan(mustDate(test, "2025-11-01"), mustDate(test, "2025-11-04"))

	count, err := service.BlockDates(context.Background(), 2, nil, span)
	if err != nil {
		test.Fatalf("block: %v", err)
	}
	if count != 3 {
		test.Fatalf("expected 3 blocked days, got %d", count)
	}
	days, err := service.Calendar(context.Background(), 2, nil, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	for _, day := range days {
		if day.Status != DayBlocked {
			test.Fatalf("expected blocked day on %s, got %s", day.Date, day.Status)
		}
	}

	// Re-blocking inserts nothing new; unblocking cancels the block rows.
	again, err := service.BlockDates(context.Background(), 2, nil, span)
	if err != nil || again != 0 {
		test.Fatalf("expected idempotent re-block, got %d (%v)", again, err)
	}
	freed, err := service.UnblockDates(context.Background(), 2, nil, span)
	if err != nil || freed != 3 {
		test.Fatalf("expected 3 cancelled blocks, got %d (%v)", freed, err)
	}
	days, err = service.Calendar(context.Background(), 2, nil, span)
	if err != nil {
		test.Fatalf("calendar: %v", err)
	}
	for _, day := range days {
		if day.Status != DayNotSet {
			test.Fatalf("expected freed day on %s, got %s", day.Date, day.Status)
		}
	}
}
