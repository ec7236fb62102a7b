package booking

import "context"

// statusRank orders day statuses from most to least available. The homestay
// aggregate for a date is the best-ranked status across its units.
var statusRank = map[DayStatus]int{
	DayAvailable: 0,
	DayNotSet:    1,
	DayPending:   2,
	DayBooked:    3,
	DayBlocked:   4,
}

// calendarData is the pre-loaded state a calendar or admission walk reads.
type calendarData struct {
	overrides    map[UnitID]map[string]Override
	reservations map[UnitID][]Reservation
}

func (service *Service) loadCalendarData(ctx context.Context, store Store, unitIDs []UnitID, span DateRange) (calendarData, error) {
	data := calendarData{
		overrides:    make(map[UnitID]map[string]Override),
		reservations: make(map[UnitID][]Reservation),
	}
	overrides, err := store.ListOverrides(ctx, unitIDs, span)
	if err != nil {
		return calendarData{}, err
	}
	for _, override := range overrides {
		byDate, ok := data.overrides[override.UnitID]
		if !ok {
			byDate = make(map[string]Override)
			data.overrides[override.UnitID] = byDate
		}
		byDate[override.Date.String()] = override
	}
	reservations, err := store.ListActiveReservations(ctx, unitIDs, span)
	if err != nil {
		return calendarData{}, err
	}
	for _, reservation := range reservations {
		data.reservations[reservation.UnitID] = append(data.reservations[reservation.UnitID], reservation)
	}
	return data, nil
}

func (data calendarData) override(unitID UnitID, date Date) *Override {
	byDate, ok := data.overrides[unitID]
	if !ok {
		return nil
	}
	override, ok := byDate[date.String()]
	if !ok {
		return nil
	}
	return &override
}

// dayStatus derives the status of one unit on one date. Priority: confirmed
// reservation, pending reservation, blocked reservation or blocking override,
// explicit availability override, then not_set (no record at all).
func (data calendarData) dayStatus(unitID UnitID, date Date) DayStatus {
	blocked := false
	for _, reservation := range data.reservations[unitID] {
		if !reservation.Range().Contains(date) {
			continue
		}
		switch reservation.Status {
		case ReservationStatusConfirmed:
			return DayBooked
		case ReservationStatusPending:
			return DayPending
		case ReservationStatusBlocked:
			blocked = true
		}
	}
	if blocked {
		return DayBlocked
	}
	override := data.override(unitID, date)
	if override == nil {
		return DayNotSet
	}
	if !override.Available {
		return DayBlocked
	}
	return DayAvailable
}

// Calendar composes overrides, reservations, and pricing into a day-by-day
// view over [span.CheckIn, span.CheckOut). With a unit filter it reports that
// unit; otherwise it aggregates over all active units of the homestay, using
// the most-available status and the minimum effective price per date.
func (service *Service) Calendar(ctx context.Context, homestayID HomestayID, unitID *UnitID, span DateRange) ([]DayInfo, error) {
	if _, err := service.store.GetHomestay(ctx, homestayID); err != nil {
		return nil, err
	}
	units, err := service.candidateUnits(ctx, service.store, homestayID, unitID)
	if err != nil {
		return nil, err
	}
	unitIDs := make([]UnitID, 0, len(units))
	for _, unit := range units {
		unitIDs = append(unitIDs, unit.ID)
	}
	data, err := service.loadCalendarData(ctx, service.store, unitIDs, span)
	if err != nil {
		return nil, err
	}
	days := make([]DayInfo, 0, span.Nights())
	for _, date := range span.Dates() {
		day, err := aggregateDay(units, data, date)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func aggregateDay(units []Unit, data calendarData, date Date) (DayInfo, error) {
	day := DayInfo{Date: date, Status: DayBlocked}
	first := true
	var minPrice *Amount
	for _, unit := range units {
		status := data.dayStatus(unit.ID, date)
		if first || statusRank[status] < statusRank[day.Status] {
			day.Status = status
			first = false
		}
		switch status {
		case DayAvailable, DayNotSet:
			day.AvailableUnits++
			price, err := ResolveNightlyPrice(unit, data.override(unit.ID, date))
			if err != nil {
				return DayInfo{}, err
			}
			if minPrice == nil || price < *minPrice {
				value := price
				minPrice = &value
			}
		case DayBooked:
			day.BookedUnits++
		case DayPending:
			day.PendingUnits++
		}
	}
	day.Price = minPrice
	return day, nil
}

// BlockedDates flattens every blocked, booked, or pending date of a homestay
// over the span, ordered by date then unit id.
func (service *Service) BlockedDates(ctx context.Context, homestayID HomestayID, span DateRange) ([]BlockedDate, error) {
	if _, err := service.store.GetHomestay(ctx, homestayID); err != nil {
		return nil, err
	}
	units, err := service.candidateUnits(ctx, service.store, homestayID, nil)
	if err != nil {
		return nil, err
	}
	unitIDs := make([]UnitID, 0, len(units))
	for _, unit := range units {
		unitIDs = append(unitIDs, unit.ID)
	}
	data, err := service.loadCalendarData(ctx, service.store, unitIDs, span)
	if err != nil {
		return nil, err
	}
	blocked := make([]BlockedDate, 0)
	for _, date := range span.Dates() {
		for _, unit := range units {
			status := data.dayStatus(unit.ID, date)
			switch status {
			case DayBlocked, DayBooked, DayPending:
				blocked = append(blocked, BlockedDate{Date: date, Status: status, UnitID: unit.ID})
			}
		}
	}
	return blocked, nil
}

// Homestay returns the homestay record.
func (service *Service) Homestay(ctx context.Context, homestayID HomestayID) (Homestay, error) {
	return service.store.GetHomestay(ctx, homestayID)
}

// Units lists the homestay's bookable units: its active rooms, or the
// implicit whole-homestay unit when no rooms exist.
func (service *Service) Units(ctx context.Context, homestayID HomestayID) ([]Unit, error) {
	if _, err := service.store.GetHomestay(ctx, homestayID); err != nil {
		return nil, err
	}
	return service.candidateUnits(ctx, service.store, homestayID, nil)
}

// candidateUnits resolves the unit set date operations run over: the selected
// unit, the homestay's active rooms, or the implicit whole-homestay unit when
// no rooms exist.
func (service *Service) candidateUnits(ctx context.Context, store Store, homestayID HomestayID, unitID *UnitID) ([]Unit, error) {
	if unitID != nil {
		unit, err := store.GetUnit(ctx, *unitID)
		if err != nil {
			return nil, err
		}
		if unit.HomestayID != homestayID {
			return nil, WrapError(operationCheck, "unit", "wrong_homestay", ErrNotFound)
		}
		return []Unit{unit}, nil
	}
	units, err := store.ListUnits(ctx, homestayID)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		fallback, err := store.GetOrCreateHomestayUnit(ctx, homestayID)
		if err != nil {
			return nil, err
		}
		return []Unit{fallback}, nil
	}
	sortUnitsByID(units)
	return units, nil
}
