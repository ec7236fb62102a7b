package booking

import "context"

// CheckStayInput is a candidate stay to admit.
type CheckStayInput struct {
	HomestayID HomestayID
	CheckIn    Date
	CheckOut   Date
	Guests     int
	CategoryID *int64
	UnitID     *UnitID
}

// CheckStay decides whether the requested stay is currently bookable and at
// what total price. Candidates are the homestay's units that fit the guest
// count and optional filters; a candidate qualifies only if every date of
// [CheckIn, CheckOut) is available or not_set. Among qualifying candidates
// the cheapest total wins, ties broken by lowest unit id.
//
// The decision is advisory: calendar state can change before commit, and
// CommitReservation re-validates under mutual exclusion.
func (service *Service) CheckStay(ctx context.Context, input CheckStayInput) (Admission, error) {
	admission, err := service.checkStay(ctx, input)
	service.logOperation(ctx, OperationLog{
		Operation:  operationCheck,
		HomestayID: input.HomestayID,
		UnitID:     admission.UnitID,
		CheckIn:    input.CheckIn,
		CheckOut:   input.CheckOut,
		Amount:     admission.Total,
		Error:      err,
	})
	return admission, err
}

func (service *Service) checkStay(ctx context.Context, input CheckStayInput) (Admission, error) {
	stay, err := NewStayRange(input.CheckIn, input.CheckOut)
	if err != nil {
		return Admission{}, err
	}
	if input.Guests < 1 {
		return Admission{}, WrapError(operationCheck, "guests", "invalid", ErrInvalidGuests)
	}
	homestay, err := service.store.GetHomestay(ctx, input.HomestayID)
	if err != nil {
		return Admission{}, err
	}
	candidates, err := service.candidateUnits(ctx, service.store, input.HomestayID, input.UnitID)
	if err != nil {
		return Admission{}, err
	}
	candidates = filterCandidates(candidates, homestay, input)
	if len(candidates) == 0 {
		return Admission{}, NoAvailabilityError{HomestayID: input.HomestayID, Reason: "no unit fits the requested guests"}
	}
	unitIDs := make([]UnitID, 0, len(candidates))
	for _, unit := range candidates {
		unitIDs = append(unitIDs, unit.ID)
	}
	data, err := service.loadCalendarData(ctx, service.store, unitIDs, stay)
	if err != nil {
		return Admission{}, err
	}

	var best *Admission
	var firstBlock *NoAvailabilityError
	for _, unit := range candidates {
		nightly, block, err := evaluateStay(unit, stay, data)
		if err != nil {
			return Admission{}, err
		}
		if block != nil {
			if firstBlock == nil || block.Date.Before(firstBlock.Date) {
				firstBlock = block
			}
			continue
		}
		total := Amount(0)
		for _, quote := range nightly {
			total += quote.Price
		}
		if best == nil || total < best.Total {
			best = &Admission{
				HomestayID: input.HomestayID,
				UnitID:     unit.ID,
				UnitName:   unit.Name,
				CheckIn:    stay.CheckIn,
				CheckOut:   stay.CheckOut,
				Guests:     input.Guests,
				Nightly:    nightly,
				Total:      total,
			}
		}
	}
	if best == nil {
		if firstBlock != nil {
			firstBlock.HomestayID = input.HomestayID
			return Admission{}, *firstBlock
		}
		return Admission{}, NoAvailabilityError{HomestayID: input.HomestayID}
	}
	return *best, nil
}

// evaluateStay walks every date of the stay for one unit. It returns the
// nightly quotes when the unit qualifies, or the first blocking date.
// A single blocked, booked, or pending date disqualifies the whole stay.
func evaluateStay(unit Unit, stay DateRange, data calendarData) ([]Quote, *NoAvailabilityError, error) {
	nightly := make([]Quote, 0, stay.Nights())
	minNights := 0
	for _, date := range stay.Dates() {
		status := data.dayStatus(unit.ID, date)
		switch status {
		case DayAvailable, DayNotSet:
		default:
			return nil, &NoAvailabilityError{UnitID: unit.ID, Date: date, Status: status}, nil
		}
		override := data.override(unit.ID, date)
		if override != nil && override.MinNights > minNights {
			minNights = override.MinNights
		}
		price, err := ResolveNightlyPrice(unit, override)
		if err != nil {
			return nil, nil, err
		}
		nightly = append(nightly, Quote{Date: date, Price: price})
	}
	if stay.Nights() < minNights {
		return nil, &NoAvailabilityError{
			UnitID: unit.ID,
			Date:   stay.CheckIn,
			Reason: "stay shorter than the minimum nights for these dates",
		}, nil
	}
	return nightly, nil, nil
}

func filterCandidates(units []Unit, homestay Homestay, input CheckStayInput) []Unit {
	filtered := make([]Unit, 0, len(units))
	for _, unit := range units {
		if !unit.Active {
			continue
		}
		if input.CategoryID != nil && (unit.CategoryID == nil || *unit.CategoryID != *input.CategoryID) {
			continue
		}
		capacity := unit.MaxGuests
		if unit.Kind == UnitKindHomestay && homestay.MaxGuests > 0 {
			capacity = homestay.MaxGuests
		}
		if capacity > 0 && input.Guests > capacity {
			continue
		}
		filtered = append(filtered, unit)
	}
	return filtered
}
