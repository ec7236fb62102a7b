package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Amount is an integer price in VND.
type Amount int64

// NewAmount validates a non-negative amount.
func NewAmount(raw int64) (Amount, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// Int64 returns the raw value.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// HomestayID identifies a homestay.
type HomestayID int64

// UnitID identifies a bookable unit (a room, or a whole homestay acting as
// its own unit when it has no rooms).
type UnitID int64

// ReservationID identifies a stored reservation.
type ReservationID int64

const dateLayout = "2006-01-02"

// Date is a civil date. The zero value is no date.
type Date struct {
	value time.Time
}

// NewDate builds a Date from calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{value: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD).
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date{value: parsed.UTC()}, nil
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(at time.Time) Date {
	utc := at.UTC()
	return NewDate(utc.Year(), utc.Month(), utc.Day())
}

// IsZero reports whether the date is unset.
func (date Date) IsZero() bool {
	return date.value.IsZero()
}

// Before reports whether date precedes other.
func (date Date) Before(other Date) bool {
	return date.value.Before(other.value)
}

// After reports whether date follows other.
func (date Date) After(other Date) bool {
	return date.value.After(other.value)
}

// Equal reports whether both dates name the same day.
func (date Date) Equal(other Date) bool {
	return date.value.Equal(other.value)
}

// AddDays returns the date shifted by the given number of days.
func (date Date) AddDays(days int) Date {
	return Date{value: date.value.AddDate(0, 0, days)}
}

// DaysUntil returns the number of days from date to other.
func (date Date) DaysUntil(other Date) int {
	return int(other.value.Sub(date.value) / (24 * time.Hour))
}

// Time returns the UTC midnight timestamp of the date.
func (date Date) Time() time.Time {
	return date.value
}

// String formats the date as YYYY-MM-DD.
func (date Date) String() string {
	return date.value.Format(dateLayout)
}

// MarshalJSON encodes the date as an ISO-8601 string.
func (date Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(date.String())
}

// UnmarshalJSON decodes an ISO-8601 date string.
func (date *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*date = parsed
	return nil
}

// DateRange is a half-open interval [CheckIn, CheckOut): the check-out date
// itself is not occupied.
type DateRange struct {
	CheckIn  Date
	CheckOut Date
}

// NewStayRange validates a stay interval, requiring at least one night.
func NewStayRange(checkIn Date, checkOut Date) (DateRange, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return DateRange{}, fmt.Errorf("%w: missing date", ErrInvalidRange)
	}
	if !checkIn.Before(checkOut) {
		return DateRange{}, fmt.Errorf("%w: check-out must be after check-in", ErrInvalidRange)
	}
	return DateRange{CheckIn: checkIn, CheckOut: checkOut}, nil
}

// NewSpan validates a possibly-empty calendar span.
func NewSpan(start Date, end Date) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: missing date", ErrInvalidRange)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	return DateRange{CheckIn: start, CheckOut: end}, nil
}

// Nights returns the number of occupied nights.
func (span DateRange) Nights() int {
	return span.CheckIn.DaysUntil(span.CheckOut)
}

// Contains reports whether the date falls inside the half-open interval.
func (span DateRange) Contains(date Date) bool {
	return !date.Before(span.CheckIn) && date.Before(span.CheckOut)
}

// Overlaps reports whether two half-open intervals share at least one night.
func (span DateRange) Overlaps(other DateRange) bool {
	return span.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(span.CheckOut)
}

// Dates enumerates every date in the half-open interval, in order.
func (span DateRange) Dates() []Date {
	nights := span.Nights()
	if nights <= 0 {
		return nil
	}
	dates := make([]Date, 0, nights)
	for day := span.CheckIn; day.Before(span.CheckOut); day = day.AddDays(1) {
		dates = append(dates, day)
	}
	return dates
}

// UnitKind distinguishes room units from whole-homestay fallback units.
type UnitKind string

const (
	UnitKindRoom     UnitKind = "room"
	UnitKindHomestay UnitKind = "homestay"
)

// Homestay is the lodging a unit belongs to.
type Homestay struct {
	ID           HomestayID
	Name         string
	MaxGuests    int
	NightlyPrice *Amount
	Active       bool
}

// Unit is the smallest independently bookable entity. BasePrice carries the
// room category fallback price resolved at load time; for homestay-kind units
// NightlyPrice is the homestay's own nightly price.
type Unit struct {
	ID           UnitID
	HomestayID   HomestayID
	Kind         UnitKind
	Name         string
	CategoryID   *int64
	MaxGuests    int
	NightlyPrice *Amount
	BasePrice    *Amount
	Active       bool
}

// Override is a per-unit, per-date record changing default availability
// and/or price. At most one exists per (unit, date).
type Override struct {
	UnitID        UnitID
	Date          Date
	Available     bool
	PriceOverride *Amount
	MinNights     int
}

// OverrideUpdate upserts one (unit, date) override row. Nil fields leave the
// existing value untouched; a row created from scratch defaults to available.
type OverrideUpdate struct {
	UnitID        UnitID
	Date          Date
	Available     *bool
	PriceOverride *Amount
	MinNights     *int
}

// ReservationStatus defines the reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusBlocked   ReservationStatus = "blocked"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusCompleted ReservationStatus = "completed"
)

// ParseReservationStatus validates a stored status value.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	status := ReservationStatus(raw)
	switch status {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusBlocked,
		ReservationStatusCancelled, ReservationStatusCompleted:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// String returns the stored form.
func (status ReservationStatus) String() string {
	return string(status)
}

// IsActive reports whether the status occupies dates.
func (status ReservationStatus) IsActive() bool {
	switch status {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusBlocked:
		return true
	}
	return false
}

// ActiveStatuses lists the date-occupying statuses.
func ActiveStatuses() []ReservationStatus {
	return []ReservationStatus{ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusBlocked}
}

// MetadataJSON stores arbitrary guest payload as validated JSON.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates a metadata string, defaulting empty input to "{}".
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// Reservation is a persisted, status-bearing claim on a half-open date range
// for one unit.
type Reservation struct {
	ID             ReservationID
	Code           string
	HomestayID     HomestayID
	UnitID         UnitID
	CheckIn        Date
	CheckOut       Date
	Guests         int
	Total          Amount
	Status         ReservationStatus
	GuestInfo      MetadataJSON
	CreatedUnixUTC int64
}

// Range returns the reservation's stay interval.
func (reservation Reservation) Range() DateRange {
	return DateRange{CheckIn: reservation.CheckIn, CheckOut: reservation.CheckOut}
}

// ReservationInput carries the fields of a reservation to be inserted.
type ReservationInput struct {
	Code           string
	HomestayID     HomestayID
	UnitID         UnitID
	CheckIn        Date
	CheckOut       Date
	Guests         int
	Total          Amount
	Status         ReservationStatus
	GuestInfo      MetadataJSON
	CreatedUnixUTC int64
}

// DayStatus classifies one calendar day of one unit (or of a homestay
// aggregate).
type DayStatus string

const (
	DayAvailable DayStatus = "available"
	DayBlocked   DayStatus = "blocked"
	DayBooked    DayStatus = "booked"
	DayPending   DayStatus = "pending"
	// DayNotSet means no override row exists. Admission treats it as
	// available; callers can distinguish "open" from "never configured".
	DayNotSet DayStatus = "not_set"
)

// DayInfo is one entry of a calendar view.
type DayInfo struct {
	Date           Date
	Status         DayStatus
	Price          *Amount
	AvailableUnits int
	BookedUnits    int
	PendingUnits   int
}

// Quote is the effective price of one night.
type Quote struct {
	Date  Date
	Price Amount
}

// Admission is the advisory decision that a stay is currently bookable.
type Admission struct {
	HomestayID HomestayID
	UnitID     UnitID
	UnitName   string
	CheckIn    Date
	CheckOut   Date
	Guests     int
	Nightly    []Quote
	Total      Amount
}

// BlockedDate is one entry of the flat blocked-dates listing.
type BlockedDate struct {
	Date   Date
	Status DayStatus
	UnitID UnitID
}

// Store is the persistence contract used by Service. Implementations must
// make InsertReservation atomic with the per-unit overlap check: two racing
// inserts for overlapping ranges on the same unit may not both succeed, and
// the loser must surface ErrConflict.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetHomestay(ctx context.Context, homestayID HomestayID) (Homestay, error)
	ListUnits(ctx context.Context, homestayID HomestayID) ([]Unit, error)
	GetUnit(ctx context.Context, unitID UnitID) (Unit, error)
	GetOrCreateHomestayUnit(ctx context.Context, homestayID HomestayID) (Unit, error)
	ListOverrides(ctx context.Context, unitIDs []UnitID, span DateRange) ([]Override, error)
	UpsertOverrides(ctx context.Context, updates []OverrideUpdate) (int, error)
	ListActiveReservations(ctx context.Context, unitIDs []UnitID, span DateRange) ([]Reservation, error)
	InsertReservation(ctx context.Context, input ReservationInput) (Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationID ReservationID, from []ReservationStatus, to ReservationStatus) error
}

func sortUnitsByID(units []Unit) {
	sort.Slice(units, func(left, right int) bool {
		return units[left].ID < units[right].ID
	})
}
