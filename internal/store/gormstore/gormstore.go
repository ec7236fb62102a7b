package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casastay/homestay/pkg/booking"
)

const (
	constraintReservationCode = "uniq_reservations_code"
	defaultGuestInfoJSON      = "{}"
	pgUniqueViolationCode     = "23505"
	pgExclusionViolationCode  = "23P01"
	sqliteConstraintCode      = 19
	errorOperationStore       = "store"
	errorSubjectHomestay      = "homestay"
	errorSubjectUnit          = "unit"
	errorSubjectOverride      = "override"
	errorSubjectReservation   = "reservation"
	errorCodeCreate           = "create"
	errorCodeGet              = "get"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeOverlap          = "overlap"
	errorCodeOverlapCheck     = "overlap_check"
	errorCodeUpdateStatus     = "update_status"
	errorCodeUpsert           = "upsert"
)

// Store implements booking.Store using GORM. The overlap check inside
// InsertReservation relies on running in the same transaction as the
// surrounding WithTx call; overlapping active rows are locked before the
// insert so two racing commits serialize on the same unit.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetHomestay(ctx context.Context, homestayID booking.HomestayID) (booking.Homestay, error) {
	var model Homestay
	err := store.db.WithContext(ctx).Take(&model, int64(homestayID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Homestay{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Homestay{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, err)
	}
	return mapHomestay(model), nil
}

func (store *Store) ListUnits(ctx context.Context, homestayID booking.HomestayID) ([]booking.Unit, error) {
	var rows []unitRow
	err := store.db.WithContext(ctx).
		Model(&Unit{}).
		Select("units.*, room_categories.base_price as category_base_price").
		Joins("left join room_categories on room_categories.id = units.category_id").
		Where("units.homestay_id = ? AND units.kind = ? AND units.active", int64(homestayID), string(booking.UnitKindRoom)).
		Order("units.id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectUnit, errorCodeList, err)
	}
	units := make([]booking.Unit, 0, len(rows))
	for _, row := range rows {
		unit, err := mapUnit(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUnit, errorCodeInvalid, err)
		}
		units = append(units, unit)
	}
	return units, nil
}

func (store *Store) GetUnit(ctx context.Context, unitID booking.UnitID) (booking.Unit, error) {
	var row unitRow
	err := store.db.WithContext(ctx).
		Model(&Unit{}).
		Select("units.*, room_categories.base_price as category_base_price").
		Joins("left join room_categories on room_categories.id = units.category_id").
		Where("units.id = ?", int64(unitID)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeGet, err)
	}
	unit, err := mapUnit(row)
	if err != nil {
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeInvalid, err)
	}
	return unit, nil
}

// GetOrCreateHomestayUnit returns the implicit whole-homestay unit, creating
// it from the homestay's own fields on first use.
func (store *Store) GetOrCreateHomestayUnit(ctx context.Context, homestayID booking.HomestayID) (booking.Unit, error) {
	var homestay Homestay
	err := store.db.WithContext(ctx).Take(&homestay, int64(homestayID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Unit{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Unit{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, err)
	}
	model := Unit{
		HomestayID:   homestay.ID,
		Kind:         string(booking.UnitKindHomestay),
		Name:         homestay.Name,
		MaxGuests:    homestay.MaxGuests,
		NightlyPrice: homestay.NightlyPrice,
		Active:       true,
	}
	err = store.db.WithContext(ctx).
		Where("homestay_id = ? AND kind = ?", homestay.ID, string(booking.UnitKindHomestay)).
		FirstOrCreate(&model).Error
	if err != nil {
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeCreate, err)
	}
	unit, err := mapUnit(unitRow{Unit: model})
	if err != nil {
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeInvalid, err)
	}
	return unit, nil
}

func (store *Store) ListOverrides(ctx context.Context, unitIDs []booking.UnitID, span booking.DateRange) ([]booking.Override, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	var rows []AvailabilityOverride
	err := store.db.WithContext(ctx).
		Where("unit_id IN ?", unitIDValues(unitIDs)).
		Where("date >= ? AND date < ?", span.CheckIn.Time(), span.CheckOut.Time()).
		Order("unit_id, date").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectOverride, errorCodeList, err)
	}
	overrides := make([]booking.Override, 0, len(rows))
	for _, row := range rows {
		overrides = append(overrides, mapOverride(row))
	}
	return overrides, nil
}

// UpsertOverrides writes one row per update, folding into the existing row on
// (unit_id, date). Nil fields keep the stored value.
func (store *Store) UpsertOverrides(ctx context.Context, updates []booking.OverrideUpdate) (int, error) {
	written := 0
	for _, update := range updates {
		assignments := map[string]interface{}{"updated_at": time.Now().UTC()}
		model := AvailabilityOverride{
			UnitID:    int64(update.UnitID),
			Date:      update.Date.Time(),
			Available: true,
		}
		if update.Available != nil {
			model.Available = *update.Available
			assignments["available"] = *update.Available
		}
		if update.PriceOverride != nil {
			value := update.PriceOverride.Int64()
			model.PriceOverride = &value
			assignments["price_override"] = value
		}
		if update.MinNights != nil {
			model.MinNights = *update.MinNights
			assignments["min_nights"] = *update.MinNights
		}
		err := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "unit_id"}, {Name: "date"}},
				DoUpdates: clause.Assignments(assignments),
			}).
			Create(&model).Error
		if err != nil {
			return written, wrapStoreError(errorSubjectOverride, errorCodeUpsert, err)
		}
		written++
	}
	return written, nil
}

func (store *Store) ListActiveReservations(ctx context.Context, unitIDs []booking.UnitID, span booking.DateRange) ([]booking.Reservation, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("unit_id IN ?", unitIDValues(unitIDs)).
		Where("status IN ?", activeStatusValues()).
		Where("check_in < ? AND check_out > ?", span.CheckOut.Time(), span.CheckIn.Time()).
		Order("unit_id, check_in").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// InsertReservation locks active rows overlapping the requested range, then
// inserts. Must run inside WithTx so the lock and the insert commit together.
func (store *Store) InsertReservation(ctx context.Context, input booking.ReservationInput) (booking.Reservation, error) {
	var overlapping []Reservation
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("unit_id = ?", int64(input.UnitID)).
		Where("status IN ?", activeStatusValues()).
		Where("check_in < ? AND check_out > ?", input.CheckOut.Time(), input.CheckIn.Time()).
		Find(&overlapping).Error
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeOverlapCheck, err)
	}
	if len(overlapping) > 0 {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeOverlap, booking.ErrConflict)
	}
	model := Reservation{
		Code:       input.Code,
		HomestayID: int64(input.HomestayID),
		UnitID:     int64(input.UnitID),
		CheckIn:    input.CheckIn.Time(),
		CheckOut:   input.CheckOut.Time(),
		Guests:     input.Guests,
		Total:      input.Total.Int64(),
		Status:     input.Status.String(),
		GuestInfo:  guestInfoJSON(input.GuestInfo.String()),
		CreatedAt:  time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() || input.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isReservationConflict(err) {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeOverlap, booking.ErrConflict)
	}
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInsert, err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) GetReservationByCode(ctx context.Context, code string) (booking.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) UpdateReservationStatus(ctx context.Context, reservationID booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("id = ? AND status IN ?", int64(reservationID), statusValues(from)).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

// unitRow joins a unit with its category fallback price.
type unitRow struct {
	Unit
	CategoryBasePrice *int64
}

func mapHomestay(model Homestay) booking.Homestay {
	return booking.Homestay{
		ID:           booking.HomestayID(model.ID),
		Name:         model.Name,
		MaxGuests:    model.MaxGuests,
		NightlyPrice: amountPtr(model.NightlyPrice),
		Active:       model.Active,
	}
}

func mapUnit(row unitRow) (booking.Unit, error) {
	switch booking.UnitKind(row.Kind) {
	case booking.UnitKindRoom, booking.UnitKindHomestay:
	default:
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeInvalid, booking.ErrNotFound)
	}
	return booking.Unit{
		ID:           booking.UnitID(row.ID),
		HomestayID:   booking.HomestayID(row.HomestayID),
		Kind:         booking.UnitKind(row.Kind),
		Name:         row.Name,
		CategoryID:   row.CategoryID,
		MaxGuests:    row.MaxGuests,
		NightlyPrice: amountPtr(row.NightlyPrice),
		BasePrice:    amountPtr(row.CategoryBasePrice),
		Active:       row.Active,
	}, nil
}

func mapOverride(model AvailabilityOverride) booking.Override {
	return booking.Override{
		UnitID:        booking.UnitID(model.UnitID),
		Date:          booking.DateOf(model.Date),
		Available:     model.Available,
		PriceOverride: amountPtr(model.PriceOverride),
		MinNights:     model.MinNights,
	}
}

func mapReservation(model Reservation) (booking.Reservation, error) {
	status, err := booking.ParseReservationStatus(model.Status)
	if err != nil {
		return booking.Reservation{}, err
	}
	guestInfo, err := booking.NewMetadataJSON(string(model.GuestInfo))
	if err != nil {
		return booking.Reservation{}, err
	}
	return booking.Reservation{
		ID:             booking.ReservationID(model.ID),
		Code:           model.Code,
		HomestayID:     booking.HomestayID(model.HomestayID),
		UnitID:         booking.UnitID(model.UnitID),
		CheckIn:        booking.DateOf(model.CheckIn),
		CheckOut:       booking.DateOf(model.CheckOut),
		Guests:         model.Guests,
		Total:          booking.Amount(model.Total),
		Status:         status,
		GuestInfo:      guestInfo,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func amountPtr(value *int64) *booking.Amount {
	if value == nil {
		return nil
	}
	amount := booking.Amount(*value)
	return &amount
}

func unitIDValues(unitIDs []booking.UnitID) []int64 {
	values := make([]int64, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		values = append(values, int64(unitID))
	}
	return values
}

func statusValues(statuses []booking.ReservationStatus) []string {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, status.String())
	}
	return values
}

func activeStatusValues() []string {
	return statusValues(booking.ActiveStatuses())
}

func guestInfoJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultGuestInfoJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isReservationConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgExclusionViolationCode {
			return true
		}
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintReservationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
