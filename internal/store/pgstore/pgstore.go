package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casastay/homestay/pkg/booking"
)

const (
	constraintReservationCode    = "uniq_reservations_code"
	constraintReservationOverlap = "reservations_no_overlap"
	pgUniqueViolationCode        = "23505"
	pgExclusionViolationCode     = "23P01"
	errorOperationStore          = "store"
	errorSubjectHomestay         = "homestay"
	errorSubjectUnit             = "unit"
	errorSubjectOverride         = "override"
	errorSubjectReservation      = "reservation"
	errorSubjectTransaction      = "transaction"
	errorSubjectSchema           = "schema"
	errorCodeApply               = "apply"
	errorCodeBegin               = "begin"
	errorCodeCommit              = "commit"
	errorCodeCreate              = "create"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeOverlap             = "overlap"
	errorCodeUpdateStatus        = "update_status"
	errorCodeUpsert              = "upsert"

	// schemaDDL keeps the overlap rule in the database itself: the exclusion
	// constraint rejects a second active reservation whose daterange
	// intersects an existing one on the same unit, no matter how many
	// processes write concurrently. daterange is half-open by default, so
	// back-to-back stays sharing a boundary date do not collide.
	schemaDDL = `
		create extension if not exists btree_gist;

		create table if not exists homestays (
			id bigserial primary key,
			name text not null,
			max_guests int not null default 0,
			nightly_price bigint,
			active boolean not null default true,
			created_at timestamptz not null default now()
		);

		create table if not exists room_categories (
			id bigserial primary key,
			homestay_id bigint not null references homestays(id),
			name text not null,
			base_price bigint not null default 0
		);

		create table if not exists units (
			id bigserial primary key,
			homestay_id bigint not null references homestays(id),
			kind text not null,
			name text not null,
			category_id bigint references room_categories(id),
			max_guests int not null default 0,
			nightly_price bigint,
			active boolean not null default true,
			created_at timestamptz not null default now()
		);
		create index if not exists idx_units_homestay_kind on units(homestay_id, kind);
		create unique index if not exists uniq_units_implicit on units(homestay_id) where kind = 'homestay';

		create table if not exists availability_overrides (
			id bigserial primary key,
			unit_id bigint not null references units(id),
			date date not null,
			available boolean not null default true,
			price_override bigint,
			min_nights int not null default 0,
			updated_at timestamptz not null default now(),
			constraint uniq_override_unit_date unique (unit_id, date)
		);

		create table if not exists reservations (
			id bigserial primary key,
			code text not null,
			homestay_id bigint not null references homestays(id),
			unit_id bigint not null references units(id),
			check_in date not null,
			check_out date not null,
			guests int not null default 0,
			total bigint not null default 0,
			status text not null,
			guest_info jsonb not null default '{}',
			created_at timestamptz not null default now(),
			constraint uniq_reservations_code unique (code),
			constraint reservations_no_overlap exclude using gist (
				unit_id with =,
				daterange(check_in, check_out) with &&
			) where (status in ('pending','confirmed','blocked'))
		);
		create index if not exists idx_reservations_unit_dates on reservations(unit_id, check_in);
	`

	sqlSelectHomestay = `
		select id, name, max_guests, nightly_price, active
		from homestays
		where id = $1
	`

	sqlSelectRoomUnits = `
		select units.id, units.homestay_id, units.kind, units.name, units.category_id,
			units.max_guests, units.nightly_price, room_categories.base_price, units.active
		from units
		left join room_categories on room_categories.id = units.category_id
		where units.homestay_id = $1 and units.kind = 'room' and units.active
		order by units.id
	`

	sqlSelectUnit = `
		select units.id, units.homestay_id, units.kind, units.name, units.category_id,
			units.max_guests, units.nightly_price, room_categories.base_price, units.active
		from units
		left join room_categories on room_categories.id = units.category_id
		where units.id = $1
	`

	sqlInsertOrGetHomestayUnit = `
		insert into units(homestay_id, kind, name, max_guests, nightly_price, active)
		select id, 'homestay', name, max_guests, nightly_price, true
		from homestays where id = $1
		on conflict (homestay_id) where kind = 'homestay'
		do update set homestay_id = excluded.homestay_id
		returning id, homestay_id, kind, name, category_id, max_guests, nightly_price, null::bigint, active
	`

	sqlSelectOverrides = `
		select unit_id, date, available, price_override, min_nights
		from availability_overrides
		where unit_id = any($1) and date >= $2 and date < $3
		order by unit_id, date
	`

	sqlUpsertOverride = `
		insert into availability_overrides(unit_id, date, available, price_override, min_nights)
		values ($1, $2, coalesce($3, true), $4, coalesce($5, 0))
		on conflict (unit_id, date) do update set
			available = coalesce($3, availability_overrides.available),
			price_override = coalesce($4, availability_overrides.price_override),
			min_nights = coalesce($5, availability_overrides.min_nights),
			updated_at = now()
	`

	sqlSelectActiveReservations = `
		select id, code, homestay_id, unit_id, check_in, check_out, guests, total, status,
			coalesce(guest_info::text,'{}'), extract(epoch from created_at)::bigint
		from reservations
		where unit_id = any($1)
		and status in ('pending','confirmed','blocked')
		and check_in < $3 and check_out > $2
		order by unit_id, check_in
	`

	sqlInsertReservation = `
		insert into reservations(code, homestay_id, unit_id, check_in, check_out, guests, total, status, guest_info, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, coalesce(nullif($9,''),'{}')::jsonb, to_timestamp($10))
		returning id
	`

	sqlSelectReservationByCode = `
		select id, code, homestay_id, unit_id, check_in, check_out, guests, total, status,
			coalesce(guest_info::text,'{}'), extract(epoch from created_at)::bigint
		from reservations
		where code = $1
		for update
	`

	sqlUpdateReservationStatus = `
		update reservations
		set status = $3
		where id = $1 and status = any($2)
	`
)

// querier is the subset of pgx shared by a pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store using pgx. Outside WithTx it runs in
// autocommit mode; WithTx hands the callback a Store bound to the open
// transaction.
type Store struct {
	q    querier
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// EnsureSchema applies the booking DDL, including the exclusion constraint
// that enforces per-unit non-overlap of active reservations.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeApply, err)
	}
	return nil
}

// WithTx executes fn within a transaction. Nested calls reuse the open
// transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetHomestay(ctx context.Context, homestayID booking.HomestayID) (booking.Homestay, error) {
	var (
		id           int64
		name         string
		maxGuests    int
		nightlyPrice *int64
		active       bool
	)
	err := store.q.QueryRow(ctx, sqlSelectHomestay, int64(homestayID)).Scan(&id, &name, &maxGuests, &nightlyPrice, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Homestay{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Homestay{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, err)
	}
	return booking.Homestay{
		ID:           booking.HomestayID(id),
		Name:         name,
		MaxGuests:    maxGuests,
		NightlyPrice: amountPtr(nightlyPrice),
		Active:       active,
	}, nil
}

func (store *Store) ListUnits(ctx context.Context, homestayID booking.HomestayID) ([]booking.Unit, error) {
	rows, err := store.q.Query(ctx, sqlSelectRoomUnits, int64(homestayID))
	if err != nil {
		return nil, wrapStoreError(errorSubjectUnit, errorCodeList, err)
	}
	defer rows.Close()
	units, err := scanUnits(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectUnit, errorCodeInvalid, err)
	}
	return units, nil
}

func (store *Store) GetUnit(ctx context.Context, unitID booking.UnitID) (booking.Unit, error) {
	unit, err := scanUnit(store.q.QueryRow(ctx, sqlSelectUnit, int64(unitID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeGet, err)
	}
	return unit, nil
}

func (store *Store) GetOrCreateHomestayUnit(ctx context.Context, homestayID booking.HomestayID) (booking.Unit, error) {
	unit, err := scanUnit(store.q.QueryRow(ctx, sqlInsertOrGetHomestayUnit, int64(homestayID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Unit{}, wrapStoreError(errorSubjectHomestay, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Unit{}, wrapStoreError(errorSubjectUnit, errorCodeCreate, err)
	}
	return unit, nil
}

func (store *Store) ListOverrides(ctx context.Context, unitIDs []booking.UnitID, span booking.DateRange) ([]booking.Override, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := store.q.Query(ctx, sqlSelectOverrides, unitIDValues(unitIDs), span.CheckIn.Time(), span.CheckOut.Time())
	if err != nil {
		return nil, wrapStoreError(errorSubjectOverride, errorCodeList, err)
	}
	defer rows.Close()
	overrides := make([]booking.Override, 0, 32)
	for rows.Next() {
		var (
			unitID        int64
			date          time.Time
			available     bool
			priceOverride *int64
			minNights     int
		)
		if err := rows.Scan(&unitID, &date, &available, &priceOverride, &minNights); err != nil {
			return nil, wrapStoreError(errorSubjectOverride, errorCodeInvalid, err)
		}
		overrides = append(overrides, booking.Override{
			UnitID:        booking.UnitID(unitID),
			Date:          booking.DateOf(date),
			Available:     available,
			PriceOverride: amountPtr(priceOverride),
			MinNights:     minNights,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectOverride, errorCodeList, err)
	}
	return overrides, nil
}

func (store *Store) UpsertOverrides(ctx context.Context, updates []booking.OverrideUpdate) (int, error) {
	written := 0
	for _, update := range updates {
		var priceOverride *int64
		if update.PriceOverride != nil {
			value := update.PriceOverride.Int64()
			priceOverride = &value
		}
		_, err := store.q.Exec(ctx, sqlUpsertOverride,
			int64(update.UnitID),
			update.Date.Time(),
			update.Available,
			priceOverride,
			update.MinNights,
		)
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
	rows, err := store.q.Query(ctx, sqlSelectActiveReservations, unitIDValues(unitIDs), span.CheckIn.Time(), span.CheckOut.Time())
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	reservations := make([]booking.Reservation, 0, 32)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return reservations, nil
}

func (store *Store) InsertReservation(ctx context.Context, input booking.ReservationInput) (booking.Reservation, error) {
	createdUnixUTC := input.CreatedUnixUTC
	if createdUnixUTC == 0 {
		createdUnixUTC = time.Now().Unix()
	}
	var id int64
	err := store.q.QueryRow(ctx, sqlInsertReservation,
		input.Code,
		int64(input.HomestayID),
		int64(input.UnitID),
		input.CheckIn.Time(),
		input.CheckOut.Time(),
		input.Guests,
		input.Total.Int64(),
		input.Status.String(),
		input.GuestInfo.String(),
		createdUnixUTC,
	).Scan(&id)
	if isReservationConflict(err) {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeOverlap, booking.ErrConflict)
	}
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInsert, err)
	}
	return booking.Reservation{
		ID:             booking.ReservationID(id),
		Code:           input.Code,
		HomestayID:     input.HomestayID,
		UnitID:         input.UnitID,
		CheckIn:        input.CheckIn,
		CheckOut:       input.CheckOut,
		Guests:         input.Guests,
		Total:          input.Total,
		Status:         input.Status,
		GuestInfo:      input.GuestInfo,
		CreatedUnixUTC: createdUnixUTC,
	}, nil
}

func (store *Store) GetReservationByCode(ctx context.Context, code string) (booking.Reservation, error) {
	reservation, err := scanReservation(store.q.QueryRow(ctx, sqlSelectReservationByCode, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	return reservation, nil
}

func (store *Store) UpdateReservationStatus(ctx context.Context, reservationID booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus) error {
	tag, err := store.q.Exec(ctx, sqlUpdateReservationStatus, int64(reservationID), statusValues(from), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	return nil
}

func scanUnits(rows pgx.Rows) ([]booking.Unit, error) {
	units := make([]booking.Unit, 0, 8)
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

func scanUnit(row pgx.Row) (booking.Unit, error) {
	var (
		id           int64
		homestayID   int64
		kind         string
		name         string
		categoryID   *int64
		maxGuests    int
		nightlyPrice *int64
		basePrice    *int64
		active       bool
	)
	err := row.Scan(&id, &homestayID, &kind, &name, &categoryID, &maxGuests, &nightlyPrice, &basePrice, &active)
	if err != nil {
		return booking.Unit{}, err
	}
	return booking.Unit{
		ID:           booking.UnitID(id),
		HomestayID:   booking.HomestayID(homestayID),
		Kind:         booking.UnitKind(kind),
		Name:         name,
		CategoryID:   categoryID,
		MaxGuests:    maxGuests,
		NightlyPrice: amountPtr(nightlyPrice),
		BasePrice:    amountPtr(basePrice),
		Active:       active,
	}, nil
}

func scanReservation(row pgx.Row) (booking.Reservation, error) {
	var (
		id             int64
		code           string
		homestayID     int64
		unitID         int64
		checkIn        time.Time
		checkOut       time.Time
		guests         int
		total          int64
		statusValue    string
		guestInfoValue string
		createdUnixUTC int64
	)
	err := row.Scan(&id, &code, &homestayID, &unitID, &checkIn, &checkOut,
		&guests, &total, &statusValue, &guestInfoValue, &createdUnixUTC)
	if err != nil {
		return booking.Reservation{}, err
	}
	status, err := booking.ParseReservationStatus(statusValue)
	if err != nil {
		return booking.Reservation{}, err
	}
	guestInfo, err := booking.NewMetadataJSON(guestInfoValue)
	if err != nil {
		return booking.Reservation{}, err
	}
	return booking.Reservation{
		ID:             booking.ReservationID(id),
		Code:           code,
		HomestayID:     booking.HomestayID(homestayID),
		UnitID:         booking.UnitID(unitID),
		CheckIn:        booking.DateOf(checkIn),
		CheckOut:       booking.DateOf(checkOut),
		Guests:         guests,
		Total:          booking.Amount(total),
		Status:         status,
		GuestInfo:      guestInfo,
		CreatedUnixUTC: createdUnixUTC,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
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

func isReservationConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgExclusionViolationCode && pgErr.ConstraintName == constraintReservationOverlap {
			return true
		}
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintReservationCode
	}
	return false
}
