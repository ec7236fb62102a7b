package gormstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Homestay represents the homestays table.
type Homestay struct {
	ID           int64     `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	MaxGuests    int       `gorm:"not null;default:0"`
	NightlyPrice *int64    `gorm:""`
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Homestay) TableName() string { return "homestays" }

// RoomCategory carries the category-level fallback price.
type RoomCategory struct {
	ID         int64  `gorm:"primaryKey"`
	HomestayID int64  `gorm:"not null;index"`
	Name       string `gorm:"not null"`
	BasePrice  int64  `gorm:"not null;default:0"`
}

func (RoomCategory) TableName() string { return "room_categories" }

// Unit mirrors the units table. A homestay without rooms gets one implicit
// unit row with kind "homestay".
type Unit struct {
	ID           int64     `gorm:"primaryKey"`
	HomestayID   int64     `gorm:"not null;index:idx_units_homestay_kind,priority:1"`
	Kind         string    `gorm:"not null;index:idx_units_homestay_kind,priority:2"`
	Name         string    `gorm:"not null"`
	CategoryID   *int64    `gorm:"index"`
	MaxGuests    int       `gorm:"not null;default:0"`
	NightlyPrice *int64    `gorm:""`
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Unit) TableName() string { return "units" }

// AvailabilityOverride mirrors the availability_overrides table. At most one
// row exists per (unit, date).
type AvailabilityOverride struct {
	ID            int64     `gorm:"primaryKey"`
	UnitID        int64     `gorm:"not null;index:uniq_override_unit_date,unique,priority:1"`
	Date          time.Time `gorm:"type:date;not null;index:uniq_override_unit_date,unique,priority:2"`
	Available     bool      `gorm:"not null;default:true"`
	PriceOverride *int64    `gorm:""`
	MinNights     int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (AvailabilityOverride) TableName() string { return "availability_overrides" }

// Reservation mirrors the reservations table.
type Reservation struct {
	ID         int64          `gorm:"primaryKey"`
	Code       string         `gorm:"not null;uniqueIndex:uniq_reservations_code"`
	HomestayID int64          `gorm:"not null;index"`
	UnitID     int64          `gorm:"not null;index:idx_reservations_unit_dates,priority:1"`
	CheckIn    time.Time      `gorm:"type:date;not null;index:idx_reservations_unit_dates,priority:2"`
	CheckOut   time.Time      `gorm:"type:date;not null"`
	Guests     int            `gorm:"not null;default:0"`
	Total      int64          `gorm:"not null;default:0"`
	Status     string         `gorm:"not null;index"`
	GuestInfo  datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

// AutoMigrate creates or updates the booking schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Homestay{},
		&RoomCategory{},
		&Unit{},
		&AvailabilityOverride{},
		&Reservation{},
	)
}
