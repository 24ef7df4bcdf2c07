package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// ErrNotFound is returned when a booking id has no record.
var ErrNotFound = errors.New("booking not found")

// Timestamp columns CASUpdateStatus may stamp.
const (
	CheckInTimeField  = "check_in_time"
	CheckOutTimeField = "check_out_time"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) CreateBooking(ctx context.Context, booking models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.StatusBooked
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	_, err := d.Bun.NewInsert().Model(&booking).Exec(ctx)
	return err
}

// CASUpdateStatus transitions a booking's status in one conditional
// UPDATE guarded on the expected prior status. Of N concurrent callers
// racing on the same row, the database lets exactly one through; the
// rest see false. The timestamp column is only stamped by the winning
// update, so it is set once and never overwritten.
func (d *DB) CASUpdateStatus(ctx context.Context, bookingID, expectedStatus, newStatus, timestampField string, timestampValue time.Time) (bool, error) {
	if timestampField != CheckInTimeField && timestampField != CheckOutTimeField {
		return false, fmt.Errorf("unsupported timestamp field %q", timestampField)
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", newStatus).
		Set("? = ?", bun.Ident(timestampField), timestampValue).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Where("status = ?", expectedStatus).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SetTokenIssuedAt records the issuedAt of the booking's current
// ticket. Tokens carrying an older issuedAt are superseded and must be
// rejected at the door.
func (d *DB) SetTokenIssuedAt(ctx context.Context, bookingID string, issuedAt int64) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("token_issued_at = ?", issuedAt).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBookingSchedule applies a date/time change coming from the
// admin platform. Callers must also bump token_issued_at so the old
// ticket stops verifying.
func (d *DB) UpdateBookingSchedule(ctx context.Context, bookingID, date, timeOfDay string, durationMinutes int) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("date = ?", date).
		Set("time = ?", timeOfDay).
		Set("duration_minutes = ?", durationMinutes).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) CancelBooking(ctx context.Context, bookingID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.StatusCancelled).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCheckedInCountByVenue returns how many bookings at a venue are
// currently checked in.
func (d *DB) GetCheckedInCountByVenue(ctx context.Context, venueID string) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("venue_id = ?", venueID).
		Where("status = ?", models.StatusCheckedIn).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count checked-in bookings for venue %s: %w", venueID, err)
	}
	return count, nil
}
