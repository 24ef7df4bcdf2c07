package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Booking status lifecycle: booked -> checked_in -> checked_out.
// Cancelled bookings never transition again.
const (
	StatusBooked     = "booked"
	StatusCheckedIn  = "checked_in"
	StatusCheckedOut = "checked_out"
	StatusCancelled  = "cancelled"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID        string    `bun:"booking_id,pk"`
	ConfirmationCode string    `bun:"confirmation_code"`
	CustomerName     string    `bun:"customer_name"`
	CustomerEmail    string    `bun:"customer_email"`
	ActivityName     string    `bun:"activity_name"`
	VenueID          string    `bun:"venue_id"`
	VenueName        string    `bun:"venue_name"`
	Date             string    `bun:"date"`
	Time             string    `bun:"time"`
	DurationMinutes  int       `bun:"duration_minutes"`
	GroupSize        int       `bun:"group_size"`
	Status           string    `bun:"status"`
	TokenIssuedAt    int64     `bun:"token_issued_at"`
	CheckInTime      time.Time `bun:"check_in_time,nullzero"`
	CheckOutTime     time.Time `bun:"check_out_time,nullzero"`
	CreatedAt        time.Time `bun:"created_at,nullzero"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero"`
}

// BookingSnapshot is the staff-facing view returned after a scan.
type BookingSnapshot struct {
	BookingID        string     `json:"bookingId"`
	VenueID          string     `json:"venueId,omitempty"`
	Customer         string     `json:"customer"`
	ConfirmationCode string     `json:"confirmationCode"`
	ActivityName     string     `json:"activityName"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	GroupSize        int        `json:"groupSize"`
	Status           string     `json:"status"`
	CheckInTime      *time.Time `json:"checkInTime,omitempty"`
	CheckOutTime     *time.Time `json:"checkOutTime,omitempty"`
}

func (b *Booking) Snapshot() *BookingSnapshot {
	snap := &BookingSnapshot{
		BookingID:        b.BookingID,
		VenueID:          b.VenueID,
		Customer:         b.CustomerName,
		ConfirmationCode: b.ConfirmationCode,
		ActivityName:     b.ActivityName,
		Date:             b.Date,
		Time:             b.Time,
		GroupSize:        b.GroupSize,
		Status:           b.Status,
	}
	if !b.CheckInTime.IsZero() {
		t := b.CheckInTime
		snap.CheckInTime = &t
	}
	if !b.CheckOutTime.IsZero() {
		t := b.CheckOutTime
		snap.CheckOutTime = &t
	}
	return snap
}
