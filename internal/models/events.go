package models

import "time"

// TicketIssuedEvent is published when a signed ticket is generated or
// regenerated for a booking.
type TicketIssuedEvent struct {
	BookingID        string    `json:"booking_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	VenueID          string    `json:"venue_id"`
	IssuedAt         int64     `json:"issued_at"`
	ExpiresAt        int64     `json:"expires_at"`
	Reissued         bool      `json:"reissued"`
	At               time.Time `json:"at"`
}

// Booking sync event types emitted by the admin platform.
const (
	BookingSyncCreated   = "created"
	BookingSyncUpdated   = "updated"
	BookingSyncCancelled = "cancelled"
)

// BookingSyncEvent mirrors booking lifecycle changes from the admin
// platform into the check-in store.
type BookingSyncEvent struct {
	Type    string  `json:"type"`
	Booking Booking `json:"booking"`
}

// CheckInEvent is published (and broadcast over SSE) after a successful
// check-in or check-out transition.
type CheckInEvent struct {
	BookingID        string    `json:"booking_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	VenueID          string    `json:"venue_id"`
	Action           string    `json:"action"`
	Customer         string    `json:"customer"`
	GroupSize        int       `json:"group_size"`
	At               time.Time `json:"at"`
}
