package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
	"ms-checkin/internal/ticket"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultRetries      = 2
	retryBackoff        = 100 * time.Millisecond
)

// BookingStore is the slice of the booking record store the
// coordinator needs: a point lookup and an atomic conditional status
// update.
type BookingStore interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	CASUpdateStatus(ctx context.Context, bookingID, expectedStatus, newStatus, timestampField string, timestampValue time.Time) (bool, error)
}

// Result is the outcome of one scan. Every outcome is a successful
// first transition, an idempotent "already done" report, or an error
// from the taxonomy in errors.go.
type Result struct {
	Success bool `json:"success"`
	// AlreadyCheckedIn reports that the booking was already in the
	// requested state; the snapshot carries the original timestamps.
	AlreadyCheckedIn bool                    `json:"alreadyCheckedIn"`
	Booking          *models.BookingSnapshot `json:"booking,omitempty"`
}

// Coordinator validates scanned tokens and drives the booking status
// machine: booked -> checked_in -> checked_out, monotonic, each
// timestamp set exactly once. Concurrent scans of the same ticket race
// only at the store's CAS update, so exactly one wins.
type Coordinator struct {
	Store   BookingStore
	Keyring *ticket.Keyring
	Logger  *logger.Logger

	// Timeout bounds each store call; Retries bounds extra attempts
	// after a retryable failure.
	Timeout time.Duration
	Retries int

	now func() time.Time
}

func NewCoordinator(bookings BookingStore, keyring *ticket.Keyring, log *logger.Logger) *Coordinator {
	return &Coordinator{
		Store:   bookings,
		Keyring: keyring,
		Logger:  log,
		Timeout: defaultStoreTimeout,
		Retries: defaultRetries,
		now:     time.Now,
	}
}

// ProcessScan validates scannedText and applies the requested
// transition. Validation order: shape, claims structure, signature,
// expiry, booking existence, supersession, then the CAS transition.
func (c *Coordinator) ProcessScan(ctx context.Context, scannedText string, action Action) (*Result, error) {
	payload, signature, err := ticket.Split(scannedText)
	if err != nil {
		c.logScan("rejected malformed scan: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedScan, err)
	}

	claims, err := ticket.DecodeClaims(payload)
	if err != nil {
		c.logScan("rejected undecodable claims: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedScan, err)
	}

	if !c.Keyring.Verify(payload, signature) {
		c.logScan("signature verification failed for booking %s", claims.BookingID)
		return nil, fmt.Errorf("%w for booking %s", ErrTamper, claims.BookingID)
	}

	now := c.now()
	if now.Unix() > claims.ExpiresAt {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpiredToken, time.Unix(claims.ExpiresAt, 0).Format(time.RFC3339))
	}

	booking, err := c.getBooking(ctx, claims.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: booking %s is cancelled", ErrUnknownBooking, claims.BookingID)
	}

	// A reissued ticket (schedule change) bumps token_issued_at; any
	// token minted before that is dead even though its signature holds.
	if booking.TokenIssuedAt != 0 && claims.IssuedAt < booking.TokenIssuedAt {
		return nil, fmt.Errorf("%w: token superseded by a newer issuance", ErrExpiredToken)
	}

	switch action {
	case ActionCheckIn:
		return c.checkIn(ctx, booking, now)
	case ActionCheckOut:
		return c.checkOut(ctx, booking, now)
	default:
		return nil, fmt.Errorf("%w: unsupported action %s", ErrStateConflict, action)
	}
}

func (c *Coordinator) checkIn(ctx context.Context, booking *models.Booking, now time.Time) (*Result, error) {
	ok, err := c.casUpdate(ctx, booking.BookingID, models.StatusBooked, models.StatusCheckedIn, store.CheckInTimeField, now)
	if err != nil {
		return nil, err
	}

	if ok {
		booking.Status = models.StatusCheckedIn
		booking.CheckInTime = now
		c.logCheckIn("booking %s checked in", booking.BookingID)
		return &Result{Success: true, Booking: booking.Snapshot()}, nil
	}

	// Lost the race or scanned twice: report the current state without
	// touching it.
	current, err := c.getBooking(ctx, booking.BookingID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case models.StatusCheckedIn, models.StatusCheckedOut:
		c.logCheckIn("booking %s already checked in", booking.BookingID)
		return &Result{AlreadyCheckedIn: true, Booking: current.Snapshot()}, nil
	case models.StatusCancelled:
		return nil, fmt.Errorf("%w: booking %s is cancelled", ErrUnknownBooking, booking.BookingID)
	default:
		return nil, fmt.Errorf("%w: booking %s is %s", ErrStateConflict, booking.BookingID, current.Status)
	}
}

func (c *Coordinator) checkOut(ctx context.Context, booking *models.Booking, now time.Time) (*Result, error) {
	if booking.Status == models.StatusBooked {
		return nil, fmt.Errorf("%w: booking %s not checked in yet", ErrStateConflict, booking.BookingID)
	}

	ok, err := c.casUpdate(ctx, booking.BookingID, models.StatusCheckedIn, models.StatusCheckedOut, store.CheckOutTimeField, now)
	if err != nil {
		return nil, err
	}

	if ok {
		booking.Status = models.StatusCheckedOut
		booking.CheckOutTime = now
		c.logCheckIn("booking %s checked out", booking.BookingID)
		return &Result{Success: true, Booking: booking.Snapshot()}, nil
	}

	current, err := c.getBooking(ctx, booking.BookingID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case models.StatusCheckedOut:
		// Duplicate check-out scan: idempotent, original timestamp stands.
		return &Result{AlreadyCheckedIn: true, Booking: current.Snapshot()}, nil
	case models.StatusBooked:
		return nil, fmt.Errorf("%w: booking %s not checked in yet", ErrStateConflict, booking.BookingID)
	case models.StatusCancelled:
		return nil, fmt.Errorf("%w: booking %s is cancelled", ErrUnknownBooking, booking.BookingID)
	default:
		return nil, fmt.Errorf("%w: booking %s is %s", ErrStateConflict, booking.BookingID, current.Status)
	}
}

// getBooking wraps the store lookup with a bounded timeout and a small
// number of retries. Retrying is safe: lookups don't mutate.
func (c *Coordinator) getBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryBackoff*time.Duration(attempt)); err != nil {
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		booking, err := c.Store.GetBooking(callCtx, bookingID)
		cancel()
		if err == nil {
			return booking, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBooking, bookingID)
		}
		lastErr = err
		c.logCheckIn("booking lookup attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrNetwork, lastErr)
}

// casUpdate wraps the conditional status update the same way. The
// update is idempotent by construction: a retry after a timed-out but
// actually-committed attempt simply observes the CAS conflict.
func (c *Coordinator) casUpdate(ctx context.Context, bookingID, expected, next, field string, ts time.Time) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryBackoff*time.Duration(attempt)); err != nil {
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		ok, err := c.Store.CASUpdateStatus(callCtx, bookingID, expected, next, field, ts)
		cancel()
		if err == nil {
			return ok, nil
		}
		lastErr = err
		c.logCheckIn("status update attempt %d failed: %v", attempt+1, err)
	}
	return false, fmt.Errorf("%w: %v", ErrNetwork, lastErr)
}

func (c *Coordinator) logScan(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.LogScan(fmt.Sprintf(format, args...))
	}
}

func (c *Coordinator) logCheckIn(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.LogCheckIn(fmt.Sprintf(format, args...))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
