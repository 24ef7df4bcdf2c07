package checkin

import "errors"

// Scan outcome taxonomy. Handlers branch on these with errors.Is; the
// messages wrapped around them carry the operator-facing detail.
var (
	// ErrTamper: signature did not verify against any known secret.
	// Fatal, never retried.
	ErrTamper = errors.New("ticket signature invalid")

	// ErrExpiredToken: token past expiresAt, or superseded by a newer
	// issuance for the same booking. Fatal.
	ErrExpiredToken = errors.New("ticket expired")

	// ErrUnknownBooking: no such booking, or the booking was cancelled.
	ErrUnknownBooking = errors.New("unknown booking")

	// ErrMalformedScan: the scanned text is not a ticket at all. Benign;
	// the scanner keeps running and only a log entry is made.
	ErrMalformedScan = errors.New("malformed scan")

	// ErrStateConflict: a business-rule rejection such as checking out a
	// booking that never checked in. User-visible, not fatal.
	ErrStateConflict = errors.New("state conflict")

	// ErrNetwork: the booking store could not be reached in time.
	// Retryable; the transition is idempotent so retries are safe.
	ErrNetwork = errors.New("booking store unreachable")
)
