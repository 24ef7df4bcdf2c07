package ticket

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"ms-checkin/internal/models"
)

const defaultSlotDuration = 2 * time.Hour

// Issuer builds and signs ticket claims for a booking. A fresh
// issuedAt is stamped on every call, so reissuing after a schedule
// change supersedes the previous token.
type Issuer struct {
	Keyring *Keyring
	Grace   time.Duration

	now func() time.Time
}

func NewIssuer(keyring *Keyring, grace time.Duration) *Issuer {
	return &Issuer{
		Keyring: keyring,
		Grace:   grace,
		now:     time.Now,
	}
}

// BuildClaims derives signable claims from a booking record. The raw
// customer email never enters the claims; only its SHA-256 digest does.
func (i *Issuer) BuildClaims(booking models.Booking) models.TicketClaims {
	return i.buildClaims(booking, i.now().Unix())
}

func (i *Issuer) buildClaims(booking models.Booking, issuedAt int64) models.TicketClaims {
	return models.TicketClaims{
		ActivityName:      booking.ActivityName,
		BookingID:         booking.BookingID,
		ConfirmationCode:  booking.ConfirmationCode,
		CustomerEmailHash: EmailHash(booking.CustomerEmail),
		Date:              booking.Date,
		ExpiresAt:         i.expiry(booking, time.Unix(issuedAt, 0)).Unix(),
		GroupSize:         booking.GroupSize,
		IssuedAt:          issuedAt,
		Time:              booking.Time,
		VenueName:         booking.VenueName,
	}
}

// Issue returns the signed scannable token for a booking along with
// the claims that went into it. Every call stamps a fresh issuedAt.
func (i *Issuer) Issue(booking models.Booking) (string, models.TicketClaims, error) {
	return i.sign(i.BuildClaims(booking))
}

// IssueWithIssuedAt reconstructs the token for an already-recorded
// issuance. Claims derive only from the booking row and issuedAt, so
// a QR download reproduces the exact token issued earlier.
func (i *Issuer) IssueWithIssuedAt(booking models.Booking, issuedAt int64) (string, models.TicketClaims, error) {
	return i.sign(i.buildClaims(booking, issuedAt))
}

func (i *Issuer) sign(claims models.TicketClaims) (string, models.TicketClaims, error) {
	payload, err := EncodeClaims(claims)
	if err != nil {
		return "", models.TicketClaims{}, fmt.Errorf("failed to encode claims: %w", err)
	}
	signature := i.Keyring.Sign(payload)
	return Compose(payload, signature), claims, nil
}

// expiry is scheduled end plus the grace window. Bookings with an
// unparseable schedule fall back to 24h from issuance so a data-entry
// slip never produces a ticket that is already expired.
func (i *Issuer) expiry(booking models.Booking, now time.Time) time.Time {
	start, err := time.ParseInLocation("2006-01-02 15:04", booking.Date+" "+booking.Time, time.Local)
	if err != nil {
		return now.Add(24*time.Hour + i.Grace)
	}
	duration := time.Duration(booking.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = defaultSlotDuration
	}
	return start.Add(duration + i.Grace)
}

// EmailHash one-way hashes a customer email so no PII lands in the
// scannable code. Normalized to lower case so re-issuance is stable.
func EmailHash(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
