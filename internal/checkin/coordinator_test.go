package checkin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
	"ms-checkin/internal/ticket"
)

// memStore is an in-memory BookingStore whose conditional update is
// serialized on a mutex, so concurrent scans race exactly the way they
// do against the database.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking

	getErr error
	casErr error
}

func newMemStore(bookings ...models.Booking) *memStore {
	s := &memStore{bookings: make(map[string]*models.Booking)}
	for i := range bookings {
		b := bookings[i]
		s.bookings[b.BookingID] = &b
	}
	return s
}

func (s *memStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *memStore) CASUpdateStatus(ctx context.Context, bookingID, expectedStatus, newStatus, timestampField string, timestampValue time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casErr != nil {
		return false, s.casErr
	}
	b, ok := s.bookings[bookingID]
	if !ok || b.Status != expectedStatus {
		return false, nil
	}
	b.Status = newStatus
	switch timestampField {
	case store.CheckInTimeField:
		b.CheckInTime = timestampValue
	case store.CheckOutTimeField:
		b.CheckOutTime = timestampValue
	}
	return true, nil
}

var testKeyring = ticket.NewKeyring("K1")

func testBooking() models.Booking {
	return models.Booking{
		BookingID:        "BK-1001",
		ConfirmationCode: "ABC123",
		CustomerName:     "Jordan Lee",
		ActivityName:     "Escape Room",
		VenueID:          "venue-1",
		GroupSize:        4,
		Status:           models.StatusBooked,
	}
}

// signedToken builds a valid token for the given claims with the test
// keyring.
func signedToken(t *testing.T, claims models.TicketClaims) string {
	t.Helper()
	payload, err := ticket.EncodeClaims(claims)
	require.NoError(t, err)
	return ticket.Compose(payload, testKeyring.Sign(payload))
}

func testClaims() models.TicketClaims {
	return models.TicketClaims{
		BookingID:        "BK-1001",
		ConfirmationCode: "ABC123",
		IssuedAt:         1700000000,
		ExpiresAt:        1700086400,
	}
}

// testCoordinator pins the clock inside the token's validity window.
func testCoordinator(s BookingStore) *Coordinator {
	c := NewCoordinator(s, testKeyring, nil)
	c.now = func() time.Time { return time.Unix(1700040000, 0) }
	return c
}

func TestCheckInHappyPath(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)

	result, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.AlreadyCheckedIn)
	require.NotNil(t, result.Booking)
	assert.Equal(t, models.StatusCheckedIn, result.Booking.Status)
	require.NotNil(t, result.Booking.CheckInTime)
	assert.Equal(t, int64(1700040000), result.Booking.CheckInTime.Unix())

	stored := st.bookings["BK-1001"]
	assert.Equal(t, models.StatusCheckedIn, stored.Status)
}

func TestCheckInIsIdempotent(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)
	token := signedToken(t, testClaims())
	ctx := context.Background()

	first, err := c.ProcessScan(ctx, token, ActionCheckIn)
	require.NoError(t, err)
	require.True(t, first.Success)
	originalTime := *first.Booking.CheckInTime

	// Second scan of the same valid ticket reports the earlier check-in
	// without touching the timestamp.
	c.now = func() time.Time { return time.Unix(1700041000, 0) }
	second, err := c.ProcessScan(ctx, token, ActionCheckIn)
	require.NoError(t, err)

	assert.False(t, second.Success)
	assert.True(t, second.AlreadyCheckedIn)
	require.NotNil(t, second.Booking.CheckInTime)
	assert.Equal(t, originalTime, *second.Booking.CheckInTime)
}

func TestTamperedTokenRejected(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)

	// Flip one character of the signature segment.
	token := signedToken(t, testClaims())
	i := strings.LastIndex(token, ".") + 1
	flip := byte('A')
	if token[i] == 'A' {
		flip = 'B'
	}
	tampered := token[:i] + string(flip) + token[i+1:]

	_, err := c.ProcessScan(context.Background(), tampered, ActionCheckIn)
	assert.ErrorIs(t, err, ErrTamper)

	// Nothing moved.
	assert.Equal(t, models.StatusBooked, st.bookings["BK-1001"].Status)
}

func TestWrongSecretRejected(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)

	payload, err := ticket.EncodeClaims(testClaims())
	require.NoError(t, err)
	forged := ticket.Compose(payload, ticket.NewKeyring("attacker").Sign(payload))

	_, err = c.ProcessScan(context.Background(), forged, ActionCheckIn)
	assert.ErrorIs(t, err, ErrTamper)
}

func TestExpiredTokenRejected(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)
	c.now = func() time.Time { return time.Unix(1700086401, 0) }

	_, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSupersededTokenRejected(t *testing.T) {
	booking := testBooking()
	booking.TokenIssuedAt = 1700000500 // reissued after a schedule change
	st := newMemStore(booking)
	c := testCoordinator(st)

	_, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	assert.ErrorIs(t, err, ErrExpiredToken)

	// The current token still works.
	claims := testClaims()
	claims.IssuedAt = 1700000500
	result, err := c.ProcessScan(context.Background(), signedToken(t, claims), ActionCheckIn)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestUnknownBookingRejected(t *testing.T) {
	st := newMemStore() // empty
	c := testCoordinator(st)

	_, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	assert.ErrorIs(t, err, ErrUnknownBooking)
}

func TestCancelledBookingRejected(t *testing.T) {
	booking := testBooking()
	booking.Status = models.StatusCancelled
	st := newMemStore(booking)
	c := testCoordinator(st)

	_, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	assert.ErrorIs(t, err, ErrUnknownBooking)
}

func TestMalformedScanRejected(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)
	ctx := context.Background()

	for _, text := range []string{
		"https://example.com/menu",
		"not.a.ticket.at.all",
		"",
	} {
		_, err := c.ProcessScan(ctx, text, ActionCheckIn)
		assert.ErrorIs(t, err, ErrMalformedScan, "text %q", text)
	}
}

func TestCheckOutRequiresCheckIn(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)
	token := signedToken(t, testClaims())
	ctx := context.Background()

	_, err := c.ProcessScan(ctx, token, ActionCheckOut)
	assert.ErrorIs(t, err, ErrStateConflict)

	_, err = c.ProcessScan(ctx, token, ActionCheckIn)
	require.NoError(t, err)

	result, err := c.ProcessScan(ctx, token, ActionCheckOut)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.StatusCheckedOut, result.Booking.Status)
	require.NotNil(t, result.Booking.CheckOutTime)

	// Duplicate check-out is reported, not re-applied.
	originalTime := *result.Booking.CheckOutTime
	again, err := c.ProcessScan(ctx, token, ActionCheckOut)
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.True(t, again.AlreadyCheckedIn)
	assert.Equal(t, originalTime, *again.Booking.CheckOutTime)
}

func TestConcurrentCheckInsExactlyOneWins(t *testing.T) {
	st := newMemStore(testBooking())
	c := testCoordinator(st)
	token := signedToken(t, testClaims())

	const scanners = 16
	results := make([]*Result, scanners)
	errs := make([]error, scanners)

	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.ProcessScan(context.Background(), token, ActionCheckIn)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i := 0; i < scanners; i++ {
		require.NoError(t, errs[i])
		if results[i].Success {
			wins++
		} else {
			assert.True(t, results[i].AlreadyCheckedIn)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent scan may perform the transition")
	assert.Equal(t, models.StatusCheckedIn, st.bookings["BK-1001"].Status)
}

func TestStoreFailureMapsToNetworkError(t *testing.T) {
	st := newMemStore(testBooking())
	st.getErr = errors.New("connection refused")

	c := testCoordinator(st)
	c.Retries = 1

	start := time.Now()
	_, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.GreaterOrEqual(t, time.Since(start), retryBackoff, "a retry should have happened")
}

func TestCASFailureMapsToNetworkError(t *testing.T) {
	st := newMemStore(testBooking())
	st.casErr = errors.New("connection reset")

	c := testCoordinator(st)
	c.Retries = 1

	_, err := c.ProcessScan(context.Background(), signedToken(t, testClaims()), ActionCheckIn)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, models.StatusBooked, st.bookings["BK-1001"].Status)
}

func TestParseAction(t *testing.T) {
	checkIn, err := ParseAction("check_in")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckIn, checkIn)
	assert.Equal(t, "check_in", checkIn.String())

	checkOut, err := ParseAction("check_out")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckOut, checkOut)
	assert.Equal(t, "check_out", checkOut.String())

	_, err = ParseAction("dance")
	assert.Error(t, err)
}
