package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Booking)(nil)))

	return &DB{Bun: bunDB}
}

func seedBooking(t *testing.T, db *DB, booking models.Booking) {
	t.Helper()
	require.NoError(t, db.CreateBooking(context.Background(), booking))
}

func storeTestBooking() models.Booking {
	return models.Booking{
		BookingID:        "BK-1001",
		ConfirmationCode: "ABC123",
		CustomerName:     "Jordan Lee",
		CustomerEmail:    "jordan.lee@example.com",
		ActivityName:     "Escape Room",
		VenueID:          "venue-1",
		VenueName:        "Downtown",
		Date:             "2026-09-01",
		Time:             "18:30",
		DurationMinutes:  90,
		GroupSize:        4,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedBooking(t, db, storeTestBooking())

	got, err := db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", got.ConfirmationCode)
	assert.Equal(t, models.StatusBooked, got.Status, "status defaults to booked")
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetBookingNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetBooking(context.Background(), "BK-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCASUpdateStatusWinsOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, storeTestBooking())

	checkInAt := time.Date(2026, 9, 1, 18, 35, 0, 0, time.UTC)
	ok, err := db.CASUpdateStatus(ctx, "BK-1001", models.StatusBooked, models.StatusCheckedIn, CheckInTimeField, checkInAt)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, got.Status)
	assert.Equal(t, checkInAt.Unix(), got.CheckInTime.Unix())

	// The same transition again loses the CAS and leaves the original
	// timestamp alone.
	ok, err = db.CASUpdateStatus(ctx, "BK-1001", models.StatusBooked, models.StatusCheckedIn, CheckInTimeField, checkInAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, checkInAt.Unix(), got.CheckInTime.Unix(), "check-in time is set exactly once")
}

func TestCASUpdateStatusFullLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, storeTestBooking())

	now := time.Now().UTC()

	ok, err := db.CASUpdateStatus(ctx, "BK-1001", models.StatusBooked, models.StatusCheckedIn, CheckInTimeField, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.CASUpdateStatus(ctx, "BK-1001", models.StatusCheckedIn, models.StatusCheckedOut, CheckOutTimeField, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedOut, got.Status)
	assert.False(t, got.CheckInTime.IsZero())
	assert.False(t, got.CheckOutTime.IsZero())
}

func TestCASUpdateStatusRejectsUnknownTimestampField(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.CASUpdateStatus(context.Background(), "BK-1001", models.StatusBooked, models.StatusCheckedIn, "created_at", time.Now())
	assert.Error(t, err)
}

func TestSetTokenIssuedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, storeTestBooking())

	require.NoError(t, db.SetTokenIssuedAt(ctx, "BK-1001", 1700000000))

	got, err := db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.TokenIssuedAt)

	assert.ErrorIs(t, db.SetTokenIssuedAt(ctx, "BK-missing", 1700000000), ErrNotFound)
}

func TestUpdateBookingSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, storeTestBooking())

	require.NoError(t, db.UpdateBookingSchedule(ctx, "BK-1001", "2026-09-02", "20:00", 120))

	got, err := db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-02", got.Date)
	assert.Equal(t, "20:00", got.Time)
	assert.Equal(t, 120, got.DurationMinutes)

	assert.ErrorIs(t, db.UpdateBookingSchedule(ctx, "BK-missing", "2026-09-02", "20:00", 120), ErrNotFound)
}

func TestCancelBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, storeTestBooking())

	require.NoError(t, db.CancelBooking(ctx, "BK-1001"))

	got, err := db.GetBooking(ctx, "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	assert.ErrorIs(t, db.CancelBooking(ctx, "BK-missing"), ErrNotFound)
}

func TestGetCheckedInCountByVenue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := storeTestBooking()
	seedBooking(t, db, first)

	second := storeTestBooking()
	second.BookingID = "BK-1002"
	second.ConfirmationCode = "DEF456"
	seedBooking(t, db, second)

	other := storeTestBooking()
	other.BookingID = "BK-2001"
	other.ConfirmationCode = "GHI789"
	other.VenueID = "venue-2"
	seedBooking(t, db, other)

	count, err := db.GetCheckedInCountByVenue(ctx, "venue-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	now := time.Now().UTC()
	ok, err := db.CASUpdateStatus(ctx, "BK-1001", models.StatusBooked, models.StatusCheckedIn, CheckInTimeField, now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.CASUpdateStatus(ctx, "BK-2001", models.StatusBooked, models.StatusCheckedIn, CheckInTimeField, now)
	require.NoError(t, err)
	require.True(t, ok)

	count, err = db.GetCheckedInCountByVenue(ctx, "venue-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only venue-1 check-ins are counted")
}
