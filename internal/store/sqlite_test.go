// ABOUTME: Tests for the SQLite store backend
// ABOUTME: Exercises booking CRUD, search, preferences and alerts against :memory:

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBooking(id, userID string) *Booking {
	now := time.Now()
	return &Booking{
		ID:     id,
		UserID: userID,
		Type:   TypeBus,
		From:   "Delhi",
		To:     "Mumbai",
		Date:   "2026-09-15",
		Time:   "08:30",
		Passengers: []Passenger{
			{Name: "Asha", Age: 34, AgeClass: AgeClassAdult},
		},
		SeatType:         "sleeper",
		Price:            1250,
		DurationMinutes:  960,
		Status:           StatusConfirmed,
		ConfirmationCode: "YTR-TEST01",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestSQLiteStore_SaveAndGetBooking(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	b := testBooking("bk-1", "user-1")
	require.NoError(t, s.SaveBooking(ctx, b))

	got, err := s.GetBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Delhi", got.From)
	assert.Equal(t, "Mumbai", got.To)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.Len(t, got.Passengers, 1)
	assert.Equal(t, "Asha", got.Passengers[0].Name)
}

func TestSQLiteStore_GetBookingNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_GetUserBookings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	b1 := testBooking("bk-1", "user-1")
	b2 := testBooking("bk-2", "user-1")
	b2.Type = TypeTrain
	b2.Status = StatusCancelled
	b2.CreatedAt = b1.CreatedAt.Add(time.Minute)
	b3 := testBooking("bk-3", "user-2")
	for _, b := range []*Booking{b1, b2, b3} {
		require.NoError(t, s.SaveBooking(ctx, b))
	}

	all, err := s.GetUserBookings(ctx, "user-1", BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, "bk-2", all[0].ID)

	cancelled, err := s.GetUserBookings(ctx, "user-1", BookingFilter{Status: StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "bk-2", cancelled[0].ID)

	buses, err := s.GetUserBookings(ctx, "user-1", BookingFilter{Type: TypeBus})
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Equal(t, "bk-1", buses[0].ID)

	limited, err := s.GetUserBookings(ctx, "user-1", BookingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_UpdateBooking(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	b := testBooking("bk-1", "user-1")
	require.NoError(t, s.SaveBooking(ctx, b))

	updated, err := s.UpdateBooking(ctx, "bk-1", BookingUpdate{
		"status":             StatusCancelled,
		"cancellationReason": "change of plans",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, "change of plans", updated.CancellationReason)
	// Identity fields survive an update attempt.
	roundTrip, err := s.UpdateBooking(ctx, "bk-1", BookingUpdate{
		"bookingId": "hijacked",
		"userId":    "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, "bk-1", roundTrip.ID)
	assert.Equal(t, "user-1", roundTrip.UserID)
}

func TestSQLiteStore_UpdateBookingNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.UpdateBooking(context.Background(), "missing", BookingUpdate{"status": StatusCancelled})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SearchBookings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	b1 := testBooking("bk-1", "user-1") // Delhi -> Mumbai, 2026-09-15, bus
	b2 := testBooking("bk-2", "user-1")
	b2.Type = TypeFlight
	b2.Date = ""
	b2.Time = ""
	b2.DepartureDate = "2026-10-01"
	b2.From = "New Delhi"
	b2.To = "Bengaluru"
	require.NoError(t, s.SaveBooking(ctx, b1))
	require.NoError(t, s.SaveBooking(ctx, b2))

	// Substring match on origin is case-insensitive.
	got, err := s.SearchBookings(ctx, SearchCriteria{From: "delhi"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.SearchBookings(ctx, SearchCriteria{To: "mumbai"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bk-1", got[0].ID)

	// Flight travel date comes from departureDate.
	got, err = s.SearchBookings(ctx, SearchCriteria{DateFrom: "2026-09-20", DateTo: "2026-10-15"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bk-2", got[0].ID)
}

func TestSQLiteStore_Preferences(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetUserPreferences(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveUserPreferences(ctx, "user-1", map[string]any{"language": "hi"}))
	require.NoError(t, s.SaveUserPreferences(ctx, "user-1", map[string]any{"language": "en", "seat": "window"}))

	prefs, err := s.GetUserPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "en", prefs["language"])
	assert.Equal(t, "window", prefs["seat"])
}

func TestSQLiteStore_Alerts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a := &EmergencyAlert{
		ID:        "al-1",
		UserID:    "user-1",
		Type:      AlertMedical,
		Location:  "Platform 4, Pune Junction",
		Status:    AlertActive,
		Priority:  "high",
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.SaveAlert(ctx, a))

	active, err := s.ListActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "al-1", active[0].ID)

	resolved, err := s.UpdateAlertStatus(ctx, "al-1", AlertResolved)
	require.NoError(t, err)
	assert.Equal(t, AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	active, err = s.ListActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.GetAlert(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
