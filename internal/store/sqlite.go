// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides booking/preference/alert persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "sqlite-store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bookings (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			type                TEXT NOT NULL,
			from_location       TEXT NOT NULL,
			to_location         TEXT NOT NULL,
			date                TEXT,
			time                TEXT,
			departure_date      TEXT,
			return_date         TEXT,
			passengers_json     TEXT NOT NULL,
			travel_class        TEXT,
			seat_type           TEXT,
			price               REAL NOT NULL,
			duration_minutes    INTEGER NOT NULL,
			status              TEXT NOT NULL,
			confirmation_code   TEXT,
			payment_status      TEXT,
			cancellation_reason TEXT,
			cancelled_at        DATETIME,
			created_at          DATETIME NOT NULL,
			updated_at          DATETIME NOT NULL,

			CHECK (type IN ('bus', 'train', 'flight')),
			CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed'))
		);

		CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id    TEXT PRIMARY KEY,
			prefs_json TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS emergency_alerts (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			type            TEXT NOT NULL,
			location        TEXT,
			details         TEXT,
			status          TEXT NOT NULL,
			priority        TEXT NOT NULL,
			responders_json TEXT,
			created_at      DATETIME NOT NULL,
			resolved_at     DATETIME,

			CHECK (status IN ('active', 'resolved', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_status ON emergency_alerts(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveBooking inserts a booking. The caller supplies the booking id.
func (s *SQLiteStore) SaveBooking(ctx context.Context, b *Booking) error {
	passengers, err := json.Marshal(b.Passengers)
	if err != nil {
		return fmt.Errorf("encoding passengers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (
			id, user_id, type, from_location, to_location,
			date, time, departure_date, return_date, passengers_json,
			travel_class, seat_type, price, duration_minutes, status,
			confirmation_code, payment_status, cancellation_reason,
			cancelled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Type, b.From, b.To,
		b.Date, b.Time, b.DepartureDate, b.ReturnDate, string(passengers),
		b.TravelClass, b.SeatType, b.Price, b.DurationMinutes, b.Status,
		b.ConfirmationCode, b.PaymentStatus, b.CancellationReason,
		b.CancelledAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}
	return nil
}

const bookingColumns = `
	id, user_id, type, from_location, to_location,
	date, time, departure_date, return_date, passengers_json,
	travel_class, seat_type, price, duration_minutes, status,
	confirmation_code, payment_status, cancellation_reason,
	cancelled_at, created_at, updated_at`

// scanBooking reads one booking row.
func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	var b Booking
	var passengers string
	var cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.UserID, &b.Type, &b.From, &b.To,
		&b.Date, &b.Time, &b.DepartureDate, &b.ReturnDate, &passengers,
		&b.TravelClass, &b.SeatType, &b.Price, &b.DurationMinutes, &b.Status,
		&b.ConfirmationCode, &b.PaymentStatus, &b.CancellationReason,
		&cancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	if err := json.Unmarshal([]byte(passengers), &b.Passengers); err != nil {
		return nil, fmt.Errorf("decoding passengers: %w", err)
	}
	return &b, nil
}

// GetBooking retrieves a booking by id.
func (s *SQLiteStore) GetBooking(ctx context.Context, id string) (*Booking, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)

	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}
	return b, nil
}

// GetUserBookings returns one user's bookings, newest created first.
func (s *SQLiteStore) GetUserBookings(ctx context.Context, userID string, f BookingFilter) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ?`
	args := []any{userID}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return s.queryBookings(ctx, query, args...)
}

// UpdateBooking merges a partial update into a stored booking and stamps
// its update time. The booking id and owner are immutable.
func (s *SQLiteStore) UpdateBooking(ctx context.Context, id string, upd BookingUpdate) (*Booking, error) {
	b, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	applyUpdate(b, upd)

	passengers, err := json.Marshal(b.Passengers)
	if err != nil {
		return nil, fmt.Errorf("encoding passengers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE bookings SET
			from_location = ?, to_location = ?, date = ?, time = ?,
			departure_date = ?, return_date = ?, passengers_json = ?,
			travel_class = ?, seat_type = ?, price = ?, duration_minutes = ?,
			status = ?, payment_status = ?, cancellation_reason = ?,
			cancelled_at = ?, updated_at = ?
		WHERE id = ?`,
		b.From, b.To, b.Date, b.Time,
		b.DepartureDate, b.ReturnDate, string(passengers),
		b.TravelClass, b.SeatType, b.Price, b.DurationMinutes,
		b.Status, b.PaymentStatus, b.CancellationReason,
		b.CancelledAt, b.UpdatedAt,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating booking: %w", err)
	}
	return b, nil
}

// SearchBookings returns bookings matching every populated criterion,
// newest created first. Exact-match criteria are pushed into SQL; the
// substring and date-range criteria share matchesCriteria with the file
// backend so both backends search identically.
func (s *SQLiteStore) SearchBookings(ctx context.Context, c SearchCriteria) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	args := []any{}

	if c.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, c.UserID)
	}
	if c.Type != "" {
		query += ` AND type = ?`
		args = append(args, c.Type)
	}
	if c.Status != "" {
		query += ` AND status = ?`
		args = append(args, c.Status)
	}
	query += ` ORDER BY created_at DESC`

	candidates, err := s.queryBookings(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	matched := make([]*Booking, 0, len(candidates))
	for _, b := range candidates {
		if matchesCriteria(b, c) {
			matched = append(matched, b)
		}
	}
	return matched, nil
}

func (s *SQLiteStore) queryBookings(ctx context.Context, query string, args ...any) ([]*Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveUserPreferences upserts a user's preference blob (last write wins).
func (s *SQLiteStore) SaveUserPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	blob, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, prefs_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET prefs_json = excluded.prefs_json, updated_at = excluded.updated_at`,
		userID, string(blob), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// GetUserPreferences returns the stored preference blob for a user.
func (s *SQLiteStore) GetUserPreferences(ctx context.Context, userID string) (map[string]any, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT prefs_json FROM user_preferences WHERE user_id = ?`, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}

	var prefs map[string]any
	if err := json.Unmarshal([]byte(blob), &prefs); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	return prefs, nil
}

// SaveAlert inserts an emergency alert.
func (s *SQLiteStore) SaveAlert(ctx context.Context, a *EmergencyAlert) error {
	responders, err := json.Marshal(a.Responders)
	if err != nil {
		return fmt.Errorf("encoding responders: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emergency_alerts (
			id, user_id, type, location, details, status, priority,
			responders_json, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Type, a.Location, a.Details, a.Status, a.Priority,
		string(responders), a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by id.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*EmergencyAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, location, details, status, priority,
		       responders_json, created_at, resolved_at
		FROM emergency_alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying alert: %w", err)
	}
	return a, nil
}

// ListActiveAlerts returns all alerts in active status, newest first.
func (s *SQLiteStore) ListActiveAlerts(ctx context.Context) ([]*EmergencyAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, location, details, status, priority,
		       responders_json, created_at, resolved_at
		FROM emergency_alerts WHERE status = ? ORDER BY created_at DESC`, AlertActive)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []*EmergencyAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAlertStatus transitions an alert's status, stamping resolution time
// when leaving active status.
func (s *SQLiteStore) UpdateAlertStatus(ctx context.Context, id, status string) (*EmergencyAlert, error) {
	a, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	a.Status = status
	if status != AlertActive && a.ResolvedAt == nil {
		now := time.Now()
		a.ResolvedAt = &now
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE emergency_alerts SET status = ?, resolved_at = ? WHERE id = ?`,
		a.Status, a.ResolvedAt, id)
	if err != nil {
		return nil, fmt.Errorf("updating alert: %w", err)
	}
	return a, nil
}

func scanAlert(row interface{ Scan(...any) error }) (*EmergencyAlert, error) {
	var a EmergencyAlert
	var responders sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.UserID, &a.Type, &a.Location, &a.Details, &a.Status,
		&a.Priority, &responders, &a.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if responders.Valid && responders.String != "" {
		if err := json.Unmarshal([]byte(responders.String), &a.Responders); err != nil {
			return nil, fmt.Errorf("decoding responders: %w", err)
		}
	}
	return &a, nil
}

// Ping reports database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
