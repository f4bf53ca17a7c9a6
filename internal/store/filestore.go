// ABOUTME: Flat-file implementation of the Store interface for degraded operation
// ABOUTME: Keeps entities in memory and persists JSON snapshots with atomic renames

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	bookingsFile    = "bookings.json"
	preferencesFile = "preferences.json"
	alertsFile      = "alerts.json"
)

// FileStore implements the Store interface on top of JSON files in a
// directory. It is the degraded backend behind the storage gateway: slower
// and unindexed, but with no external dependency that can fail.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	logger *slog.Logger

	bookings    map[string]*Booking
	preferences map[string]map[string]any
	alerts      map[string]*EmergencyAlert
}

// NewFileStore opens (or creates) a file store in dir, loading any
// existing snapshots.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating file store directory: %w", err)
	}

	s := &FileStore{
		dir:         dir,
		logger:      slog.Default().With("component", "file-store"),
		bookings:    make(map[string]*Booking),
		preferences: make(map[string]map[string]any),
		alerts:      make(map[string]*EmergencyAlert),
	}

	if err := loadJSON(filepath.Join(dir, bookingsFile), &s.bookings); err != nil {
		return nil, fmt.Errorf("loading bookings: %w", err)
	}
	if err := loadJSON(filepath.Join(dir, preferencesFile), &s.preferences); err != nil {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}
	if err := loadJSON(filepath.Join(dir, alertsFile), &s.alerts); err != nil {
		return nil, fmt.Errorf("loading alerts: %w", err)
	}

	s.logger.Info("file store opened", "dir", dir, "bookings", len(s.bookings))
	return s, nil
}

// loadJSON reads a snapshot file into dst. A missing file is an empty store.
func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// persist writes dst to path via a temp file and rename so a crash never
// leaves a torn snapshot. Must be called with mu held.
func (s *FileStore) persist(file string, src any) error {
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", file, err)
	}

	path := filepath.Join(s.dir, file)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// SaveBooking appends a booking and persists the snapshot.
func (s *FileStore) SaveBooking(ctx context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *b
	s.bookings[b.ID] = &clone
	return s.persist(bookingsFile, s.bookings)
}

// GetBooking retrieves a booking by id.
func (s *FileStore) GetBooking(ctx context.Context, id string) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *b
	return &clone, nil
}

// GetUserBookings returns one user's bookings, newest created first.
func (s *FileStore) GetUserBookings(ctx context.Context, userID string, f BookingFilter) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Booking
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		clone := *b
		out = append(out, &clone)
	}

	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// UpdateBooking merges a partial update into a stored booking.
func (s *FileStore) UpdateBooking(ctx context.Context, id string, upd BookingUpdate) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}

	applyUpdate(b, upd)
	if err := s.persist(bookingsFile, s.bookings); err != nil {
		return nil, err
	}
	clone := *b
	return &clone, nil
}

// SearchBookings returns bookings matching every populated criterion,
// newest created first.
func (s *FileStore) SearchBookings(ctx context.Context, c SearchCriteria) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Booking
	for _, b := range s.bookings {
		if matchesCriteria(b, c) {
			clone := *b
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(bs []*Booking) {
	sort.Slice(bs, func(i, j int) bool {
		return bs[i].CreatedAt.After(bs[j].CreatedAt)
	})
}

// SaveUserPreferences upserts a user's preference blob (last write wins).
func (s *FileStore) SaveUserPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.preferences[userID] = prefs
	return s.persist(preferencesFile, s.preferences)
}

// GetUserPreferences returns the stored preference blob for a user.
func (s *FileStore) GetUserPreferences(ctx context.Context, userID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.preferences[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return prefs, nil
}

// SaveAlert records an emergency alert.
func (s *FileStore) SaveAlert(ctx context.Context, a *EmergencyAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *a
	s.alerts[a.ID] = &clone
	return s.persist(alertsFile, s.alerts)
}

// GetAlert retrieves an alert by id.
func (s *FileStore) GetAlert(ctx context.Context, id string) (*EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

// ListActiveAlerts returns all alerts in active status, newest first.
func (s *FileStore) ListActiveAlerts(ctx context.Context) ([]*EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*EmergencyAlert
	for _, a := range s.alerts {
		if a.Status == AlertActive {
			clone := *a
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateAlertStatus transitions an alert's status.
func (s *FileStore) UpdateAlertStatus(ctx context.Context, id, status string) (*EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}

	a.Status = status
	if status != AlertActive && a.ResolvedAt == nil {
		now := time.Now()
		a.ResolvedAt = &now
	}
	if err := s.persist(alertsFile, s.alerts); err != nil {
		return nil, err
	}
	clone := *a
	return &clone, nil
}

// Snapshot is the backup envelope for the file store.
type Snapshot struct {
	CreatedAt   time.Time                  `json:"createdAt"`
	Bookings    map[string]*Booking        `json:"bookings"`
	Preferences map[string]map[string]any  `json:"preferences"`
	Alerts      map[string]*EmergencyAlert `json:"alerts"`
}

// Backup writes a snapshot of all file-store state to w.
func (s *FileStore) Backup(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		CreatedAt:   time.Now(),
		Bookings:    s.bookings,
		Preferences: s.preferences,
		Alerts:      s.alerts,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Restore replaces all file-store state with the snapshot read from r
// and persists it. Not a merge.
func (s *FileStore) Restore(r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Bookings == nil {
		snap.Bookings = make(map[string]*Booking)
	}
	if snap.Preferences == nil {
		snap.Preferences = make(map[string]map[string]any)
	}
	if snap.Alerts == nil {
		snap.Alerts = make(map[string]*EmergencyAlert)
	}
	s.bookings = snap.Bookings
	s.preferences = snap.Preferences
	s.alerts = snap.Alerts

	if err := s.persist(bookingsFile, s.bookings); err != nil {
		return err
	}
	if err := s.persist(preferencesFile, s.preferences); err != nil {
		return err
	}
	return s.persist(alertsFile, s.alerts)
}

// Ping always succeeds; the file store has no remote dependency.
func (s *FileStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op; snapshots are persisted on every write.
func (s *FileStore) Close() error {
	return nil
}
