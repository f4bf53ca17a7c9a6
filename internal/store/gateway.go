// ABOUTME: Storage gateway with health-checked failover between backends
// ABOUTME: Routes to SQLite while healthy, falls back to the flat-file store

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Backend names reported alongside every gateway operation.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Gateway fronts the durable SQLite store with a flat-file fallback. A
// cached health flag decides routing: while the durable backend is
// healthy every operation goes to it, and a failure there flips the flag
// and retries the same operation on the file store. A background ping
// loop restores the flag when the durable backend recovers.
//
// Writes that land in the fallback are not replayed into SQLite on
// recovery; the backup/restore endpoints exist for operators to
// reconcile by hand.
type Gateway struct {
	durable  Store
	fallback *FileStore
	healthy  atomic.Bool
	logger   *slog.Logger

	interval time.Duration
	done     chan struct{}
}

// NewGateway wires the two backends together and starts the health loop.
// The gateway starts optimistic: the durable backend is assumed healthy
// until an operation or ping says otherwise.
func NewGateway(durable Store, fallback *FileStore, healthInterval time.Duration) *Gateway {
	g := &Gateway{
		durable:  durable,
		fallback: fallback,
		logger:   slog.Default().With("component", "storage-gateway"),
		interval: healthInterval,
		done:     make(chan struct{}),
	}
	g.healthy.Store(true)
	go g.healthLoop()
	return g
}

// Healthy reports whether the durable backend is currently in use.
func (g *Gateway) Healthy() bool {
	return g.healthy.Load()
}

// healthLoop periodically pings the durable backend and updates the
// cached flag in both directions.
func (g *Gateway) healthLoop() {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := g.durable.Ping(ctx)
			cancel()

			was := g.healthy.Load()
			now := err == nil
			if was != now {
				g.healthy.Store(now)
				if now {
					g.logger.Info("durable storage recovered")
				} else {
					g.logger.Warn("durable storage unhealthy", "error", err)
				}
			}
		}
	}
}

// markUnhealthy flips the flag after an operation-level failure so
// subsequent requests skip the dead backend without waiting for the
// next ping.
func (g *Gateway) markUnhealthy(op string, err error) {
	if g.healthy.CompareAndSwap(true, false) {
		g.logger.Warn("durable storage failed, switching to file fallback",
			"operation", op, "error", err)
	}
}

// SaveBooking persists a booking, reporting which backend took the write.
func (g *Gateway) SaveBooking(ctx context.Context, b *Booking) (string, error) {
	if g.healthy.Load() {
		if err := g.durable.SaveBooking(ctx, b); err == nil {
			return BackendSQLite, nil
		} else {
			g.markUnhealthy("save-booking", err)
		}
	}
	return BackendFile, g.fallback.SaveBooking(ctx, b)
}

// GetBooking retrieves a booking from the active backend.
func (g *Gateway) GetBooking(ctx context.Context, id string) (*Booking, string, error) {
	if g.healthy.Load() {
		b, err := g.durable.GetBooking(ctx, id)
		if err == nil || errors.Is(err, ErrNotFound) {
			return b, BackendSQLite, err
		}
		g.markUnhealthy("get-booking", err)
	}
	b, err := g.fallback.GetBooking(ctx, id)
	return b, BackendFile, err
}

// GetUserBookings lists one user's bookings from the active backend.
func (g *Gateway) GetUserBookings(ctx context.Context, userID string, f BookingFilter) ([]*Booking, string, error) {
	if g.healthy.Load() {
		bs, err := g.durable.GetUserBookings(ctx, userID, f)
		if err == nil {
			return bs, BackendSQLite, nil
		}
		g.markUnhealthy("get-user-bookings", err)
	}
	bs, err := g.fallback.GetUserBookings(ctx, userID, f)
	return bs, BackendFile, err
}

// UpdateBooking merges a partial update on the active backend.
func (g *Gateway) UpdateBooking(ctx context.Context, id string, upd BookingUpdate) (*Booking, string, error) {
	if g.healthy.Load() {
		b, err := g.durable.UpdateBooking(ctx, id, upd)
		if err == nil || errors.Is(err, ErrNotFound) {
			return b, BackendSQLite, err
		}
		g.markUnhealthy("update-booking", err)
	}
	b, err := g.fallback.UpdateBooking(ctx, id, upd)
	return b, BackendFile, err
}

// SearchBookings runs a criteria search on the active backend.
func (g *Gateway) SearchBookings(ctx context.Context, c SearchCriteria) ([]*Booking, string, error) {
	if g.healthy.Load() {
		bs, err := g.durable.SearchBookings(ctx, c)
		if err == nil {
			return bs, BackendSQLite, nil
		}
		g.markUnhealthy("search-bookings", err)
	}
	bs, err := g.fallback.SearchBookings(ctx, c)
	return bs, BackendFile, err
}

// SaveUserPreferences upserts a preference blob on the active backend.
func (g *Gateway) SaveUserPreferences(ctx context.Context, userID string, prefs map[string]any) (string, error) {
	if g.healthy.Load() {
		if err := g.durable.SaveUserPreferences(ctx, userID, prefs); err == nil {
			return BackendSQLite, nil
		} else {
			g.markUnhealthy("save-preferences", err)
		}
	}
	return BackendFile, g.fallback.SaveUserPreferences(ctx, userID, prefs)
}

// GetUserPreferences reads a preference blob from the active backend.
func (g *Gateway) GetUserPreferences(ctx context.Context, userID string) (map[string]any, string, error) {
	if g.healthy.Load() {
		prefs, err := g.durable.GetUserPreferences(ctx, userID)
		if err == nil || errors.Is(err, ErrNotFound) {
			return prefs, BackendSQLite, err
		}
		g.markUnhealthy("get-preferences", err)
	}
	prefs, err := g.fallback.GetUserPreferences(ctx, userID)
	return prefs, BackendFile, err
}

// SaveAlert records an emergency alert on the active backend.
func (g *Gateway) SaveAlert(ctx context.Context, a *EmergencyAlert) (string, error) {
	if g.healthy.Load() {
		if err := g.durable.SaveAlert(ctx, a); err == nil {
			return BackendSQLite, nil
		} else {
			g.markUnhealthy("save-alert", err)
		}
	}
	return BackendFile, g.fallback.SaveAlert(ctx, a)
}

// GetAlert retrieves an alert from the active backend.
func (g *Gateway) GetAlert(ctx context.Context, id string) (*EmergencyAlert, string, error) {
	if g.healthy.Load() {
		a, err := g.durable.GetAlert(ctx, id)
		if err == nil || errors.Is(err, ErrNotFound) {
			return a, BackendSQLite, err
		}
		g.markUnhealthy("get-alert", err)
	}
	a, err := g.fallback.GetAlert(ctx, id)
	return a, BackendFile, err
}

// ListActiveAlerts lists unresolved alerts from the active backend.
func (g *Gateway) ListActiveAlerts(ctx context.Context) ([]*EmergencyAlert, string, error) {
	if g.healthy.Load() {
		as, err := g.durable.ListActiveAlerts(ctx)
		if err == nil {
			return as, BackendSQLite, nil
		}
		g.markUnhealthy("list-alerts", err)
	}
	as, err := g.fallback.ListActiveAlerts(ctx)
	return as, BackendFile, err
}

// UpdateAlertStatus transitions an alert on the active backend.
func (g *Gateway) UpdateAlertStatus(ctx context.Context, id, status string) (*EmergencyAlert, string, error) {
	if g.healthy.Load() {
		a, err := g.durable.UpdateAlertStatus(ctx, id, status)
		if err == nil || errors.Is(err, ErrNotFound) {
			return a, BackendSQLite, err
		}
		g.markUnhealthy("update-alert", err)
	}
	a, err := g.fallback.UpdateAlertStatus(ctx, id, status)
	return a, BackendFile, err
}

// BackupTo streams a snapshot of the fallback store's state.
func (g *Gateway) BackupTo(w io.Writer) error {
	return g.fallback.Backup(w)
}

// RestoreFrom replaces the fallback store's state from a snapshot.
func (g *Gateway) RestoreFrom(r io.Reader) error {
	return g.fallback.Restore(r)
}

// Close stops the health loop and closes both backends.
func (g *Gateway) Close() error {
	close(g.done)
	err := g.durable.Close()
	if ferr := g.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
