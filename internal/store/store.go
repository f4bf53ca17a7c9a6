// ABOUTME: Store interface and data types for yatri-gateway persistence
// ABOUTME: Defines Booking, EmergencyAlert, preference types and the Store contract

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrNotOwner is returned when a caller tries to mutate another user's booking
var ErrNotOwner = errors.New("not the booking owner")

// Transport types for a booking.
const (
	TypeBus    = "bus"
	TypeTrain  = "train"
	TypeFlight = "flight"
)

// Booking status values.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Passenger age classes, derived from age.
const (
	AgeClassChild  = "child"
	AgeClassAdult  = "adult"
	AgeClassSenior = "senior"
)

// Passenger is one traveller on a booking.
type Passenger struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	AgeClass string `json:"ageClass,omitempty"`
}

// Booking represents a travel reservation. Bookings are never hard-deleted;
// cancellation is a status transition that retains its reason and timestamp.
type Booking struct {
	ID                 string      `json:"bookingId"`
	UserID             string      `json:"userId"`
	Type               string      `json:"type"`
	From               string      `json:"from"`
	To                 string      `json:"to"`
	Date               string      `json:"date,omitempty"`          // bus/train, YYYY-MM-DD
	Time               string      `json:"time,omitempty"`          // bus/train, HH:MM
	DepartureDate      string      `json:"departureDate,omitempty"` // flight, YYYY-MM-DD
	ReturnDate         string      `json:"returnDate,omitempty"`
	Passengers         []Passenger `json:"passengers"`
	TravelClass        string      `json:"class,omitempty"`    // train/flight
	SeatType           string      `json:"seatType,omitempty"` // bus
	Price              float64     `json:"price"`
	DurationMinutes    int         `json:"durationMinutes"`
	Status             string      `json:"status"`
	ConfirmationCode   string      `json:"confirmationCode,omitempty"`
	PaymentStatus      string      `json:"paymentStatus,omitempty"`
	CancellationReason string      `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time  `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// TravelDate returns the calendar date the booking travels on: Date for
// bus/train, DepartureDate for flights.
func (b *Booking) TravelDate() string {
	if b.Date != "" {
		return b.Date
	}
	return b.DepartureDate
}

// Emergency alert types.
const (
	AlertMedical = "medical"
	AlertFire    = "fire"
	AlertPolice  = "police"
	AlertGeneral = "general"
)

// Emergency alert status values.
const (
	AlertActive    = "active"
	AlertResolved  = "resolved"
	AlertCancelled = "cancelled"
)

// NormalizeAlertType maps an arbitrary caller-supplied type onto a known
// alert type, defaulting to general.
func NormalizeAlertType(t string) string {
	switch t {
	case AlertMedical, AlertFire, AlertPolice:
		return t
	default:
		return AlertGeneral
	}
}

// EmergencyAlert records a user's emergency signal. Alerts are never
// deleted; resolution is an explicit status transition.
type EmergencyAlert struct {
	ID         string     `json:"alertId"`
	UserID     string     `json:"userId"`
	Type       string     `json:"type"`
	Location   string     `json:"location,omitempty"`
	Details    string     `json:"details,omitempty"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	Responders []string   `json:"responders,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// BookingFilter narrows GetUserBookings results.
type BookingFilter struct {
	Status string
	Type   string
	Limit  int
}

// SearchCriteria drives SearchBookings. From/To are matched as
// case-insensitive substrings; Type, Status and UserID are exact; the
// date fields are inclusive calendar-date bounds against the booking's
// travel date.
type SearchCriteria struct {
	UserID   string
	Type     string
	Status   string
	From     string
	To       string
	Date     string
	DateFrom string
	DateTo   string
}

// BookingUpdate is a partial update merged into a stored booking.
// The booking id and owner are immutable; keys naming them are ignored.
type BookingUpdate map[string]any

// Store defines the persistence contract implemented by both the durable
// SQLite backend and the flat-file fallback backend.
type Store interface {
	// Bookings
	SaveBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (*Booking, error)
	GetUserBookings(ctx context.Context, userID string, f BookingFilter) ([]*Booking, error)
	UpdateBooking(ctx context.Context, id string, upd BookingUpdate) (*Booking, error)
	SearchBookings(ctx context.Context, c SearchCriteria) ([]*Booking, error)

	// Preferences (last-write-wins, keyed by user)
	SaveUserPreferences(ctx context.Context, userID string, prefs map[string]any) error
	GetUserPreferences(ctx context.Context, userID string) (map[string]any, error)

	// Emergency alerts
	SaveAlert(ctx context.Context, a *EmergencyAlert) error
	GetAlert(ctx context.Context, id string) (*EmergencyAlert, error)
	ListActiveAlerts(ctx context.Context) ([]*EmergencyAlert, error)
	UpdateAlertStatus(ctx context.Context, id, status string) (*EmergencyAlert, error)

	// Ping reports backend connectivity.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// applyUpdate merges a partial update into b. Identity fields and
// server-owned timestamps are never overwritten.
func applyUpdate(b *Booking, upd BookingUpdate) {
	for k, v := range upd {
		switch k {
		case "from":
			if s, ok := v.(string); ok {
				b.From = s
			}
		case "to":
			if s, ok := v.(string); ok {
				b.To = s
			}
		case "date":
			if s, ok := v.(string); ok {
				b.Date = s
			}
		case "time":
			if s, ok := v.(string); ok {
				b.Time = s
			}
		case "departureDate":
			if s, ok := v.(string); ok {
				b.DepartureDate = s
			}
		case "returnDate":
			if s, ok := v.(string); ok {
				b.ReturnDate = s
			}
		case "class":
			if s, ok := v.(string); ok {
				b.TravelClass = s
			}
		case "seatType":
			if s, ok := v.(string); ok {
				b.SeatType = s
			}
		case "status":
			if s, ok := v.(string); ok {
				b.Status = s
			}
		case "paymentStatus":
			if s, ok := v.(string); ok {
				b.PaymentStatus = s
			}
		case "cancellationReason":
			if s, ok := v.(string); ok {
				b.CancellationReason = s
			}
		case "cancelledAt":
			if ts, ok := v.(time.Time); ok {
				b.CancelledAt = &ts
			}
		case "price":
			switch n := v.(type) {
			case float64:
				b.Price = n
			case int:
				b.Price = float64(n)
			}
		case "durationMinutes":
			switch n := v.(type) {
			case float64:
				b.DurationMinutes = int(n)
			case int:
				b.DurationMinutes = n
			}
		case "passengers":
			if ps, ok := v.([]Passenger); ok {
				b.Passengers = ps
			}
		}
	}
	b.UpdatedAt = time.Now()
}

// matchesCriteria reports whether a booking satisfies every populated
// criterion. Used by both backends so search semantics stay identical.
func matchesCriteria(b *Booking, c SearchCriteria) bool {
	if c.UserID != "" && b.UserID != c.UserID {
		return false
	}
	if c.Type != "" && b.Type != c.Type {
		return false
	}
	if c.Status != "" && b.Status != c.Status {
		return false
	}
	if c.From != "" && !containsFold(b.From, c.From) {
		return false
	}
	if c.To != "" && !containsFold(b.To, c.To) {
		return false
	}
	date := b.TravelDate()
	if c.Date != "" && date != c.Date {
		return false
	}
	// Dates are YYYY-MM-DD strings, so lexicographic comparison is
	// calendar comparison.
	if c.DateFrom != "" && date < c.DateFrom {
		return false
	}
	if c.DateTo != "" && date > c.DateTo {
		return false
	}
	return true
}

// containsFold is a case-insensitive substring check.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
