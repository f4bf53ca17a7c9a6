// ABOUTME: HTTP booking handlers: create, read, update, cancel, search and stats
// ABOUTME: Enforces booking ownership and reports which storage backend served each call

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/yatri-ai/yatri-gateway/internal/booking"
	"github.com/yatri-ai/yatri-gateway/internal/store"
)

// CreateBookingRequest is the JSON request body for POST /api/book.
type CreateBookingRequest struct {
	UserID  string        `json:"userId"`
	Booking store.Booking `json:"booking"`
}

// handleCreateBooking validates and persists a new booking.
func (g *Gateway) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b := req.Booking
	if req.UserID != "" {
		b.UserID = req.UserID
	}
	booking.Prepare(&b)
	if err := booking.Validate(&b); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	backend, err := g.storage.SaveBooking(r.Context(), &b)
	if err != nil {
		g.logger.Error("booking save failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "could not save booking")
		return
	}

	g.sendJSON(w, http.StatusCreated, map[string]any{
		"booking": &b,
		"backend": backend,
	})
}

// handleGetBooking fetches one booking by id.
func (g *Gateway) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, backend, err := g.storage.GetBooking(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not load booking")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"booking": b, "backend": backend})
}

// handleUserBookings lists a user's bookings with optional status/type
// filters and a limit.
func (g *Gateway) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	q := r.URL.Query()
	filter := store.BookingFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	bookings, backend, err := g.storage.GetUserBookings(r.Context(), userID, filter)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not load bookings")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{
		"userId":   userID,
		"bookings": bookings,
		"count":    len(bookings),
		"backend":  backend,
	})
}

// UpdateBookingRequest is the JSON request body for PUT /api/book/{id}.
type UpdateBookingRequest struct {
	UserID  string              `json:"userId"`
	Updates store.BookingUpdate `json:"updates"`
}

// handleUpdateBooking merges a partial update after an ownership check.
func (g *Gateway) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req UpdateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId and updates are required")
		return
	}

	existing, _, err := g.storage.GetBooking(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not load booking")
		return
	}
	if existing.UserID != req.UserID {
		g.sendJSONError(w, http.StatusForbidden, store.ErrNotOwner.Error())
		return
	}

	updated, backend, err := g.storage.UpdateBooking(r.Context(), id, req.Updates)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not update booking")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"booking": updated, "backend": backend})
}

// CancelBookingRequest is the JSON request body for DELETE /api/book/{id}.
type CancelBookingRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// handleCancelBooking transitions a booking to cancelled. Cancelling an
// already-cancelled booking is a successful no-op.
func (g *Gateway) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req CancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	existing, _, err := g.storage.GetBooking(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not load booking")
		return
	}
	if existing.UserID != req.UserID {
		g.sendJSONError(w, http.StatusForbidden, store.ErrNotOwner.Error())
		return
	}
	if existing.Status == store.StatusCancelled {
		g.sendJSON(w, http.StatusOK, map[string]any{"booking": existing, "alreadyCancelled": true})
		return
	}

	updates := store.BookingUpdate{
		"status":      store.StatusCancelled,
		"cancelledAt": time.Now(),
	}
	if req.Reason != "" {
		updates["cancellationReason"] = req.Reason
	}
	cancelled, backend, err := g.storage.UpdateBooking(r.Context(), id, updates)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not cancel booking")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"booking": cancelled, "backend": backend})
}

// handleSearchBookings runs a criteria search.
func (g *Gateway) handleSearchBookings(w http.ResponseWriter, r *http.Request) {
	var criteria store.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	results, backend, err := g.storage.SearchBookings(r.Context(), criteria)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "search failed")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{
		"bookings": results,
		"count":    len(results),
		"backend":  backend,
	})
}

// handleBookingStats aggregates a user's booking history.
func (g *Gateway) handleBookingStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	bookings, backend, err := g.storage.GetUserBookings(r.Context(), userID, store.BookingFilter{})
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not load bookings")
		return
	}

	stats := struct {
		Total      int              `json:"total"`
		ByStatus   map[string]int   `json:"byStatus"`
		ByType     map[string]int   `json:"byType"`
		TotalValue float64          `json:"totalValue"`
		Recent     []*store.Booking `json:"recent"`
	}{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}
	for _, b := range bookings {
		stats.Total++
		stats.ByStatus[b.Status]++
		stats.ByType[b.Type]++
		if b.Status != store.StatusCancelled {
			stats.TotalValue += b.Price
		}
	}
	// Bookings arrive newest-first from the store.
	if len(bookings) > 5 {
		stats.Recent = bookings[:5]
	} else {
		stats.Recent = bookings
	}

	g.sendJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"stats":   stats,
		"backend": backend,
	})
}

// SimulateBookingRequest is the JSON request body for POST /api/book/simulate.
type SimulateBookingRequest struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// handleSimulateBooking fabricates travel options for a route.
func (g *Gateway) handleSimulateBooking(w http.ResponseWriter, r *http.Request) {
	var req SimulateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b := store.Booking{Type: req.Type, From: req.From, To: req.To}
	if err := booking.ValidateRoute(&b); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{
		"type":    req.Type,
		"from":    req.From,
		"to":      req.To,
		"options": booking.Simulate(&b),
	})
}

// handleSavePreferences upserts a user's travel preferences.
func (g *Gateway) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	var prefs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil || len(prefs) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "preferences body is required")
		return
	}

	backend, err := g.storage.SaveUserPreferences(r.Context(), userID, prefs)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not save preferences")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"userId": userID, "backend": backend})
}

// handleGetPreferences reads a user's travel preferences.
func (g *Gateway) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	prefs, backend, err := g.storage.GetUserPreferences(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "no preferences stored")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not load preferences")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{
		"userId":      userID,
		"preferences": prefs,
		"backend":     backend,
	})
}
