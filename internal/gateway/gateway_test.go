// ABOUTME: HTTP surface tests for the gateway using httptest
// ABOUTME: Exercises health, booking CRUD, voice, preferences and admin snapshots

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatri-ai/yatri-gateway/internal/config"
	"github.com/yatri-ai/yatri-gateway/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	cfg := &config.Config{Environment: "test"}
	cfg.Server.HTTPAddr = "localhost:0"
	cfg.Database.Path = ":memory:"
	cfg.Database.FallbackDir = t.TempDir()
	cfg.Database.HealthInterval = time.Hour
	cfg.Providers.Timeout = 5 * time.Second
	cfg.Conversation.HistoryCap = 20

	g, err := New(cfg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(g.httpServer.Handler)
	t.Cleanup(func() {
		srv.Close()
		g.storage.Close()
	})
	return g, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "test", body["environment"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotEmpty(t, body["uptime"])
}

func TestReady(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func validBookingBody(userID string) map[string]any {
	return map[string]any{
		"userId": userID,
		"booking": map[string]any{
			"type":     store.TypeBus,
			"from":     "Delhi",
			"to":       "Mumbai",
			"date":     "2026-09-15",
			"time":     "08:30",
			"seatType": "sleeper",
			"passengers": []map[string]any{
				{"name": "Asha", "age": 34},
			},
		},
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/book", validBookingBody("user-1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	assert.Equal(t, store.BackendSQLite, created["backend"])

	b := created["booking"].(map[string]any)
	id := b["bookingId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, store.StatusConfirmed, b["status"])
	assert.NotEmpty(t, b["confirmationCode"])
	assert.Positive(t, b["price"].(float64))

	resp, err := http.Get(srv.URL + "/api/book/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody(t, resp)
	assert.Equal(t, id, fetched["booking"].(map[string]any)["bookingId"])
}

func TestCreateBookingValidation(t *testing.T) {
	_, srv := newTestServer(t)

	body := validBookingBody("user-1")
	body["booking"].(map[string]any)["seatType"] = ""
	resp := postJSON(t, srv.URL+"/api/book", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "seatType")
}

func TestGetBookingNotFound(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/book/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateBookingOwnership(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/book", validBookingBody("user-1"))
	id := decodeBody(t, resp)["booking"].(map[string]any)["bookingId"].(string)

	// Non-owner is rejected.
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/book/"+id, map[string]any{
		"userId":  "intruder",
		"updates": map[string]any{"seatType": "seater"},
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Owner succeeds.
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/book/"+id, map[string]any{
		"userId":  "user-1",
		"updates": map[string]any{"seatType": "seater"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody(t, resp)
	assert.Equal(t, "seater", updated["booking"].(map[string]any)["seatType"])
}

func TestCancelBookingIdempotent(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/book", validBookingBody("user-1"))
	id := decodeBody(t, resp)["booking"].(map[string]any)["bookingId"].(string)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/book/"+id, map[string]any{
		"userId": "user-1",
		"reason": "change of plans",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeBody(t, resp)
	b := first["booking"].(map[string]any)
	assert.Equal(t, store.StatusCancelled, b["status"])
	assert.Equal(t, "change of plans", b["cancellationReason"])

	// Second cancel is a no-op success.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/book/"+id, map[string]any{"userId": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeBody(t, resp)
	assert.Equal(t, true, second["alreadyCancelled"])
}

func TestUserBookingsAndStats(t *testing.T) {
	_, srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/api/book", validBookingBody("user-1"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}
	resp := postJSON(t, srv.URL+"/api/book", validBookingBody("user-2"))
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/book/user/user-1")
	require.NoError(t, err)
	list := decodeBody(t, resp)
	assert.Equal(t, float64(3), list["count"])

	resp, err = http.Get(srv.URL + "/api/book/user/user-1?limit=2")
	require.NoError(t, err)
	assert.Equal(t, float64(2), decodeBody(t, resp)["count"])

	resp, err = http.Get(srv.URL + "/api/book/stats/user-1")
	require.NoError(t, err)
	stats := decodeBody(t, resp)["stats"].(map[string]any)
	assert.Equal(t, float64(3), stats["total"])
	assert.Positive(t, stats["totalValue"].(float64))
	assert.Len(t, stats["recent"], 3)
}

func TestSearchBookings(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/book", validBookingBody("user-1"))
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/book/search", map[string]any{
		"from": "delhi",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody(t, resp)
	assert.Equal(t, float64(1), result["count"])
}

func TestSimulateBooking(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/book/simulate", map[string]any{
		"type": store.TypeBus, "from": "Delhi", "to": "Mumbai",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	options := body["options"].([]any)
	assert.GreaterOrEqual(t, len(options), 3)
	assert.LessOrEqual(t, len(options), 5)

	var prev float64
	for _, o := range options {
		price := o.(map[string]any)["price"].(float64)
		assert.Positive(t, price)
		assert.GreaterOrEqual(t, price, prev)
		prev = price
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/book/preferences/user-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/book/preferences/user-1", map[string]any{
		"language": "hi", "seat": "window",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/book/preferences/user-1")
	require.NoError(t, err)
	prefs := decodeBody(t, resp)["preferences"].(map[string]any)
	assert.Equal(t, "hi", prefs["language"])
}

func TestVoiceCommand(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/voice/command", map[string]any{
		"userId": "user-1", "command": "get_weather",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["recognized"])

	resp = postJSON(t, srv.URL+"/api/voice/command", map[string]any{
		"userId": "user-1", "command": "make_coffee",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, false, body["recognized"])
	assert.Contains(t, body["reply"], "book_ticket")
}

func TestWakeWordEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/voice/wake-word", map[string]any{
		"userId": "user-1", "wakeWord": "hey yatri",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeBody(t, resp)["reply"])
}

func TestEmergencyAlwaysHighPriority(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/voice/emergency", map[string]any{
		"userId":        "user-1",
		"emergencyType": "medical",
		"location":      "Platform 4, Pune Junction",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	alert := decodeBody(t, resp)["alert"].(map[string]any)
	assert.Equal(t, "high", alert["priority"])
	assert.Equal(t, store.AlertActive, alert["status"])
	id := alert["alertId"].(string)

	// Resolve it.
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/voice/emergency/"+id, map[string]any{
		"status": store.AlertResolved,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolved := decodeBody(t, resp)["alert"].(map[string]any)
	assert.Equal(t, store.AlertResolved, resolved["status"])
	assert.NotEmpty(t, resolved["resolvedAt"])
}

func TestEmergencyUnknownTypeNormalized(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/voice/emergency", map[string]any{
		"userId": "user-1", "emergencyType": "tiger",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	alert := decodeBody(t, resp)["alert"].(map[string]any)
	assert.Equal(t, store.AlertGeneral, alert["type"])
}

func TestChatValidation(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{"userId": "user-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "message")

	resp = postJSON(t, srv.URL+"/api/chat", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "userId")
}

func TestChatResponseCarriesConversationIdentity(t *testing.T) {
	_, srv := newTestServer(t)

	// A gated low-confidence message answers without touching providers,
	// and the body still threads the conversation.
	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{
		"userId": "user-1", "message": "mumble", "confidence": 0.3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["requiresRepeat"])
	assert.Equal(t, "default", body["conversationId"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	require.NoError(t, err)

	resp = postJSON(t, srv.URL+"/api/chat", map[string]any{
		"userId": "user-1", "message": "mumble", "confidence": 0.3,
		"conversationId": "trip-planning",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trip-planning", decodeBody(t, resp)["conversationId"])
}

func TestSimulateBookingRejectsUnknownType(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/book/simulate", map[string]any{
		"type": "rocket", "from": "Delhi", "to": "Mumbai",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "type")
}

func TestChatHistoryEmptyAndClear(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/chat/history/user-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), decodeBody(t, resp)["count"])

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/chat/history/user-1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["cleared"])
}

func TestBackupRestoreEndpoints(t *testing.T) {
	_, srv := newTestServer(t)

	// Force a write into the fallback by restoring a snapshot with data.
	snapshot := fmt.Sprintf(`{
		"createdAt": %q,
		"bookings": {"bk-1": {"bookingId": "bk-1", "userId": "user-1", "type": "bus",
			"from": "Delhi", "to": "Mumbai", "passengers": [], "price": 100,
			"durationMinutes": 60, "status": "confirmed",
			"createdAt": %q, "updatedAt": %q}},
		"preferences": {},
		"alerts": {}
	}`, time.Now().Format(time.RFC3339), time.Now().Format(time.RFC3339), time.Now().Format(time.RFC3339))

	resp, err := http.Post(srv.URL+"/api/admin/restore", "application/json", bytes.NewReader([]byte(snapshot)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/admin/backup")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "bk-1")
}

func TestRestoreRejectsGarbage(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/admin/restore", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
