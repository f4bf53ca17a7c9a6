// ABOUTME: Booking domain logic: validation, pricing, duration and option simulation
// ABOUTME: Pure functions over store.Booking so both HTTP and dispatch paths share rules

package booking

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yatri-ai/yatri-gateway/internal/store"
)

// ValidationError describes a rejected booking request. Field names the
// offending input so clients can highlight it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid booking: %s %s", e.Field, e.Reason)
}

// Base fares and speeds per transport type. Prices are in rupees per
// pseudo-kilometre, speeds in km/h.
var (
	baseFare = map[string]float64{
		store.TypeBus:    1.8,
		store.TypeTrain:  1.2,
		store.TypeFlight: 5.5,
	}
	minFare = map[string]float64{
		store.TypeBus:    150,
		store.TypeTrain:  120,
		store.TypeFlight: 1800,
	}
	speed = map[string]float64{
		store.TypeBus:    45,
		store.TypeTrain:  70,
		store.TypeFlight: 550,
	}
)

// classMultiplier scales price by travel class or seat type.
var classMultiplier = map[string]float64{
	"sleeper":   1.0,
	"seater":    0.8,
	"semi":      0.9,
	"economy":   1.0,
	"business":  2.6,
	"first":     3.4,
	"ac":        1.5,
	"non-ac":    1.0,
	"2a":        1.8,
	"3a":        1.4,
	"sl":        1.0,
	"general":   0.7,
	"executive": 2.2,
}

// Validate checks a booking request against the per-type required fields.
// It returns a *ValidationError on the first failure.
func Validate(b *store.Booking) error {
	if b.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if b.From == "" {
		return &ValidationError{Field: "from", Reason: "is required"}
	}
	if b.To == "" {
		return &ValidationError{Field: "to", Reason: "is required"}
	}
	if strings.EqualFold(b.From, b.To) {
		return &ValidationError{Field: "to", Reason: "must differ from origin"}
	}
	if len(b.Passengers) == 0 {
		return &ValidationError{Field: "passengers", Reason: "at least one is required"}
	}
	for i, p := range b.Passengers {
		if p.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("passengers[%d].name", i), Reason: "is required"}
		}
		if p.Age <= 0 || p.Age > 120 {
			return &ValidationError{Field: fmt.Sprintf("passengers[%d].age", i), Reason: "must be between 1 and 120"}
		}
	}

	switch b.Type {
	case store.TypeBus:
		if b.Date == "" {
			return &ValidationError{Field: "date", Reason: "is required for bus bookings"}
		}
		if b.Time == "" {
			return &ValidationError{Field: "time", Reason: "is required for bus bookings"}
		}
		if b.SeatType == "" {
			return &ValidationError{Field: "seatType", Reason: "is required for bus bookings"}
		}
	case store.TypeTrain:
		if b.Date == "" {
			return &ValidationError{Field: "date", Reason: "is required for train bookings"}
		}
		if b.Time == "" {
			return &ValidationError{Field: "time", Reason: "is required for train bookings"}
		}
		if b.TravelClass == "" {
			return &ValidationError{Field: "class", Reason: "is required for train bookings"}
		}
	case store.TypeFlight:
		if b.DepartureDate == "" {
			return &ValidationError{Field: "departureDate", Reason: "is required for flight bookings"}
		}
		if b.TravelClass == "" {
			return &ValidationError{Field: "class", Reason: "is required for flight bookings"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be bus, train or flight"}
	}

	if d := b.TravelDate(); !validDate(d) {
		return &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return nil
}

// ValidateRoute checks the subset of fields a fare quote needs: a known
// transport type and a distinct origin and destination. Simulation goes
// through this before any option is priced.
func ValidateRoute(b *store.Booking) error {
	switch b.Type {
	case store.TypeBus, store.TypeTrain, store.TypeFlight:
	default:
		return &ValidationError{Field: "type", Reason: "must be bus, train or flight"}
	}
	if b.From == "" {
		return &ValidationError{Field: "from", Reason: "is required"}
	}
	if b.To == "" {
		return &ValidationError{Field: "to", Reason: "is required"}
	}
	if strings.EqualFold(b.From, b.To) {
		return &ValidationError{Field: "to", Reason: "must differ from origin"}
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// pseudoDistance derives a stable distance in km from the route name pair.
// There is no real geo lookup; the same route always yields the same
// distance so repeated quotes agree.
func pseudoDistance(from, to string) float64 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(from))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(to))))
	// 120..1720 km.
	return 120 + float64(h.Sum32()%1600)
}

// EstimatePrice quotes a total fare for a booking: per-km base fare times
// class multiplier times passenger count, floored at the type minimum.
func EstimatePrice(b *store.Booking) float64 {
	dist := pseudoDistance(b.From, b.To)
	fare := dist * baseFare[b.Type]

	class := strings.ToLower(b.TravelClass)
	if class == "" {
		class = strings.ToLower(b.SeatType)
	}
	if m, ok := classMultiplier[class]; ok {
		fare *= m
	}
	if fare < minFare[b.Type] {
		fare = minFare[b.Type]
	}

	n := len(b.Passengers)
	if n == 0 {
		n = 1
	}
	total := fare * float64(n)
	// Round to whole rupees.
	return float64(int(total + 0.5))
}

// EstimateDuration returns the journey time in minutes for a booking's
// route and transport type. Flights get a fixed hour of ground overhead.
func EstimateDuration(b *store.Booking) int {
	dist := pseudoDistance(b.From, b.To)
	minutes := dist / speed[b.Type] * 60
	if b.Type == store.TypeFlight {
		minutes += 60
	}
	return int(minutes)
}

// DeriveAgeClass buckets a passenger age: under 12 is a child, 60 and
// over is a senior.
func DeriveAgeClass(age int) string {
	switch {
	case age < 12:
		return store.AgeClassChild
	case age >= 60:
		return store.AgeClassSenior
	default:
		return store.AgeClassAdult
	}
}

// ConfirmationCode mints a short human-readable booking reference.
func ConfirmationCode() string {
	id := strings.ToUpper(uuid.NewString())
	return "YTR-" + id[:8]
}

// Prepare fills the server-owned fields of an inbound booking: identity,
// confirmation, estimates and passenger age classes. Caller-supplied
// price and duration are kept when present.
func Prepare(b *store.Booking) {
	now := time.Now()
	b.ID = uuid.NewString()
	b.Status = store.StatusConfirmed
	b.ConfirmationCode = ConfirmationCode()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.PaymentStatus == "" {
		b.PaymentStatus = "paid"
	}
	if b.Price == 0 {
		b.Price = EstimatePrice(b)
	}
	if b.DurationMinutes == 0 {
		b.DurationMinutes = EstimateDuration(b)
	}
	for i := range b.Passengers {
		b.Passengers[i].AgeClass = DeriveAgeClass(b.Passengers[i].Age)
	}
}

// Option is one simulated travel choice for a route.
type Option struct {
	OperatorName    string  `json:"operator"`
	DepartureTime   string  `json:"departureTime"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"durationMinutes"`
	SeatsAvailable  int     `json:"seatsAvailable"`
	Rating          float64 `json:"rating"`
}

var operators = map[string][]string{
	store.TypeBus:    {"Yatri Express", "Hillside Travels", "RedLine Coaches", "Sunrise Roadways", "Metro Motors"},
	store.TypeTrain:  {"Rajdhani Express", "Shatabdi Express", "Duronto Express", "Garib Rath", "Jan Shatabdi"},
	store.TypeFlight: {"IndiGo", "Air India", "Vistara", "SpiceJet", "Akasa Air"},
}

var departureSlots = []string{"05:30", "07:15", "09:00", "11:45", "14:20", "17:00", "19:30", "21:15", "23:00"}

// Simulate fabricates between three and five travel options for a route,
// varied around the route's base price and duration, sorted cheapest
// first. Results are random per call; only the underlying route price is
// stable.
func Simulate(b *store.Booking) []Option {
	basePrice := EstimatePrice(b)
	baseDur := EstimateDuration(b)
	names := operators[b.Type]
	if names == nil {
		names = operators[store.TypeBus]
	}

	n := 3 + rand.Intn(3) // 3..5
	opts := make([]Option, 0, n)
	for i := 0; i < n; i++ {
		// +/- 25% price spread, +/- 15% duration spread.
		priceJitter := 0.75 + rand.Float64()*0.5
		durJitter := 0.85 + rand.Float64()*0.3
		opts = append(opts, Option{
			OperatorName:    names[rand.Intn(len(names))],
			DepartureTime:   departureSlots[rand.Intn(len(departureSlots))],
			Price:           float64(int(basePrice*priceJitter + 0.5)),
			DurationMinutes: int(float64(baseDur) * durJitter),
			SeatsAvailable:  1 + rand.Intn(40),
			Rating:          3.0 + float64(rand.Intn(21))/10.0, // 3.0..5.0
		})
	}

	sort.Slice(opts, func(i, j int) bool { return opts[i].Price < opts[j].Price })
	return opts
}
