// ABOUTME: Keyword-based intent classification for voice transcripts
// ABOUTME: Pure function over ordered rules; first matching rule wins

package intent

import "strings"

// Intent is the advisory tag attached to a voice reply. It never mutates
// booking or alert records by itself.
type Intent string

const (
	Emergency     Intent = "emergency"
	Booking       Intent = "booking"
	Reminder      Intent = "reminder"
	Communication Intent = "communication"
	Information   Intent = "information"
	General       Intent = "general"
)

// rule pairs an intent with the phrases that indicate it. Rules are
// evaluated in order; emergency outranks everything so that "help, my bus
// crashed" is never tagged as a booking.
type rule struct {
	intent   Intent
	keywords []string
}

var rules = []rule{
	{Emergency, []string{
		"emergency", "help me", "urgent", "ambulance", "accident",
		"danger", "hurt", "injured", "fire", "police",
	}},
	{Booking, []string{
		"book", "ticket", "reserve", "reservation", "seat",
		"flight", "train", "bus", "travel to",
	}},
	{Reminder, []string{
		"remind", "reminder", "alarm", "wake me", "don't forget",
	}},
	{Communication, []string{
		"call", "message", "text", "email", "contact", "phone",
	}},
	{Information, []string{
		"weather", "news", "what is", "what's", "tell me about",
		"how far", "how long", "timing", "schedule", "status of",
	}},
}

// Classify tags an utterance with an intent. Matching is case-insensitive
// substring search; utterances matching no rule are General.
func Classify(utterance string) Intent {
	lowered := strings.ToLower(utterance)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				return r.intent
			}
		}
	}
	return General
}

// Advisory reports whether the intent should trigger a secondary
// UI-facing event alongside the voice reply.
func Advisory(i Intent) bool {
	return i == Booking || i == Emergency
}
