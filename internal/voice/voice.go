// ABOUTME: Fixed voice command table and wake-word replies
// ABOUTME: Shared by the websocket dispatcher and the HTTP voice handlers

package voice

import (
	"fmt"
	"sort"
	"strings"
)

// Command names accepted by the fixed command endpoint.
const (
	CmdBookTicket     = "book_ticket"
	CmdGetWeather     = "get_weather"
	CmdSetReminder    = "set_reminder"
	CmdEmergencyAlert = "emergency_alert"
	CmdGetNews        = "get_news"
)

// commandReplies maps command names to their canned confirmations.
var commandReplies = map[string]string{
	CmdBookTicket:     "Opening the booking flow. Where would you like to travel?",
	CmdGetWeather:     "Fetching the latest weather for your route.",
	CmdSetReminder:    "Reminder noted. I'll nudge you at the right time.",
	CmdEmergencyAlert: "Emergency alert raised. Stay where you are; help is being notified.",
	CmdGetNews:        "Here are today's travel headlines for your region.",
}

// RunCommand resolves a fixed command name to its reply. Unknown names
// return ok=false and a message listing the valid commands.
func RunCommand(name string) (reply string, ok bool) {
	if r, found := commandReplies[strings.ToLower(strings.TrimSpace(name))]; found {
		return r, true
	}
	return fmt.Sprintf("Unknown command %q. Valid commands: %s.",
		name, strings.Join(CommandNames(), ", ")), false
}

// CommandNames lists the valid command names in stable order.
func CommandNames() []string {
	names := make([]string, 0, len(commandReplies))
	for name := range commandReplies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wakeReplies maps recognized wake words to their acknowledgements.
// Lookup is case-insensitive, exact match first, then prefix.
var wakeReplies = map[string]string{
	"hey yatri":   "Hi! I'm listening. How can I help with your journey?",
	"ok yatri":    "Yes? Ask me anything about your trip.",
	"yatri":       "I'm here. What do you need?",
	"namaste":     "Namaste! Ready to plan your travels.",
	"hello yatri": "Hello! Where are we headed today?",
}

const genericWakeReply = "I'm awake and ready to help with your travel plans."

// WakeWordReply returns the acknowledgement for a detected wake word.
// Unmatched words still get a generic reply; waking up never fails.
func WakeWordReply(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	if r, ok := wakeReplies[w]; ok {
		return r
	}
	// Longest-prefix first keeps the match deterministic.
	keys := make([]string, 0, len(wakeReplies))
	for key := range wakeReplies {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, key := range keys {
		if strings.HasPrefix(w, key) {
			return wakeReplies[key]
		}
	}
	return genericWakeReply
}
