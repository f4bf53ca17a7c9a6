// ABOUTME: Response orchestrator: confidence gate, escalation, history and provider chain
// ABOUTME: Owns the text and voice conversation stores; all answer paths go through here

package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yatri-ai/yatri-gateway/internal/conversation"
	"github.com/yatri-ai/yatri-gateway/internal/intent"
	"github.com/yatri-ai/yatri-gateway/internal/provider"
)

// ConfidenceThreshold is the minimum transcription confidence accepted
// before a request reaches any provider.
const ConfidenceThreshold = 0.7

// RepeatText is the fixed reply for low-confidence input. It is returned
// before providers run and before history is touched.
const RepeatText = "I didn't quite catch that. Could you please repeat?"

// historyWindow caps how many prior turns are sent to providers. The
// conversation store may retain more; providers see at most this many.
const historyWindow = 10

// escalationPhrases route a message to the reasoner model when present.
var escalationPhrases = []string{
	"analyze", "analyse", "calculate", "step by step", "explain why",
	"compare", "reason", "prove", "derive", "logic", "solve",
	"plan my", "itinerary", "optimize", "optimise",
}

// systemPreamble frames every provider request.
const systemPreamble = "You are Yatri, a travel assistant for journeys across India. " +
	"Help with bookings, schedules, weather and travel questions. " +
	"Be concise and practical. Current time: "

// chainRunner is what the orchestrator needs from the provider chain.
type chainRunner interface {
	Generate(ctx context.Context, req provider.Request) *provider.Reply
	GenerateStream(ctx context.Context, req provider.Request, fn provider.StreamFunc) *provider.Reply
}

// Request is a message heading for the provider chain. Confidence is the
// caller's transcription confidence; callers with no score (typed text)
// must pass 1.
type Request struct {
	UserID         string
	ConversationID string
	Message        string
	Confidence     float64
	// ForceReasoner escalates regardless of the keyword heuristic.
	ForceReasoner bool
}

// Result is an orchestrated answer. When RequiresRepeat is set the reply
// is the fixed repeat prompt and nothing was stored or generated.
type Result struct {
	Reply          *provider.Reply
	RequiresRepeat bool
	Escalated      bool
}

// VoiceResult extends Result with the advisory intent tag.
type VoiceResult struct {
	Result
	Intent intent.Intent
}

// Orchestrator runs the answer pipeline: gate on confidence, build
// context from history, walk the provider chain, then record the
// exchange. Text and voice conversations are stored separately so a
// voice session does not pollute typed chat context.
type Orchestrator struct {
	chain     chainRunner
	webSearch provider.Generator
	text      *conversation.Store
	voice     *conversation.Store
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an orchestrator over the given chain and conversation
// stores. webSearch is the direct handle used by the explicit web-search
// operation; it is usually also the chain's last member.
func New(chain chainRunner, webSearch provider.Generator, text, voice *conversation.Store) *Orchestrator {
	return &Orchestrator{
		chain:     chain,
		webSearch: webSearch,
		text:      text,
		voice:     voice,
		logger:    slog.Default().With("component", "orchestrator"),
		now:       time.Now,
	}
}

// shouldEscalate reports whether the message asks for multi-step work.
func shouldEscalate(message string) bool {
	lowered := strings.ToLower(message)
	for _, p := range escalationPhrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// buildRequest assembles the provider request: system preamble, the last
// few turns of history, and the live message.
func (o *Orchestrator) buildRequest(store *conversation.Store, req Request, escalated bool) provider.Request {
	key := conversation.NewKey(req.UserID, req.ConversationID)
	turns := store.Tail(key, historyWindow)

	history := make([]provider.Turn, 0, len(turns)+1)
	history = append(history, provider.Turn{
		Role:    "system",
		Content: systemPreamble + o.now().Format(time.RFC3339),
	})
	for _, t := range turns {
		history = append(history, provider.Turn{Role: t.Role, Content: t.Content})
	}

	return provider.Request{
		Message:  req.Message,
		History:  history,
		Reasoner: escalated,
	}
}

// record appends the completed exchange unless the chain fell through to
// the apology; a failed answer is not conversation context.
func (o *Orchestrator) record(store *conversation.Store, req Request, reply *provider.Reply, channel string) {
	if reply.Source == provider.SourceError {
		return
	}
	key := conversation.NewKey(req.UserID, req.ConversationID)
	store.Append(key, conversation.Turn{Content: req.Message, Channel: channel},
		conversation.Turn{Content: reply.Text, Channel: channel})
}

// Chat answers a typed message.
func (o *Orchestrator) Chat(ctx context.Context, req Request) *Result {
	if req.Confidence < ConfidenceThreshold {
		return &Result{
			Reply:          &provider.Reply{Text: RepeatText, Source: "gate"},
			RequiresRepeat: true,
		}
	}

	escalated := req.ForceReasoner || shouldEscalate(req.Message)
	reply := o.chain.Generate(ctx, o.buildRequest(o.text, req, escalated))
	o.record(o.text, req, reply, conversation.ChannelText)

	o.logger.Info("chat answered",
		"user", req.UserID, "source", reply.Source, "escalated", escalated)
	return &Result{Reply: reply, Escalated: escalated}
}

// ChatStream answers a typed message with incremental delivery.
func (o *Orchestrator) ChatStream(ctx context.Context, req Request, fn provider.StreamFunc) *Result {
	if req.Confidence < ConfidenceThreshold {
		return &Result{
			Reply:          &provider.Reply{Text: RepeatText, Source: "gate"},
			RequiresRepeat: true,
		}
	}

	escalated := req.ForceReasoner || shouldEscalate(req.Message)
	reply := o.chain.GenerateStream(ctx, o.buildRequest(o.text, req, escalated), fn)
	o.record(o.text, req, reply, conversation.ChannelText)

	return &Result{Reply: reply, Escalated: escalated}
}

// Voice answers a spoken transcript, tagging it with an advisory intent.
// Low-confidence transcripts are gated exactly like chat, before
// classification or generation.
func (o *Orchestrator) Voice(ctx context.Context, req Request) *VoiceResult {
	if req.Confidence < ConfidenceThreshold {
		return &VoiceResult{
			Result: Result{
				Reply:          &provider.Reply{Text: RepeatText, Source: "gate"},
				RequiresRepeat: true,
			},
			Intent: intent.General,
		}
	}

	tag := intent.Classify(req.Message)
	escalated := shouldEscalate(req.Message)
	reply := o.chain.Generate(ctx, o.buildRequest(o.voice, req, escalated))
	o.record(o.voice, req, reply, conversation.ChannelVoice)

	o.logger.Info("voice answered",
		"user", req.UserID, "intent", tag, "source", reply.Source)
	return &VoiceResult{
		Result: Result{Reply: reply, Escalated: escalated},
		Intent: tag,
	}
}

// WebSearch answers directly from the search backend, bypassing the
// language models and the conversation stores.
func (o *Orchestrator) WebSearch(ctx context.Context, query string) *provider.Reply {
	reply, err := o.webSearch.Generate(ctx, provider.Request{Message: query})
	if err != nil {
		o.logger.Warn("web search failed", "error", err)
		return &provider.Reply{Text: provider.ApologyText, Source: provider.SourceError}
	}
	reply.Source = o.webSearch.Name()
	return reply
}

// History returns the stored text-channel conversation for a user.
func (o *Orchestrator) History(userID, conversationID string) []conversation.Turn {
	return o.text.Get(conversation.NewKey(userID, conversationID))
}

// VoiceHistory returns the stored voice-channel conversation for a user.
func (o *Orchestrator) VoiceHistory(userID, conversationID string) []conversation.Turn {
	return o.voice.Get(conversation.NewKey(userID, conversationID))
}

// ClearHistory drops a user's text-channel conversation.
func (o *Orchestrator) ClearHistory(userID, conversationID string) {
	o.text.Clear(conversation.NewKey(userID, conversationID))
}

// ClearVoiceHistory drops a user's voice-channel conversation.
func (o *Orchestrator) ClearVoiceHistory(userID, conversationID string) {
	o.voice.Clear(conversation.NewKey(userID, conversationID))
}
