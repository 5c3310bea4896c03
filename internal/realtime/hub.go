package realtime

import (
	"log/slog"
	"sync"

	"github.com/smartcall/gateway/internal/metrics"
)

// Event is one message on a session channel: either a change-feed event for a
// persisted row (session_update, conversation_log, ai_suggestion) or an
// ephemeral broadcast (interim_transcription, webrtc_*).
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload,omitempty"`
}

// Event types carried on session channels.
const (
	EventSessionUpdate   = "session_update"
	EventConversationLog = "conversation_log"
	EventAISuggestion    = "ai_suggestion"
	EventInterim         = "interim_transcription"
	EventWebRTCOffer     = "webrtc_offer"
	EventWebRTCAnswer    = "webrtc_answer"
	EventWebRTCICE       = "webrtc_ice"
	EventMediaError      = "media_error"
)

// subscriber channel capacity. Publishers never block: a subscriber that
// falls this far behind starts losing events and must re-read state.
const subBuffer = 64

// Hub fans events out to all subscribers of a session channel.
// Change-feed events are published synchronously after each store commit, so
// per-session feed order matches commit order; broadcasts carry no ordering
// guarantee relative to the feed.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers a new subscriber on the session's channel.
func (h *Hub) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, subBuffer)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[chan Event]struct{}{}
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeClients.Inc()
	return ch
}

// Unsubscribe removes a subscriber. The channel is not closed so a racing
// Publish can never send on a closed channel; the subscriber simply stops
// reading.
func (h *Hub) Unsubscribe(sessionID string, ch chan Event) {
	h.mu.Lock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
	metrics.RealtimeClients.Dec()
}

// Publish sends an event to every subscriber of the session's channel.
// Sends are non-blocking: a full subscriber buffer drops the event rather
// than stalling the publisher.
func (h *Hub) Publish(sessionID, event string, payload any) {
	ev := Event{Type: event, SessionID: sessionID, Payload: payload}
	metrics.RealtimeEvents.WithLabelValues(event).Inc()

	h.mu.Lock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("slow realtime subscriber, dropping event", "session_id", sessionID, "event", event)
			metrics.Errors.WithLabelValues("realtime", "dropped").Inc()
		}
	}
	h.mu.Unlock()
}
