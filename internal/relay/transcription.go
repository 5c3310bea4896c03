package relay

import (
	"context"
	"log/slog"

	"github.com/smartcall/gateway/internal/metrics"
	"github.com/smartcall/gateway/internal/realtime"
	"github.com/smartcall/gateway/internal/store"
)

// Result is one recognition result from a speech source, interim or final.
type Result struct {
	Text       string        `json:"text"`
	Confidence *float64      `json:"confidence,omitempty"`
	IsFinal    bool          `json:"is_final"`
	Speaker    store.Speaker `json:"speaker,omitempty"`
}

// InterimTranscript is the ephemeral broadcast payload for a non-final
// result. It is never persisted; each one supersedes the previous for
// display purposes.
type InterimTranscript struct {
	Text       string        `json:"text"`
	Speaker    store.Speaker `json:"speaker"`
	Confidence *float64      `json:"confidence,omitempty"`
}

// LogStore appends final transcription results to the conversation log.
type LogStore interface {
	AppendLogEntry(ctx context.Context, e *store.LogEntry) error
}

// Broadcaster publishes events on a session's realtime channel.
type Broadcaster interface {
	Publish(sessionID, event string, payload any)
}

// Relay routes recognition results: final results become conversation log
// entries, interim results become ephemeral broadcasts. It is stateless
// pass-through per event; it never tracks or diffs interim text.
type Relay struct {
	store LogStore
	hub   Broadcaster
}

// New creates a transcription relay.
func New(logStore LogStore, hub Broadcaster) *Relay {
	return &Relay{store: logStore, hub: hub}
}

// Handle processes one recognition result. A missing speaker defaults to
// customer; operator speech must be attributed by the capturing client.
// A failed log insert is logged and dropped; the utterance is not re-queued.
func (r *Relay) Handle(ctx context.Context, sessionID string, res Result) {
	speaker := res.Speaker
	if speaker == "" {
		speaker = store.SpeakerCustomer
	}

	if !res.IsFinal {
		metrics.TranscriptsInterim.Inc()
		r.hub.Publish(sessionID, realtime.EventInterim, InterimTranscript{
			Text:       res.Text,
			Speaker:    speaker,
			Confidence: res.Confidence,
		})
		return
	}

	entry := &store.LogEntry{
		SessionID:  sessionID,
		Speaker:    speaker,
		Text:       res.Text,
		Confidence: res.Confidence,
	}
	if err := r.store.AppendLogEntry(ctx, entry); err != nil {
		slog.Error("append conversation log", "session_id", sessionID, "error", err)
		metrics.Errors.WithLabelValues("relay", "store").Inc()
		return
	}

	metrics.TranscriptsFinal.Inc()
	r.hub.Publish(sessionID, realtime.EventConversationLog, entry)
}
