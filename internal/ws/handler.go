package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smartcall/gateway/internal/metrics"
	"github.com/smartcall/gateway/internal/realtime"
	"github.com/smartcall/gateway/internal/relay"
	"github.com/smartcall/gateway/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionGetter checks that a session exists before the connection upgrades.
type SessionGetter interface {
	Get(ctx context.Context, id string) (*store.Session, error)
}

// Handler serves /ws/session/{id}. Each connection subscribes to the
// session's realtime channel and may push transcription results and WebRTC
// signaling messages up to the gateway.
type Handler struct {
	sessions SessionGetter
	hub      *realtime.Hub
	relay    *relay.Relay
	sem      chan struct{}
}

// NewHandler creates a websocket handler admitting at most maxClients
// concurrent connections.
func NewHandler(sessions SessionGetter, hub *realtime.Hub, rl *relay.Relay, maxClients int) *Handler {
	return &Handler{
		sessions: sessions,
		hub:      hub,
		relay:    rl,
		sem:      make(chan struct{}, maxClients),
	}
}

// clientMessage is what browsers send on the socket. Type selects the
// variant; unused fields stay zero.
type clientMessage struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	IsFinal    bool            `json:"is_final"`
	Confidence *float64        `json:"confidence,omitempty"`
	Speaker    string          `json:"speaker,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ServeHTTP upgrades the connection and relays events both ways until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	role := r.URL.Query().Get("role")
	if role != string(store.SpeakerOperator) {
		role = string(store.SpeakerCustomer)
	}

	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	slog.Info("websocket connected", "session_id", sessionID, "role", role, "conn_id", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sessionID, events)

	go h.writeLoop(ctx, conn, events)
	h.readLoop(ctx, conn, sessionID, role)

	slog.Info("websocket disconnected", "session_id", sessionID, "role", role, "conn_id", connID)
}

// writeLoop is the sole writer on the connection. A write failure ends the
// loop; the read loop notices the closed connection and exits too.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events chan realtime.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID, role string) {
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read", "session_id", sessionID, "error", err)
			}
			return
		}
		h.handleMessage(ctx, sessionID, role, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, sessionID, role string, msg clientMessage) {
	switch msg.Type {
	case "transcription":
		speaker := store.Speaker(msg.Speaker)
		if !store.ValidSpeaker(speaker) {
			speaker = store.Speaker(role)
		}
		h.relay.Handle(ctx, sessionID, relay.Result{
			Text:       msg.Text,
			Confidence: msg.Confidence,
			IsFinal:    msg.IsFinal,
			Speaker:    speaker,
		})
	case realtime.EventWebRTCOffer, realtime.EventWebRTCAnswer, realtime.EventWebRTCICE:
		h.hub.Publish(sessionID, msg.Type, msg.Payload)
	case realtime.EventMediaError:
		// Microphone denial on the client. Surfaced to the peer; no session
		// state changes.
		h.hub.Publish(sessionID, realtime.EventMediaError, msg.Payload)
	default:
		metrics.Errors.WithLabelValues("ws", "unknown_message").Inc()
		slog.Warn("unknown websocket message", "session_id", sessionID, "type", msg.Type)
	}
}
