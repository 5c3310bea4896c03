package suggest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/smartcall/gateway/internal/ai"
	"github.com/smartcall/gateway/internal/metrics"
	"github.com/smartcall/gateway/internal/prompts"
	"github.com/smartcall/gateway/internal/realtime"
	"github.com/smartcall/gateway/internal/store"
)

// DefaultRecentLimit is how many suggestions Recent returns by default.
const DefaultRecentLimit = 10

// Request asks for operator response suggestions for one session.
type Request struct {
	SessionID           string          `json:"sessionId"`
	ConversationHistory string          `json:"conversationHistory"`
	CurrentContext      string          `json:"currentContext"`
	CustomerInfo        json.RawMessage `json:"customerInfo,omitempty"`
	Engine              string          `json:"engine,omitempty"`
}

// RelevantInfo is one knowledge item the model surfaced alongside suggestions.
type RelevantInfo struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Response is the suggestion set shown to the operator. Confidence 0.3 marks
// the canned fallback set.
type Response struct {
	Suggestions  []string       `json:"suggestions"`
	RelevantInfo []RelevantInfo `json:"relevantInfo"`
	Alerts       []string       `json:"alerts"`
	Confidence   float64        `json:"confidence"`
}

// Analysis summarizes a conversation's sentiment, topics, and urgency.
type Analysis struct {
	Sentiment string   `json:"sentiment"`
	Topics    []string `json:"topics"`
	Urgency   string   `json:"urgency"`
	Summary   string   `json:"summary"`
}

// SuggestionStore persists suggestions and their used flag.
type SuggestionStore interface {
	InsertSuggestion(ctx context.Context, sg *store.Suggestion) error
	RecentSuggestions(ctx context.Context, sessionID string, limit int) ([]store.Suggestion, error)
	MarkSuggestionUsed(ctx context.Context, id string) error
}

// Broadcaster publishes events on a session's realtime channel.
type Broadcaster interface {
	Publish(sessionID, event string, payload any)
}

// Service generates operator suggestions and conversation analyses. Model
// failures never surface to the caller: the operator always gets a usable,
// possibly canned, suggestion set.
type Service struct {
	router *ai.Router[ai.CompletionClient]
	store  SuggestionStore
	hub    Broadcaster
}

// NewService creates a suggestion service routing to the registered
// completion backends.
func NewService(router *ai.Router[ai.CompletionClient], st SuggestionStore, hub Broadcaster) *Service {
	return &Service{router: router, store: st, hub: hub}
}

// Request generates suggestions for a session. Any model or parse failure
// degrades to the fallback set; persistence failures are logged and swallowed
// so a storage hiccup never blocks the operator's view.
func (s *Service) Request(ctx context.Context, req Request) Response {
	start := time.Now()
	defer func() {
		metrics.SuggestionDuration.Observe(time.Since(start).Seconds())
	}()

	backend, err := s.router.Route(req.Engine)
	if err != nil {
		slog.Error("no suggestion backend", "engine", req.Engine, "error", err)
		return s.fallback(ctx, req)
	}

	customerInfo := ""
	if len(req.CustomerInfo) > 0 {
		customerInfo = string(req.CustomerInfo)
	}
	prompt := prompts.Suggestions(req.ConversationHistory, req.CurrentContext, customerInfo)

	text, err := backend.Complete(ctx, "", prompt)
	if err != nil {
		slog.Error("suggestion completion", "session_id", req.SessionID, "error", err)
		metrics.Errors.WithLabelValues("suggest", "completion").Inc()
		return s.fallback(ctx, req)
	}

	resp, ok := parseSuggestions(text)
	if !ok {
		slog.Warn("unparseable suggestion response", "session_id", req.SessionID)
		metrics.Errors.WithLabelValues("suggest", "parse").Inc()
		return s.fallback(ctx, req)
	}

	s.persist(ctx, req, resp)
	return resp
}

// fallback returns the canned suggestion set. It is persisted like a real
// one so the operator's history stays complete.
func (s *Service) fallback(ctx context.Context, req Request) Response {
	metrics.SuggestionFallbacks.Inc()
	resp := Response{
		Suggestions: []string{
			"ありがとうございます。確認いたします。",
			"少々お待ちください。お調べいたします。",
			"詳しくご説明いたします。",
		},
		RelevantInfo: []RelevantInfo{},
		Alerts:       []string{},
		Confidence:   0.3,
	}
	s.persist(ctx, req, resp)
	return resp
}

func (s *Service) persist(ctx context.Context, req Request, resp Response) {
	if req.SessionID == "" {
		return
	}
	for _, text := range resp.Suggestions {
		sg := &store.Suggestion{
			SessionID:  req.SessionID,
			Suggestion: text,
			Context:    req.CurrentContext,
		}
		if err := s.store.InsertSuggestion(ctx, sg); err != nil {
			slog.Error("persist suggestion", "session_id", req.SessionID, "error", err)
			metrics.Errors.WithLabelValues("suggest", "store").Inc()
			continue
		}
		s.hub.Publish(req.SessionID, realtime.EventAISuggestion, sg)
	}
}

// parseSuggestions leniently parses model output: code fences are stripped,
// missing fields default, and a missing confidence becomes 0.5.
func parseSuggestions(text string) (Response, bool) {
	cleaned := stripCodeFences(text)

	var parsed struct {
		Suggestions  []string       `json:"suggestions"`
		RelevantInfo []RelevantInfo `json:"relevantInfo"`
		Alerts       []string       `json:"alerts"`
		Confidence   *float64       `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Response{}, false
	}

	resp := Response{
		Suggestions:  parsed.Suggestions,
		RelevantInfo: parsed.RelevantInfo,
		Alerts:       parsed.Alerts,
		Confidence:   0.5,
	}
	if parsed.Confidence != nil {
		resp.Confidence = *parsed.Confidence
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	if resp.RelevantInfo == nil {
		resp.RelevantInfo = []RelevantInfo{}
	}
	if resp.Alerts == nil {
		resp.Alerts = []string{}
	}
	return resp, true
}

func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// Recent returns the latest suggestions for a session, newest first.
// limit <= 0 means the default of 10.
func (s *Service) Recent(ctx context.Context, sessionID string, limit int) ([]store.Suggestion, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.store.RecentSuggestions(ctx, sessionID, limit)
}

// MarkUsed flags a suggestion as adopted by the operator. Idempotent.
func (s *Service) MarkUsed(ctx context.Context, id string) error {
	return s.store.MarkSuggestionUsed(ctx, id)
}

// Analyze extracts sentiment, topics, urgency, and a summary from the
// conversation. Failures degrade to a neutral analysis, never an error.
func (s *Service) Analyze(ctx context.Context, engine, conversationHistory string) Analysis {
	neutral := Analysis{
		Sentiment: "neutral",
		Topics:    []string{},
		Urgency:   "medium",
		Summary:   "分析できませんでした",
	}

	backend, err := s.router.Route(engine)
	if err != nil {
		slog.Error("no analysis backend", "engine", engine, "error", err)
		return neutral
	}

	text, err := backend.Complete(ctx, "", prompts.Analysis(conversationHistory))
	if err != nil {
		slog.Error("conversation analysis", "error", err)
		metrics.Errors.WithLabelValues("suggest", "analysis").Inc()
		return neutral
	}

	var parsed Analysis
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &parsed); err != nil {
		slog.Warn("unparseable analysis response", "error", err)
		return neutral
	}
	if parsed.Topics == nil {
		parsed.Topics = []string{}
	}
	return parsed
}
