package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartcall/gateway/internal/ai"
	"github.com/smartcall/gateway/internal/kb"
	"github.com/smartcall/gateway/internal/session"
	"github.com/smartcall/gateway/internal/store"
	"github.com/smartcall/gateway/internal/suggest"
)

type deps struct {
	cfg       config
	store     *store.Store
	sessions  *session.Service
	suggest   *suggest.Service
	kb        *kb.Service
	speech    *ai.SpeechClient
	gemini    *ai.GeminiClient
	wsHandler http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("GET /ws/session/{id}", d.wsHandler)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions", d.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", d.handleSessionGet)
	mux.HandleFunc("POST /api/sessions/{id}/accept", d.handleSessionAccept)
	mux.HandleFunc("POST /api/sessions/{id}/reject", d.handleSessionReject)
	mux.HandleFunc("POST /api/sessions/{id}/end", d.handleSessionEnd)
	mux.HandleFunc("GET /api/sessions/{id}/logs", d.handleSessionLogs)

	mux.HandleFunc("POST /api/ai/suggestions", d.handleSuggestions)
	mux.HandleFunc("GET /api/ai/suggestions", d.handleRecentSuggestions)
	mux.HandleFunc("POST /api/ai/suggestions/{id}/used", d.handleSuggestionUsed)
	mux.HandleFunc("POST /api/ai/analysis", d.handleAnalysis)
	mux.HandleFunc("POST /api/ai/embedding", d.handleEmbedding)

	mux.HandleFunc("POST /api/speech/transcribe", d.handleTranscribe)
	mux.HandleFunc("PUT /api/speech/transcribe", d.handleTranscribeStream)

	mux.HandleFunc("POST /api/kb", d.handleKnowledgeAdd)
	mux.HandleFunc("GET /api/kb/search", d.handleKnowledgeSearch)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends an error response; the underlying error detail is exposed
// only in development mode.
func (d deps) writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]any{"error": msg}
	if err != nil && d.cfg.devMode() {
		body["details"] = err.Error()
	}
	writeJSON(w, status, body)
}

func (d deps) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var info session.CustomerInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	sess, err := d.sessions.Initiate(r.Context(), info)
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "failed to create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (d deps) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := d.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		d.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (d deps) handleSessionAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorID string `json:"operatorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OperatorID == "" {
		d.writeError(w, http.StatusBadRequest, "Operator ID is required", nil)
		return
	}
	sess, err := d.sessions.Accept(r.Context(), r.PathValue("id"), req.OperatorID)
	if err != nil {
		d.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (d deps) handleSessionReject(w http.ResponseWriter, r *http.Request) {
	sess, err := d.sessions.Reject(r.Context(), r.PathValue("id"))
	if err != nil {
		d.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (d deps) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := d.sessions.End(r.Context(), r.PathValue("id"))
	if err != nil {
		d.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (d deps) handleSessionLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := d.store.ListLogEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "failed to list conversation logs", err)
		return
	}
	if entries == nil {
		entries = []store.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (d deps) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		d.writeError(w, http.StatusNotFound, "session not found", nil)
		return
	}
	d.writeError(w, http.StatusInternalServerError, "session operation failed", err)
}

func (d deps) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SessionID == "" {
		d.writeError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}
	resp := d.suggest.Request(r.Context(), req)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": resp})
}

func (d deps) handleRecentSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		d.writeError(w, http.StatusBadRequest, "Session ID is required", nil)
		return
	}
	limit := queryInt(r, "limit", suggest.DefaultRecentLimit)
	suggestions, err := d.suggest.Recent(r.Context(), sessionID, limit)
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "failed to get suggestions", err)
		return
	}
	if suggestions == nil {
		suggestions = []store.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": suggestions})
}

func (d deps) handleSuggestionUsed(w http.ResponseWriter, r *http.Request) {
	err := d.suggest.MarkUsed(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		d.writeError(w, http.StatusNotFound, "suggestion not found", nil)
		return
	}
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "failed to mark suggestion used", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (d deps) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID           string `json:"sessionId"`
		ConversationHistory string `json:"conversationHistory"`
		Engine              string `json:"engine,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SessionID == "" || req.ConversationHistory == "" {
		d.writeError(w, http.StatusBadRequest, "Session ID and conversation history are required", nil)
		return
	}
	analysis := d.suggest.Analyze(r.Context(), req.Engine, req.ConversationHistory)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": analysis})
}

func (d deps) handleEmbedding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Text == "" {
		d.writeError(w, http.StatusBadRequest, "Text is required", nil)
		return
	}
	if !d.gemini.Configured() {
		d.writeError(w, http.StatusInternalServerError, "Gemini API key not configured", nil)
		return
	}
	embedding, err := d.gemini.Embed(r.Context(), req.Text)
	if err != nil {
		slog.Error("embedding generation", "error", err)
		d.writeError(w, http.StatusInternalServerError, "Failed to generate embedding", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "embedding": embedding})
}

func (d deps) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !d.speech.Configured() {
		d.writeError(w, http.StatusInternalServerError, "Google Speech API not configured", nil)
		return
	}
	var req struct {
		Audio  string             `json:"audio"`
		Config ai.RecognizeConfig `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Audio == "" {
		d.writeError(w, http.StatusBadRequest, "Audio data is required", nil)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		d.writeError(w, http.StatusBadRequest, "Audio data must be base64", err)
		return
	}
	results, err := d.speech.Recognize(r.Context(), audio, req.Config)
	if err != nil {
		slog.Error("speech transcription", "error", err)
		d.writeError(w, http.StatusInternalServerError, "Transcription failed", err)
		return
	}
	if results == nil {
		results = []ai.Transcript{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

// Streaming recognition goes over the session websocket; this endpoint only
// reports that.
func (d deps) handleTranscribeStream(w http.ResponseWriter, r *http.Request) {
	if !d.speech.Configured() {
		d.writeError(w, http.StatusInternalServerError, "Google Speech API not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "streaming recognition is served over the session websocket",
	})
}

func (d deps) handleKnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Question == "" || req.Answer == "" {
		d.writeError(w, http.StatusBadRequest, "Question and answer are required", nil)
		return
	}
	entry, err := d.kb.Add(r.Context(), req.Category, req.Question, req.Answer)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			d.writeError(w, http.StatusInternalServerError, "Gemini API key not configured", nil)
			return
		}
		d.writeError(w, http.StatusInternalServerError, "failed to add knowledge entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": entry})
}

func (d deps) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		d.writeError(w, http.StatusBadRequest, "Query is required", nil)
		return
	}
	limit := queryInt(r, "limit", kb.DefaultLimit)
	threshold := queryFloat(r, "threshold", kb.DefaultThreshold)
	matches, err := d.kb.Search(r.Context(), query, threshold, limit)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			d.writeError(w, http.StatusInternalServerError, "Gemini API key not configured", nil)
			return
		}
		d.writeError(w, http.StatusInternalServerError, "knowledge search failed", err)
		return
	}
	if matches == nil {
		matches = []kb.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": matches})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
