package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcall/gateway/internal/ai"
	"github.com/smartcall/gateway/internal/kb"
	"github.com/smartcall/gateway/internal/suggest"
)

// testDeps builds deps with unconfigured AI clients and no database; only
// handlers that never reach those backends are exercised here.
func testDeps() deps {
	gemini := ai.NewGeminiClient("", "", "gemini-1.5-flash", "text-embedding-004", 2)
	completions := ai.NewRouter(map[string]ai.CompletionClient{}, "gemini")
	return deps{
		cfg:       config{appEnv: "production"},
		gemini:    gemini,
		speech:    ai.NewSpeechClient("", "", 2),
		suggest:   suggest.NewService(completions, nil, nil),
		kb:        kb.NewService(nil, gemini),
		wsHandler: http.NotFoundHandler(),
	}
}

func doRequest(t *testing.T, d deps, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	registerRoutes(mux, d)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSuggestionsRequireSessionID(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/ai/suggestions", `{"conversationHistory": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Session ID is required", decodeBody(t, rec)["error"])
}

func TestRecentSuggestionsRequireSessionID(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodGet, "/api/ai/suggestions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisRequiresSessionAndHistory(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/ai/analysis", `{"sessionId": "s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Session ID and conversation history are required", decodeBody(t, rec)["error"])
}

func TestEmbeddingRequiresText(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/ai/embedding", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Text is required", decodeBody(t, rec)["error"])
}

func TestEmbeddingUnconfiguredKey(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/ai/embedding", `{"text": "hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Gemini API key not configured", decodeBody(t, rec)["error"])
}

func TestTranscribeUnconfiguredKey(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("audio"))
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/speech/transcribe", `{"audio": "`+audio+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Google Speech API not configured", decodeBody(t, rec)["error"])
}

func TestTranscribeRequiresAudio(t *testing.T) {
	d := testDeps()
	d.speech = ai.NewSpeechClient("test-key", "", 2)
	rec := doRequest(t, d, http.MethodPost, "/api/speech/transcribe", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Audio data is required", decodeBody(t, rec)["error"])
}

func TestTranscribeRejectsBadBase64(t *testing.T) {
	d := testDeps()
	d.speech = ai.NewSpeechClient("test-key", "", 2)
	rec := doRequest(t, d, http.MethodPost, "/api/speech/transcribe", `{"audio": "not base64!!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionAcceptRequiresOperatorID(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/sessions/s1/accept", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Operator ID is required", decodeBody(t, rec)["error"])
}

func TestKnowledgeAddRequiresQuestionAndAnswer(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodPost, "/api/kb", `{"category": "policy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeSearchRequiresQuery(t *testing.T) {
	rec := doRequest(t, testDeps(), http.MethodGet, "/api/kb/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorDetailsHiddenOutsideDevelopment(t *testing.T) {
	d := testDeps()
	d.cfg.appEnv = "production"
	rec := doRequest(t, d, http.MethodPost, "/api/ai/suggestions", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, hasDetails := decodeBody(t, rec)["details"]
	assert.False(t, hasDetails)

	d.cfg.appEnv = "development"
	rec = doRequest(t, d, http.MethodPost, "/api/ai/suggestions", `not json`)
	_, hasDetails = decodeBody(t, rec)["details"]
	assert.True(t, hasDetails)
}
