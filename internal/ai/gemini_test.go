package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiCompleteSendsPromptAndParsesText(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiGenerateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "応答です"}}}},
			},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.URL, "gemini-1.5-flash", "text-embedding-004", 2)
	text, err := c.Complete(context.Background(), "system", "user prompt")
	require.NoError(t, err)

	assert.Equal(t, "応答です", text)
	assert.Equal(t, "/models/gemini-1.5-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.NotNil(t, gotReq.SystemInstruction)
	assert.Equal(t, "system", gotReq.SystemInstruction.Parts[0].Text)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "user prompt", gotReq.Contents[0].Parts[0].Text)
}

func TestGeminiCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.URL, "gemini-1.5-flash", "text-embedding-004", 2)
	_, err := c.Complete(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGeminiEmbedParsesValues(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.URL, "gemini-1.5-flash", "text-embedding-004", 2)
	vec, err := c.Embed(context.Background(), "質問テキスト")
	require.NoError(t, err)

	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "/models/text-embedding-004:embedContent", gotPath)
}

func TestGeminiUnconfigured(t *testing.T) {
	c := NewGeminiClient("", "", "gemini-1.5-flash", "text-embedding-004", 2)
	assert.False(t, c.Configured())

	_, err := c.Complete(context.Background(), "", "prompt")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
