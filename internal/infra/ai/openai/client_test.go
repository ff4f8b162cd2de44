package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
}

func TestClient_Analyze(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		MaxTokens      int    `json:"max_tokens"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"risk_level\":\"LOW\"}"}}]}`))
	})

	out, err := c.Analyze(t.Context(), safeguarding.AnalysisRequest{StudentToken: "TOKEN_STUDENT_ABC", Patterns: []string{"BEHAV_DISRUPTIVE_LOW"}})
	require.NoError(t, err)
	assert.Equal(t, `{"risk_level":"LOW"}`, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "TOKEN_STUDENT_ABC")
	assert.Contains(t, got.Messages[1].Content, "BEHAV_DISRUPTIVE_LOW")
}

func TestClient_QuotaExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})
	_, err := c.Analyze(t.Context(), safeguarding.AnalysisRequest{})
	assert.ErrorIs(t, err, safeguarding.ErrQuotaExceeded)
}

func TestClient_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})
	_, err := c.Analyze(t.Context(), safeguarding.AnalysisRequest{})
	assert.Error(t, err)
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("o3-2025-04-16"))
	assert.True(t, isReasoningModel("gpt-5-mini"))
	assert.False(t, isReasoningModel("gpt-4o-mini"))
}
