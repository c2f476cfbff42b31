package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/cropsense/internal/detect"
)

const testImage = "data:image/jpeg;base64,/9j/4AAQSkZJRgABAQ=="

func messageResponse(content ...map[string]any) map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       DefaultModel,
		"content":     content,
		"stop_reason": "tool_use",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 10},
	}
}

func newServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClaudeDetect_ToolUse(t *testing.T) {
	server := newServer(t, http.StatusOK, messageResponse(map[string]any{
		"type": "tool_use",
		"id":   "toolu_1",
		"name": detect.ToolName,
		"input": map[string]any{
			"detections": []map[string]any{{
				"name": "Aphids", "confidence": 76, "severity": "medium",
				"description": "Sap-sucking insects.", "remedy": "Neem oil spray.",
			}},
		},
	}))

	d := NewClaudeDetector("sk-test", "", server.URL, 0)
	got, err := d.Detect(context.Background(), testImage)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Aphids", got[0].Name)
	assert.Equal(t, detect.SeverityMedium, got[0].Severity)
}

func TestClaudeDetect_TextFallback(t *testing.T) {
	server := newServer(t, http.StatusOK, messageResponse(map[string]any{
		"type": "text",
		"text": "```json\n[]\n```",
	}))

	d := NewClaudeDetector("sk-test", "", server.URL, 0)
	got, err := d.Detect(context.Background(), testImage)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClaudeDetect_RateLimited(t *testing.T) {
	server := newServer(t, http.StatusTooManyRequests, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "rate_limit_error", "message": "Number of requests has exceeded your rate limit"},
	})

	d := NewClaudeDetector("sk-test", "", server.URL, 0)
	_, err := d.Detect(context.Background(), testImage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, detect.ErrRateLimited), "got %v", err)
}

func TestClaudeDetect_APIError(t *testing.T) {
	server := newServer(t, http.StatusInternalServerError, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "api_error", "message": "internal"},
	})

	d := NewClaudeDetector("sk-test", "", server.URL, 0)
	_, err := d.Detect(context.Background(), testImage)
	require.Error(t, err)

	var upErr *detect.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.NotErrorIs(t, err, detect.ErrRateLimited)
	assert.NotErrorIs(t, err, detect.ErrCreditsExhausted)
}

func TestClaudeDetect_BillingError(t *testing.T) {
	server := newServer(t, http.StatusPaymentRequired, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "billing_error", "message": "credit balance is too low"},
	})

	d := NewClaudeDetector("sk-test", "", server.URL, 0)
	_, err := d.Detect(context.Background(), testImage)
	assert.ErrorIs(t, err, detect.ErrCreditsExhausted)
}

func TestClaudeDetect_MissingAPIKey(t *testing.T) {
	d := NewClaudeDetector("", "", "http://127.0.0.1:1", 0)
	_, err := d.Detect(context.Background(), testImage)
	assert.ErrorIs(t, err, detect.ErrNotConfigured)
}

func TestClaudeDetect_InvalidImage(t *testing.T) {
	d := NewClaudeDetector("sk-test", "", "http://127.0.0.1:1", 0)
	_, err := d.Detect(context.Background(), "data:text/plain,hello")
	assert.ErrorIs(t, err, detect.ErrInvalidImage)
}

func TestBuildRequestForcesTool(t *testing.T) {
	req := buildRequest(DefaultModel, &detect.Image{MediaType: "image/heic", Data: "AAAA"})
	require.NotNil(t, req.ToolChoice)
	assert.Equal(t, "tool", req.ToolChoice.Type)
	assert.Equal(t, detect.ToolName, req.ToolChoice.Name)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, detect.ToolName, req.Tools[0].Name)
	require.Len(t, req.Messages, 1)
	require.NotNil(t, req.Messages[0].Content[0].Source)
	assert.Equal(t, "image/jpeg", req.Messages[0].Content[0].Source.MediaType)
}

func TestNormaliseMIME(t *testing.T) {
	assert.Equal(t, "image/png", normaliseMIME("image/png"))
	assert.Equal(t, "image/webp", normaliseMIME("image/webp"))
	assert.Equal(t, "image/jpeg", normaliseMIME("image/bmp"))
}
