// Package claude implements detect.Detector on the Anthropic Messages API with
// a forced tool_use block.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/cropsense/internal/detect"
)

const DefaultModel = "claude-opus-4-6"

const backendName = "claude"

// maxTokens leaves room for a handful of detections with 2-3 sentence remedies.
const maxTokens = 2048

type ClaudeDetector struct {
	apiKey string
	model  string
	client *anthropic.Client
}

// NewClaudeDetector builds a detector. baseURL may be empty to use the public
// API; tests point it at an httptest server.
func NewClaudeDetector(apiKey, model, baseURL string, timeout time.Duration) *ClaudeDetector {
	if model == "" {
		model = DefaultModel
	}
	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeDetector{
		apiKey: apiKey,
		model:  model,
		client: anthropic.NewClient(apiKey, opts...),
	}
}

func (d *ClaudeDetector) Configured() bool {
	return d.apiKey != ""
}

// buildRequest constructs the Messages API payload for a detection request.
func buildRequest(model string, img *detect.Image) anthropic.MessagesRequest {
	return anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    detect.SystemPrompt,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				{
					Type: anthropic.MessagesContentTypeImage,
					Source: &anthropic.MessageContentSource{
						Type:      anthropic.MessagesContentSourceTypeBase64,
						MediaType: normaliseMIME(img.MediaType),
						Data:      img.Data,
					},
				},
				anthropic.NewTextMessageContent(detect.UserPrompt),
			},
		}},
		Tools: []anthropic.ToolDefinition{{
			Name:        detect.ToolName,
			Description: detect.ToolDescription,
			InputSchema: detect.ToolParameters(),
		}},
		ToolChoice: &anthropic.ToolChoice{Type: "tool", Name: detect.ToolName},
	}
}

func (d *ClaudeDetector) Detect(ctx context.Context, imageDataURL string) ([]detect.Detection, error) {
	img, err := detect.ParseDataURL(imageDataURL)
	if err != nil {
		return nil, err
	}
	if d.apiKey == "" {
		return nil, &detect.NotConfiguredError{Key: "CLAUDE_API_KEY"}
	}

	resp, err := d.client.CreateMessages(ctx, buildRequest(d.model, img))
	if err != nil {
		return nil, mapError(err)
	}

	var text string
	for _, blk := range resp.Content {
		switch blk.Type {
		case anthropic.MessagesContentTypeToolUse:
			if blk.MessageContentToolUse != nil && blk.MessageContentToolUse.Name == detect.ToolName {
				return detect.ParseToolArguments(string(blk.MessageContentToolUse.Input))
			}
		case anthropic.MessagesContentTypeText:
			if text == "" && blk.Text != nil {
				text = *blk.Text
			}
		}
	}
	return detect.ParseContent(text)
}

// statusByErrorType recovers the HTTP status from the error type in an API
// error body.
var statusByErrorType = map[string]int{
	"invalid_request_error": http.StatusBadRequest,
	"authentication_error":  http.StatusUnauthorized,
	"billing_error":         http.StatusPaymentRequired,
	"permission_error":      http.StatusForbidden,
	"not_found_error":       http.StatusNotFound,
	"request_too_large":     http.StatusRequestEntityTooLarge,
	"rate_limit_error":      http.StatusTooManyRequests,
	"api_error":             http.StatusInternalServerError,
	"overloaded_error":      529,
}

// mapError turns SDK errors into detect.UpstreamError so the status mapping
// is the same for every backend.
func mapError(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return &detect.UpstreamError{Backend: backendName, StatusCode: reqErr.StatusCode, Body: err.Error()}
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		status, ok := statusByErrorType[string(apiErr.Type)]
		if !ok {
			status = http.StatusBadGateway
		}
		return &detect.UpstreamError{Backend: backendName, StatusCode: status, Body: err.Error()}
	}

	return fmt.Errorf("failed to call claude: %w", err)
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// The Anthropic API accepts only jpeg, png, gif, and webp. Unknown types are
// coerced to jpeg as the most universally supported lossy fallback.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
