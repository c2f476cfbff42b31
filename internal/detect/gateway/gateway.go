// Package gateway implements detect.Detector against an OpenAI-compatible
// chat completions endpoint using a forced function call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/cropsense/internal/detect"
)

const (
	DefaultURL   = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultModel = "google/gemini-3-flash-preview"
)

const backendName = "gateway"

// maxErrorBody caps how much of a failed response is read for diagnostics.
const maxErrorBody = 64 * 1024

// request types mirror the chat completions API structure.
type request struct {
	Model      string     `json:"model"`
	Messages   []message  `json:"messages"`
	Tools      []tool     `json:"tools"`
	ToolChoice toolChoice `json:"tool_choice"`
}

type message struct {
	Role string `json:"role"`
	// Content is a string for system turns and []part for user turns.
	Content any `json:"content"`
}

type part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type tool struct {
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolChoice struct {
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type response struct {
	Choices []struct {
		Message *struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type GatewayDetector struct {
	apiKey  string
	model   string
	client  *http.Client
	baseURL string
}

// NewGatewayDetector returns a detector for the chat completions endpoint at
// url. A zero timeout leaves the transport without a deadline.
func NewGatewayDetector(url, apiKey, model string, timeout time.Duration) *GatewayDetector {
	if url == "" {
		url = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &GatewayDetector{
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		baseURL: url,
	}
}

// Configured reports whether an API key is set.
func (d *GatewayDetector) Configured() bool {
	return d.apiKey != ""
}

func buildRequest(model, imageDataURL string) request {
	return request{
		Model: model,
		Messages: []message{
			{Role: "system", Content: detect.SystemPrompt},
			{Role: "user", Content: []part{
				{Type: "text", Text: detect.UserPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL}},
			}},
		},
		Tools: []tool{{
			Type: "function",
			Function: function{
				Name:        detect.ToolName,
				Description: detect.ToolDescription,
				Parameters:  detect.ToolParameters(),
			},
		}},
		ToolChoice: toolChoice{Type: "function", Function: function{Name: detect.ToolName}},
	}
}

func (d *GatewayDetector) Detect(ctx context.Context, imageDataURL string) ([]detect.Detection, error) {
	if imageDataURL == "" {
		return nil, detect.ErrNoImage
	}
	if d.apiKey == "" {
		return nil, &detect.NotConfiguredError{Key: "AI_GATEWAY_API_KEY"}
	}

	payload, err := json.Marshal(buildRequest(d.model, imageDataURL))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gateway: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close gateway response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &detect.UpstreamError{Backend: backendName, StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var respBody response
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, &detect.ParseError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return parseResponse(&respBody)
}

// parseResponse prefers the forced tool call and falls back to message text
// for providers that answer in prose. A reply with no message at all is
// treated like empty text: no detections.
func parseResponse(r *response) ([]detect.Detection, error) {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return detect.ParseContent("")
	}
	msg := r.Choices[0].Message

	for _, call := range msg.ToolCalls {
		if call.Function.Arguments != "" {
			return detect.ParseToolArguments(call.Function.Arguments)
		}
	}

	var content string
	if msg.Content != nil {
		content = *msg.Content
	}
	return detect.ParseContent(content)
}
