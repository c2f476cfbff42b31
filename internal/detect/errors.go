package detect

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoImage           = errors.New("no image provided")
	ErrNotConfigured     = errors.New("detection backend is not configured")
	ErrRateLimited       = errors.New("upstream rate limit exceeded")
	ErrCreditsExhausted  = errors.New("upstream credits exhausted")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// maxBodyInError bounds how much upstream body text an error message carries.
const maxBodyInError = 512

// UpstreamError is a non-success status from the AI service. Body is kept for
// operators and must not be shown to end users.
type UpstreamError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Backend, e.StatusCode, body)
}

// Is lets callers test with errors.Is(err, ErrRateLimited) and
// errors.Is(err, ErrCreditsExhausted).
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrCreditsExhausted:
		return e.StatusCode == http.StatusPaymentRequired
	}
	return false
}

// NotConfiguredError names the missing credential. Its message is safe to show
// to callers.
type NotConfiguredError struct {
	Key string
}

func (e *NotConfiguredError) Error() string {
	return e.Key + " is not configured"
}

func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// ParseError wraps ErrMalformedResponse with the text that failed to parse.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedResponse, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedResponse, e.Err}
}
