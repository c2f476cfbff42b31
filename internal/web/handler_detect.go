package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/vbonduro/cropsense/internal/detect"
)

// Messages returned to callers. Upstream detail never leaves the server.
const (
	msgNoImage        = "No image provided"
	msgInvalidImage   = "Invalid image data"
	msgInvalidBody    = "Invalid request body"
	msgBodyTooLarge   = "Request body too large"
	msgRateLimited    = "Rate limit exceeded. Please try again in a moment."
	msgNoCredits      = "AI credits exhausted. Please add credits in Settings."
	msgAnalysisFailed = "AI analysis failed"
	msgParseFailed    = "Failed to parse AI response"
	msgUnknown        = "Unknown error"
)

type detectRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type detectResponse struct {
	Detections []detect.Detection `json:"detections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFrom(r.Context())
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer closeWithLog(body, "request body", s.logger)

	var req detectRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: msgBodyTooLarge})
			return
		}
		s.logger.Warn("failed to decode request body", "request_id", reqID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInvalidBody})
		return
	}

	// Once issued, the upstream call finishes even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	detections, err := s.service.Detect(ctx, reqID, req.ImageBase64)
	if err != nil {
		status, msg := errorStatus(err)
		s.writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	s.writeJSON(w, http.StatusOK, detectResponse{Detections: detections})
}

// errorStatus maps a detection error to the status code and message shown to
// the caller.
func errorStatus(err error) (int, string) {
	var cfgErr *detect.NotConfiguredError
	var upErr *detect.UpstreamError
	var urlErr *url.Error
	var netErr net.Error

	switch {
	case errors.Is(err, detect.ErrNoImage):
		return http.StatusBadRequest, msgNoImage
	case errors.Is(err, detect.ErrInvalidImage):
		return http.StatusInternalServerError, msgInvalidImage
	case errors.Is(err, detect.ErrRateLimited):
		return http.StatusTooManyRequests, msgRateLimited
	case errors.Is(err, detect.ErrCreditsExhausted):
		return http.StatusPaymentRequired, msgNoCredits
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, cfgErr.Error()
	case errors.Is(err, detect.ErrNotConfigured):
		return http.StatusInternalServerError, detect.ErrNotConfigured.Error()
	case errors.Is(err, detect.ErrMalformedResponse):
		return http.StatusInternalServerError, msgParseFailed
	case errors.As(err, &upErr),
		errors.As(err, &urlErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, msgAnalysisFailed
	default:
		return http.StatusInternalServerError, msgUnknown
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
