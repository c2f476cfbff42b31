package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/cropsense/internal/detect"
	"github.com/vbonduro/cropsense/internal/diagstore"
)

// failureRepository is the subset of diagstore.Store that DetectionService requires.
type failureRepository interface {
	Record(ctx context.Context, f diagstore.Failure) error
	CountSince(ctx context.Context, since time.Time) (int, error)
	Ping(ctx context.Context) error
}

// ErrDiagnosticsDisabled is returned by the diagnostics accessors when no
// store is configured.
var ErrDiagnosticsDisabled = errors.New("diagnostics store is disabled")

type DetectionService struct {
	detector detect.Detector
	backend  string
	failures failureRepository
	logger   *slog.Logger
}

// NewDetectionService wires a detector to the failure store. failures may be
// nil, in which case failures are only logged.
func NewDetectionService(detector detect.Detector, backend string, failures failureRepository, logger *slog.Logger) *DetectionService {
	return &DetectionService{
		detector: detector,
		backend:  backend,
		failures: failures,
		logger:   logger,
	}
}

// Backend names the configured upstream.
func (s *DetectionService) Backend() string {
	return s.backend
}

// DetectorConfigured reports whether the detector has its credentials.
// Detectors that cannot tell are assumed configured.
func (s *DetectionService) DetectorConfigured() bool {
	if c, ok := s.detector.(detect.ConfigChecker); ok {
		return c.Configured()
	}
	return true
}

// Detect relays one image to the upstream detector. Validation errors are
// returned untouched; upstream and parse failures are logged and recorded
// before being returned.
func (s *DetectionService) Detect(ctx context.Context, requestID, imageDataURL string) ([]detect.Detection, error) {
	if strings.TrimSpace(imageDataURL) == "" {
		return nil, detect.ErrNoImage
	}

	start := time.Now()
	detections, err := s.detector.Detect(ctx, imageDataURL)
	if err != nil {
		if errors.Is(err, detect.ErrNoImage) || errors.Is(err, detect.ErrInvalidImage) {
			return nil, err
		}
		s.recordFailure(ctx, requestID, err)
		return nil, err
	}
	if detections == nil {
		detections = []detect.Detection{}
	}

	sum := detect.Summarize(detections)
	s.logger.Info("detection complete",
		"request_id", requestID,
		"backend", s.backend,
		"detections", len(detections),
		"issues", sum.Issues,
		"healthy", sum.Healthy,
		"not_plant", sum.NotPlant,
		"max_risk", string(sum.MaxRisk),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return detections, nil
}

func (s *DetectionService) recordFailure(ctx context.Context, requestID string, err error) {
	f := diagstore.Failure{
		RequestID: requestID,
		Backend:   s.backend,
		Kind:      diagstore.KindTransport,
		Body:      err.Error(),
	}

	var upErr *detect.UpstreamError
	var parseErr *detect.ParseError
	switch {
	case errors.As(err, &upErr):
		f.Kind = diagstore.KindUpstream
		f.StatusCode = upErr.StatusCode
		f.Body = upErr.Body
	case errors.As(err, &parseErr):
		f.Kind = diagstore.KindParse
		f.Body = parseErr.Raw
	case errors.Is(err, detect.ErrNotConfigured):
		f.Kind = diagstore.KindConfig
	}

	s.logger.Error("detection failed",
		"request_id", requestID,
		"backend", s.backend,
		"kind", f.Kind,
		"status", f.StatusCode,
		"error", err,
	)

	if s.failures == nil {
		return
	}
	// Recording must outlive a cancelled request.
	if rerr := s.failures.Record(context.WithoutCancel(ctx), f); rerr != nil {
		s.logger.Error("failed to record upstream failure", "request_id", requestID, "error", rerr)
	}
}

// RecentFailures counts failures recorded within window.
func (s *DetectionService) RecentFailures(ctx context.Context, window time.Duration) (int, error) {
	if s.failures == nil {
		return 0, ErrDiagnosticsDisabled
	}
	n, err := s.failures.CountSince(ctx, time.Now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return n, nil
}

// CheckDiagnostics pings the failure store.
func (s *DetectionService) CheckDiagnostics(ctx context.Context) error {
	if s.failures == nil {
		return ErrDiagnosticsDisabled
	}
	return s.failures.Ping(ctx)
}
