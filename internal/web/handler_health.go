package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vbonduro/cropsense/internal/service"
)

const (
	healthCheckTimeout = 800 * time.Millisecond
	failureWindow      = time.Hour
)

type healthCheck struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Err      string `json:"err,omitempty"`
}

type healthStatus struct {
	OK bool `json:"ok"`
}

type healthResponse struct {
	Status                 healthStatus           `json:"status"`
	UptimeSec              int                    `json:"uptime_sec"`
	Backend                string                 `json:"backend"`
	Checks                 map[string]healthCheck `json:"checks"`
	RecentUpstreamFailures *int                   `json:"recent_upstream_failures,omitempty"`
	Time                   string                 `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	detector := healthCheck{OK: s.service.DetectorConfigured()}
	if !detector.OK {
		detector.Err = "credentials not configured"
	}

	diagnostics := healthCheck{OK: true}
	if err := s.service.CheckDiagnostics(ctx); err != nil {
		if errors.Is(err, service.ErrDiagnosticsDisabled) {
			diagnostics.Disabled = true
		} else {
			diagnostics.OK = false
			diagnostics.Err = "ping: " + err.Error()
		}
	}

	resp := healthResponse{
		Status:    healthStatus{OK: detector.OK && diagnostics.OK},
		UptimeSec: int(time.Since(s.started).Seconds()),
		Backend:   s.service.Backend(),
		Checks: map[string]healthCheck{
			"detector":    detector,
			"diagnostics": diagnostics,
		},
		Time: time.Now().Format(time.RFC3339),
	}
	if diagnostics.OK && !diagnostics.Disabled {
		if n, err := s.service.RecentFailures(ctx, failureWindow); err == nil {
			resp.RecentUpstreamFailures = &n
		} else {
			s.logger.Warn("failed to count recent failures", "error", err)
		}
	}

	status := http.StatusOK
	if !resp.Status.OK {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
