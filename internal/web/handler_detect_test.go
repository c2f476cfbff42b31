package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/cropsense/internal/detect"
	"github.com/vbonduro/cropsense/internal/diagstore"
	"github.com/vbonduro/cropsense/internal/service"
)

const testImage = "data:image/jpeg;base64,/9j/4AAQSkZJRgABAQ=="

type stubDetector struct {
	result     []detect.Detection
	err        error
	calls      int
	lastImage  string
	ctxErr     error
	configured bool
}

func (s *stubDetector) Detect(ctx context.Context, image string) ([]detect.Detection, error) {
	s.calls++
	s.lastImage = image
	s.ctxErr = ctx.Err()
	return s.result, s.err
}

func (s *stubDetector) Configured() bool { return s.configured }

type stubFailures struct {
	recorded []diagstore.Failure
	pingErr  error
}

func (s *stubFailures) Record(_ context.Context, f diagstore.Failure) error {
	s.recorded = append(s.recorded, f)
	return nil
}

func (s *stubFailures) CountSince(_ context.Context, _ time.Time) (int, error) {
	return len(s.recorded), nil
}

func (s *stubFailures) Ping(_ context.Context) error { return s.pingErr }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(det *stubDetector, failures *stubFailures) *Server {
	var svc *service.DetectionService
	if failures == nil {
		svc = service.NewDetectionService(det, "gateway", nil, discardLogger())
	} else {
		svc = service.NewDetectionService(det, "gateway", failures, discardLogger())
	}
	return NewServer(svc, 0, discardLogger())
}

func postDetect(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pest-detection", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestHandleDetect_Success(t *testing.T) {
	det := &stubDetector{configured: true, result: []detect.Detection{
		{Name: "Leaf Rust", Confidence: 91, Severity: detect.SeverityHigh, Description: "Fungal.", Remedy: "Spray."},
	}}
	srv := newTestServer(det, nil)

	rec := postDetect(t, srv, `{"imageBase64":"`+testImage+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assertCORS(t, rec)

	var resp detectResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, det.result, resp.Detections)
	assert.Equal(t, testImage, det.lastImage)
}

func TestHandleDetect_EmptyDetectionsSerialisesAsArray(t *testing.T) {
	srv := newTestServer(&stubDetector{configured: true}, nil)

	rec := postDetect(t, srv, `{"imageBase64":"`+testImage+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"detections":[]}`, rec.Body.String())
}

func TestHandleDetect_NoImage(t *testing.T) {
	for _, body := range []string{`{}`, `{"imageBase64":""}`, `{"imageBase64":null}`} {
		det := &stubDetector{configured: true}
		srv := newTestServer(det, nil)

		rec := postDetect(t, srv, body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msgNoImage, decodeError(t, rec))
		assert.Zero(t, det.calls, "no upstream call for %s", body)
	}
}

func TestHandleDetect_InvalidBodyIsServerError(t *testing.T) {
	for _, body := range []string{``, `not json`, `{"imageBase64":`, `{"imageBase64":42}`} {
		det := &stubDetector{configured: true}
		srv := newTestServer(det, nil)

		rec := postDetect(t, srv, body)

		assert.Equal(t, http.StatusInternalServerError, rec.Code, body)
		assertCORS(t, rec)
		assert.Equal(t, msgInvalidBody, decodeError(t, rec))
		assert.Zero(t, det.calls)
	}
}

func TestHandleDetect_BodyTooLarge(t *testing.T) {
	det := &stubDetector{configured: true}
	svc := service.NewDetectionService(det, "gateway", nil, discardLogger())
	srv := NewServer(svc, 64, discardLogger())

	rec := postDetect(t, srv, `{"imageBase64":"`+strings.Repeat("A", 256)+`"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, msgBodyTooLarge, decodeError(t, rec))
	assert.Zero(t, det.calls)
}

func TestHandleDetect_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		recorded   bool
	}{
		{
			name:       "rate limited",
			err:        &detect.UpstreamError{Backend: "gateway", StatusCode: http.StatusTooManyRequests, Body: "secret upstream detail"},
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    msgRateLimited,
			recorded:   true,
		},
		{
			name:       "credits exhausted",
			err:        &detect.UpstreamError{Backend: "gateway", StatusCode: http.StatusPaymentRequired, Body: "secret upstream detail"},
			wantStatus: http.StatusPaymentRequired,
			wantMsg:    msgNoCredits,
			recorded:   true,
		},
		{
			name:       "other upstream status",
			err:        &detect.UpstreamError{Backend: "gateway", StatusCode: http.StatusServiceUnavailable, Body: "secret upstream detail"},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgAnalysisFailed,
			recorded:   true,
		},
		{
			name:       "missing credential",
			err:        &detect.NotConfiguredError{Key: "AI_GATEWAY_API_KEY"},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "AI_GATEWAY_API_KEY is not configured",
			recorded:   true,
		},
		{
			name:       "parse failure",
			err:        &detect.ParseError{Raw: "secret upstream detail", Err: errors.New("bad json")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgParseFailed,
			recorded:   true,
		},
		{
			name:       "transport failure",
			err:        fmt.Errorf("failed to call gateway: %w", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgAnalysisFailed,
			recorded:   true,
		},
		{
			name:       "unexpected",
			err:        errors.New("something odd"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgUnknown,
			recorded:   true,
		},
		{
			name:       "invalid image",
			err:        detect.ErrInvalidImage,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgInvalidImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := &stubFailures{}
			srv := newTestServer(&stubDetector{configured: true, err: tt.err}, failures)

			rec := postDetect(t, srv, `{"imageBase64":"`+testImage+`"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assertCORS(t, rec)
			body := rec.Body.String()
			assert.NotContains(t, body, "secret upstream detail")

			var resp errorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			assert.Equal(t, tt.wantMsg, resp.Error)
			assert.Equal(t, tt.recorded, len(failures.recorded) == 1)
		})
	}
}

func TestHandleDetect_UpstreamCallSurvivesClientCancel(t *testing.T) {
	det := &stubDetector{configured: true}
	srv := newTestServer(det, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/pest-detection", strings.NewReader(`{"imageBase64":"`+testImage+`"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, 1, det.calls)
	assert.NoError(t, det.ctxErr)
}

func TestPreflight(t *testing.T) {
	srv := newTestServer(&stubDetector{configured: true}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/pest-detection", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertCORS(t, rec)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(&stubDetector{configured: true}, nil)

	rec := postDetect(t, srv, `{}`)
	generated := rec.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodOptions, "/pest-detection", nil)
	req.Header.Set("X-Request-ID", "caller-123")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "caller-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodOptions, "/pest-detection", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestFailureRecordsRequestID(t *testing.T) {
	failures := &stubFailures{}
	srv := newTestServer(&stubDetector{configured: true, err: &detect.UpstreamError{Backend: "gateway", StatusCode: 500}}, failures)

	req := httptest.NewRequest(http.MethodPost, "/pest-detection", strings.NewReader(`{"imageBase64":"`+testImage+`"}`))
	req.Header.Set("X-Request-ID", "trace-me")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Len(t, failures.recorded, 1)
	assert.Equal(t, "trace-me", failures.recorded[0].RequestID)
}

func TestUnknownMethodRejected(t *testing.T) {
	srv := newTestServer(&stubDetector{configured: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/pest-detection", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
