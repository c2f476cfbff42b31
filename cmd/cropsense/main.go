package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vbonduro/cropsense/internal/config"
	"github.com/vbonduro/cropsense/internal/detect"
	claudedetect "github.com/vbonduro/cropsense/internal/detect/claude"
	gatewaydetect "github.com/vbonduro/cropsense/internal/detect/gateway"
	"github.com/vbonduro/cropsense/internal/diagstore"
	"github.com/vbonduro/cropsense/internal/logging"
	"github.com/vbonduro/cropsense/internal/service"
	"github.com/vbonduro/cropsense/internal/web"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector := newDetector(cfg, logger)

	var svc *service.DetectionService
	if store := openDiagStore(ctx, cfg, logger); store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close diagnostics store", "error", err)
			}
		}()
		svc = service.NewDetectionService(detector, cfg.DetectBackend, store, logger)
	} else {
		svc = service.NewDetectionService(detector, cfg.DetectBackend, nil, logger)
	}

	server := web.NewServer(svc, cfg.MaxBodyBytes, logger)
	if err := server.ListenAndServe(ctx, cfg.ListenAddr, shutdownTimeout); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newDetector(cfg *config.Config, logger *slog.Logger) detect.Detector {
	switch cfg.DetectBackend {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			logger.Warn("CLAUDE_API_KEY is not set; detection requests will fail")
		}
		logger.Info("using Claude detection backend", "model", cfg.ClaudeModel)
		return claudedetect.NewClaudeDetector(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.ClaudeBaseURL, cfg.UpstreamTimeout)
	default:
		if cfg.GatewayAPIKey == "" {
			logger.Warn("AI_GATEWAY_API_KEY is not set; detection requests will fail")
		}
		logger.Info("using AI gateway detection backend", "model", cfg.GatewayModel)
		return gatewaydetect.NewGatewayDetector(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayModel, cfg.UpstreamTimeout)
	}
}

// openDiagStore opens the failure store and prunes old rows. Diagnostics are
// optional: any failure here is logged and the server runs without them.
func openDiagStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *diagstore.Store {
	if cfg.DiagDBPath == "" {
		logger.Info("diagnostics store disabled")
		return nil
	}
	store, err := diagstore.Open(cfg.DiagDBPath)
	if err != nil {
		logger.Error("failed to open diagnostics store; continuing without it", "path", cfg.DiagDBPath, "error", err)
		return nil
	}
	if cfg.DiagRetention > 0 {
		n, err := store.Prune(ctx, time.Now().Add(-cfg.DiagRetention))
		if err != nil {
			logger.Warn("failed to prune diagnostics", "error", err)
		} else if n > 0 {
			logger.Info("pruned diagnostics", "rows", n)
		}
	}
	return store
}
