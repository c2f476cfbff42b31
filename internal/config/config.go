package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr      string
	DetectBackend   string
	GatewayURL      string
	GatewayAPIKey   string
	GatewayModel    string
	ClaudeAPIKey    string
	ClaudeModel     string
	ClaudeBaseURL   string
	UpstreamTimeout time.Duration
	MaxBodyBytes    int64
	DiagDBPath      string
	DiagRetention   time.Duration
	LogLevel        string
	LogFormat       string
	LogFile         string
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory (or the files named) fill in variables that are not
// already set. Missing credentials are not an error here; requests fail with
// a configuration error instead.
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotenv(envFiles...); err != nil {
		return nil, err
	}

	timeout, err := getDuration("UPSTREAM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	retention, err := getDuration("DIAG_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	maxBody, err := getInt64("MAX_BODY_BYTES", 16<<20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		DetectBackend:   getEnv("DETECT_BACKEND", "gateway"),
		GatewayURL:      getEnv("AI_GATEWAY_URL", ""),
		GatewayAPIKey:   getEnv("AI_GATEWAY_API_KEY", ""),
		GatewayModel:    getEnv("AI_GATEWAY_MODEL", ""),
		ClaudeAPIKey:    getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:     getEnv("CLAUDE_MODEL", ""),
		ClaudeBaseURL:   getEnv("CLAUDE_BASE_URL", ""),
		UpstreamTimeout: timeout,
		MaxBodyBytes:    maxBody,
		DiagDBPath:      getEnv("DIAG_DB_PATH", "/data/cropsense-diag.db"),
		DiagRetention:   retention,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		LogFile:         getEnv("LOG_FILE", ""),
	}

	switch cfg.DetectBackend {
	case "gateway", "claude":
	default:
		return nil, fmt.Errorf("invalid DETECT_BACKEND %q: want gateway or claude", cfg.DetectBackend)
	}
	return cfg, nil
}

// loadDotenv loads the given files, or ./.env when none are given. A missing
// default file is ignored; a missing named file is an error.
func loadDotenv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// Bare integers are seconds.
		secs, serr := strconv.Atoi(raw)
		if serr != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return n, nil
}
