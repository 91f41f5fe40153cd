package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTSecret string
	JWTTTL    time.Duration

	BaseURL       string
	UploadRoot    string
	ThumbnailRoot string
	MaxUploadSize int64

	AllowedMIMETypes []string
	CORSOrigins      []string

	RateLimitRPM     int
	AuthRateLimitRPM int

	RevokedSweepInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTTTL:    getDuration("JWT_TOKEN_TTL", 24*time.Hour),

		BaseURL:       strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		UploadRoot:    getEnv("UPLOAD_ROOT", "./uploads"),
		ThumbnailRoot: getEnv("THUMBNAIL_ROOT", "./state/thumbnails"),
		MaxUploadSize: getInt64("MAX_UPLOAD_SIZE", 20*1024*1024),

		AllowedMIMETypes: splitCSV(getEnv("ALLOWED_MIME_TYPES",
			"image/jpeg,image/png,application/pdf,application/vnd.google-earth.kml+xml,application/vnd.google-earth.kmz")),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),

		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),

		RevokedSweepInterval: getDuration("REVOKED_TOKEN_SWEEP_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if strings.TrimSpace(c.UploadRoot) == "" {
		return fmt.Errorf("UPLOAD_ROOT cannot be empty")
	}

	if strings.TrimSpace(c.ThumbnailRoot) == "" {
		return fmt.Errorf("THUMBNAIL_ROOT cannot be empty")
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}

	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TOKEN_TTL must be positive")
	}

	if c.RevokedSweepInterval <= 0 {
		return fmt.Errorf("REVOKED_TOKEN_SWEEP_INTERVAL must be positive")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
