package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime parameters of the engine.
type Config struct {
	DatabaseURL string
	ServerPort  int

	// AutoConfirmWindow is how long an unconfirmed result submission
	// stays cancellable before it confirms automatically.
	AutoConfirmWindow time.Duration

	// CheckInWindow is the default length of a match check-in period.
	CheckInWindow time.Duration

	// SweepInterval drives the background pass over expired check-in
	// deadlines and overdue auto-confirms.
	SweepInterval time.Duration

	// Cloudflare R2 credentials for dispute evidence storage. All five
	// must be set together; leaving them empty disables file uploads.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load reads configuration from environment variables, optionally
// seeded from a .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	autoConfirm, err := durationEnv("AUTO_CONFIRM_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	checkIn, err := durationEnv("CHECK_IN_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	sweep, err := durationEnv("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		ServerPort:        port,
		AutoConfirmWindow: autoConfirm,
		CheckInWindow:     checkIn,
		SweepInterval:     sweep,
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

// R2Enabled reports whether evidence file storage is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}
