package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultServiceURL is the compiled-in interpretation service address.
	DefaultServiceURL = "http://198.46.177.72:5000"
	// InterpretTimeout bounds every call to the interpretation service.
	InterpretTimeout = 30 * time.Second
)

// Config holds runtime settings for the scanner.
type Config struct {
	ServiceURL    string
	Timeout       time.Duration
	ListenAddr    string
	GalleryDir    string
	CameraDevice  int
	CameraAllowed bool
	RedisAddr     string
	CacheTTL      time.Duration
	DatabaseDSN   string
	JWTSecret     string
	JWTAudience   string
}

// Load reads the optional env file and then the process environment.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := &Config{
		ServiceURL:    strings.TrimRight(getEnv("CARD_SERVICE_URL", DefaultServiceURL), "/"),
		Timeout:       InterpretTimeout,
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		GalleryDir:    getEnv("GALLERY_DIR", filepath.Join(".", "gallery")),
		CameraDevice:  getEnvAsInt("CAMERA_DEVICE", 0),
		CameraAllowed: getEnvAsBool("CAMERA_ALLOWED", true),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		CacheTTL:      getEnvAsDuration("CACHE_TTL", 10*time.Minute),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAudience:   strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServiceURL)
	if err != nil {
		return fmt.Errorf("invalid CARD_SERVICE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid CARD_SERVICE_URL %q: scheme must be http or https", c.ServiceURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid CARD_SERVICE_URL %q: missing host", c.ServiceURL)
	}
	if c.CameraDevice < 0 {
		return fmt.Errorf("invalid CAMERA_DEVICE %d", c.CameraDevice)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
