package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

type Config struct {
	Port               string
	ModelPath          string
	ORTLibraryPath     string
	MaxUploadMB        int
	RateLimitPerMinute int // 0 disables rate limiting
	CORSOrigins        []string
	CreateModel        bool
	FallbackSeed       uint64
	ModelInitSeed      uint64
}

// Load reads the configuration from the environment, after applying an
// optional .env file in the working directory. Only malformed values are
// rejected here; call Validate once any overrides have been applied.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		ModelPath:      getEnv("POTHOLE_MODEL_PATH", "models/pothole_detector.json"),
		ORTLibraryPath: os.Getenv("ORT_LIBRARY_PATH"),
		CORSOrigins:    DefaultCORSOrigins,
	}

	var err error
	if cfg.MaxUploadMB, err = getInt("MAX_UPLOAD_MB", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.CreateModel, err = getBool("CREATE_MODEL_IF_MISSING", false); err != nil {
		return nil, err
	}
	if cfg.FallbackSeed, err = getUint("FALLBACK_SEED", 0); err != nil {
		return nil, err
	}
	if cfg.ModelInitSeed, err = getUint("MODEL_INIT_SEED", 42); err != nil {
		return nil, err
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.ModelPath == "" {
		return errors.New("model path is empty")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimitPerMinute)
	}
	return nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
