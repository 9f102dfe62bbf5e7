package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string

	// Backend
	BackendURL       string
	RequestTimeout   time.Duration
	MaxResponseBytes int64

	// Uploads
	MaxUploadBytes int64
	UploadDir      string

	// View
	RevealInterval time.Duration

	// Concurrency
	MaxConcurrentRequests int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// logging
	LogLevel string
}

// Load reads configuration from the process environment. A .env file in the
// working directory is loaded first when present, and CONFIG_FILE may name a
// YAML file of KEY: value pairs used for keys the environment leaves unset.
func Load() (Config, error) {
	_ = godotenv.Load()

	file, err := readFileValues(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return Config{}, err
	}
	src := source{file: file}

	return Config{
		Port: src.envStr("PORT", "8080"),

		BackendURL:       strings.TrimRight(src.envStr("BACKEND_URL", "http://127.0.0.1:5000"), "/"),
		RequestTimeout:   src.envDur("REQUEST_TIMEOUT", 60*time.Second),
		MaxResponseBytes: int64(src.envInt("MAX_RESPONSE_BYTES", 10<<20)),

		MaxUploadBytes: int64(src.envInt("MAX_UPLOAD_BYTES", 50<<20)),
		UploadDir:      src.envStr("UPLOAD_DIR", ""),

		RevealInterval: src.envDur("REVEAL_INTERVAL", 50*time.Millisecond),

		MaxConcurrentRequests: int64(src.envInt("MAX_CONCURRENT_REQUESTS", 15)),

		ReadHeaderTimeout: src.envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       src.envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      src.envDur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       src.envDur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   src.envDur("SHUTDOWN_TIMEOUT", 10*time.Second),

		RateLimitEvery: src.envDur("RATE_LIMIT_EVERY", 100*time.Millisecond),
		RateLimitBurst: src.envInt("RATE_LIMIT_BURST", 50),

		CleanupInterval: src.envDur("CLEANUP_INTERVAL", 5*time.Minute),

		LogLevel: src.envStr("LOG_LEVEL", "info"),
	}, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("BACKEND_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("BACKEND_URL must use http or https")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("BACKEND_URL host is required")
	}
	if c.RevealInterval <= 0 {
		return fmt.Errorf("REVEAL_INTERVAL must be positive")
	}
	return nil
}

// ConvertURL is the backend endpoint every dispatch posts to.
func (c Config) ConvertURL() string {
	return c.BackendURL + "/convert"
}

func readFileValues(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) envStr(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) envInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s source) envDur(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
