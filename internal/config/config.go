package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/facegate/internal/facegate/service"
)

const (
	DefaultThreshold = service.DefaultThreshold
	DefaultCooldown  = service.DefaultCooldown
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	// Enrollment
	EnrollmentStore string // "file" | "sqlite"
	EnrollmentPath  string // e.g. "face_names.yaml"
	DBPath          string // e.g. "./data/facegate.db"

	// Recognition
	Algorithm   string // "lbph" | "eigenfaces" | "fisherfaces"
	ModelPath   string
	CascadePath string
	Camera      string // device index or URL/file path

	// Access policy
	Authorized []string
	Threshold  float64
	Cooldown   time.Duration

	LogLevel  string // "debug" | "info" | "warn" | "error"
	LogFormat string // "text" | "json"
}

func FromEnv() Config {
	return Config{
		HTTPAddr: getenvDefault("FACEGATE_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvDefault("FACEGATE_GRPC_ADDR", ":9090"),

		EnrollmentStore: strings.ToLower(getenvDefault("FACEGATE_ENROLLMENT_STORE", "file")),
		EnrollmentPath:  getenvDefault("FACEGATE_ENROLLMENT_PATH", "face_names.yaml"),
		DBPath:          getenvDefault("FACEGATE_DB_PATH", "./data/facegate.db"),

		Algorithm:   strings.ToLower(getenvDefault("FACEGATE_ALGORITHM", "lbph")),
		ModelPath:   getenvDefault("FACEGATE_MODEL_PATH", "lbph_classifier.yml"),
		CascadePath: getenvDefault("FACEGATE_CASCADE_PATH", "haarcascade_frontalface_default.xml"),
		Camera:      getenvDefault("FACEGATE_CAMERA", "0"),

		Authorized: splitCSV(os.Getenv("FACEGATE_AUTHORIZED")),
		Threshold:  getenvFloat("FACEGATE_THRESHOLD", DefaultThreshold),
		Cooldown:   getenvDuration("FACEGATE_COOLDOWN", DefaultCooldown),

		LogLevel:  strings.ToLower(getenvDefault("FACEGATE_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenvDefault("FACEGATE_LOG_FORMAT", "text")),
	}
}

var ErrInvalid = errors.New("invalid configuration")

// Validate reports settings that must stop start-up.  Malformed numbers
// have already fallen back to their defaults in FromEnv.
func (c Config) Validate() error {
	var errs []error

	switch c.Algorithm {
	case "lbph", "eigenfaces", "fisherfaces":
	default:
		errs = append(errs, fmt.Errorf("FACEGATE_ALGORITHM %q: want lbph, eigenfaces or fisherfaces", c.Algorithm))
	}
	switch c.EnrollmentStore {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("FACEGATE_ENROLLMENT_STORE %q: want file or sqlite", c.EnrollmentStore))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("FACEGATE_LOG_FORMAT %q: want text or json", c.LogFormat))
	}
	if c.Threshold < 0 {
		errs = append(errs, errors.New("FACEGATE_THRESHOLD must not be negative"))
	}
	if c.ModelPath == "" || c.CascadePath == "" {
		errs = append(errs, errors.New("model and cascade paths are required"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

// getenvDuration accepts a Go duration ("5s", "1m") or a bare number of
// seconds ("5", "2.5").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if s, err := strconv.ParseFloat(v, 64); err == nil && s >= 0 {
		return time.Duration(s * float64(time.Second))
	}
	return def
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
