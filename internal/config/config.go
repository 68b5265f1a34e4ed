package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all agent configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// BackendURL is the school backend API root, e.g. http://localhost:3000/api.
	BackendURL     string
	AuthToken      string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation
	// for the local shell. Empty slice means all origins are permitted.
	AllowedOrigins []string
	ShellDir       string
	ExamListPath   string

	AutoSubmitOnExpiry bool

	CaptureEnabled      bool
	CaptureBinary       string
	CaptureVideoFormat  string
	CaptureVideoDevice  string
	CaptureAudioFormat  string
	CaptureAudioDevice  string
	CaptureDrainTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "8090"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "pretty"),
		BackendURL:          strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:3000/api"), "/"),
		AuthToken:           getEnv("EXAM_TOKEN", ""),
		RequestTimeout:      time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		UploadTimeout:       time.Duration(getEnvInt("UPLOAD_TIMEOUT_SECONDS", 300)) * time.Second,
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		ShellDir:            getEnv("SHELL_DIR", ""),
		ExamListPath:        getEnv("EXAM_LIST_PATH", "/student/exam"),
		AutoSubmitOnExpiry:  getEnvBool("AUTO_SUBMIT_ON_EXPIRY", true),
		CaptureEnabled:      getEnvBool("CAPTURE_ENABLED", true),
		CaptureBinary:       getEnv("CAPTURE_BINARY", "ffmpeg"),
		CaptureVideoFormat:  getEnv("CAPTURE_VIDEO_FORMAT", "v4l2"),
		CaptureVideoDevice:  getEnv("CAPTURE_VIDEO_DEVICE", "/dev/video0"),
		CaptureAudioFormat:  getEnv("CAPTURE_AUDIO_FORMAT", "alsa"),
		CaptureAudioDevice:  getEnv("CAPTURE_AUDIO_DEVICE", "default"),
		CaptureDrainTimeout: time.Duration(getEnvInt("CAPTURE_DRAIN_TIMEOUT_SECONDS", 5)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
