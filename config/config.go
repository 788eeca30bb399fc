package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultIP   = "127.0.0.1"
	DefaultPort = 9432
)

// Adapter names accepted by FBRS_ADAPTER
const (
	AdapterDisk   = "disk"
	AdapterMemory = "memory"
)

// GenerateSecret generates a random hex secret for signing JWTs
func GenerateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Config holds all configuration for the service
type Config struct {
	// Filesystem
	Home string

	// Server settings
	IP           string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Identity store
	Adapter   string
	StorePath string

	// Authentication
	AuthRequired  bool
	JWTSecret     string
	TokenTTL      time.Duration
	TokenCacheTTL time.Duration

	// Security
	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int

	// Logging
	LogLevel  string
	LogFormat string

	EnvFile string
}

// Load reads configuration from the environment, after loading an optional .env file
func Load() (*Config, error) {
	envFile := getEnvFile()

	// Load .env file if it exists
	_ = godotenv.Load(envFile)

	userHome := os.Getenv("HOME")

	cfg := &Config{
		Home:           getEnv("FBRS_HOME", userHome),
		IP:             getEnv("FBRS_IP", DefaultIP),
		Port:           getEnvInt("FBRS_PORT", DefaultPort),
		ReadTimeout:    time.Duration(getEnvInt("READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout:   time.Duration(getEnvInt("WRITE_TIMEOUT_SECONDS", 300)) * time.Second,
		Adapter:        getEnv("FBRS_ADAPTER", AdapterDisk),
		StorePath:      getEnv("FBRS_STORE_PATH", filepath.Join(userHome, ".fbrs", "identity.yaml")),
		AuthRequired:   getEnvBool("FBRS_AUTH_REQUIRED", false),
		JWTSecret:      getEnv("FBRS_JWT_SECRET", ""),
		TokenTTL:       time.Duration(getEnvInt("FBRS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		TokenCacheTTL:  time.Duration(getEnvInt("FBRS_TOKEN_CACHE_SECONDS", 30)) * time.Second,
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 100),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 200),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		EnvFile:        envFile,
	}

	if cfg.JWTSecret == "" {
		// Tokens issued with a generated secret die with the process
		secret, err := GenerateSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvFile returns the path to the .env file
func getEnvFile() string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}
	return ".env"
}

// LoadWithDefaults loads config with defaults for testing
func LoadWithDefaults() *Config {
	return &Config{
		Home:           os.TempDir(),
		IP:             DefaultIP,
		Port:           DefaultPort,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   300 * time.Second,
		Adapter:        AdapterMemory,
		JWTSecret:      "test-jwt-secret",
		TokenTTL:       time.Hour,
		TokenCacheTTL:  30 * time.Second,
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Validate checks values that cannot be defaulted silently
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.Home == "" {
		return fmt.Errorf("home directory is not set: export FBRS_HOME or HOME")
	}
	switch c.Adapter {
	case AdapterDisk, AdapterMemory:
	default:
		return fmt.Errorf("unknown adapter %q: use %q or %q", c.Adapter, AdapterDisk, AdapterMemory)
	}
	return nil
}

// WithOverrides returns a copy of the config with a non-empty ip and non-zero port applied
func (c *Config) WithOverrides(ip string, port int) *Config {
	out := *c
	if ip != "" {
		out.IP = ip
	}
	if port != 0 {
		out.Port = port
	}
	return &out
}

// Addr returns the server address string
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// BaseURL returns the URL clients use to reach the service
func (c *Config) BaseURL() string {
	return "http://" + c.Addr()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
