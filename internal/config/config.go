package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Environment variables that override the config file
const (
	EnvBaseURL   = "RALLY_API_BASE_URL"
	EnvToken     = "RALLY_API_TOKEN"
	EnvTimeout   = "RALLY_API_TIMEOUT"
	EnvStreamURL = "RALLY_STREAM_URL"
	EnvUserID    = "RALLY_USER_ID"
	EnvLogLevel  = "RALLY_LOG_LEVEL"
)

const (
	DefaultBaseURL = "http://localhost:3000/api"
	DefaultTimeout = 15 * time.Second
)

var validate = validator.New()

// Config represents the rally configuration
type Config struct {
	file *ini.File
}

// Settings is the resolved, validated view of the configuration
type Settings struct {
	BaseURL   string        `validate:"required,url"`
	Token     string        `validate:"omitempty"`
	Timeout   time.Duration `validate:"gt=0"`
	StreamURL string        `validate:"omitempty,url"`
	UserID    string        `validate:"omitempty"`
	LogLevel  string        `validate:"omitempty,oneof=debug info warn warning error"`
}

// Dir returns the rally home directory (~/.rally)
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rally"), nil
}

// Load reads the configuration file from ~/.rally/config, after loading
// ~/.rally/.env and ./.env into the environment when present.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	// godotenv never overrides variables that are already set
	for _, envPath := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
			}
		}
	}

	return LoadFile(filepath.Join(dir, "config"))
}

// LoadFile reads an INI config file. A missing file yields an empty config.
func LoadFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &Config{file: ini.Empty()}, nil
	}

	file, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	return &Config{file: file}, nil
}

// GetString retrieves a string value from the config
// section.key format (e.g., "api.base_url")
func (c *Config) GetString(key string) string {
	section, keyName := c.parseKey(key)
	if section == "" {
		return ""
	}

	sec, err := c.file.GetSection(section)
	if err != nil {
		return ""
	}

	return sec.Key(keyName).String()
}

// GetInt retrieves an integer value from the config
func (c *Config) GetInt(key string) (int, error) {
	val := c.GetString(key)
	if val == "" {
		return 0, nil
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %w", key, err)
	}

	return intVal, nil
}

// GetBool retrieves a boolean value from the config
func (c *Config) GetBool(key string) bool {
	val := strings.ToLower(c.GetString(key))
	return val == "true" || val == "yes" || val == "1" || val == "on"
}

// HasKey checks if a key exists in the config
func (c *Config) HasKey(key string) bool {
	section, keyName := c.parseKey(key)
	if section == "" {
		return false
	}

	sec, err := c.file.GetSection(section)
	if err != nil {
		return false
	}

	return sec.HasKey(keyName)
}

// parseKey splits a dotted key into section and key name, using the last dot
// e.g., "api.base_url" -> ("api", "base_url")
func (c *Config) parseKey(key string) (string, string) {
	lastDot := strings.LastIndex(key, ".")
	if lastDot == -1 {
		return "", ""
	}
	return key[:lastDot], key[lastDot+1:]
}

// GetStringWithFallback retrieves a string value with a fallback default
func (c *Config) GetStringWithFallback(key, fallback string) string {
	if c.HasKey(key) {
		return c.GetString(key)
	}
	return fallback
}

// GetIntWithFallback retrieves an int value with a fallback default
func (c *Config) GetIntWithFallback(key string, fallback int) int {
	if c.HasKey(key) {
		val, err := c.GetInt(key)
		if err == nil {
			return val
		}
	}
	return fallback
}

// Settings resolves file values, applies environment overrides and validates
// the result.
func (c *Config) Settings() (*Settings, error) {
	s := &Settings{
		BaseURL:   c.GetStringWithFallback("api.base_url", DefaultBaseURL),
		Token:     c.GetString("api.token"),
		Timeout:   DefaultTimeout,
		StreamURL: c.GetString("stream.url"),
		UserID:    c.GetString("user.id"),
		LogLevel:  c.GetStringWithFallback("log.level", "info"),
	}

	if c.HasKey("api.timeout") {
		d, err := parseTimeout(c.GetString("api.timeout"))
		if err != nil {
			return nil, fmt.Errorf("invalid api.timeout: %w", err)
		}
		s.Timeout = d
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		s.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		s.Token = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		s.Timeout = d
	}
	if v := os.Getenv(EnvStreamURL); v != "" {
		s.StreamURL = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		s.UserID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}

	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.StreamURL == "" {
		s.StreamURL = deriveStreamURL(s.BaseURL)
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return s, nil
}

// parseTimeout accepts Go durations ("30s") or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// deriveStreamURL maps http(s)://host/api to ws(s)://host/ws
func deriveStreamURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/api")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return ""
	}
	return u + "/ws"
}
