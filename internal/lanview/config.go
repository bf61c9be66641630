package lanview

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lanview/pkg/rtsp"
)

type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Logging LoggingConfig `yaml:"logging"`
}

type CameraConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TLSInsecure accepts any certificate the camera presents.
	TLSInsecure bool `yaml:"tls_insecure"`
	// TLSFingerprint pins the camera's leaf certificate by SHA-256.
	TLSFingerprint string        `yaml:"tls_fingerprint"`
	UserAgent      string        `yaml:"user_agent"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

type ViewerConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	StartTimeout   time.Duration `yaml:"start_timeout"`
	// Output is an optional Annex-B dump path.
	Output      string `yaml:"output"`
	EventBuffer int    `yaml:"event_buffer"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a yaml file
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses yaml, applies defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.UserAgent == "" {
		c.Camera.UserAgent = rtsp.DefaultUserAgent
	}
	if c.Camera.DialTimeout == 0 {
		c.Camera.DialTimeout = rtsp.DefaultDialTimeout
	}
	if c.Viewer.ReconnectDelay == 0 {
		c.Viewer.ReconnectDelay = 3 * time.Second
	}
	if c.Viewer.StartTimeout == 0 {
		c.Viewer.StartTimeout = 15 * time.Second
	}
	if c.Viewer.EventBuffer == 0 {
		c.Viewer.EventBuffer = 128
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	u, err := url.Parse(c.Camera.URL)
	if err != nil {
		return fmt.Errorf("invalid camera url: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("invalid camera url scheme: %q (must be rtsp or rtsps)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("camera url has no host: %s", c.Camera.URL)
	}

	if fp := c.Camera.TLSFingerprint; fp != "" {
		raw, err := hex.DecodeString(strings.ReplaceAll(fp, ":", ""))
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("invalid tls_fingerprint: %q (must be a SHA-256 hex digest)", fp)
		}
	}

	if c.Camera.DialTimeout < 0 {
		return fmt.Errorf("invalid dial_timeout: %s (must be non-negative)", c.Camera.DialTimeout)
	}
	if c.Viewer.ReconnectDelay < 0 {
		return fmt.Errorf("invalid reconnect_delay: %s (must be non-negative)", c.Viewer.ReconnectDelay)
	}
	if c.Viewer.StartTimeout < 0 {
		return fmt.Errorf("invalid start_timeout: %s (must be non-negative)", c.Viewer.StartTimeout)
	}
	if c.Viewer.EventBuffer < 0 {
		return fmt.Errorf("invalid event_buffer: %d (must be non-negative)", c.Viewer.EventBuffer)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, level := range validLevels {
		if strings.ToLower(c.Logging.Level) == level {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.Logging.Level, validLevels)
	}

	return nil
}

// GetSlogLevel returns slog.Level from config
func (c *Config) GetSlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TrustEvaluator maps the TLS settings to a policy. A fingerprint pin
// takes precedence over tls_insecure; neither means system verification.
func (c *CameraConfig) TrustEvaluator() rtsp.TrustEvaluator {
	switch {
	case c.TLSFingerprint != "":
		return rtsp.PinSHA256(c.TLSFingerprint)
	case c.TLSInsecure:
		return rtsp.TrustAll
	default:
		return nil
	}
}

// ClientConfig builds the RTSP client settings. Without a configured
// username the client falls back to credentials in the URL.
func (c *Config) ClientConfig() rtsp.ClientConfig {
	clientConfig := rtsp.ClientConfig{
		Trust:       c.Camera.TrustEvaluator(),
		UserAgent:   c.Camera.UserAgent,
		DialTimeout: c.Camera.DialTimeout,
		EventBuffer: c.Viewer.EventBuffer,
	}
	if c.Camera.Username != "" {
		clientConfig.Credentials = &rtsp.Credentials{
			Username: c.Camera.Username,
			Password: c.Camera.Password,
		}
	}
	return clientConfig
}
