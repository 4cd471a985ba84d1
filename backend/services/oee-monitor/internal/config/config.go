package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	libconfig "plantoee/backend/libs/config"
)

// Config defines oee-monitor configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"OEE_HTTP_PORT"`
	} `yaml:"http"`
	Stream struct {
		URL                     string        `yaml:"url" env:"OEE_STREAM_URL"`
		APIKey                  string        `yaml:"apiKey" env:"OEE_STREAM_API_KEY"`
		MaxRetries              int           `yaml:"maxRetries" env:"OEE_STREAM_MAX_RETRIES"`
		BaseDelay               time.Duration `yaml:"baseDelay" env:"OEE_STREAM_BASE_DELAY"`
		CapDelay                time.Duration `yaml:"capDelay" env:"OEE_STREAM_CAP_DELAY"`
		HandshakeTimeoutSeconds int           `yaml:"handshakeTimeoutSeconds" env:"OEE_STREAM_HANDSHAKE_TIMEOUT_SECONDS"`
	} `yaml:"stream"`
	Backend struct {
		BaseURL        string `yaml:"baseUrl" env:"OEE_BACKEND_URL"`
		APIKey         string `yaml:"apiKey" env:"OEE_BACKEND_API_KEY"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"OEE_BACKEND_TIMEOUT_SECONDS"`
		Retries        int    `yaml:"retries" env:"OEE_BACKEND_RETRIES"`
	} `yaml:"backend"`
	Redis struct {
		Addr     string `yaml:"addr" env:"OEE_REDIS_ADDR"`
		Password string `yaml:"password" env:"OEE_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"OEE_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"OEE_REDIS_TTL"`
	} `yaml:"redis"`
	Session struct {
		ID string `yaml:"id" env:"OEE_SESSION_ID"`
	} `yaml:"session"`
	Display struct {
		Locale   string `yaml:"locale" env:"OEE_DISPLAY_LOCALE"`
		Timezone string `yaml:"timezone" env:"OEE_DISPLAY_TZ"`
	} `yaml:"display"`
	Database struct {
		DSN string `yaml:"dsn" env:"OEE_POSTGRES_DSN"`
	} `yaml:"database"`
	Pareto struct {
		TopN int `yaml:"topN" env:"OEE_PARETO_TOP_N"`
	} `yaml:"pareto"`
	WS struct {
		PingSeconds         int      `yaml:"pingSeconds" env:"OEE_WS_PING_SECONDS"`
		WriteTimeoutSeconds int      `yaml:"writeTimeoutSeconds" env:"OEE_WS_WRITE_TIMEOUT_SECONDS"`
		AllowedOrigins      []string `yaml:"allowedOrigins" env:"OEE_WS_ALLOWED_ORIGINS"`
	} `yaml:"ws"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8090"
	cfg.Stream.URL = "wss://iotshowroom.de"
	cfg.Stream.MaxRetries = 5
	cfg.Stream.BaseDelay = time.Second
	cfg.Stream.CapDelay = 5 * time.Second
	cfg.Stream.HandshakeTimeoutSeconds = 10
	cfg.Backend.TimeoutSeconds = 10
	cfg.Backend.Retries = 3
	cfg.Redis.TTL = 86400
	cfg.Session.ID = "default"
	cfg.Display.Locale = "de-DE"
	cfg.Display.Timezone = "Local"
	cfg.Pareto.TopN = 5
	cfg.WS.PingSeconds = 30
	cfg.WS.WriteTimeoutSeconds = 10

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	base := strings.TrimSpace(c.Backend.BaseURL)
	if base == "" {
		return errors.New("config: backend base url required")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid backend base url %q", base)
	}
	if strings.TrimSpace(c.Stream.URL) == "" {
		return errors.New("config: stream url required")
	}
	if c.Stream.MaxRetries < 0 {
		return errors.New("config: stream maxRetries must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8090"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// BaseDelay returns the reconnect backoff step.
func (c *Config) BaseDelay() time.Duration {
	if c.Stream.BaseDelay <= 0 {
		return time.Second
	}
	return c.Stream.BaseDelay
}

// CapDelay returns the maximum reconnect delay.
func (c *Config) CapDelay() time.Duration {
	if c.Stream.CapDelay <= 0 {
		return 5 * time.Second
	}
	return c.Stream.CapDelay
}

// HandshakeTimeout bounds the stream dial.
func (c *Config) HandshakeTimeout() time.Duration {
	if c.Stream.HandshakeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Stream.HandshakeTimeoutSeconds) * time.Second
}

// BackendTimeout bounds one backend request.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SessionTTL returns the lifetime of persisted session keys.
func (c *Config) SessionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// Location resolves the display timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Display.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("config: display timezone: %w", err)
	}
	return loc, nil
}

// PingInterval returns the viewer keepalive interval.
func (c *Config) PingInterval() time.Duration {
	if c.WS.PingSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.WS.PingSeconds) * time.Second
}

// WriteTimeout bounds one push to a viewer.
func (c *Config) WriteTimeout() time.Duration {
	if c.WS.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.WS.WriteTimeoutSeconds) * time.Second
}
