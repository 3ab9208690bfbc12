package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tankprobe/internal/models"
)

const (
	DefaultHost                  = "137.220.62.28"
	DefaultPort                  = 17091
	DefaultConnectTimeoutSeconds = 10
	DefaultReadTimeoutSeconds    = 5
	DefaultReadBufferBytes       = 1024
	DefaultPreviewBytes          = 100
	DefaultLogLevel              = "warn"

	EnvHost = "TANKPROBE_HOST"
	EnvPort = "TANKPROBE_PORT"
)

// Config represents configuration data for a probe run.
type Config struct {
	Host                  string           `yaml:"host"`
	Port                  int              `yaml:"port"`
	ConnectTimeoutSeconds float64          `yaml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    float64          `yaml:"read_timeout_seconds"`
	ReadBufferBytes       int              `yaml:"read_buffer_bytes"`
	PreviewBytes          int              `yaml:"preview_bytes"`
	Handshake             models.Handshake `yaml:"handshake"`
	LogLevel              string           `yaml:"log_level"`
	HistoryFile           string           `yaml:"history_file"`
}

// DefaultConfig returns the settings used when no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Host:                  DefaultHost,
		Port:                  DefaultPort,
		ConnectTimeoutSeconds: DefaultConnectTimeoutSeconds,
		ReadTimeoutSeconds:    DefaultReadTimeoutSeconds,
		ReadBufferBytes:       DefaultReadBufferBytes,
		PreviewBytes:          DefaultPreviewBytes,
		Handshake:             models.DefaultHandshake(),
		LogLevel:              DefaultLogLevel,
	}
}

// Load reads configuration from a yaml file and applies environment
// overrides. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Endpoint returns the configured target.
func (c Config) Endpoint() models.Endpoint {
	return models.Endpoint{Host: c.Host, Port: c.Port}
}

// ConnectTimeout bounds the connect stage.
func (c Config) ConnectTimeout() time.Duration {
	return seconds(c.ConnectTimeoutSeconds)
}

// ReadTimeout bounds the receive stage.
func (c Config) ReadTimeout() time.Duration {
	return seconds(c.ReadTimeoutSeconds)
}

// Validate checks the values that normalize cannot repair.
func (c Config) Validate() error {
	if err := c.Endpoint().Validate(); err != nil {
		return err
	}
	if err := c.Handshake.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalize() {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = DefaultConnectTimeoutSeconds
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = DefaultReadTimeoutSeconds
	}
	if c.ReadBufferBytes <= 0 {
		c.ReadBufferBytes = DefaultReadBufferBytes
	}
	if c.PreviewBytes <= 0 {
		c.PreviewBytes = DefaultPreviewBytes
	}
	if len(c.Handshake) == 0 {
		c.Handshake = models.DefaultHandshake()
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func applyEnv(cfg *Config) error {
	if host := strings.TrimSpace(os.Getenv(EnvHost)); host != "" {
		cfg.Host = host
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
