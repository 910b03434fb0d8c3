package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/light"
)

// Config is the layout of config.yaml.
type Config struct {
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Transport struct {
		Timeout string `yaml:"timeout"` // per send, e.g. "3s"
	} `yaml:"transport"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	ScriptsDir string `yaml:"scripts_dir"`

	// Devices are imported as config entries on startup unless their
	// host:port already has one.
	Devices []light.Config `yaml:"devices"`

	timeout time.Duration
}

// defaultConfig is decoded over, so absent keys keep these values.
func defaultConfig() *Config {
	cfg := &Config{ScriptsDir: "scripts"}
	cfg.Web.Listen = "127.0.0.1:8080"
	cfg.Store.Path = "iluminize-home.db"
	cfg.MQTT.ClientID = "iluminize-go-home"
	cfg.MQTT.TopicPrefix = "iluminize"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Transport.Timeout = iluminize.DefaultTimeout.String()
	return cfg
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// validate checks cross-field rules and resolves the transport timeout.
// Device entries are validated by the light manager on import.
func (c *Config) validate() error {
	var errs []error
	d, err := time.ParseDuration(c.Transport.Timeout)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("transport.timeout: %w", err))
	case d <= 0:
		errs = append(errs, fmt.Errorf("transport.timeout must be positive, got %s", d))
	default:
		c.timeout = d
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// newLogger builds the process logger from the validated log section.
func newLogger(c *Config, w io.Writer) *slog.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(c.Log.Level))
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
