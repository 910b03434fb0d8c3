package light

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/store"
)

// Controller types.
const (
	TypeRGBW = "RGBW"
	TypeRGB  = "RGB"
	TypeW    = "W"
)

const (
	DefaultName   = "Light strip"
	DefaultMaxRGB = iluminize.DefaultRGBLimit
	DefaultMaxW   = iluminize.DefaultWhiteLimit
)

// Field error codes reported by ConfigError.
const (
	CodeHostRequired  = "host_required"
	CodeInvalidPort   = "invalid_port"
	CodeInvalidSender = "invalid_sender_format"
	CodeInvalidType   = "invalid_type"
	CodeInvalidMaxRGB = "invalid_max_rgb_format"
	CodeInvalidMaxW   = "invalid_max_w_format"
)

// ErrAlreadyConfigured is returned when an entry for the same host:port exists.
var ErrAlreadyConfigured = errors.New("already configured")

// Config describes one controller as entered in the config flow or the
// devices section of config.yaml.
type Config struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Sender string `yaml:"sender" json:"sender"`
	Type   string `yaml:"type" json:"type"`
	Name   string `yaml:"name" json:"name"`
	MaxRGB string `yaml:"max_rgb" json:"max_rgb"`
	MaxW   string `yaml:"max_w" json:"max_w"`
}

// Options are the settings that may change after an entry is created.
type Options struct {
	MaxRGB string `json:"max_rgb"`
	MaxW   string `json:"max_w"`
}

// ConfigError maps each invalid field to a reason code.
type ConfigError struct {
	Fields map[string]string
}

func (e *ConfigError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid config: " + strings.Join(parts, ", ")
}

// WithDefaults fills in port, name, type and channel limits.
func (c Config) WithDefaults() Config {
	c.Host = strings.TrimSpace(c.Host)
	if c.Port == 0 {
		c.Port = iluminize.DefaultPort
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Type == "" {
		c.Type = TypeRGBW
	}
	if c.MaxRGB == "" {
		c.MaxRGB = DefaultMaxRGB
	}
	if c.MaxW == "" {
		c.MaxW = DefaultMaxW
	}
	return c
}

// Validate checks every field and returns a *ConfigError listing all
// problems, or nil.
func (c Config) Validate() error {
	fields := make(map[string]string)
	if c.Host == "" {
		fields["host"] = CodeHostRequired
	}
	if c.Port < 1 || c.Port > 65535 {
		fields["port"] = CodeInvalidPort
	}
	if _, err := iluminize.ParseAddress(c.Sender); err != nil {
		fields["sender"] = CodeInvalidSender
	}
	switch c.Type {
	case TypeRGBW, TypeRGB, TypeW:
	default:
		fields["type"] = CodeInvalidType
	}
	Options{MaxRGB: c.MaxRGB, MaxW: c.MaxW}.validate(fields)
	if len(fields) > 0 {
		return &ConfigError{Fields: fields}
	}
	return nil
}

// Validate checks the channel limits. Empty values mean full scale.
func (o Options) Validate() error {
	fields := make(map[string]string)
	o.validate(fields)
	if len(fields) > 0 {
		return &ConfigError{Fields: fields}
	}
	return nil
}

func (o Options) validate(fields map[string]string) {
	if _, err := iluminize.ParseRGBLimit(o.MaxRGB); err != nil {
		fields["max_rgb"] = CodeInvalidMaxRGB
	}
	if _, err := iluminize.ParseWhiteLimit(o.MaxW); err != nil {
		fields["max_w"] = CodeInvalidMaxW
	}
}

// UniqueID identifies the appliance; at most one entry may exist per value.
func (c Config) UniqueID() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Title is the display title of the entry created from c.
func (c Config) Title() string {
	return fmt.Sprintf("Iluminize LED Controller (%s)", c.Name)
}

// HasRGB reports whether the type includes the colour channels.
func (c Config) HasRGB() bool { return c.Type == TypeRGBW || c.Type == TypeRGB }

// HasWhite reports whether the type includes the white channel.
func (c Config) HasWhite() bool { return c.Type == TypeRGBW || c.Type == TypeW }

// Resolved is a validated Config with its hex fields decoded.
type Resolved struct {
	Config
	Address iluminize.Address
	MaxRGB  iluminize.RGBLimit
	MaxW    iluminize.WhiteLimit
}

// Resolve applies defaults, validates and decodes c.
func (c Config) Resolve() (Resolved, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Resolved{}, err
	}
	// Validate has already checked these.
	addr, _ := iluminize.ParseAddress(c.Sender)
	maxRGB, _ := iluminize.ParseRGBLimit(c.MaxRGB)
	maxW, _ := iluminize.ParseWhiteLimit(c.MaxW)
	return Resolved{Config: c, Address: addr, MaxRGB: maxRGB, MaxW: maxW}, nil
}

// ConfigFromEntry rebuilds the Config a stored entry was created from,
// with the entry's current options applied.
func ConfigFromEntry(e *store.Entry) Config {
	return Config{
		Host:   e.Data.Host,
		Port:   e.Data.Port,
		Sender: e.Data.Sender,
		Type:   e.Data.Type,
		Name:   e.Data.Name,
		MaxRGB: e.Options.MaxRGB,
		MaxW:   e.Options.MaxW,
	}
}

func (c Config) entryData() store.EntryData {
	return store.EntryData{Host: c.Host, Port: c.Port, Sender: c.Sender, Type: c.Type, Name: c.Name}
}

func (c Config) entryOptions() store.EntryOptions {
	return store.EntryOptions{MaxRGB: c.MaxRGB, MaxW: c.MaxW}
}
