package light

import (
	"errors"
	"strings"
	"testing"

	"iluminize-go-home/internal/iluminize"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{Host: " 192.168.1.50 ", Sender: "AABBCC"}.WithDefaults()
	if c.Host != "192.168.1.50" {
		t.Errorf("host = %q", c.Host)
	}
	if c.Port != 8899 {
		t.Errorf("port = %d, want 8899", c.Port)
	}
	if c.Name != "Light strip" {
		t.Errorf("name = %q", c.Name)
	}
	if c.Type != TypeRGBW {
		t.Errorf("type = %q, want RGBW", c.Type)
	}
	if c.MaxRGB != "FFFFFF" || c.MaxW != "FF" {
		t.Errorf("limits = %s/%s", c.MaxRGB, c.MaxW)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Host: "10.0.0.1", Sender: "AABBCC"}.WithDefaults()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
		code   string
	}{
		{"missing host", func(c *Config) { c.Host = "" }, "host", CodeHostRequired},
		{"port zero", func(c *Config) { c.Port = 0 }, "port", CodeInvalidPort},
		{"port too big", func(c *Config) { c.Port = 70000 }, "port", CodeInvalidPort},
		{"non-hex sender", func(c *Config) { c.Sender = "ZZZZZZ" }, "sender", CodeInvalidSender},
		{"short sender", func(c *Config) { c.Sender = "AABB" }, "sender", CodeInvalidSender},
		{"unknown type", func(c *Config) { c.Type = "RGBWW" }, "type", CodeInvalidType},
		{"bad max_rgb", func(c *Config) { c.MaxRGB = "FFFF" }, "max_rgb", CodeInvalidMaxRGB},
		{"bad max_w", func(c *Config) { c.MaxW = "FFF" }, "max_w", CodeInvalidMaxW},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Fields[tt.field] != tt.code {
				t.Errorf("fields = %v, want %s=%s", ce.Fields, tt.field, tt.code)
			}
			if len(ce.Fields) != 1 {
				t.Errorf("fields = %v, want exactly one", ce.Fields)
			}
		})
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("valid config: %v", err)
	}
}

func TestConfigErrorListsAllFields(t *testing.T) {
	err := Config{Sender: "nope", Type: "X", Port: -1}.Validate()
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	for _, f := range []string{"host", "port", "sender", "type"} {
		if _, ok := ce.Fields[f]; !ok {
			t.Errorf("missing field %s in %v", f, ce.Fields)
		}
	}
	if !strings.HasPrefix(err.Error(), "invalid config: host: host_required") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestResolveRejectsInvalidSender(t *testing.T) {
	_, err := Config{Host: "10.0.0.1", Sender: "ZZZZZZ", Type: TypeRGBW}.Resolve()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Fields["sender"] != CodeInvalidSender {
		t.Fatalf("err = %v, want invalid_sender_format", err)
	}
}

func TestResolveDecodes(t *testing.T) {
	r, err := Config{Host: "10.0.0.1", Sender: "a1b2c3", Type: TypeW, MaxW: "80", MaxRGB: "FF8000"}.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if r.Address != (iluminize.Address{0xA1, 0xB2, 0xC3}) {
		t.Errorf("address = %s", r.Address)
	}
	if r.MaxW != 0x80 {
		t.Errorf("max_w = %s", r.MaxW)
	}
	if r.MaxRGB != (iluminize.RGBLimit{0xFF, 0x80, 0x00}) {
		t.Errorf("max_rgb = %s", r.MaxRGB)
	}
	if r.UniqueID() != "10.0.0.1:8899" {
		t.Errorf("unique id = %s", r.UniqueID())
	}
	if r.HasRGB() || !r.HasWhite() {
		t.Errorf("type W: HasRGB=%v HasWhite=%v", r.HasRGB(), r.HasWhite())
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := (Options{}).Validate(); err != nil {
		t.Errorf("empty options: %v", err)
	}
	if err := (Options{MaxRGB: "102030", MaxW: "0a"}).Validate(); err != nil {
		t.Errorf("valid options: %v", err)
	}
	err := Options{MaxRGB: "GGGGGG", MaxW: "1"}.Validate()
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	if ce.Fields["max_rgb"] != CodeInvalidMaxRGB || ce.Fields["max_w"] != CodeInvalidMaxW {
		t.Errorf("fields = %v", ce.Fields)
	}
}

func TestTitle(t *testing.T) {
	if got := (Config{Name: "Kitchen"}).Title(); got != "Iluminize LED Controller (Kitchen)" {
		t.Errorf("Title() = %q", got)
	}
}
