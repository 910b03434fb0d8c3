package iluminize

import (
	"encoding/hex"
	"fmt"
	"math"
)

// WhiteLimit caps the white channel output.
type WhiteLimit uint8

// RGBLimit caps each of the red, green and blue outputs.
type RGBLimit [3]uint8

// Full-scale limits, used when no maximum is configured.
const (
	DefaultWhiteLimit = "FF"
	DefaultRGBLimit   = "FFFFFF"
)

// ParseWhiteLimit parses a 2 hex digit maximum. Empty means full scale.
func ParseWhiteLimit(s string) (WhiteLimit, error) {
	if s == "" {
		s = DefaultWhiteLimit
	}
	b, err := parseHexBytes(s, 1)
	if err != nil {
		return 0, err
	}
	return WhiteLimit(b[0]), nil
}

// ParseRGBLimit parses a 6 hex digit maximum. Empty means full scale.
func ParseRGBLimit(s string) (RGBLimit, error) {
	if s == "" {
		s = DefaultRGBLimit
	}
	b, err := parseHexBytes(s, 3)
	if err != nil {
		return RGBLimit{}, err
	}
	return RGBLimit{b[0], b[1], b[2]}, nil
}

func parseHexBytes(s string, n int) ([]byte, error) {
	if len(s) != 2*n || !isHex(s) {
		return nil, fmt.Errorf("%w: %q must be %d hex digits", ErrInvalidLimit, s, 2*n)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLimit, s, err)
	}
	return b, nil
}

// String renders the limit the way it is configured.
func (l WhiteLimit) String() string { return fmt.Sprintf("%02X", uint8(l)) }

// String renders the limit the way it is configured.
func (l RGBLimit) String() string { return fmt.Sprintf("%02X%02X%02X", l[0], l[1], l[2]) }

// ClampByte rounds v half away from zero and clamps it into [0,255].
func ClampByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	switch {
	case r <= 0:
		return 0
	case r >= 255:
		return 255
	}
	return uint8(r)
}

// Scale maps a 0-255 intensity onto the range [0, max].
func Scale(v float64, max uint8) uint8 {
	return ClampByte(v / 255 * float64(max))
}

// ScaleWhite maps a white brightness onto the configured white maximum.
func ScaleWhite(brightness uint8, limit WhiteLimit) uint8 {
	return Scale(float64(brightness), uint8(limit))
}

// ApplyBrightness folds brightness into a colour. The result is left
// unrounded so that it composes with ScaleRGB without double rounding.
func ApplyBrightness(rgb [3]uint8, brightness uint8) [3]float64 {
	var out [3]float64
	for i, c := range rgb {
		out[i] = float64(c) / 255 * float64(brightness)
	}
	return out
}

// ScaleRGB maps each channel onto its configured maximum.
func ScaleRGB(ch [3]float64, limit RGBLimit) [3]uint8 {
	var out [3]uint8
	for i := range ch {
		out[i] = Scale(ch[i], limit[i])
	}
	return out
}
