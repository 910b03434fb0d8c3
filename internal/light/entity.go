package light

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/store"
)

// Kind distinguishes the two entities a controller can expose.
type Kind string

const (
	KindRGB   Kind = "rgb"
	KindWhite Kind = "white"
)

// ColorMode is a colour mode an entity supports.
type ColorMode string

const (
	ColorModeOnOff      ColorMode = "onoff"
	ColorModeBrightness ColorMode = "brightness"
	ColorModeRGB        ColorMode = "rgb"
)

const (
	Manufacturer = "Iluminize"
	Model        = "LED Controller"

	defaultBrightness uint8 = 127
)

var defaultRGB = [3]uint8{255, 255, 255}

// Name is the display name of the entity kind.
func (k Kind) Name() string {
	if k == KindRGB {
		return "Color"
	}
	return "White"
}

// ColorModes lists the supported colour modes of the entity kind.
func (k Kind) ColorModes() []ColorMode {
	if k == KindRGB {
		return []ColorMode{ColorModeOnOff, ColorModeBrightness, ColorModeRGB}
	}
	return []ColorMode{ColorModeOnOff, ColorModeBrightness}
}

// EntityID builds the stable id of the kind entity of the appliance at
// host:port.
func EntityID(host string, port int, kind Kind) string {
	raw := "iluminize_" + host + "_" + strconv.Itoa(port) + "_" + string(kind)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, raw)
}

// State is the optimistic state of an entity. RGB is nil for white entities.
type State struct {
	On         bool      `json:"on"`
	Brightness uint8     `json:"brightness"`
	RGB        *[3]uint8 `json:"rgb_color,omitempty"`
}

// TurnOnParams are the optional attributes of a turn-on command. Unset
// fields keep the entity's last value.
type TurnOnParams struct {
	Brightness *uint8    `json:"brightness,omitempty"`
	RGB        *[3]uint8 `json:"rgb_color,omitempty"`
}

// DeviceInfo groups entities of one appliance.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// EntityInfo is a snapshot of an entity for the API and event consumers.
type EntityInfo struct {
	EntityID   string      `json:"entity_id"`
	EntryID    string      `json:"entry_id"`
	Kind       Kind        `json:"kind"`
	Name       string      `json:"name"`
	ColorModes []ColorMode `json:"supported_color_modes"`
	Device     DeviceInfo  `json:"device"`
	State      State       `json:"state"`
}

// sender is the part of *iluminize.Controller an entity drives.
type sender interface {
	SetRGB(ctx context.Context, red, green, blue uint8) error
	SetWhite(ctx context.Context, white uint8) error
}

// Entity is one switchable light of a controller.
type Entity struct {
	id      string
	entryID string
	kind    Kind
	device  DeviceInfo
	ctrl    sender
	maxRGB  iluminize.RGBLimit
	maxW    iluminize.WhiteLimit

	// mu is held across a send so state and wire order agree.
	mu         sync.Mutex
	on         bool
	brightness uint8
	rgb        [3]uint8
}

func newEntity(entryID string, kind Kind, cfg Resolved, ctrl sender) *Entity {
	return &Entity{
		id:      EntityID(cfg.Host, cfg.Port, kind),
		entryID: entryID,
		kind:    kind,
		device: DeviceInfo{
			Identifier:   cfg.UniqueID(),
			Name:         cfg.Name,
			Manufacturer: Manufacturer,
			Model:        Model,
		},
		ctrl:       ctrl,
		maxRGB:     cfg.MaxRGB,
		maxW:       cfg.MaxW,
		brightness: defaultBrightness,
		rgb:        defaultRGB,
	}
}

func (e *Entity) ID() string         { return e.id }
func (e *Entity) EntryID() string    { return e.entryID }
func (e *Entity) Kind() Kind         { return e.kind }
func (e *Entity) Device() DeviceInfo { return e.device }

// State returns the current state.
func (e *Entity) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Info returns a snapshot of the entity.
func (e *Entity) Info() EntityInfo {
	return EntityInfo{
		EntityID:   e.id,
		EntryID:    e.entryID,
		Kind:       e.kind,
		Name:       e.kind.Name(),
		ColorModes: e.kind.ColorModes(),
		Device:     e.device,
		State:      e.State(),
	}
}

func (e *Entity) stateLocked() State {
	st := State{On: e.on, Brightness: e.brightness}
	if e.kind == KindRGB {
		rgb := e.rgb
		st.RGB = &rgb
	}
	return st
}

// restore applies a persisted state. A zero brightness or a missing colour
// falls back to the defaults.
func (e *Entity) restore(st *store.LightState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st == nil {
		return
	}
	e.on = st.On
	if st.SavedBrightness != 0 {
		e.brightness = st.SavedBrightness
	}
	if st.SavedRGBColor != nil && e.kind == KindRGB {
		e.rgb = *st.SavedRGBColor
	}
}

// persisted returns the state to store for the next restore.
func (e *Entity) persisted() *store.LightState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &store.LightState{
		EntityID:        e.id,
		On:              e.on,
		SavedBrightness: e.brightness,
	}
	if e.kind == KindRGB {
		rgb := e.rgb
		st.SavedRGBColor = &rgb
	}
	return st
}

// turnOn updates the state and sends the scaled channel values. The
// transport error, already logged by the controller, does not roll back the
// state.
func (e *Entity) turnOn(ctx context.Context, p TurnOnParams) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnOnLocked(ctx, p)
}

func (e *Entity) turnOnLocked(ctx context.Context, p TurnOnParams) State {
	e.on = true
	if p.Brightness != nil {
		e.brightness = *p.Brightness
	}
	switch e.kind {
	case KindRGB:
		if p.RGB != nil {
			e.rgb = *p.RGB
		}
		ch := iluminize.ScaleRGB(iluminize.ApplyBrightness(e.rgb, e.brightness), e.maxRGB)
		_ = e.ctrl.SetRGB(ctx, ch[0], ch[1], ch[2])
	case KindWhite:
		_ = e.ctrl.SetWhite(ctx, iluminize.ScaleWhite(e.brightness, e.maxW))
	}
	return e.stateLocked()
}

// turnOff sends zero on the entity's channels. Brightness and colour are
// kept for the next turn-on.
func (e *Entity) turnOff(ctx context.Context) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnOffLocked(ctx)
}

// toggle reads and flips the on state under one lock.
func (e *Entity) toggle(ctx context.Context) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.on {
		return e.turnOffLocked(ctx)
	}
	return e.turnOnLocked(ctx, TurnOnParams{})
}

func (e *Entity) turnOffLocked(ctx context.Context) State {
	e.on = false
	switch e.kind {
	case KindRGB:
		_ = e.ctrl.SetRGB(ctx, 0, 0, 0)
	case KindWhite:
		_ = e.ctrl.SetWhite(ctx, 0)
	}
	return e.stateLocked()
}
