package store

import "time"

// Entry is a persisted controller configuration.
type Entry struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	UniqueID  string       `json:"unique_id"`
	Data      EntryData    `json:"data"`
	Options   EntryOptions `json:"options"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EntryData is fixed when the entry is created.
type EntryData struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Sender string `json:"sender"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

// EntryOptions can be changed after creation; changing them reloads the entry.
type EntryOptions struct {
	MaxRGB string `json:"max_rgb,omitempty"`
	MaxW   string `json:"max_w,omitempty"`
}

// LightState is the last known state of a light entity, used to restore it
// on the next start.
type LightState struct {
	EntityID        string    `json:"entity_id"`
	On              bool      `json:"on"`
	SavedBrightness uint8     `json:"saved_brightness"`
	SavedRGBColor   *[3]uint8 `json:"saved_rgb_color,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
