//go:build !no_automation

package automation

import "errors"

// ErrNotFound is returned when a script does not exist.
var ErrNotFound = errors.New("script not found")

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// Script is a single automation script stored on disk.
type Script struct {
	ID       string     `json:"id"` // filename stem (no .lua)
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"` // Lua source without the metadata block
	FilePath string     `json:"-"`
}
