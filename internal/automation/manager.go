//go:build !no_automation

package automation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	metaOpen  = "--[[meta\n"
	metaClose = "\n]]"
)

// validScriptID checks that a script ID is safe to use as a filename component.
func validScriptID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\") && !strings.Contains(id, "..")
}

// Manager loads, saves and lists automation scripts kept as .lua files.
// Metadata lives in a leading YAML comment block:
//
//	--[[meta
//	name: Evening
//	enabled: true
//	]]
type Manager struct {
	dir string
	mu  sync.RWMutex
}

// NewManager creates a script manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// List returns all scripts in the directory sorted by ID. Malformed files
// are skipped.
func (m *Manager) List() ([]*Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var scripts []*Script
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		s, err := readScript(filepath.Join(m.dir, e.Name()))
		if err != nil {
			continue
		}
		scripts = append(scripts, s)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].ID < scripts[j].ID })
	return scripts, nil
}

// Get returns a single script by ID.
func (m *Manager) Get(id string) (*Script, error) {
	if !validScriptID(id) {
		return nil, fmt.Errorf("invalid script id: %q", id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := readScript(m.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, err
}

// Save writes a script to disk. A script without an ID gets one derived
// from its name, made unique within the directory.
func (m *Manager) Save(s *Script) (*Script, error) {
	if s.ID != "" && !validScriptID(s.ID) {
		return nil, fmt.Errorf("invalid script id: %q", s.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = m.freeID(slugify(s.Meta.Name))
	}

	data, err := encodeScript(s)
	if err != nil {
		return nil, err
	}
	s.FilePath = m.path(s.ID)
	if err := os.WriteFile(s.FilePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	return s, nil
}

// Delete removes a script file by ID.
func (m *Manager) Delete(id string) error {
	if !validScriptID(id) {
		return fmt.Errorf("invalid script id: %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".lua")
}

func (m *Manager) freeID(base string) string {
	if base == "" {
		base = "script"
	}
	id := base
	for i := 1; ; i++ {
		if _, err := os.Stat(m.path(id)); errors.Is(err, fs.ErrNotExist) {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

func readScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := decodeScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.ID = strings.TrimSuffix(filepath.Base(path), ".lua")
	s.FilePath = path
	return s, nil
}

// decodeScript splits a file into its metadata block and Lua code.
func decodeScript(data []byte) (*Script, error) {
	s := &Script{}
	content := string(data)

	if rest, ok := strings.CutPrefix(content, metaOpen); ok {
		end := strings.Index(rest, metaClose)
		if end < 0 {
			return nil, errors.New("unclosed metadata block")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &s.Meta); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
		content = rest[end+len(metaClose):]
	}

	s.LuaCode = strings.TrimLeft(content, "\r\n")
	return s, nil
}

func encodeScript(s *Script) ([]byte, error) {
	meta, err := yaml.Marshal(s.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	var b strings.Builder
	b.WriteString(metaOpen)
	b.Write(meta)
	b.WriteString("]]\n")
	if s.LuaCode != "" {
		b.WriteString("\n")
		b.WriteString(s.LuaCode)
		if !strings.HasSuffix(s.LuaCode, "\n") {
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
