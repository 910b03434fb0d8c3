//go:build !no_automation

package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"iluminize-go-home/internal/light"
)

const runTimeout = 5 * time.Second

// Lights is the light manager as seen by scripts.
type Lights interface {
	Bus() *light.EventBus
	Entities() []light.EntityInfo
	Entity(id string) (light.EntityInfo, error)
	TurnOn(ctx context.Context, id string, p light.TurnOnParams) (light.State, error)
	TurnOff(ctx context.Context, id string) (light.State, error)
	Toggle(ctx context.Context, id string) (light.State, error)
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a registered Lua callback for an event type.
type luaEventHandler struct {
	eventType string
	entity    string // only match this entity id (empty = any)
	entry     string // only match this entry id (empty = any)
	fn        *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers

	// logf receives light.log and system.log output in addition to the
	// engine logger; set for one-shot runs.
	logf func(string)
}

// Engine runs enabled scripts and dispatches light events to them.
type Engine struct {
	lights  Lights
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(lights Lights, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		lights:  lights,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to the event bus and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.lights.Bus().OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", n)
}

// Stop cancels all VMs and unsubscribes from the bus.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.mu.Unlock()

	e.logger.Info("automation engine stopped")
}

// Running reports whether a script has a live VM.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vms[id]
	return ok
}

// ReloadScript stops the old VM, if any, and starts a new one when the
// script is enabled.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script once in a temporary VM.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{Error: err.Error(), Duration: time.Since(start).String()}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a temporary VM and captures its log output.
// Handlers registered with light.on are invoked once with a synthetic
// event so their actions run too.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var (
		logs  []string
		logMu sync.Mutex
	)
	vm := &scriptVM{
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		logf: func(msg string) {
			logMu.Lock()
			logs = append(logs, msg)
			logMu.Unlock()
		},
	}
	L := e.newState(vm)
	defer L.Close()
	L.SetContext(ctx)

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		r := &RunResult{OK: err == nil, Logs: append([]string(nil), logs...), Duration: time.Since(start).String()}
		if err != nil {
			r.Error = err.Error()
			if strings.Contains(r.Error, "context deadline exceeded") {
				r.Error = "timeout (" + runTimeout.String() + ")"
			}
			e.logger.Warn("script run failed", "err", r.Error)
		}
		return r
	}

	if err := L.DoString(code); err != nil {
		return result(err)
	}

	vm.mu.Lock()
	handlers := append([]luaEventHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		ev := L.NewTable()
		ev.RawSetString("type", lua.LString(h.eventType))
		if h.entity != "" {
			ev.RawSetString("entity_id", lua.LString(h.entity))
		}
		if h.entry != "" {
			ev.RawSetString("entry_id", lua.LString(h.entry))
		}
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
			return result(err)
		}
	}
	return result(nil)
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

// newState creates a sandboxed Lua state with the light and system modules.
func (e *Engine) newState(vm *scriptVM) *lua.LState {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	registerLightModule(L, vm, e)
	registerSystemModule(L, vm, e)
	return L
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	vm := &scriptVM{
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	L := e.newState(vm)

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent queues matching Lua handlers on their VM's command loop.
func (e *Engine) dispatchEvent(event light.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	fields := eventFields(event)
	for _, vm := range vms {
		vm.mu.Lock()
		handlers := append([]luaEventHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event.Type, fields) {
				continue
			}
			fn := h.fn
			select {
			case <-vm.ctx.Done():
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, fn, fields) }:
			default:
				e.logger.Warn("script command channel full, dropping event", "type", event.Type)
			}
		}
	}
}

// eventFields flattens an event into the table handed to Lua handlers,
// using the JSON shape of its data.
func eventFields(event light.Event) map[string]any {
	fields := map[string]any{}
	if data, err := json.Marshal(event.Data); err == nil {
		var m map[string]any
		if json.Unmarshal(data, &m) == nil {
			fields = m
		}
	}
	if _, ok := fields["entry_id"]; !ok && event.Type != light.EventStateChanged {
		if id, ok := fields["id"]; ok {
			fields["entry_id"] = id
		}
	}
	fields["type"] = event.Type
	return fields
}

func matchesHandler(h luaEventHandler, eventType string, fields map[string]any) bool {
	if h.eventType != "*" && h.eventType != eventType {
		return false
	}
	if h.entity != "" {
		if id, _ := fields["entity_id"].(string); id != h.entity {
			return false
		}
	}
	if h.entry != "" {
		if id, _ := fields["entry_id"].(string); id != h.entry {
			return false
		}
	}
	return true
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, goToLua(L, fields)); err != nil {
		e.logger.Error("lua handler error", "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
