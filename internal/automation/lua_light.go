//go:build !no_automation

package automation

import (
	"context"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/light"
)

const (
	maxHandlersPerScript = 100
	commandTimeout       = 5 * time.Second
)

// registerLightModule registers the `light` global table in a Lua state.
func registerLightModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	fns := map[string]lua.LGFunction{
		"on":       func(L *lua.LState) int { return lightOn(L, vm) },
		"turn_on":  func(L *lua.LState) int { return lightTurnOn(L, e) },
		"turn_off": func(L *lua.LState) int { return lightSwitch(L, e, L.CheckString(1), e.lights.TurnOff) },
		"toggle":   func(L *lua.LState) int { return lightSwitch(L, e, L.CheckString(1), e.lights.Toggle) },
		"state":    func(L *lua.LState) int { return lightState(L, e) },
		"lights":   func(L *lua.LState) int { return lightList(L, e) },
		"after":    func(L *lua.LState) int { return lightAfter(L, vm, e) },
		"log":      func(L *lua.LState) int { return lightLog(L, vm, e) },
	}
	for name, fn := range fns {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	L.SetGlobal("light", mod)
}

// light.on(type, filter, callback); filter may hold entity and entry.
// A type of "*" matches every event.
func lightOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	fnArg := 2
	if filter, ok := L.Get(2).(*lua.LTable); ok {
		if v := filter.RawGetString("entity"); v != lua.LNil {
			h.entity = v.String()
		}
		if v := filter.RawGetString("entry"); v != lua.LNil {
			h.entry = v.String()
		}
		fnArg = 3
	}
	h.fn = L.CheckFunction(fnArg)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// resolveEntity matches an entity id, or a "<device> <kind>" name such as
// "Kitchen Color", case-insensitively.
func resolveEntity(e *Engine, target string) (string, bool) {
	if _, err := e.lights.Entity(target); err == nil {
		return target, true
	}
	for _, info := range e.lights.Entities() {
		if strings.EqualFold(info.Device.Name+" "+info.Name, target) {
			return info.EntityID, true
		}
	}
	return "", false
}

// light.turn_on(target [, {brightness = 0-255, rgb = {r, g, b}}])
func lightTurnOn(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	var p light.TurnOnParams
	if opts, ok := L.Get(2).(*lua.LTable); ok {
		if n, ok := opts.RawGetString("brightness").(lua.LNumber); ok {
			v := iluminize.ClampByte(float64(n))
			p.Brightness = &v
		}
		if t, ok := opts.RawGetString("rgb").(*lua.LTable); ok {
			var rgb [3]uint8
			for i := range rgb {
				n, _ := t.RawGetInt(i + 1).(lua.LNumber)
				rgb[i] = iluminize.ClampByte(float64(n))
			}
			p.RGB = &rgb
		}
	}

	return lightSwitch(L, e, target, func(ctx context.Context, id string) (light.State, error) {
		return e.lights.TurnOn(ctx, id, p)
	})
}

// lightSwitch resolves target and runs op on it.
func lightSwitch(L *lua.LState, e *Engine, target string, op func(context.Context, string) (light.State, error)) int {
	id, ok := resolveEntity(e, target)
	if !ok {
		e.logger.Warn("light not found", "target", target)
		L.Push(lua.LFalse)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := op(ctx, id); err != nil {
		e.logger.Warn("light command", "entity", id, "err", err)
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}

// light.state(target) returns {on, brightness, rgb} or nil.
func lightState(L *lua.LState, e *Engine) int {
	id, ok := resolveEntity(e, L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	info, err := e.lights.Entity(id)
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(stateTable(L, info.State))
	return 1
}

func stateTable(L *lua.LState, st light.State) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("on", lua.LBool(st.On))
	t.RawSetString("brightness", lua.LNumber(st.Brightness))
	if st.RGB != nil {
		rgb := L.NewTable()
		for i, c := range st.RGB {
			rgb.RawSetInt(i+1, lua.LNumber(c))
		}
		t.RawSetString("rgb", rgb)
	}
	return t
}

// light.lights() returns a list of all entities.
func lightList(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, info := range e.lights.Entities() {
		d := L.NewTable()
		d.RawSetString("entity_id", lua.LString(info.EntityID))
		d.RawSetString("entry_id", lua.LString(info.EntryID))
		d.RawSetString("kind", lua.LString(info.Kind))
		d.RawSetString("name", lua.LString(info.Device.Name+" "+info.Name))
		d.RawSetString("state", stateTable(L, info.State))
		tbl.RawSetInt(i+1, d)
	}
	L.Push(tbl)
	return 1
}

// light.after(seconds, callback) runs callback on the script's VM later.
func lightAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()
	return 0
}

// light.log(msg)
func lightLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.logf != nil {
		vm.logf(msg)
	}
	e.logger.Info("script log", "msg", msg)
	return 0
}
