//go:build !no_automation

package automation

import (
	"context"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// clock is swapped in tests.
var clock = time.Now

// datetimeFields maps system.datetime components to their value.
var datetimeFields = map[string]func(time.Time) lua.LValue{
	"hour":      func(t time.Time) lua.LValue { return lua.LNumber(t.Hour()) },
	"minute":    func(t time.Time) lua.LValue { return lua.LNumber(t.Minute()) },
	"second":    func(t time.Time) lua.LValue { return lua.LNumber(t.Second()) },
	"weekday":   func(t time.Time) lua.LValue { return lua.LNumber(t.Weekday()) },
	"day":       func(t time.Time) lua.LValue { return lua.LNumber(t.Day()) },
	"month":     func(t time.Time) lua.LValue { return lua.LNumber(t.Month()) },
	"year":      func(t time.Time) lua.LValue { return lua.LNumber(t.Year()) },
	"timestamp": func(t time.Time) lua.LValue { return lua.LNumber(t.Unix()) },
	"time_str":  func(t time.Time) lua.LValue { return lua.LString(t.Format(time.TimeOnly)) },
	"date_str":  func(t time.Time) lua.LValue { return lua.LString(t.Format(time.DateOnly)) },
}

// registerSystemModule installs the `system` table: datetime, time_between
// and log.
func registerSystemModule(L *lua.LState, vm *scriptVM, e *Engine) {
	L.SetGlobal("system", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"datetime": func(L *lua.LState) int {
			name := L.CheckString(1)
			field, ok := datetimeFields[name]
			if !ok {
				L.ArgError(1, "unknown component: "+name)
				return 0
			}
			L.Push(field(clock()))
			return 1
		},
		"time_between": func(L *lua.LState) int {
			L.Push(lua.LBool(hourBetween(clock().Hour(), L.CheckInt(1), L.CheckInt(2))))
			return 1
		},
		"log": func(L *lua.LState) int {
			level, msg := L.CheckString(1), L.CheckString(2)
			if vm.logf != nil {
				vm.logf("[" + level + "] " + msg)
			}
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(level)); err != nil {
				lvl = slog.LevelInfo
			}
			e.logger.Log(context.Background(), lvl, "script log", "msg", msg)
			return 0
		},
	}))
}

// hourBetween reports whether hour lies in [from, to), wrapping midnight
// when from > to.
func hourBetween(hour, from, to int) bool {
	if from <= to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}
