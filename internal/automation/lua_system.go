//go:build !no_automation

package automation

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// registerSystemModule registers the `system` global table in a Lua state.
func registerSystemModule(L *lua.LState, e *Engine, capture func(string)) {
	mod := L.NewTable()
	mod.RawSetString("datetime", L.NewFunction(func(L *lua.LState) int {
		return systemDatetime(L, e.now())
	}))
	mod.RawSetString("time_between", L.NewFunction(func(L *lua.LState) int {
		return systemTimeBetween(L, e.now())
	}))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return systemLog(L, e, capture)
	}))
	L.SetGlobal("system", mod)
}

// system.datetime(component) returns one component of the local time.
func systemDatetime(L *lua.LState, now time.Time) int {
	component := L.CheckString(1)
	switch component {
	case "hour":
		L.Push(lua.LNumber(now.Hour()))
	case "minute":
		L.Push(lua.LNumber(now.Minute()))
	case "second":
		L.Push(lua.LNumber(now.Second()))
	case "weekday":
		L.Push(lua.LNumber(now.Weekday()))
	case "day":
		L.Push(lua.LNumber(now.Day()))
	case "month":
		L.Push(lua.LNumber(now.Month()))
	case "year":
		L.Push(lua.LNumber(now.Year()))
	case "timestamp":
		L.Push(lua.LNumber(now.Unix()))
	case "time_str":
		L.Push(lua.LString(now.Format("15:04:05")))
	case "date_str":
		L.Push(lua.LString(now.Format("2006-01-02")))
	default:
		L.ArgError(1, "unknown component: "+component)
		return 0
	}
	return 1
}

// clockArg reads an hour (22) or a "HH:MM" string as minutes after midnight.
func clockArg(L *lua.LState, n int) int {
	switch v := L.Get(n).(type) {
	case lua.LNumber:
		h := int(v)
		if h < 0 || h > 24 {
			L.ArgError(n, "hour must be 0-24")
		}
		return h * 60
	case lua.LString:
		var h, m int
		if _, err := fmt.Sscanf(string(v), "%d:%d", &h, &m); err != nil || h < 0 || h > 24 || m < 0 || m > 59 {
			L.ArgError(n, "time must be HH:MM")
		}
		return h*60 + m
	}
	L.ArgError(n, "hour or HH:MM expected")
	return 0
}

// system.time_between(from, to) reports whether the local time is in [from, to).
// A window whose end is before its start wraps midnight, as off-peak tariffs do.
func systemTimeBetween(L *lua.LState, now time.Time) int {
	from := clockArg(L, 1)
	to := clockArg(L, 2)
	cur := now.Hour()*60 + now.Minute()

	var in bool
	if from <= to {
		in = cur >= from && cur < to
	} else {
		in = cur >= from || cur < to
	}
	L.Push(lua.LBool(in))
	return 1
}

// system.log(level, msg)
func systemLog(L *lua.LState, e *Engine, capture func(string)) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	if capture != nil {
		capture("[" + level + "] " + msg)
	}

	switch level {
	case "debug":
		e.logger.Debug("script log", "msg", msg)
	case "warn":
		e.logger.Warn("script log", "msg", msg)
	case "error":
		e.logger.Error("script log", "msg", msg)
	default:
		e.logger.Info("script log", "msg", msg)
	}
	return 0
}
