//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"amina-zigbee/internal/coordinator"
	"amina-zigbee/internal/store"
)

const maxHandlersPerScript = 100

// registerChargerModule registers the `charger` global table. A non-nil
// capture receives charger.log lines in addition to the engine log.
func registerChargerModule(L *lua.LState, vm *scriptVM, e *Engine, capture func(string)) {
	mod := L.NewTable()
	fns := map[string]lua.LGFunction{
		"on":       func(L *lua.LState) int { return chargerOn(L, vm) },
		"set":      func(L *lua.LState) int { return chargerSet(L, e) },
		"get":      func(L *lua.LState) int { return chargerGet(L, e) },
		"state":    func(L *lua.LState) int { return chargerState(L, e) },
		"property": func(L *lua.LState) int { return chargerProperty(L, e) },
		"after":    func(L *lua.LState) int { return chargerAfter(L, vm, e) },
		"devices":  func(L *lua.LState) int { return chargerDevices(L, e) },
		"log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			e.logger.Info("script log", "msg", msg)
			if capture != nil {
				capture(msg)
			}
			return 0
		},
	}
	for name, fn := range fns {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	L.SetGlobal("charger", mod)
}

// charger.on(type, [filter], callback)
func chargerOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	switch arg := L.Get(2).(type) {
	case *lua.LFunction:
		h.fn = arg
	case *lua.LTable:
		if v := arg.RawGetString("device"); v != lua.LNil {
			h.device = v.String()
		}
		if v := arg.RawGetString("property"); v != lua.LNil {
			h.property = v.String()
		}
		h.fn = L.CheckFunction(3)
	default:
		L.ArgError(2, "filter table or callback expected")
		return 0
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// pushResult pushes true, or false plus the error message.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// charger.set(target, key, value) or charger.set(target, {key = value, ...})
func chargerSet(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	values := make(map[string]any)
	if tbl, ok := L.Get(2).(*lua.LTable); ok {
		tbl.ForEach(func(k, v lua.LValue) {
			values[k.String()] = luaToGo(v)
		})
	} else {
		values[L.CheckString(2)] = luaToGo(L.Get(3))
	}

	dev := resolveDevice(e, target)
	if dev == nil {
		e.logger.Warn("device not found", "target", target)
		return pushResult(L, errDeviceNotFound(target))
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	err := e.coord.Apply(ctx, dev.IEEEAddress, values)
	if err != nil {
		e.logger.Warn("script set failed", "target", target, "err", err)
	}
	return pushResult(L, err)
}

// charger.get(target, key) requests a fresh read; the value arrives as a state_update.
func chargerGet(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	key := L.CheckString(2)

	dev := resolveDevice(e, target)
	if dev == nil {
		return pushResult(L, errDeviceNotFound(target))
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	_, err := e.coord.Get(ctx, dev.IEEEAddress, key)
	if err != nil {
		e.logger.Warn("script get failed", "target", target, "key", key, "err", err)
	}
	return pushResult(L, err)
}

// charger.state(target) returns the accumulated state table or nil.
func chargerState(L *lua.LState, e *Engine) int {
	dev := resolveDevice(e, L.CheckString(1))
	if dev == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, dev.State.Properties()))
	return 1
}

// charger.property(target, key) returns one state value or nil.
func chargerProperty(L *lua.LState, e *Engine) int {
	dev := resolveDevice(e, L.CheckString(1))
	key := L.CheckString(2)
	if dev == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, dev.State.Properties()[key]))
	return 1
}

// charger.after(seconds, callback)
func chargerAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
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
		case <-vm.ctx.Done():
		default:
			e.logger.Warn("after: command channel full")
		}
	}()
	return 0
}

// charger.devices() returns every known charger.
func chargerDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, dev := range e.coord.Devices() {
		d := L.NewTable()
		d.RawSetString("ieee", lua.LString(dev.IEEEAddress))
		d.RawSetString("name", lua.LString(dev.Name()))
		d.RawSetString("model", lua.LString(dev.Model))
		d.RawSetString("revision", lua.LString(dev.Revision))
		d.RawSetString("sw_build_id", lua.LString(dev.SoftwareBuild))
		tbl.RawSetInt(i+1, d)
	}
	L.Push(tbl)
	return 1
}

// resolveDevice finds a device by IEEE address or friendly name, ignoring case.
func resolveDevice(e *Engine, target string) *store.Device {
	if dev, err := e.coord.Device(target); err == nil {
		return dev
	}
	for _, dev := range e.coord.Devices() {
		if dev.FriendlyName != "" && strings.EqualFold(dev.FriendlyName, target) {
			return dev
		}
	}
	return nil
}

func errDeviceNotFound(target string) error {
	return fmt.Errorf("%w: %s", coordinator.ErrUnknownDevice, target)
}
