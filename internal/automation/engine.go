//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"amina-zigbee/internal/coordinator"
)

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a registered Lua callback for a specific event pattern.
type luaEventHandler struct {
	eventType string // "*" matches every event
	device    string // filter: IEEE address or friendly name (empty = any)
	property  string // filter: state_update must carry this key (empty = any)
	fn        *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
}

// Engine runs Lua scripts and dispatches coordinator events to them.
type Engine struct {
	coord   *coordinator.Coordinator
	manager *Manager
	logger  *slog.Logger
	timeout time.Duration // per charger operation
	clock   func() time.Time

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(coord *coordinator.Coordinator, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		coord:   coord,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		timeout: 10 * time.Second,
		clock:   time.Now,
		vms:     make(map[string]*scriptVM),
	}
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// Start subscribes to coordinator events and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.coord.Events().OnAll(e.dispatchEvent)

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

// Stop cancels all VMs and unsubscribes from events.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.logger.Info("automation engine stopped")
}

// Running reports whether a script VM is loaded.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vms[id]
	return ok
}

// ReloadScript stops the old VM (if any) and starts a new one when enabled.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return err
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
		return &RunResult{OK: false, Error: err.Error(), Duration: time.Since(start).String()}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a temporary VM with a 5s budget. Handlers the
// code registers are invoked once with a synthetic event carrying the current
// value of the filtered property.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}

	var (
		logs  []string
		logMu sync.Mutex
	)
	capture := func(line string) {
		logMu.Lock()
		logs = append(logs, line)
		logMu.Unlock()
	}
	registerChargerModule(L, vm, e, capture)
	registerSystemModule(L, e, capture)

	result := func(err error) *RunResult {
		r := &RunResult{OK: err == nil, Duration: time.Since(start).String()}
		if err != nil {
			r.Error = err.Error()
			if strings.Contains(r.Error, "context deadline exceeded") {
				r.Error = "timeout (5s)"
			}
		}
		logMu.Lock()
		r.Logs = append([]string(nil), logs...)
		logMu.Unlock()
		return r
	}

	if err := L.DoString(code); err != nil {
		e.logger.Warn("script run failed", "err", err)
		return result(err)
	}

	vm.mu.Lock()
	handlers := append([]luaEventHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, e.syntheticEvent(L, h)); err != nil {
			e.logger.Warn("script handler failed", "event", h.eventType, "err", err)
			return result(err)
		}
	}
	return result(nil)
}

func (e *Engine) syntheticEvent(L *lua.LState, h luaEventHandler) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("type", lua.LString(h.eventType))
	if h.device == "" {
		return tbl
	}
	dev, err := e.coord.Device(h.device)
	if err != nil {
		tbl.RawSetString("ieee", lua.LString(h.device))
		return tbl
	}
	tbl.RawSetString("ieee", lua.LString(dev.IEEEAddress))
	tbl.RawSetString("name", lua.LString(dev.Name()))
	props := dev.State.Properties()
	tbl.RawSetString("state", goToLua(L, props))
	if h.property != "" {
		tbl.RawSetString("property", lua.LString(h.property))
		tbl.RawSetString("value", goToLua(L, props[h.property]))
	}
	return tbl
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

// newSandbox returns a Lua state without file, process and module loading access.
func newSandbox() *lua.LState {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	L := newSandbox()

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerChargerModule(L, vm, e, nil)
	registerSystemModule(L, e, nil)

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("automation: execute script %s: %w", s.ID, err)
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

// dispatchEvent routes a coordinator event to all matching Lua handlers.
func (e *Engine) dispatchEvent(event coordinator.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	info := describe(event)
	for _, vm := range vms {
		vm.mu.Lock()
		handlers := append([]luaEventHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event.Type, info) {
				continue
			}
			fn, prop := h.fn, h.property
			select {
			case <-vm.ctx.Done():
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, fn, event.Type, info, prop) }:
			default:
				e.logger.Warn("script command channel full, dropping event", "event", event.Type)
			}
		}
	}
}

// eventInfo is the script-facing view of an event.
type eventInfo struct {
	ieee   string
	name   string
	fields map[string]any
	patch  map[string]any // state_update only
}

func describe(event coordinator.Event) eventInfo {
	switch d := event.Data.(type) {
	case coordinator.StateUpdate:
		patch := d.Patch.Properties()
		return eventInfo{
			ieee:  d.IEEE,
			name:  d.Name,
			patch: patch,
			fields: map[string]any{
				"ieee":     d.IEEE,
				"name":     d.Name,
				"revision": string(d.Revision),
				"state":    d.State.Properties(),
				"patch":    patch,
			},
		}
	case coordinator.DeviceEvent:
		fields := map[string]any{
			"ieee":     d.IEEE,
			"name":     d.Name,
			"model":    d.Model,
			"revision": string(d.Revision),
		}
		if d.Error != "" {
			fields["error"] = d.Error
		}
		return eventInfo{ieee: d.IEEE, name: d.Name, fields: fields}
	case string:
		return eventInfo{fields: map[string]any{"state": d}}
	}
	return eventInfo{fields: map[string]any{}}
}

func matchesHandler(h luaEventHandler, eventType string, info eventInfo) bool {
	if h.eventType != "*" && h.eventType != eventType {
		return false
	}
	if h.device != "" && h.device != info.ieee && !strings.EqualFold(h.device, info.name) {
		return false
	}
	if h.property != "" {
		if _, ok := info.patch[h.property]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, eventType string, info eventInfo, property string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	tbl := L.NewTable()
	tbl.RawSetString("type", lua.LString(eventType))
	for k, v := range info.fields {
		tbl.RawSetString(k, goToLua(L, v))
	}
	if property != "" {
		tbl.RawSetString("property", lua.LString(property))
		tbl.RawSetString("value", goToLua(L, info.patch[property]))
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl); err != nil {
		e.logger.Error("lua handler error", "event", eventType, "err", err)
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
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
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

// luaToGo converts a scalar Lua value to the Go shape set requests accept.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	}
	return nil
}
