package web

import (
	"net/http"
	"strings"
	"testing"

	"amina-zigbee/internal/automation"
)

func TestAPIAutomationLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/automations",
		`{"name":"Night limit","lua_code":"charger.log(\"loaded\")","enabled":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", w.Code, w.Body.String())
	}
	created := decode[automation.Script](t, w.Body.Bytes())
	if created.ID != "night_limit" || !created.Meta.Enabled {
		t.Fatalf("created = %+v", created)
	}
	if !f.srv.autoEngine.Running(created.ID) {
		t.Error("enabled script not started")
	}

	w = f.do(t, "GET", "/api/automations", "")
	if list := decode[[]automation.Script](t, w.Body.Bytes()); len(list) != 1 {
		t.Errorf("list = %d scripts, want 1", len(list))
	}

	w = f.do(t, "POST", "/api/automations/"+created.ID+"/toggle", "")
	if toggled := decode[automation.Script](t, w.Body.Bytes()); toggled.Meta.Enabled {
		t.Error("toggle left script enabled")
	}
	if f.srv.autoEngine.Running(created.ID) {
		t.Error("disabled script still running")
	}

	w = f.do(t, "PUT", "/api/automations/"+created.ID,
		`{"name":"Night limit","lua_code":"charger.log(\"v2\")","enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d", w.Code)
	}
	got, err := f.scripts.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.LuaCode, "v2") {
		t.Errorf("lua code = %q", got.LuaCode)
	}

	if w := f.do(t, "DELETE", "/api/automations/"+created.ID, ""); w.Code != http.StatusOK {
		t.Errorf("delete: status = %d", w.Code)
	}
	if w := f.do(t, "GET", "/api/automations/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", w.Code)
	}
	if w := f.do(t, "DELETE", "/api/automations/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestAPICreateAutomationValidation(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, "POST", "/api/automations", `{"lua_code":"x = 1"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", w.Code)
	}
	if w := f.do(t, "POST", "/api/automations", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", w.Code)
	}
}

func TestAPIRunInline(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/automations/_inline/run",
		`{"lua_code":"charger.set(\"`+testIEEE+`\", \"charge_limit\", 12)\ncharger.log(\"done\")"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[automation.RunResult](t, w.Body.Bytes())
	if !res.OK || len(res.Logs) != 1 || res.Logs[0] != "done" {
		t.Errorf("result = %+v", res)
	}
	if len(f.transport.calls()) != 1 {
		t.Errorf("ops = %d, want 1", len(f.transport.calls()))
	}
}

func TestAPIRunMissingScript(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "POST", "/api/automations/nothing/run", "")
	res := decode[automation.RunResult](t, w.Body.Bytes())
	if res.OK || res.Error == "" {
		t.Errorf("result = %+v, want error", res)
	}
}
