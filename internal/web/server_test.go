package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"amina-zigbee/internal/automation"
	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/coordinator"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/store"
	"amina-zigbee/internal/zcl"
	"amina-zigbee/internal/zcl/clusters"
)

const testIEEE = "0x0C4314FFFE65A1B2"

var errLinkDown = errors.New("link down")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTransport struct {
	mu   sync.Mutex
	ops  []codec.Operation
	fail bool
}

func (f *fakeTransport) Send(_ context.Context, _ string, op codec.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errLinkDown
	}
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakeTransport) calls() []codec.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]codec.Operation(nil), f.ops...)
}

type fixture struct {
	srv       *Server
	coord     *coordinator.Coordinator
	transport *fakeTransport
	scripts   *automation.Manager
}

func newFixture(t *testing.T, opts ...ServerOption) *fixture {
	t.Helper()
	logger := testLogger()
	schemas, err := schema.Builtin(logger)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{transport: &fakeTransport{}}
	coord, err := coordinator.New(schemas, coordinator.BuiltinDevices(), st, coordinator.NewEventBus(logger),
		f.transport, coordinator.Config{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Stop)
	f.coord = coord

	if _, err := coord.HandleAnnounce(coordinator.Announce{
		IEEE:          testIEEE,
		Manufacturer:  coordinator.AminaManufacturer,
		Model:         coordinator.AminaModel,
		SoftwareBuild: "1.8.2",
	}); err != nil {
		t.Fatal(err)
	}

	f.scripts, err = automation.NewManager(filepath.Join(t.TempDir(), "scripts"), logger)
	if err != nil {
		t.Fatal(err)
	}
	engine := automation.NewEngine(coord, f.scripts, logger)
	t.Cleanup(engine.Stop)

	registry := zcl.NewRegistry(logger)
	clusters.Load(registry)

	opts = append([]ServerOption{WithAutomation(engine, f.scripts), WithClusters(registry), WithVersion("test")}, opts...)
	f.srv = NewServer(coord, logger, opts...)
	t.Cleanup(f.srv.Stop)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func TestAPIKeyRequired(t *testing.T) {
	f := newFixture(t, WithAPIKey("secret"))

	if w := f.do(t, "GET", "/api/devices", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}
	if w := f.do(t, "GET", "/api/devices", "", "X-API-Key", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}
	if w := f.do(t, "GET", "/api/devices", "", "X-API-Key", "secret"); w.Code != http.StatusOK {
		t.Errorf("good key: status = %d, want 200", w.Code)
	}
	if w := f.do(t, "GET", "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("/metrics: status = %d, want 200 without key", w.Code)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, WithAllowedOrigins([]string{"http://dash.local"}))

	tests := []struct {
		name   string
		method string
		origin string
		want   int
	}{
		{"preflight allowed", "OPTIONS", "http://dash.local", http.StatusNoContent},
		{"preflight denied", "OPTIONS", "http://evil.example", http.StatusForbidden},
		{"mutation from foreign origin", "DELETE", "http://evil.example", http.StatusForbidden},
		{"read from foreign origin", "GET", "http://evil.example", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/devices/" + testIEEE
			w := f.do(t, tt.method, path, "", "Origin", tt.origin)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "amina_devices") {
		t.Error("metrics output missing amina_devices")
	}
}

func TestAPIVersion(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/version", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"test"`) {
		t.Errorf("version: %d %s", w.Code, w.Body.String())
	}
}
