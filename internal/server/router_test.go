package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/config"
)

func TestRouterRoutesRequestByAreaPrefix(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "http://localhost/vcsky/fetched/data/x.bin", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}

	if app.storage.routeName != "vcsky" {
		t.Fatalf("expected vcsky route, got %s", app.storage.routeName)
	}
	if app.storage.assetPath != "fetched/data/x.bin" {
		t.Fatalf("unexpected asset path %q", app.storage.assetPath)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterReturns404WhenAreaUnknown(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "http://localhost/unknown/a.txt", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"area_unmapped"`)) {
		t.Fatalf("expected area_unmapped error, got %s", string(body))
	}
	if app.storage.routeName != "" {
		t.Fatalf("proxy must not be invoked for unknown areas")
	}
}

func TestRouterRejectsWriteMethods(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("PUT", "http://localhost/vcsky/a.txt", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusMethodNotAllowed {
		t.Fatalf("expected 405 status, got %d", resp.StatusCode)
	}
}

func TestSplitAreaPath(t *testing.T) {
	cases := map[string][2]string{
		"/vcsky/a/b.wasm": {"vcsky", "a/b.wasm"},
		"/vcsky":          {"vcsky", ""},
		"//vcbr/x":        {"vcbr", "x"},
		"/":               {"", ""},
	}
	for in, want := range cases {
		name, rest := splitAreaPath(in)
		if name != want[0] || rest != want[1] {
			t.Fatalf("splitAreaPath(%q) = %q, %q", in, name, rest)
		}
	}
}

type testApp struct {
	*fiber.App
	storage *proxyRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	registry, err := NewAreaRegistry(testConfig(t), nil)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	if _, ok := registry.Lookup("vcsky"); !ok {
		t.Fatalf("registry lookup failed for vcsky")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      recorder,
		ListenPort: 8000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, storage: recorder}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Global: config.GlobalConfig{ListenPort: 8000},
		Areas: []config.AreaConfig{
			{
				Name:     "vcsky",
				Mode:     config.ModeSmart,
				Upstream: "https://cdn.dos.zone/vcsky/",
				LocalDir: t.TempDir(),
			},
		},
	}
}

type proxyRecorder struct {
	lastRoute *AreaRoute
	routeName string
	assetPath string
}

func (p *proxyRecorder) Handle(c fiber.Ctx, route *AreaRoute) error {
	p.lastRoute = route
	p.routeName = route.Config.Name
	p.assetPath = AssetPath(c)
	return c.SendStatus(fiber.StatusNoContent)
}
