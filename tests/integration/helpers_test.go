package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/config"
	"github.com/any-hub/asset-hub/internal/proxy"
	"github.com/any-hub/asset-hub/internal/server"
	"github.com/any-hub/asset-hub/internal/server/routes"
)

type testService struct {
	app      *fiber.App
	registry *server.AreaRegistry
}

// newTestService 按 main 的装配顺序构建完整服务，但不监听端口。
func newTestService(t *testing.T, areas ...config.AreaConfig) *testService {
	t.Helper()
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      8000,
			StoragePath:     t.TempDir(),
			UpstreamTimeout: config.Duration(5 * time.Second),
		},
		Areas: areas,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := server.NewAreaRegistry(cfg, server.NewUpstreamClient(cfg))
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	loader := server.NewArchiveLoader(archive.NewFetcher(server.NewArchiveClient(cfg), logger), logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      proxy.NewHandler(logger),
		ListenPort: 8000,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterAreaRoutes(app, registry, loader)

	return &testService{app: app, registry: registry}
}

func (s *testService) do(t *testing.T, method, target string) (*http.Response, string) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}
