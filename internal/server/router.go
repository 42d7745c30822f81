package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component responsible for rendering an area
// request. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, *AreaRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *AreaRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *AreaRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *AreaRegistry
	Proxy      ProxyHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_assethub_route"
	contextKeyAssetPath = "_assethub_asset_path"
	contextKeyRequestID = "_assethub_request_id"
)

// NewApp builds a Fiber application with path-prefix area routing and
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("area registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderAreaUnmapped(c, opts.Logger, "")
		}
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			c.Set(fiber.HeaderAllow, "GET, HEAD")
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"error": "method_not_allowed",
			})
		}
		return opts.Proxy.Handle(c, route)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于路径首段查找 AreaRoute。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}

		name, rest := splitAreaPath(string(c.Request().URI().Path()))
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderAreaUnmapped(c, opts.Logger, name)
		}

		c.Locals(contextKeyRoute, route)
		c.Locals(contextKeyAssetPath, rest)
		return c.Next()
	}
}

func renderAreaUnmapped(c fiber.Ctx, logger *logrus.Logger, area string) error {
	logger.WithFields(logrus.Fields{
		"action": "area_lookup",
		"area":   area,
		"path":   string(c.Request().URI().Path()),
	}).Warn("area_unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "area_unmapped",
	})
}

// splitAreaPath 把 /vcsky/a/b.wasm 拆成 ("vcsky", "a/b.wasm")。
func splitAreaPath(raw string) (string, string) {
	trimmed := strings.TrimLeft(raw, "/")
	name, rest, _ := strings.Cut(trimmed, "/")
	return name, rest
}

func getRouteFromContext(c fiber.Ctx) (*AreaRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*AreaRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// AssetPath returns the area-relative path captured by the router middleware.
func AssetPath(c fiber.Ctx) string {
	if value := c.Locals(contextKeyAssetPath); value != nil {
		if p, ok := value.(string); ok {
			return p
		}
	}
	return ""
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
