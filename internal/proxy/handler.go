package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/asset"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/logging"
	"github.com/any-hub/asset-hub/internal/server"
)

// Handler 把 area 的解析结果渲染成 HTTP 响应：命中时流式输出正文并补齐头部，
// 未命中与失败时输出 JSON 错误，并为每个请求写一条结构化日志。
type Handler struct {
	logger *logrus.Logger
}

// NewHandler constructs a handler that renders resolver results.
func NewHandler(logger *logrus.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle 解析请求路径并输出结果。
func (h *Handler) Handle(c fiber.Ctx, route *server.AreaRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	clean, ok := asset.CleanPath(server.AssetPath(c))
	if !ok {
		h.logResult(route, server.AssetPath(c), requestID, asset.Result{Outcome: asset.Miss}, fiber.StatusNotFound, started, nil)
		return h.writeError(c, fiber.StatusNotFound, "not_found")
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := route.Resolver.Resolve(ctx, clean)
	switch result.Outcome {
	case asset.Hit:
		return h.serveAsset(c, route, clean, requestID, result, started)
	case asset.Miss:
		h.logResult(route, clean, requestID, result, fiber.StatusNotFound, started, nil)
		return h.writeError(c, fiber.StatusNotFound, "not_found")
	default:
		status, code := classifyError(result.Err)
		h.logResult(route, clean, requestID, result, status, started, result.Err)
		return h.writeError(c, status, code)
	}
}

func (h *Handler) serveAsset(
	c fiber.Ctx,
	route *server.AreaRoute,
	clean string,
	requestID string,
	result asset.Result,
	started time.Time,
) error {
	a := result.Asset
	applyAssetHeaders(c, a)
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		a.Body.Close()
		if a.Size >= 0 {
			c.Response().Header.SetContentLength(int(a.Size))
		}
		h.logResult(route, clean, requestID, result, fiber.StatusOK, started, nil)
		return nil
	}

	size := -1
	if a.Size >= 0 {
		size = int(a.Size)
	}
	// fasthttp 在写完后负责关闭 Body。
	c.Response().SetBodyStream(a.Body, size)
	h.logResult(route, clean, requestID, result, fiber.StatusOK, started, nil)
	return nil
}

// applyAssetHeaders 设置媒体类型、预压缩编码、跨源隔离与强制回源校验头。
func applyAssetHeaders(c fiber.Ctx, a *asset.Asset) {
	c.Set(fiber.HeaderContentType, a.ContentType)
	if a.ContentEncoding != "" {
		c.Set(fiber.HeaderContentEncoding, a.ContentEncoding)
	}
	if a.ContentType == "text/html" {
		c.Set("Cross-Origin-Opener-Policy", "same-origin")
		c.Set("Cross-Origin-Embedder-Policy", "require-corp")
	}
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if !a.ModTime.IsZero() {
		c.Set(fiber.HeaderLastModified, a.ModTime.UTC().Format(http.TimeFormat))
	}
	c.Set("X-Asset-Hub-Tier", string(a.Tier))
}

// classifyError 把解析失败映射到状态码：超时为 504，源站非 200 视为不存在，
// 其余传输失败为 502，剩下的是本地 IO 错误。
func classifyError(err error) (int, string) {
	if isTimeout(err) {
		return fiber.StatusGatewayTimeout, "upstream_timeout"
	}
	var fetchErr *cache.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.StatusCode != 0 {
			return fiber.StatusNotFound, "not_found"
		}
		return fiber.StatusBadGateway, "upstream_failed"
	}
	return fiber.StatusInternalServerError, "local_io_error"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	route *server.AreaRoute,
	clean string,
	requestID string,
	result asset.Result,
	status int,
	started time.Time,
	err error,
) {
	tier := ""
	if result.Asset != nil {
		tier = string(result.Asset.Tier)
	}
	fields := logging.RequestFields(route.Config.Name, string(route.Mode), clean, tier, result.Outcome.String())
	fields["action"] = "serve"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if result.Asset != nil && result.Asset.Size >= 0 {
		fields["bytes"] = result.Asset.Size
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if route.UpstreamURL != nil && (tier == string(asset.TierOrigin) || err != nil) {
		fields["upstream_host"] = route.UpstreamURL.Host
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("asset_failed")
		return
	}
	h.logger.WithFields(fields).Info("asset_served")
}
