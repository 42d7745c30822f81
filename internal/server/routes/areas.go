package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/asset"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/server"
)

// ArchiveRefresher 重新加载某个 area 的归档，由 server.ArchiveLoader 实现。
type ArchiveRefresher interface {
	Load(ctx context.Context, route *server.AreaRoute) error
}

// RegisterAreaRoutes 暴露 /-/areas 诊断接口、缓存清除接口与归档刷新接口。refresher 为 nil 时不注册刷新接口。
func RegisterAreaRoutes(app *fiber.App, registry *server.AreaRegistry, refresher ArchiveRefresher) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/areas", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"areas": encodeAreas(registry.List()),
		})
	})

	app.Get("/-/areas/:name", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return renderAreaNotFound(c)
		}
		return c.JSON(encodeArea(route))
	})

	app.Delete("/-/areas/:name/cache/*", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return renderAreaNotFound(c)
		}
		if route.Store == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "cache_not_configured"})
		}
		clean, ok := asset.CleanPath(c.Params("*"))
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_path"})
		}
		if err := route.Store.Remove(c.Context(), clean); err != nil {
			if errors.Is(err, cache.ErrInvalidKey) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_path"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_remove_failed"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	if refresher == nil {
		return
	}

	app.Post("/-/areas/:name/refresh", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return renderAreaNotFound(c)
		}
		if !route.HasArchive() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "archive_not_configured"})
		}
		if err := refresher.Load(c.Context(), route); err != nil {
			status := fiber.StatusBadGateway
			code := "archive_refresh_failed"
			if errors.Is(err, archive.ErrCorruptArchive) {
				status = fiber.StatusUnprocessableEntity
				code = "archive_corrupt"
			}
			return c.Status(status).JSON(fiber.Map{"error": code, "detail": err.Error()})
		}
		return c.JSON(encodeArea(route))
	})
}

func renderAreaNotFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "area_not_found"})
}

type areaPayload struct {
	Name     string          `json:"name"`
	Mode     string          `json:"mode"`
	Upstream string          `json:"upstream,omitempty"`
	LocalDir string          `json:"local_dir,omitempty"`
	Archive  *archivePayload `json:"archive,omitempty"`
}

type archivePayload struct {
	Manifest    string `json:"manifest"`
	Blob        string `json:"blob"`
	Compression string `json:"compression"`
	Initialized bool   `json:"initialized"`
	Entries     int    `json:"entries"`
	TotalSize   uint64 `json:"total_size"`
}

func encodeAreas(routes []*server.AreaRoute) []areaPayload {
	if len(routes) == 0 {
		return nil
	}
	result := make([]areaPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeArea(route))
	}
	return result
}

func encodeArea(route *server.AreaRoute) areaPayload {
	payload := areaPayload{
		Name:     route.Config.Name,
		Mode:     string(route.Mode),
		Upstream: route.Config.Upstream,
	}
	if route.Store != nil {
		payload.LocalDir = route.Store.Root()
	}
	if route.HasArchive() {
		ap := &archivePayload{
			Manifest:    route.Archive.Manifest,
			Blob:        route.Archive.Blob,
			Compression: archive.CompressionForName(route.Archive.Blob).String(),
		}
		if reader, ok := route.Holder.Load(); ok {
			ap.Initialized = true
			ap.Entries = reader.Index().Len()
			ap.TotalSize = reader.Index().TotalSize()
		}
		payload.Archive = ap
	}
	return payload
}
