package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/asset"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/config"
)

// AreaRoute 将 Area 配置与派生对象（解析后的 Upstream、缓存目录、归档快照、Resolver）
// 聚合在一起，供路由/渲染层直接复用，避免重复解析配置。
type AreaRoute struct {
	// Config 是用户在 config.toml 中声明的 Area 字段副本。
	Config config.AreaConfig
	Mode   asset.Mode
	// UpstreamURL 为解析后的源站地址，日志里用它的 Host 标识回源目标。
	UpstreamURL *url.URL
	// Store 为 nil 表示该 area 不使用本地目录（packed/proxy）。
	Store cache.Store
	// Archive/Holder 仅在配置了归档时非空。
	Archive  archive.Source
	Holder   *archive.Holder
	Resolver asset.Resolver

	refreshMu sync.Mutex
}

// HasArchive 表示该 area 是否有打包层。
func (r *AreaRoute) HasArchive() bool {
	return r.Holder != nil
}

// AreaRegistry 提供 area 名称到 AreaRoute 的查询能力。
type AreaRegistry struct {
	routes  map[string]*AreaRoute
	ordered []*AreaRoute
}

// NewAreaRegistry 根据配置构建全部 area。client 用于回源，应在启动阶段创建一次并复用。
func NewAreaRegistry(cfg *config.Config, client *http.Client) (*AreaRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &AreaRegistry{
		routes: make(map[string]*AreaRoute, len(cfg.Areas)),
	}

	for _, area := range cfg.Areas {
		if _, exists := registry.routes[area.Name]; exists {
			return nil, fmt.Errorf("duplicate area %s", area.Name)
		}

		route, err := buildAreaRoute(area, client)
		if err != nil {
			return nil, err
		}

		registry.routes[area.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 area 名称查找 AreaRoute。
func (r *AreaRegistry) Lookup(name string) (*AreaRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回按配置顺序排列的 AreaRoute，用于诊断接口与启动时的归档加载。
func (r *AreaRegistry) List() []*AreaRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*AreaRoute(nil), r.ordered...)
}

func buildAreaRoute(area config.AreaConfig, client *http.Client) (*AreaRoute, error) {
	mode, err := asset.ParseMode(area.Mode)
	if err != nil {
		return nil, fmt.Errorf("area %s: %w", area.Name, err)
	}

	route := &AreaRoute{
		Config:  area,
		Mode:    mode,
		Archive: archive.Source{Manifest: area.ArchiveManifest, Blob: area.ArchiveBlob},
	}

	if area.Upstream != "" {
		route.UpstreamURL, err = url.Parse(area.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream for area %s: %w", area.Name, err)
		}
	}

	opts := asset.Options{
		Client:   client,
		Upstream: area.Upstream,
	}
	if mode == asset.ModeLocal || mode == asset.ModeSmart {
		store, err := cache.NewStore(area.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("area %s: %w", area.Name, err)
		}
		route.Store = store
		opts.Store = store
		opts.Filler = cache.NewFiller(client, store)
	}
	if route.Archive.Enabled() {
		route.Holder = &archive.Holder{}
		opts.Holder = route.Holder
	}

	route.Resolver, err = asset.New(mode, opts)
	if err != nil {
		return nil, fmt.Errorf("area %s: %w", area.Name, err)
	}
	return route, nil
}
