package asset

import (
	"errors"
	"net/http"
	"strings"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/cache"
)

// Options 汇集各层依赖。Holder 为 nil 表示该 area 没有打包层。
type Options struct {
	Store    cache.Store
	Filler   *cache.Filler
	Client   *http.Client
	Upstream string
	Holder   *archive.Holder
}

// New 根据 mode 组装 Resolver。除 packed 模式外，配置了 Holder 时会在最前面叠加打包层。
func New(mode Mode, opts Options) (Resolver, error) {
	var base Resolver
	switch mode {
	case ModePacked:
		if opts.Holder == nil {
			return nil, errors.New("packed mode requires an archive holder")
		}
		return &packedResolver{holder: opts.Holder}, nil
	case ModeLocal:
		if opts.Store == nil {
			return nil, errors.New("local mode requires a cache store")
		}
		base = &localResolver{store: opts.Store}
	case ModeSmart:
		if opts.Filler == nil || opts.Upstream == "" {
			return nil, errors.New("smart mode requires a filler and upstream")
		}
		base = &smartResolver{
			local:    localResolver{store: opts.Filler.Store()},
			filler:   opts.Filler,
			upstream: opts.Upstream,
		}
	case ModeProxy:
		if opts.Upstream == "" {
			return nil, errors.New("proxy mode requires an upstream")
		}
		client := opts.Client
		if client == nil {
			client = http.DefaultClient
		}
		base = &proxyResolver{client: client, upstream: opts.Upstream}
	default:
		return nil, errors.New("unknown mode " + string(mode))
	}

	if opts.Holder != nil {
		return &packedResolver{holder: opts.Holder, next: base}, nil
	}
	return base, nil
}

// CleanPath 规范化 area 内的相对路径；越界、空路径或指向写入中临时文件时返回 false。
func CleanPath(raw string) (string, bool) {
	clean, err := archive.NormalizePath(raw)
	if err != nil {
		return "", false
	}
	for _, seg := range strings.Split(clean, "/") {
		if cache.IsTempName(seg) {
			return "", false
		}
	}
	return clean, true
}
