package asset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/version"
)

// packedResolver 只在 Holder 已初始化时查询归档，未命中交给 next；next 为空即 Miss。
type packedResolver struct {
	holder *archive.Holder
	next   Resolver
}

func (r *packedResolver) Resolve(ctx context.Context, p string) Result {
	if reader, release, ok := r.holder.Acquire(); ok {
		file, found, err := reader.PackedFile(p)
		release()
		if err != nil {
			return failed(err)
		}
		if found {
			return hit(&Asset{
				Body:            io.NopCloser(bytes.NewReader(file.Data)),
				Size:            int64(len(file.Data)),
				ContentType:     file.ContentType,
				ContentEncoding: file.ContentEncoding,
				Tier:            TierPacked,
			})
		}
	}
	if r.next == nil {
		return miss()
	}
	return r.next.Resolve(ctx, p)
}

// localResolver 只读磁盘，从不访问网络。
type localResolver struct {
	store cache.Store
}

func (r *localResolver) Resolve(ctx context.Context, p string) Result {
	return r.lookup(ctx, p, TierLocal)
}

func (r *localResolver) lookup(ctx context.Context, p string, tier Tier) Result {
	result, err := r.store.Get(ctx, p)
	switch {
	case err == nil:
		return hit(cachedAsset(p, result, tier))
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrInvalidKey):
		return miss()
	default:
		return failed(err)
	}
}

// smartResolver 本地命中直接返回，否则回源写入缓存后再从磁盘提供。
type smartResolver struct {
	local    localResolver
	filler   *cache.Filler
	upstream string
}

func (r *smartResolver) Resolve(ctx context.Context, p string) Result {
	if res := r.local.Resolve(ctx, p); res.Outcome != Miss {
		return res
	}
	if _, err := r.filler.Fill(ctx, p, cache.OriginURL(r.upstream, p)); err != nil {
		return failed(err)
	}
	res := r.local.lookup(ctx, p, TierOrigin)
	if res.Outcome == Miss {
		return failed(cache.ErrNotFound)
	}
	return res
}

// proxyResolver 每次都回源，响应体直接流向客户端，不落盘。
type proxyResolver struct {
	client   *http.Client
	upstream string
}

func (r *proxyResolver) Resolve(ctx context.Context, p string) Result {
	originURL := cache.OriginURL(r.upstream, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, originURL, nil)
	if err != nil {
		return failed(&cache.FetchError{URL: originURL, Err: err})
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := r.client.Do(req)
	if err != nil {
		return failed(&cache.FetchError{URL: originURL, Err: err})
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return failed(&cache.FetchError{URL: originURL, StatusCode: resp.StatusCode})
	}

	contentType, encoding := archive.DescribeContent(p)
	return hit(&Asset{
		Body:            resp.Body,
		Size:            resp.ContentLength,
		ContentType:     contentType,
		ContentEncoding: encoding,
		Tier:            TierOrigin,
		ModTime:         cache.ExtractModTime(resp.Header),
	})
}

func cachedAsset(p string, result *cache.ReadResult, tier Tier) *Asset {
	contentType, encoding := archive.DescribeContent(p)
	return &Asset{
		Body:            result.Reader,
		Size:            result.Entry.SizeBytes,
		ContentType:     contentType,
		ContentEncoding: encoding,
		Tier:            tier,
		ModTime:         result.Entry.ModTime,
	}
}
