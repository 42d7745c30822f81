package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/any-hub/asset-hub/internal/version"
)

// ErrOriginFetchFailed 表示回源失败（非 200 或传输错误），此时不会写入任何缓存文件。
var ErrOriginFetchFailed = errors.New("origin fetch failed")

// FetchError 携带回源 URL 与状态码；StatusCode 为 0 表示传输层错误。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("origin %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("origin %s: %v", e.URL, e.Err)
}

// Is 让 errors.Is(err, ErrOriginFetchFailed) 成立。
func (e *FetchError) Is(target error) bool {
	return target == ErrOriginFetchFailed
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Filler 在缓存未命中时回源，并把响应体原子地发布到 Store。
type Filler struct {
	client *http.Client
	store  Store
}

// NewFiller 构造回源写入器，client 的 Timeout 即单次回源上限。
func NewFiller(client *http.Client, store Store) *Filler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Filler{client: client, store: store}
}

// Store 返回写入目标。
func (f *Filler) Store() Store {
	return f.store
}

// Fill 拉取 originURL 并写入 key。非 200 直接返回 FetchError，不触碰磁盘；
// 中途断流只会留下被清理的临时文件，最终路径不会出现半写状态。
func (f *Filler) Fill(ctx context.Context, key, originURL string) (*Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, originURL, nil)
	if err != nil {
		return nil, &FetchError{URL: originURL, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: originURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: originURL, StatusCode: resp.StatusCode}
	}

	body := &originBody{r: resp.Body, url: originURL}
	return f.store.Put(ctx, key, body, PutOptions{ModTime: ExtractModTime(resp.Header)})
}

// originBody 把读取响应体时的传输错误标记为回源失败，与本地写盘错误区分开。
type originBody struct {
	r   io.Reader
	url string
}

func (b *originBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = &FetchError{URL: b.url, Err: err}
	}
	return n, err
}

// ExtractModTime 解析 Last-Modified，缺失或非法时返回零值。
func ExtractModTime(header http.Header) time.Time {
	if header == nil {
		return time.Time{}
	}
	if value := header.Get("Last-Modified"); value != "" {
		if parsed, err := http.ParseTime(value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// OriginURL 拼接 base 与相对路径，逐段转义。
func OriginURL(base, rel string) string {
	segments := strings.Split(strings.TrimPrefix(rel, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.Join(segments, "/")
}
