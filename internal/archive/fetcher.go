package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)


// Source 描述一对 manifest/blob 位置，每个字段可以是本地路径或 http(s) URL。
type Source struct {
	Manifest string
	Blob     string
}

// Enabled 表示是否配置了完整的归档来源。
func (s Source) Enabled() bool {
	return s.Manifest != "" && s.Blob != ""
}

// IsRemote 判断位置是否为 http(s) URL。
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetcher 负责远端归档的流式拉取：加载 manifest、把 blob 解码进内存供打包模式使用，
// 以及边下载边解包到目录。每次调用都是一次独立的网络操作，不做重试。
type Fetcher struct {
	client *http.Client
	logger *logrus.Logger
}

// NewFetcher 构造 Fetcher；client 的 Timeout 决定单次拉取的上限。
func NewFetcher(client *http.Client, logger *logrus.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{client: client, logger: logger}
}

// Manifest 读取本地或远端 manifest。
func (f *Fetcher) Manifest(ctx context.Context, location string) (*Index, error) {
	if !IsRemote(location) {
		return LoadManifest(location)
	}
	body, err := f.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := readManifest(body)
	if err != nil {
		if errors.Is(err, ErrCorruptArchive) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read manifest: %w", ErrFetchFailed, err)
	}
	return ParseManifest(data, FormatForName(location))
}

// Load 构建可用于打包模式的 Reader。远端 blob 必须完整排空（恰好 TotalSize 字节）
// 才会返回，调用方只在成功后把它标记为已初始化。
func (f *Fetcher) Load(ctx context.Context, src Source) (*Reader, error) {
	ix, err := f.Manifest(ctx, src.Manifest)
	if err != nil {
		return nil, err
	}
	if !IsRemote(src.Blob) {
		return OpenBlob(ix, src.Blob)
	}

	started := time.Now()
	body, err := f.open(ctx, src.Blob)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := decodeAll(CompressionForName(src.Blob), body, ix.TotalSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartialDownload, err)
	}
	f.logger.WithFields(logrus.Fields{
		"action":     "archive_load",
		"blob":       src.Blob,
		"entries":    ix.Len(),
		"bytes":      ix.TotalSize(),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("archive_loaded")
	return NewReader(ix, bytes.NewReader(data)), nil
}

// DownloadAndUnpack 流式拉取 url 指向的 blob，边解码边按 Start 顺序把条目写入 outDir。
// 中途断流或解码失败时返回 ErrPartialDownload，已完整写出的文件保留在磁盘上。
func (f *Fetcher) DownloadAndUnpack(ctx context.Context, url string, index *Index, outDir string) (UnpackStats, error) {
	started := time.Now()
	body, err := f.open(ctx, url)
	if err != nil {
		return UnpackStats{}, err
	}
	defer body.Close()

	dec, err := CompressionForName(url).NewReader(bufio.NewReaderSize(body, 1<<20))
	if err != nil {
		return UnpackStats{}, streamError(err, index.TotalSize())
	}
	defer dec.Close()

	stats, err := Unpack(ctx, index, dec, outDir)
	fields := logrus.Fields{
		"action":     "archive_unpack",
		"blob":       url,
		"output":     outDir,
		"files":      stats.Files,
		"bytes":      stats.Bytes,
		"entries":    index.Len(),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["offset"] = stats.Offset
		f.logger.WithFields(fields).Error("archive_unpack_failed")
		return stats, err
	}
	f.logger.WithFields(fields).Info("archive_unpack_complete")
	return stats, nil
}

// Extract 把 src 解包到 outDir：本地 blob 顺序解码，远端 blob 流式下载。
func (f *Fetcher) Extract(ctx context.Context, src Source, outDir string) (UnpackStats, error) {
	ix, err := f.Manifest(ctx, src.Manifest)
	if err != nil {
		return UnpackStats{}, err
	}
	if IsRemote(src.Blob) {
		return f.DownloadAndUnpack(ctx, src.Blob, ix, outDir)
	}
	blob, err := openLocal(src.Blob)
	if err != nil {
		return UnpackStats{}, err
	}
	defer blob.Close()
	stats, err := Unpack(ctx, ix, blob, outDir)
	if errors.Is(err, ErrPartialDownload) {
		return stats, fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	return stats, err
}

func (f *Fetcher) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
