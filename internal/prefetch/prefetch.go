package prefetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/asset-hub/internal/cache"
)

// DefaultConcurrency 是未配置时的并发下载数。
const DefaultConcurrency = 20

// Failure 记录单个文件的下载失败。
type Failure struct {
	Path string
	Err  error
}

// Report 汇总一次预取的结果。
type Report struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Failures   []Failure
}

// Prefetcher 把一组相对路径从源站拉取到本地目录，已存在的文件跳过。
type Prefetcher struct {
	filler         *cache.Filler
	upstream       string
	concurrency    int
	lowercaseFirst bool
	logger         *logrus.Logger
}

// New 构造 Prefetcher；concurrency <= 0 时使用 DefaultConcurrency。
func New(filler *cache.Filler, upstream string, concurrency int, logger *logrus.Logger) *Prefetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Prefetcher{
		filler:      filler,
		upstream:    upstream,
		concurrency: concurrency,
		logger:      logger,
	}
}

// WithLowercaseFirst 让每个文件先请求小写 URL，源站 404 时再按原始大小写重试。
// 本地仍按原始大小写落盘。
func (p *Prefetcher) WithLowercaseFirst(enabled bool) *Prefetcher {
	p.lowercaseFirst = enabled
	return p
}

// Run 并发下载 paths。单个文件失败只记入 Report，不会中断其它下载；
// 仅在 ctx 被取消时返回错误。
func (p *Prefetcher) Run(ctx context.Context, paths []string) (Report, error) {
	started := time.Now()
	report := Report{Total: len(paths)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.concurrency)

	for _, rel := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			skipped, size, err := p.fetchOne(ctx, rel)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, Failure{Path: rel, Err: err})
				p.logger.WithFields(logrus.Fields{
					"action": "prefetch",
					"path":   rel,
					"error":  err.Error(),
				}).Warn("prefetch_file_failed")
			case skipped:
				report.Skipped++
			default:
				report.Downloaded++
				report.Bytes += size
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.WithFields(logrus.Fields{
		"action":      "prefetch",
		"upstream":    p.upstream,
		"total":       report.Total,
		"downloaded":  report.Downloaded,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"bytes":       report.Bytes,
		"concurrency": p.concurrency,
		"elapsed_ms":  time.Since(started).Milliseconds(),
	}).Info("prefetch_complete")

	return report, ctx.Err()
}

func (p *Prefetcher) fetchOne(ctx context.Context, rel string) (bool, int64, error) {
	store := p.filler.Store()
	existing, err := store.Get(ctx, rel)
	if err == nil {
		existing.Reader.Close()
		return true, 0, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return false, 0, err
	}

	if lower := strings.ToLower(rel); p.lowercaseFirst && lower != rel {
		entry, err := p.filler.Fill(ctx, rel, cache.OriginURL(p.upstream, lower))
		if err == nil {
			return false, entry.SizeBytes, nil
		}
		var fetchErr *cache.FetchError
		if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusNotFound {
			return false, 0, err
		}
		p.logger.WithFields(logrus.Fields{
			"action": "prefetch",
			"path":   rel,
		}).Debug("prefetch_retry_original_case")
	}

	entry, err := p.filler.Fill(ctx, rel, cache.OriginURL(p.upstream, rel))
	if err != nil {
		return false, 0, err
	}
	return false, entry.SizeBytes, nil
}
