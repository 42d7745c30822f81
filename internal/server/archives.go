package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/logging"
)

// ErrNoArchive 表示 area 未配置打包层。
var ErrNoArchive = errors.New("area has no archive")

// ArchiveLoader 负责把 area 的归档完整加载后原子地发布到 Holder。
// 同一 area 同时只允许一次刷新，读请求从不等待。
type ArchiveLoader struct {
	fetcher *archive.Fetcher
	logger  *logrus.Logger
}

// NewArchiveLoader 构造加载器。
func NewArchiveLoader(fetcher *archive.Fetcher, logger *logrus.Logger) *ArchiveLoader {
	return &ArchiveLoader{fetcher: fetcher, logger: logger}
}

// Load 加载（或重新加载）一个 area 的归档。失败时保留旧快照。
func (l *ArchiveLoader) Load(ctx context.Context, route *AreaRoute) error {
	if route == nil || !route.HasArchive() {
		return ErrNoArchive
	}

	route.refreshMu.Lock()
	defer route.refreshMu.Unlock()

	started := time.Now()
	fields := logging.ArchiveFields(route.Config.Name, route.Archive.Manifest, route.Archive.Blob)
	fields["action"] = "archive_refresh"

	reader, err := l.fetcher.Load(ctx, route.Archive)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		fields["initialized"] = route.Holder.Initialized()
		l.logger.WithFields(fields).Error("archive_refresh_failed")
		return fmt.Errorf("area %s: %w", route.Config.Name, err)
	}

	entries := reader.Index().Len()
	fields["replaced"] = route.Holder.Store(reader)
	fields["entries"] = entries
	l.logger.WithFields(fields).Info("archive_ready")
	return nil
}

// LoadAll 并行加载所有配置了归档的 area，返回全部失败的汇总。
func (l *ArchiveLoader) LoadAll(ctx context.Context, registry *AreaRegistry) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, route := range registry.List() {
		if !route.HasArchive() {
			continue
		}
		g.Go(func() error {
			if err := l.Load(ctx, route); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
