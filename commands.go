package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/config"
	"github.com/any-hub/asset-hub/internal/logging"
	"github.com/any-hub/asset-hub/internal/prefetch"
	"github.com/any-hub/asset-hub/internal/server"
)

// cliLogger 为离线子命令提供与服务端一致的 JSON 日志，输出到 stdErr。
func cliLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(stdErr)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return logger
}

// runPack 处理 pack 与 add：新建归档或把目录追加到已有归档。
func runPack(opts cliOptions) int {
	started := time.Now()
	var (
		ix  *archive.Index
		err error
	)
	if opts.command == cmdAdd {
		ix, err = archive.AddFolder(opts.blob, opts.manifest, opts.folder)
	} else {
		ix, err = archive.PackFolder(opts.folder, opts.blob, opts.manifest)
	}

	fields := logrus.Fields{
		"action":      opts.command,
		"folder":      opts.folder,
		"blob":        opts.blob,
		"manifest":    opts.manifest,
		"compression": archive.CompressionForName(opts.blob).String(),
		"elapsed_ms":  time.Since(started).Milliseconds(),
	}
	logger := cliLogger()
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("archive_build_failed")
		return 1
	}
	fields["entries"] = ix.Len()
	fields["bytes"] = ix.TotalSize()
	logger.WithFields(fields).Info("archive_built")
	fmt.Fprintf(stdOut, "%d files, %d bytes\n", ix.Len(), ix.TotalSize())
	return 0
}

// runExtract 把本地或远端归档解包到目录；远端 blob 边下载边写文件。
func runExtract(opts cliOptions) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cliLogger()
	fetcher := archive.NewFetcher(server.NewArchiveClient(nil), logger)
	stats, err := fetcher.Extract(ctx, archive.Source{Manifest: opts.manifest, Blob: opts.blob}, opts.outDir)
	if err != nil {
		fields := logging.ArchiveFields("", opts.manifest, opts.blob)
		fields["action"] = "extract"
		fields["files"] = stats.Files
		logger.WithFields(fields).WithError(err).Error("archive_extract_failed")
		if errors.Is(err, archive.ErrPartialDownload) {
			fmt.Fprintf(stdErr, "下载中断，已写出 %d 个文件\n", stats.Files)
		}
		return 1
	}
	fmt.Fprintf(stdOut, "%d files, %d bytes\n", stats.Files, stats.Bytes)
	return 0
}

// runPrefetch 按列表或 manifest 把 area 的文件预取到本地目录。
func runPrefetch(opts cliOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	area, ok := cfg.Area(opts.area)
	if !ok {
		fmt.Fprintf(stdErr, "未知 area: %s\n", opts.area)
		return 1
	}
	if area.Upstream == "" {
		fmt.Fprintf(stdErr, "area %s 未配置 Upstream\n", area.Name)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := prefetchList(ctx, opts, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "读取预取列表失败: %v\n", err)
		return 1
	}

	store, err := cache.NewStore(area.LocalDir)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	filler := cache.NewFiller(server.NewUpstreamClient(cfg), store)
	prefetcher := prefetch.New(filler, area.Upstream, cfg.Global.PrefetchConcurrency, logger).
		WithLowercaseFirst(opts.lowercase)
	report, err := prefetcher.Run(ctx, paths)
	for _, failure := range report.Failures {
		fmt.Fprintf(stdErr, "failed %s: %v\n", failure.Path, failure.Err)
	}
	fmt.Fprintf(stdOut, "total %d, downloaded %d, skipped %d, failed %d\n",
		report.Total, report.Downloaded, report.Skipped, report.Failed)
	if err != nil || report.Failed > 0 {
		return 1
	}
	return 0
}

func prefetchList(ctx context.Context, opts cliOptions, logger *logrus.Logger) ([]string, error) {
	if opts.manifest != "" {
		ix, err := archive.NewFetcher(nil, logger).Manifest(ctx, opts.manifest)
		if err != nil {
			return nil, err
		}
		entries := ix.Entries()
		paths := make([]string, len(entries))
		for i, entry := range entries {
			paths[i] = entry.Path
		}
		return paths, nil
	}

	f, err := os.Open(opts.listPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return prefetch.ReadList(f)
}

// runMissing 打印 reference 中存在而 target 中缺失的文件。
func runMissing(opts cliOptions) int {
	missing, err := prefetch.Missing(opts.reference, opts.target)
	if err != nil {
		fmt.Fprintf(stdErr, "比较目录失败: %v\n", err)
		return 1
	}
	for _, p := range missing {
		fmt.Fprintln(stdOut, p)
	}
	fmt.Fprintf(stdErr, "%d missing\n", len(missing))
	return 0
}
