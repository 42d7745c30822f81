package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptArchive 表示 manifest 解析失败或偏移量不满足不变量。
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrPartialDownload 表示数据流在 manifest 全部消费之前就已结束。
	ErrPartialDownload = errors.New("partial archive download")
	// ErrDuplicateEntry 表示同一路径在归档中出现多次。
	ErrDuplicateEntry = errors.New("duplicate archive entry")
	// ErrFetchFailed 表示远端 manifest/blob 拉取失败（非 200 或传输错误）。
	ErrFetchFailed = errors.New("archive fetch failed")
)

// FetchError 记录远端返回的非 200 状态，便于日志输出。
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Unwrap 让 errors.Is(err, ErrFetchFailed) 成立。
func (e *FetchError) Unwrap() error {
	return ErrFetchFailed
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArchive, fmt.Sprintf(format, args...))
}
