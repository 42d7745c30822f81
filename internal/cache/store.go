package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理某个 area 的本地缓存目录。磁盘布局遵循：
//
//	<LocalDir>/<path>            # 完整文件
//	<LocalDir>/<dir>/.cache-*    # 写入中的临时文件，永远不会被当作命中
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key string) (*ReadResult, error)

	// Put 将 body 写入缓存。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除缓存文件，文件不存在时视为成功；key 指向目录时返回 ErrInvalidKey。
	Remove(ctx context.Context, key string) error

	// Root 返回缓存根目录的绝对路径。
	Root() string
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Key       string `json:"key"`
	FilePath  string `json:"file_path"`
	SizeBytes int64  `json:"size_bytes"`
	ModTime   time.Time
}

// ReadResult 组合 Entry 与正文 Reader，便于上层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidKey 表示请求路径无法映射到缓存目录内。
	ErrInvalidKey = errors.New("invalid cache key")
)
