package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Reader 在 Index 之上提供按路径取字节的能力，创建后只读，可被并发请求共享。
type Reader struct {
	index *Index
	data  io.ReaderAt

	refs      atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

// PackedFile 是一次归档命中的结果。
type PackedFile struct {
	Entry           Entry
	Data            []byte
	ContentType     string
	ContentEncoding string
}

// NewReader 用 data 的逻辑字节流构建 Reader。
func NewReader(index *Index, data io.ReaderAt) *Reader {
	return &Reader{index: index, data: data}
}

// Open 加载本地 manifest 与 blob。原始 blob 通过 ReadAt 随机读取；
// 压缩 blob 无法随机定位，会一次性顺序解码进内存。
func Open(manifestPath, blobPath string) (*Reader, error) {
	ix, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return OpenBlob(ix, blobPath)
}

// OpenBlob 以已解析的 Index 打开本地 blob。
func OpenBlob(ix *Index, blobPath string) (*Reader, error) {
	f, err := os.Open(blobPath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}

	compression := CompressionForName(blobPath)
	if compression == CompressionNone {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if uint64(info.Size()) < ix.TotalSize() {
			f.Close()
			return nil, corruptf("blob holds %d bytes, manifest declares %d", info.Size(), ix.TotalSize())
		}
		return NewReader(ix, f), nil
	}
	defer f.Close()

	data, err := decodeAll(compression, f, ix.TotalSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	return NewReader(ix, bytes.NewReader(data)), nil
}

// decodeAll 顺序解码恰好 total 字节的逻辑流。
func decodeAll(c Compression, r io.Reader, total uint64) ([]byte, error) {
	if total > uint64(math.MaxInt) {
		return nil, fmt.Errorf("package size %d too large to hold in memory", total)
	}
	dec, err := c.NewReader(bufio.NewReaderSize(r, 1<<20))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	buf := make([]byte, total)
	if _, err := io.ReadFull(dec, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("stream ended before %d bytes: %w", total, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return buf, nil
}

// Index 返回底层只读 Index。
func (r *Reader) Index() *Index {
	return r.index
}

// EntryBytes 返回 path 对应的字节。路径不存在属于正常情况：ok 为 false 且 err 为 nil。
func (r *Reader) EntryBytes(p string) (data []byte, ok bool, err error) {
	entry, found := r.index.Lookup(p)
	if !found {
		return nil, false, nil
	}
	buf := make([]byte, entry.Size())
	if len(buf) == 0 {
		return buf, true, nil
	}
	n, err := r.data.ReadAt(buf, int64(entry.Start))
	if n == len(buf) {
		return buf, true, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, false, fmt.Errorf("read %s: %w", entry.Path, err)
}

// PackedFile 在 EntryBytes 基础上附带内容类型与预压缩编码标记。
func (r *Reader) PackedFile(p string) (*PackedFile, bool, error) {
	data, ok, err := r.EntryBytes(p)
	if err != nil || !ok {
		return nil, false, err
	}
	entry, _ := r.index.Lookup(p)
	contentType, encoding := DescribeContent(entry.Path)
	return &PackedFile{
		Entry:           entry,
		Data:            data,
		ContentType:     contentType,
		ContentEncoding: encoding,
	}, true, nil
}

// Close 释放底层文件（如有），可重复调用。
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if closer, ok := r.data.(io.Closer); ok {
			r.closeErr = closer.Close()
		}
	})
	return r.closeErr
}

func (r *Reader) retain() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *Reader) release() {
	if r.refs.Add(-1) == 0 {
		_ = r.Close()
	}
}

// UnpackStats 汇总解包结果。
type UnpackStats struct {
	Files int
	Bytes uint64
	// Offset 是停止时已消费的逻辑字节数，中断时可据此定位断点。
	Offset uint64
}

// Unpack 以单次顺序读取把 logical 流中的全部条目写入 outDir。
func Unpack(ctx context.Context, index *Index, logical io.Reader, outDir string) (stats UnpackStats, err error) {
	scanner := NewEntryScanner(index, logical)
	defer func() { stats.Offset = scanner.Offset() }()
	for scanner.Next() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry := scanner.Entry()
		if err := writeEntry(outDir, entry.Path, scanner.Reader()); err != nil {
			return stats, fmt.Errorf("unpack %s: %w", entry.Path, err)
		}
		stats.Files++
		stats.Bytes += entry.Size()
	}
	return stats, scanner.Err()
}

// UnpackFile 解包本地归档。
func UnpackFile(ctx context.Context, manifestPath, blobPath, outDir string) (UnpackStats, error) {
	ix, err := LoadManifest(manifestPath)
	if err != nil {
		return UnpackStats{}, err
	}
	blob, err := openLocal(blobPath)
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

// openLocal 打开本地 blob 并返回逻辑字节流，Close 同时释放解码器与文件。
func openLocal(blobPath string) (io.ReadCloser, error) {
	f, err := os.Open(blobPath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	dec, err := CompressionForName(blobPath).NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &localBlob{Reader: dec, dec: dec, file: f}, nil
}

type localBlob struct {
	io.Reader
	dec  io.Closer
	file *os.File
}

func (b *localBlob) Close() error {
	b.dec.Close()
	return b.file.Close()
}

// writeEntry 通过同目录临时文件 + rename 写出单个条目，读者永远看不到半写文件。
func writeEntry(outDir, rel string, body io.Reader) error {
	target := filepath.Join(outDir, filepath.FromSlash(rel))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".unpack-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	err = tmp.Chmod(publishedFileMode)
	if err == nil {
		_, err = io.Copy(tmp, body)
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
