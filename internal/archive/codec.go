package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression 标识 blob 的整流压缩方式，由文件后缀决定。
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionXZ
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// CompressionForName 依据 blob 路径或 URL 的后缀选择编解码器。
func CompressionForName(name string) Compression {
	lower := strings.ToLower(trimQuery(name))
	switch {
	case strings.HasSuffix(lower, ".xz"):
		return CompressionXZ
	case strings.HasSuffix(lower, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(lower, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// NewReader 包装一个只能从偏移 0 顺序解码的 reader。
func (c Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionXZ:
		dec, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: xz header: %v", ErrCorruptArchive, err)
		}
		return io.NopCloser(dec), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return decoderCloser{Reader: dec, close: dec.Close}, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

// NewWriter 返回压缩写入器，Close 只负责刷新编码器尾部，不关闭 w。
func (c Compression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{Writer: w}, nil
	case CompressionXZ:
		enc, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return enc, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case CompressionLZ4:
		enc := lz4.NewWriter(w)
		if err := enc.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

type decoderCloser struct {
	io.Reader
	close func()
}

func (d decoderCloser) Close() error {
	d.close()
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
