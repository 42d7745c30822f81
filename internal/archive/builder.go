package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type sourceFile struct {
	rel string
	abs string
}

// PackFolder 按字典序遍历 folder，把每个普通文件追加到新 blob 中，并输出 manifest。
// blob 与 manifest 先写入同目录临时文件，全部成功后才 rename 覆盖旧归档。
func PackFolder(folder, blobPath, manifestPath string) (*Index, error) {
	files, err := collectFiles(folder)
	if err != nil {
		return nil, err
	}
	return writeArchive(blobPath, manifestPath, nil, nil, files)
}

// AddFolder 把 folder 追加到已有归档末尾。
//
// 旧 blob 从偏移 0 顺序解码后重新编码到临时文件，再在原 remote_package_size
// 处继续写入新文件。rename 顺序为先 blob 后 manifest：新逻辑流是旧逻辑流的严格
// 延伸，两次 rename 之间崩溃只会留下“旧 manifest + 新 blob”，仍可正确读取旧条目。
// 任何失败都不会改动原归档。
func AddFolder(blobPath, manifestPath, folder string) (*Index, error) {
	base, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	files, err := collectFiles(folder)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, exists := base.Lookup(f.rel); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, f.rel)
		}
	}

	blob, err := openLocal(blobPath)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	return writeArchive(blobPath, manifestPath, base, blob, files)
}

func collectFiles(folder string) ([]sourceFile, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("stat input folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", folder)
	}

	var files []sourceFile
	err = filepath.WalkDir(folder, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(folder, p)
		if err != nil {
			return err
		}
		normalized, err := NormalizePath(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		files = append(files, sourceFile{rel: normalized, abs: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", folder, err)
	}
	return files, nil
}

// publishedFileMode 是 rename 发布后的文件权限；CreateTemp 默认只给属主读写。
const publishedFileMode = 0o644

// writeArchive 写出 base（如有）的完整逻辑流与 files，返回新的 Index。
func writeArchive(blobPath, manifestPath string, base *Index, baseStream io.Reader, files []sourceFile) (ix *Index, err error) {
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return nil, err
	}

	tmpBlob, err := os.CreateTemp(filepath.Dir(blobPath), ".archive-*")
	if err != nil {
		return nil, err
	}
	tmpBlobName := tmpBlob.Name()
	var tmpManifestName string
	defer func() {
		if err != nil {
			tmpBlob.Close()
			os.Remove(tmpBlobName)
			if tmpManifestName != "" {
				os.Remove(tmpManifestName)
			}
		}
	}()

	out := bufio.NewWriterSize(tmpBlob, 1<<20)
	enc, err := CompressionForName(blobPath).NewWriter(out)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	var offset uint64
	if base != nil {
		entries = base.Entries()
		copied, copyErr := io.CopyN(enc, baseStream, int64(base.TotalSize()))
		if copyErr != nil {
			if errors.Is(copyErr, io.EOF) {
				return nil, corruptf("existing blob holds %d bytes, manifest declares %d", copied, base.TotalSize())
			}
			return nil, fmt.Errorf("copy existing blob: %w", copyErr)
		}
		offset = base.TotalSize()
	}

	for _, f := range files {
		n, copyErr := appendFile(enc, f.abs)
		if copyErr != nil {
			return nil, fmt.Errorf("pack %s: %w", f.rel, copyErr)
		}
		entries = append(entries, Entry{Path: f.rel, Start: offset, End: offset + uint64(n)})
		offset += uint64(n)
	}

	if err = enc.Close(); err != nil {
		return nil, fmt.Errorf("finish blob encoder: %w", err)
	}
	if err = out.Flush(); err != nil {
		return nil, err
	}
	if err = tmpBlob.Chmod(publishedFileMode); err != nil {
		return nil, err
	}
	if err = tmpBlob.Sync(); err != nil {
		return nil, err
	}
	if err = tmpBlob.Close(); err != nil {
		return nil, err
	}

	ix, err = NewIndex(entries, offset)
	if err != nil {
		return nil, err
	}
	manifest, err := EncodeManifest(ix, FormatForName(manifestPath))
	if err != nil {
		return nil, err
	}
	tmpManifestName, err = writeTemp(filepath.Dir(manifestPath), ".manifest-*", manifest)
	if err != nil {
		return nil, err
	}

	if err = os.Rename(tmpBlobName, blobPath); err != nil {
		return nil, err
	}
	if err = os.Rename(tmpManifestName, manifestPath); err != nil {
		return nil, err
	}
	return ix, nil
}

func appendFile(dst io.Writer, name string) (int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

func writeTemp(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Chmod(publishedFileMode); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
