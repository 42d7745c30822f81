package prefetch

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/any-hub/asset-hub/internal/cache"
)

// ListFiles 返回 root 下所有普通文件的相对路径（正斜杠、已排序），忽略写入中的临时文件。
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || cache.IsTempName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Missing 列出 reference 中存在而 target 中缺失的文件。target 不存在时视为空目录。
func Missing(reference, target string) ([]string, error) {
	want, err := ListFiles(reference)
	if err != nil {
		return nil, err
	}
	have, err := ListFiles(target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	present := make(map[string]struct{}, len(have))
	for _, p := range have {
		present[p] = struct{}{}
	}
	var missing []string
	for _, p := range want {
		if _, ok := present[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// ReadList 读取每行一个路径的列表，忽略空行与 # 注释，并去掉前导 /。
func ReadList(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, strings.TrimLeft(line, "/"))
	}
	return paths, scanner.Err()
}
