package archive

import (
	"path"
	"sort"
	"strings"
)

// Entry 描述 blob 逻辑字节流中的一个文件区间 [Start, End)。
type Entry struct {
	Path  string `json:"filename"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Size 返回条目的字节数。
func (e Entry) Size() uint64 {
	return e.End - e.Start
}

// Index 是加载后只读的 manifest，路径查找为 O(1)。
type Index struct {
	entries []Entry
	total   uint64
	byPath  map[string]int
}

// NewIndex 规范化路径并校验不变量：Start <= End <= total（仅空文件允许 Start == End），
// 路径唯一，按 Start 排序后区间互不重叠。违反时返回 ErrCorruptArchive。
func NewIndex(entries []Entry, total uint64) (*Index, error) {
	ix := &Index{
		entries: make([]Entry, 0, len(entries)),
		total:   total,
		byPath:  make(map[string]int, len(entries)),
	}

	for _, entry := range entries {
		normalized, err := NormalizePath(entry.Path)
		if err != nil {
			return nil, err
		}
		if entry.Start > entry.End {
			return nil, corruptf("%s: start %d after end %d", normalized, entry.Start, entry.End)
		}
		if entry.End > total {
			return nil, corruptf("%s: end %d beyond package size %d", normalized, entry.End, total)
		}
		if _, exists := ix.byPath[normalized]; exists {
			return nil, corruptf("%s: listed twice", normalized)
		}
		entry.Path = normalized
		ix.byPath[normalized] = len(ix.entries)
		ix.entries = append(ix.entries, entry)
	}

	sorted := ix.sorted()
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Start < prev.End {
			return nil, corruptf("%s [%d,%d) overlaps %s [%d,%d)",
				cur.Path, cur.Start, cur.End, prev.Path, prev.Start, prev.End)
		}
	}
	return ix, nil
}

// Lookup 按规范化路径查找条目，不存在时返回 false。
func (ix *Index) Lookup(p string) (Entry, bool) {
	if ix == nil {
		return Entry{}, false
	}
	normalized, err := NormalizePath(p)
	if err != nil {
		return Entry{}, false
	}
	idx, ok := ix.byPath[normalized]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[idx], true
}

// Entries 返回 manifest 声明顺序的条目副本。
func (ix *Index) Entries() []Entry {
	return append([]Entry(nil), ix.entries...)
}

// Len 返回条目数量。
func (ix *Index) Len() int {
	return len(ix.entries)
}

// TotalSize 返回逻辑字节流总长度（remote_package_size）。
func (ix *Index) TotalSize() uint64 {
	return ix.total
}

// sorted 返回按 Start 升序（相同 Start 时空条目优先）排列的副本，顺序读取都依赖它。
func (ix *Index) sorted() []Entry {
	out := ix.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// NormalizePath 统一为正斜杠、去掉前导 /，并拒绝逃逸出根目录的路径。
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", corruptf("empty entry path")
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", corruptf("entry path %q escapes archive root", p)
	}
	return clean, nil
}
