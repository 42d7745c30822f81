package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// ManifestFormat 区分 manifest 的两种文本形式。
type ManifestFormat int

const (
	// FormatJSON: {"files":[{"filename","start","end"}],"remote_package_size":N}
	FormatJSON ManifestFormat = iota
	// FormatJS: 浏览器端加载器使用的 `const DATA_PACKAGE = {...};` 脚本。
	FormatJS
)

// FormatForName 根据文件名或 URL 后缀选择 manifest 格式，.js 之外一律视为 JSON。
func FormatForName(name string) ManifestFormat {
	if strings.HasSuffix(strings.ToLower(trimQuery(name)), ".js") {
		return FormatJS
	}
	return FormatJSON
}

type manifestDocument struct {
	Files             []Entry `json:"files"`
	RemotePackageSize uint64  `json:"remote_package_size"`
}

// rawManifest 用指针字段区分缺失与零值，解析时每个字段都必须出现。
type rawManifest struct {
	Files             []rawManifestFile `json:"files"`
	RemotePackageSize *uint64           `json:"remote_package_size"`
}

type rawManifestFile struct {
	Filename *string `json:"filename"`
	Start    *uint64 `json:"start"`
	End      *uint64 `json:"end"`
}

var jsPrefixPattern = regexp.MustCompile(`^\s*(?:const|var|let)\s+DATA_PACKAGE\s*=\s*`)

// ParseManifest 解析 manifest 文本并构建 Index。
func ParseManifest(data []byte, format ManifestFormat) (*Index, error) {
	if format == FormatJS {
		converted, err := jsManifestToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	var doc rawManifest
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, corruptf("decode manifest: %v", err)
	}
	if doc.RemotePackageSize == nil {
		return nil, corruptf("manifest has no remote_package_size")
	}
	entries := make([]Entry, 0, len(doc.Files))
	for i, f := range doc.Files {
		if f.Filename == nil || f.Start == nil || f.End == nil {
			return nil, corruptf("file #%d: missing filename/start/end", i)
		}
		entries = append(entries, Entry{Path: *f.Filename, Start: *f.Start, End: *f.End})
	}
	return NewIndex(entries, *doc.RemotePackageSize)
}

// jsManifestToJSON 去掉 `const DATA_PACKAGE =` 与结尾分号，给裸键加引号并去掉尾随逗号。
func jsManifestToJSON(data []byte) ([]byte, error) {
	loc := jsPrefixPattern.FindIndex(data)
	if loc == nil {
		return nil, corruptf("manifest does not declare DATA_PACKAGE")
	}
	body := bytes.TrimSpace(data[loc[1]:])
	body = bytes.TrimSpace(bytes.TrimSuffix(body, []byte(";")))
	return quoteObjectKeys(body)
}

// quoteObjectKeys 只在字符串字面量之外改写：标识符后紧跟冒号时加引号，
// 紧挨 } 或 ] 的逗号被丢弃。
func quoteObjectKeys(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src)+len(src)/4)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"':
			j := i + 1
			for ; j < len(src) && src[j] != '"'; j++ {
				if src[j] == '\\' {
					j++
				}
			}
			if j >= len(src) {
				return nil, corruptf("unterminated string at offset %d", i)
			}
			out = append(out, src[i:j+1]...)
			i = j + 1
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			if k := skipSpace(src, j); k < len(src) && src[k] == ':' {
				out = append(out, '"')
				out = append(out, src[i:j]...)
				out = append(out, '"')
			} else {
				out = append(out, src[i:j]...)
			}
			i = j
		case c == ',':
			if k := skipSpace(src, i+1); k < len(src) && (src[k] == '}' || src[k] == ']') {
				i++
				continue
			}
			out = append(out, c)
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return out, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func skipSpace(src []byte, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

// EncodeManifest 按 manifest 声明顺序输出文本。JS 形式的文件名带前导 /。
func EncodeManifest(ix *Index, format ManifestFormat) ([]byte, error) {
	if format == FormatJS {
		return encodeJSManifest(ix)
	}
	doc := manifestDocument{Files: ix.Entries(), RemotePackageSize: ix.TotalSize()}
	if doc.Files == nil {
		doc.Files = []Entry{}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func encodeJSManifest(ix *Index) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("const DATA_PACKAGE = {\n    files: [\n")
	entries := ix.Entries()
	for i, e := range entries {
		buf.WriteString("    {\n")
		name, err := json.Marshal("/" + e.Path)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "        filename: %s,\n", name)
		fmt.Fprintf(&buf, "        start: %d,\n", e.Start)
		fmt.Fprintf(&buf, "        end: %d\n", e.End)
		if i < len(entries)-1 {
			buf.WriteString("    },\n")
		} else {
			buf.WriteString("    }\n")
		}
	}
	buf.WriteString("    ],\n")
	fmt.Fprintf(&buf, "    remote_package_size: %d\n", ix.TotalSize())
	buf.WriteString("};\n")
	return buf.Bytes(), nil
}

// LoadManifest 读取本地 manifest 文件，格式由后缀决定。
func LoadManifest(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	defer f.Close()
	data, err := readManifest(f)
	if err != nil {
		if errors.Is(err, ErrCorruptArchive) {
			return nil, err
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, FormatForName(path))
}

// maxManifestBytes 限制 manifest 文本大小，超出时按损坏处理而不是截断后解析。
var maxManifestBytes int64 = 64 << 20

func readManifest(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxManifestBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxManifestBytes {
		return nil, corruptf("manifest exceeds %d bytes", maxManifestBytes)
	}
	return data, nil
}

func trimQuery(name string) string {
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		return name[:idx]
	}
	return name
}
