package archive

import (
	"path"
	"strings"
)

var mediaTypes = map[string]string{
	".wasm": "application/wasm",
	".html": "text/html",
	".js":   "application/javascript",
	".css":  "text/css",
	".mp3":  "audio/mpeg",
	".json": "application/json",
}

// precompressed 后缀对应的 Content-Encoding，内容按原样返回，不做重新编码。
var precompressedEncodings = map[string]string{
	".br": "br",
	".gz": "gzip",
}

// DescribeContent 根据路径后缀返回 Content-Type 与 Content-Encoding。
// 预压缩变体（如 game.wasm.br）的类型取自去掉压缩后缀后的文件名。
func DescribeContent(name string) (contentType, contentEncoding string) {
	lower := strings.ToLower(name)
	ext := path.Ext(lower)
	if enc, ok := precompressedEncodings[ext]; ok {
		contentEncoding = enc
		lower = strings.TrimSuffix(lower, ext)
		ext = path.Ext(lower)
	}
	if mt, ok := mediaTypes[ext]; ok {
		return mt, contentEncoding
	}
	return "application/octet-stream", contentEncoding
}
