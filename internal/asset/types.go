package asset

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Mode 决定 area 使用哪些层以及是否允许回源。
type Mode string

const (
	ModePacked Mode = "packed"
	ModeLocal  Mode = "local"
	ModeSmart  Mode = "smart"
	ModeProxy  Mode = "proxy"
)

// ParseMode 把配置中的字符串转换为 Mode。
func ParseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModePacked, ModeLocal, ModeSmart, ModeProxy:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", raw)
	}
}

// Tier 标记实际提供字节的层，会写入 X-Asset-Hub-Tier 响应头与日志。
type Tier string

const (
	TierPacked Tier = "packed"
	TierLocal  Tier = "local"
	TierOrigin Tier = "origin"
)

// Outcome 是一次解析的结论。Miss 是正常结果，不携带错误。
type Outcome int

const (
	Hit Outcome = iota
	Miss
	Error
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	default:
		return "error"
	}
}

// Asset 是可直接写给客户端的资源。Body 由调用方负责关闭；Size 为 -1 表示长度未知。
type Asset struct {
	Body            io.ReadCloser
	Size            int64
	ContentType     string
	ContentEncoding string
	Tier            Tier
	ModTime         time.Time
}

// Result 汇总一次解析：Hit 携带 Asset，Error 携带 Err。
type Result struct {
	Outcome Outcome
	Asset   *Asset
	Err     error
}

// Resolver 把 area 内的相对路径解析为资源。
type Resolver interface {
	Resolve(ctx context.Context, p string) Result
}

func hit(a *Asset) Result {
	return Result{Outcome: Hit, Asset: a}
}

func miss() Result {
	return Result{Outcome: Miss}
}

func failed(err error) Result {
	return Result{Outcome: Error, Err: err}
}
