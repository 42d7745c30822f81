package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 资源区的解析模式，与 asset.Mode 一一对应。
const (
	ModePacked = "packed"
	ModeLocal  = "local"
	ModeSmart  = "smart"
	ModeProxy  = "proxy"
)

// GlobalConfig 描述全局运行时行为，所有 Area 共享同一份参数。
type GlobalConfig struct {
	ListenPort          int      `mapstructure:"ListenPort"`
	LogLevel            string   `mapstructure:"LogLevel"`
	LogFilePath         string   `mapstructure:"LogFilePath"`
	LogMaxSize          int      `mapstructure:"LogMaxSize"`
	LogMaxBackups       int      `mapstructure:"LogMaxBackups"`
	LogCompress         bool     `mapstructure:"LogCompress"`
	StoragePath         string   `mapstructure:"StoragePath"`
	UpstreamTimeout     Duration `mapstructure:"UpstreamTimeout"`
	ArchiveTimeout      Duration `mapstructure:"ArchiveTimeout"`
	PrefetchConcurrency int      `mapstructure:"PrefetchConcurrency"`
}

// AreaConfig 决定一个路径前缀（如 /vcsky）下的资源如何逐层解析。
type AreaConfig struct {
	Name            string `mapstructure:"Name"`
	Mode            string `mapstructure:"Mode"`
	Upstream        string `mapstructure:"Upstream"`
	LocalDir        string `mapstructure:"LocalDir"`
	ArchiveManifest string `mapstructure:"ArchiveManifest"`
	ArchiveBlob     string `mapstructure:"ArchiveBlob"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Areas  []AreaConfig `mapstructure:"Area"`
}

// HasArchive 表示该 Area 是否启用了打包层。
func (a AreaConfig) HasArchive() bool {
	return a.ArchiveManifest != "" && a.ArchiveBlob != ""
}

// NeedsUpstream 仅 smart/proxy 模式会回源。
func (a AreaConfig) NeedsUpstream() bool {
	return a.Mode == ModeSmart || a.Mode == ModeProxy
}

// Area 按名称查找 Area 配置。
func (c *Config) Area(name string) (AreaConfig, bool) {
	if c == nil {
		return AreaConfig{}, false
	}
	for _, area := range c.Areas {
		if area.Name == name {
			return area, true
		}
	}
	return AreaConfig{}, false
}

// AreaModes 返回所有 Area 的模式摘要，例如 vcsky:smart。
func AreaModes(areas []AreaConfig) []string {
	if len(areas) == 0 {
		return nil
	}
	result := make([]string, len(areas))
	for i, area := range areas {
		result[i] = fmt.Sprintf("%s:%s", area.Name, area.Mode)
	}
	return result
}
