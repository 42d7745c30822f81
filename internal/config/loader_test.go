package config

import (
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"

[[Area]]
Name = "vcsky"
Mode = "smart"
Upstream = "https://cdn.dos.zone/vcsky/"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsAndDefaultsMode(t *testing.T) {
	cfg := `
StoragePath = "./data"
ArchiveTimeout = 90

[[Area]]
Name = "vcsky"
Upstream = "https://cdn.dos.zone/vcsky/"
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.ArchiveTimeout.DurationValue() != 90*time.Second {
		t.Fatalf("整数应按秒解析，得到 %v", loaded.Global.ArchiveTimeout.DurationValue())
	}
	if loaded.Areas[0].Mode != ModeSmart {
		t.Fatalf("未配置 Mode 时应默认 smart，得到 %s", loaded.Areas[0].Mode)
	}
}
