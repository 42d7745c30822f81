package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ArchiveTimeout.DurationValue() != 30*time.Minute {
		t.Fatalf("ArchiveTimeout 应该自动填充默认值，得到 %v", cfg.Global.ArchiveTimeout.DurationValue())
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("UpstreamTimeout 应当被解析")
	}
	if cfg.Global.PrefetchConcurrency != 20 {
		t.Fatalf("PrefetchConcurrency 默认应为 20")
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应转换为绝对路径")
	}
	if len(cfg.Areas) != 3 {
		t.Fatalf("期望 3 个 Area，得到 %d", len(cfg.Areas))
	}
	vcsky, ok := cfg.Area("vcsky")
	if !ok {
		t.Fatalf("应能按名称找到 vcsky")
	}
	if vcsky.LocalDir != filepath.Join(cfg.Global.StoragePath, "vcsky") {
		t.Fatalf("LocalDir 默认应落在 StoragePath/Name，得到 %s", vcsky.LocalDir)
	}
	saves, _ := cfg.Area("saves")
	if !filepath.IsAbs(saves.LocalDir) || filepath.Base(saves.LocalDir) != "saves" {
		t.Fatalf("显式 LocalDir 应保留并转为绝对路径: %s", saves.LocalDir)
	}
	vcbr, _ := cfg.Area("vcbr")
	if !vcbr.HasArchive() {
		t.Fatalf("vcbr 应启用打包层")
	}
}

func TestValidateRejectsBadArea(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestAreaModeValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mode      string
		shouldErr bool
	}{
		{"smart ok", ModeSmart, false},
		{"proxy ok", ModeProxy, false},
		{"local ok", ModeLocal, false},
		{"unknown mode", "mirror", true},
		{"empty mode", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Areas[0].Mode = tc.mode
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for mode %q", tc.mode)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for mode %q: %v", tc.mode, err)
			}
		})
	}
}

func TestValidateAreaNames(t *testing.T) {
	cfg := validConfig()
	cfg.Areas[0].Name = "VC Sky"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法名称应报错")
	}

	cfg = validConfig()
	cfg.Areas = append(cfg.Areas, cfg.Areas[0])
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Area[vcsky].Name" {
		t.Fatalf("重复名称应返回 FieldError，得到 %v", err)
	}
}

func TestValidateUpstreamRules(t *testing.T) {
	cfg := validConfig()
	cfg.Areas[0].Upstream = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("smart 模式缺少 Upstream 应报错")
	}

	cfg = validConfig()
	cfg.Areas[0].Mode = ModeLocal
	cfg.Areas[0].Upstream = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("local 模式无需 Upstream: %v", err)
	}

	cfg = validConfig()
	cfg.Areas[0].Upstream = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非 http(s) 上游应报错")
	}
}

func TestValidateRequiresArchivePairs(t *testing.T) {
	cfg := validConfig()
	cfg.Areas[0].ArchiveManifest = "vcsky.js"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("仅提供 ArchiveManifest 时应报错")
	}

	cfg = validConfig()
	cfg.Areas[0].Mode = ModePacked
	cfg.Areas[0].Upstream = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("packed 模式缺少归档应报错")
	}

	cfg.Areas[0].ArchiveManifest = "vcsky.js"
	cfg.Areas[0].ArchiveBlob = "vcsky.data.xz"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("完整的 packed 配置应通过: %v", err)
	}
}

func TestAreaModes(t *testing.T) {
	modes := AreaModes(validConfig().Areas)
	if len(modes) != 1 || modes[0] != "vcsky:smart" {
		t.Fatalf("unexpected modes %v", modes)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:          8000,
			StoragePath:         "./data",
			UpstreamTimeout:     Duration(time.Second),
			ArchiveTimeout:      Duration(time.Minute),
			PrefetchConcurrency: 4,
		},
		Areas: []AreaConfig{
			{
				Name:     "vcsky",
				Mode:     ModeSmart,
				Upstream: "https://cdn.dos.zone/vcsky/",
			},
		},
	}
}
