package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var supportedModes = map[string]struct{}{
	ModePacked: {},
	ModeLocal:  {},
	ModeSmart:  {},
	ModeProxy:  {},
}

const supportedModeList = "packed|local|smart|proxy"

var areaNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.ArchiveTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ArchiveTimeout", "必须大于 0")
	}
	if g.PrefetchConcurrency <= 0 {
		return newFieldError("Global.PrefetchConcurrency", "必须大于 0")
	}

	if len(c.Areas) == 0 {
		return errors.New("至少需要配置一个 Area")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Areas {
		area := &c.Areas[i]
		if area.Name == "" {
			return newFieldError("Area[].Name", "不能为空")
		}
		if !areaNamePattern.MatchString(area.Name) {
			return newFieldError(areaField(area.Name, "Name"), "仅允许小写字母、数字、- 与 _")
		}
		if _, exists := seenNames[area.Name]; exists {
			return newFieldError(areaField(area.Name, "Name"), "重复")
		}
		seenNames[area.Name] = struct{}{}

		if _, ok := supportedModes[area.Mode]; !ok {
			return newFieldError(areaField(area.Name, "Mode"), "仅支持 "+supportedModeList)
		}

		// local/packed 可以留空 Upstream，但写了就必须合法（供 prefetch 使用）。
		if area.NeedsUpstream() || area.Upstream != "" {
			if err := validateUpstream(area.Upstream); err != nil {
				return fmt.Errorf("%s: %w", areaField(area.Name, "Upstream"), err)
			}
		}

		if (area.ArchiveManifest == "") != (area.ArchiveBlob == "") {
			return newFieldError(areaField(area.Name, "ArchiveManifest/ArchiveBlob"), "必须同时提供或同时留空")
		}
		if area.Mode == ModePacked && !area.HasArchive() {
			return newFieldError(areaField(area.Name, "ArchiveManifest"), "packed 模式必须配置归档")
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
