package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 area/模式/命中层字段，供资源请求日志复用。
func RequestFields(area, mode, path, tier, outcome string) logrus.Fields {
	return logrus.Fields{
		"area":    area,
		"mode":    mode,
		"path":    path,
		"tier":    tier,
		"outcome": outcome,
	}
}

// ArchiveFields 描述一次归档加载/解包涉及的来源。
func ArchiveFields(area, manifest, blob string) logrus.Fields {
	return logrus.Fields{
		"area":     area,
		"manifest": manifest,
		"blob":     blob,
	}
}
