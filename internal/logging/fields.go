package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 描述一次图片请求：原图、派生图以及最终走向（hit/miss/not_found...）。
func RequestFields(method, source, derivative, outcome string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"action":    "image",
		"method":    method,
		"outcome":   outcome,
		"cache_hit": cacheHit,
	}
	if source != "" {
		fields["source"] = source
	}
	if derivative != "" {
		fields["derivative"] = derivative
	}
	return fields
}
