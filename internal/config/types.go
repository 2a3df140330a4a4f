package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 识别 "30s"、"168h"、纯数字秒值（可带小数）或 0x 前缀的十六进制秒值。
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

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
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

// GlobalConfig 描述进程级行为：监听端口与日志输出。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// ImageConfig 决定图片根目录、可接受的路由语法以及缓存头部。
type ImageConfig struct {
	ImgRoot       string   `mapstructure:"ImgRoot"`
	URLPrefix     []string `mapstructure:"URLPrefix"`
	AllowExt      []string `mapstructure:"AllowExt"`
	MaxAge        Duration `mapstructure:"MaxAge"`
	IsWeak        bool     `mapstructure:"IsWeak"`
	Interpolation string   `mapstructure:"Interpolation"`
	JPEGQuality   int      `mapstructure:"JPEGQuality"`
	QueueDepth    int      `mapstructure:"QueueDepth"`
	StallTimeout  Duration `mapstructure:"StallTimeout"`
	FlightTimeout Duration `mapstructure:"FlightTimeout"`
}

// MaxAgeSeconds 返回 Cache-Control 使用的秒数，0 表示不输出该头。
func (c ImageConfig) MaxAgeSeconds() int64 {
	return int64(c.MaxAge.DurationValue() / time.Second)
}

// Config 是 TOML 文件映射的整体结构。Load 返回后视为只读。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Image  ImageConfig  `mapstructure:"Image"`
}

// Summary 输出便于日志与诊断接口展示的关键字段。
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"img_root":        c.Image.ImgRoot,
		"url_prefix":      c.Image.URLPrefix,
		"allow_ext":       c.Image.AllowExt,
		"max_age_seconds": c.Image.MaxAgeSeconds(),
		"weak_etag":       c.Image.IsWeak,
	}
}
