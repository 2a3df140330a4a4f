package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值沿用旧版中间件的取值；webp 只能作为输入解码，不在默认列表中。
var (
	defaultURLPrefix     = []string{"imgs", "images", "imgsrv"}
	defaultAllowExt      = []string{"png", "jpg", "jpeg", "tiff"}
	defaultMaxAge        = 7 * 24 * time.Hour
	defaultStallTimeout  = 10 * time.Second
	defaultFlightTimeout = 30 * time.Second
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyImageDefaults(&cfg.Image)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Image.ImgRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析图片目录: %w", err)
	}
	cfg.Image.ImgRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Image.URLPrefix", defaultURLPrefix)
	v.SetDefault("Image.AllowExt", defaultAllowExt)
	v.SetDefault("Image.MaxAge", int(defaultMaxAge/time.Second))
	v.SetDefault("Image.IsWeak", true)
	v.SetDefault("Image.Interpolation", "lanczos3")
	v.SetDefault("Image.JPEGQuality", 90)
	v.SetDefault("Image.QueueDepth", 8)
	v.SetDefault("Image.StallTimeout", defaultStallTimeout.String())
	v.SetDefault("Image.FlightTimeout", defaultFlightTimeout.String())
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
}

func applyImageDefaults(img *ImageConfig) {
	if strings.TrimSpace(img.ImgRoot) == "" {
		if wd, err := os.Getwd(); err == nil {
			img.ImgRoot = wd
		}
	}
	img.URLPrefix = normalizeList(img.URLPrefix, "/")
	img.AllowExt = normalizeList(img.AllowExt, ".")
	img.Interpolation = strings.ToLower(strings.TrimSpace(img.Interpolation))
	if img.JPEGQuality == 0 {
		img.JPEGQuality = 90
	}
	if img.QueueDepth == 0 {
		img.QueueDepth = 8
	}
	if img.StallTimeout == 0 {
		img.StallTimeout = Duration(defaultStallTimeout)
	}
	if img.FlightTimeout == 0 {
		img.FlightTimeout = Duration(defaultFlightTimeout)
	}
}

// normalizeList 去除首尾空白与指定的前导/尾随字符，并丢弃空项与重复项。
func normalizeList(items []string, trim string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		clean := strings.Trim(strings.TrimSpace(item), trim)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		result = append(result, clean)
	}
	return result
}

// durationDecodeHook 把 TOML/环境变量中的字符串与数字统一交给 Duration.UnmarshalText。
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		var text string
		switch v := data.(type) {
		case string:
			text = v
		case int:
			text = strconv.Itoa(v)
		case int64:
			text = strconv.FormatInt(v, 10)
		case float64:
			text = strconv.FormatFloat(v, 'f', -1, 64)
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}

		var d Duration
		if err := d.UnmarshalText([]byte(text)); err != nil {
			return nil, fmt.Errorf("无法解析 Duration 字段: %w", err)
		}
		return d, nil
	}
}
