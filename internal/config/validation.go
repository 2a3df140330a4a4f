package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/any-hub/any-image/internal/imaging"
)

var supportedInterpolations = map[string]struct{}{
	"nearest":           {},
	"bilinear":          {},
	"bicubic":           {},
	"mitchellnetravali": {},
	"lanczos2":          {},
	"lanczos3":          {},
}

const supportedInterpolationList = "nearest|bilinear|bicubic|mitchellnetravali|lanczos2|lanczos3"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}

	img := c.Image
	if strings.TrimSpace(img.ImgRoot) == "" {
		return newFieldError("Image.ImgRoot", "不能为空")
	}
	if len(img.URLPrefix) == 0 {
		return newFieldError("Image.URLPrefix", "至少需要一个路由前缀")
	}
	for i, prefix := range img.URLPrefix {
		if strings.ContainsAny(prefix, "/\\?# ") {
			return newFieldError(listField("Image.URLPrefix", i), fmt.Sprintf("非法前缀: %q", prefix))
		}
	}
	if len(img.AllowExt) == 0 {
		return newFieldError("Image.AllowExt", "至少需要一个扩展名")
	}
	for i, ext := range img.AllowExt {
		if strings.ContainsAny(ext, "/\\.?# ") {
			return newFieldError(listField("Image.AllowExt", i), fmt.Sprintf("非法扩展名: %q", ext))
		}
		if !imaging.SupportsOutput(ext) {
			return newFieldError(listField("Image.AllowExt", i), fmt.Sprintf("无法输出该格式: %q", ext))
		}
	}
	if img.MaxAge.DurationValue() < 0 {
		return newFieldError("Image.MaxAge", "不能为负数")
	}
	if _, ok := supportedInterpolations[img.Interpolation]; !ok {
		return newFieldError("Image.Interpolation", "仅支持 "+supportedInterpolationList)
	}
	if img.JPEGQuality < 1 || img.JPEGQuality > 100 {
		return newFieldError("Image.JPEGQuality", "必须在 1-100")
	}
	if img.QueueDepth < 1 {
		return newFieldError("Image.QueueDepth", "必须大于 0")
	}
	if img.StallTimeout.DurationValue() <= 0 {
		return newFieldError("Image.StallTimeout", "必须大于 0")
	}
	if img.FlightTimeout.DurationValue() <= 0 {
		return newFieldError("Image.FlightTimeout", "必须大于 0")
	}

	return nil
}
