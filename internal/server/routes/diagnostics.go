package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/any-image/internal/config"
)

// InFlightCounter 报告正在构建的派生图数量。
type InFlightCounter interface {
	InFlight() int
}

type statusPayload struct {
	URLPrefix      []string `json:"url_prefix"`
	AllowExt       []string `json:"allow_ext"`
	MaxAgeSeconds  int64    `json:"max_age_seconds"`
	WeakETag       bool     `json:"weak_etag"`
	InFlightBuilds int      `json:"inflight_builds"`
}

// RegisterDiagnostics 暴露 /-/status 与 /-/metrics，供 SRE 查看路由配置与构建情况。
// metrics 为 nil 时不注册 /-/metrics。
func RegisterDiagnostics(app *fiber.App, cfg *config.Config, counter InFlightCounter, metrics http.Handler) {
	if app == nil || cfg == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(cfg.Image, counter))
	})

	if metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(metrics))
	}
}

func encodeStatus(img config.ImageConfig, counter InFlightCounter) statusPayload {
	payload := statusPayload{
		URLPrefix:     append([]string(nil), img.URLPrefix...),
		AllowExt:      append([]string(nil), img.AllowExt...),
		MaxAgeSeconds: img.MaxAgeSeconds(),
		WeakETag:      img.IsWeak,
	}
	if counter != nil {
		payload.InFlightBuilds = counter.InFlight()
	}
	return payload
}
