package imgsrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-image/internal/cache"
	"github.com/any-hub/any-image/internal/config"
	"github.com/any-hub/any-image/internal/derivative"
	"github.com/any-hub/any-image/internal/imaging"
	"github.com/any-hub/any-image/internal/logging"
	"github.com/any-hub/any-image/internal/pipeline"
	"github.com/any-hub/any-image/internal/server"
)

const (
	headerImageName = "Image-Name"
	headerCacheHit  = "X-Image-Cache-Hit"
)

// 请求最终走向，同时作为日志字段与指标标签。
const (
	OutcomeHit         = "hit"
	OutcomeNotModified = "not_modified"
	OutcomeMiss        = "miss"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Recorder 统计请求走向，nil 时忽略。
type Recorder interface {
	ObserveRequest(outcome string)
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Config   config.ImageConfig
	Store    cache.Store
	Pipeline *pipeline.Pipeline
	Flights  *cache.Flights
	Logger   *logrus.Logger
	Recorder Recorder
}

// Handler 实现图片请求状态机：
// 路由不匹配 → 交给后续路由；原图与派生图都不存在 → 404；
// 派生图已存在 → 协商缓存或直接返回文件；否则构建并同时写入响应与缓存。
type Handler struct {
	matcher  *Matcher
	store    cache.Store
	pipeline *pipeline.Pipeline
	flights  *cache.Flights
	logger   *logrus.Logger
	recorder Recorder

	cacheControl  string
	weakETag      bool
	flightTimeout time.Duration
}

const defaultFlightTimeout = 30 * time.Second

// request 保存单个请求在 handler 返回后仍需使用的值，不引用 fiber.Ctx。
type request struct {
	method     string
	requestID  string
	started    time.Time
	descriptor derivative.Descriptor
	source     string
	target     string
}

// NewHandler 根据配置编译路由并构建 Handler。
func NewHandler(opts Options) (*Handler, error) {
	if opts.Store == nil {
		return nil, errors.New("image store is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	for _, ext := range opts.Config.AllowExt {
		if !imaging.SupportsOutput(ext) {
			return nil, fmt.Errorf("extension %q cannot be encoded", ext)
		}
	}
	matcher, err := NewMatcher(opts.Config.URLPrefix, opts.Config.AllowExt)
	if err != nil {
		return nil, err
	}
	flights := opts.Flights
	if flights == nil {
		flights = cache.NewFlights()
	}

	flightTimeout := opts.Config.FlightTimeout.DurationValue()
	if flightTimeout <= 0 {
		flightTimeout = defaultFlightTimeout
	}

	var cacheControl string
	if maxAge := opts.Config.MaxAgeSeconds(); maxAge > 0 {
		cacheControl = "max-age=" + strconv.FormatInt(maxAge, 10)
	}

	return &Handler{
		matcher:      matcher,
		store:        opts.Store,
		pipeline:     opts.Pipeline,
		flights:      flights,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		cacheControl:  cacheControl,
		weakETag:      opts.Config.IsWeak,
		flightTimeout: flightTimeout,
	}, nil
}

// Handle 满足 server.ImageHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	method := c.Method()
	match, ok := h.matcher.Match(method, requestPath(c), string(c.Request().URI().QueryString()))
	if !ok {
		return c.Next()
	}

	req := &request{
		method:     method,
		requestID:  server.RequestID(c),
		started:    started,
		descriptor: derivative.Normalize(match.Query),
	}
	req.source = cache.Resolve(h.store.Root(), match.Path)
	req.target = derivative.NameFor(req.source, req.descriptor)

	ctx := requestContext(c)
	res, err := h.store.Probe(ctx, req.source, req.target)
	if err != nil {
		h.finish(req, OutcomeError, false, err)
		return h.writeFailure(c)
	}

	switch res.Outcome() {
	case cache.OutcomeHit:
		return h.serveCached(c, req, *res.Handled)
	case cache.OutcomeMiss:
		return h.serveMiss(c, req, *res.Source)
	default:
		h.finish(req, OutcomeNotFound, false, nil)
		return h.writeError(c, fiber.StatusNotFound, "image_not_found")
	}
}

func (h *Handler) serveCached(c fiber.Ctx, req *request, stat cache.Stat) error {
	etag := cache.ETag(stat, h.weakETag)
	lastModified := cache.LastModified(stat)

	h.setImageHeaders(c, req)
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderLastModified, lastModified)
	c.Set(headerCacheHit, "true")

	if cache.IsNotModified(c.Get(fiber.HeaderIfNoneMatch), c.Get(fiber.HeaderIfModifiedSince), etag, lastModified) {
		h.finish(req, OutcomeNotModified, true, nil)
		c.Status(fiber.StatusNotModified)
		return nil
	}

	if req.method == http.MethodHead {
		c.Response().Header.SetContentLength(int(stat.Size))
		h.finish(req, OutcomeHit, true, nil)
		c.Status(fiber.StatusOK)
		return nil
	}

	result, err := h.store.Open(requestContext(c), stat)
	if err != nil {
		h.finish(req, OutcomeError, true, err)
		return h.writeFailure(c)
	}
	h.finish(req, OutcomeHit, true, nil)
	c.Status(fiber.StatusOK)
	return c.SendStream(result.Reader, int(stat.Size))
}

// serveMiss 同一派生图只允许一个请求构建；其余请求等待其落盘后按缓存返回，
// leader 失败或超过 flightTimeout 未完成时各自构建。
func (h *Handler) serveMiss(c fiber.Ctx, req *request, source cache.Stat) error {
	ctx, cancel := context.WithTimeout(requestContext(c), h.flightTimeout)
	defer cancel()
	flight, leader := h.flights.Join(req.target)
	if leader {
		return h.build(c, req, source, func(err error) {
			h.flights.Finish(req.target, flight, err)
		})
	}

	if err := flight.Wait(ctx); err == nil {
		if stat, err := h.store.Stat(ctx, req.target); err == nil {
			return h.serveCached(c, req, *stat)
		}
	}
	return h.build(c, req, source, func(error) {})
}

func (h *Handler) build(c fiber.Ctx, req *request, source cache.Stat, done func(error)) error {
	b, err := h.pipeline.Prepare(requestContext(c), source, req.target, req.descriptor)
	if err != nil {
		done(err)
		h.finish(req, OutcomeError, false, err)
		return h.writeFailure(c)
	}

	h.setImageHeaders(c, req)
	c.Set(headerCacheHit, "false")

	if req.method == http.MethodHead {
		res := b.Stream(io.Discard)
		done(res.CacheOutcome())
		if res.SourceErr != nil {
			h.finish(req, OutcomeError, false, res.SourceErr)
			return h.writeFailure(c)
		}
		if res.Cached != nil {
			c.Set(fiber.HeaderETag, cache.ETag(*res.Cached, h.weakETag))
			c.Set(fiber.HeaderLastModified, cache.LastModified(*res.Cached))
			c.Response().Header.SetContentLength(int(res.Cached.Size))
		}
		h.finish(req, OutcomeMiss, false, nil)
		c.Status(fiber.StatusOK)
		return nil
	}

	// 响应头在 handler 返回后才发送，此后只能截断不能改写状态码
	pr, pw := io.Pipe()
	go func() {
		res := b.Stream(pw)
		done(res.CacheOutcome())
		if res.SourceErr != nil {
			h.finish(req, OutcomeError, false, res.SourceErr)
		} else {
			h.finish(req, OutcomeMiss, false, nil)
		}
		// 响应分支被放弃时同样以错误结束，客户端看到的是截断而不是完整的 EOF
		closeErr := res.SourceErr
		if closeErr == nil {
			closeErr = res.ResponseErr
		}
		pw.CloseWithError(closeErr)
	}()

	c.Status(fiber.StatusOK)
	return c.SendStream(pr)
}

func (h *Handler) setImageHeaders(c fiber.Ctx, req *request) {
	c.Set(headerImageName, derivative.LogicalName(req.target))
	c.Set(fiber.HeaderContentType, derivative.ContentType(req.target))
	if h.cacheControl != "" {
		c.Set(fiber.HeaderCacheControl, h.cacheControl)
	}
}

func (h *Handler) writeFailure(c fiber.Ctx) error {
	header := &c.Response().Header
	header.Del(fiber.HeaderETag)
	header.Del(fiber.HeaderLastModified)
	header.Del(headerImageName)
	c.Set(fiber.HeaderCacheControl, "max-age=0")
	return h.writeError(c, fiber.StatusInternalServerError, "transform_failed")
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) finish(req *request, outcome string, cacheHit bool, err error) {
	if h.recorder != nil {
		h.recorder.ObserveRequest(outcome)
	}

	fields := logging.RequestFields(req.method, req.source, req.target, outcome, cacheHit)
	fields["elapsed_ms"] = time.Since(req.started).Milliseconds()
	if req.requestID != "" {
		fields["request_id"] = req.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("image_failed")
		return
	}
	h.logger.WithFields(fields).Info("image_complete")
}

// InFlight 返回正在构建的派生图数量。
func (h *Handler) InFlight() int {
	return h.flights.Len()
}

// requestPath 返回未解码的原始路径，解码与穿越清理统一交给 cache.Resolve。
func requestPath(c fiber.Ctx) string {
	raw := string(c.Request().URI().PathOriginal())
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
