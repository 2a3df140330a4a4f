package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ImageHandler describes the component responsible for answering image
// requests. Requests it does not recognise must be passed on with c.Next().
type ImageHandler interface {
	Handle(fiber.Ctx) error
}

// ImageHandlerFunc adapts a function to the ImageHandler interface.
type ImageHandlerFunc func(fiber.Ctx) error

// Handle makes ImageHandlerFunc satisfy ImageHandler.
func (f ImageHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Images     ImageHandler
	ListenPort int
}

const contextKeyRequestID = "_anyimage_request_id"

// NewApp builds a Fiber application with request IDs, panic recovery and a
// catch-all route that hands every non-diagnostics request to the image handler.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Images == nil {
		return nil, errors.New("image handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Images.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID，写入 Locals 与响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
