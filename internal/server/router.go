package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/blobio"
	"github.com/any-hub/cache-info/internal/digestindex"
)

// AppOptions controls how the Fiber application parses and throttles requests.
type AppOptions struct {
	Logger *logrus.Logger
	// Index is optional; without it entry reports carry no source paths.
	Index  *digestindex.Index
	Layout blobfmt.Layout
	Input  blobio.Options
	// RequestsPerSecond <= 0 disables throttling.
	RequestsPerSecond float64
	ReadTimeout       time.Duration
	ListenPort        int
}

const (
	contextKeyRequestID = "_cacheinfo_request_id"
	headerRequestID     = "X-Request-ID"
	maxRequestIDLength  = 128
)

// NewApp builds a Fiber application with request IDs, throttling and the
// inspection endpoint.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.ListenPort <= 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}

	maxSize := opts.Input.MaxSize
	if maxSize <= 0 {
		maxSize = blobio.DefaultMaxSize
		opts.Input.MaxSize = maxSize
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		BodyLimit:     int(maxSize),
		ReadTimeout:   opts.ReadTimeout,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(throttleMiddleware(opts.RequestsPerSecond, opts.Logger))

	app.Post("/v1/inspect", newInspectHandler(opts))

	return app, nil
}

// requestContextMiddleware 沿用调用方提供的请求 ID，缺失时生成新的 UUID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get(headerRequestID))
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(headerRequestID, reqID)
		return c.Next()
	}
}

// throttleMiddleware 使用令牌桶限制解析请求速率，诊断接口不受限制。
func throttleMiddleware(rps float64, logger *logrus.Logger) fiber.Handler {
	if rps <= 0 {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) || limiter.Allow() {
			return c.Next()
		}
		logger.WithFields(logrus.Fields{
			"action":     "throttle",
			"request_id": RequestID(c),
			"path":       c.Path(),
		}).Warn("请求过于频繁，已拒绝")
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "rate_limited",
		})
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
