package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/blobio"
	"github.com/any-hub/cache-info/internal/inspect"
	"github.com/any-hub/cache-info/internal/logging"
)

type inspectResponse struct {
	RequestID   string             `json:"request_id"`
	Compression blobio.Compression `json:"compression"`
	RawSize     int                `json:"raw_size"`
	Report      *inspect.Report    `json:"report"`
}

func newInspectHandler(opts AppOptions) fiber.Handler {
	inspectOpts := inspect.Options{Layout: opts.Layout}
	if opts.Index != nil {
		inspectOpts.Resolver = opts.Index
	}

	return func(c fiber.Ctx) error {
		reqID := RequestID(c)
		body := c.Body()

		data, compression, err := blobio.Decode(body, opts.Input)
		if err != nil {
			status := fiber.StatusBadRequest
			code := "unreadable_body"
			if errors.Is(err, blobio.ErrTooLarge) {
				status = fiber.StatusRequestEntityTooLarge
				code = "too_large"
			}
			logRequest(opts.Logger, c, reqID, status, 0).Warnf("请求体无法解码: %v", err)
			return c.Status(status).JSON(fiber.Map{
				"error":      code,
				"message":    err.Error(),
				"request_id": reqID,
			})
		}

		report, err := inspect.Run(data, inspectOpts)
		status := statusFor(err)
		entry := logRequest(opts.Logger, c, reqID, status, report.EntryCount)
		if err != nil {
			entry.WithField("kind", inspect.Classify(err)).Warnf("缓存文件解析失败: %v", err)
		} else {
			entry.Info("缓存文件解析完成")
		}

		return c.Status(status).JSON(inspectResponse{
			RequestID:   reqID,
			Compression: compression,
			RawSize:     len(body),
			Report:      report,
		})
	}
}

// statusFor 将解析结果映射为 HTTP 状态：过短视为请求错误，结构错误返回 422 并附带已解析条目。
func statusFor(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, blobfmt.ErrTooSmall):
		return fiber.StatusBadRequest
	case blobfmt.IsStructural(err):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func logRequest(logger *logrus.Logger, c fiber.Ctx, reqID string, status, entries int) *logrus.Entry {
	return logger.WithFields(logging.RequestFields(reqID, c.Method(), c.Path(), status, entries)).
		WithField("action", "inspect")
}
