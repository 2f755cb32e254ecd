package serverutils

import (
	"errors"

	"doc-chat-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type errorHandlerConfig struct {
	bodyTooLarge *AppError
}

type ErrorHandlerOption func(*errorHandlerConfig)

// WithBodyTooLarge renders requests rejected by the server body limit as appErr.
func WithBodyTooLarge(appErr *AppError) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		c.bodyTooLarge = appErr
	}
}

// ErrorHandler renders every error returned by a handler as a ResponseModel.
// Raw internal errors are logged and replaced by a generic message.
func ErrorHandler(log logger.ILogger, opts ...ErrorHandlerOption) fiber.ErrorHandler {
	cfg := &errorHandlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			if fiberErr.Code == fiber.StatusRequestEntityTooLarge && cfg.bodyTooLarge != nil {
				err = cfg.bodyTooLarge
			} else {
				return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
			}
		}

		appErr := AsAppError(err)
		if appErr.Code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"path":   ctx.Path(),
				"method": ctx.Method(),
				"error":  err.Error(),
			})
		}
		return ctx.Status(appErr.Code).JSON(ErrorResponse(appErr.Code, appErr.Message))
	}
}
