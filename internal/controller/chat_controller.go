package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/pkg/serverutils"
	"doc-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Subscribe(ctx *fiber.Ctx) error
	Sync(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	CreateSession(ctx *fiber.Ctx) error
	Cleanup(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	logger  logger.ILogger
	tracer  trace.Tracer
}

func NewChatController(service service.IChatService, log logger.ILogger) IChatController {
	return &chatController{
		service: service,
		logger:  log,
		tracer:  otel.Tracer("doc-chat-be/controller"),
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/subscribe")
	h.Get("", c.Subscribe)
	h.Get("/sync", c.Sync)
	h.Get("/history", c.History)
	h.Post("/session", c.CreateSession)
	h.Get("/clean", c.Cleanup)
}

// Subscribe streams one turn as server-sent events. Errors before the first token are returned as
// a normal JSON response; after that the stream is simply cut short without a [DONE] event.
func (c *chatController) Subscribe(ctx *fiber.Ctx) error {
	var req dto.TurnRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ValidationError("query", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// The body writer runs after the handler returns, so the turn gets its own context.
	parent := trace.SpanFromContext(ctx.UserContext())
	turnCtx, cancel := context.WithCancel(trace.ContextWithSpan(context.Background(), parent))

	stream, err := c.service.StartTurn(turnCtx, &req)
	if err != nil {
		cancel()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		_, span := c.tracer.Start(turnCtx, "chat.stream", trace.WithAttributes(
			attribute.String("qa_id", stream.QaId),
		))
		defer span.End()

		fragments := 0
		for fragment := range stream.Fragments() {
			if err := writeEvent(w, dto.NewFragmentEvent(stream.QaNumber, fragment)); err != nil {
				c.logger.Info("ChatController", "Client disconnected", map[string]interface{}{
					"session_id": req.SessionId,
					"qa_id":      stream.QaId,
				})
				cancel()
				for range stream.Fragments() {
				}
				return
			}
			fragments++
		}
		span.SetAttributes(attribute.Int("fragments", fragments))

		if err := stream.Err(); err != nil {
			c.logger.Warn("ChatController", "Stream ended without answer", map[string]interface{}{
				"session_id": req.SessionId,
				"qa_id":      stream.QaId,
				"error":      err.Error(),
			})
			return
		}
		_ = writeEvent(w, dto.NewDoneEvent(stream.QaNumber))
	})
	return nil
}

func writeEvent(w *bufio.Writer, event dto.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func (c *chatController) Sync(ctx *fiber.Ctx) error {
	var req dto.TurnRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ValidationError("query", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Ask(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("", res))
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	var req dto.HistoryRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ValidationError("query", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.History(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("", res))
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return serverutils.ValidationError("body", err)
		}
	} else if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ValidationError("query", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreateSession(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("", res))
}

func (c *chatController) Cleanup(ctx *fiber.Ctx) error {
	var req dto.CleanupRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ValidationError("query", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Cleanup(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session cleaned", res))
}
