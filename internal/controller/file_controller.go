package controller

import (
	"fmt"
	"path/filepath"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/serverutils"
	"doc-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IFileController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	Download(ctx *fiber.Ctx) error
}

type fileController struct {
	service service.IFileService
}

func NewFileController(service service.IFileService) IFileController {
	return &fileController{service: service}
}

func (c *fileController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/file")
	h.Post("/upload", c.Upload)
	h.Get("/download", c.Download)
}

func (c *fileController) Upload(ctx *fiber.Ctx) error {
	var req dto.UploadRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.ValidationError("form", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		return serverutils.ValidationError("file", err)
	}

	path, err := c.service.Upload(ctx.UserContext(), &req, file)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("File %s uploaded successfully!", filepath.Base(path))
	return ctx.JSON(serverutils.SuccessResponse(msg, fiber.Map{"file_path": path}))
}

func (c *fileController) Download(ctx *fiber.Ctx) error {
	var req dto.DownloadRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.ValidationError("query", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	path, err := c.service.Resolve(req.SessionId, req.Filename)
	if err != nil {
		return err
	}
	return ctx.Download(path, req.Filename)
}
