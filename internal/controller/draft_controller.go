package controller

import (
	"draftsync/internal/dto"
	"draftsync/internal/pkg/serverutils"
	"draftsync/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDraftController interface {
	RegisterRoutes(r fiber.Router)
	Activate(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Input(ctx *fiber.Ctx) error
	Blur(ctx *fiber.Ctx) error
	Flush(ctx *fiber.Ctx) error
	Refresh(ctx *fiber.Ctx) error
}

type draftController struct {
	sessions service.ISessionManager
}

func NewDraftController(sessions service.ISessionManager) IDraftController {
	return &draftController{
		sessions: sessions,
	}
}

func (c *draftController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post(":id/activate", c.Activate)
	h.Get(":id/draft", c.Show)
	h.Post(":id/draft/input", c.Input)
	h.Post(":id/draft/blur", c.Blur)
	h.Post(":id/draft/flush", c.Flush)
	h.Post(":id/draft/refresh", c.Refresh)
}

// Activate selects the writing session, flushing the previously active one
// first. A failed pre-switch flush blocks the activation with a 409 so the
// UI can warn before any content is discarded.
func (c *draftController) Activate(ctx *fiber.Ctx) error {
	sessionId := ctx.Params("id")

	engine, err := c.sessions.Activate(ctx.Context(), sessionId)
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}

	return ctx.JSON(serverutils.SuccessResponse("Success activate session", engine.State()))
}

func (c *draftController) Show(ctx *fiber.Ctx) error {
	engine, err := c.engine(ctx)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show draft state", engine.State()))
}

func (c *draftController) Input(ctx *fiber.Ctx) error {
	engine, err := c.engine(ctx)
	if err != nil {
		return err
	}

	var req dto.DraftInputRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	engine.OnUserInput(req.Content, req.Title, req.Cursor)
	return ctx.JSON(serverutils.SuccessResponse("Success record input", engine.State()))
}

// Blur is the flush-on-blur hook: the UI calls it when the editor loses
// focus. Unsaved changes are persisted before this returns.
func (c *draftController) Blur(ctx *fiber.Ctx) error {
	engine, err := c.engine(ctx)
	if err != nil {
		return err
	}

	if err := engine.OnEditorFocusLost(ctx.Context()); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return ctx.JSON(serverutils.SuccessResponse("Success blur", engine.State()))
}

func (c *draftController) Flush(ctx *fiber.Ctx) error {
	engine, err := c.engine(ctx)
	if err != nil {
		return err
	}

	if err := engine.Flush(ctx.Context()); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return ctx.JSON(serverutils.SuccessResponse("Success flush draft", engine.State()))
}

func (c *draftController) Refresh(ctx *fiber.Ctx) error {
	engine, err := c.engine(ctx)
	if err != nil {
		return err
	}

	if err := engine.Refresh(ctx.Context()); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return ctx.JSON(serverutils.SuccessResponse("Success refresh draft", engine.State()))
}

func (c *draftController) engine(ctx *fiber.Ctx) (service.IDraftSyncService, error) {
	sessionId := ctx.Params("id")
	engine, ok := c.sessions.Get(sessionId)
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "session not activated")
	}
	return engine, nil
}
