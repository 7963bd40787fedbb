package controller

import (
	"log"
	"strconv"

	"reachly/engine"
	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DraftController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Review *engine.ReviewService
}

func NewDraftController(db *gorm.DB, logger *log.Logger, review *engine.ReviewService) *DraftController {
	return &DraftController{DB: db, Logger: logger, Review: review}
}

// GetDrafts returns paginated drafts, filterable by status
func (dc *DraftController) GetDrafts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	drafts, total, err := dc.Review.List(c.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch drafts", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: drafts, Total: total, Page: page, Limit: pageSize})
}

// GetDraft returns one draft
func (dc *DraftController) GetDraft(c *fiber.Ctx) error {
	var draft models.AIEmailDraft
	if err := dc.DB.First(&draft, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Draft not found", nil)
	}
	return c.JSON(utils.SuccessResponse(draft))
}

// GetPendingCount is the dashboard poller endpoint. Pure read, no side
// effects, safe to hit every minute.
func (dc *DraftController) GetPendingCount(c *fiber.Ctx) error {
	count, err := dc.Review.PendingCount(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count pending drafts", err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// ApproveDraft resolves a pending draft positively and triggers the send
func (dc *DraftController) ApproveDraft(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	draft, err := dc.Review.Approve(c.Context(), utils.ParseUint(c.Params("id")), &user.ID)
	if err != nil {
		return utils.EngineError(c, err)
	}

	return c.JSON(utils.SuccessResponse(draft))
}

// RejectDraft resolves a pending draft negatively, optionally pausing the
// owning enrollment
func (dc *DraftController) RejectDraft(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		PauseSequence bool `json:"pause_sequence"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	draft, err := dc.Review.Reject(c.Context(), utils.ParseUint(c.Params("id")), input.PauseSequence, &user.ID)
	if err != nil {
		return utils.EngineError(c, err)
	}

	return c.JSON(utils.SuccessResponse(draft))
}

// EditAndApproveDraft writes the reviewer's replacement content and proceeds
// like an approval
func (dc *DraftController) EditAndApproveDraft(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Subject  string `json:"subject" validate:"required,max=500"`
		BodyHTML string `json:"body_html" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	draft, err := dc.Review.EditAndApprove(c.Context(), utils.ParseUint(c.Params("id")), input.Subject, input.BodyHTML, &user.ID)
	if err != nil {
		return utils.EngineError(c, err)
	}

	return c.JSON(utils.SuccessResponse(draft))
}
