package controller

import (
	"context"
	"log"
	"strconv"

	"reachly/engine"
	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type EnrollmentController struct {
	DB          *gorm.DB
	Logger      *log.Logger
	Enrollments *engine.EnrollmentManager
}

func NewEnrollmentController(db *gorm.DB, logger *log.Logger, enrollments *engine.EnrollmentManager) *EnrollmentController {
	return &EnrollmentController{DB: db, Logger: logger, Enrollments: enrollments}
}

// EnrollContact enrolls a single contact into a sequence
func (ec *EnrollmentController) EnrollContact(c *fiber.Ctx) error {
	var input struct {
		ContactID  uint   `json:"contact_id" validate:"required"`
		SequenceID uint   `json:"sequence_id" validate:"required"`
		Notes      string `json:"notes" validate:"omitempty,max=2000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.EmailSequence
	if err := ec.DB.First(&sequence, input.SequenceID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	if sequence.Status != models.SequenceStatusActive {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Sequence is not active", nil)
	}

	enrollment, skipped, err := ec.Enrollments.EnrollContact(c.Context(), input.ContactID, input.SequenceID, nil, input.Notes)
	if err != nil {
		return utils.EngineError(c, err)
	}
	if skipped {
		return c.JSON(fiber.Map{
			"success": true,
			"skipped": true,
			"message": "Contact is already enrolled or not contactable",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(enrollment))
}

// GetEnrollments returns paginated enrollments with filters
func (ec *EnrollmentController) GetEnrollments(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	query := ec.DB.Model(&models.ProspectEnrollment{})
	if seq := c.Query("sequence_id"); seq != "" {
		query = query.Where("sequence_id = ?", utils.ParseUint(seq))
	}
	if contact := c.Query("contact_id"); contact != "" {
		query = query.Where("contact_id = ?", utils.ParseUint(contact))
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count enrollments", err)
	}

	var enrollments []models.ProspectEnrollment
	if err := query.Order("enrolled_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollments", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: enrollments, Total: total, Page: page, Limit: limit})
}

// GetEnrollment returns one enrollment
func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	var enrollment models.ProspectEnrollment
	if err := ec.DB.First(&enrollment, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	return c.JSON(utils.SuccessResponse(enrollment))
}

// PauseEnrollment stops future step scheduling; a pending draft, if any,
// still resolves on its own
func (ec *EnrollmentController) PauseEnrollment(c *fiber.Ctx) error {
	return ec.transition(c, ec.Enrollments.Pause)
}

// ResumeEnrollment reactivates a paused enrollment; the scheduler will
// regenerate a draft for the step it was paused on
func (ec *EnrollmentController) ResumeEnrollment(c *fiber.Ctx) error {
	return ec.transition(c, ec.Enrollments.Resume)
}

// CancelEnrollment terminates an enrollment permanently
func (ec *EnrollmentController) CancelEnrollment(c *fiber.Ctx) error {
	return ec.transition(c, ec.Enrollments.Cancel)
}

func (ec *EnrollmentController) transition(c *fiber.Ctx, op func(ctx context.Context, id uint) error) error {
	id := utils.ParseUint(c.Params("id"))
	if err := op(c.Context(), id); err != nil {
		return utils.EngineError(c, err)
	}

	var enrollment models.ProspectEnrollment
	if err := ec.DB.First(&enrollment, id).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	return c.JSON(utils.SuccessResponse(enrollment))
}
