package controller

import (
	"log"
	"strconv"

	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

// CreateSequence creates a new email sequence in draft status
func (qc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name        string `json:"name" validate:"required,max=200"`
		Description string `json:"description" validate:"omitempty,max=1000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	sequence := models.EmailSequence{
		UserID:      user.ID,
		Name:        input.Name,
		Description: input.Description,
		Status:      models.SequenceStatusDraft,
	}
	if err := qc.DB.Create(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

// GetSequences returns paginated sequences
func (qc *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	query := qc.DB.Model(&models.EmailSequence{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count sequences", err)
	}

	var sequences []models.EmailSequence
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: sequences, Total: total, Page: page, Limit: limit})
}

// GetSequence returns a sequence with its ordered steps
func (qc *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.EmailSequence
	if err := qc.DB.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC") }).
		Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

// UpdateSequence updates name/description
func (qc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.EmailSequence
	if err := qc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input struct {
		Name        *string `json:"name" validate:"omitempty,max=200"`
		Description *string `json:"description" validate:"omitempty,max=1000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if err := qc.DB.Model(&sequence).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

// ActivateSequence moves a sequence to active so enrollments can start. A
// sequence without steps cannot be activated.
func (qc *SequenceController) ActivateSequence(c *fiber.Ctx) error {
	return qc.setStatus(c, models.SequenceStatusActive)
}

// PauseSequence pauses a sequence; the scheduler skips its enrollments until
// it is reactivated
func (qc *SequenceController) PauseSequence(c *fiber.Ctx) error {
	return qc.setStatus(c, models.SequenceStatusPaused)
}

func (qc *SequenceController) setStatus(c *fiber.Ctx, status string) error {
	user := c.Locals("user").(*models.User)

	var sequence models.EmailSequence
	if err := qc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	if status == models.SequenceStatusActive {
		var stepCount int64
		if err := qc.DB.Model(&models.SequenceStep{}).Where("sequence_id = ?", sequence.ID).Count(&stepCount).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count steps", err)
		}
		if stepCount == 0 {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Cannot activate a sequence without steps", nil)
		}
	}

	if err := qc.DB.Model(&sequence).Update("status", status).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence status", err)
	}
	sequence.Status = status

	return c.JSON(utils.SuccessResponse(sequence))
}

// CreateStep appends a step to a sequence. Step numbers are contiguous and
// strictly increasing; new steps always land at the end.
func (qc *SequenceController) CreateStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.EmailSequence
	if err := qc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input struct {
		TemplateID  uint `json:"template_id" validate:"required"`
		DelayDays   int  `json:"delay_days" validate:"min=0"`
		DelayHours  int  `json:"delay_hours" validate:"min=0,max=23"`
		AutoApprove bool `json:"auto_approve"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var template models.EmailTemplate
	if err := qc.DB.First(&template, input.TemplateID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	var maxStep int
	if err := qc.DB.Model(&models.SequenceStep{}).
		Where("sequence_id = ?", sequence.ID).
		Select("COALESCE(MAX(step_number), 0)").
		Scan(&maxStep).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to determine step number", err)
	}

	step := models.SequenceStep{
		SequenceID:  sequence.ID,
		TemplateID:  input.TemplateID,
		StepNumber:  maxStep + 1,
		DelayDays:   input.DelayDays,
		DelayHours:  input.DelayHours,
		AutoApprove: input.AutoApprove,
	}
	if err := qc.DB.Create(&step).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create step", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(step))
}

// UpdateStep changes a step's delay, template or auto-approve flag. The step
// number itself is immutable.
func (qc *SequenceController) UpdateStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var step models.SequenceStep
	if err := qc.DB.
		Joins("JOIN email_sequences ON email_sequences.id = sequence_steps.sequence_id").
		Where("sequence_steps.id = ? AND email_sequences.user_id = ?", utils.ParseUint(c.Params("id")), user.ID).
		First(&step).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Step not found", nil)
	}

	var input struct {
		TemplateID  *uint `json:"template_id"`
		DelayDays   *int  `json:"delay_days" validate:"omitempty,min=0"`
		DelayHours  *int  `json:"delay_hours" validate:"omitempty,min=0,max=23"`
		AutoApprove *bool `json:"auto_approve"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{}
	if input.TemplateID != nil {
		var template models.EmailTemplate
		if err := qc.DB.First(&template, *input.TemplateID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
		}
		updates["template_id"] = *input.TemplateID
	}
	if input.DelayDays != nil {
		updates["delay_days"] = *input.DelayDays
	}
	if input.DelayHours != nil {
		updates["delay_hours"] = *input.DelayHours
	}
	if input.AutoApprove != nil {
		updates["auto_approve"] = *input.AutoApprove
	}

	if err := qc.DB.Model(&step).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update step", err)
	}

	return c.JSON(utils.SuccessResponse(step))
}

// DeleteStep removes the last step of a sequence. Only the last step can
// go, so remaining step numbers stay contiguous.
func (qc *SequenceController) DeleteStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var step models.SequenceStep
	if err := qc.DB.
		Joins("JOIN email_sequences ON email_sequences.id = sequence_steps.sequence_id").
		Where("sequence_steps.id = ? AND email_sequences.user_id = ?", utils.ParseUint(c.Params("id")), user.ID).
		First(&step).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Step not found", nil)
	}

	var maxStep int
	if err := qc.DB.Model(&models.SequenceStep{}).
		Where("sequence_id = ?", step.SequenceID).
		Select("COALESCE(MAX(step_number), 0)").
		Scan(&maxStep).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check step order", err)
	}
	if step.StepNumber != maxStep {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Only the last step of a sequence can be deleted", nil)
	}

	if err := qc.DB.Delete(&step).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete step", err)
	}

	return c.JSON(fiber.Map{"success": true, "message": "Step deleted"})
}
