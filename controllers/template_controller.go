package controller

import (
	"log"
	"strconv"

	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

// CreateTemplate stores an email template sequence steps can reference
func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name     string `json:"name" validate:"required,max=200"`
		Subject  string `json:"subject" validate:"required,max=500"`
		BodyHTML string `json:"body_html" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	template := models.EmailTemplate{
		UserID:   user.ID,
		Name:     input.Name,
		Subject:  input.Subject,
		BodyHTML: input.BodyHTML,
	}
	if err := tc.DB.Create(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(template))
}

// GetTemplates returns paginated templates
func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	query := tc.DB.Model(&models.EmailTemplate{}).Where("user_id = ?", user.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count templates", err)
	}

	var templates []models.EmailTemplate
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&templates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch templates", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: templates, Total: total, Page: page, Limit: limit})
}

// GetTemplate returns a single template
func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.EmailTemplate
	if err := tc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	return c.JSON(utils.SuccessResponse(template))
}

// UpdateTemplate updates a template; already-created drafts keep the content
// they were generated with
func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.EmailTemplate
	if err := tc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	var input struct {
		Name     *string `json:"name" validate:"omitempty,max=200"`
		Subject  *string `json:"subject" validate:"omitempty,max=500"`
		BodyHTML *string `json:"body_html"`
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
	if input.Subject != nil {
		updates["subject"] = *input.Subject
	}
	if input.BodyHTML != nil {
		updates["body_html"] = *input.BodyHTML
	}
	if err := tc.DB.Model(&template).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update template", err)
	}

	return c.JSON(utils.SuccessResponse(template))
}
