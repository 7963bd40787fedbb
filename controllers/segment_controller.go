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

type SegmentController struct {
	DB          *gorm.DB
	Logger      *log.Logger
	Resolver    *engine.Resolver
	Enrollments *engine.EnrollmentManager
}

func NewSegmentController(db *gorm.DB, logger *log.Logger, resolver *engine.Resolver, enrollments *engine.EnrollmentManager) *SegmentController {
	return &SegmentController{
		DB:          db,
		Logger:      logger,
		Resolver:    resolver,
		Enrollments: enrollments,
	}
}

// CreateSegment creates a static or dynamic segment
func (sc *SegmentController) CreateSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name           string              `json:"name" validate:"required,max=200"`
		Description    string              `json:"description" validate:"omitempty,max=1000"`
		Type           string              `json:"type" validate:"required,oneof=static dynamic"`
		FilterCriteria *models.FilterGroup `json:"filter_criteria"`
		ContactIDs     []uint              `json:"contact_ids"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	segment := models.Segment{
		UserID:      user.ID,
		Name:        input.Name,
		Description: input.Description,
		Type:        input.Type,
		Status:      models.SegmentStatusActive,
	}

	if input.Type == models.SegmentTypeDynamic {
		result, err := sc.Resolver.Validate(c.Context(), input.FilterCriteria)
		if err != nil {
			return utils.EngineError(c, err)
		}
		if !result.Valid {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid filter criteria",
				"errors":  result.Errors,
			})
		}
		segment.FilterCriteria = input.FilterCriteria
		segment.MemberCount = int(result.EstimatedCount)
	}

	if err := sc.DB.Create(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create segment", err)
	}

	// Static segments may be seeded with an initial member set
	if input.Type == models.SegmentTypeStatic && len(input.ContactIDs) > 0 {
		added := sc.addMembers(&segment, input.ContactIDs)
		segment.MemberCount = added
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(segment))
}

// GetSegments returns paginated segments with filters
func (sc *SegmentController) GetSegments(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := sc.DB.Model(&models.Segment{}).Where("user_id = ?", user.ID)
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count segments", err)
	}

	var segments []models.Segment
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&segments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch segments", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: segments, Total: total, Page: page, Limit: limit})
}

// GetSegment returns a single segment
func (sc *SegmentController) GetSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	return c.JSON(utils.SuccessResponse(segment))
}

// UpdateSegment updates name/description/status and, for dynamic segments,
// the filter criteria
func (sc *SegmentController) UpdateSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	var input struct {
		Name           *string             `json:"name" validate:"omitempty,max=200"`
		Description    *string             `json:"description" validate:"omitempty,max=1000"`
		Status         *string             `json:"status" validate:"omitempty,oneof=active paused archived"`
		FilterCriteria *models.FilterGroup `json:"filter_criteria"`
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
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.FilterCriteria != nil {
		if segment.Type != models.SegmentTypeDynamic {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Only dynamic segments have filter criteria", nil)
		}
		result, err := sc.Resolver.Validate(c.Context(), input.FilterCriteria)
		if err != nil {
			return utils.EngineError(c, err)
		}
		if !result.Valid {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid filter criteria",
				"errors":  result.Errors,
			})
		}
		updates["filter_criteria"] = input.FilterCriteria
		updates["member_count"] = result.EstimatedCount
	}

	if err := sc.DB.Model(&segment).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update segment", err)
	}

	return c.JSON(utils.SuccessResponse(segment))
}

// DeleteSegment archives a segment that still has dependent enrollments and
// soft-deletes one that does not
func (sc *SegmentController) DeleteSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	var liveEnrollments int64
	if err := sc.DB.Model(&models.ProspectEnrollment{}).
		Where("segment_id = ? AND status IN ?", segment.ID,
			[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
		Count(&liveEnrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check enrollments", err)
	}

	if liveEnrollments > 0 {
		if err := sc.DB.Model(&segment).Update("status", models.SegmentStatusArchived).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to archive segment", err)
		}
		return c.JSON(fiber.Map{
			"success":  true,
			"message":  "Segment has live enrollments and was archived instead of deleted",
			"archived": true,
		})
	}

	if err := sc.DB.Delete(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete segment", err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Segment deleted"})
}

// AddMembers adds contacts to a static segment
func (sc *SegmentController) AddMembers(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}
	if segment.Type != models.SegmentTypeStatic {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Members can only be added to static segments", nil)
	}

	var input struct {
		ContactIDs []uint `json:"contact_ids" validate:"required,min=1"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	added := sc.addMembers(&segment, input.ContactIDs)
	return c.JSON(fiber.Map{"success": true, "added": added})
}

// addMembers inserts member rows, skipping duplicates, and refreshes the
// cached count
func (sc *SegmentController) addMembers(segment *models.Segment, contactIDs []uint) int {
	added := 0
	for _, contactID := range contactIDs {
		var contact models.Contact
		if err := sc.DB.First(&contact, contactID).Error; err != nil {
			continue
		}
		member := models.SegmentMember{SegmentID: segment.ID, ContactID: contactID}
		if err := sc.DB.Where(member).FirstOrCreate(&member).Error; err != nil {
			sc.Logger.Printf("Failed to add contact %d to segment %d: %v", contactID, segment.ID, err)
			continue
		}
		added++
	}

	var count int64
	sc.DB.Model(&models.SegmentMember{}).Where("segment_id = ?", segment.ID).Count(&count)
	sc.DB.Model(segment).Update("member_count", count)
	return added
}

// RemoveMember removes one contact from a static segment
func (sc *SegmentController) RemoveMember(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}
	if segment.Type != models.SegmentTypeStatic {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Members can only be removed from static segments", nil)
	}

	contactID := utils.ParseUint(c.Params("contactID"))
	if err := sc.DB.Where("segment_id = ? AND contact_id = ?", segment.ID, contactID).
		Delete(&models.SegmentMember{}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove member", err)
	}

	var count int64
	sc.DB.Model(&models.SegmentMember{}).Where("segment_id = ?", segment.ID).Count(&count)
	sc.DB.Model(&segment).Update("member_count", count)

	return c.JSON(fiber.Map{"success": true, "member_count": count})
}

// RecalculateSegment refreshes a dynamic segment's cached membership
func (sc *SegmentController) RecalculateSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	segmentID := utils.ParseUint(c.Params("id"))

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", segmentID, user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	updated, err := sc.Resolver.Recalculate(c.Context(), segmentID)
	if err != nil {
		return utils.EngineError(c, err)
	}

	return c.JSON(utils.SuccessResponse(updated))
}

// ValidateFilters previews a criteria tree's validity and match size without
// committing anything
func (sc *SegmentController) ValidateFilters(c *fiber.Ctx) error {
	var input struct {
		FilterCriteria *models.FilterGroup `json:"filter_criteria"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	result, err := sc.Resolver.Validate(c.Context(), input.FilterCriteria)
	if err != nil {
		return utils.EngineError(c, err)
	}

	return c.JSON(utils.SuccessResponse(result))
}

// EnrollInSequence enrolls the segment's current member set into a sequence
func (sc *SegmentController) EnrollInSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	segmentID := utils.ParseUint(c.Params("id"))

	var segment models.Segment
	if err := sc.DB.Where("id = ? AND user_id = ?", segmentID, user.ID).First(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	var input struct {
		SequenceID uint   `json:"sequence_id" validate:"required"`
		Notes      string `json:"notes" validate:"omitempty,max=2000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	result, err := sc.Enrollments.EnrollSegment(c.Context(), segmentID, input.SequenceID, input.Notes)
	if err != nil {
		return utils.EngineError(c, err)
	}

	sc.Logger.Printf("Enrolled segment %d into sequence %d: %d enrolled, %d skipped of %d",
		segmentID, input.SequenceID, result.EnrolledCount, result.SkippedCount, result.TotalMembers)
	return c.JSON(utils.SuccessResponse(result))
}
