package routes

import (
	"log"
	"os"

	controller "reachly/controllers"
	"reachly/engine"
	"reachly/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

// Deps carries the shared engine services the controllers sit on
type Deps struct {
	Resolver    *engine.Resolver
	Enrollments *engine.EnrollmentManager
	Review      *engine.ReviewService
}

func SetupRoutes(app *fiber.App, db *gorm.DB, deps Deps) {
	segmentController := controller.NewSegmentController(db, log.New(os.Stdout, "SEGMENT: ", log.LstdFlags), deps.Resolver, deps.Enrollments)
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))
	enrollmentController := controller.NewEnrollmentController(db, log.New(os.Stdout, "ENROLLMENT: ", log.LstdFlags), deps.Enrollments)
	draftController := controller.NewDraftController(db, log.New(os.Stdout, "DRAFT: ", log.LstdFlags), deps.Review)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Segment routes
	segment := api.Group("/segments")
	segment.Post("/", segmentController.CreateSegment)
	segment.Get("/", segmentController.GetSegments)
	segment.Post("/validate_filters", segmentController.ValidateFilters)
	segment.Get("/:id", segmentController.GetSegment)
	segment.Put("/:id", segmentController.UpdateSegment)
	segment.Delete("/:id", segmentController.DeleteSegment)
	segment.Post("/:id/members", segmentController.AddMembers)
	segment.Delete("/:id/members/:contactID", segmentController.RemoveMember)
	segment.Post("/:id/recalculate", segmentController.RecalculateSegment)
	segment.Post("/:id/enroll_in_sequence", middleware.EnrollRateLimiter(), segmentController.EnrollInSequence)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Post("/:id/activate", sequenceController.ActivateSequence)
	sequence.Post("/:id/pause", sequenceController.PauseSequence)
	sequence.Post("/:id/steps", sequenceController.CreateStep)
	api.Put("/sequence-steps/:id", sequenceController.UpdateStep)
	api.Delete("/sequence-steps/:id", sequenceController.DeleteStep)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)

	// Enrollment routes
	enrollment := api.Group("/prospect-enrollments")
	enrollment.Post("/", enrollmentController.EnrollContact)
	enrollment.Get("/", enrollmentController.GetEnrollments)
	enrollment.Get("/:id", enrollmentController.GetEnrollment)
	enrollment.Post("/:id/pause", enrollmentController.PauseEnrollment)
	enrollment.Post("/:id/resume", enrollmentController.ResumeEnrollment)
	enrollment.Post("/:id/cancel", enrollmentController.CancelEnrollment)

	// Draft review routes
	draft := api.Group("/ai-email-drafts")
	draft.Get("/", draftController.GetDrafts)
	draft.Get("/pending_count", draftController.GetPendingCount)
	draft.Get("/:id", draftController.GetDraft)
	draft.Post("/:id/approve", draftController.ApproveDraft)
	draft.Post("/:id/reject", draftController.RejectDraft)
	draft.Post("/:id/edit_and_approve", draftController.EditAndApproveDraft)
}
