package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"reachly/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema. The
// single-connection pool keeps every query on the same sqlite memory instance.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.ContactTag{},
		&models.Segment{},
		&models.SegmentMember{},
		&models.EmailTemplate{},
		&models.EmailSequence{},
		&models.SequenceStep{},
		&models.ProspectEnrollment{},
		&models.AIEmailDraft{},
	))
	return db
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestResolver(db *gorm.DB) *Resolver {
	return NewResolver(db, testLogger())
}

func newTestEnrollments(db *gorm.DB) *EnrollmentManager {
	return NewEnrollmentManager(db, newTestResolver(db), testLogger(), 500)
}

func seedContact(t *testing.T, db *gorm.DB, c models.Contact) *models.Contact {
	t.Helper()
	if c.Email == "" {
		c.Email = fmt.Sprintf("%s.%s@example.com", c.FirstName, c.LastName)
	}
	require.NoError(t, db.Create(&c).Error)
	return &c
}

func seedTag(t *testing.T, db *gorm.DB, contactID uint, tag string) {
	t.Helper()
	require.NoError(t, db.Create(&models.ContactTag{ContactID: contactID, Tag: tag}).Error)
}

func seedTemplate(t *testing.T, db *gorm.DB, subject, body string) *models.EmailTemplate {
	t.Helper()
	tmpl := models.EmailTemplate{Name: "test template", Subject: subject, BodyHTML: body}
	require.NoError(t, db.Create(&tmpl).Error)
	return &tmpl
}

// seedSequence creates an active sequence with the given steps, backed by a
// shared plain template.
func seedSequence(t *testing.T, db *gorm.DB, name, status string, steps ...models.SequenceStep) *models.EmailSequence {
	t.Helper()
	seq := models.EmailSequence{Name: name, Status: status}
	require.NoError(t, db.Create(&seq).Error)

	tmpl := seedTemplate(t, db, "Hi {{.FirstName}}", "<p>Hello {{.FirstName}} at {{.Company}}</p>")
	for i := range steps {
		steps[i].SequenceID = seq.ID
		if steps[i].TemplateID == 0 {
			steps[i].TemplateID = tmpl.ID
		}
		require.NoError(t, db.Create(&steps[i]).Error)
	}
	return &seq
}

// seedStaticSegment creates a static segment whose members are the given
// contacts.
func seedStaticSegment(t *testing.T, db *gorm.DB, name string, contacts ...*models.Contact) *models.Segment {
	t.Helper()
	seg := models.Segment{Name: name, Type: models.SegmentTypeStatic, Status: models.SegmentStatusActive, MemberCount: len(contacts)}
	require.NoError(t, db.Create(&seg).Error)
	for _, c := range contacts {
		require.NoError(t, db.Create(&models.SegmentMember{SegmentID: seg.ID, ContactID: c.ID}).Error)
	}
	return &seg
}

func seedEnrollment(t *testing.T, db *gorm.DB, contactID, sequenceID uint, status string, currentStep int, enrolledAt time.Time) *models.ProspectEnrollment {
	t.Helper()
	enr := models.ProspectEnrollment{
		ContactID:         contactID,
		SequenceID:        sequenceID,
		Status:            status,
		CurrentStepNumber: currentStep,
		EnrolledAt:        enrolledAt,
	}
	require.NoError(t, db.Create(&enr).Error)
	return &enr
}

func reloadEnrollment(t *testing.T, db *gorm.DB, id uint) *models.ProspectEnrollment {
	t.Helper()
	var enr models.ProspectEnrollment
	require.NoError(t, db.First(&enr, id).Error)
	return &enr
}

func reloadDraft(t *testing.T, db *gorm.DB, id uint) *models.AIEmailDraft {
	t.Helper()
	var draft models.AIEmailDraft
	require.NoError(t, db.First(&draft, id).Error)
	return &draft
}

// stubDrafter records calls and returns a deterministic subject/body.
type stubDrafter struct {
	calls int
	err   error
}

func (d *stubDrafter) Draft(_ context.Context, req DraftRequest) (*DraftContent, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &DraftContent{
		Subject: fmt.Sprintf("Step %d for %s", req.StepNumber, req.Contact.FirstName),
		Body:    fmt.Sprintf("<p>Hello %s</p>", req.Contact.FirstName),
	}, nil
}

// recorderSender captures outbound emails instead of delivering them.
type recorderSender struct {
	sent []OutboundEmail
	err  error
}

func (s *recorderSender) Send(_ context.Context, msg OutboundEmail) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}
