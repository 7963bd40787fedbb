package engine

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"

	"reachly/models"
)

// DraftRequest carries everything the drafting collaborator needs to produce
// one step's email for one contact.
type DraftRequest struct {
	Contact      models.Contact
	Template     models.EmailTemplate
	StepNumber   int
	SequenceName string
}

// DraftContent is the produced subject/body pair.
type DraftContent struct {
	Subject string
	Body    string
}

// Drafter produces email content for a due step. Implementations must be
// side-effect free; the scheduler owns persistence of the result.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (*DraftContent, error)
}

// TemplateDrafter renders the step's stored template directly, expanding
// {{.FirstName}}-style placeholders from the contact. It is the fallback
// when no AI drafter is configured or the AI call fails.
type TemplateDrafter struct{}

// templateData is the placeholder namespace exposed to templates.
type templateData struct {
	FirstName string
	LastName  string
	Company   string
	Position  string
	Industry  string
	Country   string
	City      string
	Email     string
}

func (TemplateDrafter) Draft(_ context.Context, req DraftRequest) (*DraftContent, error) {
	data := templateData{
		FirstName: req.Contact.FirstName,
		LastName:  req.Contact.LastName,
		Company:   req.Contact.Company,
		Position:  req.Contact.Position,
		Industry:  req.Contact.Industry,
		Country:   req.Contact.Country,
		City:      req.Contact.City,
		Email:     req.Contact.Email,
	}
	if data.FirstName == "" {
		data.FirstName = "there"
	}

	subject, err := renderTemplate("subject", req.Template.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	body, err := renderTemplate("body", req.Template.BodyHTML, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	return &DraftContent{Subject: subject, Body: body}, nil
}

func renderTemplate(name, src string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FallbackDrafter tries the primary drafter and falls back to the secondary
// when it fails, so a flaky AI backend degrades to plain template rendering
// instead of stalling the scheduler.
type FallbackDrafter struct {
	Primary  Drafter
	Fallback Drafter
	Logger   *log.Logger
}

func (f *FallbackDrafter) Draft(ctx context.Context, req DraftRequest) (*DraftContent, error) {
	content, err := f.Primary.Draft(ctx, req)
	if err == nil {
		return content, nil
	}
	if f.Logger != nil {
		f.Logger.Printf("Primary drafter failed for contact %d step %d, falling back: %v",
			req.Contact.ID, req.StepNumber, err)
	}
	return f.Fallback.Draft(ctx, req)
}
