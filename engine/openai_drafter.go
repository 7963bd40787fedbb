package engine

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const draftSystemPrompt = `You are an outreach copywriter. Rewrite the given
email template into a short, personalized outreach email for the given
contact. Keep the sender's intent and any links intact. Respond with the
subject on the first line prefixed "Subject: ", then a blank line, then the
email body as HTML.`

// OpenAIDrafter produces draft content through a chat completion, using the
// step template as the base material and the contact fields for
// personalization.
type OpenAIDrafter struct {
	client *openai.Client
	model  string
}

func NewOpenAIDrafter(apiKey, model string) *OpenAIDrafter {
	return &OpenAIDrafter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (d *OpenAIDrafter) Draft(ctx context.Context, req DraftRequest) (*DraftContent, error) {
	userPrompt := fmt.Sprintf(
		"Sequence: %s (step %d)\nContact: %s %s, %s at %s (%s, %s)\n\nTemplate subject: %s\nTemplate body:\n%s",
		req.SequenceName, req.StepNumber,
		req.Contact.FirstName, req.Contact.LastName,
		req.Contact.Position, req.Contact.Company,
		req.Contact.City, req.Contact.Country,
		req.Template.Subject, req.Template.BodyHTML,
	)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: draftSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return parseDraftReply(resp.Choices[0].Message.Content)
}

// parseDraftReply splits the model's reply into subject and body. The model
// is instructed to lead with a "Subject: " line; anything after the first
// blank line is the body.
func parseDraftReply(reply string) (*DraftContent, error) {
	reply = strings.TrimSpace(reply)
	line, rest, found := strings.Cut(reply, "\n")
	if !found {
		return nil, fmt.Errorf("malformed draft reply: no body")
	}

	subject := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "Subject:"))
	if subject == "" {
		return nil, fmt.Errorf("malformed draft reply: empty subject")
	}

	body := strings.TrimSpace(rest)
	if body == "" {
		return nil, fmt.Errorf("malformed draft reply: empty body")
	}

	return &DraftContent{Subject: subject, Body: body}, nil
}
