package engine

import (
	"context"
	"errors"
	"testing"

	"reachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateDrafter(t *testing.T) {
	d := TemplateDrafter{}

	t.Run("expands contact placeholders", func(t *testing.T) {
		content, err := d.Draft(context.Background(), DraftRequest{
			Contact: models.Contact{FirstName: "Anna", Company: "Grand Hotel"},
			Template: models.EmailTemplate{
				Subject:  "Hi {{.FirstName}}",
				BodyHTML: "<p>Hello {{.FirstName}} at {{.Company}}</p>",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hi Anna", content.Subject)
		assert.Equal(t, "<p>Hello Anna at Grand Hotel</p>", content.Body)
	})

	t.Run("missing first name gets a neutral greeting", func(t *testing.T) {
		content, err := d.Draft(context.Background(), DraftRequest{
			Contact:  models.Contact{Company: "Grand Hotel"},
			Template: models.EmailTemplate{Subject: "Hi {{.FirstName}}", BodyHTML: "x"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hi there", content.Subject)
	})

	t.Run("broken template errors", func(t *testing.T) {
		_, err := d.Draft(context.Background(), DraftRequest{
			Template: models.EmailTemplate{Subject: "{{.Broken", BodyHTML: "x"},
		})
		require.Error(t, err)
	})
}

func TestFallbackDrafter(t *testing.T) {
	req := DraftRequest{
		Contact:  models.Contact{FirstName: "Anna"},
		Template: models.EmailTemplate{Subject: "Hi {{.FirstName}}", BodyHTML: "<p>x</p>"},
	}

	t.Run("primary wins when healthy", func(t *testing.T) {
		primary := &stubDrafter{}
		f := &FallbackDrafter{Primary: primary, Fallback: TemplateDrafter{}, Logger: testLogger()}

		content, err := f.Draft(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 1, primary.calls)
		assert.Contains(t, content.Subject, "Anna")
	})

	t.Run("falls back to template rendering", func(t *testing.T) {
		primary := &stubDrafter{err: errors.New("rate limited")}
		f := &FallbackDrafter{Primary: primary, Fallback: TemplateDrafter{}, Logger: testLogger()}

		content, err := f.Draft(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "Hi Anna", content.Subject)
	})
}

func TestParseDraftReply(t *testing.T) {
	t.Run("subject line plus body", func(t *testing.T) {
		content, err := parseDraftReply("Subject: Quick question\n\n<p>Hi Anna,</p>")
		require.NoError(t, err)
		assert.Equal(t, "Quick question", content.Subject)
		assert.Equal(t, "<p>Hi Anna,</p>", content.Body)
	})

	t.Run("missing body", func(t *testing.T) {
		_, err := parseDraftReply("Subject: Quick question")
		require.Error(t, err)
	})

	t.Run("empty subject", func(t *testing.T) {
		_, err := parseDraftReply("Subject:\n<p>body</p>")
		require.Error(t, err)
	})
}
