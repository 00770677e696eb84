package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"assistant/backend/internal/domain"
)

const (
	heuristicSubjectRunes = 200
	heuristicTaskBody     = 500
	heuristicNoteBody     = 2000
)

// HeuristicGenerator always succeeds with one follow-up task and one
// summary note built from fixed templates.
type HeuristicGenerator struct {
	now func() time.Time
}

// NewHeuristicGenerator creates the template generator.
func NewHeuristicGenerator() *HeuristicGenerator {
	return &HeuristicGenerator{now: time.Now}
}

// Name implements Generator.
func (g *HeuristicGenerator) Name() string { return "heuristic" }

// Generate implements Generator.
func (g *HeuristicGenerator) Generate(_ context.Context, msg *domain.StoredMessage) (*Result, error) {
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		sender := msg.FromEmail
		if sender == "" {
			sender = "unknown sender"
		}
		subject = "Email from " + sender
	}
	subject = domain.Truncate(subject, heuristicSubjectRunes)

	body := strings.TrimSpace(msg.Body())
	due := g.now()

	task := TaskCandidate{
		Title: "Follow up: " + subject,
		Description: fmt.Sprintf(
			"Auto-created from email.\n\nFrom: %s\nTo: %s\n\nSubject: %s\n\nFirst part of body:\n%s",
			msg.FromEmail, msg.ToEmails, msg.Subject, domain.Truncate(body, heuristicTaskBody),
		),
		Due: &due,
	}

	note := NoteCandidate{
		Title: "Summary for: " + subject,
		Content: fmt.Sprintf(
			"Auto-created summary from email.\n\nFrom: %s\nTo: %s\n\nSubject: %s\n\nBody (truncated):\n%s",
			msg.FromEmail, msg.ToEmails, msg.Subject, domain.Truncate(body, heuristicNoteBody),
		),
	}

	return &Result{
		Tasks: []TaskCandidate{task},
		Notes: []NoteCandidate{note},
	}, nil
}
