// Package extraction turns a stored email into tasks and notes.
//
// Candidates come from a chain of Generators; the Engine tries them in
// order and materializes the first successful result.
package extraction

import (
	"context"
	"errors"
	"time"

	"assistant/backend/internal/domain"
)

var (
	// ErrQuotaExceeded is returned when the AI provider rejects a call for
	// rate or quota reasons.
	ErrQuotaExceeded = errors.New("ai quota or rate limit exceeded")
	// ErrMalformedOutput is returned when the model's reply is not the
	// expected JSON document.
	ErrMalformedOutput = errors.New("ai returned malformed output")
)

// TaskCandidate is a task proposed for one message.
type TaskCandidate struct {
	Title       string
	Description string
	Due         *time.Time
}

// NoteCandidate is a note proposed for one message.
type NoteCandidate struct {
	Title   string
	Content string
}

// Result is the ordered output of one generator run.
type Result struct {
	Tasks []TaskCandidate
	Notes []NoteCandidate
}

// Generator proposes candidates for a message.
type Generator interface {
	Name() string
	Generate(ctx context.Context, msg *domain.StoredMessage) (*Result, error)
}

// failureCategory labels a generator error for logs and metrics.
func failureCategory(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	default:
		return "error"
	}
}
