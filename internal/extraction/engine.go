package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/monitoring"
)

// ErrNoGenerator is returned when every generator failed or none is set.
var ErrNoGenerator = errors.New("no generator produced a result")

// Store is where materialized candidates are written.
type Store interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	CreateNote(ctx context.Context, note *domain.Note) error
}

// Outcome is what one analysis created.
type Outcome struct {
	Tasks     []domain.Task
	Notes     []domain.Note
	Generator string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the zone used for note dates.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithMetrics records runs and failures.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs generators in order and stores the first result.
type Engine struct {
	generators []Generator
	store      Store
	location   *time.Location
	metrics    *monitoring.Metrics
	log        *zap.Logger
	now        func() time.Time
}

// DefaultGenerators returns the AI generator when configured, followed by
// the heuristic one.
func DefaultGenerators(cfg config.AIConfig, loc *time.Location, log *zap.Logger) []Generator {
	var generators []Generator
	if ai := NewOpenAIGenerator(cfg, loc, log); ai != nil {
		generators = append(generators, ai)
	} else if log != nil {
		log.Warn("AI API key not configured; analysis uses the heuristic generator only")
	}
	return append(generators, NewHeuristicGenerator())
}

// NewEngine creates an engine over generators, tried in the given order.
func NewEngine(store Store, generators []Generator, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		generators: generators,
		store:      store,
		location:   time.UTC,
		log:        log.Named("extraction"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze extracts and stores tasks and notes for msg. It fails only when
// no generator succeeds; individual create failures are logged.
func (e *Engine) Analyze(ctx context.Context, msg *domain.StoredMessage) (*Outcome, error) {
	log := e.log.With(zap.String("message_id", msg.ID))
	log.Info("starting analysis", zap.String("subject", msg.Subject))

	var errs []error
	for _, gen := range e.generators {
		result, err := gen.Generate(ctx, msg)
		if err != nil {
			category := failureCategory(err)
			log.Warn("generator failed, trying next",
				zap.String("generator", gen.Name()),
				zap.String("category", category),
				zap.Error(err),
			)
			e.metrics.RecordExtractionFailure(gen.Name(), category)
			errs = append(errs, fmt.Errorf("%s: %w", gen.Name(), err))
			continue
		}

		outcome := e.materialize(ctx, msg, result, log)
		outcome.Generator = gen.Name()
		e.metrics.RecordExtraction(gen.Name(), len(outcome.Tasks), len(outcome.Notes))

		log.Info("analysis finished",
			zap.String("generator", gen.Name()),
			zap.Int("tasks", len(outcome.Tasks)),
			zap.Int("notes", len(outcome.Notes)),
		)
		return outcome, nil
	}

	return nil, errors.Join(append([]error{ErrNoGenerator}, errs...)...)
}

func (e *Engine) materialize(ctx context.Context, msg *domain.StoredMessage, result *Result, log *zap.Logger) *Outcome {
	outcome := &Outcome{
		Tasks: []domain.Task{},
		Notes: []domain.Note{},
	}
	now := e.now().UTC()
	sourceID := msg.ID

	for i, candidate := range result.Tasks {
		title := strings.TrimSpace(candidate.Title)
		if title == "" {
			log.Debug("skipping task with empty title", zap.Int("index", i))
			continue
		}

		task := domain.Task{
			ID:              uuid.New().String(),
			UserID:          msg.UserID,
			Title:           domain.Truncate(title, domain.MaxTitleLength),
			Description:     candidate.Description,
			Status:          domain.TaskTodo,
			DueDate:         candidate.Due,
			SourceMessageID: &sourceID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.store.CreateTask(ctx, &task); err != nil {
			log.Error("failed to create task", zap.Int("index", i), zap.Error(err))
			continue
		}
		log.Info("task created", zap.String("task_id", task.ID), zap.String("title", task.Title))
		outcome.Tasks = append(outcome.Tasks, task)
	}

	today := e.today()
	for i, candidate := range result.Notes {
		title := strings.TrimSpace(candidate.Title)
		if title == "" {
			log.Debug("skipping note with empty title", zap.Int("index", i))
			continue
		}

		date := today
		note := domain.Note{
			ID:              uuid.New().String(),
			UserID:          msg.UserID,
			Type:            domain.NoteGeneral,
			Date:            &date,
			Title:           domain.Truncate(title, domain.MaxTitleLength),
			Content:         candidate.Content,
			SourceMessageID: &sourceID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.store.CreateNote(ctx, &note); err != nil {
			log.Error("failed to create note", zap.Int("index", i), zap.Error(err))
			continue
		}
		log.Info("note created", zap.String("note_id", note.ID), zap.String("title", note.Title))
		outcome.Notes = append(outcome.Notes, note)
	}

	return outcome
}

// today is the current calendar date in the engine's zone, as midnight UTC.
func (e *Engine) today() time.Time {
	y, m, d := e.now().In(e.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
