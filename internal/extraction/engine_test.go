package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/monitoring"
	"assistant/backend/internal/storage/memory"
)

type MockGenerator struct {
	mock.Mock
	name string
}

func (m *MockGenerator) Name() string { return m.name }

func (m *MockGenerator) Generate(ctx context.Context, msg *domain.StoredMessage) (*Result, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

// failingStore rejects task creation and otherwise delegates.
type failingStore struct {
	*memory.Store
}

func (failingStore) CreateTask(context.Context, *domain.Task) error {
	return errors.New("disk full")
}

func testMessage() *domain.StoredMessage {
	return &domain.StoredMessage{
		ID:        "msg-1",
		UserID:    "user-1",
		AccountID: "acct-1",
		Subject:   "Renew lease",
		FromEmail: "landlord@example.com",
		ToEmails:  "me@example.com",
		BodyText:  "Please renew by March 1st.",
	}
}

func TestEngine_NoAIKeyUsesHeuristic(t *testing.T) {
	store := memory.NewStore()
	generators := DefaultGenerators(config.AIConfig{}, time.UTC, zap.NewNop())
	require.Len(t, generators, 1)

	engine := NewEngine(store, generators, zap.NewNop())
	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, "heuristic", outcome.Generator)
	require.Len(t, outcome.Tasks, 1)
	require.Len(t, outcome.Notes, 1)
	assert.Equal(t, "Follow up: Renew lease", outcome.Tasks[0].Title)
	assert.Equal(t, "Summary for: Renew lease", outcome.Notes[0].Title)
	assert.Equal(t, domain.TaskTodo, outcome.Tasks[0].Status)
	assert.Equal(t, domain.NoteGeneral, outcome.Notes[0].Type)
	assert.Equal(t, "user-1", outcome.Tasks[0].UserID)
	require.NotNil(t, outcome.Tasks[0].SourceMessageID)
	assert.Equal(t, "msg-1", *outcome.Tasks[0].SourceMessageID)

	tasks, err := store.ListTasks(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	notes, err := store.ListNotes(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestEngine_QuotaFallsBackToHeuristic(t *testing.T) {
	ai := &MockGenerator{name: "openai"}
	ai.On("Generate", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: 429 Too Many Requests", ErrQuotaExceeded)).Once()

	metrics := monitoring.NewMetrics()
	engine := NewEngine(memory.NewStore(), []Generator{ai, NewHeuristicGenerator()}, zap.NewNop(), WithMetrics(metrics))

	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "heuristic", outcome.Generator)
	assert.Len(t, outcome.Tasks, 1)
	assert.Len(t, outcome.Notes, 1)

	ai.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExtractionFailuresTotal.WithLabelValues("openai", "quota")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExtractionRunsTotal.WithLabelValues("heuristic")))
}

func TestEngine_MalformedFallsBack(t *testing.T) {
	ai := &MockGenerator{name: "openai"}
	ai.On("Generate", mock.Anything, mock.Anything).Return(nil, ErrMalformedOutput).Once()

	engine := NewEngine(memory.NewStore(), []Generator{ai, NewHeuristicGenerator()}, zap.NewNop())
	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "heuristic", outcome.Generator)
}

func TestEngine_SkipsBlankTitles(t *testing.T) {
	ai := &MockGenerator{name: "openai"}
	ai.On("Generate", mock.Anything, mock.Anything).Return(&Result{
		Tasks: []TaskCandidate{{Title: "   ", Description: "nothing"}},
		Notes: []NoteCandidate{{Title: "Lease terms", Content: "12 months"}},
	}, nil).Once()

	engine := NewEngine(memory.NewStore(), []Generator{ai, NewHeuristicGenerator()}, zap.NewNop())
	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, "openai", outcome.Generator)
	assert.Empty(t, outcome.Tasks)
	require.Len(t, outcome.Notes, 1)
	assert.Equal(t, "Lease terms", outcome.Notes[0].Title)
}

func TestEngine_TitleTruncatedAndDueKept(t *testing.T) {
	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	long := strings.Repeat("t", 300)

	ai := &MockGenerator{name: "openai"}
	ai.On("Generate", mock.Anything, mock.Anything).Return(&Result{
		Tasks: []TaskCandidate{{Title: "  " + long + "  ", Due: &due}},
	}, nil).Once()

	engine := NewEngine(memory.NewStore(), []Generator{ai}, zap.NewNop())
	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)

	require.Len(t, outcome.Tasks, 1)
	assert.Len(t, outcome.Tasks[0].Title, domain.MaxTitleLength)
	require.NotNil(t, outcome.Tasks[0].DueDate)
	assert.Equal(t, due, *outcome.Tasks[0].DueDate)
}

func TestEngine_CreateFailureIsSkipped(t *testing.T) {
	engine := NewEngine(failingStore{memory.NewStore()}, []Generator{NewHeuristicGenerator()}, zap.NewNop())

	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Empty(t, outcome.Tasks)
	assert.Len(t, outcome.Notes, 1)
}

func TestEngine_AllGeneratorsFail(t *testing.T) {
	ai := &MockGenerator{name: "openai"}
	ai.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

	engine := NewEngine(memory.NewStore(), []Generator{ai}, zap.NewNop())
	_, err := engine.Analyze(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrNoGenerator)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEngine_NoteDateUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	engine := NewEngine(memory.NewStore(), []Generator{NewHeuristicGenerator()}, zap.NewNop(), WithLocation(tokyo))
	// 20:00 UTC on March 1st is already March 2nd in Tokyo.
	engine.now = func() time.Time { return time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC) }

	outcome, err := engine.Analyze(context.Background(), testMessage())
	require.NoError(t, err)
	require.Len(t, outcome.Notes, 1)
	require.NotNil(t, outcome.Notes[0].Date)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), *outcome.Notes[0].Date)
}
