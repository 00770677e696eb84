package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
)

const (
	defaultModel     = "gpt-4o-mini"
	maxPromptBody    = 6000
	truncationMarker = "\n\n[... truncated ...]"
)

const systemPrompt = `You are a productivity assistant. Read the email and extract actionable tasks and key notes.

Return STRICTLY valid JSON with this structure:
{
  "tasks": [
    {"title": "...", "description": "...", "due_date": "YYYY-MM-DD" or null}
  ],
  "notes": [
    {"title": "...", "content": "..."}
  ]
}

Rules:
- Only create tasks if there is a clear action item.
- due_date can be null if unclear.
`

// OpenAIGenerator asks an OpenAI-compatible chat model for candidates.
type OpenAIGenerator struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	location *time.Location
	log      *zap.Logger
}

// NewOpenAIGenerator returns nil when no API key is configured.
func NewOpenAIGenerator(cfg config.AIConfig, loc *time.Location, log *zap.Logger) *OpenAIGenerator {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if loc == nil {
		loc = time.UTC
	}

	return &OpenAIGenerator{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		timeout:  cfg.Timeout,
		location: loc,
		log:      log.Named("openai"),
	}
}

// Name implements Generator.
func (g *OpenAIGenerator) Name() string { return "openai" }

type aiReply struct {
	Tasks []struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		DueDate     *string `json:"due_date"`
	} `json:"tasks"`
	Notes []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"notes"`
}

// Generate implements Generator. It makes exactly one call.
func (g *OpenAIGenerator) Generate(ctx context.Context, msg *domain.StoredMessage) (*Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	g.log.Info("calling model", zap.String("model", g.model), zap.String("message_id", msg.ID))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(msg)},
		},
	})
	if err != nil {
		if isQuotaError(err) {
			return nil, fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedOutput)
	}

	raw := resp.Choices[0].Message.Content
	g.log.Debug("raw model reply", zap.String("content", raw))

	var reply aiReply
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	result := &Result{}
	for _, t := range reply.Tasks {
		candidate := TaskCandidate{Title: t.Title, Description: strings.TrimSpace(t.Description)}
		if t.DueDate != nil {
			if due, ok := ParseDueDate(*t.DueDate, g.location); ok {
				candidate.Due = &due
			} else {
				g.log.Warn("unparsable due date", zap.String("due_date", *t.DueDate))
			}
		}
		result.Tasks = append(result.Tasks, candidate)
	}
	for _, n := range reply.Notes {
		result.Notes = append(result.Notes, NoteCandidate{Title: n.Title, Content: strings.TrimSpace(n.Content)})
	}
	return result, nil
}

// userPrompt lays out the message for the model, clipping long bodies.
func userPrompt(msg *domain.StoredMessage) string {
	body := msg.Body()
	if len([]rune(body)) > maxPromptBody {
		body = domain.Truncate(body, maxPromptBody) + truncationMarker
	}
	return fmt.Sprintf("Subject: %s\nFrom: %s\nTo: %s\n\nBody:\n%s", msg.Subject, msg.FromEmail, msg.ToEmails, body)
}

// isQuotaError matches HTTP 429 and the provider's quota error codes.
func isQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		code := fmt.Sprint(apiErr.Code)
		return isQuotaCode(code) || isQuotaCode(apiErr.Type)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

func isQuotaCode(code string) bool {
	return code == "insufficient_quota" || code == "rate_limit_exceeded"
}
