package service

import (
	"context"
	"strings"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageService reads stored messages and toggles their flags.
type MessageService struct {
	repo storage.MessageRepository
}

// NewMessageService creates the message service.
func NewMessageService(repo storage.MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

// ListMessagesInput holds raw listing parameters as received from a client.
type ListMessagesInput struct {
	AccountID string
	Folder    string
	IsRead    *bool
	Query     string
	Limit     int
	Offset    int
}

// List returns the user's messages, newest first.
func (s *MessageService) List(ctx context.Context, userID string, input ListMessagesInput) ([]domain.StoredMessage, error) {
	filter := domain.MessageFilter{
		UserID:    userID,
		AccountID: strings.TrimSpace(input.AccountID),
		IsRead:    input.IsRead,
		Query:     strings.TrimSpace(input.Query),
		Limit:     input.Limit,
		Offset:    input.Offset,
	}

	if input.Folder != "" {
		folder, err := domain.ParseFolder(input.Folder)
		if err != nil {
			return nil, invalid(err)
		}
		filter.Folder = folder
	}
	if filter.Offset < 0 {
		return nil, invalidf("offset must not be negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageSize
	case filter.Limit > maxPageSize:
		filter.Limit = maxPageSize
	}

	return s.repo.ListMessages(ctx, filter)
}

// Get returns one of the user's messages.
func (s *MessageService) Get(ctx context.Context, userID, id string) (*domain.StoredMessage, error) {
	return s.repo.GetMessage(ctx, userID, id)
}

// UpdateFlags sets the read and starred flags that are present in flags.
func (s *MessageService) UpdateFlags(ctx context.Context, userID, id string, flags domain.MessageFlags) (*domain.StoredMessage, error) {
	if flags.IsRead == nil && flags.IsStarred == nil {
		return nil, invalidf("no flag to update")
	}
	return s.repo.UpdateMessageFlags(ctx, userID, id, flags)
}
