package service

import (
	"context"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/storage"
)

// TaskService lists tasks created by analysis.
type TaskService struct {
	repo storage.TaskRepository
}

// NewTaskService creates the task service.
func NewTaskService(repo storage.TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

// List returns the user's tasks, newest first.
func (s *TaskService) List(ctx context.Context, userID string) ([]domain.Task, error) {
	return s.repo.ListTasks(ctx, userID)
}

// NoteService lists notes created by analysis.
type NoteService struct {
	repo storage.NoteRepository
}

// NewNoteService creates the note service.
func NewNoteService(repo storage.NoteRepository) *NoteService {
	return &NoteService{repo: repo}
}

// List returns the user's notes, newest first.
func (s *NoteService) List(ctx context.Context, userID string) ([]domain.Note, error) {
	return s.repo.ListNotes(ctx, userID)
}
