package httptransport

import (
	"github.com/gin-gonic/gin"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/middleware"
)

type taskListResponse struct {
	Items []domain.Task `json:"items"`
	Count int           `json:"count"`
}

type noteListResponse struct {
	Items []domain.Note `json:"items"`
	Count int           `json:"count"`
}

// listTasks godoc
// @Summary List tasks
// @Tags Planner
// @Produce json
// @Success 200 {object} taskListResponse
// @Router /v1/tasks [get]
func (h *Handler) listTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	Success(c, taskListResponse{Items: tasks, Count: len(tasks)})
}

// listNotes godoc
// @Summary List notes
// @Tags Planner
// @Produce json
// @Success 200 {object} noteListResponse
// @Router /v1/notes [get]
func (h *Handler) listNotes(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	Success(c, noteListResponse{Items: notes, Count: len(notes)})
}
