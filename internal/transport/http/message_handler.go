package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/middleware"
	"assistant/backend/internal/service"
)

type messageListResponse struct {
	Items  []domain.StoredMessage `json:"items"`
	Count  int                    `json:"count"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// listMessages godoc
// @Summary List imported messages
// @Tags EmailMessages
// @Produce json
// @Param account query string false "account id"
// @Param folder query string false "folder"
// @Param is_read query bool false "read flag"
// @Param q query string false "search text"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} messageListResponse
// @Router /v1/email-messages [get]
func (h *Handler) listMessages(c *gin.Context) {
	input := service.ListMessagesInput{
		AccountID: c.Query("account"),
		Folder:    c.Query("folder"),
		Query:     c.Query("q"),
	}

	if raw := c.Query("is_read"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, MsgInvalidIsRead)
			return
		}
		input.IsRead = &isRead
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(c, MsgInvalidLimit)
			return
		}
		input.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(c, MsgInvalidOffset)
			return
		}
		input.Offset = n
	}

	messages, err := h.messages.List(c.Request.Context(), middleware.UserID(c), input)
	if err != nil {
		respondError(c, err, MsgMessageNotFound)
		return
	}
	if messages == nil {
		messages = []domain.StoredMessage{}
	}

	Success(c, messageListResponse{
		Items:  messages,
		Count:  len(messages),
		Limit:  input.Limit,
		Offset: input.Offset,
	})
}

// getMessage godoc
// @Summary Get one message
// @Tags EmailMessages
// @Produce json
// @Param id path string true "message id"
// @Success 200 {object} domain.StoredMessage
// @Failure 404 {object} Response
// @Router /v1/email-messages/{id} [get]
func (h *Handler) getMessage(c *gin.Context) {
	msg, err := h.messages.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, MsgMessageNotFound)
		return
	}
	Success(c, msg)
}

// updateMessageFlags godoc
// @Summary Toggle read/starred
// @Tags EmailMessages
// @Accept json
// @Produce json
// @Param id path string true "message id"
// @Param request body domain.MessageFlags true "flags"
// @Success 200 {object} domain.StoredMessage
// @Router /v1/email-messages/{id} [patch]
func (h *Handler) updateMessageFlags(c *gin.Context) {
	var flags domain.MessageFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	msg, err := h.messages.UpdateFlags(c.Request.Context(), middleware.UserID(c), c.Param("id"), flags)
	if err != nil {
		respondError(c, err, MsgMessageNotFound)
		return
	}
	Success(c, msg)
}

// analyzeMessage godoc
// @Summary Extract tasks and notes from a message
// @Tags EmailMessages
// @Produce json
// @Param id path string true "message id"
// @Success 200 {object} service.AnalyzeResult
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /v1/email-messages/{id}/analyze [post]
func (h *Handler) analyzeMessage(c *gin.Context) {
	result, err := h.mail.Analyze(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, MsgMessageNotFound)
		return
	}
	Success(c, result)
}
