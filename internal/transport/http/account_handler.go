package httptransport

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/middleware"
	"assistant/backend/internal/service"
)

type createAccountRequest struct {
	Label        string          `json:"label" binding:"required"`
	Provider     domain.Provider `json:"provider"`
	EmailAddress string          `json:"emailAddress" binding:"required"`
	IMAPServer   string          `json:"imapServer"`
	IMAPPort     *int            `json:"imapPort"`
	IMAPUseSSL   *bool           `json:"imapUseSsl"`
	SMTPServer   string          `json:"smtpServer"`
	SMTPPort     *int            `json:"smtpPort"`
	SMTPUseTLS   *bool           `json:"smtpUseTls"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	IsActive     *bool           `json:"isActive"`
}

type updateAccountRequest struct {
	Label        *string          `json:"label"`
	Provider     *domain.Provider `json:"provider"`
	EmailAddress *string          `json:"emailAddress"`
	IMAPServer   *string          `json:"imapServer"`
	IMAPPort     *int             `json:"imapPort"`
	IMAPUseSSL   *bool            `json:"imapUseSsl"`
	SMTPServer   *string          `json:"smtpServer"`
	SMTPPort     *int             `json:"smtpPort"`
	SMTPUseTLS   *bool            `json:"smtpUseTls"`
	Username     *string          `json:"username"`
	Password     *string          `json:"password"`
	IsActive     *bool            `json:"isActive"`
}

type syncRequest struct {
	Limit *int `json:"limit"`
}

// accountResponse never carries the secret, only whether one is stored.
type accountResponse struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	Provider     domain.Provider `json:"provider"`
	EmailAddress string          `json:"emailAddress"`
	IMAPServer   string          `json:"imapServer"`
	IMAPPort     int             `json:"imapPort"`
	IMAPUseSSL   bool            `json:"imapUseSsl"`
	SMTPServer   string          `json:"smtpServer"`
	SMTPPort     int             `json:"smtpPort"`
	SMTPUseTLS   bool            `json:"smtpUseTls"`
	Username     string          `json:"username"`
	HasSecret    bool            `json:"hasSecret"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type accountListResponse struct {
	Items []accountResponse `json:"items"`
	Count int               `json:"count"`
}

func toAccountResponse(a *domain.MailboxAccount) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Label:        a.Label,
		Provider:     a.Provider,
		EmailAddress: a.EmailAddress,
		IMAPServer:   a.IMAPServer,
		IMAPPort:     a.IMAPPort,
		IMAPUseSSL:   a.IMAPUseSSL,
		SMTPServer:   a.SMTPServer,
		SMTPPort:     a.SMTPPort,
		SMTPUseTLS:   a.SMTPUseTLS,
		Username:     a.Username,
		HasSecret:    a.HasSecret(),
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// listAccounts godoc
// @Summary List email accounts
// @Tags EmailAccounts
// @Produce json
// @Success 200 {object} accountListResponse
// @Router /v1/email-accounts [get]
func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, MsgAccountNotFound)
		return
	}

	items := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, toAccountResponse(&accounts[i]))
	}
	Success(c, accountListResponse{Items: items, Count: len(items)})
}

// createAccount godoc
// @Summary Connect an email account
// @Tags EmailAccounts
// @Accept json
// @Produce json
// @Param request body createAccountRequest true "account"
// @Success 201 {object} accountResponse
// @Failure 400 {object} Response
// @Router /v1/email-accounts [post]
func (h *Handler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.accounts.Create(c.Request.Context(), middleware.UserID(c), service.CreateAccountInput{
		Label:        req.Label,
		Provider:     req.Provider,
		EmailAddress: req.EmailAddress,
		IMAPServer:   req.IMAPServer,
		IMAPPort:     req.IMAPPort,
		IMAPUseSSL:   req.IMAPUseSSL,
		SMTPServer:   req.SMTPServer,
		SMTPPort:     req.SMTPPort,
		SMTPUseTLS:   req.SMTPUseTLS,
		Username:     req.Username,
		Password:     req.Password,
		IsActive:     req.IsActive,
	})
	if err != nil {
		respondError(c, err, MsgAccountNotFound)
		return
	}

	Created(c, toAccountResponse(account))
}

// getAccount godoc
// @Summary Get an email account
// @Tags EmailAccounts
// @Produce json
// @Param id path string true "account id"
// @Success 200 {object} accountResponse
// @Failure 404 {object} Response
// @Router /v1/email-accounts/{id} [get]
func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, MsgAccountNotFound)
		return
	}
	Success(c, toAccountResponse(account))
}

// updateAccount godoc
// @Summary Update an email account
// @Description Only the fields present are changed. An empty password clears the stored one.
// @Tags EmailAccounts
// @Accept json
// @Produce json
// @Param id path string true "account id"
// @Param request body updateAccountRequest true "changes"
// @Success 200 {object} accountResponse
// @Router /v1/email-accounts/{id} [put]
func (h *Handler) updateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.accounts.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), service.UpdateAccountInput{
		Label:        req.Label,
		Provider:     req.Provider,
		EmailAddress: req.EmailAddress,
		IMAPServer:   req.IMAPServer,
		IMAPPort:     req.IMAPPort,
		IMAPUseSSL:   req.IMAPUseSSL,
		SMTPServer:   req.SMTPServer,
		SMTPPort:     req.SMTPPort,
		SMTPUseTLS:   req.SMTPUseTLS,
		Username:     req.Username,
		Password:     req.Password,
		IsActive:     req.IsActive,
	})
	if err != nil {
		respondError(c, err, MsgAccountNotFound)
		return
	}
	Success(c, toAccountResponse(account))
}

// deleteAccount godoc
// @Summary Delete an email account
// @Tags EmailAccounts
// @Param id path string true "account id"
// @Success 204
// @Router /v1/email-accounts/{id} [delete]
func (h *Handler) deleteAccount(c *gin.Context) {
	if err := h.accounts.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, MsgAccountNotFound)
		return
	}
	NoContent(c)
}

// syncAccount godoc
// @Summary Import new INBOX messages
// @Description limit comes from the JSON body or the query string; default 50, max 500.
// @Tags EmailAccounts
// @Accept json
// @Produce json
// @Param id path string true "account id"
// @Param limit query int false "max messages"
// @Success 200 {object} service.SyncResult
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 502 {object} Response
// @Router /v1/email-accounts/{id}/sync [post]
func (h *Handler) syncAccount(c *gin.Context) {
	limit, ok := syncLimit(c)
	if !ok {
		BadRequest(c, MsgInvalidLimit)
		return
	}

	result, err := h.mail.Sync(c.Request.Context(), middleware.UserID(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, err, MsgAccountNotFound)
		return
	}
	Success(c, result)
}

// syncLimit reads limit from the query, then the JSON body. Zero means
// "use the default".
func syncLimit(c *gin.Context) (int, bool) {
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, true
		}
		return 0, false
	}
	if req.Limit == nil {
		return 0, true
	}
	if *req.Limit < 0 {
		return 0, false
	}
	return *req.Limit, true
}
