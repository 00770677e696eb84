package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"assistant/backend/internal/extraction"
	"assistant/backend/internal/imap"
	"assistant/backend/internal/importer"
	"assistant/backend/internal/service"
	"assistant/backend/internal/storage"
)

// errorMessages maps sentinel errors to client messages.
var errorMessages = map[error]string{
	storage.ErrNotFound:       MsgNotFound,
	storage.ErrEmailExists:    "email already registered",
	service.ErrSyncInProgress: "a sync is already running for this account",
	extraction.ErrNoGenerator: "could not extract anything from this message",
}

// GetErrorMessage returns the client message for a sentinel error.
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// Common messages.
const (
	MsgInvalidRequest = "invalid request body"
	MsgInvalidLimit   = "limit must be a non-negative integer"
	MsgInvalidOffset  = "offset must be a non-negative integer"
	MsgInvalidIsRead  = "is_read must be true or false"
	MsgNotFound       = "resource not found"
	MsgInternal       = "internal server error"

	MsgAccountNotFound = "email account not found"
	MsgMessageNotFound = "email message not found"
)

// respondError maps a service error onto the envelope. notFound is the
// message used for storage.ErrNotFound.
func respondError(c *gin.Context, err error, notFound string) {
	status, msg := errorStatus(err)
	if status == http.StatusNotFound && notFound != "" {
		msg = notFound
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	Error(c, status, msg)
}

// errorStatus picks the HTTP status and client message for err.
func errorStatus(err error) (int, string) {
	var (
		cfgErr  *imap.ConfigurationError
		authErr *imap.AuthenticationError
		connErr *imap.ConnectionError
		syncErr *importer.SyncError
	)

	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, cfgErr.Error()
	case errors.As(err, &authErr):
		return http.StatusBadRequest, authErr.Error()
	case errors.As(err, &syncErr):
		return http.StatusBadGateway, syncErr.Error()
	case errors.As(err, &connErr):
		return http.StatusBadGateway, connErr.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, GetErrorMessage(err)
	case errors.Is(err, service.ErrSyncInProgress),
		errors.Is(err, storage.ErrEmailExists):
		return http.StatusConflict, GetErrorMessage(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "mailbox sync timed out"
	case errors.Is(err, extraction.ErrNoGenerator):
		return http.StatusInternalServerError, GetErrorMessage(err)
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}
