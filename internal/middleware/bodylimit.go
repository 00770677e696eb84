package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Request body limits.
const (
	DefaultBodyLimit = 1 * 1024 * 1024 // 1MB, the API only accepts small JSON bodies
	MaxBodyLimit     = 10 * 1024 * 1024
)

// BodySizeLimit rejects requests whose body exceeds maxBytes.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortWithError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes))
			return
		}

		// Chunked bodies have no Content-Length; cap the reader as well.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}
