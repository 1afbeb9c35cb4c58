package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeUpstream     = "upstream_failure"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// fail aborts with the standard error envelope. Server errors are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= stdhttp.StatusInternalServerError {
		log.Error().Str("module", "adapters.http").Str("path", c.FullPath()).
			Int("status", status).Str("code", code).Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: msg})
}
