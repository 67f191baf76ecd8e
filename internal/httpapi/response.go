package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// APIError is the error body of every failed request.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// statusOf maps an engine error kind to an HTTP status.
func statusOf(kind string) int {
	switch kind {
	case toolutil.KindValidation:
		return http.StatusBadRequest
	case toolutil.KindNotFound:
		return http.StatusNotFound
	case toolutil.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// RespondError writes err with the status its kind maps to.
func RespondError(c *gin.Context, err error) {
	kind := toolutil.ErrorKind(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: kind}})
}

// RespondOK writes payload as a 200 JSON body.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
