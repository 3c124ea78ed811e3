package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aigrader/aigrader/internal/common"
)

// APIError is the error payload returned to clients.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondError maps an application error to an HTTP status and renders the
// envelope. AppError codes pass through; other errors get a generic code.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
		code = "NOT_FOUND"
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
		code = "INVALID_INPUT"
	}

	var appErr *common.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		c.JSON(status, ErrorEnvelope{Error: APIError{Code: code, Message: appErr.Message}})
		return
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Code: code, Message: err.Error()}})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Code: "INVALID_INPUT", Message: message}})
}
