package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Success responses
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, &Response{Data: data})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error responses
func Unauthorized(c *gin.Context, message string, data ...any) {
	respondError(c, http.StatusUnauthorized, message, data...)
}

func BadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, message)
}

func InternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message)
}

func ServiceUnavailable(c *gin.Context, message string, data ...any) {
	respondError(c, http.StatusServiceUnavailable, message, data...)
}

func respondError(c *gin.Context, status int, message string, data ...any) {
	response := &Response{Error: message}
	if len(data) > 0 {
		response.Data = data[0]
	}
	c.AbortWithStatusJSON(status, response)
}
