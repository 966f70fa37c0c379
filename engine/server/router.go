package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docbed/docbed/engine/core"
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Status: http.StatusOK, Message: message, Data: data})
}

func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, Response{Status: http.StatusAccepted, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, Response{Status: status, Error: err.Error()})
	c.Abort()
}

// respondMapped translates the domain sentinels into HTTP statuses.
func respondMapped(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		respondError(c, http.StatusNotFound, err)
	case errors.Is(err, core.ErrInvalidConfig):
		respondError(c, http.StatusBadRequest, err)
	case errors.Is(err, core.ErrConflict):
		respondError(c, http.StatusConflict, err)
	default:
		respondError(c, http.StatusInternalServerError, err)
	}
}
