package handler

import (
	"net/http"
	"strconv"

	"nfcunha/vigil/core/service"

	"github.com/gin-gonic/gin"
)

// LogHandler handles log-related HTTP requests.
type LogHandler struct {
	logs *service.LogService
}

// NewLogHandler creates a new log handler.
func NewLogHandler(logs *service.LogService) *LogHandler {
	return &LogHandler{logs: logs}
}

// Tail handles GET /api/logs
// Query parameters:
//   - type: system, auth, kernel, docker or container:<id> (default "system")
//   - lines: number of lines from the end (default 100)
func (h *LogHandler) Tail(c *gin.Context) {
	logType := c.DefaultQuery("type", "system")
	lines, err := strconv.Atoi(c.DefaultQuery("lines", "100"))
	if err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, "lines must be a number", err)
		return
	}

	c.JSON(http.StatusOK, h.logs.Tail(c.Request.Context(), logType, lines))
}
