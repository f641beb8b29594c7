package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"nfcunha/vigil/core/service"

	"github.com/gin-gonic/gin"
)

// WorkloadHandler handles container listing and lifecycle actions.
type WorkloadHandler struct {
	workloads *service.WorkloadController
}

// NewWorkloadHandler creates a new workload handler.
func NewWorkloadHandler(workloads *service.WorkloadController) *WorkloadHandler {
	return &WorkloadHandler{workloads: workloads}
}

// List handles GET /api/workloads
// An unreachable backend yields an empty list, not an error.
func (h *WorkloadHandler) List(c *gin.Context) {
	workloads := h.workloads.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"workloads": workloads,
		"count":     len(workloads),
	})
}

// Act handles POST /api/workloads/:id/:action
// action is one of start, stop, restart.
func (h *WorkloadHandler) Act(c *gin.Context) {
	id := c.Param("id")
	action := c.Param("action")

	result, err := h.workloads.Act(c.Request.Context(), id, action)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if !result.Succeeded() {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"code":    codeActionFailed,
			"message": fmt.Sprintf("Failed to %s workload", action),
			"result":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Workload %s succeeded", action),
		"result":  result,
	})
}

type batchRequest struct {
	Filter string   `json:"filter"`
	IDs    []string `json:"ids"`
}

// Batch handles POST /api/workloads/batch/:action
// Body: {"filter": "running"|"stopped"|"all", "ids": [...]}. Both are
// optional; with ids the filter narrows the listed workloads further.
func (h *WorkloadHandler) Batch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, "Invalid request body", err)
		return
	}

	var pred service.Predicate
	switch req.Filter {
	case "", "all":
		pred = service.Any
	case "running":
		pred = service.IsRunning
	case "stopped":
		pred = service.IsStopped
	default:
		respondError(c, http.StatusBadRequest, codeInvalidRequest, "Filter must be running, stopped or all", nil)
		return
	}
	if len(req.IDs) > 0 {
		pred = service.And(pred, service.InIDs(req.IDs...))
	}

	batch, err := h.workloads.BatchAct(c.Request.Context(), c.Param("action"), pred)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
