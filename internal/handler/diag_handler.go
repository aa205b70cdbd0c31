package handler

import (
	"net/http"

	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-gonic/gin"
)

// DiagHandler exposes the operator probes. Ad hoc by design; not part of the
// stable contract.
type DiagHandler struct {
	diag  *service.DiagService
	order *service.OrderService
}

// NewDiagHandler creates the diagnostics handler.
func NewDiagHandler(diag *service.DiagService, order *service.OrderService) *DiagHandler {
	return &DiagHandler{diag: diag, order: order}
}

// Connection reports config presence and a header-table probe.
func (h *DiagHandler) Connection(c *gin.Context) {
	c.JSON(http.StatusOK, h.diag.CheckConnection(c.Request.Context()))
}

// DateFormat echoes how a date value fares against order validation.
func (h *DiagHandler) DateFormat(c *gin.Context) {
	c.JSON(http.StatusOK, h.diag.CheckDateFormat(c.Query("value")))
}

// JobsTable probes the jobs table.
func (h *DiagHandler) JobsTable(c *gin.Context) {
	report, err := h.diag.CheckJobsTable(c.Request.Context())
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// TableFields dumps field metadata for an arbitrary table.
func (h *DiagHandler) TableFields(c *gin.Context) {
	tableID := c.Query("tableId")
	if tableID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tableId query parameter is required"})
		return
	}

	report, err := h.diag.TableFields(c.Request.Context(), tableID)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tableId": report.TableID,
		"fields":  report.Fields,
		"raw":     report.Raw,
	})
}

// OrderTableFields dumps both write-path tables.
func (h *DiagHandler) OrderTableFields(c *gin.Context) {
	c.JSON(http.StatusOK, h.diag.OrderTableFields(c.Request.Context()))
}

// SweepOrphans triggers the saga reconciliation pass.
func (h *DiagHandler) SweepOrphans(c *gin.Context) {
	swept, err := h.order.SweepOrphans(c.Request.Context())
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "swept": swept})
}
