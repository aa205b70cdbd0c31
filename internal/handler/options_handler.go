package handler

import (
	"net/http"

	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-gonic/gin"
)

// OptionsHandler serves the reference lists the order form renders.
type OptionsHandler struct {
	svc *service.OptionsService
}

// NewOptionsHandler creates the options handler.
func NewOptionsHandler(svc *service.OptionsService) *OptionsHandler {
	return &OptionsHandler{svc: svc}
}

// Schools returns the selectable school list from the Jobs table.
func (h *OptionsHandler) Schools(c *gin.Context) {
	result, err := h.svc.SchoolOptions(c.Request.Context())
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"options":         result.Options,
		"fieldId":         result.FieldID,
		"recordIdFieldId": result.RecordIDFieldID,
	})
}

// UOMs returns the selectable unit-of-measure list.
func (h *OptionsHandler) UOMs(c *gin.Context) {
	result, err := h.svc.UOMOptions(c.Request.Context())
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"options":         result.Options,
		"fieldId":         result.FieldID,
		"recordIdFieldId": result.RecordIDFieldID,
	})
}
