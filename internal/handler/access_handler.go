package handler

import (
	"net/http"

	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-gonic/gin"
)

// AccessHandler exposes the Material Orders gate to the form.
type AccessHandler struct {
	svc *service.AccessService
}

// NewAccessHandler creates the access-check handler.
func NewAccessHandler(svc *service.AccessService) *AccessHandler {
	return &AccessHandler{svc: svc}
}

type accessCheckRequest struct {
	Email string `json:"email" binding:"required"`
}

// Check runs the access gate for an email.
func (h *AccessHandler) Check(c *gin.Context) {
	var req accessCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	result, err := h.svc.CheckAccess(c.Request.Context(), req.Email)
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
