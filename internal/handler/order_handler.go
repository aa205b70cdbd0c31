package handler

import (
	"net/http"

	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler accepts order submissions from the form.
type OrderHandler struct {
	svc *service.OrderService
}

// NewOrderHandler creates the submit-order handler.
func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Submit runs the two-phase order write and reports the created header id
// and line-item count.
func (h *OrderHandler) Submit(c *gin.Context) {
	var order service.OrderSubmission
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), &order)
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"orderSubmissionId": result.OrderSubmissionID,
		"lineItemsCreated":  result.LineItemsCreated,
	})
}
