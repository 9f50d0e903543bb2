package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/model"
)

// GetStatus returns the connection indicator.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.kitchen.Status())
}

// GetOrders handles GET /api/orders?view=attention|prepare|ready or ?status=.
func (h *Handler) GetOrders(c *gin.Context) {
	store := h.kitchen.Orders()

	if status := c.Query("status"); status != "" {
		c.JSON(http.StatusOK, store.OrdersByStatus(model.OrderStatus(status)))
		return
	}

	switch view := c.DefaultQuery("view", "attention"); view {
	case "attention":
		c.JSON(http.StatusOK, store.NeedsAttention())
	case "prepare":
		c.JSON(http.StatusOK, store.OrdersToPrepare())
	case "ready":
		c.JSON(http.StatusOK, store.ReadyForPickup())
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown view " + strconv.Quote(view)})
	}
}

// GetOrder returns one order.
func (h *Handler) GetOrder(c *gin.Context) {
	o, ok := h.kitchen.Orders().Order(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, o)
}

type orderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

// PostOrderStatus asks the backend to move an order. The order itself changes
// when the confirming event arrives.
func (h *Handler) PostOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.kitchen.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type itemActionRequest struct {
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Reason   string `json:"reason"`
}

// PostItemAction handles POST /api/orders/:id/items/:index/cancel|return.
func (h *Handler) PostItemAction(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid item index"})
		return
	}
	var body itemActionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := kitchenapi.ItemRequest{
		OrderID:   c.Param("id"),
		ItemIndex: index,
		Quantity:  body.Quantity,
		Reason:    body.Reason,
	}
	ctx := c.Request.Context()
	switch c.Param("action") {
	case "cancel":
		err = h.kitchen.CancelItem(ctx, req)
	case "return":
		err = h.kitchen.ReturnItem(ctx, req)
	default:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown item action"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// PostRejoin forces a kitchen room rejoin.
func (h *Handler) PostRejoin(c *gin.Context) {
	if err := h.kitchen.ForceRejoin(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.kitchen.Status())
}

// PostReset drops the local projection, as on logout.
func (h *Handler) PostReset(c *gin.Context) {
	h.kitchen.Reset()
	c.Status(http.StatusNoContent)
}
