package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/mw"
)

// GetTables returns the tables in natural name order.
func (h *Handler) GetTables(c *gin.Context) {
	c.JSON(http.StatusOK, h.kitchen.Orders().Tables())
}

type sessionResponse struct {
	model.TableSession
	Orders []model.Order `json:"orders"`
}

// GetSession returns a table session with its full order history.
func (h *Handler) GetSession(c *gin.Context) {
	sess, history, ok := h.kitchen.Orders().Session(c.Param("name"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no open session"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{TableSession: sess, Orders: history})
}

// PostRefreshSession re-fetches a session from the backend.
func (h *Handler) PostRefreshSession(c *gin.Context) {
	name := c.Param("name")
	if err := h.kitchen.RefreshSession(c.Request.Context(), name); err != nil {
		abortWithError(c, err)
		return
	}
	h.GetSession(c)
}

// PostOpenTable seats a table.
func (h *Handler) PostOpenTable(c *gin.Context) {
	if err := h.kitchen.OpenTable(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type tableStatusRequest struct {
	Status model.TableStatus `json:"status" binding:"required"`
}

// PostTableStatus asks the backend to change a table's status.
func (h *Handler) PostTableStatus(c *gin.Context) {
	var req tableStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.kitchen.SetTableStatus(c.Request.Context(), c.Param("name"), req.Status); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// PostCompleteSession records the payment of a session.
func (h *Handler) PostCompleteSession(c *gin.Context) {
	var req kitchenapi.Payment
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := h.kitchen.CompleteSession(c.Request.Context(), id, req); err != nil {
		abortWithError(c, err)
		return
	}
	if h.invoices != nil {
		mw.Invalidate(h.invoices, "/api/sessions/"+id+"/")
	}
	c.Status(http.StatusAccepted)
}

// GetInvoice returns the invoice of a session.
func (h *Handler) GetInvoice(c *gin.Context) {
	inv, err := h.kitchen.GenerateInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}
