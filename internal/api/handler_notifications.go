package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/notification"
)

func notificationType(c *gin.Context) (model.NotificationType, bool) {
	t := model.NotificationType(c.Query("type"))
	if t != "" && !t.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown notification type"})
		return "", false
	}
	return t, true
}

// GetNotifications handles GET /api/notifications?type=&processed=.
func (h *Handler) GetNotifications(c *gin.Context) {
	t, ok := notificationType(c)
	if !ok {
		return
	}
	f := notification.Filter{Type: t}
	if raw := c.Query("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "processed must be a boolean"})
			return
		}
		f.Processed = &processed
	}
	c.JSON(http.StatusOK, h.kitchen.Notifications().List(f))
}

// GetNotificationHistory returns processed notifications.
func (h *Handler) GetNotificationHistory(c *gin.Context) {
	t, ok := notificationType(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.kitchen.Notifications().History(t))
}

// GetNotificationCounts returns the badge counters.
func (h *Handler) GetNotificationCounts(c *gin.Context) {
	c.JSON(http.StatusOK, h.kitchen.Notifications().Counts())
}

// PostNotificationRead marks one notification read.
func (h *Handler) PostNotificationRead(c *gin.Context) {
	if err := h.kitchen.Notifications().MarkAsRead(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostNotificationProcessed marks one notification processed.
func (h *Handler) PostNotificationProcessed(c *gin.Context) {
	if err := h.kitchen.Notifications().MarkAsProcessed(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostOrderNotificationsProcessed marks every notification of an order processed.
func (h *Handler) PostOrderNotificationsProcessed(c *gin.Context) {
	n := h.kitchen.Notifications().MarkOrderProcessed(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"processed": n})
}

// PostNotificationsReadAll marks every notification read.
func (h *Handler) PostNotificationsReadAll(c *gin.Context) {
	h.kitchen.Notifications().MarkAllAsRead(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// DeleteNotification removes one notification.
func (h *Handler) DeleteNotification(c *gin.Context) {
	if err := h.kitchen.Notifications().Remove(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteNotifications handles DELETE /api/notifications?type=&processed_only=.
func (h *Handler) DeleteNotifications(c *gin.Context) {
	t := model.NotificationType(c.Query("type"))
	if !t.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "type is required"})
		return
	}
	processedOnly := c.Query("processed_only") == "true"
	removed := h.kitchen.Notifications().RemoveByType(c.Request.Context(), t, processedOnly)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
