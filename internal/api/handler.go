package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"kitchen-dashboard/internal/kitchen"
	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/notification"
	"kitchen-dashboard/internal/orders"
	"kitchen-dashboard/internal/room"
	"kitchen-dashboard/internal/store"
	"kitchen-dashboard/internal/transport"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	kitchen *kitchen.Engine
	store   store.Store
	webpush *webpush.Options

	// invoices caches GET /api/sessions/:id/invoice; nil disables invalidation.
	invoices *cache.Cache
}

// NewHandler creates a new API handler.
func NewHandler(k *kitchen.Engine, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		kitchen: k,
		store:   s,
		webpush: webpushOptions,
	}
}

// abortWithError maps err to a status code. Anything the handler does not
// recognise came from the backend and is reported as a bad gateway.
func abortWithError(c *gin.Context, err error) {
	var apiErr *kitchenapi.APIError
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, kitchen.ErrInvalidIntent):
		status = http.StatusBadRequest
	case errors.Is(err, orders.ErrUnknownOrder),
		errors.Is(err, notification.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, transport.ErrNotConnected), errors.Is(err, room.ErrThrottled):
		status = http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		log.Printf("Warning: backend refused request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
