package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"kitchen-dashboard/config"
	"kitchen-dashboard/internal/kitchen"
	"kitchen-dashboard/internal/metrics"
	"kitchen-dashboard/internal/mw"
	"kitchen-dashboard/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(k *kitchen.Engine, s store.Store, webpushOptions *webpush.Options, m *metrics.Metrics, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(k, s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Invoices are immutable until the session is completed.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	handler.invoices = cache.New(ttl, 2*ttl)
	caching := mw.Cache(handler.invoices, ttl)

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/status", handler.GetStatus)
		api.POST("/room/rejoin", handler.PostRejoin)
		api.POST("/reset", handler.PostReset)

		api.GET("/orders", handler.GetOrders)
		api.GET("/orders/:id", handler.GetOrder)
		api.POST("/orders/:id/status", handler.PostOrderStatus)
		api.POST("/orders/:id/items/:index/:action", handler.PostItemAction)
		api.POST("/orders/:id/notifications/process", handler.PostOrderNotificationsProcessed)

		api.GET("/tables", handler.GetTables)
		api.GET("/tables/:name/session", handler.GetSession)
		api.POST("/tables/:name/session/refresh", handler.PostRefreshSession)
		api.POST("/tables/:name/open", handler.PostOpenTable)
		api.POST("/tables/:name/status", handler.PostTableStatus)

		api.POST("/sessions/:id/complete", handler.PostCompleteSession)
		api.GET("/sessions/:id/invoice", caching, handler.GetInvoice)

		api.GET("/notifications", handler.GetNotifications)
		api.DELETE("/notifications", handler.DeleteNotifications)
		api.GET("/notifications/history", handler.GetNotificationHistory)
		api.GET("/notifications/counts", handler.GetNotificationCounts)
		api.POST("/notifications/read_all", handler.PostNotificationsReadAll)
		api.POST("/notifications/:id/read", handler.PostNotificationRead)
		api.POST("/notifications/:id/process", handler.PostNotificationProcessed)
		api.DELETE("/notifications/:id", handler.DeleteNotification)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
