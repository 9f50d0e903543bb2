package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"kitchen-dashboard/internal/metrics"
	"kitchen-dashboard/internal/model"
)

var (
	// ErrCueUnsupported means no cue can be played at all (push is not configured).
	ErrCueUnsupported = errors.New("push cue unsupported")
	// ErrCueBlocked means the cue was refused right now (queue saturated).
	ErrCueBlocked = errors.New("push cue blocked")
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionSource lists and prunes push subscriptions.
type SubscriptionSource interface {
	SubscriptionsFor(ctx context.Context, t model.NotificationType) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WorkerPool fans notification cues out to push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan model.Notification
	subs    SubscriptionSource
	webpush *webpush.Options
	sender  NotificationSender
	metrics *metrics.Metrics
}

// NewWorkerPool creates a new worker pool. A nil or keyless webpushOptions
// makes every Cue return ErrCueUnsupported.
func NewWorkerPool(size int, subs SubscriptionSource, webpushOptions *webpush.Options, m *metrics.Metrics) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.Notification, size*8),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Cue worker %d started", id)
	for {
		select {
		case n := <-wp.jobs:
			wp.sendCues(ctx, n)
		case <-ctx.Done():
			log.Printf("Cue worker %d shutting down", id)
			return
		}
	}
}

// Cue queues a push for n without blocking.
func (wp *WorkerPool) Cue(n model.Notification) error {
	if wp.webpush == nil || wp.webpush.VAPIDPublicKey == "" || wp.webpush.VAPIDPrivateKey == "" {
		wp.metrics.PushCue("unsupported")
		return fmt.Errorf("%w: VAPID keys are not configured", ErrCueUnsupported)
	}
	select {
	case wp.jobs <- n:
		return nil
	default:
		wp.metrics.PushCue("blocked")
		return fmt.Errorf("%w: %d cues already queued", ErrCueBlocked, len(wp.jobs))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.Notification {
	return wp.jobs
}

// cuePayload is what the service worker on the dashboard receives.
type cuePayload struct {
	ID        string                 `json:"id"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	TableName string                 `json:"tableName"`
	OrderID   string                 `json:"orderId,omitempty"`
}

// Message returns the human readable cue text of n.
func Message(n model.Notification) (title, body string) {
	switch n.Type {
	case model.NotificationNewOrder:
		return "New order", fmt.Sprintf("Table %s placed order %s", n.TableName, n.OrderID)
	case model.NotificationReadyForPickup:
		return "Ready for pickup", fmt.Sprintf("Order %s for table %s is ready", n.OrderID, n.TableName)
	case model.NotificationPaymentRequest:
		return "Payment requested", fmt.Sprintf("Table %s asked for the bill", n.TableName)
	}
	return string(n.Type), n.TableName
}

func (wp *WorkerPool) sendCues(ctx context.Context, n model.Notification) {
	subscriptions, err := wp.subs.SubscriptionsFor(ctx, n.Type)
	if err != nil {
		log.Printf("Error fetching subscriptions for %s: %v", n.Type, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	title, body := Message(n)
	payload, err := json.Marshal(cuePayload{
		ID: n.ID, Type: n.Type, Title: title, Body: body,
		TableName: n.TableName, OrderID: n.OrderID,
	})
	if err != nil {
		log.Printf("Error encoding cue for %s: %v", n.ID, err)
		return
	}

	log.Printf("Sending %d cues for %s", len(subscriptions), n.ID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending cue to %s: %v", sub.Endpoint, err)
		wp.metrics.PushCue("error")
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusGone, http.StatusNotFound:
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		wp.metrics.PushCue("expired")
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	default:
		wp.metrics.PushCue("sent")
	}
}
