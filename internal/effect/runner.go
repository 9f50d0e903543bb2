// Package effect executes the outbound requests produced by order state
// transitions.
package effect

import (
	"context"
	"log"
	"time"

	"kitchen-dashboard/internal/metrics"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/orders"
)

// StatusUpdater is the REST call behind orders.RequestStatus.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
}

// Runner is a pool of workers draining a queue of effects. Failed effects are
// logged and not retried.
type Runner struct {
	size    int
	jobs    chan orders.Effect
	api     StatusUpdater
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewRunner creates a runner with size workers. timeout bounds each call.
func NewRunner(size int, api StatusUpdater, timeout time.Duration, m *metrics.Metrics) *Runner {
	if size <= 0 {
		size = 1
	}
	return &Runner{
		size:    size,
		jobs:    make(chan orders.Effect, size*16),
		api:     api,
		timeout: timeout,
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.size; i++ {
		go r.worker(ctx, i)
	}
}

func (r *Runner) worker(ctx context.Context, id int) {
	for {
		select {
		case eff := <-r.jobs:
			r.Execute(ctx, eff)
		case <-ctx.Done():
			log.Printf("Effect worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues effects without blocking the caller. An effect that does not
// fit in the queue is executed on its own goroutine.
func (r *Runner) Dispatch(ctx context.Context, effects ...orders.Effect) {
	for _, eff := range effects {
		select {
		case r.jobs <- eff:
		default:
			log.Printf("Warning: effect queue full, running %s inline", eff)
			go r.Execute(ctx, eff)
		}
	}
}

// Execute runs one effect synchronously.
func (r *Runner) Execute(ctx context.Context, eff orders.Effect) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	switch e := eff.(type) {
	case orders.RequestStatus:
		if err := r.api.UpdateOrderStatus(ctx, e.OrderID, e.Status); err != nil {
			log.Printf("Error executing %s: %v", e, err)
			r.metrics.Effect("request_status", "error")
			return
		}
		log.Printf("Executed %s", e)
		r.metrics.Effect("request_status", "ok")
	default:
		log.Printf("Warning: no handler for effect %s", eff)
	}
}
