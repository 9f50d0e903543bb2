// Package kitchen wires the realtime connection, the order projection and the
// notification list of one branch into a single explicitly constructed engine.
package kitchen

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gorilla/websocket"

	"kitchen-dashboard/config"
	"kitchen-dashboard/internal/effect"
	"kitchen-dashboard/internal/event"
	"kitchen-dashboard/internal/ingest"
	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/metrics"
	"kitchen-dashboard/internal/mirror"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/notification"
	"kitchen-dashboard/internal/orders"
	"kitchen-dashboard/internal/room"
	"kitchen-dashboard/internal/snapshot"
	"kitchen-dashboard/internal/transport"
)

const (
	backlogBuffer  = 4
	publishTimeout = 5 * time.Second
)

// notified lists the categories the aggregator derives notifications from.
var notified = []ingest.Category{
	ingest.CategoryNewOrder,
	ingest.CategoryOrderStatus,
	ingest.CategoryPayment,
}

// Backend is every REST call the engine makes.
type Backend interface {
	snapshot.Backend
	effect.StatusUpdater
	UpdateTableStatus(ctx context.Context, tableName string, status model.TableStatus) error
	CancelItem(ctx context.Context, req kitchenapi.ItemRequest) error
	ReturnItem(ctx context.Context, req kitchenapi.ItemRequest) error
	CompleteSession(ctx context.Context, sessionID string, payment kitchenapi.Payment) error
	GenerateInvoice(ctx context.Context, sessionID string) (*kitchenapi.Invoice, error)
}

// Storage persists the notification list and the push subscriptions.
type Storage interface {
	notification.Persister
	notification.SubscriptionSource
}

// Deps are the collaborators built outside the engine.
type Deps struct {
	Store   Storage
	API     Backend
	Mirror  mirror.Publisher
	Metrics *metrics.Metrics
	Dialer  *websocket.Dialer
	WebPush *webpush.Options
}

// Engine is the reconciliation core of one branch. Events are consumed by a
// single goroutine in arrival order; views and intents may be called
// concurrently.
type Engine struct {
	cfg *config.Config
	api Backend

	socket        *transport.Manager
	room          *room.Controller
	ledger        *ingest.Ledger
	ingestor      *ingest.Ingestor
	orders        *orders.Store
	notifications *notification.Aggregator
	push          *notification.WorkerPool
	effects       *effect.Runner
	snapshot      *snapshot.Service
	mirror        mirror.Publisher
	metrics       *metrics.Metrics

	backlog chan []model.Order
}

// Status is the connection indicator of the dashboard.
type Status struct {
	BranchID           string          `json:"branchId"`
	Connection         transport.State `json:"connection"`
	Room               room.Status     `json:"room"`
	ProcessedOrders    int             `json:"processedOrders"`
	LedgerResetPending bool            `json:"ledgerResetPending"`
}

// New builds every component and wires their hooks. Nothing runs until Run.
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Mirror == nil {
		deps.Mirror = mirror.Nop{}
	}

	e := &Engine{
		cfg:      cfg,
		api:      deps.API,
		ledger:   ingest.NewLedger(),
		ingestor: ingest.NewIngestor(),
		orders:   orders.NewStore(),
		mirror:   deps.Mirror,
		metrics:  deps.Metrics,
		backlog:  make(chan []model.Order, backlogBuffer),
	}

	header := http.Header{}
	for k, v := range cfg.Backend.Headers {
		header.Set(k, v)
	}
	e.socket = transport.NewManager(transport.Options{
		URL:          cfg.Backend.SocketURL,
		Header:       header,
		ReconnectMin: cfg.Connection.ReconnectMin,
		ReconnectMax: cfg.Connection.ReconnectMax,
		PingInterval: cfg.Connection.PingInterval,
		AckTimeout:   cfg.Connection.AckTimeout,
		Dialer:       deps.Dialer,
		Metrics:      deps.Metrics,
	})
	e.room = room.NewController(e.socket, room.Options{
		BranchID:      cfg.BranchID,
		JoinThrottle:  cfg.Room.JoinThrottle,
		RetryDelay:    cfg.Room.RetryDelay,
		CheckInterval: cfg.Room.CheckInterval,
		Metrics:       deps.Metrics,
	})

	e.push = notification.NewWorkerPool(cfg.WorkerPool.Size, deps.Store, deps.WebPush, deps.Metrics)
	e.notifications = notification.NewAggregator(e.ledger, deps.Store, notification.Options{
		Key:     cfg.Notifications.StorageKey,
		Limit:   cfg.Notifications.Retention,
		Cue:     e.push,
		Metrics: deps.Metrics,
	})
	e.effects = effect.NewRunner(cfg.WorkerPool.EffectsSize, deps.API, cfg.Backend.RequestTimeout, deps.Metrics)
	e.snapshot = snapshot.NewService(deps.API, e.orders, e, e.effects, snapshot.Options{
		Enabled:   cfg.Snapshot.Enabled,
		Interval:  cfg.Snapshot.TableRefreshInterval,
		Connected: func() bool { return e.socket.State().Connected },
	})

	e.socket.OnConnect(func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		e.ledger.CancelReset()
		e.room.HandleConnect(ctx)
	})
	e.socket.OnDisconnect(func() {
		e.room.HandleDisconnect()
		e.ledger.ScheduleReset(cfg.Dedup.ResetAfter)
	})
	e.room.OnJoined(func(ctx context.Context) {
		if err := e.snapshot.BackfillPending(ctx); err != nil {
			log.Printf("Error backfilling pending orders: %v", err)
		}
	})

	return e
}

// Run loads the persisted notifications, starts every background loop and
// consumes events until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	if err := e.notifications.Load(ctx); err != nil {
		log.Printf("Warning: failed to load notifications: %v", err)
	}

	e.push.Start(ctx)
	e.effects.Start(ctx)

	go e.socket.Run(ctx)
	go e.room.Run(ctx)
	go e.snapshot.Run(ctx)

	e.consume(ctx)
}

func (e *Engine) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("Event consumer shutting down.")
			return
		case in := <-e.socket.Events():
			e.HandleFrame(ctx, in)
		case pending := <-e.backlog:
			e.HandleBacklog(ctx, pending)
		}
	}
}

// Backfill queues orders fetched over REST for the consumer goroutine.
func (e *Engine) Backfill(ctx context.Context, pending []model.Order) {
	select {
	case e.backlog <- pending:
	case <-ctx.Done():
		log.Printf("Warning: dropping backfill of %d orders: %v", len(pending), ctx.Err())
	}
}

// HandleFrame decodes one pushed frame and processes it. Bad frames are
// logged and dropped.
func (e *Engine) HandleFrame(ctx context.Context, in transport.Inbound) {
	ev, err := event.Decode(in.Event, in.Data, in.ReceivedAt)
	if err != nil {
		if errors.Is(err, event.ErrUnknownType) {
			e.metrics.EventDropped("unknown")
		} else {
			e.metrics.EventDropped("malformed")
			log.Printf("Warning: dropping %s event: %v", in.Event, err)
		}
		return
	}
	e.HandleEvent(ctx, ev)
}

// HandleEvent runs one decoded event through ingestion, the projection and the
// notification list.
func (e *Engine) HandleEvent(ctx context.Context, ev event.Event) {
	if !e.ingestor.Ingest(ev) {
		e.metrics.EventDropped("duplicate")
		return
	}
	e.metrics.EventIngested(string(ev.Type()))

	effects, err := e.orders.Apply(ev)
	switch {
	case errors.Is(err, orders.ErrUnknownOrder):
		log.Printf("Warning: %v", err)
		e.metrics.EventDropped("unknown_order")
	case err != nil:
		log.Printf("Warning: dropping %s event: %v", ev.Type(), err)
		e.metrics.EventDropped("rejected")
	}
	if len(effects) > 0 {
		e.effects.Dispatch(ctx, effects...)
	}

	e.notify(ctx)

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := e.mirror.Publish(pubCtx, ev); err != nil {
		log.Printf("Warning: failed to mirror %s event: %v", ev.Type(), err)
	}
}

// HandleBacklog merges a pending-orders fetch and notifies the orders that
// never produced a notification.
func (e *Engine) HandleBacklog(ctx context.Context, pending []model.Order) {
	added, effects := e.orders.MergeSnapshot(pending)
	if len(effects) > 0 {
		e.effects.Dispatch(ctx, effects...)
	}
	queued := e.ingestor.IngestBacklog(pending, event.Meta{ReceivedAt: time.Now()})
	created := e.notify(ctx)
	log.Printf("Backfill merged %d orders (%d new), %d queued, %d notifications created", len(pending), added, queued, created)
}

// notify hands the buffered events to the aggregator and acknowledges every
// category.
func (e *Engine) notify(ctx context.Context) int {
	var batch []event.Event
	for _, cat := range notified {
		batch = append(batch, e.ingestor.Pending(cat)...)
	}
	created := e.notifications.AddNotifications(ctx, batch)
	for _, cat := range ingest.Categories {
		e.ingestor.Clear(cat)
	}
	return len(created)
}

// Orders exposes the order projection for read-only views.
func (e *Engine) Orders() *orders.Store { return e.orders }

// Notifications exposes the notification list.
func (e *Engine) Notifications() *notification.Aggregator { return e.notifications }

// Status returns the connection and room indicators.
func (e *Engine) Status() Status {
	return Status{
		BranchID:           e.cfg.BranchID,
		Connection:         e.socket.State(),
		Room:               e.room.Status(),
		ProcessedOrders:    e.ledger.Len(),
		LedgerResetPending: e.ledger.ResetPending(),
	}
}
