// Package snapshot pulls authoritative state over REST to reconcile what the
// realtime stream may have missed.
package snapshot

import (
	"context"
	"fmt"
	"log"
	"time"

	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/orders"
)

// Backend is the part of the REST client used for reconciliation.
type Backend interface {
	FetchPendingOrders(ctx context.Context) ([]model.Order, error)
	FetchTables(ctx context.Context) ([]model.Table, error)
	FetchTableSession(ctx context.Context, tableName string) (*kitchenapi.SessionSnapshot, error)
}

// Sink takes fetched pending orders onto the event consumer, so they are
// merged and notified in order with live events.
type Sink interface {
	Backfill(ctx context.Context, pending []model.Order)
}

// Dispatcher executes effects produced while merging.
type Dispatcher interface {
	Dispatch(ctx context.Context, effects ...orders.Effect)
}

// Options configures a Service.
type Options struct {
	Enabled  bool
	Interval time.Duration
	// Connected gates the periodic table refresh.
	Connected func() bool
}

// Service runs the pull-based reconciliation.
type Service struct {
	api     Backend
	store   *orders.Store
	sink    Sink
	effects Dispatcher
	opts    Options
}

// NewService creates a snapshot service.
func NewService(api Backend, store *orders.Store, sink Sink, effects Dispatcher, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Connected == nil {
		opts.Connected = func() bool { return true }
	}
	return &Service{api: api, store: store, sink: sink, effects: effects, opts: opts}
}

// Run refreshes the table list periodically while connected.
func (s *Service) Run(ctx context.Context) {
	if !s.opts.Enabled {
		log.Println("Table snapshot refresh is disabled. Not starting.")
		return
	}
	log.Println("Starting table snapshot service...")

	s.refreshIfConnected(ctx)

	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Table snapshot service shutting down.")
			return
		case <-timer.C:
			s.refreshIfConnected(ctx)
			timer.Reset(s.opts.Interval)
		}
	}
}

func (s *Service) refreshIfConnected(ctx context.Context) {
	if !s.opts.Connected() {
		return
	}
	if err := s.RefreshTables(ctx); err != nil {
		log.Printf("Error refreshing tables: %v", err)
	}
}

// RefreshTables replaces the table list with the backend's.
func (s *Service) RefreshTables(ctx context.Context) error {
	tables, err := s.api.FetchTables(ctx)
	if err != nil {
		return fmt.Errorf("fetch tables: %w", err)
	}
	s.store.ReplaceTables(tables)
	log.Printf("Refreshed %d tables", len(tables))
	return nil
}

// BackfillPending fetches the pending orders and hands them to the sink. It
// runs once per confirmed room join.
func (s *Service) BackfillPending(ctx context.Context) error {
	pending, err := s.api.FetchPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch pending orders: %w", err)
	}
	log.Printf("Fetched %d pending orders for backfill", len(pending))
	s.sink.Backfill(ctx, pending)
	return nil
}

// RefreshSession replaces one table session and merges its orders.
func (s *Service) RefreshSession(ctx context.Context, table string) error {
	snap, err := s.api.FetchTableSession(ctx, table)
	if err != nil {
		if kitchenapi.IsNotFound(err) {
			// No open session: the backend considers the table free.
			s.store.ReplaceTables(withStatus(s.store.Tables(), table, model.TableAvailable))
			return nil
		}
		return fmt.Errorf("fetch session of %s: %w", table, err)
	}

	s.store.ReplaceSession(snap.Session)
	_, effects := s.store.MergeSnapshot(snap.Orders)
	if len(effects) > 0 {
		s.effects.Dispatch(ctx, effects...)
	}
	return nil
}

func withStatus(tables []model.Table, name string, status model.TableStatus) []model.Table {
	found := false
	for i := range tables {
		if tables[i].Name == name {
			tables[i].Status = status
			found = true
		}
	}
	if !found {
		tables = append(tables, model.Table{Name: name, Status: status})
	}
	return tables
}
