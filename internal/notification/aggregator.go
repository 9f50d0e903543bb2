// Package notification derives user-facing notifications from ingested events,
// keeps the bounded persisted list and sends web push cues.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"kitchen-dashboard/internal/event"
	"kitchen-dashboard/internal/ingest"
	"kitchen-dashboard/internal/metrics"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/store"
)

// ErrNotFound is returned by mutations addressing an unknown notification.
var ErrNotFound = errors.New("notification not found")

// DefaultLimit is the number of notifications kept.
const DefaultLimit = 50

// Persister stores the serialized list.
type Persister interface {
	LoadState(ctx context.Context, key string) ([]byte, error)
	SaveState(ctx context.Context, key string, value []byte) error
}

// Cuer plays the attention cue for a new notification.
type Cuer interface {
	Cue(n model.Notification) error
}

// Options configures an Aggregator.
type Options struct {
	Key     string
	Limit   int
	Cue     Cuer
	Metrics *metrics.Metrics
}

// Aggregator owns the notification list, newest first.
type Aggregator struct {
	mu   sync.Mutex
	list []model.Notification

	ledger  *ingest.Ledger
	store   Persister
	key     string
	limit   int
	cue     Cuer
	metrics *metrics.Metrics
}

// NewAggregator creates an empty aggregator. Call Load to restore the
// persisted list.
func NewAggregator(ledger *ingest.Ledger, p Persister, opts Options) *Aggregator {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Aggregator{
		ledger:  ledger,
		store:   p,
		key:     opts.Key,
		limit:   opts.Limit,
		cue:     opts.Cue,
		metrics: opts.Metrics,
	}
}

// Load restores the persisted list. A missing or unreadable entry starts empty.
func (a *Aggregator) Load(ctx context.Context) error {
	raw, err := a.store.LoadState(ctx, a.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}

	var list []model.Notification
	if err := json.Unmarshal(raw, &list); err != nil {
		log.Printf("Warning: discarding unreadable notification list %q: %v", a.key, err)
		return nil
	}
	if len(list) > a.limit {
		list = list[:a.limit]
	}

	a.mu.Lock()
	a.list = list
	a.mu.Unlock()
	log.Printf("Restored %d notifications", len(list))
	return nil
}

// AddNotifications maps events to notifications, skips those the ledger has
// already seen, prepends the rest and persists. It returns what was added.
func (a *Aggregator) AddNotifications(ctx context.Context, events []event.Event) []model.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	var added []model.Notification
	for _, ev := range events {
		n, ok := a.derive(ev)
		if !ok || a.indexOf(n.ID) >= 0 {
			continue
		}
		a.list = append([]model.Notification{n}, a.list...)
		added = append(added, n)
	}
	if len(added) == 0 {
		return nil
	}
	if len(a.list) > a.limit {
		a.list = a.list[:a.limit]
	}
	a.persist(ctx)

	for _, n := range added {
		a.metrics.NotificationCreated(string(n.Type))
		a.playCue(n)
	}
	return added
}

func (a *Aggregator) derive(ev event.Event) (model.Notification, bool) {
	switch e := ev.(type) {
	case event.NewOrder:
		if !a.ledger.MarkProcessed(ingest.OrderKey(e.OrderID)) {
			return model.Notification{}, false
		}
		return newNotification(model.NotificationNewOrder, e.OrderID, e.TableName, e.CreatedAt, e), true

	case event.OrderStatusUpdated:
		switch e.Status {
		case model.StatusAdminApproved:
			// Orders first seen through their approval still notify once.
			if !a.ledger.MarkProcessed(ingest.OrderKey(e.OrderID)) {
				return model.Notification{}, false
			}
			return newNotification(model.NotificationNewOrder, e.OrderID, e.TableName, e.EffectiveTime(), e), true
		case model.StatusReadyForPickup:
			if !a.ledger.MarkProcessed(ingest.ReadyKey(e.OrderID)) {
				return model.Notification{}, false
			}
			return newNotification(model.NotificationReadyForPickup, e.OrderID, e.TableName, e.EffectiveTime(), e), true
		}

	case event.PaymentRequested:
		return newNotification(model.NotificationPaymentRequest, e.SessionID, e.TableName, e.Received(), e), true
	}
	return model.Notification{}, false
}

func newNotification(t model.NotificationType, sourceID, table string, ts time.Time, ev event.Event) model.Notification {
	if ts.IsZero() {
		ts = ev.Received()
	}
	n := model.Notification{
		ID:        fmt.Sprintf("%s:%s:%d", t, sourceID, ts.UnixMilli()),
		Type:      t,
		TableName: table,
		Timestamp: ts,
	}
	if t != model.NotificationPaymentRequest {
		n.OrderID = sourceID
	}
	if data, err := json.Marshal(ev); err == nil {
		n.Data = data
	}
	return n
}

func (a *Aggregator) playCue(n model.Notification) {
	if a.cue == nil {
		return
	}
	err := a.cue.Cue(n)
	switch {
	case err == nil:
	case errors.Is(err, ErrCueUnsupported):
		log.Printf("Warning: cue unavailable for %s: %v", n.ID, err)
	case errors.Is(err, ErrCueBlocked):
		log.Printf("Warning: cue blocked for %s: %v", n.ID, err)
	default:
		log.Printf("Warning: cue failed for %s: %v", n.ID, err)
	}
}

// MarkAsRead marks one notification read.
func (a *Aggregator) MarkAsRead(ctx context.Context, id string) error {
	return a.update(ctx, id, func(n *model.Notification) { n.Read = true })
}

// MarkAsProcessed marks one notification processed (and read).
func (a *Aggregator) MarkAsProcessed(ctx context.Context, id string) error {
	return a.update(ctx, id, func(n *model.Notification) {
		n.Processed = true
		n.Read = true
	})
}

// MarkOrderProcessed marks every notification of an order processed and
// returns how many changed.
func (a *Aggregator) MarkOrderProcessed(ctx context.Context, orderID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := 0
	for i := range a.list {
		n := &a.list[i]
		if n.OrderID == orderID && !n.Processed {
			n.Processed = true
			n.Read = true
			changed++
		}
	}
	if changed > 0 {
		a.persist(ctx)
	}
	return changed
}

// MarkAllAsRead marks every notification read.
func (a *Aggregator) MarkAllAsRead(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.list {
		a.list[i].Read = true
	}
	a.persist(ctx)
}

// Remove deletes one notification.
func (a *Aggregator) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	a.list = append(a.list[:i], a.list[i+1:]...)
	a.persist(ctx)
	return nil
}

// RemoveByType deletes every notification of type t, or only the processed
// ones when processedOnly is set. It returns how many were removed.
func (a *Aggregator) RemoveByType(ctx context.Context, t model.NotificationType, processedOnly bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.list[:0]
	for _, n := range a.list {
		if n.Type == t && (!processedOnly || n.Processed) {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(a.list) - len(kept)
	a.list = kept
	if removed > 0 {
		a.persist(ctx)
	}
	return removed
}

func (a *Aggregator) update(ctx context.Context, id string, fn func(*model.Notification)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(&a.list[i])
	a.persist(ctx)
	return nil
}

func (a *Aggregator) indexOf(id string) int {
	for i := range a.list {
		if a.list[i].ID == id {
			return i
		}
	}
	return -1
}

// persist writes the whole list. Failures are logged; the in-memory list
// stays authoritative.
func (a *Aggregator) persist(ctx context.Context) {
	raw, err := json.Marshal(a.list)
	if err != nil {
		log.Printf("Error encoding notifications: %v", err)
		return
	}
	if err := a.store.SaveState(ctx, a.key, raw); err != nil {
		log.Printf("Error persisting notifications: %v", err)
	}
}
