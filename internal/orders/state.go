// Package orders holds the client-side projection of orders, tables and table
// sessions, built from realtime events and REST snapshots.
package orders

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"kitchen-dashboard/internal/event"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/parse"
)

var (
	ErrUnknownOrder = errors.New("unknown order")
	ErrMalformed    = errors.New("malformed mutation")
)

// State is the projection. Its methods perform no I/O; outbound calls are
// returned as effects. State is not safe for concurrent use, see Store.
type State struct {
	orders   map[string]*model.Order
	sessions map[string]*model.TableSession // by table name
	tables   map[string]model.Table         // by table name

	// orders for which an auto-cancel was already requested
	autoCanceled map[string]struct{}
}

// NewState creates an empty projection.
func NewState() *State {
	return &State{
		orders:       make(map[string]*model.Order),
		sessions:     make(map[string]*model.TableSession),
		tables:       make(map[string]model.Table),
		autoCanceled: make(map[string]struct{}),
	}
}

// Apply folds one event into the projection.
func (s *State) Apply(ev event.Event) ([]Effect, error) {
	switch e := ev.(type) {
	case event.NewOrder:
		if cur, ok := s.orders[e.OrderID]; ok {
			// Replays and late deliveries never roll back a known order.
			s.attach(cur)
			return nil, nil
		}
		o := s.upsert(e.Order())
		return s.autoCancelIfEmpty(o), nil
	case event.OrderStatusUpdated:
		return nil, s.applyStatus(e)
	case event.TableStatusUpdated:
		s.applyTableStatus(e)
		return nil, nil
	case event.PaymentRequested:
		sess := s.ensureSession(e.TableName)
		sess.SessionID = e.SessionID
		sess.TotalAmount = e.TotalAmount
		sess.PaymentRequested = true
		sess.Optimistic = false
		return nil, nil
	case event.ItemAction:
		return s.applyItemAction(e)
	}
	return nil, fmt.Errorf("%w: unsupported event %T", ErrMalformed, ev)
}

// UpsertOrder inserts o or merges it into the known order with the same id and
// reports whether it was new.
func (s *State) UpsertOrder(o model.Order) bool {
	_, existed := s.orders[o.ID]
	s.upsert(o)
	return !existed
}

func (s *State) upsert(o model.Order) *model.Order {
	cur, ok := s.orders[o.ID]
	if !ok {
		c := o.Clone()
		clampItems(c.Items)
		if c.StatusTimestamps == nil {
			c.StatusTimestamps = make(map[model.OrderStatus]time.Time)
		}
		s.orders[o.ID] = &c
		cur = &c
	} else {
		if o.TableName != "" {
			cur.TableName = o.TableName
		}
		if o.Status != "" {
			cur.Status = o.Status
		}
		if len(o.Items) > 0 {
			cur.Items = make([]model.Item, len(o.Items))
			copy(cur.Items, o.Items)
			clampItems(cur.Items)
			cur.TotalAmount = o.TotalAmount
		} else if o.TotalAmount != 0 {
			cur.TotalAmount = o.TotalAmount
		}
		if cur.CreatedAt.IsZero() {
			cur.CreatedAt = o.CreatedAt
		}
		for k, v := range o.StatusTimestamps {
			cur.StatusTimestamps[k] = v
		}
	}

	s.attach(cur)
	return cur
}

func (s *State) attach(o *model.Order) {
	if o.TableName == "" {
		return
	}
	sess := s.ensureSession(o.TableName)
	if !sess.HasOrder(o.ID) {
		sess.OrderIDs = append(sess.OrderIDs, o.ID)
	}
}

// clampItems keeps cancelled plus returned within the ordered quantity.
func clampItems(items []model.Item) {
	for i := range items {
		it := &items[i]
		if it.Quantity < 0 {
			it.Quantity = 0
		}
		if it.CancelledQuantity < 0 {
			it.CancelledQuantity = 0
		}
		if it.ReturnedQuantity < 0 {
			it.ReturnedQuantity = 0
		}
		if it.CancelledQuantity > it.Quantity {
			it.CancelledQuantity = it.Quantity
		}
		if it.ReturnedQuantity > it.Quantity-it.CancelledQuantity {
			it.ReturnedQuantity = it.Quantity - it.CancelledQuantity
		}
	}
}

// MergeSnapshot merges authoritative orders fetched over REST. It returns how
// many were not known before and any effects the merge produced.
func (s *State) MergeSnapshot(orders []model.Order) (int, []Effect) {
	added := 0
	var effects []Effect
	for _, o := range orders {
		if o.ID == "" {
			continue
		}
		if _, ok := s.orders[o.ID]; !ok {
			added++
		}
		effects = append(effects, s.autoCancelIfEmpty(s.upsert(o))...)
	}
	return added, effects
}

func (s *State) applyStatus(e event.OrderStatusUpdated) error {
	o, ok := s.orders[e.OrderID]
	if !ok {
		return fmt.Errorf("%w: status %s for %s", ErrUnknownOrder, e.Status, e.OrderID)
	}
	// The backend is authoritative; transitions are never validated here.
	o.Status = e.Status
	if o.StatusTimestamps == nil {
		o.StatusTimestamps = make(map[model.OrderStatus]time.Time)
	}
	o.StatusTimestamps[e.Status] = e.EffectiveTime()
	return nil
}

func (s *State) applyTableStatus(e event.TableStatusUpdated) {
	t := s.tables[e.TableName]
	t.Name = e.TableName
	t.Status = e.Status
	if e.TableID != nil {
		t.ID = *e.TableID
	}
	s.tables[e.TableName] = t

	switch e.Status {
	case model.TableAvailable:
		delete(s.sessions, e.TableName)
	case model.TableOccupied:
		s.ensureSession(e.TableName).Optimistic = false
	}
}

func (s *State) applyItemAction(e event.ItemAction) ([]Effect, error) {
	o, ok := s.orders[e.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: item %s for %s", ErrUnknownOrder, e.Kind, e.OrderID)
	}
	i := e.Index()
	if i < 0 || i >= len(o.Items) {
		return nil, fmt.Errorf("%w: item index %d out of range for order %s", ErrMalformed, i, e.OrderID)
	}
	if e.Quantity <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity %d for order %s", ErrMalformed, e.Quantity, e.OrderID)
	}

	item := &o.Items[i]
	delta := e.Quantity
	if remaining := item.EffectiveQuantity(); delta > remaining {
		delta = remaining
	}
	if e.Kind == event.ItemReturned {
		item.ReturnedQuantity += delta
	} else {
		item.CancelledQuantity += delta
	}

	o.TotalAmount = e.NewOrderTotal
	if e.NewSessionTotal != nil {
		if sess, ok := s.sessions[o.TableName]; ok {
			sess.TotalAmount = *e.NewSessionTotal
		}
	}
	return s.autoCancelIfEmpty(o), nil
}

func (s *State) autoCancelIfEmpty(o *model.Order) []Effect {
	if len(o.Items) == 0 || o.Status.IsTerminal() || o.HasActiveItems() {
		return nil
	}
	if _, done := s.autoCanceled[o.ID]; done {
		return nil
	}
	s.autoCanceled[o.ID] = struct{}{}
	return []Effect{RequestStatus{OrderID: o.ID, Status: model.StatusCanceled, Reason: ReasonNoActiveItems}}
}

func (s *State) ensureSession(table string) *model.TableSession {
	sess, ok := s.sessions[table]
	if !ok {
		sess = &model.TableSession{TableName: table}
		s.sessions[table] = sess
	}
	return sess
}

// OpenTable optimistically marks a table occupied when it has no session.
// It reports whether anything changed.
func (s *State) OpenTable(name string) bool {
	if _, ok := s.sessions[name]; ok {
		return false
	}
	t := s.tables[name]
	t.Name = name
	t.Status = model.TableOccupied
	s.tables[name] = t
	s.sessions[name] = &model.TableSession{TableName: name, Optimistic: true}
	return true
}

// ReplaceTables installs an authoritative table list.
func (s *State) ReplaceTables(tables []model.Table) {
	s.tables = make(map[string]model.Table, len(tables))
	for _, t := range tables {
		s.tables[t.Name] = t
		if t.Status == model.TableAvailable {
			delete(s.sessions, t.Name)
		}
	}
}

// ReplaceSession installs an authoritative session.
func (s *State) ReplaceSession(sess model.TableSession) {
	c := sess
	c.OrderIDs = append([]string(nil), sess.OrderIDs...)
	c.Optimistic = false
	s.sessions[sess.TableName] = &c
}

// Order returns a copy of the order with id.
func (s *State) Order(id string) (model.Order, bool) {
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return o.Clone(), true
}

// Orders returns copies of the orders matching keep, oldest first.
func (s *State) Orders(keep func(*model.Order) bool) []model.Order {
	out := make([]model.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NeedsAttention keeps non-terminal orders that still have items to serve.
func NeedsAttention(o *model.Order) bool {
	return !o.Status.IsTerminal() && o.HasActiveItems()
}

// ToPrepare keeps approved orders and orders being prepared.
func ToPrepare(o *model.Order) bool {
	return NeedsAttention(o) && (o.Status == model.StatusAdminApproved || o.Status == model.StatusInPreparation)
}

// WithStatus keeps orders in status.
func WithStatus(status model.OrderStatus) func(*model.Order) bool {
	return func(o *model.Order) bool { return o.Status == status }
}

// Tables returns the table list in natural name order.
func (s *State) Tables() []model.Table {
	out := make([]model.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return parse.Less(out[i].Name, out[j].Name) })
	return out
}

// Session returns the session of table together with its full order history.
func (s *State) Session(table string) (model.TableSession, []model.Order, bool) {
	sess, ok := s.sessions[table]
	if !ok {
		return model.TableSession{}, nil, false
	}
	c := *sess
	c.OrderIDs = append([]string(nil), sess.OrderIDs...)

	history := make([]model.Order, 0, len(c.OrderIDs))
	for _, id := range c.OrderIDs {
		if o, ok := s.orders[id]; ok {
			history = append(history, o.Clone())
		}
	}
	return c, history, true
}
