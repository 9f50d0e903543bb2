package orders

import (
	"sync"

	"kitchen-dashboard/internal/event"
	"kitchen-dashboard/internal/model"
)

// Store guards a State for one writer (the event loop) and many readers
// (dashboard views).
type Store struct {
	mu    sync.RWMutex
	state *State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: NewState()}
}

// Apply folds ev into the state and returns the resulting effects.
func (st *Store) Apply(ev event.Event) ([]Effect, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Apply(ev)
}

// UpsertOrder inserts or merges o.
func (st *Store) UpsertOrder(o model.Order) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.UpsertOrder(o)
}

// MergeSnapshot merges orders fetched over REST.
func (st *Store) MergeSnapshot(orders []model.Order) (int, []Effect) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.MergeSnapshot(orders)
}

// OpenTable optimistically opens a table.
func (st *Store) OpenTable(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.OpenTable(name)
}

// ReplaceTables installs an authoritative table list.
func (st *Store) ReplaceTables(tables []model.Table) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.ReplaceTables(tables)
}

// ReplaceSession installs an authoritative session.
func (st *Store) ReplaceSession(sess model.TableSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.ReplaceSession(sess)
}

// Reset drops everything, used on logout.
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = NewState()
}

// Order returns a copy of one order.
func (st *Store) Order(id string) (model.Order, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Order(id)
}

// NeedsAttention returns the orders that still need kitchen or floor action.
func (st *Store) NeedsAttention() []model.Order {
	return st.orders(NeedsAttention)
}

// OrdersToPrepare returns approved and in-preparation orders.
func (st *Store) OrdersToPrepare() []model.Order {
	return st.orders(ToPrepare)
}

// ReadyForPickup returns orders waiting to be served.
func (st *Store) ReadyForPickup() []model.Order {
	return st.orders(func(o *model.Order) bool {
		return NeedsAttention(o) && o.Status == model.StatusReadyForPickup
	})
}

// OrdersByStatus returns every order in status, including terminal ones.
func (st *Store) OrdersByStatus(status model.OrderStatus) []model.Order {
	return st.orders(WithStatus(status))
}

func (st *Store) orders(keep func(*model.Order) bool) []model.Order {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Orders(keep)
}

// Tables returns the table list.
func (st *Store) Tables() []model.Table {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Tables()
}

// Session returns a table session and its order history.
func (st *Store) Session(table string) (model.TableSession, []model.Order, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Session(table)
}
