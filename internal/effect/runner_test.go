package effect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/orders"
)

type call struct {
	OrderID string
	Status  model.OrderStatus
}

// mockUpdater records UpdateOrderStatus calls.
type mockUpdater struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (m *mockUpdater) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{orderID, status})
	return m.err
}

func (m *mockUpdater) Calls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

func TestRunner_DispatchExecutesRequestStatus(t *testing.T) {
	api := &mockUpdater{}
	r := NewRunner(2, api, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Dispatch(ctx, orders.RequestStatus{OrderID: "o1", Status: model.StatusCanceled, Reason: orders.ReasonNoActiveItems})

	assert.Eventually(t, func() bool { return len(api.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, call{"o1", model.StatusCanceled}, api.Calls()[0])
}

func TestRunner_FailureIsNotRetried(t *testing.T) {
	api := &mockUpdater{err: errors.New("backend down")}
	r := NewRunner(1, api, time.Second, nil)

	r.Execute(context.Background(), orders.RequestStatus{OrderID: "o1", Status: model.StatusCanceled})
	assert.Len(t, api.Calls(), 1)
}

func TestRunner_DispatchOverflowStillRuns(t *testing.T) {
	api := &mockUpdater{}
	r := NewRunner(1, api, time.Second, nil)

	// No workers started: the queue fills and the rest run on their own goroutines.
	ctx := context.Background()
	for i := 0; i < cap(r.jobs)+3; i++ {
		r.Dispatch(ctx, orders.RequestStatus{OrderID: "o", Status: model.StatusCanceled})
	}
	assert.Eventually(t, func() bool { return len(api.Calls()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Len(t, r.jobs, cap(r.jobs))
}
