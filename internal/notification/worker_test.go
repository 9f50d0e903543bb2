package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

var testKeys = &webpush.Options{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", TTL: 60}

func subscriptionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "types", "created_at"})
}

func TestWorkerPool_Cue(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(db), testKeys, nil)

	n := model.Notification{ID: "new_order:o1:1", Type: model.NotificationNewOrder}
	require.NoError(t, wp.Cue(n))

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, n.ID, job.ID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for cue to be queued")
	}
}

func TestWorkerPool_CueErrors(t *testing.T) {
	db, _ := newTestDB(t)

	t.Run("unsupported without keys", func(t *testing.T) {
		wp := NewWorkerPool(1, store.NewGormStore(db), &webpush.Options{}, nil)
		err := wp.Cue(model.Notification{ID: "x"})
		assert.True(t, errors.Is(err, ErrCueUnsupported))

		wp = NewWorkerPool(1, store.NewGormStore(db), nil, nil)
		assert.True(t, errors.Is(wp.Cue(model.Notification{ID: "x"}), ErrCueUnsupported))
	})

	t.Run("blocked when saturated", func(t *testing.T) {
		wp := NewWorkerPool(1, store.NewGormStore(db), testKeys, nil)
		for i := 0; i < cap(wp.Jobs()); i++ {
			require.NoError(t, wp.Cue(model.Notification{ID: "x"}))
		}
		err := wp.Cue(model.Notification{ID: "overflow"})
		assert.True(t, errors.Is(err, ErrCueBlocked))
	})
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(gormDB), testKeys, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends cue to subscriptions wanting the type", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)

				var p cuePayload
				require.NoError(t, json.Unmarshal(payload, &p))
				assert.Equal(t, "New order", p.Title)
				assert.Equal(t, "Table T3 placed order o1", p.Body)
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions"`)).
			WillReturnRows(subscriptionRows().
				AddRow("https://example.com/push", "test_p256dh", "test_auth", `["new_order"]`, time.Now()).
				AddRow("https://example.com/payments", "p", "a", `["payment_request"]`, time.Now()))

		require.NoError(t, wp.Cue(model.Notification{ID: "new_order:o1:1", Type: model.NotificationNewOrder, TableName: "T3", OrderID: "o1"}))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions"`)).
			WillReturnRows(subscriptionRows().
				AddRow("https://example.com/expired", "k", "a", `[]`, time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = $1`)).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, wp.Cue(model.Notification{ID: "payment_request:s1:1", Type: model.NotificationPaymentRequest, TableName: "T3"}))

		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})
}

func TestMessage(t *testing.T) {
	title, body := Message(model.Notification{Type: model.NotificationReadyForPickup, TableName: "T3", OrderID: "o1"})
	assert.Equal(t, "Ready for pickup", title)
	assert.Equal(t, "Order o1 for table T3 is ready", body)

	title, body = Message(model.Notification{Type: model.NotificationPaymentRequest, TableName: "Patio-2"})
	assert.Equal(t, "Payment requested", title)
	assert.Equal(t, "Table Patio-2 asked for the bill", body)
}
