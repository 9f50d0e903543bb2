package kitchen

import (
	"context"
	"errors"
	"fmt"
	"log"

	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/orders"
)

// ErrInvalidIntent is returned when an intent is rejected before any REST call.
var ErrInvalidIntent = errors.New("invalid request")

// Intents call the backend and leave the projection to the confirming event.
// OpenTable is the one optimistic exception.

// UpdateStatus asks the backend to move an order to status. On success the
// notifications of the order are marked processed.
func (e *Engine) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	switch status {
	case model.StatusAdminApproved, model.StatusInPreparation, model.StatusReadyForPickup,
		model.StatusServed, model.StatusCanceled:
	default:
		return fmt.Errorf("%w: cannot set status %q", ErrInvalidIntent, status)
	}
	if err := e.api.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("update status of %s: %w", orderID, err)
	}
	e.notifications.MarkOrderProcessed(ctx, orderID)
	return nil
}

// CancelItem cancels quantity units of one item.
func (e *Engine) CancelItem(ctx context.Context, req kitchenapi.ItemRequest) error {
	if err := e.checkItemRequest(req); err != nil {
		return err
	}
	if err := e.api.CancelItem(ctx, req); err != nil {
		return fmt.Errorf("cancel item %d of %s: %w", req.ItemIndex, req.OrderID, err)
	}
	return nil
}

// ReturnItem returns quantity units of one item.
func (e *Engine) ReturnItem(ctx context.Context, req kitchenapi.ItemRequest) error {
	if err := e.checkItemRequest(req); err != nil {
		return err
	}
	if err := e.api.ReturnItem(ctx, req); err != nil {
		return fmt.Errorf("return item %d of %s: %w", req.ItemIndex, req.OrderID, err)
	}
	return nil
}

func (e *Engine) checkItemRequest(req kitchenapi.ItemRequest) error {
	o, ok := e.orders.Order(req.OrderID)
	if !ok {
		return fmt.Errorf("%w: order %s", orders.ErrUnknownOrder, req.OrderID)
	}
	if req.ItemIndex < 0 || req.ItemIndex >= len(o.Items) {
		return fmt.Errorf("%w: item index %d out of range", ErrInvalidIntent, req.ItemIndex)
	}
	remaining := o.Items[req.ItemIndex].EffectiveQuantity()
	if req.Quantity <= 0 || req.Quantity > remaining {
		return fmt.Errorf("%w: quantity %d, %d remaining", ErrInvalidIntent, req.Quantity, remaining)
	}
	return nil
}

// OpenTable marks a free table occupied locally and asks the backend to do the
// same. When the backend refuses, the table list is fetched again.
func (e *Engine) OpenTable(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidIntent)
	}
	e.orders.OpenTable(name)
	if err := e.api.UpdateTableStatus(ctx, name, model.TableOccupied); err != nil {
		if rerr := e.snapshot.RefreshTables(ctx); rerr != nil {
			log.Printf("Warning: failed to restore tables after open failure: %v", rerr)
		}
		return fmt.Errorf("open table %s: %w", name, err)
	}
	return nil
}

// SetTableStatus asks the backend to change a table's status.
func (e *Engine) SetTableStatus(ctx context.Context, name string, status model.TableStatus) error {
	switch status {
	case model.TableAvailable, model.TableOccupied, model.TableReserved, model.TableCleaning:
	default:
		return fmt.Errorf("%w: unknown table status %q", ErrInvalidIntent, status)
	}
	if err := e.api.UpdateTableStatus(ctx, name, status); err != nil {
		return fmt.Errorf("set table %s %s: %w", name, status, err)
	}
	return nil
}

// CompleteSession records the payment of a table session.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string, payment kitchenapi.Payment) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidIntent)
	}
	if err := e.api.CompleteSession(ctx, sessionID, payment); err != nil {
		return fmt.Errorf("complete session %s: %w", sessionID, err)
	}
	return nil
}

// GenerateInvoice returns the invoice of a session.
func (e *Engine) GenerateInvoice(ctx context.Context, sessionID string) (*kitchenapi.Invoice, error) {
	inv, err := e.api.GenerateInvoice(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate invoice for %s: %w", sessionID, err)
	}
	return inv, nil
}

// RefreshSession re-fetches a table session from the backend.
func (e *Engine) RefreshSession(ctx context.Context, table string) error {
	return e.snapshot.RefreshSession(ctx, table)
}

// ForceRejoin re-synchronizes room membership on operator request.
func (e *Engine) ForceRejoin(ctx context.Context) error {
	return e.room.ForceRejoin(ctx)
}

// Reset drops the projection, the buffered events and the processed order
// ledger. The notification list is kept.
func (e *Engine) Reset() {
	e.ledger.Reset()
	e.ingestor.Reset()
	e.orders.Reset()
	log.Println("Kitchen state reset")
}
