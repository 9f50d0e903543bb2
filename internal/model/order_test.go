package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestItem_EffectiveQuantity(t *testing.T) {
	testCases := []struct {
		name     string
		item     Item
		expected int
	}{
		{name: "untouched", item: Item{Quantity: 3}, expected: 3},
		{name: "partly cancelled", item: Item{Quantity: 3, CancelledQuantity: 1}, expected: 2},
		{name: "cancelled and returned", item: Item{Quantity: 3, CancelledQuantity: 1, ReturnedQuantity: 2}, expected: 0},
		{name: "over-reduced never negative", item: Item{Quantity: 1, CancelledQuantity: 2}, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.item.EffectiveQuantity())
		})
	}
}

func TestOrder_HasActiveItems(t *testing.T) {
	o := Order{Items: []Item{{Quantity: 1, CancelledQuantity: 1}, {Quantity: 2, ReturnedQuantity: 2}}}
	assert.False(t, o.HasActiveItems())

	o.Items = append(o.Items, Item{Quantity: 1})
	assert.True(t, o.HasActiveItems())

	assert.False(t, (&Order{}).HasActiveItems())
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := Order{
		ID:               "o1",
		Items:            []Item{{Name: "Rice", Quantity: 2}},
		StatusTimestamps: map[OrderStatus]time.Time{StatusPending: time.Now()},
	}
	c := o.Clone()
	c.Items[0].Quantity = 9
	c.StatusTimestamps[StatusServed] = time.Now()

	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.NotContains(t, o.StatusTimestamps, StatusServed)
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusServed.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.False(t, StatusReadyForPickup.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
}
