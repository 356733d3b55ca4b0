package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrder_ItemsTotal(t *testing.T) {
	order := &Order{
		TotalAmount: decimal.NewFromFloat(1041.00),
		Items: []*OrderItem{
			{Quantity: 4, UnitPrice: decimal.NewFromFloat(60.25), Subtotal: decimal.NewFromFloat(241.00)},
			{Quantity: 10, UnitPrice: decimal.NewFromFloat(80.00), Subtotal: decimal.NewFromFloat(800.00)},
		},
	}
	assert.True(t, order.TotalAmount.Equal(order.ItemsTotal()))

	order.Items = nil
	assert.True(t, order.ItemsTotal().IsZero())
}

func TestStatusTerminality(t *testing.T) {
	assert.False(t, OrderProcessing.Terminal())
	assert.False(t, OrderConfirmed.Terminal())
	assert.False(t, OrderShipped.Terminal())
	assert.True(t, OrderDelivered.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.True(t, OrderDeclined.Terminal())

	assert.False(t, ItemPending.Terminal())
	assert.False(t, ItemAccepted.Terminal())
	assert.True(t, ItemDeclined.Terminal())
	assert.True(t, ItemDelivered.Terminal())

	assert.False(t, DeliveryAssigned.Terminal())
	assert.False(t, DeliveryInTransit.Terminal())
	assert.True(t, DeliveryDelivered.Terminal())
	assert.True(t, DeliveryFailed.Terminal())
	assert.True(t, DeliveryCancelled.Terminal())
}
