package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus enumerates the lifecycle of a buyer's checkout.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderDeclined   OrderStatus = "declined"
)

// Terminal reports whether the order can no longer change status.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderDeclined
}

// OrderItemStatus enumerates the per-line lifecycle. A producer accepts or
// declines at line granularity, independent of the order-level status.
type OrderItemStatus string

const (
	ItemPending   OrderItemStatus = "pending"
	ItemAccepted  OrderItemStatus = "accepted"
	ItemDeclined  OrderItemStatus = "declined"
	ItemDelivered OrderItemStatus = "delivered"
	ItemCancelled OrderItemStatus = "cancelled"
)

// Terminal reports whether the line can no longer change status.
func (s OrderItemStatus) Terminal() bool {
	return s == ItemDeclined || s == ItemDelivered || s == ItemCancelled
}

// Order represents one buyer's checkout stored in the relational database.
// Orders are never hard-deleted; terminal statuses end the lifecycle.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID            int64           `bun:",pk,autoincrement"`
	Number        string          `bun:"number"`
	BuyerID       int64           `bun:"buyer_id"`
	TotalAmount   decimal.Decimal `bun:"total_amount"`
	Status        OrderStatus     `bun:"status"`
	PaymentMethod string          `bun:"payment_method"`
	PaymentStatus string          `bun:"payment_status"`

	ShipAddress  string  `bun:"ship_address"`
	ShipCity     string  `bun:"ship_city"`
	ShipRegion   string  `bun:"ship_region"`
	ShipPostcode string  `bun:"ship_postcode"`
	ShipLat      float64 `bun:"ship_lat"`
	ShipLon      float64 `bun:"ship_lon"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// ItemsTotal sums the subtotal of every line. The invariant TotalAmount ==
// ItemsTotal must hold after any item-level mutation.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// OrderItem is one product line within an order, the unit a supplier
// actually fulfills. Pickup fields are denormalized from the producer's
// farm address at checkout time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID        int64           `bun:",pk,autoincrement"`
	OrderID   int64           `bun:"order_id"`
	ProductID int64           `bun:"product_id"`
	FarmerID  int64           `bun:"farmer_id"`
	Quantity  int             `bun:"quantity"`
	UnitPrice decimal.Decimal `bun:"unit_price"`
	Subtotal  decimal.Decimal `bun:"subtotal"`
	Status    OrderItemStatus `bun:"status"`

	PickupAddress string  `bun:"pickup_address"`
	PickupLat     float64 `bun:"pickup_lat"`
	PickupLon     float64 `bun:"pickup_lon"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
