package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// DeliveryStatus enumerates the supplier-facing fulfillment lifecycle.
type DeliveryStatus string

const (
	DeliveryAssigned         DeliveryStatus = "assigned"
	DeliveryPickupInProgress DeliveryStatus = "pickup_in_progress"
	DeliveryPickedUp         DeliveryStatus = "picked_up"
	DeliveryInTransit        DeliveryStatus = "in_transit"
	DeliveryDelivered        DeliveryStatus = "delivered"
	DeliveryFailed           DeliveryStatus = "failed"
	DeliveryCancelled        DeliveryStatus = "cancelled"
)

// Terminal reports whether the delivery is finished; terminal deliveries
// are immutable apart from rating and feedback.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed || s == DeliveryCancelled
}

// Delivery is the supplier-facing unit of work, one-to-one with an accepted
// order item. At most one non-terminal delivery exists per item.
type Delivery struct {
	bun.BaseModel `bun:"table:deliveries,alias:d"`

	ID          int64          `bun:",pk,autoincrement"`
	Number      string         `bun:"number"`
	OrderItemID int64          `bun:"order_item_id"`
	SupplierID  int64          `bun:"supplier_id"`
	Status      DeliveryStatus `bun:"status"`

	PickupAddress string  `bun:"pickup_address"`
	PickupLat     float64 `bun:"pickup_lat"`
	PickupLon     float64 `bun:"pickup_lon"`
	DropAddress   string  `bun:"drop_address"`
	DropLat       float64 `bun:"drop_lat"`
	DropLon       float64 `bun:"drop_lon"`

	// Trailing snapshot of the last accepted location sample and the
	// remaining-distance/ETA derived from it.
	CurrentLat      float64 `bun:"current_lat"`
	CurrentLon      float64 `bun:"current_lon"`
	DistanceMeters  float64 `bun:"distance_meters"`
	RemainingMeters float64 `bun:"remaining_meters"`
	ETASeconds      float64 `bun:"eta_seconds"`

	AssignedAt  time.Time  `bun:"assigned_at,nullzero"`
	PickedUpAt  *time.Time `bun:"picked_up_at"`
	DeliveredAt *time.Time `bun:"delivered_at"`

	Rating   *int   `bun:"rating"`
	Feedback string `bun:"feedback"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
