package dto

import (
	"time"

	"github.com/agrilink/agrilink/internal/entity"
)

// DeliveryResponse represents a delivery as exposed via transport layers.
type DeliveryResponse struct {
	ID              int64                 `json:"id"`
	Number          string                `json:"number"`
	OrderItemID     int64                 `json:"order_item_id"`
	SupplierID      int64                 `json:"supplier_id"`
	Status          entity.DeliveryStatus `json:"status"`
	PickupAddress   string                `json:"pickup_address"`
	PickupLat       float64               `json:"pickup_lat"`
	PickupLon       float64               `json:"pickup_lon"`
	DropAddress     string                `json:"drop_address"`
	DropLat         float64               `json:"drop_lat"`
	DropLon         float64               `json:"drop_lon"`
	DistanceMeters  float64               `json:"distance_meters"`
	RemainingMeters float64               `json:"remaining_meters"`
	ETASeconds      float64               `json:"eta_seconds"`
	AssignedAt      time.Time             `json:"assigned_at"`
	PickedUpAt      *time.Time            `json:"picked_up_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	Rating          *int                  `json:"rating,omitempty"`
	Feedback        string                `json:"feedback,omitempty"`
}

// FromDelivery maps a delivery entity.
func FromDelivery(d *entity.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:              d.ID,
		Number:          d.Number,
		OrderItemID:     d.OrderItemID,
		SupplierID:      d.SupplierID,
		Status:          d.Status,
		PickupAddress:   d.PickupAddress,
		PickupLat:       d.PickupLat,
		PickupLon:       d.PickupLon,
		DropAddress:     d.DropAddress,
		DropLat:         d.DropLat,
		DropLon:         d.DropLon,
		DistanceMeters:  d.DistanceMeters,
		RemainingMeters: d.RemainingMeters,
		ETASeconds:      d.ETASeconds,
		AssignedAt:      d.AssignedAt,
		PickedUpAt:      d.PickedUpAt,
		DeliveredAt:     d.DeliveredAt,
		Rating:          d.Rating,
		Feedback:        d.Feedback,
	}
}

// SupplierPresenceResponse is one row of the online-suppliers dispatch view.
type SupplierPresenceResponse struct {
	SupplierID  int64                   `json:"supplier_id"`
	DisplayName string                  `json:"display_name"`
	ServiceArea string                  `json:"service_area"`
	State       entity.SupplierPresence `json:"state"`
	LastSeenAt  time.Time               `json:"last_seen_at"`
}
