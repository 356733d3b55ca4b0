package event

import (
	"fmt"
	"time"
)

// Type discriminates outbound event payloads on the wire.
type Type string

const (
	TypeStatusChanged   Type = "status.changed"
	TypeLocationUpdated Type = "location.updated"
)

// EntityKind names the entity a status change refers to.
type EntityKind string

const (
	EntityOrder     EntityKind = "order"
	EntityOrderItem EntityKind = "order_item"
	EntityDelivery  EntityKind = "delivery"
)

// StatusChanged is emitted by the fulfillment state machine on every
// successful transition. It is the only way outside observers learn of a
// status change.
type StatusChanged struct {
	Entity    EntityKind `json:"entityType"`
	EntityID  int64      `json:"entityId"`
	OldStatus string     `json:"oldStatus"`
	NewStatus string     `json:"newStatus"`
	At        time.Time  `json:"at"`
}

// LocationUpdated is emitted by the ingestion pipeline for every accepted
// location sample.
type LocationUpdated struct {
	SupplierID int64     `json:"supplierId"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Heading    float64   `json:"heading"`
	Speed      float64   `json:"speed"`
	At         time.Time `json:"at"`
}

// Envelope wraps a payload with its type and the logical channels it
// should fan out to.
type Envelope struct {
	Type     Type     `json:"type"`
	Channels []string `json:"-"`
	Payload  any      `json:"data"`
}

// UserChannel names the per-identity channel every connected client joins.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// DeliveryChannel names the per-delivery interest channel.
func DeliveryChannel(deliveryID int64) string {
	return fmt.Sprintf("delivery:%d", deliveryID)
}
