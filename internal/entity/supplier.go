package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// SupplierPresence is the connection-level presence state for a supplier.
// The live value is tracked session-side by the hub; the column here is a
// denormalized mirror consumed by dispatch views.
type SupplierPresence string

const (
	PresenceOffline  SupplierPresence = "offline"
	PresenceIdle     SupplierPresence = "online_idle"
	PresenceTracking SupplierPresence = "online_tracking"
)

// Supplier is a delivery provider. The current-location columns hold the
// last accepted sample from the ingestion pipeline.
type Supplier struct {
	bun.BaseModel `bun:"table:suppliers,alias:s"`

	ID          int64            `bun:",pk,autoincrement"`
	UserID      int64            `bun:"user_id"`
	DisplayName string           `bun:"display_name"`
	ServiceArea string           `bun:"service_area"`
	Presence    SupplierPresence `bun:"presence"`

	CurrentLat float64    `bun:"current_lat"`
	CurrentLon float64    `bun:"current_lon"`
	Heading    float64    `bun:"heading"`
	Speed      float64    `bun:"speed"`
	LocatedAt  *time.Time `bun:"located_at"`

	LastSeenAt time.Time `bun:"last_seen_at,nullzero"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero"`
}
