// Package port declares the persistence contracts consumed by the service
// layer. Implementations live under internal/repository.
package port

import (
	"context"
	"errors"
	"time"

	"github.com/agrilink/agrilink/internal/entity"
)

// ErrNotFound is returned by any repository when the requested entity id is
// unknown.
var ErrNotFound = errors.New("entity not found")

// OrderRepository persists orders and their lines.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID int64) (*entity.Order, error)
	GetOrderItem(ctx context.Context, itemID int64) (*entity.OrderItem, error)
	// ListOrderItems returns every line of the order.
	ListOrderItems(ctx context.Context, orderID int64) ([]*entity.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status entity.OrderStatus) error
	UpdateOrderItemStatus(ctx context.Context, itemID int64, status entity.OrderItemStatus) error
}

// DeliveryRepository persists supplier-facing deliveries.
type DeliveryRepository interface {
	GetDelivery(ctx context.Context, deliveryID int64) (*entity.Delivery, error)
	// ActiveForOrderItem returns the non-terminal delivery for the item,
	// or nil when none exists.
	ActiveForOrderItem(ctx context.Context, itemID int64) (*entity.Delivery, error)
	// ActiveForSupplier returns every non-terminal delivery assigned to
	// the supplier.
	ActiveForSupplier(ctx context.Context, supplierID int64) ([]*entity.Delivery, error)
	// ActiveForActor returns ids of non-terminal deliveries the user has a
	// stake in as buyer, producer, or supplier.
	ActiveForActor(ctx context.Context, userID int64) ([]int64, error)
	Create(ctx context.Context, delivery *entity.Delivery) error
	UpdateStatus(ctx context.Context, delivery *entity.Delivery) error
	// UpdateProgress refreshes the trailing location snapshot and the
	// derived remaining-distance/ETA fields.
	UpdateProgress(ctx context.Context, deliveryID int64, lat, lon, remainingMeters, etaSeconds float64) error
	Rate(ctx context.Context, deliveryID int64, rating int, feedback string) error
}

// SupplierRepository persists suppliers and their denormalized current
// location.
type SupplierRepository interface {
	GetSupplier(ctx context.Context, supplierID int64) (*entity.Supplier, error)
	UpdateLocation(ctx context.Context, supplierID int64, lat, lon, heading, speed float64, at time.Time) error
	UpdatePresence(ctx context.Context, supplierID int64, presence entity.SupplierPresence) error
}
