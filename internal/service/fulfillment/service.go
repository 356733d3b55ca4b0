package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/entity"
	"github.com/agrilink/agrilink/internal/event"
	"github.com/agrilink/agrilink/internal/geo"
	"github.com/agrilink/agrilink/internal/hub"
	"github.com/agrilink/agrilink/internal/port"
	"github.com/agrilink/agrilink/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/agrilink/agrilink/service/fulfillment")

// Actor identifies the caller of a state-machine operation.
type Actor struct {
	UserID     int64
	SupplierID int64
	Role       string
}

// Service is the single writer of Order, OrderItem, and Delivery status.
// Every mutation for a given entity serializes through a per-entity lock.
type Service struct {
	orders     port.OrderRepository
	deliveries port.DeliveryRepository
	suppliers  port.SupplierRepository
	publisher  *hub.Publisher
	logger     *zap.Logger
	locks      *keyedLocks
	now        func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders     port.OrderRepository
	Deliveries port.DeliveryRepository
	Suppliers  port.SupplierRepository
	Publisher  *hub.Publisher
	Logger     *zap.Logger
}

// Module provides the fulfillment service to Fx.
var Module = fx.Provide(NewService)

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		orders:     p.Orders,
		deliveries: p.Deliveries,
		suppliers:  p.Suppliers,
		publisher:  p.Publisher,
		logger:     p.Logger,
		locks:      newKeyedLocks(),
		now:        time.Now,
	}
}

// deliveryNext is the ordered happy path; Failed/Cancelled are side exits
// from any non-terminal state.
var deliveryNext = map[entity.DeliveryStatus]entity.DeliveryStatus{
	entity.DeliveryAssigned:         entity.DeliveryPickupInProgress,
	entity.DeliveryPickupInProgress: entity.DeliveryPickedUp,
	entity.DeliveryPickedUp:         entity.DeliveryInTransit,
	entity.DeliveryInTransit:        entity.DeliveryDelivered,
}

func itemKey(id int64) string     { return fmt.Sprintf("order_item:%d", id) }
func orderKey(id int64) string    { return fmt.Sprintf("order:%d", id) }
func deliveryKey(id int64) string { return fmt.Sprintf("delivery:%d", id) }

// AcceptOrderItem moves a pending line to accepted on behalf of the
// producer who listed the product. Accepting an already accepted line is a
// no-op, making client retries safe.
func (s *Service) AcceptOrderItem(ctx context.Context, itemID int64, actor Actor) (*entity.OrderItem, error) {
	return s.resolveOrderItem(ctx, itemID, actor, entity.ItemAccepted)
}

// DeclineOrderItem moves a pending line to declined.
func (s *Service) DeclineOrderItem(ctx context.Context, itemID int64, actor Actor) (*entity.OrderItem, error) {
	return s.resolveOrderItem(ctx, itemID, actor, entity.ItemDeclined)
}

func (s *Service) resolveOrderItem(ctx context.Context, itemID int64, actor Actor, target entity.OrderItemStatus) (*entity.OrderItem, error) {
	ctx, span := serviceTracer.Start(ctx, "Fulfillment.ResolveOrderItem", trace.WithAttributes(
		attribute.Int64("order_item.id", itemID),
		attribute.String("order_item.target", string(target)),
	))
	defer span.End()

	unlock := s.locks.acquire(itemKey(itemID))
	defer unlock()

	item, err := s.orders.GetOrderItem(ctx, itemID)
	if err != nil {
		return nil, s.mapRepoErr(span, err, "order item not found")
	}
	if actor.Role != "admin" && item.FarmerID != actor.UserID {
		return nil, errorbank.Forbidden("order item belongs to another producer")
	}
	if item.Status == target {
		return item, nil
	}
	if item.Status != entity.ItemPending {
		return nil, errorbank.InvalidTransition(fmt.Sprintf(
			"order item is %s; only pending items can be %s", item.Status, target,
		))
	}

	old := item.Status
	if err := s.orders.UpdateOrderItemStatus(ctx, itemID, target); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, errorbank.Internal("failed to persist order item status", errorbank.WithCause(err))
	}
	item.Status = target

	order, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return nil, errorbank.Internal("failed to load parent order", errorbank.WithCause(err))
	}

	s.emitStatus(ctx, event.EntityOrderItem, item.ID, string(old), string(target), s.channelsForItem(order, item, nil))
	s.cascadeOrderAfterResolution(ctx, order, item)
	return item, nil
}

// cascadeOrderAfterResolution advances the order-level status once every
// line has been resolved by its producer.
func (s *Service) cascadeOrderAfterResolution(ctx context.Context, order *entity.Order, item *entity.OrderItem) {
	unlock := s.locks.acquire(orderKey(order.ID))
	defer unlock()

	items, err := s.orders.ListOrderItems(ctx, order.ID)
	if err != nil {
		s.logger.Error("order cascade: list items failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	pending, accepted, declined := 0, 0, 0
	for _, it := range items {
		switch it.Status {
		case entity.ItemPending:
			pending++
		case entity.ItemAccepted:
			accepted++
		case entity.ItemDeclined:
			declined++
		}
	}
	if pending > 0 || order.Status != entity.OrderProcessing {
		return
	}

	next := entity.OrderConfirmed
	if accepted == 0 && declined == len(items) {
		next = entity.OrderDeclined
	}
	s.transitionOrder(ctx, order, next, item)
}

func (s *Service) transitionOrder(ctx context.Context, order *entity.Order, next entity.OrderStatus, item *entity.OrderItem) {
	if order.Status == next || order.Status.Terminal() {
		return
	}
	old := order.Status
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		s.logger.Error("order cascade: status write failed",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return
	}
	order.Status = next
	s.emitStatus(ctx, event.EntityOrder, order.ID, string(old), string(next), s.channelsForItem(order, item, nil))
}

// AssignDelivery creates a delivery in Assigned state for an accepted line,
// copying pickup coordinates from the line and drop coordinates from the
// order's shipping address.
func (s *Service) AssignDelivery(ctx context.Context, itemID int64, supplierID int64) (*entity.Delivery, error) {
	ctx, span := serviceTracer.Start(ctx, "Fulfillment.AssignDelivery", trace.WithAttributes(
		attribute.Int64("order_item.id", itemID),
		attribute.Int64("supplier.id", supplierID),
	))
	defer span.End()

	unlock := s.locks.acquire(itemKey(itemID))
	defer unlock()

	item, err := s.orders.GetOrderItem(ctx, itemID)
	if err != nil {
		return nil, s.mapRepoErr(span, err, "order item not found")
	}
	if item.Status != entity.ItemAccepted {
		return nil, errorbank.InvalidTransition(fmt.Sprintf(
			"order item is %s; a delivery can only be assigned to an accepted item", item.Status,
		))
	}
	supplier, err := s.suppliers.GetSupplier(ctx, supplierID)
	if err != nil {
		return nil, s.mapRepoErr(span, err, "supplier not found")
	}

	existing, err := s.deliveries.ActiveForOrderItem(ctx, itemID)
	if err != nil {
		return nil, errorbank.Internal("failed to check existing deliveries", errorbank.WithCause(err))
	}
	if existing != nil {
		return nil, errorbank.Conflict("a delivery is already in progress for this order item",
			errorbank.WithDetail("delivery_id", existing.ID))
	}

	order, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return nil, errorbank.Internal("failed to load parent order", errorbank.WithCause(err))
	}

	now := s.now().UTC()
	d := &entity.Delivery{
		Number:      "DLV-" + strings.ToUpper(uuid.NewString()[:8]),
		OrderItemID: item.ID,
		SupplierID:  supplierID,
		Status:      entity.DeliveryAssigned,

		PickupAddress: item.PickupAddress,
		PickupLat:     item.PickupLat,
		PickupLon:     item.PickupLon,
		DropAddress:   order.ShipAddress,
		DropLat:       order.ShipLat,
		DropLon:       order.ShipLon,

		DistanceMeters: geo.DistanceMeters(
			geo.Point{Lat: item.PickupLat, Lon: item.PickupLon},
			geo.Point{Lat: order.ShipLat, Lon: order.ShipLon},
		),
		AssignedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.deliveries.Create(ctx, d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, errorbank.Internal("failed to create delivery", errorbank.WithCause(err))
	}

	s.emitStatus(ctx, event.EntityDelivery, d.ID, "", string(d.Status), s.channelsForItem(order, item, d), supplier.UserID)
	return d, nil
}

// AdvanceDeliveryStatus applies one step of the delivery sequence
// Assigned -> Pickup_In_Progress -> Picked_Up -> In_Transit -> Delivered,
// or a side exit to Failed/Cancelled. Requesting the current status again
// is a no-op; out-of-order requests fail with InvalidTransition so client
// retries cannot corrupt the sequence.
func (s *Service) AdvanceDeliveryStatus(ctx context.Context, deliveryID int64, next entity.DeliveryStatus, actor Actor) (*entity.Delivery, error) {
	ctx, span := serviceTracer.Start(ctx, "Fulfillment.AdvanceDeliveryStatus", trace.WithAttributes(
		attribute.Int64("delivery.id", deliveryID),
		attribute.String("delivery.next", string(next)),
	))
	defer span.End()

	unlock := s.locks.acquire(deliveryKey(deliveryID))
	defer unlock()

	d, err := s.deliveries.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, s.mapRepoErr(span, err, "delivery not found")
	}
	if actor.Role != "admin" && actor.SupplierID != d.SupplierID {
		return nil, errorbank.Forbidden("delivery is assigned to another supplier")
	}
	if d.Status == next {
		return d, nil
	}
	if d.Status.Terminal() {
		return nil, errorbank.InvalidTransition(fmt.Sprintf("delivery is already %s", d.Status))
	}
	sideExit := next == entity.DeliveryFailed || next == entity.DeliveryCancelled
	if !sideExit && deliveryNext[d.Status] != next {
		return nil, errorbank.InvalidTransition(transitionHint(d.Status, next))
	}

	old := d.Status
	now := s.now().UTC()
	d.Status = next
	switch next {
	case entity.DeliveryPickedUp:
		d.PickedUpAt = &now
	case entity.DeliveryDelivered:
		d.DeliveredAt = &now
	}

	// A lost status write corrupts the order's visible state, so the error
	// always surfaces to the caller.
	if err := s.deliveries.UpdateStatus(ctx, d); err != nil {
		d.Status = old
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, errorbank.Internal("failed to persist delivery status", errorbank.WithCause(err))
	}

	item, order := s.loadLineage(ctx, d)
	channels := s.channelsForItem(order, item, d)
	s.emitStatus(ctx, event.EntityDelivery, d.ID, string(old), string(next), channels, s.supplierUserID(ctx, d.SupplierID))

	switch next {
	case entity.DeliveryInTransit:
		if order != nil && order.Status == entity.OrderConfirmed {
			s.cascadeShipped(ctx, order, item)
		}
	case entity.DeliveryDelivered:
		if item != nil && order != nil {
			s.cascadeDelivered(ctx, order, item)
		}
	}
	return d, nil
}

func transitionHint(current, requested entity.DeliveryStatus) string {
	if requested == entity.DeliveryDelivered &&
		(current == entity.DeliveryAssigned || current == entity.DeliveryPickupInProgress) {
		return "delivery must be picked up before it can be marked delivered"
	}
	expected, ok := deliveryNext[current]
	if !ok {
		return fmt.Sprintf("delivery cannot leave %s", current)
	}
	return fmt.Sprintf("delivery cannot move from %s to %s; next expected status is %s", current, requested, expected)
}

func (s *Service) cascadeShipped(ctx context.Context, order *entity.Order, item *entity.OrderItem) {
	unlock := s.locks.acquire(orderKey(order.ID))
	defer unlock()
	s.transitionOrder(ctx, order, entity.OrderShipped, item)
}

// cascadeDelivered marks the parent line delivered and, once every line is
// terminal, settles the order to Delivered (or Shipped when some lines did
// not arrive).
func (s *Service) cascadeDelivered(ctx context.Context, order *entity.Order, item *entity.OrderItem) {
	unlockItem := s.locks.acquire(itemKey(item.ID))
	old := item.Status
	if old != entity.ItemDelivered {
		if err := s.orders.UpdateOrderItemStatus(ctx, item.ID, entity.ItemDelivered); err != nil {
			s.logger.Error("delivered cascade: item write failed", zap.Int64("order_item_id", item.ID), zap.Error(err))
			unlockItem()
			return
		}
		item.Status = entity.ItemDelivered
		s.emitStatus(ctx, event.EntityOrderItem, item.ID, string(old), string(entity.ItemDelivered), s.channelsForItem(order, item, nil))
	}
	unlockItem()

	unlockOrder := s.locks.acquire(orderKey(order.ID))
	defer unlockOrder()

	items, err := s.orders.ListOrderItems(ctx, order.ID)
	if err != nil {
		s.logger.Error("delivered cascade: list items failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	delivered := 0
	for _, it := range items {
		if !it.Status.Terminal() {
			return
		}
		if it.Status == entity.ItemDelivered {
			delivered++
		}
	}
	next := entity.OrderDelivered
	if delivered < len(items) {
		next = entity.OrderShipped
	}
	s.transitionOrder(ctx, order, next, item)
}

// RateDelivery stores the buyer's rating once the delivery is terminal.
func (s *Service) RateDelivery(ctx context.Context, deliveryID int64, buyerID int64, rating int, feedback string) error {
	ctx, span := serviceTracer.Start(ctx, "Fulfillment.RateDelivery", trace.WithAttributes(attribute.Int64("delivery.id", deliveryID)))
	defer span.End()

	if rating < 1 || rating > 5 {
		return errorbank.BadRequest("rating must be between 1 and 5")
	}

	d, err := s.deliveries.GetDelivery(ctx, deliveryID)
	if err != nil {
		return s.mapRepoErr(span, err, "delivery not found")
	}
	if d.Status != entity.DeliveryDelivered {
		return errorbank.InvalidTransition("only delivered deliveries can be rated")
	}

	_, order := s.loadLineage(ctx, d)
	if order == nil || order.BuyerID != buyerID {
		return errorbank.Forbidden("only the order's buyer can rate the delivery")
	}

	if err := s.deliveries.Rate(ctx, deliveryID, rating, feedback); err != nil {
		return errorbank.Internal("failed to persist rating", errorbank.WithCause(err))
	}
	return nil
}

func (s *Service) loadLineage(ctx context.Context, d *entity.Delivery) (*entity.OrderItem, *entity.Order) {
	item, err := s.orders.GetOrderItem(ctx, d.OrderItemID)
	if err != nil {
		s.logger.Warn("load lineage: order item missing", zap.Int64("order_item_id", d.OrderItemID), zap.Error(err))
		return nil, nil
	}
	order, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		s.logger.Warn("load lineage: order missing", zap.Int64("order_id", item.OrderID), zap.Error(err))
		return item, nil
	}
	return item, order
}

func (s *Service) supplierUserID(ctx context.Context, supplierID int64) int64 {
	supplier, err := s.suppliers.GetSupplier(ctx, supplierID)
	if err != nil {
		return 0
	}
	return supplier.UserID
}

// channelsForItem computes the fan-out set for an event: the buyer's and
// producer's user channels plus the per-delivery channel when a delivery is
// involved.
func (s *Service) channelsForItem(order *entity.Order, item *entity.OrderItem, d *entity.Delivery) []string {
	var channels []string
	if order != nil {
		channels = append(channels, event.UserChannel(order.BuyerID))
	}
	if item != nil {
		channels = append(channels, event.UserChannel(item.FarmerID))
	}
	if d != nil {
		channels = append(channels, event.DeliveryChannel(d.ID))
	}
	return channels
}

func (s *Service) emitStatus(ctx context.Context, kind event.EntityKind, id int64, old, next string, channels []string, extraUsers ...int64) {
	for _, userID := range extraUsers {
		if userID > 0 {
			channels = append(channels, event.UserChannel(userID))
		}
	}
	s.publisher.Publish(ctx, event.Envelope{
		Type:     event.TypeStatusChanged,
		Channels: channels,
		Payload: event.StatusChanged{
			Entity:    kind,
			EntityID:  id,
			OldStatus: old,
			NewStatus: next,
			At:        s.now().UTC(),
		},
	})
}

func (s *Service) mapRepoErr(span trace.Span, err error, notFoundMsg string) error {
	if errors.Is(err, port.ErrNotFound) {
		return errorbank.NotFound(notFoundMsg)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal("repository error", errorbank.WithCause(err))
}
