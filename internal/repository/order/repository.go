package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrilink/agrilink/internal/database"
	"github.com/agrilink/agrilink/internal/entity"
	"github.com/agrilink/agrilink/internal/port"
)

var repoTracer = otel.Tracer("github.com/agrilink/agrilink/repository/order")

// Repository encapsulates read/write access for orders and order items.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// GetOrder fetches an order with its items using the read replica.
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetOrder", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Where("o.id = ?", orderID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("order %d: %w", orderID, port.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// GetOrderItem fetches one order line by primary key.
func (r *Repository) GetOrderItem(ctx context.Context, itemID int64) (*entity.OrderItem, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetOrderItem", trace.WithAttributes(attribute.Int64("order_item.id", itemID)))
	defer span.End()

	item := new(entity.OrderItem)
	err := r.reader.NewSelect().Model(item).Where("id = ?", itemID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("order item %d: %w", itemID, port.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return item, nil
}

// ListOrderItems returns every line of the order.
func (r *Repository) ListOrderItems(ctx context.Context, orderID int64) ([]*entity.OrderItem, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListOrderItems", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var items []*entity.OrderItem
	err := r.reader.NewSelect().Model(&items).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return items, nil
}

// UpdateOrderStatus writes a new order-level status.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID int64, status entity.OrderStatus) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateOrderStatus", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("order %d: %w", orderID, port.ErrNotFound)
	}
	return nil
}

// UpdateOrderItemStatus writes a new per-line status.
func (r *Repository) UpdateOrderItemStatus(ctx context.Context, itemID int64, status entity.OrderItemStatus) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateOrderItemStatus", trace.WithAttributes(
		attribute.Int64("order_item.id", itemID),
		attribute.String("order_item.status", string(status)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.OrderItem)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", itemID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("order item %d: %w", itemID, port.ErrNotFound)
	}
	return nil
}
