package delivery

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

var repoTracer = otel.Tracer("github.com/agrilink/agrilink/repository/delivery")

var terminalStatuses = []entity.DeliveryStatus{
	entity.DeliveryDelivered,
	entity.DeliveryFailed,
	entity.DeliveryCancelled,
}

// Repository encapsulates read/write access for deliveries.
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

// GetDelivery fetches a delivery by primary key.
func (r *Repository) GetDelivery(ctx context.Context, deliveryID int64) (*entity.Delivery, error) {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.GetDelivery", trace.WithAttributes(attribute.Int64("delivery.id", deliveryID)))
	defer span.End()

	d := new(entity.Delivery)
	err := r.reader.NewSelect().Model(d).Where("id = ?", deliveryID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("delivery %d: %w", deliveryID, port.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return d, nil
}

// ActiveForOrderItem returns the non-terminal delivery for the item, or nil
// when none exists. The uniqueness invariant makes at most one row match.
func (r *Repository) ActiveForOrderItem(ctx context.Context, itemID int64) (*entity.Delivery, error) {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.ActiveForOrderItem", trace.WithAttributes(attribute.Int64("order_item.id", itemID)))
	defer span.End()

	d := new(entity.Delivery)
	err := r.reader.NewSelect().Model(d).
		Where("order_item_id = ?", itemID).
		Where("status NOT IN (?)", bun.In(terminalStatuses)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return d, nil
}

// ActiveForSupplier returns every non-terminal delivery assigned to the
// supplier.
func (r *Repository) ActiveForSupplier(ctx context.Context, supplierID int64) ([]*entity.Delivery, error) {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.ActiveForSupplier", trace.WithAttributes(attribute.Int64("supplier.id", supplierID)))
	defer span.End()

	var out []*entity.Delivery
	err := r.reader.NewSelect().Model(&out).
		Where("supplier_id = ?", supplierID).
		Where("status NOT IN (?)", bun.In(terminalStatuses)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return out, nil
}

// ActiveForActor returns ids of non-terminal deliveries the user has a stake
// in: as the assigned supplier, the producer of the line, or the order's
// buyer.
func (r *Repository) ActiveForActor(ctx context.Context, userID int64) ([]int64, error) {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.ActiveForActor", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	// Supplier stake resolves through suppliers.user_id: deliveries carry
	// the supplier's row id, not the account id the caller presents.
	var ids []int64
	err := r.reader.NewSelect().
		Model((*entity.Delivery)(nil)).
		Column("d.id").
		Join("JOIN order_items AS oi ON oi.id = d.order_item_id").
		Join("JOIN orders AS o ON o.id = oi.order_id").
		Join("JOIN suppliers AS s ON s.id = d.supplier_id").
		Where("d.status NOT IN (?)", bun.In(terminalStatuses)).
		Where("s.user_id = ? OR oi.farmer_id = ? OR o.buyer_id = ?", userID, userID, userID).
		Scan(ctx, &ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return ids, nil
}

// Create persists a new delivery.
func (r *Repository) Create(ctx context.Context, d *entity.Delivery) error {
	if d == nil {
		return errors.New("nil delivery")
	}
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.Create", trace.WithAttributes(attribute.String("delivery.number", d.Number)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(d).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// UpdateStatus writes the delivery's status and lifecycle timestamps.
func (r *Repository) UpdateStatus(ctx context.Context, d *entity.Delivery) error {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.UpdateStatus", trace.WithAttributes(
		attribute.Int64("delivery.id", d.ID),
		attribute.String("delivery.status", string(d.Status)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model(d).
		Column("status", "picked_up_at", "delivered_at").
		Set("updated_at = ?", time.Now().UTC()).
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("delivery %d: %w", d.ID, port.ErrNotFound)
	}
	return nil
}

// UpdateProgress refreshes the trailing location snapshot and derived
// remaining-distance/ETA fields.
func (r *Repository) UpdateProgress(ctx context.Context, deliveryID int64, lat, lon, remainingMeters, etaSeconds float64) error {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.UpdateProgress", trace.WithAttributes(attribute.Int64("delivery.id", deliveryID)))
	defer span.End()

	_, err := r.writer.NewUpdate().Model((*entity.Delivery)(nil)).
		Set("current_lat = ?", lat).
		Set("current_lon = ?", lon).
		Set("remaining_meters = ?", remainingMeters).
		Set("eta_seconds = ?", etaSeconds).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", deliveryID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// Rate stores the buyer's rating and feedback for a delivered delivery.
func (r *Repository) Rate(ctx context.Context, deliveryID int64, rating int, feedback string) error {
	ctx, span := repoTracer.Start(ctx, "DeliveryRepository.Rate", trace.WithAttributes(attribute.Int64("delivery.id", deliveryID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Delivery)(nil)).
		Set("rating = ?", rating).
		Set("feedback = ?", feedback).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", deliveryID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("delivery %d: %w", deliveryID, port.ErrNotFound)
	}
	return nil
}
