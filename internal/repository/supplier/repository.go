package supplier

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

var repoTracer = otel.Tracer("github.com/agrilink/agrilink/repository/supplier")

// Repository encapsulates read/write access for suppliers.
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

// GetSupplier fetches a supplier by primary key.
func (r *Repository) GetSupplier(ctx context.Context, supplierID int64) (*entity.Supplier, error) {
	ctx, span := repoTracer.Start(ctx, "SupplierRepository.GetSupplier", trace.WithAttributes(attribute.Int64("supplier.id", supplierID)))
	defer span.End()

	s := new(entity.Supplier)
	err := r.reader.NewSelect().Model(s).Where("id = ?", supplierID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("supplier %d: %w", supplierID, port.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return s, nil
}

// UpdateLocation writes the denormalized current-location snapshot.
func (r *Repository) UpdateLocation(ctx context.Context, supplierID int64, lat, lon, heading, speed float64, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "SupplierRepository.UpdateLocation", trace.WithAttributes(attribute.Int64("supplier.id", supplierID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Supplier)(nil)).
		Set("current_lat = ?", lat).
		Set("current_lon = ?", lon).
		Set("heading = ?", heading).
		Set("speed = ?", speed).
		Set("located_at = ?", at).
		Set("last_seen_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", supplierID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("supplier %d: %w", supplierID, port.ErrNotFound)
	}
	return nil
}

// UpdatePresence mirrors the session-side presence flag into the database
// for dispatch views that read against the persisted schema.
func (r *Repository) UpdatePresence(ctx context.Context, supplierID int64, presence entity.SupplierPresence) error {
	ctx, span := repoTracer.Start(ctx, "SupplierRepository.UpdatePresence", trace.WithAttributes(
		attribute.Int64("supplier.id", supplierID),
		attribute.String("supplier.presence", string(presence)),
	))
	defer span.End()

	_, err := r.writer.NewUpdate().Model((*entity.Supplier)(nil)).
		Set("presence = ?", presence).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", supplierID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}
