package seeder

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/database"
	"github.com/agrilink/agrilink/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Run applies every seeder in dependency order.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.Suppliers(ctx); err != nil {
		return err
	}
	return s.Orders(ctx)
}

// Suppliers seeds demo delivery providers if they are missing.
func (s *Seeder) Suppliers(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []entity.Supplier{
		{ID: 1, UserID: 101, DisplayName: gofakeit.Company(), ServiceArea: "Nakuru County", Presence: entity.PresenceOffline, CreatedAt: now, UpdatedAt: now},
		{ID: 2, UserID: 102, DisplayName: gofakeit.Company(), ServiceArea: "Kiambu County", Presence: entity.PresenceOffline, CreatedAt: now, UpdatedAt: now},
	}

	for _, sample := range samples {
		supplier := sample
		_, err := s.db.NewInsert().Model(&supplier).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded suppliers", zap.Int("count", len(samples)))
	}
	return nil
}

// Orders seeds a demo order with pending lines if it is missing. Line
// subtotals are kept in sum with the order total.
func (s *Seeder) Orders(ctx context.Context) error {
	now := time.Now().UTC()

	unitA := decimal.NewFromFloat(120.50)
	unitB := decimal.NewFromFloat(80.00)
	subA := unitA.Mul(decimal.NewFromInt(4))
	subB := unitB.Mul(decimal.NewFromInt(10))

	order := entity.Order{
		ID:            1,
		Number:        "ORD-2024-0001",
		BuyerID:       201,
		TotalAmount:   subA.Add(subB),
		Status:        entity.OrderProcessing,
		PaymentMethod: "mobile_money",
		PaymentStatus: "paid",
		ShipAddress:   gofakeit.Street(),
		ShipCity:      "Nairobi",
		ShipLat:       -1.2921,
		ShipLon:       36.8219,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	res, err := s.db.NewInsert().Model(&order).
		On("CONFLICT (number) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil
	}

	items := []entity.OrderItem{
		{OrderID: order.ID, ProductID: 11, FarmerID: 301, Quantity: 4, UnitPrice: unitA, Subtotal: subA,
			Status: entity.ItemPending, PickupAddress: gofakeit.Street(), PickupLat: -0.3031, PickupLon: 36.0800, CreatedAt: now, UpdatedAt: now},
		{OrderID: order.ID, ProductID: 12, FarmerID: 302, Quantity: 10, UnitPrice: unitB, Subtotal: subB,
			Status: entity.ItemPending, PickupAddress: gofakeit.Street(), PickupLat: -1.1714, PickupLon: 36.8356, CreatedAt: now, UpdatedAt: now},
	}
	for _, sample := range items {
		item := sample
		if _, err := s.db.NewInsert().Model(&item).Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded demo order", zap.String("number", order.Number), zap.Int("items", len(items)))
	}
	return nil
}
