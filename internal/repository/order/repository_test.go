package order_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/agrilink/agrilink/internal/database"
	"github.com/agrilink/agrilink/internal/entity"
	"github.com/agrilink/agrilink/internal/port"
	"github.com/agrilink/agrilink/internal/repository/order"
)

type orderRepositorySuite struct {
	suite.Suite

	container *tcpostgres.PostgresContainer
	db        *bun.DB
	repo      *order.Repository
}

// entry point to run the tests in the suite
func TestOrderRepositorySuite(t *testing.T) {
	suite.Run(t, new(orderRepositorySuite))
}

func (suite *orderRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	container, connStr, err := startPostgres(ctx)
	suite.Require().NoError(err)
	suite.container = container

	suite.db = openBun(connStr)
	suite.Require().NoError(migrateUp(ctx, suite.db))

	suite.repo = order.NewRepository(&database.Connections{Writer: suite.db, Reader: suite.db})
}

func (suite *orderRepositorySuite) TearDownSuite() {
	ctx := suite.T().Context()

	if suite.db != nil {
		suite.NoError(suite.db.Close())
	}
	if suite.container != nil {
		suite.NoError(suite.container.Terminate(ctx))
	}
}

func (suite *orderRepositorySuite) deleteAll() {
	ctx := suite.T().Context()
	_, err := suite.db.ExecContext(ctx, "TRUNCATE orders, order_items RESTART IDENTITY CASCADE")
	suite.Require().NoError(err)
}

func (suite *orderRepositorySuite) seedOrder() *entity.Order {
	ctx := suite.T().Context()
	t := suite.T()

	o := &entity.Order{
		Number:        "ORD-2026-0100",
		BuyerID:       201,
		TotalAmount:   decimal.RequireFromString("90.00"),
		Status:        entity.OrderProcessing,
		PaymentMethod: "mobile_money",
		PaymentStatus: "paid",
		ShipAddress:   "12 Market Rd",
		ShipCity:      "Nairobi",
		ShipLat:       -1.2921,
		ShipLon:       36.8219,
	}
	_, err := suite.db.NewInsert().Model(o).Exec(ctx)
	require.NoError(t, err)

	items := []*entity.OrderItem{
		{
			OrderID: o.ID, ProductID: 1, FarmerID: 301, Quantity: 3,
			UnitPrice: decimal.RequireFromString("10.00"),
			Subtotal:  decimal.RequireFromString("30.00"),
			Status:    entity.ItemPending,
		},
		{
			OrderID: o.ID, ProductID: 2, FarmerID: 302, Quantity: 2,
			UnitPrice: decimal.RequireFromString("30.00"),
			Subtotal:  decimal.RequireFromString("60.00"),
			Status:    entity.ItemPending,
		},
	}
	_, err = suite.db.NewInsert().Model(&items).Exec(ctx)
	require.NoError(t, err)

	o.Items = items
	return o
}

func (suite *orderRepositorySuite) TestGetOrder() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	seeded := suite.seedOrder()

	got, err := suite.repo.GetOrder(ctx, seeded.ID)
	require.NoError(t, err)

	assert.Equal(t, seeded.Number, got.Number)
	assert.Equal(t, seeded.BuyerID, got.BuyerID)
	assert.Equal(t, entity.OrderProcessing, got.Status)
	assert.True(t, seeded.TotalAmount.Equal(got.TotalAmount))

	require.Len(t, got.Items, 2)
	assert.True(t, got.TotalAmount.Equal(got.ItemsTotal()))
}

func (suite *orderRepositorySuite) TestGetOrder_NotFound() {
	t := suite.T()

	_, err := suite.repo.GetOrder(t.Context(), 424242)
	require.ErrorIs(t, err, port.ErrNotFound)
}

func (suite *orderRepositorySuite) TestUpdateOrderItemStatus() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	seeded := suite.seedOrder()
	itemID := seeded.Items[0].ID

	require.NoError(t, suite.repo.UpdateOrderItemStatus(ctx, itemID, entity.ItemAccepted))

	got, err := suite.repo.GetOrderItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemAccepted, got.Status)

	items, err := suite.repo.ListOrderItems(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, entity.ItemAccepted, items[0].Status)
	assert.Equal(t, entity.ItemPending, items[1].Status)
}

func (suite *orderRepositorySuite) TestUpdateOrderStatus() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	seeded := suite.seedOrder()

	require.NoError(t, suite.repo.UpdateOrderStatus(ctx, seeded.ID, entity.OrderConfirmed))

	got, err := suite.repo.GetOrder(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderConfirmed, got.Status)
}

func startPostgres(ctx context.Context) (*tcpostgres.PostgresContainer, string, error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("agrilink_test"),
		tcpostgres.WithUsername("agrilink"),
		tcpostgres.WithPassword("agrilink"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}
	return container, connStr, nil
}

func openBun(connStr string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateUp(ctx context.Context, db *bun.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.DB, "../../../db/migrations/sql")
}
