package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/agrilink/internal/entity"
)

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	BuyerID       int64               `json:"buyer_id"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Status        entity.OrderStatus  `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	PaymentStatus string              `json:"payment_status"`
	Items         []OrderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// OrderItemResponse represents one order line.
type OrderItemResponse struct {
	ID        int64                  `json:"id"`
	OrderID   int64                  `json:"order_id"`
	ProductID int64                  `json:"product_id"`
	Quantity  int                    `json:"quantity"`
	UnitPrice decimal.Decimal        `json:"unit_price"`
	Subtotal  decimal.Decimal        `json:"subtotal"`
	Status    entity.OrderItemStatus `json:"status"`
}

// FromOrderItem maps an order line entity.
func FromOrderItem(item *entity.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:        item.ID,
		OrderID:   item.OrderID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Subtotal:  item.Subtotal,
		Status:    item.Status,
	}
}
