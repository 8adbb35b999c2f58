package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the Event* consts
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "shop-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Price     int64  `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID         string        `json:"order_id"`
	UserID          string        `json:"user_id"`
	Email           string        `json:"email"`
	RecipientName   string        `json:"recipient_name"`
	Phone           string        `json:"phone"`
	ShippingAddress string        `json:"shipping_address"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Note            string        `json:"note,omitempty"`
	Items           []ItemPrice   `json:"items"`
	Subtotal        int64         `json:"subtotal"`
	ShippingFee     int64         `json:"shipping_fee"`
	Discount        int64         `json:"discount"`
	Total           int64         `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Total   int64  `json:"total"`
}

func NewOrderPlacedPayload(p Placed, email string) OrderPlacedPayload {
	items := make([]ItemPrice, 0, len(p.Lines))
	for _, l := range p.Lines {
		items = append(items, ItemPrice{ProductID: l.ProductID, Name: l.Name, Qty: l.Quantity, Price: l.Price})
	}
	note := ""
	if p.Order.Note != nil {
		note = *p.Order.Note
	}
	return OrderPlacedPayload{
		OrderID:         p.Order.ID,
		UserID:          p.Order.UserID,
		Email:           email,
		RecipientName:   p.Order.RecipientName,
		Phone:           p.Order.Phone,
		ShippingAddress: p.Order.ShippingAddress,
		PaymentMethod:   p.Order.PaymentMethod,
		Note:            note,
		Items:           items,
		Subtotal:        p.Order.Subtotal,
		ShippingFee:     p.Order.ShippingFee,
		Discount:        p.Order.DiscountAmount,
		Total:           p.Order.Total,
	}
}
