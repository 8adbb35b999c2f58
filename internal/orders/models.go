package orders

import "time"

type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "cod"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentBankTransfer
}

type Product struct {
	ID         string    `json:"id"`
	CategoryID *string   `json:"categoryId,omitempty"`
	Name       string    `json:"name"`
	Price      int64     `json:"price"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	Status          Status        `json:"status"`
	Subtotal        int64         `json:"subtotal"`
	ShippingFee     int64         `json:"shippingFee"`
	DiscountAmount  int64         `json:"discountAmount"`
	Total           int64         `json:"total"`
	RecipientName   string        `json:"recipientName"`
	Phone           string        `json:"phone"`
	ShippingAddress string        `json:"shippingAddress"`
	Note            *string       `json:"note,omitempty"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PromotionID     *string       `json:"promotionId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Items           []OrderItem   `json:"items,omitempty"`
}

// OrderItem is the line as it was bought; later product edits do not touch it.
type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	ProductID *string `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     int64   `json:"price"`
}

// Placement is everything checkout knows about an order before the cart is read.
type Placement struct {
	UserID          string
	RecipientName   string
	Phone           string
	ShippingAddress string
	Note            string
	PaymentMethod   PaymentMethod
	IdempotencyKey  string
}

// Pricing is resolved from the locked subtotal and persisted as is.
type Pricing struct {
	ShippingFee int64
	Discount    int64
	PromotionID string
}

type PriceFunc func(subtotal int64) (Pricing, error)

// Placed is the committed order plus the lines it was built from.
type Placed struct {
	Order Order
	Lines []Line
}

type Line struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

func Subtotal(lines []Line) int64 {
	var s int64
	for _, l := range lines {
		s += l.Price * int64(l.Quantity)
	}
	return s
}
