package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	taxRate               = decimal.RequireFromString("0.15")
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShipping          = decimal.NewFromInt(10)
)

type OrderItem struct {
	Product  string  `bson:"product" json:"product"`
	Name     string  `bson:"name" json:"name"`
	Image    string  `bson:"image" json:"image"`
	Quantity int     `bson:"quantity" json:"quantity"`
	Price    float64 `bson:"price" json:"price"`
}

type PaymentResult struct {
	ID         string `bson:"id" json:"id"`
	Status     string `bson:"status" json:"status"`
	UpdateTime string `bson:"updateTime" json:"updateTime"`
	Email      string `bson:"email" json:"email"`
}

type Order struct {
	ID              string         `bson:"_id" json:"id"`
	User            string         `bson:"user" json:"user"`
	OrderItems      []OrderItem    `bson:"orderItems" json:"orderItems"`
	ShippingAddress Address        `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   string         `bson:"paymentMethod" json:"paymentMethod"`
	PaymentResult   *PaymentResult `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`
	ItemsPrice      float64        `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice        float64        `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice   float64        `bson:"shippingPrice" json:"shippingPrice"`
	TotalPrice      float64        `bson:"totalPrice" json:"totalPrice"`
	IsPaid          bool           `bson:"isPaid" json:"isPaid"`
	PaidAt          *time.Time     `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	IsDelivered     bool           `bson:"isDelivered" json:"isDelivered"`
	DeliveredAt     *time.Time     `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time      `bson:"updatedAt" json:"updatedAt"`
}

type Prices struct {
	Items    float64
	Tax      float64
	Shipping float64
	Total    float64
}

// PriceOrder totals line items from their captured unit prices. Amounts are
// rounded to cents.
func PriceOrder(items []OrderItem) Prices {
	itemsPrice := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		itemsPrice = itemsPrice.Add(line)
	}
	itemsPrice = itemsPrice.Round(2)

	tax := itemsPrice.Mul(taxRate).Round(2)
	shipping := flatShipping
	if itemsPrice.GreaterThan(freeShippingThreshold) {
		shipping = decimal.Zero
	}
	total := itemsPrice.Add(tax).Add(shipping).Round(2)

	return Prices{
		Items:    itemsPrice.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Shipping: shipping.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

func (o Order) Clone() Order {
	out := o
	out.OrderItems = append(make([]OrderItem, 0, len(o.OrderItems)), o.OrderItems...)
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		out.PaymentResult = &pr
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		out.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		out.DeliveredAt = &t
	}
	return out
}

// OrderPatch only covers the status fields; line items and prices are
// frozen at creation.
type OrderPatch struct {
	IsPaid        *bool
	PaidAt        *time.Time
	PaymentResult *PaymentResult
	IsDelivered   *bool
	DeliveredAt   *time.Time
}

func (p OrderPatch) Empty() bool {
	return p == OrderPatch{}
}

func (p OrderPatch) Apply(dst *Order) {
	if p.IsPaid != nil {
		dst.IsPaid = *p.IsPaid
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		dst.PaidAt = &t
	}
	if p.PaymentResult != nil {
		pr := *p.PaymentResult
		dst.PaymentResult = &pr
	}
	if p.IsDelivered != nil {
		dst.IsDelivered = *p.IsDelivered
	}
	if p.DeliveredAt != nil {
		t := *p.DeliveredAt
		dst.DeliveredAt = &t
	}
}
