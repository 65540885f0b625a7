package models

import "time"

type OrderStatus string

const (
	OrderStatusCart            OrderStatus = "cart"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusShipping        OrderStatus = "shipping"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

type Order struct {
	ID         string      `json:"id"`
	Status     OrderStatus `json:"status"`
	TotalPrice float64     `json:"total_price"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
