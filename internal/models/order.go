package models

import "time"

type OrderState = string

const (
	OrderStateRejected   OrderState = "rejected"
	OrderStateCancelled  OrderState = "cancelled"
	OrderStateCompleted  OrderState = "completed"
	OrderStateReserved   OrderState = "reserved"
	OrderStateProcessing OrderState = "processing"
	OrderStateReady      OrderState = "ready"
)

type Order struct {
	Id         int64          `json:"id"`
	Code       string         `json:"code"`
	State      OrderState     `json:"state"`
	PharmacyId string         `json:"pharmacy_id"`
	Area       string         `json:"area"`
	CreatedAt  time.Time      `json:"created_at"`
	History    []OrderHistory `json:"history"`
}

type OrderHistory struct {
	State OrderState `json:"state"`
	At    time.Time  `json:"at"`
}

// OrderEvent is an order state change pushed by the upstream
// real-time source.
type OrderEvent struct {
	OrderId   int64      `json:"order_id"`
	OrderCode string     `json:"order_code"`
	MemberId  int64      `json:"member_id"`
	State     OrderState `json:"state"`
}
