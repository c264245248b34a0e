package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates which side of the market an order rests on. A back
// order profits if the outcome occurs, a lay order if it does not.
type OrderSide string

const (
	OrderSideBack OrderSide = "back"
	OrderSideLay  OrderSide = "lay"
)

// OrderStatus tracks the order lifecycle. Open is the only non-terminal
// state; Filled and Cancelled are terminal and no transition leaves them.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status is one an order cannot leave.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Order is a resting or completed exchange order. Side and Price are fixed at
// creation; Status and SizeFilled are the only fields that change over an
// order's lifetime.
type Order struct {
	ID         string          `json:"id"`
	MarketID   string          `json:"market_id"`
	OutcomeID  string          `json:"outcome_id"`
	CreatedOn  time.Time       `json:"created_on"`
	Side       OrderSide       `json:"side"`
	Status     OrderStatus     `json:"status"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	SizeFilled decimal.Decimal `json:"size_filled"`
}

// OrderRequest asks a session to place a new order. Size is rounded to two
// decimal places at construction, matching exchange stake precision.
type OrderRequest struct {
	MarketID  string          `json:"market_id"`
	OutcomeID string          `json:"outcome_id"`
	Side      OrderSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
}

// NewOrderRequest builds an OrderRequest with the size rounded to two places.
func NewOrderRequest(marketID, outcomeID string, side OrderSide, price, size decimal.Decimal) OrderRequest {
	return OrderRequest{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Side:      side,
		Price:     price,
		Size:      size.Round(2),
	}
}
