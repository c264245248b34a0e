package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderStore persists the lifecycle of simulated orders for later analysis.
type OrderStore interface {
	Create(ctx context.Context, runID string, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, sizeFilled decimal.Decimal) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
	ListOpen(ctx context.Context, runID string) ([]Order, error)
}
