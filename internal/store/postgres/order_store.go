package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/calside/betsim/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Prices and
// sizes are stored as NUMERIC and scanned through their string form to
// keep decimal exactness.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new simulated order row.
func (s *OrderStore) Create(ctx context.Context, runID string, o domain.Order) error {
	const query = `
		INSERT INTO sim_orders (
			id, run_id, market_id, outcome_id, side, status,
			price, size, size_filled, created_on, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := s.pool.Exec(ctx, query,
		o.ID, runID, o.MarketID, o.OutcomeID,
		string(o.Side), string(o.Status),
		o.Price.String(), o.Size.String(), o.SizeFilled.String(),
		o.CreatedOn,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status and filled size of an existing order,
// stamping the matching lifecycle timestamp.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, sizeFilled decimal.Decimal) error {
	var query string
	switch status {
	case domain.OrderStatusFilled:
		query = `UPDATE sim_orders SET status = $1, size_filled = $2, filled_at = NOW(), updated_at = NOW() WHERE id = $3`
	case domain.OrderStatusCancelled:
		query = `UPDATE sim_orders SET status = $1, size_filled = $2, cancelled_at = NOW(), updated_at = NOW() WHERE id = $3`
	default:
		query = `UPDATE sim_orders SET status = $1, size_filled = $2, updated_at = NOW() WHERE id = $3`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), sizeFilled.String(), id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, market_id, outcome_id, side, status, price, size, size_filled, created_on`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status, price, size, sizeFilled string

	err := scanner.Scan(
		&o.ID, &o.MarketID, &o.OutcomeID,
		&side, &status,
		&price, &size, &sizeFilled,
		&o.CreatedOn,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("parse price for %s: %w", o.ID, err)
	}
	if o.Size, err = decimal.NewFromString(size); err != nil {
		return domain.Order{}, fmt.Errorf("parse size for %s: %w", o.ID, err)
	}
	if o.SizeFilled, err = decimal.NewFromString(sizeFilled); err != nil {
		return domain.Order{}, fmt.Errorf("parse size_filled for %s: %w", o.ID, err)
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by id.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM sim_orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByMarket returns a market's orders, newest first.
func (s *OrderStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM sim_orders
		 WHERE market_id = $1
		 ORDER BY created_on DESC
		 LIMIT $2 OFFSET $3`,
		marketID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for market %s: %w", marketID, err)
	}

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for market %s: %w", marketID, err)
	}
	return orders, nil
}

// ListOpen returns the still-open orders of a run in placement order.
func (s *OrderStore) ListOpen(ctx context.Context, runID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM sim_orders
		 WHERE run_id = $1 AND status = 'open'
		 ORDER BY created_on ASC`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders for run %s: %w", runID, err)
	}

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders for run %s: %w", runID, err)
	}
	return orders, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
