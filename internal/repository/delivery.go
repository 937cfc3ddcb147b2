package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/vconn/internal/domain/delivery"
	"github.com/xenking/vconn/internal/domain/order"
)

const (
	deliveriesByDateSQL = `SELECT ` + orderColumns + ` FROM orders o ` + orderJoins + `
		WHERE c.wholesaler_id = $1 AND o.delivery_date = $2
		  AND (cardinality($3::text[]) = 0 OR o.status = ANY($3::text[]))
		ORDER BY v.address, o.created_at`

	earningsSQL = `SELECT COALESCE(SUM(o.total_amount), 0)
		FROM orders o JOIN contracts c ON c.id = o.contract_id
		WHERE c.wholesaler_id = $1 AND o.status = 'delivered'
		  AND ($2::date IS NULL OR o.delivery_date = $2::date)`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository runs the read-side delivery and earnings queries.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// ByDate lists orders on the wholesaler's contracts due on date.
func (r *DeliveryRepository) ByDate(ctx context.Context, wholesalerID string, date time.Time, statuses []order.Status) ([]order.Order, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return listOrders(ctx, conn(ctx, r.pool), deliveriesByDateSQL, wholesalerID, date, names)
}

// Earnings sums delivered totals, optionally for one delivery date.
func (r *DeliveryRepository) Earnings(ctx context.Context, wholesalerID string, date *time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := conn(ctx, r.pool).QueryRow(ctx, earningsSQL, wholesalerID, date).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing earnings of %q: %w", wholesalerID, err)
	}
	return sum, nil
}
