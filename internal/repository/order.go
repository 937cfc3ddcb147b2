package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vconn/internal/domain/order"
)

// orderColumns are scanned by scanOrder, in order. o is the order, c its
// contract, v the vendor and w the wholesaler.
const orderColumns = `o.id, o.vendor_id, o.contract_id, o.quantity, o.total_amount, o.status,
	o.delivery_date, o.created_at, o.updated_at, o.delivered_at,
	c.wholesaler_id, c.product_name, c.price_per_unit,
	v.name, v.business_name, v.address, v.phone, w.name`

const orderJoins = `JOIN contracts c ON c.id = o.contract_id
	JOIN users v ON v.id = o.vendor_id
	JOIN users w ON w.id = c.wholesaler_id`

const (
	createOrderSQL = `INSERT INTO orders
		(id, vendor_id, contract_id, quantity, total_amount, status, delivery_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders o ` + orderJoins + ` WHERE o.id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE OF o`

	setOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	markDeliveredSQL = `WITH o AS (
			UPDATE orders SET status = 'delivered', delivered_at = $3, updated_at = $3
			WHERE id = $1
			  AND status IN ('pending', 'confirmed')
			  AND contract_id IN (SELECT id FROM contracts WHERE wholesaler_id = $2)
			RETURNING *
		)
		SELECT ` + orderColumns + ` FROM o ` + orderJoins

	listVendorOrdersSQL = `SELECT ` + orderColumns + ` FROM orders o ` + orderJoins + `
		WHERE o.vendor_id = $1
		ORDER BY o.created_at DESC`

	activeVendorOrdersSQL = `SELECT ` + orderColumns + ` FROM orders o ` + orderJoins + `
		WHERE o.vendor_id = $1 AND o.status IN ('pending', 'confirmed')
		ORDER BY o.delivery_date, o.created_at`

	countVendorOrdersSQL = `SELECT COUNT(*) FROM orders WHERE vendor_id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.VendorID, o.ContractID, o.Quantity, o.TotalAmount, string(o.Status),
		o.DeliveryDate, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order with its projections.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// GetForUpdate returns an order and locks its row for the rest of the
// transaction carried by ctx.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// SetStatus writes a new status.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setOrderStatusSQL, id, string(status), at)
	if err != nil {
		return fmt.Errorf("setting order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkDelivered delivers an open order on one of wholesalerID's contracts.
// The ownership and status checks are part of the UPDATE itself.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id, wholesalerID string, at time.Time) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, markDeliveredSQL, id, wholesalerID, at)
	if err != nil {
		return nil, fmt.Errorf("delivering order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delivering order %q: %w", id, err)
	}
	return &o, nil
}

// ListByVendor lists every order of the vendor, newest first.
func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string) ([]order.Order, error) {
	return listOrders(ctx, conn(ctx, r.pool), listVendorOrdersSQL, vendorID)
}

// ActiveByVendor lists the vendor's pending and confirmed orders by delivery date.
func (r *OrderRepository) ActiveByVendor(ctx context.Context, vendorID string) ([]order.Order, error) {
	return listOrders(ctx, conn(ctx, r.pool), activeVendorOrdersSQL, vendorID)
}

// CountByVendor counts the vendor's orders in any status.
func (r *OrderRepository) CountByVendor(ctx context.Context, vendorID string) (int, error) {
	var n int
	if err := conn(ctx, r.pool).QueryRow(ctx, countVendorOrdersSQL, vendorID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of %q: %w", vendorID, err)
	}
	return n, nil
}

func listOrders(ctx context.Context, q querier, sql string, args ...any) ([]order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.VendorID, &o.ContractID, &o.Quantity, &o.TotalAmount, &status,
		&o.DeliveryDate, &o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
		&o.WholesalerID, &o.ProductName, &o.PricePerUnit,
		&o.VendorName, &o.VendorBusiness, &o.VendorAddress, &o.VendorPhone, &o.WholesalerName,
	)
	o.Status = order.Status(status)
	return o, err
}
