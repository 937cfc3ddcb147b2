package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vconn/internal/domain/contract"
)

// contractColumns are scanned by scanContract, in order. Every contract query
// joins the owning wholesaler as u.
const contractColumns = `c.id, c.wholesaler_id, c.product_name, c.daily_quantity, c.price_per_unit,
	c.duration_days, c.description, c.status, c.end_date, c.created_at, c.updated_at,
	u.name, u.business_name`

const (
	createContractSQL = `INSERT INTO contracts
		(id, wholesaler_id, product_name, daily_quantity, price_per_unit, duration_days,
		 description, status, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getContractSQL = `SELECT ` + contractColumns + `
		FROM contracts c JOIN users u ON u.id = c.wholesaler_id
		WHERE c.id = $1`

	acceptContractSQL = `INSERT INTO vendor_contracts (vendor_id, contract_id, accepted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (vendor_id, contract_id) DO NOTHING`

	isAcceptedSQL = `SELECT EXISTS (
		SELECT 1 FROM vendor_contracts WHERE vendor_id = $1 AND contract_id = $2)`

	updateContractSQL = `UPDATE contracts c SET
			product_name   = COALESCE($3, c.product_name),
			daily_quantity = COALESCE($4, c.daily_quantity),
			price_per_unit = COALESCE($5, c.price_per_unit),
			description    = COALESCE($6, c.description),
			updated_at     = $7
		FROM users u
		WHERE u.id = c.wholesaler_id AND c.id = $1 AND c.wholesaler_id = $2
		RETURNING ` + contractColumns

	deactivateContractSQL = `UPDATE contracts c SET status = 'inactive', updated_at = $3
		FROM users u
		WHERE u.id = c.wholesaler_id AND c.id = $1 AND c.wholesaler_id = $2
		RETURNING ` + contractColumns

	availableContractsSQL = `SELECT ` + contractColumns + `
		FROM contracts c JOIN users u ON u.id = c.wholesaler_id
		WHERE c.status = 'active' AND c.end_date > $2
		  AND NOT EXISTS (
			SELECT 1 FROM vendor_contracts vc
			WHERE vc.contract_id = c.id AND vc.vendor_id = $1)
		ORDER BY c.created_at DESC`

	searchContractsSQL = `SELECT ` + contractColumns + `
		FROM contracts c JOIN users u ON u.id = c.wholesaler_id
		WHERE c.status = 'active' AND c.end_date > $1
		  AND ($2 = '' OR c.product_name ILIKE $2 OR c.description ILIKE $2)
		  AND ($3 = '' OR u.address ILIKE $3)
		ORDER BY c.created_at DESC`

	listWholesalerContractsSQL = `SELECT ` + contractColumns + `,
			(SELECT COUNT(DISTINCT vc.vendor_id) FROM vendor_contracts vc WHERE vc.contract_id = c.id),
			(SELECT COUNT(*) FROM orders o WHERE o.contract_id = c.id)
		FROM contracts c JOIN users u ON u.id = c.wholesaler_id
		WHERE c.wholesaler_id = $1
		ORDER BY c.created_at DESC`

	listAcceptedContractsSQL = `SELECT ` + contractColumns + `, vc.accepted_at
		FROM vendor_contracts vc
		JOIN contracts c ON c.id = vc.contract_id
		JOIN users u ON u.id = c.wholesaler_id
		WHERE vc.vendor_id = $1
		ORDER BY vc.accepted_at DESC`

	activeWholesalerContractsSQL = `SELECT ` + contractColumns + `
		FROM contracts c JOIN users u ON u.id = c.wholesaler_id
		WHERE c.wholesaler_id = $1 AND c.status = 'active' AND c.end_date > $2
		ORDER BY c.created_at DESC`

	endingContractsSQL = `SELECT ` + contractColumns + `
		FROM contracts c JOIN users u ON u.id = c.wholesaler_id
		WHERE c.wholesaler_id = $1 AND c.status = 'active'
		  AND c.end_date > $2 AND c.end_date <= $3
		ORDER BY c.end_date`
)

var _ contract.Repository = (*ContractRepository)(nil)

// ContractRepository implements contract.Repository backed by PostgreSQL.
type ContractRepository struct {
	pool *pgxpool.Pool
}

// NewContractRepository returns a ContractRepository that uses the given pool.
func NewContractRepository(pool *pgxpool.Pool) *ContractRepository {
	return &ContractRepository{pool: pool}
}

// Create inserts a contract.
func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createContractSQL,
		c.ID, c.WholesalerID, c.ProductName, c.DailyQuantity, c.PricePerUnit, c.DurationDays,
		c.Description, string(c.Status), c.EndDate, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating contract %q: %w", c.ID, err)
	}
	return nil
}

// GetByID returns a contract with its wholesaler's names.
func (r *ContractRepository) GetByID(ctx context.Context, id string) (*contract.Contract, error) {
	c, err := r.one(ctx, getContractSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting contract %q: %w", id, err)
	}
	if c == nil {
		return nil, contract.ErrNotFound
	}
	return c, nil
}

// Accept inserts the acceptance unless the primary key already holds it.
func (r *ContractRepository) Accept(ctx context.Context, contractID, vendorID string, at time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, acceptContractSQL, vendorID, contractID, at)
	if err != nil {
		return false, fmt.Errorf("accepting contract %q: %w", contractID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsAccepted reports whether the vendor accepted the contract.
func (r *ContractRepository) IsAccepted(ctx context.Context, vendorID, contractID string) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, isAcceptedSQL, vendorID, contractID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking acceptance of %q: %w", contractID, err)
	}
	return ok, nil
}

// Update applies the set fields of u to a contract owned by wholesalerID.
func (r *ContractRepository) Update(ctx context.Context, id, wholesalerID string, u contract.Update, at time.Time) (*contract.Contract, error) {
	c, err := r.one(ctx, updateContractSQL,
		id, wholesalerID, u.ProductName, u.DailyQuantity, u.PricePerUnit, u.Description, at,
	)
	if err != nil {
		return nil, fmt.Errorf("updating contract %q: %w", id, err)
	}
	return c, nil
}

// Deactivate sets a contract owned by wholesalerID to inactive.
func (r *ContractRepository) Deactivate(ctx context.Context, id, wholesalerID string, at time.Time) (*contract.Contract, error) {
	c, err := r.one(ctx, deactivateContractSQL, id, wholesalerID, at)
	if err != nil {
		return nil, fmt.Errorf("deactivating contract %q: %w", id, err)
	}
	return c, nil
}

// AvailableFor lists open contracts the vendor has not accepted.
func (r *ContractRepository) AvailableFor(ctx context.Context, vendorID string, now time.Time) ([]contract.Contract, error) {
	return r.list(ctx, scanContract, availableContractsSQL, vendorID, now)
}

// Search lists open contracts by product/description text and wholesaler
// address, case-insensitively.
func (r *ContractRepository) Search(ctx context.Context, q contract.SearchQuery, now time.Time) ([]contract.Contract, error) {
	return r.list(ctx, scanContract, searchContractsSQL, now, containsPattern(q.Text), containsPattern(q.Location))
}

// ListByWholesaler lists the wholesaler's contracts with acceptance and
// order counts.
func (r *ContractRepository) ListByWholesaler(ctx context.Context, wholesalerID string) ([]contract.Contract, error) {
	return r.list(ctx, scanContractWithCounts, listWholesalerContractsSQL, wholesalerID)
}

// ListAccepted lists contracts the vendor accepted, with the acceptance time.
func (r *ContractRepository) ListAccepted(ctx context.Context, vendorID string) ([]contract.Contract, error) {
	return r.list(ctx, scanAcceptedContract, listAcceptedContractsSQL, vendorID)
}

// ActiveByWholesaler lists the wholesaler's open contracts.
func (r *ContractRepository) ActiveByWholesaler(ctx context.Context, wholesalerID string, now time.Time) ([]contract.Contract, error) {
	return r.list(ctx, scanContract, activeWholesalerContractsSQL, wholesalerID, now)
}

// EndingBetween lists active contracts whose end date falls in (from, to].
func (r *ContractRepository) EndingBetween(ctx context.Context, wholesalerID string, from, to time.Time) ([]contract.Contract, error) {
	return r.list(ctx, scanContract, endingContractsSQL, wholesalerID, from, to)
}

// one returns the single row of sql, or nil when there is none.
func (r *ContractRepository) one(ctx context.Context, sql string, args ...any) (*contract.Contract, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanContract)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ContractRepository) list(ctx context.Context, scan pgx.RowToFunc[contract.Contract], sql string, args ...any) ([]contract.Contract, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing contracts: %w", err)
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("listing contracts: %w", err)
	}
	return out, nil
}

func contractDest(c *contract.Contract, status *string) []any {
	return []any{
		&c.ID, &c.WholesalerID, &c.ProductName, &c.DailyQuantity, &c.PricePerUnit,
		&c.DurationDays, &c.Description, status, &c.EndDate, &c.CreatedAt, &c.UpdatedAt,
		&c.WholesalerName, &c.BusinessName,
	}
}

func scanContract(row pgx.CollectableRow) (contract.Contract, error) {
	var (
		c      contract.Contract
		status string
	)
	err := row.Scan(contractDest(&c, &status)...)
	c.Status = contract.Status(status)
	return c, err
}

func scanContractWithCounts(row pgx.CollectableRow) (contract.Contract, error) {
	var (
		c      contract.Contract
		status string
	)
	err := row.Scan(append(contractDest(&c, &status), &c.AcceptedVendors, &c.TotalOrders)...)
	c.Status = contract.Status(status)
	return c, err
}

func scanAcceptedContract(row pgx.CollectableRow) (contract.Contract, error) {
	var (
		c      contract.Contract
		status string
	)
	err := row.Scan(append(contractDest(&c, &status), &c.AcceptedAt)...)
	c.Status = contract.Status(status)
	return c, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns s into an ILIKE substring pattern. Empty input stays
// empty, which the queries treat as "no filter".
func containsPattern(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(s) + "%"
}
