package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vconn/internal/domain/auth"
)

const upsertActorSQL = `INSERT INTO users (id, role, name, email, phone, business_name, address)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
		business_name = EXCLUDED.business_name, address = EXCLUDED.address, updated_at = NOW()`

// ActorRepository writes marketplace participants. Accounts are owned by the
// authentication boundary; this exists for provisioning and fixtures.
type ActorRepository struct {
	pool *pgxpool.Pool
}

// NewActorRepository returns an ActorRepository that uses the given pool.
func NewActorRepository(pool *pgxpool.Pool) *ActorRepository {
	return &ActorRepository{pool: pool}
}

// Upsert inserts p or refreshes its contact details. Role and quota counters
// of an existing actor are left alone.
func (r *ActorRepository) Upsert(ctx context.Context, p auth.Profile) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertActorSQL,
		p.ID, string(p.Role), p.Name, p.Email, p.Phone, p.BusinessName, p.Address,
	)
	if err != nil {
		return fmt.Errorf("upserting actor %q: %w", p.ID, err)
	}
	return nil
}
