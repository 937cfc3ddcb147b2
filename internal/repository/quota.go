package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vconn/internal/domain/quota"
)

var _ quota.Store = (*QuotaRepository)(nil)

// QuotaRepository keeps quota counters in the users table.
type QuotaRepository struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository returns a QuotaRepository that uses the given pool.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

// column maps a kind to its counter column. The result is never user input.
func column(kind quota.Kind) (string, error) {
	switch kind {
	case quota.FreeAttempts:
		return "free_attempts_used", nil
	case quota.Cancellations:
		return "cancellations_used", nil
	default:
		return "", quota.ErrUnknownKind
	}
}

// Used returns the counter for kind.
func (r *QuotaRepository) Used(ctx context.Context, actorID string, kind quota.Kind) (int, error) {
	col, err := column(kind)
	if err != nil {
		return 0, err
	}

	var used int
	err = conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+col+` FROM users WHERE id = $1`, actorID,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, quota.ErrUnknownActor
		}
		return 0, fmt.Errorf("reading %s for %q: %w", col, actorID, err)
	}
	return used, nil
}

// Increment bumps the counter by one unless it already reached limit. The
// conditional UPDATE takes the user row lock, so concurrent increments on
// the same actor serialize and cannot overshoot.
func (r *QuotaRepository) Increment(ctx context.Context, actorID string, kind quota.Kind, limit int) (bool, error) {
	col, err := column(kind)
	if err != nil {
		return false, err
	}

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET `+col+` = `+col+` + 1, updated_at = NOW()
		WHERE id = $1 AND `+col+` < $2`,
		actorID, limit,
	)
	if err != nil {
		return false, fmt.Errorf("incrementing %s for %q: %w", col, actorID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Zero rows: either the cap is reached or the actor does not exist.
	if _, err := r.Used(ctx, actorID, kind); err != nil {
		return false, err
	}
	return false, nil
}
