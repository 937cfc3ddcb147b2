// Package quota tracks capped per-actor allowances: free order attempts for
// vendors without an acceptance, and order cancellations.
//
// Counters only grow. Remaining is derived as Cap minus used and clamped to
// [0, Cap]. Consumption is a single bounded increment performed by the Store,
// so two concurrent consumers can never both take the last unit.
package quota

import (
	"context"

	"github.com/go-faster/errors"
)

// Kind names a consumable allowance.
type Kind string

const (
	FreeAttempts  Kind = "free_attempts"
	Cancellations Kind = "cancellations"
)

// Cap is the lifetime allowance for every kind.
const Cap = 5

var (
	// ErrUnknownActor is returned when the actor has no counters row.
	ErrUnknownActor = errors.New("actor not found")
	// ErrUnknownKind is returned for a Kind outside FreeAttempts and Cancellations.
	ErrUnknownKind = errors.New("unknown quota kind")
)

// Valid reports whether k is a known allowance.
func (k Kind) Valid() bool {
	return k == FreeAttempts || k == Cancellations
}

// Remaining converts a used-counter into the remaining allowance.
func Remaining(used int) int {
	switch {
	case used <= 0:
		return Cap
	case used >= Cap:
		return 0
	default:
		return Cap - used
	}
}

// Store persists the used-counters.
type Store interface {
	// Used returns the current counter value.
	Used(ctx context.Context, actorID string, kind Kind) (int, error)
	// Increment adds one to the counter only while it is below limit. It
	// reports whether the increment happened. Implementations must perform the
	// check and the write as one statement.
	Increment(ctx context.Context, actorID string, kind Kind, limit int) (bool, error)
}

// Ledger exposes remaining/consume over a Store. It has no transaction of
// its own: Consume joins whatever transaction the context carries.
type Ledger struct {
	store Store
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Remaining returns how many units of kind the actor may still consume.
func (l *Ledger) Remaining(ctx context.Context, actorID string, kind Kind) (int, error) {
	if !kind.Valid() {
		return 0, ErrUnknownKind
	}
	used, err := l.store.Used(ctx, actorID, kind)
	if err != nil {
		return 0, errors.Wrap(err, "read quota")
	}
	return Remaining(used), nil
}

// Consume takes exactly one unit of kind. It returns false, with no error,
// when the allowance is already exhausted.
func (l *Ledger) Consume(ctx context.Context, actorID string, kind Kind) (bool, error) {
	if !kind.Valid() {
		return false, ErrUnknownKind
	}
	ok, err := l.store.Increment(ctx, actorID, kind, Cap)
	if err != nil {
		return false, errors.Wrap(err, "consume quota")
	}
	return ok, nil
}
