// Package idempotency deduplicates retried order placements keyed by a
// client-supplied Idempotency-Key header. A key is claimed with SET NX, then
// either completed with the resulting order id or released on failure. Every
// key is bound to a fingerprint of the request that claimed it.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a claimed or completed key is remembered.
const DefaultTTL = 24 * time.Hour

const (
	keyPrefix = "vconn:idem:"

	pendingTag = "pending"
	doneTag    = "done"
)

// State is the outcome of a Claim.
type State int

const (
	// StateClaimed means the caller owns the key and must Complete or Release it.
	StateClaimed State = iota
	// StateInFlight means another request holds the key and has not finished.
	StateInFlight
	// StateDone means the key already produced a result.
	StateDone
	// StateMismatch means the key is held by a request with another fingerprint.
	StateMismatch
)

// Claim is the result of claiming a key.
type Claim struct {
	State State
	// Result is the stored value when State is StateDone.
	Result string
}

// Client is the subset of redis commands the store issues.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store keeps idempotency keys in redis.
type Store struct {
	rdb Client
	ttl time.Duration
}

// NewStore creates a Store. A non-positive ttl selects DefaultTTL.
func NewStore(rdb Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func redisKey(scope, key string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, scope, key)
}

// Stored values are "pending:<fingerprint>" and "done:<fingerprint>:<result>".
func pendingValue(fingerprint string) string {
	return pendingTag + ":" + fingerprint
}

func doneValue(fingerprint, result string) string {
	return doneTag + ":" + fingerprint + ":" + result
}

// Claim tries to take key within scope for a request with the given
// fingerprint. Fingerprints must not contain ':'.
func (s *Store) Claim(ctx context.Context, scope, key, fingerprint string) (Claim, error) {
	k := redisKey(scope, key)
	ok, err := s.rdb.SetNX(ctx, k, pendingValue(fingerprint), s.ttl).Result()
	if err != nil {
		return Claim{}, errors.Wrap(err, "claim key")
	}
	if ok {
		return Claim{State: StateClaimed}, nil
	}

	v, err := s.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released or expired between SETNX and GET.
		return Claim{State: StateInFlight}, nil
	case err != nil:
		return Claim{}, errors.Wrap(err, "read key")
	}
	return parseClaim(v, fingerprint)
}

func parseClaim(v, fingerprint string) (Claim, error) {
	tag, rest, _ := strings.Cut(v, ":")
	switch tag {
	case pendingTag:
		if rest != fingerprint {
			return Claim{State: StateMismatch}, nil
		}
		return Claim{State: StateInFlight}, nil
	case doneTag:
		fp, result, ok := strings.Cut(rest, ":")
		if !ok {
			break
		}
		if fp != fingerprint {
			return Claim{State: StateMismatch}, nil
		}
		return Claim{State: StateDone, Result: result}, nil
	}
	return Claim{}, errors.Errorf("malformed idempotency value %q", v)
}

// Complete stores result for a key claimed with fingerprint.
func (s *Store) Complete(ctx context.Context, scope, key, fingerprint, result string) error {
	if err := s.rdb.Set(ctx, redisKey(scope, key), doneValue(fingerprint, result), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete key")
	}
	return nil
}

// Release drops a claimed key so a retry can proceed.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "release key")
	}
	return nil
}
