package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/vconn/internal/domain/auth"
	"github.com/xenking/vconn/pkg/httpmiddleware"
)

// Authenticator resolves the calling actor from the X-API-Key header.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator that hashes keys with pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Middleware rejects requests without a valid key with 401 and stores the
// resolved actor in the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(httpmiddleware.APIKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		hash := auth.HashAPIKey(a.pepper, key)
		info, err := a.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			if !errors.Is(err, auth.ErrKeyNotFound) {
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// The stored hash is compared again in constant time.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 || !info.Actor.Role.Valid() {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := auth.WithActor(r.Context(), info.Actor)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("actor_id", info.Actor.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole answers 403 unless the authenticated actor has role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := auth.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if a.Role != role {
				writeError(w, http.StatusForbidden, "forbidden for role "+string(a.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actor returns the authenticated actor. Routes are only mounted behind
// Authenticator, so a missing actor is a wiring bug.
func actor(r *http.Request) auth.Actor {
	a, _ := auth.ActorFromContext(r.Context())
	return a
}
