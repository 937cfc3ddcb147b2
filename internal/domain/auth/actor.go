package auth

import "context"

// Role distinguishes the two sides of the marketplace.
type Role string

const (
	RoleVendor     Role = "vendor"
	RoleWholesaler Role = "wholesaler"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleVendor || r == RoleWholesaler
}

// Actor is an authenticated marketplace participant. The engine trusts the
// role as supplied by the authentication boundary.
type Actor struct {
	ID   string
	Role Role
}

// Profile is the stored record behind an Actor.
type Profile struct {
	Actor
	Name         string
	Email        string
	Phone        string
	BusinessName string
	Address      string
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
