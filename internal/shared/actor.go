package shared

import (
	"context"
	"fmt"
)

// Role identifies the kind of user acting on the system.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	}
	return false
}

// Actor is the user on whose behalf an operation runs. Services receive it as an
// explicit argument; the context helpers only carry it from middleware to handlers.
type Actor struct {
	ID         int64
	Role       Role
	CustomerID int64
	RequestID  string
	RemoteAddr string
}

// IsCustomer reports whether the actor uses the customer portal.
func (a Actor) IsCustomer() bool {
	return a.Role == RoleCustomer
}

// IsStaff reports whether the actor belongs to the back-office.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// CanAccessCustomer reports whether the actor may see records of the customer.
func (a Actor) CanAccessCustomer(customerID int64) bool {
	if a.IsStaff() {
		return true
	}
	return a.IsCustomer() && a.CustomerID != 0 && a.CustomerID == customerID
}

// RequireStaff returns ErrForbidden unless the actor is back-office staff.
func (a Actor) RequireStaff() error {
	if !a.IsStaff() {
		return fmt.Errorf("%w: back-office role required", ErrForbidden)
	}
	return nil
}

// SystemActor is used by background jobs.
func SystemActor() Actor {
	return Actor{Role: RoleAdmin, RequestID: "system"}
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
