package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidRole = errors.New("invalid role")

// Role is the closed set of platform roles. Values outside the set are
// rejected at construction, never passed through as raw strings.
type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RolePharmacy   Role = "pharmacy"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
	RoleSupport    Role = "support"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RolePharmacy, RoleAdmin, RoleSuperAdmin, RoleSupport:
		return true
	}
	return false
}

// ParseRole normalizes and validates a role string supplied by the
// upstream identity context.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Actor is the verified caller identity attached to every request.
// The core trusts it verbatim; authentication happens upstream.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor attached by the identity
// middleware, or false if the request carried none.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
