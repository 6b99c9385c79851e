package shared

import (
	"context"
	"fmt"
	"slices"
)

// Actor is the authenticated caller as established by the upstream presentation layer.
type Actor struct {
	ID          int64
	TenantID    int64
	SessionID   string
	Permissions []string
	// Locations is the authorized location scope. Empty means unrestricted.
	Locations []int64
}

// Can reports whether the actor holds permission.
func (a Actor) Can(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

// InScope reports whether every location id is inside the actor's authorized scope.
func (a Actor) InScope(locationIDs ...int64) bool {
	if len(a.Locations) == 0 {
		return true
	}
	for _, id := range locationIDs {
		if !slices.Contains(a.Locations, id) {
			return false
		}
	}
	return true
}

// TokenScope identifies the per-session key space for action tokens.
func (a Actor) TokenScope() string {
	return fmt.Sprintf("%d:%d:%s", a.TenantID, a.ID, a.SessionID)
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
