// Package rbac establishes the calling actor from trusted gateway headers and
// guards routes by permission.
package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/partsledger/internal/platform/httpx"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

// Headers set by the authenticating gateway in front of the ledger.
const (
	HeaderTenant      = "X-Tenant-ID"
	HeaderActor       = "X-Actor-ID"
	HeaderSession     = "X-Session-ID"
	HeaderPermissions = "X-Permissions"
	HeaderLocations   = "X-Locations"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Identify stores the actor described by gateway headers in the request
// context. Requests without a tenant and actor pass through anonymously and
// are rejected by RequireAny/RequireAll.
func (m Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok, err := actorFromHeaders(r.Header)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("rbac parse actor headers", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Identity headers are malformed.")
			return
		}
		if ok {
			r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current actor has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions)
}

func (m Middleware) require(required []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if check(actor.Permissions, required) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied",
					slog.Int64("actor_id", actor.ID),
					slog.String("path", r.URL.Path),
					slog.Any("required", required))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "You do not have permission for this action.")
		})
	}
}

func actorFromHeaders(h http.Header) (shared.Actor, bool, error) {
	tenantRaw := strings.TrimSpace(h.Get(HeaderTenant))
	actorRaw := strings.TrimSpace(h.Get(HeaderActor))
	if tenantRaw == "" || actorRaw == "" {
		return shared.Actor{}, false, nil
	}
	tenantID, err := strconv.ParseInt(tenantRaw, 10, 64)
	if err != nil || tenantID <= 0 {
		return shared.Actor{}, false, errInvalidHeader(HeaderTenant, tenantRaw)
	}
	actorID, err := strconv.ParseInt(actorRaw, 10, 64)
	if err != nil || actorID <= 0 {
		return shared.Actor{}, false, errInvalidHeader(HeaderActor, actorRaw)
	}
	actor := shared.Actor{
		ID:          actorID,
		TenantID:    tenantID,
		SessionID:   strings.TrimSpace(h.Get(HeaderSession)),
		Permissions: normalizePermissions(splitList(h.Get(HeaderPermissions))),
	}
	for _, raw := range splitList(h.Get(HeaderLocations)) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return shared.Actor{}, false, errInvalidHeader(HeaderLocations, raw)
		}
		actor.Locations = append(actor.Locations, id)
	}
	return actor, true, nil
}

type headerError struct {
	header string
	value  string
}

func (e headerError) Error() string {
	return "rbac: invalid " + e.header + " value " + strconv.Quote(e.value)
}

func errInvalidHeader(header, value string) error {
	return headerError{header: header, value: value}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
