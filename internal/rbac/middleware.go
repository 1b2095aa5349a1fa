package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SubjectHeader carries the authenticated subject resolved by the upstream
// identity gateway. Session mechanics live outside this service.
const SubjectHeader = "X-Auth-Subject"

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the resolved actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Service  *Service
	Resolver *Resolver
	Logger   *slog.Logger
}

// ResolveActor resolves the request subject into an Actor and stores it in
// the request context. An unresolvable subject is unauthenticated.
func (m Middleware) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := strings.TrimSpace(r.Header.Get(SubjectHeader))
		if subject == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		actor, err := m.Service.ResolveActor(r.Context(), subject)
		if err != nil {
			if err == ErrActorNotFound {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("resolve actor", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// RequireAny ensures the actor holds at least one of the permissions in
// their own organisation.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, perm := range perms {
				allowed, err := m.Resolver.HasPermission(r.Context(), actor, perm, actor.OrganisationID)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac require any", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequirePermission ensures the actor holds the permission in their own
// organisation.
func (m Middleware) RequirePermission(perm string) func(http.Handler) http.Handler {
	return m.RequireAny(perm)
}
