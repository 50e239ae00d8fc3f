package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/platform/logger"
)

// HeaderViewAs pide evaluar con otro rol ("ver como"). Solo admin.
const HeaderViewAs = "X-View-As-Role"

// ActorResolver lee la membresía activa del usuario en el tenant.
type ActorResolver interface {
	ResolveActor(ctx context.Context, tenantID, userID, viewAs string) (authz.Actor, error)
}

// TenantActor resuelve el actor del tenant de la URL ({tenantID}) en cada request.
// Sin membresía activa responde 404: no se confirma que el tenant exista.
func TenantActor(resolver ActorResolver, log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
			viewAs := r.Header.Get(HeaderViewAs)

			actor, err := resolver.ResolveActor(r.Context(), tenantID, userID, viewAs)
			if err != nil {
				switch {
				case errors.Is(err, authz.ErrNotMember):
					http.Error(w, "tenant not found", http.StatusNotFound)
				case errors.Is(err, authz.ErrImpersonation):
					log.Warn("view-as rejected", map[string]any{
						"security_event": "impersonation_rejected",
						"actor_id":       userID,
						"tenant_id":      tenantID,
						"view_as":        viewAs,
						"request_id":     chimw.GetReqID(r.Context()),
					})
					http.Error(w, "forbidden", http.StatusForbidden)
				case errors.Is(err, authz.ErrUnknownRole):
					http.Error(w, "unknown role in "+HeaderViewAs, http.StatusBadRequest)
				default:
					log.Error("resolve actor failed", map[string]any{
						"error":      err.Error(),
						"tenant_id":  tenantID,
						"request_id": chimw.GetReqID(r.Context()),
					})
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, a authz.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (authz.Actor, bool) {
	a, ok := ctx.Value(actorKey).(authz.Actor)
	return a, ok
}
