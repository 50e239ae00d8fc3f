package memberships

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/middleware"
)

var validate = validator.New()

// RegisterRoutes: rutas que no dependen de ser miembro de un tenant.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/tenants", createTenantHandler(svc))
	r.Get("/me/memberships", listMyMembershipsHandler(svc))
	r.Post("/memberships/{membershipID}/accept", acceptMembershipHandler(svc))
}

// RegisterTenantRoutes espera estar montado bajo /tenants/{tenantID} con
// middleware.TenantActor ya aplicado.
func RegisterTenantRoutes(r chi.Router, svc *Service) {
	r.Route("/members", func(mr chi.Router) {
		mr.Get("/", listMembersHandler(svc))
		mr.Post("/", inviteMemberHandler(svc))
		mr.Patch("/{membershipID}", changeRoleHandler(svc))
		mr.Delete("/{membershipID}", revokeMemberHandler(svc))
	})
}

type createTenantRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type inviteRequest struct {
	ActorID string     `json:"actor_id" validate:"required,max=128"`
	Role    authz.Role `json:"role" validate:"required" enums:"viewer,contributor,customer_manager,supplier_manager,finance_customer,finance_supplier,admin"`
}

type changeRoleRequest struct {
	Role authz.Role `json:"role" validate:"required" enums:"viewer,contributor,customer_manager,supplier_manager,finance_customer,finance_supplier,admin"`
}

type tenantResponse struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	CreatedBy  string             `json:"created_by"`
	CreatedAt  time.Time          `json:"created_at"`
	Membership membershipResponse `json:"membership"`
}

type membershipResponse struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	ActorID   string     `json:"actor_id"`
	Role      authz.Role `json:"role"`
	Status    Status     `json:"status"`
	InvitedBy string     `json:"invited_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// createTenantHandler godoc
// @Summary Crear tenant
// @Description Requiere la capability de plataforma `platform:admin` (no alcanza con ser admin de otro tenant). El creador queda como admin activo.
// @Tags tenants
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body createTenantRequest true "Nombre del tenant"
// @Success 201 {object} tenantResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /tenants [post]
func createTenantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createTenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		t, m, err := svc.CreateTenant(r.Context(), userID, req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tenantResponse{
			ID:         t.ID,
			Name:       t.Name,
			CreatedBy:  t.CreatedBy,
			CreatedAt:  t.CreatedAt,
			Membership: toMembershipResponse(m),
		})
	}
}

// listMyMembershipsHandler godoc
// @Summary Mis membresías
// @Description Membresías del usuario en todos los tenants (incluye invitaciones pendientes).
// @Tags memberships
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param status query string false "CSV de status (invited,active,revoked)"
// @Success 200 {array} membershipResponse
// @Failure 400 {string} string "status inválido"
// @Failure 401 {string} string "unauthorized"
// @Router /me/memberships [get]
func listMyMembershipsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		statuses, ok := parseStatusFilter(r.URL.Query().Get("status"))
		if !ok {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}

		items, err := svc.ListMine(r.Context(), userID, statuses...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMembershipResponses(items))
	}
}

// acceptMembershipHandler godoc
// @Summary Aceptar invitación
// @Tags memberships
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param membershipID path string true "ID de la membresía"
// @Success 200 {object} membershipResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "revocada / ya es miembro"
// @Router /memberships/{membershipID}/accept [post]
func acceptMembershipHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		m, err := svc.Accept(r.Context(), userID, chi.URLParam(r, "membershipID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMembershipResponse(m))
	}
}

// listMembersHandler godoc
// @Summary Listar miembros del tenant
// @Tags memberships
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Success 200 {array} membershipResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "tenant not found"
// @Router /tenants/{tenantID}/members [get]
func listMembersHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		items, err := svc.List(r.Context(), actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMembershipResponses(items))
	}
}

// inviteMemberHandler godoc
// @Summary Invitar miembro
// @Description Solo admin del tenant. Re-invitar con una invitación pendiente actualiza el rol.
// @Tags memberships
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Param payload body inviteRequest true "Usuario y rol"
// @Success 201 {object} membershipResponse
// @Failure 400 {string} string "invalid json / rol desconocido"
// @Failure 403 {string} string "forbidden"
// @Failure 409 {string} string "ya es miembro"
// @Router /tenants/{tenantID}/members [post]
func inviteMemberHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req inviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		role, err := authz.ParseRole(string(req.Role))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		m, err := svc.Invite(r.Context(), actor, InviteInput{ActorID: req.ActorID, Role: role})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toMembershipResponse(m))
	}
}

// changeRoleHandler godoc
// @Summary Cambiar rol
// @Description Solo admin del tenant, y nunca sobre su propia membresía.
// @Tags memberships
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Param membershipID path string true "ID de la membresía"
// @Param payload body changeRoleRequest true "Nuevo rol"
// @Success 200 {object} membershipResponse
// @Failure 400 {string} string "rol desconocido"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "membresía revocada o cambiada en paralelo"
// @Router /tenants/{tenantID}/members/{membershipID} [patch]
func changeRoleHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req changeRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		role, err := authz.ParseRole(string(req.Role))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		m, err := svc.ChangeRole(r.Context(), actor, chi.URLParam(r, "membershipID"), role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMembershipResponse(m))
	}
}

// revokeMemberHandler godoc
// @Summary Revocar membresía
// @Description Solo admin del tenant, y nunca sobre su propia membresía. Idempotente.
// @Tags memberships
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Param membershipID path string true "ID de la membresía"
// @Success 200 {object} membershipResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "cambiada en paralelo"
// @Router /tenants/{tenantID}/members/{membershipID} [delete]
func revokeMemberHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		m, err := svc.Revoke(r.Context(), actor, chi.URLParam(r, "membershipID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMembershipResponse(m))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, authz.ErrUnknownRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden), errors.Is(err, authz.ErrImpersonation):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrBadState), errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrStaleState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toMembershipResponse(m Membership) membershipResponse {
	return membershipResponse{
		ID:        m.ID,
		TenantID:  m.TenantID,
		ActorID:   m.ActorID,
		Role:      m.Role,
		Status:    m.Status,
		InvitedBy: m.InvitedBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		RevokedAt: m.RevokedAt,
	}
}

func toMembershipResponses(items []Membership) []membershipResponse {
	out := make([]membershipResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMembershipResponse(m))
	}
	return out
}

// parseStatusFilter: CSV opcional; ok=false si trae un status desconocido.
func parseStatusFilter(raw string) ([]Status, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	out := make([]Status, 0, 3)
	for _, p := range strings.Split(raw, ",") {
		s := Status(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		if !s.Valid() {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// writeJSON está duplicado en handlers de distintos módulos; si se repite en más
// módulos, recién ahí conviene extraerlo a un helper común.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
