package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/middleware"
)

var validate = validator.New()

// RegisterRoutes espera estar montado bajo /tenants/{tenantID} con
// middleware.TenantActor ya aplicado.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/records/{resource}", func(rr chi.Router) {
		rr.Get("/", listRecordsHandler(svc))
		rr.Post("/", createRecordHandler(svc))
		rr.Get("/permissions", typePermissionsHandler(svc))

		rr.Get("/{recordID}", getRecordHandler(svc))
		rr.Patch("/{recordID}", updateRecordHandler(svc))
		rr.Delete("/{recordID}", deleteRecordHandler(svc))
		rr.Get("/{recordID}/permissions", recordPermissionsHandler(svc))
		rr.Post("/{recordID}/actions/{action}", transitionRecordHandler(svc))
	})
}

// createRecordRequest es el cuerpo para crear un registro.
type createRecordRequest struct {
	Title      string         `json:"title" validate:"required,max=200"`
	Chargeable bool           `json:"is_chargeable"` // solo expense
	Details    map[string]any `json:"details"`
}

// updateRecordRequest: punteros para PATCH real, nil = no tocar.
type updateRecordRequest struct {
	Title      *string        `json:"title" validate:"omitempty,max=200"`
	Chargeable *bool          `json:"is_chargeable"`
	Details    map[string]any `json:"details"`
}

// recordResponse representa un registro devuelto por la API.
type recordResponse struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	Resource     authz.ResourceType `json:"resource"`
	OwnerActorID string             `json:"owner_actor_id"`
	Status       authz.Status       `json:"status,omitempty"`
	Chargeable   bool               `json:"is_chargeable"`
	Title        string             `json:"title"`
	Details      map[string]any     `json:"details,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// permissionsResponse: qué acciones puede intentar el actor (para mostrar u ocultar botones).
type permissionsResponse struct {
	Resource      authz.ResourceType    `json:"resource"`
	RecordID      string                `json:"record_id,omitempty"`
	Role          authz.Role            `json:"role"`
	EffectiveRole authz.Role            `json:"effective_role"`
	Actions       map[authz.Action]bool `json:"actions"`
}

// createRecordHandler godoc
// @Summary Crear registro
// @Description Crea un registro del tipo indicado en el tenant. El creador queda como dueño y el status inicial depende del tipo. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags records
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param X-View-As-Role header string false "Solo admin: evaluar como otro rol"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro" Enums(timesheet,expense,milestone,deliverable,kpi,quality_standard,raid_item,partner,resource)
// @Param payload body createRecordRequest true "Datos del registro"
// @Success 201 {object} recordResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "tenant not found"
// @Router /tenants/{tenantID}/records/{resource} [post]
func createRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}

		var req createRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec, err := svc.Create(r.Context(), actor, rt, CreateInput{
			Title:      req.Title,
			Chargeable: req.Chargeable,
			Details:    req.Details,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRecordResponse(rec))
	}
}

// listRecordsHandler godoc
// @Summary Listar registros
// @Description Lista los registros del tipo visibles para el actor, más recientes primero.
// @Tags records
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param X-View-As-Role header string false "Solo admin: evaluar como otro rol"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Param status query string false "Filtrar por status (ej: Submitted)"
// @Param owner query string false "Filtrar por dueño; `me` para el actor"
// @Param q query string false "Texto de búsqueda en título"
// @Param limit query int false "Máximo a devolver (1-200). Por defecto 50"
// @Success 200 {array} recordResponse
// @Failure 400 {string} string "filtro inválido"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /tenants/{tenantID}/records/{resource} [get]
func listRecordsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := ListFilter{Query: q.Get("q")}

		if raw := strings.TrimSpace(q.Get("status")); raw != "" {
			st := authz.Status(raw)
			if !authz.ValidStatus(rt, st) {
				http.Error(w, "invalid status for "+string(rt), http.StatusBadRequest)
				return
			}
			filter.Status = st
		}
		if owner := strings.TrimSpace(q.Get("owner")); owner != "" {
			if owner == "me" {
				owner = actor.ID
			}
			filter.OwnerActorID = owner
		}
		if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > MaxListLimit {
				http.Error(w, "limit must be 1-200", http.StatusBadRequest)
				return
			}
			filter.Limit = n
		}

		items, err := svc.List(r.Context(), actor, rt, filter)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]recordResponse, 0, len(items))
		for _, rec := range items {
			out = append(out, toRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// getRecordHandler godoc
// @Summary Obtener registro
// @Tags records
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Param recordID path string true "ID del registro"
// @Success 200 {object} recordResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Router /tenants/{tenantID}/records/{resource}/{recordID} [get]
func getRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}
		rec, err := svc.Get(r.Context(), actor, rt, chi.URLParam(r, "recordID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// updateRecordHandler godoc
// @Summary Editar registro
// @Description Aplica un PATCH. La edición depende del rol, del dueño y del status (p.ej. timesheet solo en Draft o Rejected).
// @Tags records
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Param recordID path string true "ID del registro"
// @Param payload body updateRecordRequest true "Campos a modificar"
// @Success 200 {object} recordResponse
// @Failure 400 {string} string "invalid json / patch vacío"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "el registro cambió"
// @Router /tenants/{tenantID}/records/{resource}/{recordID} [patch]
func updateRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}

		var req updateRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec, err := svc.Update(r.Context(), actor, rt, chi.URLParam(r, "recordID"), Patch{
			Title:      req.Title,
			Chargeable: req.Chargeable,
			Details:    req.Details,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// deleteRecordHandler godoc
// @Summary Borrar registro
// @Tags records
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Param recordID path string true "ID del registro"
// @Success 204
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "el registro cambió"
// @Router /tenants/{tenantID}/records/{resource}/{recordID} [delete]
func deleteRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actor, rt, chi.URLParam(r, "recordID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// transitionRecordHandler godoc
// @Summary Ejecutar transición
// @Description submit, validate, reject, sign_off o close. De dos transiciones concurrentes sobre el mismo registro solo una gana; la otra recibe 409.
// @Tags records
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param X-View-As-Role header string false "Solo admin: evaluar como otro rol"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Param recordID path string true "ID del registro"
// @Param action path string true "Transición" Enums(submit,validate,reject,sign_off,close)
// @Success 200 {object} recordResponse
// @Failure 400 {string} string "acción no soportada por el tipo"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "el registro cambió"
// @Router /tenants/{tenantID}/records/{resource}/{recordID}/actions/{action} [post]
func transitionRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}
		a, err := authz.ParseAction(chi.URLParam(r, "action"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := svc.Transition(r.Context(), actor, rt, chi.URLParam(r, "recordID"), a)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// typePermissionsHandler godoc
// @Summary Permisos sobre el tipo
// @Description Acciones que el actor puede intentar sobre un registro nuevo propio del tipo (p.ej. mostrar "crear").
// @Tags records
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param X-View-As-Role header string false "Solo admin: evaluar como otro rol"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Success 200 {object} permissionsResponse
// @Router /tenants/{tenantID}/records/{resource}/permissions [get]
func typePermissionsHandler(svc *Service) http.HandlerFunc {
	return permissionsHandler(svc, false)
}

// recordPermissionsHandler godoc
// @Summary Permisos sobre un registro
// @Tags records
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param X-View-As-Role header string false "Solo admin: evaluar como otro rol"
// @Param tenantID path string true "ID del tenant"
// @Param resource path string true "Tipo de registro"
// @Param recordID path string true "ID del registro"
// @Success 200 {object} permissionsResponse
// @Failure 404 {string} string "not found"
// @Router /tenants/{tenantID}/records/{resource}/{recordID}/permissions [get]
func recordPermissionsHandler(svc *Service) http.HandlerFunc {
	return permissionsHandler(svc, true)
}

func permissionsHandler(svc *Service, byRecord bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, rt, ok := actorAndResource(w, r)
		if !ok {
			return
		}
		id := ""
		if byRecord {
			id = chi.URLParam(r, "recordID")
		}
		perms, err := svc.Permissions(r.Context(), actor, rt, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, permissionsResponse{
			Resource:      rt,
			RecordID:      id,
			Role:          actor.Role,
			EffectiveRole: actor.Effective(),
			Actions:       perms,
		})
	}
}

func actorAndResource(w http.ResponseWriter, r *http.Request) (authz.Actor, authz.ResourceType, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return authz.Actor{}, "", false
	}
	rt, err := authz.ParseResource(chi.URLParam(r, "resource"))
	if err != nil || !Supports(rt) {
		http.Error(w, "unknown resource", http.StatusNotFound)
		return authz.Actor{}, "", false
	}
	return actor, rt, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, authz.ErrUnknownAction),
		errors.Is(err, authz.ErrUnknownResource):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden), errors.Is(err, authz.ErrImpersonation):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrStaleState):
		http.Error(w, "record state changed", http.StatusConflict)
	case errors.Is(err, ErrPolicyDenied):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toRecordResponse(rec Record) recordResponse {
	return recordResponse{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		Resource:     rec.Resource,
		OwnerActorID: rec.OwnerActorID,
		Status:       rec.Status,
		Chargeable:   rec.Chargeable,
		Title:        rec.Title,
		Details:      rec.Details,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
