package authz

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes expone la matriz para que los clientes decidan qué mostrar.
// Es la misma tabla que evalúa el motor; no es una copia.
func RegisterRoutes(r chi.Router, m *Matrix) {
	r.Get("/policy/matrix", matrixHandler(m))
}

// matrixHandler godoc
// @Summary Matriz de capacidades
// @Description Todas las celdas (rol, recurso, acción). `rule` nombra la regla de objeto que acota el permiso, si la hay.
// @Tags policy
// @Produce json
// @Param role query string false "Filtrar por rol"
// @Param resource query string false "Filtrar por recurso"
// @Success 200 {array} Row
// @Failure 400 {string} string "rol o recurso desconocido"
// @Router /policy/matrix [get]
func matrixHandler(m *Matrix) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var role Role
		if raw := strings.TrimSpace(q.Get("role")); raw != "" {
			parsed, err := ParseRole(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			role = parsed
		}
		var rt ResourceType
		if raw := strings.TrimSpace(q.Get("resource")); raw != "" {
			parsed, err := ParseResource(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rt = parsed
		}

		out := make([]Row, 0)
		for _, row := range m.Rows() {
			if role != "" && row.Role != role {
				continue
			}
			if rt != "" && row.Resource != rt {
				continue
			}
			out = append(out, row)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	}
}
