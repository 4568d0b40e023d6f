package handler

import (
	"net/http"

	"github.com/attaboy/seamless/internal/infra"
)

// HealthHandler pings every named dependency. Any failure reports 503 with
// the failing dependency's error.
func HealthHandler(deps map[string]infra.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := make(map[string]string)
		for name, p := range deps {
			if err := infra.HealthCheck(r.Context(), p); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"errors": failed,
			})
			return
		}
		RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
