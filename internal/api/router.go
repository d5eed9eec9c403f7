package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/creditops/internal/models"
)

// Routes wires the full HTTP surface. Mutation endpoints run behind
// authentication, the per-caller rate limiter and the role capability check
// for their mutation kind.
func (h *Handler) Routes(rl *RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(h.logger))

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/auth/register", h.RegisterHandler).Methods("POST")
	apiV1.HandleFunc("/auth/login", h.LoginHandler).Methods("POST")

	authed := apiV1.NewRoute().Subrouter()
	authed.Use(h.Authenticate, rl.Handler)
	authed.HandleFunc("/scan-tokens", h.IssueScanTokenHandler).Methods("POST")
	authed.HandleFunc("/accounts/me", h.GetMeHandler).Methods("GET")
	authed.HandleFunc("/accounts/me/entries", h.GetMyEntriesHandler).Methods("GET")
	authed.Handle("/credits/add",
		h.RequireMutation(models.KindAdd, h.MutationHandler(models.KindAdd, "/credits/add"))).Methods("POST")
	authed.Handle("/credits/deduct",
		h.RequireMutation(models.KindDeduct, h.MutationHandler(models.KindDeduct, "/credits/deduct"))).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Not Found")
	})

	return r
}
