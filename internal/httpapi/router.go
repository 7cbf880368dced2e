package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/coordinator"
)

// NewRouter builds the orchestrator's full route table. Every route except
// /metrics passes through AuthCookieMiddleware (spec.md §4.8); /metrics is
// ambient service observability (SPEC_FULL.md §3) and carries no session.
func NewRouter(coord *coordinator.Coordinator, logger *applog.Logger, clusterSecret, staticDir string) *mux.Router {
	h := NewHandlers(coord, logger, clusterSecret, staticDir)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	app := router.NewRoute().Subrouter()
	app.Use(AuthCookieMiddleware(clusterSecret))

	app.HandleFunc("/favicon.png", h.Favicon).Methods(http.MethodGet)
	app.HandleFunc("/", h.Index).Methods(http.MethodGet)
	app.HandleFunc("/try", h.Try).Methods(http.MethodGet)
	app.HandleFunc("/viewmodel", h.ViewModel).Methods(http.MethodGet)
	app.HandleFunc("/create-database", h.CreateDatabase).Methods(http.MethodGet)
	app.HandleFunc("/run-loadgen", h.RunLoadgen).Methods(http.MethodGet)

	return router
}
