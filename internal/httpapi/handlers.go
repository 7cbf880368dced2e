package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/coordinator"
	"github.com/mronstro/rondb-tools/internal/session"
)

// Handlers groups the orchestrator's route handlers and their shared
// collaborators.
type Handlers struct {
	coord         *coordinator.Coordinator
	logger        *applog.Logger
	clusterSecret string
	staticDir     string
}

// NewHandlers returns a Handlers bound to coord. staticDir serves
// favicon.png and index.html (spec.md §4.8 static routes).
func NewHandlers(coord *coordinator.Coordinator, logger *applog.Logger, clusterSecret, staticDir string) *Handlers {
	return &Handlers{coord: coord, logger: logger, clusterSecret: clusterSecret, staticDir: staticDir}
}

// ensureOrdinarySession runs spec.md §4.8 steps 2-4 for routes that need a
// session to exist but have no further business logic of their own. The
// cluster operator's reserved token (spec.md §9 glossary) never gets a
// user_sessions entry, so it is skipped rather than surfaced as an error on
// routes a human operator legitimately visits.
func (h *Handlers) ensureOrdinarySession(token string) error {
	if token == h.clusterSecret {
		return nil
	}
	return h.coord.EnsureSession(token)
}

// Favicon serves the static favicon (spec.md §4.8 "GET /favicon.png").
func (h *Handlers) Favicon(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureOrdinarySession(TokenFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.staticDir, "favicon.png"))
}

// Index serves the static landing page (spec.md §4.8 "GET /").
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureOrdinarySession(TokenFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
}

// Try redirects to "/" after AuthCookieMiddleware has set the X-AUTH cookie
// (spec.md §4.8 "GET /try?key=…"): the cluster operator bootstrap path, or a
// plain visitor landing on the app for the first time through a shared link.
func (h *Handlers) Try(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureOrdinarySession(TokenFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ViewModel returns the session's current view model (spec.md §4.8 "GET
// /viewmodel"). The cluster operator's reserved token never gets a
// user_sessions entry (see ensureOrdinarySession), so it gets a static
// idle view model here rather than ErrReservedToken/5xx.
func (h *Handlers) ViewModel(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())
	if token == h.clusterSecret {
		writeJSON(w, http.StatusOK, operatorViewModel())
		return
	}
	vm, err := h.coord.ViewModel(token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// operatorViewModel is the fixed idle view model shown for the cluster
// secret: no database, no load generator, nothing to suggest.
func operatorViewModel() session.ViewModel {
	return session.ViewModel{
		DBStatusText:      "Not created",
		LoadgenStatusText: "Not started",
		Highlight:         session.HighlightNone,
	}
}

// CreateDatabase drives spec.md §4.8 "GET /create-database".
func (h *Handlers) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())
	vm, err := h.coord.CreateDatabase(token)
	if err != nil {
		h.logger.Info("create-database rejected", applog.Fields{"session": token, "cause": err.Error()})
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// RunLoadgen drives spec.md §4.8 "GET /run-loadgen".
func (h *Handlers) RunLoadgen(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())
	vm, err := h.coord.RunLoadgen(token)
	if err != nil {
		h.logger.Info("run-loadgen rejected", applog.Fields{"session": token, "cause": err.Error()})
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}
