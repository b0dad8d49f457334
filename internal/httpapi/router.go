package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/service"
)

// Pinger reports backend health for /healthz.
type Pinger func(ctx context.Context) error

// NewRouter wires the note routes, auth and logging. ping may be nil.
func NewRouter(notes service.NoteService, tokens TokenVerifier, ping Pinger, log *zap.Logger) *mux.Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(LoggerMiddleware(log))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				log.Warn("health check failed", zap.Error(err))
				Error(w, errs.ErrTransient)
				return
			}
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	h := NewNoteHandler(notes)
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(AuthMiddleware(tokens))
	api.HandleFunc("/notes", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/notes/{id}", h.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/notes/{id}/draft", h.patch(false)).Methods(http.MethodPatch)
	api.HandleFunc("/notes/{id}/amend", h.patch(true)).Methods(http.MethodPatch)
	api.HandleFunc("/notes/{id}/finalize", h.Finalize).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}/restore", h.Restore).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}/permanent", h.Purge).Methods(http.MethodDelete)
	api.HandleFunc("/notes/{id}/versions", h.Versions).Methods(http.MethodGet)
	return r
}
