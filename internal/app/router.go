package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hotwellkz/app122/internal/account"
	"github.com/hotwellkz/app122/internal/auth"
	"github.com/hotwellkz/app122/internal/observability"
	"github.com/hotwellkz/app122/internal/platform/httpx"
	"github.com/hotwellkz/app122/internal/roster"
	"github.com/hotwellkz/app122/internal/shared"
	"github.com/hotwellkz/app122/internal/view"
	"github.com/hotwellkz/app122/jobs"
	"github.com/hotwellkz/app122/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	RosterHandler  *roster.Handler
	AccountHandler *account.Handler
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router for the console.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/users", http.StatusSeeOther)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Route("/users", params.RosterHandler.MountRoutes)
		r.Route("/profile", params.AccountHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
