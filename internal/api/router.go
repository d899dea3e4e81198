package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/promptvault/promptvault/internal/api/handlers"
	"github.com/promptvault/promptvault/internal/api/middleware"
	"github.com/promptvault/promptvault/internal/config"
	"github.com/promptvault/promptvault/internal/lifecycle"
	"github.com/promptvault/promptvault/internal/query"
	"github.com/promptvault/promptvault/internal/store"
)

type Router struct {
	mux   *chi.Mux
	st    store.Store
	cfg   *config.Config
	svc   *lifecycle.Service
	reads *query.Service
}

func NewRouter(st store.Store, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		st:    st,
		cfg:   cfg,
		svc:   lifecycle.NewService(st),
		reads: query.NewService(st),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	admin := middleware.AdminKey(rt.cfg.Auth.AdminKeyHeader, rt.cfg.Auth.AdminKey)

	health := handlers.NewHealthHandler(rt.st)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	promptH := handlers.NewPromptHandler(rt.svc, rt.reads)
	versionH := handlers.NewVersionHandler(rt.svc)
	eventH := handlers.NewEventHandler(rt.svc)
	metaH := handlers.NewMetaHandler(rt.reads)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.Readyz)
		r.Get("/tags", metaH.Tags)
		r.Get("/purposes", metaH.Purposes)

		r.Route("/prompts", func(r chi.Router) {
			// Creation is deliberately public; everything mutating an
			// existing prompt requires the admin key.
			r.Post("/", promptH.Create)
			r.Get("/", promptH.Search)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", promptH.Get)
				r.With(admin).Put("/", promptH.Update)
				r.With(admin).Delete("/", promptH.Delete)
				r.With(admin).Post("/status", promptH.ChangeStatus)

				r.Get("/versions", versionH.List)
				r.Get("/versions/{version}", versionH.Get)
				r.With(admin).Post("/versions/{version}/rollback", versionH.Rollback)

				r.Get("/events", eventH.List)
			})
		})
	})

	return r
}
