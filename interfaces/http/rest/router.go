// Package rest assembles the node's HTTP surface: middleware stack, route
// guards, and the versioned API routes.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/interfaces/http/rest/handlers"
	"nildb/interfaces/http/rest/middleware"
	"nildb/pkg/auth"
	"nildb/pkg/observability"
)

// Deps carries everything the router wires together.
type Deps struct {
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Verifier *auth.Verifier
	Config   ports.ConfigRepository

	Builders    *handlers.BuilderHandler
	Collections *handlers.CollectionHandler
	Data        *handlers.DataHandler
	Queries     *handlers.QueryHandler
	Users       *handlers.UserHandler
	System      *handlers.SystemHandler
}

// Paths that stay reachable while the maintenance window is open, so the
// node remains observable and the operator can close it again.
var maintenanceExempt = []string{
	"/health",
	"/v1/system/about",
	"/v1/system/maintenance/start",
	"/v1/system/maintenance/stop",
}

// NewRouter builds the node's HTTP handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(deps.Metrics.Middleware)
	r.Use(middleware.Maintenance(deps.Config, deps.Logger, maintenanceExempt...))

	r.Get("/health", deps.System.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/builders", func(r chi.Router) {
			r.With(deps.Verifier.RequireSubject(auth.CmdBuilders)).
				Post("/register", deps.Builders.Register)

			r.Group(func(r chi.Router) {
				r.Use(deps.Verifier.RequireBuilder(auth.CmdBuilders))
				r.Get("/me", deps.Builders.Profile)
				r.Post("/me", deps.Builders.SetName)
				r.Delete("/me", deps.Builders.Remove)
			})
		})

		r.Route("/collections", func(r chi.Router) {
			r.Use(deps.Verifier.RequireBuilder(auth.CmdCollections))
			r.Post("/", deps.Collections.Create)
			r.Get("/", deps.Collections.List)
			r.Get("/{id}", deps.Collections.Read)
			r.Delete("/{id}", deps.Collections.Delete)
		})

		r.Route("/data", func(r chi.Router) {
			r.Use(deps.Verifier.RequireBuilder(auth.CmdData))
			r.Post("/create-owned", deps.Data.CreateOwned)
			r.Post("/create-standard", deps.Data.CreateStandard)
			r.Post("/update", deps.Data.Update)
			r.Post("/delete", deps.Data.Delete)
			r.Post("/read", deps.Data.Read)
			r.Post("/tail", deps.Data.Tail)
			r.Post("/flush", deps.Data.Flush)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Use(deps.Verifier.RequireBuilder(auth.CmdQueries))
			r.Post("/", deps.Queries.Add)
			r.Get("/", deps.Queries.List)
			r.Get("/{id}", deps.Queries.Read)
			r.Delete("/", deps.Queries.Remove)
			r.Post("/run", deps.Queries.Run)
			r.Post("/job", deps.Queries.Job)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(deps.Verifier.RequireUser(auth.CmdUsers))
			r.Get("/me", deps.Users.Profile)
			r.Post("/data/acl/grant", deps.Users.GrantAccess)
			r.Post("/data/acl/revoke", deps.Users.RevokeAccess)
			r.Post("/data/acl/read", deps.Users.ReadAccess)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/about", deps.System.About)

			r.Group(func(r chi.Router) {
				r.Use(deps.Verifier.RequireAdmin(auth.CmdSystem))
				r.Post("/maintenance/start", deps.System.StartMaintenance)
				r.Post("/maintenance/stop", deps.System.StopMaintenance)
				r.Get("/log-level", deps.System.LogLevel)
				r.Post("/log-level", deps.System.SetLogLevel)
			})
		})
	})

	return r
}
