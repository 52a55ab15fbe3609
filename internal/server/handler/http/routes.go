package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/middleware"
)

// Router bundles the handlers and settings served by NewRouter.
type Router struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Subscribe *SubscribeHandler
	Health    *HealthHandler
	// Tokens validates bearer tokens on the collection routes.
	Tokens middleware.TokenParser
	// Metrics serves /metrics when set.
	Metrics        http.Handler
	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter constructs the HTTP handler of the document store.
//
// Routes:
//
//	GET    /api/v1/health
//	POST   /api/v1/auth/register
//	POST   /api/v1/auth/login
//	GET    /api/v1/collections/{collection}              (token)
//	POST   /api/v1/collections/{collection}              (token)
//	GET    /api/v1/collections/{collection}/subscribe    (token, websocket)
//	GET    /api/v1/collections/{collection}/{id}         (token)
//	PATCH  /api/v1/collections/{collection}/{id}         (token)
//	DELETE /api/v1/collections/{collection}/{id}         (token)
//	GET    /metrics
func NewRouter(rt Router) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.WithRequestLogging(logger(rt.Log)))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.Health.Health)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			r.Post("/auth/register", rt.Auth.Register)
			r.Post("/auth/login", rt.Auth.Login)
		})

		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.Tokens))
			r.Get("/subscribe", rt.Subscribe.Serve)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.AllowContentType("application/json"))
				r.Get("/", rt.Documents.List)
				r.Post("/", rt.Documents.Create)
				r.Get("/{id}", rt.Documents.Get)
				r.Patch("/{id}", rt.Documents.Merge)
				r.Delete("/{id}", rt.Documents.Delete)
			})
		})
	})

	return r
}
