package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"fedbox/application/commands/bus"
	querybus "fedbox/application/queries/bus"
	"fedbox/application/services"
	"fedbox/infrastructure/config"
	"fedbox/interfaces/http/rest/handlers"
	"fedbox/interfaces/http/rest/middleware"
	"fedbox/pkg/auth"
	apperrors "fedbox/pkg/errors"
)

// Router wires the HTTP surface: a token endpoint, and catch-all GET
// and POST routes that serve and accept ActivityStreams documents for
// any IRI under a served prefix.
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	actors     *services.ActorService
	keys       *services.KeyResolverService
	tokens     *auth.TokenIssuer
	errors     *apperrors.ErrorHandler
	cfg        *config.Config
	logger     *zap.Logger
}

// NewRouter creates a new router instance.
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	actors *services.ActorService,
	keys *services.KeyResolverService,
	tokens *auth.TokenIssuer,
	errors *apperrors.ErrorHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		actors:     actors,
		keys:       keys,
		tokens:     tokens,
		errors:     errors,
		cfg:        cfg,
		logger:     logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Signature", "Digest", "Date"},
			ExposedHeaders:   []string{"Location", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Authentication runs before the logger so the actor shows up in
	// request logs.
	router.Use(middleware.BearerAuth(rt.tokens, rt.logger))
	router.Use(middleware.SignatureAuth(rt.keys, rt.logger))
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.RateLimit(auth.NewRemoteHostLimiter(rt.cfg.InboxRateLimit), rt.logger))
	router.Use(middleware.ActorRateLimit(auth.NewActorRateLimiter(rt.cfg.OutboxRateLimit), rt.logger))

	router.Get("/healthz", rt.healthCheck)
	router.Post("/token", handlers.NewTokenHandler(rt.actors, rt.tokens, rt.errors).Issue)

	objectHandler := handlers.NewObjectHandler(rt.queryBus, rt.errors)
	boxHandler := handlers.NewBoxHandler(rt.commandBus, rt.errors)
	router.Get("/*", objectHandler.Get)
	router.Post("/*", boxHandler.Post)

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
