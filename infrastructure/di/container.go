package di

import (
	"go.uber.org/zap"

	"fedbox/application/commands/bus"
	"fedbox/application/ports"
	querybus "fedbox/application/queries/bus"
	"fedbox/application/services"
	"fedbox/infrastructure/config"
	"fedbox/pkg/auth"
	apperrors "fedbox/pkg/errors"
	"fedbox/pkg/extensions"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Hooks          *extensions.HookManager
	Logger         *zap.Logger
	Store          ports.GraphStore
	Codec          ports.Codec
	Transport      ports.ActivityTransport
	EventPublisher ports.EventPublisher

	Prefixes    *services.PrefixService
	Authz       *services.AuthorizationService
	Collections *services.CollectionService
	Projector   *services.ProjectorService
	Federation  *services.FederationService
	Activities  *services.ActivityService
	Actors      *services.ActorService
	Keys        *services.KeyResolverService
	Consistency *services.ConsistencyService
	Processor   *services.ActivityProcessor

	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus

	TokenIssuer  *auth.TokenIssuer
	ErrorHandler *apperrors.ErrorHandler
}
