//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"fedbox/application/services"
	"fedbox/infrastructure/config"
	"fedbox/pkg/extensions"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideGraphStore,
	ProvideEventPublisher,
	ProvideCodec,
	ProvideTransport,
	ProvideProcessor,
	ProvideTokenIssuer,
	ProvideErrorHandler,
	ProvideCommandBus,
	ProvideQueryBus,
	services.NewPrefixService,
	services.NewAuthorizationService,
	services.NewCollectionService,
	services.NewProjectorService,
	services.NewActorService,
	services.NewFederationService,
	services.NewActivityService,
	services.NewKeyResolverService,
	services.NewConsistencyService,
	extensions.NewHookManager,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
