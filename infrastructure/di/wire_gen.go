//go:build !wireinject

package di

import (
	"context"

	"fedbox/application/services"
	"fedbox/infrastructure/config"
	"fedbox/pkg/extensions"
)

// InitializeContainer creates a fully wired container.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	store, err := ProvideGraphStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	publisher, err := ProvideEventPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	wireCodec := ProvideCodec()

	prefixes := services.NewPrefixService(store, logger)
	authz := services.NewAuthorizationService(store, prefixes, logger)
	collections := services.NewCollectionService(store, logger)
	projector := services.NewProjectorService(store, authz, logger)
	actors := services.NewActorService(store, collections, logger)

	tr := ProvideTransport(actors, cfg, logger)
	hooks := extensions.NewHookManager()
	federation := services.NewFederationService(store, projector, wireCodec, tr, prefixes, publisher, logger)
	activities := services.NewActivityService(store, collections, authz, federation, prefixes, publisher, hooks, logger)
	keys := services.NewKeyResolverService(actors, federation, prefixes, logger)
	consistency := services.NewConsistencyService(store, logger)
	processor := services.NewActivityProcessor(store, activities, federation, hooks, cfg.ProcessInterval, logger)

	commandBus, err := ProvideCommandBus(wireCodec, activities, federation, actors, prefixes, consistency, logger)
	if err != nil {
		return nil, err
	}
	queryBus, err := ProvideQueryBus(projector, wireCodec, actors)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:         cfg,
		Hooks:          hooks,
		Logger:         logger,
		Store:          store,
		Codec:          wireCodec,
		Transport:      tr,
		EventPublisher: publisher,
		Prefixes:       prefixes,
		Authz:          authz,
		Collections:    collections,
		Projector:      projector,
		Federation:     federation,
		Activities:     activities,
		Actors:         actors,
		Keys:           keys,
		Consistency:    consistency,
		Processor:      processor,
		CommandBus:     commandBus,
		QueryBus:       queryBus,
		TokenIssuer:    ProvideTokenIssuer(cfg),
		ErrorHandler:   ProvideErrorHandler(cfg, logger),
	}, nil
}
