package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fedbox/application/commands"
	"fedbox/application/commands/bus"
	commandhandlers "fedbox/application/commands/handlers"
	"fedbox/application/ports"
	"fedbox/application/queries"
	querybus "fedbox/application/queries/bus"
	queryhandlers "fedbox/application/queries/handlers"
	"fedbox/application/services"
	"fedbox/infrastructure/codec"
	"fedbox/infrastructure/config"
	"fedbox/infrastructure/messaging"
	"fedbox/infrastructure/messaging/eventbridge"
	dynamostore "fedbox/infrastructure/persistence/dynamodb"
	memorystore "fedbox/infrastructure/persistence/memory"
	"fedbox/infrastructure/transport"
	"fedbox/pkg/auth"
	apperrors "fedbox/pkg/errors"
	"fedbox/pkg/extensions"
)

// ProvideLogger creates the logger for the configured environment.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideGraphStore selects the triple store backend.
func ProvideGraphStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.GraphStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		return memorystore.NewGraphStore(), nil
	case "dynamodb":
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		client := ProvideDynamoDBClient(awsCfg)
		lock := dynamostore.NewBoxLock(client, cfg.LocksTable, logger)
		return dynamostore.NewGraphStore(client, cfg.DynamoDBTable, lock, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// ProvideEventPublisher creates the domain event publisher. Without
// EventBridge enabled, events go to the log at debug level.
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if !cfg.EnableEventBridge {
		return messaging.NewLogPublisher(logger), nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return eventbridge.NewPublisher(ProvideEventBridgeClient(awsCfg), cfg.EventBusName, logger), nil
}

// ProvideCodec creates the wire codec.
func ProvideCodec() ports.Codec {
	return codec.New()
}

// ProvideTransport creates the signing HTTP client.
func ProvideTransport(actors *services.ActorService, cfg *config.Config, logger *zap.Logger) ports.ActivityTransport {
	return transport.NewClient(actors, cfg.HTTPTimeout, cfg.UserAgent, logger)
}

// ProvideProcessor creates the background side-effect runner.
func ProvideProcessor(
	store ports.GraphStore,
	activities *services.ActivityService,
	federation *services.FederationService,
	hooks *extensions.HookManager,
	cfg *config.Config,
	logger *zap.Logger,
) *services.ActivityProcessor {
	return services.NewActivityProcessor(store, activities, federation, hooks, cfg.ProcessInterval, logger)
}

// ProvideTokenIssuer creates the bearer token issuer.
func ProvideTokenIssuer(cfg *config.Config) *auth.TokenIssuer {
	return auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
}

// ProvideErrorHandler creates the HTTP error handler.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideCommandBus creates a command bus with all handlers registered
// behind the logging pipeline.
func ProvideCommandBus(
	wireCodec ports.Codec,
	activities *services.ActivityService,
	federation *services.FederationService,
	actors *services.ActorService,
	prefixes *services.PrefixService,
	checker *services.ConsistencyService,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus()
	pipeline := bus.NewPipeline(bus.LoggingMiddleware(logger))

	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{&commands.IngestActivity{}, commandhandlers.NewIngestActivityHandler(wireCodec, activities)},
		{&commands.ProcessActivity{}, commandhandlers.NewProcessActivityHandler(activities)},
		{&commands.DeliverActivity{}, commandhandlers.NewDeliverActivityHandler(federation)},
		{&commands.CreateActor{}, commandhandlers.NewCreateActorHandler(actors)},
		{&commands.RegisterPrefix{}, commandhandlers.NewRegisterPrefixHandler(prefixes)},
		{&commands.CheckConsistency{}, commandhandlers.NewCheckConsistencyHandler(checker)},
	}
	for _, reg := range registrations {
		if err := commandBus.Register(reg.cmd, pipeline.Execute(reg.handler)); err != nil {
			return nil, err
		}
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with all handlers registered.
func ProvideQueryBus(
	projector *services.ProjectorService,
	wireCodec ports.Codec,
	actors *services.ActorService,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{&queries.GetObject{}, queryhandlers.NewGetObjectHandler(projector, wireCodec)},
		{&queries.ResolveActor{}, queryhandlers.NewResolveActorHandler(actors)},
	}
	for _, reg := range registrations {
		if err := queryBus.Register(reg.query, reg.handler); err != nil {
			return nil, err
		}
	}
	return queryBus, nil
}
