package handlers

import (
	"context"

	"fedbox/application/ports"
	"fedbox/application/queries"
	"fedbox/application/queries/bus"
	"fedbox/application/services"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

// GetObjectHandler renders authorized bounded descriptions.
type GetObjectHandler struct {
	projector *services.ProjectorService
	codec     ports.Codec
}

// NewGetObjectHandler creates the handler.
func NewGetObjectHandler(projector *services.ProjectorService, codec ports.Codec) *GetObjectHandler {
	return &GetObjectHandler{projector: projector, codec: codec}
}

// Handle implements bus.QueryHandler.
func (h *GetObjectHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(*queries.GetObject)
	if !ok {
		return nil, apperrors.NewInternalError("wrong query type for GetObjectHandler")
	}

	actor := vocab.PublicActor
	if q.ActorIRI != "" {
		actor = rdf.IRI(q.ActorIRI)
	}

	subject := rdf.IRI(q.IRI)
	desc, err := h.projector.BoundedDescription(ctx, subject, actor)
	if err != nil {
		return nil, err
	}
	if desc.Len() == 0 {
		return nil, apperrors.NewNotFoundError(q.IRI)
	}

	doc, err := h.codec.Encode(desc, subject)
	if err != nil {
		return nil, err
	}
	return &queries.GetObjectResult{Document: doc}, nil
}

// ResolveActorHandler looks up local actors by username.
type ResolveActorHandler struct {
	actors *services.ActorService
}

// NewResolveActorHandler creates the handler.
func NewResolveActorHandler(actors *services.ActorService) *ResolveActorHandler {
	return &ResolveActorHandler{actors: actors}
}

// Handle implements bus.QueryHandler.
func (h *ResolveActorHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(*queries.ResolveActor)
	if !ok {
		return nil, apperrors.NewInternalError("wrong query type for ResolveActorHandler")
	}
	actor, err := h.actors.ByUsername(ctx, q.Prefix, q.Username)
	if err != nil {
		return nil, err
	}
	return &queries.ResolveActorResult{ActorIRI: actor.Value}, nil
}
