package handlers

import (
	"context"

	"fedbox/application/commands"
	"fedbox/application/commands/bus"
	"fedbox/application/ports"
	"fedbox/application/services"
	"fedbox/domain/rdf"
	apperrors "fedbox/pkg/errors"
)

// IngestActivityHandler decodes a posted document and runs it through
// the activity engine.
type IngestActivityHandler struct {
	codec      ports.Codec
	activities *services.ActivityService
}

// NewIngestActivityHandler creates the handler.
func NewIngestActivityHandler(codec ports.Codec, activities *services.ActivityService) *IngestActivityHandler {
	return &IngestActivityHandler{codec: codec, activities: activities}
}

// Handle implements bus.CommandHandler.
func (h *IngestActivityHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(*commands.IngestActivity)
	if !ok {
		return apperrors.NewInternalError("wrong command type for IngestActivityHandler")
	}

	fragment, err := h.codec.Decode(c.Document)
	if err != nil {
		return err
	}

	actor := rdf.IRI(c.ActorIRI)
	if c.ActorIRI == "" {
		actor = rdf.Term{}
	}
	activity, err := h.activities.Ingest(ctx, fragment, rdf.IRI(c.BoxIRI), actor)
	if err != nil {
		return err
	}
	c.Result = activity
	return nil
}

// ProcessActivityHandler reruns side effects for one activity.
type ProcessActivityHandler struct {
	activities *services.ActivityService
}

// NewProcessActivityHandler creates the handler.
func NewProcessActivityHandler(activities *services.ActivityService) *ProcessActivityHandler {
	return &ProcessActivityHandler{activities: activities}
}

// Handle implements bus.CommandHandler.
func (h *ProcessActivityHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(*commands.ProcessActivity)
	if !ok {
		return apperrors.NewInternalError("wrong command type for ProcessActivityHandler")
	}
	return h.activities.CarryOut(ctx, rdf.IRI(c.ActivityIRI))
}

// DeliverActivityHandler pushes one activity to its audience.
type DeliverActivityHandler struct {
	federation *services.FederationService
}

// NewDeliverActivityHandler creates the handler.
func NewDeliverActivityHandler(federation *services.FederationService) *DeliverActivityHandler {
	return &DeliverActivityHandler{federation: federation}
}

// Handle implements bus.CommandHandler.
func (h *DeliverActivityHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(*commands.DeliverActivity)
	if !ok {
		return apperrors.NewInternalError("wrong command type for DeliverActivityHandler")
	}
	succeeded, failed, err := h.federation.Push(ctx, rdf.IRI(c.ActivityIRI))
	if err != nil {
		return err
	}
	for _, t := range succeeded {
		c.Succeeded = append(c.Succeeded, t.Value)
	}
	for _, t := range failed {
		c.Failed = append(c.Failed, t.Value)
	}
	return nil
}
