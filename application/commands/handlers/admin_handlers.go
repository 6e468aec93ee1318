package handlers

import (
	"context"

	"fedbox/application/commands"
	"fedbox/application/commands/bus"
	"fedbox/application/services"
	apperrors "fedbox/pkg/errors"
)

// CreateActorHandler provisions local actors.
type CreateActorHandler struct {
	actors *services.ActorService
}

// NewCreateActorHandler creates the handler.
func NewCreateActorHandler(actors *services.ActorService) *CreateActorHandler {
	return &CreateActorHandler{actors: actors}
}

// Handle implements bus.CommandHandler.
func (h *CreateActorHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(*commands.CreateActor)
	if !ok {
		return apperrors.NewInternalError("wrong command type for CreateActorHandler")
	}
	actor, err := h.actors.Create(ctx, services.CreateActorOptions{
		Prefix:   c.Prefix,
		Username: c.Username,
		Name:     c.Name,
		Role:     c.Role,
		Password: c.Password,
	})
	if err != nil {
		return err
	}
	c.Result = actor
	return nil
}

// RegisterPrefixHandler marks serving domains as local.
type RegisterPrefixHandler struct {
	prefixes *services.PrefixService
}

// NewRegisterPrefixHandler creates the handler.
func NewRegisterPrefixHandler(prefixes *services.PrefixService) *RegisterPrefixHandler {
	return &RegisterPrefixHandler{prefixes: prefixes}
}

// Handle implements bus.CommandHandler.
func (h *RegisterPrefixHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(*commands.RegisterPrefix)
	if !ok {
		return apperrors.NewInternalError("wrong command type for RegisterPrefixHandler")
	}
	node, err := h.prefixes.RegisterLocal(ctx, c.Prefix)
	if err != nil {
		return err
	}
	c.Result = node
	return nil
}

// CheckConsistencyHandler runs the structural checks.
type CheckConsistencyHandler struct {
	checker *services.ConsistencyService
}

// NewCheckConsistencyHandler creates the handler.
func NewCheckConsistencyHandler(checker *services.ConsistencyService) *CheckConsistencyHandler {
	return &CheckConsistencyHandler{checker: checker}
}

// Handle implements bus.CommandHandler.
func (h *CheckConsistencyHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(*commands.CheckConsistency)
	if !ok {
		return apperrors.NewInternalError("wrong command type for CheckConsistencyHandler")
	}
	report, err := h.checker.Check(ctx, c.Repair)
	if err != nil {
		return err
	}
	c.Problems = report.Problems
	c.Repaired = report.Repaired
	return nil
}
