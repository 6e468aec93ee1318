// Package commands defines the state-changing operations exposed to
// the HTTP surface and the CLI, dispatched through the command bus.
package commands

import (
	"fedbox/domain/rdf"
	apperrors "fedbox/pkg/errors"
	"fedbox/pkg/utils"
)

// IngestActivity validates and stores a wire document posted to a box.
// The handler fills Result with the stored activity's identifier.
type IngestActivity struct {
	Document []byte
	BoxIRI   string
	ActorIRI string

	Result rdf.Term
}

func (c *IngestActivity) Validate() error {
	if len(c.Document) == 0 {
		return apperrors.NewValidationError("document is required")
	}
	if c.BoxIRI == "" {
		return apperrors.NewValidationError("box IRI is required")
	}
	return nil
}

// ProcessActivity carries out the side effects of one stored activity,
// used for manual retries of failed runs.
type ProcessActivity struct {
	ActivityIRI string
}

func (c *ProcessActivity) Validate() error {
	if c.ActivityIRI == "" {
		return apperrors.NewValidationError("activity IRI is required")
	}
	if err := utils.ValidateIRI(c.ActivityIRI); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

// DeliverActivity pushes one activity to its resolved audience.
// The handler fills the partitioned outcome.
type DeliverActivity struct {
	ActivityIRI string

	Succeeded []string
	Failed    []string
}

func (c *DeliverActivity) Validate() error {
	if c.ActivityIRI == "" {
		return apperrors.NewValidationError("activity IRI is required")
	}
	if err := utils.ValidateIRI(c.ActivityIRI); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

// CreateActor provisions a local actor with its boxes, keypair and
// credentials.
type CreateActor struct {
	Prefix   string
	Username string
	Name     string
	Role     string
	Password string

	Result rdf.Term
}

func (c *CreateActor) Validate() error {
	if c.Prefix == "" {
		return apperrors.NewValidationError("prefix is required")
	}
	if err := utils.ValidatePrefix(c.Prefix); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if c.Username == "" {
		return apperrors.NewValidationError("username is required")
	}
	if err := utils.ValidateUsername(c.Username); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

// RegisterPrefix marks a serving domain as owned by this instance.
type RegisterPrefix struct {
	Prefix string

	Result rdf.Term
}

func (c *RegisterPrefix) Validate() error {
	if c.Prefix == "" {
		return apperrors.NewValidationError("prefix is required")
	}
	if err := utils.ValidatePrefix(c.Prefix); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

// CheckConsistency runs the structural checks, optionally repairing
// what they find.
type CheckConsistency struct {
	Repair bool

	Problems []string
	Repaired int
}

func (c *CheckConsistency) Validate() error { return nil }
