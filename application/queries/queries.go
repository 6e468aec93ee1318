// Package queries defines the read-side operations dispatched through
// the query bus.
package queries

import apperrors "fedbox/pkg/errors"

// GetObject asks for the authorized bounded description of a node,
// rendered as a wire document. ActorIRI is empty for anonymous reads.
type GetObject struct {
	IRI      string
	ActorIRI string
}

func (q *GetObject) Validate() error {
	if q.IRI == "" {
		return apperrors.NewValidationError("IRI is required")
	}
	return nil
}

// GetObjectResult carries the rendered document.
type GetObjectResult struct {
	Document []byte
}

// ResolveActor looks up a local actor by username.
type ResolveActor struct {
	Prefix   string
	Username string
}

func (q *ResolveActor) Validate() error {
	if q.Prefix == "" || q.Username == "" {
		return apperrors.NewValidationError("prefix and username are required")
	}
	return nil
}

// ResolveActorResult carries the resolved actor IRI.
type ResolveActorResult struct {
	ActorIRI string
}
