package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

// PrefixService tracks the serving domains known to the instance.
// A prefix marked local is one this process answers for; everything
// else is reached through the federation distributor.
type PrefixService struct {
	store  ports.GraphStore
	logger *zap.Logger
}

// NewPrefixService creates the prefix registry.
func NewPrefixService(store ports.GraphStore, logger *zap.Logger) *PrefixService {
	return &PrefixService{store: store, logger: logger}
}

// PrefixOf returns the origin prefix (scheme and host) of an IRI.
func (s *PrefixService) PrefixOf(t rdf.Term) (string, error) {
	if !t.IsIRI() {
		return "", apperrors.NewValidationError("prefix requires an IRI node")
	}
	u, err := url.Parse(t.Value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", apperrors.NewValidationError("malformed IRI " + t.Value)
	}
	return u.Scheme + "://" + u.Host, nil
}

// IsLocal reports whether the IRI is served by this instance.
func (s *PrefixService) IsLocal(ctx context.Context, t rdf.Term) (bool, error) {
	prefix, err := s.PrefixOf(t)
	if err != nil {
		return false, nil
	}
	node := rdf.IRI(prefix)
	flag := rdf.BoolLiteral(true)
	return s.store.Has(ctx, &node, &vocab.IsLocal, &flag)
}

// RegisterLocal marks a prefix as served by this instance.
func (s *PrefixService) RegisterLocal(ctx context.Context, prefix string) (rdf.Term, error) {
	u, err := url.Parse(prefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rdf.Term{}, apperrors.NewValidationError("malformed prefix " + prefix)
	}
	node := rdf.IRI(u.Scheme + "://" + u.Host)
	if err := s.store.Set(ctx, node, vocab.IsLocal, rdf.BoolLiteral(true)); err != nil {
		return rdf.Term{}, err
	}
	s.logger.Info("registered local prefix", zap.String("prefix", node.Value))
	return node, nil
}

// SetServiceActor links the actor representing the instance itself to
// its prefix, both ways.
func (s *PrefixService) SetServiceActor(ctx context.Context, prefix, actor rdf.Term) error {
	if err := s.store.Set(ctx, prefix, vocab.AlsoKnownAs, actor); err != nil {
		return err
	}
	return s.store.Set(ctx, actor, vocab.AlsoKnownAs, prefix)
}

// ServiceActor returns the instance actor for a prefix, if any.
func (s *PrefixService) ServiceActor(ctx context.Context, prefix rdf.Term) (rdf.Term, error) {
	return s.store.Value(ctx, prefix, vocab.AlsoKnownAs)
}

// NewID mints a fresh local identifier under the same prefix as base,
// of the form {prefix}/{lowercased-kind}/{short-unique-id}.
func (s *PrefixService) NewID(base rdf.Term, kind string) (rdf.Term, error) {
	prefix, err := s.PrefixOf(base)
	if err != nil {
		return rdf.Term{}, err
	}
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return rdf.IRI(prefix + "/" + strings.ToLower(kind) + "/" + short), nil
}
