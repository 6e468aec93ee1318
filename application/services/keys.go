package services

import (
	"context"
	"crypto/rsa"

	"go.uber.org/zap"

	"fedbox/domain/rdf"
	apperrors "fedbox/pkg/errors"
)

// KeyResolverService resolves public keys for inbound signature
// verification. Unknown keys are pulled from their origin on behalf
// of the instance actor of the prefix that received the request.
type KeyResolverService struct {
	actors     *ActorService
	federation *FederationService
	prefixes   *PrefixService
	logger     *zap.Logger
}

// NewKeyResolverService creates the resolver.
func NewKeyResolverService(actors *ActorService, federation *FederationService, prefixes *PrefixService, logger *zap.Logger) *KeyResolverService {
	return &KeyResolverService{
		actors:     actors,
		federation: federation,
		prefixes:   prefixes,
		logger:     logger,
	}
}

// ResolveKey returns the public key and its owning actor for a key
// identifier. servedPrefix is the prefix the request arrived on; its
// instance actor signs the fetch of keys not yet in the store.
func (s *KeyResolverService) ResolveKey(ctx context.Context, keyID, servedPrefix string) (*rsa.PublicKey, rdf.Term, error) {
	pub, owner, err := s.actors.PublicKeyByID(ctx, keyID)
	if err == nil {
		return pub, owner, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, rdf.Term{}, err
	}

	instance, err := s.prefixes.ServiceActor(ctx, rdf.IRI(servedPrefix))
	if err != nil {
		return nil, rdf.Term{}, err
	}
	if instance.IsZero() {
		return nil, rdf.Term{}, apperrors.NewUnauthorizedError("cannot fetch unknown key " + keyID)
	}

	// Keys live in their owner's document; pull the document, not the
	// fragment.
	if err := s.federation.Pull(ctx, rdf.IRI(keyID).WithoutFragment(), instance); err != nil {
		s.logger.Warn("key pull failed", zap.String("keyID", keyID), zap.Error(err))
		return nil, rdf.Term{}, apperrors.NewUnauthorizedError("could not resolve key " + keyID)
	}
	return s.actors.PublicKeyByID(ctx, keyID)
}
