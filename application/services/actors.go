package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
	"fedbox/pkg/httpsig"
)

const actorKeyBits = 2048

// CreateActorOptions describes a local actor to create.
type CreateActorOptions struct {
	Prefix   string
	Username string
	Name     string
	Type     rdf.Term // defaults to Person
	Role     string   // admin, moderator or member
	Password string
}

// ActorService creates and resolves local actors. An actor and its
// four boxes, keypair and credentials come into being in one call;
// nothing else creates them.
type ActorService struct {
	store       ports.GraphStore
	collections *CollectionService
	logger      *zap.Logger
}

// NewActorService creates the actor manager.
func NewActorService(store ports.GraphStore, collections *CollectionService, logger *zap.Logger) *ActorService {
	return &ActorService{store: store, collections: collections, logger: logger}
}

// Create builds a new local actor with inbox, outbox, following and
// followers collections, an RSA keypair and optional credentials.
func (s *ActorService) Create(ctx context.Context, opts CreateActorOptions) (rdf.Term, error) {
	if opts.Username == "" {
		return rdf.Term{}, apperrors.NewValidationError("username is required")
	}
	prefix := strings.TrimSuffix(opts.Prefix, "/")
	actor := rdf.IRI(prefix + "/actor/" + opts.Username)

	existing, err := s.store.Has(ctx, &actor, &vocab.Type, nil)
	if err != nil {
		return rdf.Term{}, err
	}
	if existing {
		return rdf.Term{}, apperrors.NewConflictError("actor already exists: " + actor.Value)
	}

	actorType := opts.Type
	if actorType.IsZero() {
		actorType = vocab.PersonType
	}

	privPEM, pubPEM, err := generateKeyPair()
	if err != nil {
		return rdf.Term{}, err
	}
	key := rdf.IRI(actor.Value + "#main-key")

	facts := []rdf.Triple{
		rdf.T(actor, vocab.Type, actorType),
		rdf.T(actor, vocab.PreferredUsername, rdf.Literal(opts.Username)),
		rdf.T(actor, vocab.PublicKey, key),
		rdf.T(key, vocab.KeyOwner, actor),
		rdf.T(key, vocab.PublicKeyPem, rdf.Literal(pubPEM)),
		rdf.T(key, vocab.PrivateKeyPem, rdf.Literal(privPEM)),
	}
	if opts.Name != "" {
		facts = append(facts, rdf.T(actor, vocab.Name, rdf.Literal(opts.Name)))
	}
	if opts.Role != "" {
		facts = append(facts, rdf.T(actor, vocab.ServerRole, rdf.Literal(opts.Role)))
	}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return rdf.Term{}, apperrors.Wrap(err, "password hashing failed")
		}
		facts = append(facts, rdf.T(actor, vocab.HashedPassword, rdf.Literal(string(hash))))
	}
	if err := s.store.Add(ctx, facts...); err != nil {
		return rdf.Term{}, err
	}

	// The delivery boxes keep arrival order; the relationship
	// collections are plain membership sets.
	boxes := []struct {
		pred    rdf.Term
		name    string
		ordered bool
	}{
		{vocab.Inbox, "inbox", true},
		{vocab.Outbox, "outbox", true},
		{vocab.Following, "following", false},
		{vocab.Followers, "followers", false},
	}
	for _, b := range boxes {
		box := rdf.IRI(actor.Value + "/" + b.name)
		create := s.collections.CreateUnordered
		if b.ordered {
			create = s.collections.CreateOrdered
		}
		if err := create(ctx, box); err != nil {
			return rdf.Term{}, err
		}
		if err := s.store.Add(ctx, rdf.T(actor, b.pred, box)); err != nil {
			return rdf.Term{}, err
		}
	}

	s.logger.Info("actor created",
		zap.String("actor", actor.Value),
		zap.String("type", actorType.Fragment()))
	return actor, nil
}

// ByUsername resolves a local actor by its preferred username under
// a prefix.
func (s *ActorService) ByUsername(ctx context.Context, prefix, username string) (rdf.Term, error) {
	candidates, err := s.store.Subjects(ctx, vocab.PreferredUsername, rdf.Literal(username))
	if err != nil {
		return rdf.Term{}, err
	}
	prefix = strings.TrimSuffix(prefix, "/")
	for _, c := range candidates {
		if strings.HasPrefix(c.Value, prefix+"/") {
			return c, nil
		}
	}
	return rdf.Term{}, apperrors.NewNotFoundError("actor " + username)
}

// VerifyPassword checks local credentials and returns the actor IRI.
func (s *ActorService) VerifyPassword(ctx context.Context, actor rdf.Term, password string) error {
	hash, err := s.store.Value(ctx, actor, vocab.HashedPassword)
	if err != nil {
		return err
	}
	if hash.IsZero() {
		return apperrors.NewUnauthorizedError("actor has no local credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash.Value), []byte(password)); err != nil {
		return apperrors.NewUnauthorizedError("invalid credentials")
	}
	return nil
}

// SigningKey returns the actor's key identifier and parsed private
// key for outbound request signing.
func (s *ActorService) SigningKey(ctx context.Context, actor rdf.Term) (string, *rsa.PrivateKey, error) {
	key, err := s.store.Value(ctx, actor, vocab.PublicKey)
	if err != nil {
		return "", nil, err
	}
	if key.IsZero() {
		return "", nil, apperrors.NewNotFoundError("signing key for " + actor.Value)
	}
	pem, err := s.store.Value(ctx, key, vocab.PrivateKeyPem)
	if err != nil {
		return "", nil, err
	}
	if pem.IsZero() {
		return "", nil, apperrors.NewNotFoundError("private key for " + actor.Value)
	}
	priv, err := httpsig.ParsePrivateKey(pem.Value)
	if err != nil {
		return "", nil, err
	}
	return key.Value, priv, nil
}

// PublicKeyByID returns the parsed public key for a key identifier,
// for inbound signature verification.
func (s *ActorService) PublicKeyByID(ctx context.Context, keyID string) (*rsa.PublicKey, rdf.Term, error) {
	key := rdf.IRI(keyID)
	pem, err := s.store.Value(ctx, key, vocab.PublicKeyPem)
	if err != nil {
		return nil, rdf.Term{}, err
	}
	if pem.IsZero() {
		return nil, rdf.Term{}, apperrors.NewNotFoundError("public key " + keyID)
	}
	pub, err := httpsig.ParsePublicKey(pem.Value)
	if err != nil {
		return nil, rdf.Term{}, err
	}
	owner, err := s.store.Value(ctx, key, vocab.KeyOwner)
	if err != nil {
		return nil, rdf.Term{}, err
	}
	if owner.IsZero() {
		return nil, rdf.Term{}, apperrors.NewNotFoundError("owner of key " + keyID)
	}
	return pub, owner, nil
}

func generateKeyPair() (privPEM, pubPEM string, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, actorKeyBits)
	if err != nil {
		return "", "", apperrors.Wrap(err, "key generation failed")
	}
	return httpsig.EncodeKeyPair(priv)
}
