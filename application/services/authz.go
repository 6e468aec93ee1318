package services

import (
	"context"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
)

// AccessMode enumerates the operations the authorization engine can
// decide on.
type AccessMode int

const (
	ModeRead AccessMode = iota
	ModeWrite
	ModeDelete
	ModeAcceptFollow
	ModeRejectFollow
	ModeAdd
	ModeRemove
	ModeUndo
)

func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeDelete:
		return "delete"
	case ModeAcceptFollow:
		return "accept-follow"
	case ModeRejectFollow:
		return "reject-follow"
	case ModeAdd:
		return "add"
	case ModeRemove:
		return "remove"
	case ModeUndo:
		return "undo"
	default:
		return "unknown"
	}
}

// authzRule is one named predicate in a mode's rule list. Rules are
// disjunctive; the first match grants, and the name makes the grant
// explainable in logs.
type authzRule struct {
	name  string
	check func(ctx context.Context, a *AuthorizationService, actor, subject rdf.Term) (bool, error)
}

// AuthorizationService decides who may read or mutate a node, from
// stored facts alone.
type AuthorizationService struct {
	store  ports.GraphStore
	prefix *PrefixService
	logger *zap.Logger

	rules map[AccessMode][]authzRule
}

// NewAuthorizationService creates the authorization engine.
func NewAuthorizationService(store ports.GraphStore, prefix *PrefixService, logger *zap.Logger) *AuthorizationService {
	s := &AuthorizationService{
		store:  store,
		prefix: prefix,
		logger: logger,
	}
	s.rules = map[AccessMode][]authzRule{
		ModeRead: {
			{"subject-is-public", ruleSubjectPublic},
			{"subject-is-actor", ruleSubjectIsActor},
			{"subject-is-box", ruleSubjectIsBox},
			{"subject-is-public-key", ruleSubjectIsPublicKey},
			{"actor-authored-subject", ruleActorAuthored},
			{"actor-is-recipient", ruleActorIsRecipient},
			{"actor-is-affected", ruleActorIsAffected},
			{"subject-mentions-actor", ruleSubjectMentionsActor},
		},
		ModeWrite: {
			{"actor-owns-box", ruleActorOwnsBox},
			{"subject-is-inbox", ruleSubjectIsAnyInbox},
		},
		ModeDelete: {
			{"actor-authored-subject", ruleActorAuthored},
			{"same-origin-prefix", ruleSameOriginPrefix},
		},
		ModeAcceptFollow: {
			{"actor-is-followed", ruleActorIsSubject},
		},
		ModeRejectFollow: {
			{"actor-is-followed", ruleActorIsSubject},
		},
		ModeAdd: {
			{"actor-owns-collection", ruleActorAuthored},
		},
		ModeRemove: {
			{"actor-owns-collection", ruleActorAuthored},
		},
		ModeUndo: {
			{"actor-did-original", ruleActorAuthored},
		},
	}
	return s
}

// IsAuthorized evaluates the mode's rule list first-match-wins.
// No rule matching means deny.
func (s *AuthorizationService) IsAuthorized(ctx context.Context, actor, subject rdf.Term, mode AccessMode) (bool, error) {
	for _, rule := range s.rules[mode] {
		ok, err := rule.check(ctx, s, actor, subject)
		if err != nil {
			return false, err
		}
		if ok {
			s.logger.Debug("access granted",
				zap.String("mode", mode.String()),
				zap.String("rule", rule.name),
				zap.String("actor", actor.Value),
				zap.String("subject", subject.Value))
			return true, nil
		}
	}
	return false, nil
}

// FilterAuthorized returns the subset of g the actor may read.
// Decisions are made against the full store, not the partial graph,
// so incomplete traversal context cannot produce false denials.
// Internal bookkeeping facts and private-distribution predicates are
// stripped unconditionally.
func (s *AuthorizationService) FilterAuthorized(ctx context.Context, actor rdf.Term, g *rdf.Graph) (*rdf.Graph, error) {
	out := rdf.NewGraph()
	readable := make(map[rdf.Term]bool)
	for subject := range g.SubjectSet() {
		var ok bool
		if subject.IsBlank() {
			// Anonymous nodes carry no authorization of their own;
			// they are reachable only through an authorized parent.
			ok = true
		} else {
			var err error
			ok, err = s.IsAuthorized(ctx, actor, subject, ModeRead)
			if err != nil {
				return nil, err
			}
		}
		readable[subject] = ok
	}

	for _, t := range g.Triples() {
		if !readable[t.Subject] {
			continue
		}
		if vocab.IsHidden(t.Predicate) || vocab.IsInternal(t.Predicate) {
			continue
		}
		out.Add(t)
	}
	return out, nil
}

func ruleSubjectPublic(ctx context.Context, s *AuthorizationService, _, subject rdf.Term) (bool, error) {
	for _, p := range vocab.AudiencePredicates {
		ok, err := s.store.Has(ctx, &subject, &p, &vocab.PublicActor)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func ruleSubjectIsActor(ctx context.Context, s *AuthorizationService, _, subject rdf.Term) (bool, error) {
	types, err := s.store.Objects(ctx, subject, vocab.Type)
	if err != nil {
		return false, err
	}
	for _, t := range types {
		if _, ok := vocab.ActorTypes[t]; ok {
			return true, nil
		}
	}
	return false, nil
}

func ruleSubjectIsBox(ctx context.Context, s *AuthorizationService, _, subject rdf.Term) (bool, error) {
	for _, p := range vocab.BoxPredicates {
		ok, err := s.store.Has(ctx, nil, &p, &subject)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func ruleSubjectIsPublicKey(ctx context.Context, s *AuthorizationService, _, subject rdf.Term) (bool, error) {
	return s.store.Has(ctx, nil, &vocab.PublicKey, &subject)
}

func ruleActorAuthored(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	for _, p := range vocab.AuthorPredicates {
		ok, err := s.store.Has(ctx, &subject, &p, &actor)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func ruleActorIsRecipient(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	for _, p := range vocab.AudiencePredicates {
		ok, err := s.store.Has(ctx, &subject, &p, &actor)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// ruleActorIsAffected grants read on activities that name the actor as
// their object, target or origin, so a followed actor can inspect the
// Follow awaiting their accept.
func ruleActorIsAffected(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	for _, p := range []rdf.Term{vocab.Object, vocab.Target, vocab.Origin} {
		ok, err := s.store.Has(ctx, &subject, &p, &actor)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func ruleSubjectMentionsActor(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	isMention, err := s.store.Has(ctx, &subject, &vocab.Type, &vocab.MentionType)
	if err != nil || !isMention {
		return false, err
	}
	return s.store.Has(ctx, &subject, &vocab.Href, &actor)
}

func ruleActorOwnsBox(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	for _, p := range vocab.BoxPredicates {
		ok, err := s.store.Has(ctx, &actor, &p, &subject)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// ruleSubjectIsAnyInbox makes inboxes universally writable by any
// known, authenticated actor. The public actor never matches.
func ruleSubjectIsAnyInbox(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	if actor == vocab.PublicActor || actor.IsZero() {
		return false, nil
	}
	isInbox, err := s.store.Has(ctx, nil, &vocab.Inbox, &subject)
	if err != nil || !isInbox {
		return false, err
	}
	return ruleSubjectIsActor(ctx, s, actor, actor)
}

// ruleSameOriginPrefix allows administrative deletes within one
// instance: the actor's prefix must own the subject too.
func ruleSameOriginPrefix(ctx context.Context, s *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	ap, err := s.prefix.PrefixOf(actor)
	if err != nil {
		return false, nil
	}
	sp, err := s.prefix.PrefixOf(subject)
	if err != nil {
		return false, nil
	}
	return ap == sp, nil
}

func ruleActorIsSubject(_ context.Context, _ *AuthorizationService, actor, subject rdf.Term) (bool, error) {
	return actor == subject, nil
}
