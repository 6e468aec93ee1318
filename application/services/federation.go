package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/events"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

// audienceRounds bounds the iterative audience expansion; each round
// may pull newly discovered recipients, so the bound caps recursive
// fetch fan-out.
const audienceRounds = 3

// FederationService exchanges facts with remote instances: pull
// (fetch and merge an authoritative copy) and push (multicast a
// bounded description to resolved inboxes).
type FederationService struct {
	store     ports.GraphStore
	projector *ProjectorService
	codec     ports.Codec
	transport ports.ActivityTransport
	prefixes  *PrefixService
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewFederationService creates the federation distributor.
func NewFederationService(
	store ports.GraphStore,
	projector *ProjectorService,
	codec ports.Codec,
	transport ports.ActivityTransport,
	prefixes *PrefixService,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *FederationService {
	return &FederationService{
		store:     store,
		projector: projector,
		codec:     codec,
		transport: transport,
		prefixes:  prefixes,
		publisher: publisher,
		logger:    logger,
	}
}

// Pull fetches subject from its origin and merges the result. Local
// subjects are a no-op success. The merge replaces whole subjects:
// every prior fact about a returned subject is dropped before the new
// facts go in, so a stale and a fresh copy never interleave.
func (s *FederationService) Pull(ctx context.Context, subject, actor rdf.Term) error {
	if !subject.IsIRI() {
		return apperrors.NewValidationError("cannot pull a non-IRI node")
	}
	local, err := s.prefixes.IsLocal(ctx, subject)
	if err != nil {
		return err
	}
	if local {
		return nil
	}

	data, err := s.transport.Get(ctx, actor.Value, subject.Value)
	if err != nil {
		return apperrors.NewNetworkError("pull of "+subject.Value+" failed", err)
	}
	g, err := s.codec.Decode(data)
	if err != nil {
		return apperrors.Wrap(err, "pulled document did not parse")
	}

	for sub := range g.SubjectSet() {
		if !sub.IsIRI() {
			continue
		}
		if err := s.store.Remove(ctx, &sub, nil, nil); err != nil {
			return err
		}
	}
	if err := s.store.InsertGraph(ctx, g); err != nil {
		return err
	}
	s.logger.Debug("pulled subject",
		zap.String("subject", subject.Value),
		zap.Int("facts", g.Len()))
	return nil
}

// PushTo delivers the bounded description of subject, as actor may
// see it, to one target inbox. Local targets are a no-op success.
func (s *FederationService) PushTo(ctx context.Context, target, subject, actor rdf.Term) error {
	local, err := s.prefixes.IsLocal(ctx, subject)
	if err != nil {
		return err
	}
	if !local {
		// Refresh before forwarding so a stale cached copy does not
		// propagate. A failed refresh is logged, not fatal.
		if err := s.Pull(ctx, subject, actor); err != nil {
			s.logger.Warn("pre-push pull failed",
				zap.String("subject", subject.Value),
				zap.Error(err))
		}
	}

	desc, err := s.projector.BoundedDescription(ctx, subject, actor)
	if err != nil {
		return err
	}

	targetLocal, err := s.prefixes.IsLocal(ctx, target)
	if err != nil {
		return err
	}
	if targetLocal {
		return nil
	}

	body, err := s.codec.Encode(desc, subject)
	if err != nil {
		return err
	}
	status, err := s.transport.Post(ctx, actor.Value, target.Value, body)
	if err != nil {
		return apperrors.NewNetworkError("delivery to "+target.Value+" failed", err)
	}
	if status < 200 || status > 299 {
		return apperrors.NewExternalError(target.Value, fmt.Errorf("delivery returned status %d", status))
	}
	return nil
}

// ResolveTargets expands subject's audience to a deduplicated set of
// inbox IRIs. Collections among the recipients are unrolled to their
// members; unknown non-public recipients are pulled first. Expansion
// runs until a fixpoint or the round bound.
func (s *FederationService) ResolveTargets(ctx context.Context, subject, actor rdf.Term) ([]rdf.Term, error) {
	pending := make(map[rdf.Term]struct{})
	for _, p := range vocab.AudiencePredicates {
		objs, err := s.store.Objects(ctx, subject, p)
		if err != nil {
			return nil, err
		}
		for _, o := range objs {
			pending[o] = struct{}{}
		}
	}

	resolved := make(map[rdf.Term]struct{})
	seen := make(map[rdf.Term]struct{})
	for round := 0; round < audienceRounds && len(pending) > 0; round++ {
		next := make(map[rdf.Term]struct{})
		for r := range pending {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			if r == vocab.PublicActor || !r.IsIRI() {
				continue
			}

			if err := s.Pull(ctx, r, actor); err != nil {
				s.logger.Warn("recipient pull failed",
					zap.String("recipient", r.Value),
					zap.Error(err))
			}

			isColl := false
			for _, t := range []rdf.Term{vocab.OrderedCollectionType, vocab.CollectionType} {
				ok, err := s.store.Has(ctx, &r, &vocab.Type, &t)
				if err != nil {
					return nil, err
				}
				if ok {
					isColl = true
					break
				}
			}
			if isColl {
				for _, m := range s.collectionMembers(ctx, r) {
					next[m] = struct{}{}
				}
				continue
			}
			resolved[r] = struct{}{}
		}
		pending = next
	}

	inboxes := make(map[rdf.Term]struct{})
	var out []rdf.Term
	for r := range resolved {
		inbox, err := s.store.Value(ctx, r, vocab.Inbox)
		if err != nil {
			return nil, err
		}
		if inbox.IsZero() {
			s.logger.Warn("recipient has no inbox", zap.String("recipient", r.Value))
			continue
		}
		if _, ok := inboxes[inbox]; ok {
			continue
		}
		inboxes[inbox] = struct{}{}
		out = append(out, inbox)
	}
	return out, nil
}

// collectionMembers reads both layouts: direct membership edges and
// the ordered cons-cell list.
func (s *FederationService) collectionMembers(ctx context.Context, coll rdf.Term) []rdf.Term {
	var out []rdf.Term
	objs, err := s.store.Objects(ctx, coll, vocab.Items)
	if err != nil {
		return nil
	}
	for _, o := range objs {
		cur := o
		for steps := 0; !cur.IsZero() && cur != vocab.Nil && steps < walkLimit; steps++ {
			member, err := s.store.Value(ctx, cur, vocab.First)
			if err != nil || member.IsZero() {
				// Not a cons-cell: o was a direct member.
				if steps == 0 {
					out = append(out, o)
				}
				break
			}
			out = append(out, member)
			cur, err = s.store.Value(ctx, cur, vocab.Rest)
			if err != nil {
				break
			}
		}
	}
	return out
}

// Push resolves subject's full audience and attempts delivery to each
// inbox independently. Partial failure is a normal outcome: the
// returned sets partition the attempted targets, and one failure
// never aborts the rest.
func (s *FederationService) Push(ctx context.Context, subject rdf.Term) (succeeded, failed []rdf.Term, err error) {
	actor, err := s.store.Value(ctx, subject, vocab.Actor)
	if err != nil {
		return nil, nil, err
	}
	if actor.IsZero() {
		return nil, nil, apperrors.NewValidationError("only activities with an actor can be pushed")
	}

	targets, err := s.ResolveTargets(ctx, subject, actor)
	if err != nil {
		return nil, nil, err
	}

	for _, target := range targets {
		if err := s.PushTo(ctx, target, subject, actor); err != nil {
			s.logger.Warn("delivery failed",
				zap.String("activity", subject.Value),
				zap.String("target", target.Value),
				zap.Error(err))
			failed = append(failed, target)
			continue
		}
		succeeded = append(succeeded, target)
	}

	if s.publisher != nil {
		evt := events.NewDeliveryCompleted(subject.Value, termValues(succeeded), termValues(failed), time.Now())
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("delivery event publish failed", zap.Error(err))
		}
	}
	return succeeded, failed, nil
}

func termValues(ts []rdf.Term) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Value
	}
	return out
}
