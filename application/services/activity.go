package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/events"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
	"fedbox/pkg/extensions"
)

// sideEffect carries out one activity type's semantics and returns a
// human-readable result for the processing record.
type sideEffect func(ctx context.Context, activity, actor rdf.Term) (string, error)

// ActivityService validates, stores and carries out activities. The
// per-type semantics live in a static dispatch table keyed on the
// activity kind, so a missing handler is visible in one place.
type ActivityService struct {
	store       ports.GraphStore
	collections *CollectionService
	authz       *AuthorizationService
	federation  *FederationService
	prefixes    *PrefixService
	publisher   ports.EventPublisher
	hooks       *extensions.HookManager
	logger      *zap.Logger

	handlers map[vocab.ActivityKind]sideEffect
}

// NewActivityService creates the activity engine.
func NewActivityService(
	store ports.GraphStore,
	collections *CollectionService,
	authz *AuthorizationService,
	federation *FederationService,
	prefixes *PrefixService,
	publisher ports.EventPublisher,
	hooks *extensions.HookManager,
	logger *zap.Logger,
) *ActivityService {
	s := &ActivityService{
		store:       store,
		collections: collections,
		authz:       authz,
		federation:  federation,
		prefixes:    prefixes,
		publisher:   publisher,
		hooks:       hooks,
		logger:      logger,
	}
	s.handlers = map[vocab.ActivityKind]sideEffect{
		vocab.KindCreate:   s.carryOutNothing("object already stored"),
		vocab.KindUpdate:   s.carryOutNothing("object already replaced"),
		vocab.KindFollow:   s.carryOutNothing("follow awaits accept"),
		vocab.KindDelete:   s.carryOutDelete,
		vocab.KindAccept:   s.carryOutAccept,
		vocab.KindReject:   s.carryOutReject,
		vocab.KindAdd:      s.carryOutAdd,
		vocab.KindRemove:   s.carryOutRemove,
		vocab.KindLike:     s.carryOutLike,
		vocab.KindAnnounce: s.carryOutAnnounce,
		vocab.KindUndo:     s.carryOutUndo,
	}
	return s
}

// Ingest validates an inbound fact fragment and merges it into the
// store, appending the activity to the target box. Side effects do
// not run here; the activity is stamped processed=false and picked up
// by the background processor.
func (s *ActivityService) Ingest(ctx context.Context, fragment *rdf.Graph, box, requestActor rdf.Term) (rdf.Term, error) {
	roots := fragment.Roots()
	if len(roots) != 1 {
		return rdf.Term{}, apperrors.NewValidationError("activity fragment must have exactly one root")
	}
	root := roots[0]
	if !fragment.Connected(root) {
		return rdf.Term{}, apperrors.NewValidationError("activity fragment is not connected")
	}

	// Trim to the root's bounded description so the fragment cannot
	// smuggle facts about unrelated dereferencable nodes.
	cbd := fragment.CBD(root)

	isOutbox, err := s.store.Has(ctx, nil, &vocab.Outbox, &box)
	if err != nil {
		return rdf.Term{}, err
	}

	typ, _ := cbd.Value(root, vocab.Type)
	if _, ok := vocab.ActivityTypes[typ]; !ok {
		if _, isObject := vocab.ObjectTypes[typ]; isObject && isOutbox {
			return rdf.Term{}, apperrors.NewNotImplementedError("implicit Create wrapping for bare objects")
		}
		return rdf.Term{}, apperrors.NewValidationError("root type is not a known activity type")
	}

	objects := cbd.Objects(root, vocab.Object)
	if len(objects) != 1 {
		return rdf.Term{}, apperrors.NewValidationError("activity must name exactly one object")
	}
	object := objects[0]

	if err := s.requireAuthz(ctx, requestActor, box, ModeWrite); err != nil {
		return rdf.Term{}, err
	}

	// Client-to-server submissions get fresh local identity for the
	// activity and, when the object is defined inline, for the object.
	if isOutbox {
		newAct, err := s.prefixes.NewID(box, typ.Fragment())
		if err != nil {
			return rdf.Term{}, err
		}
		cbd.ReplaceTerm(root, newAct)
		root = newAct

		if objectDefinedInline(cbd, object) {
			kind := "object"
			if ot, ok := cbd.Value(object, vocab.Type); ok && ot.Fragment() != "" {
				kind = ot.Fragment()
			}
			newObj, err := s.prefixes.NewID(box, kind)
			if err != nil {
				return rdf.Term{}, err
			}
			cbd.ReplaceTerm(object, newObj)
		}
	}

	actor, ok := cbd.Value(root, vocab.Actor)
	switch {
	case !ok:
		cbd.Add(rdf.T(root, vocab.Actor, requestActor))
	case actor != requestActor:
		return rdf.Term{}, apperrors.NewForbiddenError("activity actor does not match the authenticated actor")
	}

	now := time.Now()
	cbd.Add(
		rdf.T(root, vocab.ReceivedAt, rdf.TimeLiteral(now)),
		rdf.T(root, vocab.Processed, rdf.BoolLiteral(false)),
		rdf.T(root, vocab.ReceivedIn, box),
	)

	if err := s.store.InsertGraph(ctx, cbd); err != nil {
		return rdf.Term{}, err
	}
	if err := s.collections.Add(ctx, box, root); err != nil {
		return rdf.Term{}, err
	}

	if s.publisher != nil {
		evt := events.NewActivityIngested(root.Value, box.Value, requestActor.Value, now)
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("ingest event publish failed", zap.Error(err))
		}
	}
	s.runHooks(ctx, extensions.HookActivityIngested, extensions.ActivityEvent{
		ActivityIRI: root.Value,
		ActorIRI:    requestActor.Value,
		Kind:        typ.Fragment(),
	})
	s.logger.Info("activity ingested",
		zap.String("activity", root.Value),
		zap.String("box", box.Value),
		zap.String("type", typ.Fragment()))
	return root, nil
}

// runHooks executes the registered extension hooks. Hook failures are
// logged, never propagated into the engine.
func (s *ActivityService) runHooks(ctx context.Context, point extensions.HookPoint, event extensions.ActivityEvent) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.Execute(ctx, point, event); err != nil {
		s.logger.Warn("extension hook failed",
			zap.String("point", string(point)),
			zap.Error(err))
	}
}

// objectDefinedInline reports whether the fragment carries content
// for the object beyond a bare reference.
func objectDefinedInline(g *rdf.Graph, object rdf.Term) bool {
	if object.IsBlank() {
		return true
	}
	return len(g.Match(&object, nil, nil)) > 0
}

// CarryOut executes the activity's side effects. Touched nodes are
// re-pulled first so the handler works on authoritative copies, not
// on whatever the sender inlined. Success marks the activity
// processed; failure records the error and leaves it unprocessed for
// a manual retry.
func (s *ActivityService) CarryOut(ctx context.Context, activity rdf.Term) error {
	actor, err := s.store.Value(ctx, activity, vocab.Actor)
	if err != nil {
		return err
	}

	for _, p := range vocab.TouchPredicates {
		touched, err := s.store.Objects(ctx, activity, p)
		if err != nil {
			return err
		}
		for _, node := range touched {
			if !node.IsIRI() {
				continue
			}
			if err := s.federation.Pull(ctx, node, actor); err != nil {
				s.logger.Warn("pre-dispatch pull failed",
					zap.String("node", node.Value),
					zap.Error(err))
			}
		}
	}

	typ, err := s.store.Value(ctx, activity, vocab.Type)
	if err != nil {
		return err
	}
	handler, ok := s.handlers[vocab.KindOf(typ)]
	if !ok {
		err := apperrors.NewNotImplementedError("no side effects defined for type " + typ.Value)
		s.recordFailure(ctx, activity, err)
		return err
	}

	result, err := handler(ctx, activity, actor)
	if err != nil {
		s.recordFailure(ctx, activity, err)
		return err
	}

	now := time.Now()
	if result != "" {
		if aerr := s.store.Add(ctx, rdf.T(activity, vocab.ProcessResult, rdf.Literal(result))); aerr != nil {
			return aerr
		}
	}
	if err := s.store.Set(ctx, activity, vocab.Processed, rdf.BoolLiteral(true)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, activity, vocab.ProcessedAt, rdf.TimeLiteral(now)); err != nil {
		return err
	}

	if s.publisher != nil {
		evt := events.NewActivityProcessed(activity.Value, []string{result}, now)
		if perr := s.publisher.Publish(ctx, evt); perr != nil {
			s.logger.Warn("processed event publish failed", zap.Error(perr))
		}
	}
	s.runHooks(ctx, extensions.HookActivityProcessed, extensions.ActivityEvent{
		ActivityIRI: activity.Value,
		ActorIRI:    actor.Value,
		Kind:        typ.Fragment(),
		Result:      result,
	})
	return nil
}

// recordFailure writes the error text into the processing record;
// processed stays false so the activity can be retried.
func (s *ActivityService) recordFailure(ctx context.Context, activity rdf.Term, cause error) {
	if err := s.store.Add(ctx, rdf.T(activity, vocab.ProcessResult, rdf.Literal(cause.Error()))); err != nil {
		s.logger.Error("failed to record processing error", zap.Error(err))
	}
	if s.publisher != nil {
		evt := events.NewActivityFailed(activity.Value, cause.Error(), time.Now())
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("failure event publish failed", zap.Error(err))
		}
	}
	s.runHooks(ctx, extensions.HookActivityFailed, extensions.ActivityEvent{
		ActivityIRI: activity.Value,
		Err:         cause,
	})
}

func (s *ActivityService) carryOutNothing(result string) sideEffect {
	return func(context.Context, rdf.Term, rdf.Term) (string, error) {
		return result, nil
	}
}

func (s *ActivityService) carryOutDelete(ctx context.Context, activity, actor rdf.Term) (string, error) {
	object, err := s.requiredValue(ctx, activity, vocab.Object, "object")
	if err != nil {
		return "", err
	}
	if err := s.requireAuthz(ctx, actor, object, ModeDelete); err != nil {
		return "", err
	}
	return s.tombstone(ctx, object)
}

// tombstone erases every fact about the object and leaves a
// Tombstone-typed node at the same identifier.
func (s *ActivityService) tombstone(ctx context.Context, object rdf.Term) (string, error) {
	if err := s.store.Remove(ctx, &object, nil, nil); err != nil {
		return "", err
	}
	if err := s.store.Add(ctx, rdf.T(object, vocab.Type, vocab.TombstoneType)); err != nil {
		return "", err
	}
	return "tombstoned " + object.Value, nil
}

func (s *ActivityService) carryOutAccept(ctx context.Context, activity, actor rdf.Term) (string, error) {
	inner, err := s.requiredValue(ctx, activity, vocab.Object, "object")
	if err != nil {
		return "", err
	}
	innerType, err := s.store.Value(ctx, inner, vocab.Type)
	if err != nil {
		return "", err
	}
	switch vocab.KindOf(innerType) {
	case vocab.KindFollow:
		return s.acceptFollow(ctx, inner, actor)
	default:
		return "no accept semantics for " + innerType.Value, nil
	}
}

func (s *ActivityService) carryOutReject(ctx context.Context, activity, actor rdf.Term) (string, error) {
	inner, err := s.requiredValue(ctx, activity, vocab.Object, "object")
	if err != nil {
		return "", err
	}
	innerType, err := s.store.Value(ctx, inner, vocab.Type)
	if err != nil {
		return "", err
	}
	switch vocab.KindOf(innerType) {
	case vocab.KindFollow:
		return s.rejectFollow(ctx, inner, actor)
	default:
		return "no reject semantics for " + innerType.Value, nil
	}
}

// acceptFollow records the follow relationship: the follower joins
// the accepting actor's following collection.
func (s *ActivityService) acceptFollow(ctx context.Context, follow, actor rdf.Term) (string, error) {
	followed, err := s.requiredValue(ctx, follow, vocab.Object, "followed actor")
	if err != nil {
		return "", err
	}
	follower, err := s.requiredValue(ctx, follow, vocab.Actor, "follower")
	if err != nil {
		return "", err
	}
	if err := s.requireAuthz(ctx, actor, followed, ModeAcceptFollow); err != nil {
		return "", err
	}
	coll, err := s.requiredValue(ctx, followed, vocab.Following, "following collection")
	if err != nil {
		return "", err
	}
	if err := s.collections.Add(ctx, coll, follower); err != nil {
		return "", err
	}
	return "added " + follower.Value + " to " + coll.Value, nil
}

func (s *ActivityService) rejectFollow(ctx context.Context, follow, actor rdf.Term) (string, error) {
	followed, err := s.requiredValue(ctx, follow, vocab.Object, "followed actor")
	if err != nil {
		return "", err
	}
	follower, err := s.requiredValue(ctx, follow, vocab.Actor, "follower")
	if err != nil {
		return "", err
	}
	if err := s.requireAuthz(ctx, actor, followed, ModeRejectFollow); err != nil {
		return "", err
	}
	coll, err := s.requiredValue(ctx, followed, vocab.Following, "following collection")
	if err != nil {
		return "", err
	}
	if err := s.collections.Remove(ctx, coll, follower); err != nil {
		return "", err
	}
	return "removed " + follower.Value + " from " + coll.Value, nil
}

func (s *ActivityService) carryOutAdd(ctx context.Context, activity, actor rdf.Term) (string, error) {
	target, err := s.requiredValue(ctx, activity, vocab.Target, "target collection")
	if err != nil {
		return "", err
	}
	object, err := s.requiredValue(ctx, activity, vocab.Object, "object")
	if err != nil {
		return "", err
	}
	if err := s.requireAuthz(ctx, actor, target, ModeAdd); err != nil {
		return "", err
	}
	if err := s.collections.Add(ctx, target, object); err != nil {
		return "", err
	}
	return "added " + object.Value + " to " + target.Value, nil
}

func (s *ActivityService) carryOutRemove(ctx context.Context, activity, actor rdf.Term) (string, error) {
	target, err := s.requiredValue(ctx, activity, vocab.Target, "target collection")
	if err != nil {
		return "", err
	}
	object, err := s.requiredValue(ctx, activity, vocab.Object, "object")
	if err != nil {
		return "", err
	}
	if err := s.requireAuthz(ctx, actor, target, ModeRemove); err != nil {
		return "", err
	}
	if err := s.collections.Remove(ctx, target, object); err != nil {
		return "", err
	}
	return "removed " + object.Value + " from " + target.Value, nil
}

func (s *ActivityService) carryOutLike(ctx context.Context, activity, actor rdf.Term) (string, error) {
	return s.appendToObjectCollection(ctx, activity, actor, vocab.Likes, "likes")
}

func (s *ActivityService) carryOutAnnounce(ctx context.Context, activity, actor rdf.Term) (string, error) {
	return s.appendToObjectCollection(ctx, activity, actor, vocab.Shares, "shares")
}

// appendToObjectCollection inserts the activity itself into the
// object's likes or shares collection. Objects without one are
// reported and left alone; the collection is never fabricated.
func (s *ActivityService) appendToObjectCollection(ctx context.Context, activity, actor, pred rdf.Term, name string) (string, error) {
	object, err := s.requiredValue(ctx, activity, vocab.Object, "object")
	if err != nil {
		return "", err
	}
	coll, err := s.store.Value(ctx, object, pred)
	if err != nil {
		return "", err
	}
	if coll.IsZero() {
		return object.Value + " has no " + name + " collection", nil
	}
	if err := s.requireAuthz(ctx, actor, coll, ModeAdd); err != nil {
		return "", err
	}
	if err := s.collections.Add(ctx, coll, activity); err != nil {
		return "", err
	}
	return "added " + activity.Value + " to " + coll.Value, nil
}

// carryOutUndo dispatches to the inverse of the original activity's
// type, applying the inverse operation's own authorization check on
// top of the undo check.
func (s *ActivityService) carryOutUndo(ctx context.Context, activity, actor rdf.Term) (string, error) {
	original, err := s.requiredValue(ctx, activity, vocab.Object, "original activity")
	if err != nil {
		return "", err
	}
	if err := s.requireAuthz(ctx, actor, original, ModeUndo); err != nil {
		return "", err
	}
	origType, err := s.store.Value(ctx, original, vocab.Type)
	if err != nil {
		return "", err
	}

	switch vocab.KindOf(origType) {
	case vocab.KindAccept:
		inner, err := s.requiredValue(ctx, original, vocab.Object, "accepted activity")
		if err != nil {
			return "", err
		}
		return s.rejectFollow(ctx, inner, actor)

	case vocab.KindAdd:
		target, err := s.requiredValue(ctx, original, vocab.Target, "target collection")
		if err != nil {
			return "", err
		}
		object, err := s.requiredValue(ctx, original, vocab.Object, "object")
		if err != nil {
			return "", err
		}
		if err := s.requireAuthz(ctx, actor, target, ModeRemove); err != nil {
			return "", err
		}
		if err := s.collections.Remove(ctx, target, object); err != nil {
			return "", err
		}
		return "removed " + object.Value + " from " + target.Value, nil

	case vocab.KindCreate:
		object, err := s.requiredValue(ctx, original, vocab.Object, "object")
		if err != nil {
			return "", err
		}
		if err := s.requireAuthz(ctx, actor, object, ModeDelete); err != nil {
			return "", err
		}
		return s.tombstone(ctx, object)

	case vocab.KindLike:
		object, err := s.requiredValue(ctx, original, vocab.Object, "object")
		if err != nil {
			return "", err
		}
		likes, err := s.store.Value(ctx, object, vocab.Likes)
		if err != nil {
			return "", err
		}
		if likes.IsZero() {
			return object.Value + " has no likes collection", nil
		}
		if err := s.requireAuthz(ctx, actor, likes, ModeRemove); err != nil {
			return "", err
		}
		if err := s.collections.Remove(ctx, likes, original); err != nil {
			return "", err
		}
		return "removed " + original.Value + " from " + likes.Value, nil

	default:
		return "", apperrors.NewNotImplementedError("no undo semantics for " + origType.Value)
	}
}

// requiredValue reads a single-valued predicate and fails validation
// when it is absent.
func (s *ActivityService) requiredValue(ctx context.Context, subject, pred rdf.Term, what string) (rdf.Term, error) {
	v, err := s.store.Value(ctx, subject, pred)
	if err != nil {
		return rdf.Term{}, err
	}
	if v.IsZero() {
		return rdf.Term{}, apperrors.NewValidationError(subject.Value + " has no " + what)
	}
	return v, nil
}

// requireAuthz distinguishes unauthenticated (acting as the public
// actor) from authenticated-but-forbidden.
func (s *ActivityService) requireAuthz(ctx context.Context, actor, subject rdf.Term, mode AccessMode) error {
	ok, err := s.authz.IsAuthorized(ctx, actor, subject, mode)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if actor.IsZero() || actor == vocab.PublicActor {
		return apperrors.NewUnauthorizedError("authentication required for " + mode.String())
	}
	return apperrors.NewForbiddenError(actor.Value + " may not " + mode.String() + " " + subject.Value)
}
