package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

// createNoteFragment builds a client-to-server Create with an inline
// object, the way a posting client would send it: no identifiers.
func createNoteFragment(content string) (*rdf.Graph, rdf.Term) {
	g := rdf.NewGraph()
	activity := rdf.NewBlank()
	note := rdf.NewBlank()
	g.Add(
		rdf.T(activity, vocab.Type, vocab.AS("Create")),
		rdf.T(activity, vocab.Object, note),
		rdf.T(activity, vocab.To, vocab.PublicActor),
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AS("content"), rdf.Literal(content)),
	)
	return g, activity
}

func TestIngestOutboxAssignsIdentity(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	outbox := e.box(t, alice, vocab.Outbox)

	fragment, _ := createNoteFragment("hello")
	root, err := e.activities.Ingest(ctx, fragment, outbox, alice)
	require.NoError(t, err)

	assert.True(t, root.IsIRI())
	assert.True(t, strings.HasPrefix(root.Value, testPrefix+"/create/"), root.Value)

	object, err := e.store.Value(ctx, root, vocab.Object)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(object.Value, testPrefix+"/note/"),
		"inline object gets a fresh local identifier")

	content, err := e.store.Value(ctx, object, vocab.AS("content"))
	require.NoError(t, err)
	assert.Equal(t, "hello", content.Value)

	actor, err := e.store.Value(ctx, root, vocab.Actor)
	require.NoError(t, err)
	assert.Equal(t, alice, actor, "missing actor is filled from the authenticated identity")

	processed, err := e.store.Value(ctx, root, vocab.Processed)
	require.NoError(t, err)
	assert.False(t, processed.Bool(), "side effects run out of band")

	members, err := e.collections.Members(ctx, outbox)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, root, members[0])
}

func TestIngestInboxKeepsRemoteIdentity(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")
	inbox := e.box(t, alice, vocab.Inbox)

	activity := rdf.IRI(testPrefix + "/like/bobs")
	note := rdf.IRI(testPrefix + "/note/target")
	g := rdf.NewGraph()
	g.Add(
		rdf.T(activity, vocab.Type, vocab.AS("Like")),
		rdf.T(activity, vocab.Actor, bob),
		rdf.T(activity, vocab.Object, note),
	)

	root, err := e.activities.Ingest(ctx, g, inbox, bob)
	require.NoError(t, err)
	assert.Equal(t, activity, root, "server-to-server delivery keeps the sender's identifier")

	members, err := e.collections.Members(ctx, inbox)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{activity}, members)
}

func TestIngestRejectsMalformedFragments(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	outbox := e.box(t, alice, vocab.Outbox)
	inbox := e.box(t, alice, vocab.Inbox)

	t.Run("two roots", func(t *testing.T) {
		g := rdf.NewGraph()
		g.Add(
			rdf.T(rdf.IRI(testPrefix+"/a"), vocab.Type, vocab.AS("Create")),
			rdf.T(rdf.IRI(testPrefix+"/b"), vocab.Type, vocab.AS("Create")),
		)
		_, err := e.activities.Ingest(ctx, g, outbox, alice)
		assert.True(t, apperrors.IsValidation(err), "got %v", err)
	})

	t.Run("disconnected island", func(t *testing.T) {
		g, root := createNoteFragment("hi")
		knows := vocab.AS("knows")
		c1 := rdf.IRI("https://elsewhere.example/x")
		c2 := rdf.IRI("https://elsewhere.example/y")
		g.Add(rdf.T(c1, knows, c2), rdf.T(c2, knows, c1))
		_ = root
		_, err := e.activities.Ingest(ctx, g, outbox, alice)
		assert.True(t, apperrors.IsValidation(err), "got %v", err)
	})

	t.Run("no object", func(t *testing.T) {
		g := rdf.NewGraph()
		g.Add(rdf.T(rdf.NewBlank(), vocab.Type, vocab.AS("Create")))
		_, err := e.activities.Ingest(ctx, g, outbox, alice)
		assert.True(t, apperrors.IsValidation(err), "got %v", err)
	})

	t.Run("bare object on outbox", func(t *testing.T) {
		g := rdf.NewGraph()
		note := rdf.NewBlank()
		g.Add(
			rdf.T(note, vocab.Type, vocab.AS("Note")),
			rdf.T(note, vocab.AS("content"), rdf.Literal("no wrapper")),
		)
		_, err := e.activities.Ingest(ctx, g, outbox, alice)
		assert.True(t, apperrors.IsNotImplemented(err), "got %v", err)
	})

	t.Run("bare object on inbox", func(t *testing.T) {
		g := rdf.NewGraph()
		note := rdf.NewBlank()
		g.Add(rdf.T(note, vocab.Type, vocab.AS("Note")))
		_, err := e.activities.Ingest(ctx, g, inbox, alice)
		assert.True(t, apperrors.IsValidation(err), "got %v", err)
	})
}

func TestIngestRejectsSpoofedActor(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")
	inbox := e.box(t, alice, vocab.Inbox)

	activity := rdf.IRI(testPrefix + "/like/spoofed")
	g := rdf.NewGraph()
	g.Add(
		rdf.T(activity, vocab.Type, vocab.AS("Like")),
		rdf.T(activity, vocab.Actor, bob),
		rdf.T(activity, vocab.Object, rdf.IRI(testPrefix+"/note/1")),
	)

	_, err := e.activities.Ingest(ctx, g, inbox, alice)
	assert.True(t, apperrors.IsForbidden(err), "got %v", err)
}

func TestIngestRequiresAuthentication(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	outbox := e.box(t, alice, vocab.Outbox)

	fragment, _ := createNoteFragment("anon")
	_, err := e.activities.Ingest(ctx, fragment, outbox, rdf.Term{})
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)

	_, err = e.activities.Ingest(ctx, fragment, outbox, vocab.PublicActor)
	assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)
}

func TestCarryOutCreateMarksProcessed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	outbox := e.box(t, alice, vocab.Outbox)

	fragment, _ := createNoteFragment("hello")
	root, err := e.activities.Ingest(ctx, fragment, outbox, alice)
	require.NoError(t, err)

	require.NoError(t, e.activities.CarryOut(ctx, root))

	processed, err := e.store.Value(ctx, root, vocab.Processed)
	require.NoError(t, err)
	assert.True(t, processed.Bool())

	result, err := e.store.Value(ctx, root, vocab.ProcessResult)
	require.NoError(t, err)
	assert.Equal(t, "object already stored", result.Value)

	at, err := e.store.Value(ctx, root, vocab.ProcessedAt)
	require.NoError(t, err)
	assert.False(t, at.Time().IsZero())
}

func TestAcceptFollowAndUndo(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	following := e.box(t, alice, vocab.Following)
	bob := rdf.IRI("https://remote.example/actor/bob")

	follow := rdf.IRI("https://remote.example/follow/1")
	accept := rdf.IRI(testPrefix + "/accept/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(follow, vocab.Type, vocab.AS("Follow")),
		rdf.T(follow, vocab.Actor, bob),
		rdf.T(follow, vocab.Object, alice),

		rdf.T(accept, vocab.Type, vocab.AS("Accept")),
		rdf.T(accept, vocab.Actor, alice),
		rdf.T(accept, vocab.Object, follow),
	))

	require.NoError(t, e.activities.CarryOut(ctx, accept))

	members, err := e.collections.Members(ctx, following)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{bob}, members, "accepting a follow records the relationship")

	undo := rdf.IRI(testPrefix + "/undo/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(undo, vocab.Type, vocab.AS("Undo")),
		rdf.T(undo, vocab.Actor, alice),
		rdf.T(undo, vocab.Object, accept),
	))
	require.NoError(t, e.activities.CarryOut(ctx, undo))

	members, err = e.collections.Members(ctx, following)
	require.NoError(t, err)
	assert.Empty(t, members, "undoing the accept severs the relationship")
}

func TestAcceptFollowByWrongActor(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	mallory := e.mustActor(t, "mallory")
	bob := rdf.IRI("https://remote.example/actor/bob")

	follow := rdf.IRI("https://remote.example/follow/2")
	accept := rdf.IRI(testPrefix + "/accept/2")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(follow, vocab.Type, vocab.AS("Follow")),
		rdf.T(follow, vocab.Actor, bob),
		rdf.T(follow, vocab.Object, alice),

		rdf.T(accept, vocab.Type, vocab.AS("Accept")),
		rdf.T(accept, vocab.Actor, mallory),
		rdf.T(accept, vocab.Object, follow),
	))

	err := e.activities.CarryOut(ctx, accept)
	assert.True(t, apperrors.IsForbidden(err), "got %v", err)
}

func TestLikeAndUndoLike(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")

	note := rdf.IRI(testPrefix + "/note/liked")
	likes := rdf.IRI(note.Value + "/likes")
	require.NoError(t, e.collections.CreateOrdered(ctx, likes))
	require.NoError(t, e.store.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AttributedTo, alice),
		rdf.T(note, vocab.Likes, likes),
		rdf.T(likes, vocab.AttributedTo, alice),
	))

	like := rdf.IRI(testPrefix + "/like/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(like, vocab.Type, vocab.AS("Like")),
		rdf.T(like, vocab.Actor, alice),
		rdf.T(like, vocab.Object, note),
	))
	require.NoError(t, e.activities.CarryOut(ctx, like))

	members, err := e.collections.Members(ctx, likes)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{like}, members)

	undo := rdf.IRI(testPrefix + "/undo/like")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(undo, vocab.Type, vocab.AS("Undo")),
		rdf.T(undo, vocab.Actor, alice),
		rdf.T(undo, vocab.Object, like),
	))
	require.NoError(t, e.activities.CarryOut(ctx, undo))

	members, err = e.collections.Members(ctx, likes)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestLikeWithoutLikesCollection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	note := rdf.IRI(testPrefix + "/note/plain")
	require.NoError(t, e.store.Add(ctx, rdf.T(note, vocab.Type, vocab.AS("Note"))))

	like := rdf.IRI(testPrefix + "/like/nowhere")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(like, vocab.Type, vocab.AS("Like")),
		rdf.T(like, vocab.Actor, alice),
		rdf.T(like, vocab.Object, note),
	))

	// The collection is never fabricated; the run still succeeds.
	require.NoError(t, e.activities.CarryOut(ctx, like))
	processed, err := e.store.Value(ctx, like, vocab.Processed)
	require.NoError(t, err)
	assert.True(t, processed.Bool())
}

func TestDeleteTombstones(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	note := rdf.IRI(testPrefix + "/note/doomed")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AttributedTo, alice),
		rdf.T(note, vocab.AS("content"), rdf.Literal("ephemeral")),
	))

	del := rdf.IRI(testPrefix + "/delete/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(del, vocab.Type, vocab.AS("Delete")),
		rdf.T(del, vocab.Actor, alice),
		rdf.T(del, vocab.Object, note),
	))
	require.NoError(t, e.activities.CarryOut(ctx, del))

	facts, err := e.store.Match(ctx, &note, nil, nil)
	require.NoError(t, err)
	require.Len(t, facts, 1, "every prior fact about the object is gone")
	assert.Equal(t, rdf.T(note, vocab.Type, vocab.TombstoneType), facts[0])
}

func TestAddAndRemoveCuration(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	featured := rdf.IRI(testPrefix + "/coll/featured")
	require.NoError(t, e.collections.CreateOrdered(ctx, featured))
	require.NoError(t, e.store.Add(ctx, rdf.T(featured, vocab.AttributedTo, alice)))

	note := rdf.IRI(testPrefix + "/note/best")

	add := rdf.IRI(testPrefix + "/add/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(add, vocab.Type, vocab.AS("Add")),
		rdf.T(add, vocab.Actor, alice),
		rdf.T(add, vocab.Object, note),
		rdf.T(add, vocab.Target, featured),
	))
	require.NoError(t, e.activities.CarryOut(ctx, add))

	members, err := e.collections.Members(ctx, featured)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{note}, members)

	rem := rdf.IRI(testPrefix + "/remove/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(rem, vocab.Type, vocab.AS("Remove")),
		rdf.T(rem, vocab.Actor, alice),
		rdf.T(rem, vocab.Object, note),
		rdf.T(rem, vocab.Target, featured),
	))
	require.NoError(t, e.activities.CarryOut(ctx, rem))

	members, err = e.collections.Members(ctx, featured)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestUndoWithoutInverseRecordsFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := rdf.IRI("https://remote.example/actor/bob")

	follow := rdf.IRI(testPrefix + "/follow/1")
	undo := rdf.IRI(testPrefix + "/undo/follow")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(follow, vocab.Type, vocab.AS("Follow")),
		rdf.T(follow, vocab.Actor, alice),
		rdf.T(follow, vocab.Object, bob),

		rdf.T(undo, vocab.Type, vocab.AS("Undo")),
		rdf.T(undo, vocab.Actor, alice),
		rdf.T(undo, vocab.Object, follow),
	))

	err := e.activities.CarryOut(ctx, undo)
	assert.True(t, apperrors.IsNotImplemented(err), "got %v", err)

	processed, err2 := e.store.Value(ctx, undo, vocab.Processed)
	require.NoError(t, err2)
	assert.False(t, processed.Bool(), "failed runs stay retryable")

	result, err2 := e.store.Value(ctx, undo, vocab.ProcessResult)
	require.NoError(t, err2)
	assert.NotEmpty(t, result.Value, "the failure is recorded on the activity")
}
