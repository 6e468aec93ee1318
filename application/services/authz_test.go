package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
)

func TestReadPublicSubject(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	note := rdf.IRI(testPrefix + "/note/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.To, vocab.PublicActor),
	))

	ok, err := e.authz.IsAuthorized(ctx, vocab.PublicActor, note, ModeRead)
	require.NoError(t, err)
	assert.True(t, ok, "public note must be readable anonymously")
}

func TestReadPrivateSubjectDenied(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")
	mallory := rdf.IRI("https://elsewhere.example/actor/mallory")

	note := rdf.IRI(testPrefix + "/note/private")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AttributedTo, alice),
		rdf.T(note, vocab.To, bob),
	))

	for name, tc := range map[string]struct {
		actor rdf.Term
		want  bool
	}{
		"author":    {alice, true},
		"recipient": {bob, true},
		"stranger":  {mallory, false},
		"anonymous": {vocab.PublicActor, false},
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := e.authz.IsAuthorized(ctx, tc.actor, note, ModeRead)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestReadActorsAndBoxes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	inbox := e.box(t, alice, vocab.Inbox)
	key := rdf.IRI(alice.Value + "#main-key")

	for name, subject := range map[string]rdf.Term{
		"actor profile": alice,
		"inbox":         inbox,
		"public key":    key,
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := e.authz.IsAuthorized(ctx, vocab.PublicActor, subject, ModeRead)
			require.NoError(t, err)
			assert.True(t, ok, "%s must be world-readable", name)
		})
	}
}

func TestReadFollowAwaitingAccept(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := rdf.IRI("https://remote.example/actor/bob")

	follow := rdf.IRI("https://remote.example/follow/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(follow, vocab.Type, vocab.AS("Follow")),
		rdf.T(follow, vocab.Actor, bob),
		rdf.T(follow, vocab.Object, alice),
	))

	// The followed actor is named only as the object, yet must be able
	// to inspect the request before accepting it.
	ok, err := e.authz.IsAuthorized(ctx, alice, follow, ModeRead)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteBoxRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")
	inbox := e.box(t, alice, vocab.Inbox)
	outbox := e.box(t, alice, vocab.Outbox)

	ok, err := e.authz.IsAuthorized(ctx, alice, outbox, ModeWrite)
	require.NoError(t, err)
	assert.True(t, ok, "owner writes own outbox")

	ok, err = e.authz.IsAuthorized(ctx, bob, outbox, ModeWrite)
	require.NoError(t, err)
	assert.False(t, ok, "only the owner writes an outbox")

	ok, err = e.authz.IsAuthorized(ctx, bob, inbox, ModeWrite)
	require.NoError(t, err)
	assert.True(t, ok, "any known actor may deliver to an inbox")

	ok, err = e.authz.IsAuthorized(ctx, vocab.PublicActor, inbox, ModeWrite)
	require.NoError(t, err)
	assert.False(t, ok, "the public actor never writes")

	stranger := rdf.IRI("https://remote.example/actor/unknown")
	ok, err = e.authz.IsAuthorized(ctx, stranger, inbox, ModeWrite)
	require.NoError(t, err)
	assert.False(t, ok, "an actor the store has no type facts for may not deliver")
}

func TestDeleteRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")
	remote := rdf.IRI("https://remote.example/actor/carol")

	note := rdf.IRI(testPrefix + "/note/1")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AttributedTo, alice),
	))

	ok, err := e.authz.IsAuthorized(ctx, alice, note, ModeDelete)
	require.NoError(t, err)
	assert.True(t, ok, "author deletes own object")

	ok, err = e.authz.IsAuthorized(ctx, bob, note, ModeDelete)
	require.NoError(t, err)
	assert.True(t, ok, "same-origin actor deletes instance-local objects")

	ok, err = e.authz.IsAuthorized(ctx, remote, note, ModeDelete)
	require.NoError(t, err)
	assert.False(t, ok, "remote actors never delete local objects")
}

func TestAcceptFollowOnlyByFollowed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")

	ok, err := e.authz.IsAuthorized(ctx, alice, alice, ModeAcceptFollow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.authz.IsAuthorized(ctx, bob, alice, ModeAcceptFollow)
	require.NoError(t, err)
	assert.False(t, ok, "nobody accepts follows on another actor's behalf")
}

func TestFilterAuthorized(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.mustActor(t, "alice")
	bob := e.mustActor(t, "bob")

	public := rdf.IRI(testPrefix + "/note/public")
	private := rdf.IRI(testPrefix + "/note/private")
	attachment := rdf.NewBlank()
	require.NoError(t, e.store.Add(ctx,
		rdf.T(public, vocab.Type, vocab.AS("Note")),
		rdf.T(public, vocab.To, vocab.PublicActor),
		rdf.T(public, vocab.Bto, bob),
		rdf.T(public, vocab.Processed, rdf.BoolLiteral(true)),
		rdf.T(public, vocab.AS("attachment"), attachment),
		rdf.T(attachment, vocab.Name, rdf.Literal("chart")),

		rdf.T(private, vocab.Type, vocab.AS("Note")),
		rdf.T(private, vocab.AttributedTo, alice),
		rdf.T(private, vocab.To, alice),
	))

	g := rdf.NewGraph()
	for _, subj := range []rdf.Term{public, private, attachment} {
		triples, err := e.store.Match(ctx, &subj, nil, nil)
		require.NoError(t, err)
		g.Add(triples...)
	}

	filtered, err := e.authz.FilterAuthorized(ctx, vocab.PublicActor, g)
	require.NoError(t, err)

	assert.True(t, filtered.HasTriple(rdf.T(public, vocab.To, vocab.PublicActor)))
	assert.True(t, filtered.HasTriple(rdf.T(attachment, vocab.Name, rdf.Literal("chart"))),
		"blank nodes ride on their parent's authorization")

	assert.False(t, filtered.Has(&public, &vocab.Bto, nil), "bto is stripped for every reader")
	assert.False(t, filtered.Has(&public, &vocab.Processed, nil), "bookkeeping facts never leave the store")
	assert.False(t, filtered.Has(&private, nil, nil), "unauthorized subjects are dropped whole")

	// The author sees the private note, still without hidden predicates.
	filtered, err = e.authz.FilterAuthorized(ctx, alice, g)
	require.NoError(t, err)
	assert.True(t, filtered.HasTriple(rdf.T(private, vocab.To, alice)))
	assert.False(t, filtered.Has(&public, &vocab.Bto, nil))
}

func TestFirstMatchStopsEvaluation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// A subject that is both public and authored: the public rule runs
	// first, so the decision must not depend on authorship facts.
	alice := e.mustActor(t, "alice")
	note := rdf.IRI(testPrefix + "/note/both")
	require.NoError(t, e.store.Add(ctx,
		rdf.T(note, vocab.To, vocab.PublicActor),
		rdf.T(note, vocab.AttributedTo, alice),
	))

	ok, err := e.authz.IsAuthorized(ctx, rdf.IRI("https://remote.example/actor/x"), note, ModeRead)
	require.NoError(t, err)
	assert.True(t, ok)
}
