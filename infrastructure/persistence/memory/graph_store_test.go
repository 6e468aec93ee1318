package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
)

func TestAddMatchRemove(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	note := rdf.IRI("https://example.com/note/1")
	alice := rdf.IRI("https://example.com/actor/alice")
	require.NoError(t, s.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AttributedTo, alice),
		rdf.T(note, vocab.To, vocab.PublicActor),
	))

	triples, err := s.Match(ctx, &note, nil, nil)
	require.NoError(t, err)
	assert.Len(t, triples, 3)

	ok, err := s.Has(ctx, &note, &vocab.AttributedTo, &alice)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wildcard removal drops every fact about the subject.
	require.NoError(t, s.Remove(ctx, &note, nil, nil))
	triples, err = s.Match(ctx, &note, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestSetReplacesAllObjects(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	coll := rdf.IRI("https://example.com/coll/1")
	require.NoError(t, s.Add(ctx,
		rdf.T(coll, vocab.TotalItems, rdf.IntLiteral(1)),
		rdf.T(coll, vocab.TotalItems, rdf.IntLiteral(2)),
	))

	require.NoError(t, s.Set(ctx, coll, vocab.TotalItems, rdf.IntLiteral(7)))

	objs, err := s.Objects(ctx, coll, vocab.TotalItems)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{rdf.IntLiteral(7)}, objs)
}

func TestValueFallsBackAcrossPredicates(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	act := rdf.IRI("https://example.com/create/1")
	alice := rdf.IRI("https://example.com/actor/alice")
	require.NoError(t, s.Add(ctx, rdf.T(act, vocab.AttributedTo, alice)))

	v, err := s.Value(ctx, act, vocab.Actor, vocab.AttributedTo)
	require.NoError(t, err)
	assert.Equal(t, alice, v)

	v, err = s.Value(ctx, act, vocab.Target)
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestSubjectsLooksUpByObject(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	alice := rdf.IRI("https://example.com/actor/alice")
	bob := rdf.IRI("https://example.com/actor/bob")
	username := rdf.Literal("alice")
	require.NoError(t, s.Add(ctx,
		rdf.T(alice, vocab.PreferredUsername, username),
		rdf.T(bob, vocab.PreferredUsername, rdf.Literal("bob")),
	))

	subjects, err := s.Subjects(ctx, vocab.PreferredUsername, username)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{alice}, subjects)
}

func TestCBDFollowsBlankNodes(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	note := rdf.IRI("https://example.com/note/1")
	other := rdf.IRI("https://example.com/note/2")
	attachment := rdf.NewBlank()
	require.NoError(t, s.Add(ctx,
		rdf.T(note, vocab.Type, vocab.AS("Note")),
		rdf.T(note, vocab.AS("attachment"), attachment),
		rdf.T(attachment, vocab.Name, rdf.Literal("chart")),
		rdf.T(note, vocab.AS("inReplyTo"), other),
		rdf.T(other, vocab.Type, vocab.AS("Note")),
	))

	cbd, err := s.CBD(ctx, note)
	require.NoError(t, err)

	assert.True(t, cbd.HasTriple(rdf.T(attachment, vocab.Name, rdf.Literal("chart"))),
		"blank nodes belong to the description")
	assert.False(t, cbd.Has(&other, nil, nil),
		"named nodes are their own descriptions")
}

func TestReplaceSubject(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	draft := rdf.NewBlank()
	final := rdf.IRI("https://example.com/create/1")
	box := rdf.IRI("https://example.com/actor/alice/outbox")
	require.NoError(t, s.Add(ctx,
		rdf.T(draft, vocab.Type, vocab.AS("Create")),
		rdf.T(box, vocab.Items, draft),
	))

	require.NoError(t, s.ReplaceSubject(ctx, draft, final))

	ok, err := s.Has(ctx, &final, &vocab.Type, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Has(ctx, &box, &vocab.Items, &final)
	require.NoError(t, err)
	assert.True(t, ok, "object positions are rewritten too")

	ok, err = s.Has(ctx, &draft, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithLockSerializes(t *testing.T) {
	s := NewGraphStore()
	ctx := context.Background()

	coll := rdf.IRI("https://example.com/coll/1")
	require.NoError(t, s.Set(ctx, coll, vocab.TotalItems, rdf.IntLiteral(0)))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = s.WithLock(ctx, coll.Value, func(ctx context.Context) error {
				v, err := s.Value(ctx, coll, vocab.TotalItems)
				if err != nil {
					return err
				}
				return s.Set(ctx, coll, vocab.TotalItems, rdf.IntLiteral(v.Int()+1))
			})
		}()
	}
	wg.Wait()

	v, err := s.Value(ctx, coll, vocab.TotalItems)
	require.NoError(t, err)
	assert.Equal(t, n, v.Int(), "read-modify-write under the lock loses no updates")
}
