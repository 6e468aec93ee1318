package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

func TestOrderedCollectionLIFO(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/1")
	require.NoError(t, e.collections.CreateOrdered(ctx, coll))

	a := rdf.IRI(testPrefix + "/item/a")
	b := rdf.IRI(testPrefix + "/item/b")
	c := rdf.IRI(testPrefix + "/item/c")
	for _, item := range []rdf.Term{a, b, c} {
		require.NoError(t, e.collections.Add(ctx, coll, item))
	}

	members, err := e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{c, b, a}, members, "most recent insertion comes first")

	n, err := e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestOrderedCollectionAddIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/dedup")
	require.NoError(t, e.collections.CreateOrdered(ctx, coll))

	item := rdf.IRI(testPrefix + "/item/x")
	require.NoError(t, e.collections.Add(ctx, coll, item))
	require.NoError(t, e.collections.Add(ctx, coll, item))

	members, err := e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{item}, members)

	n, err := e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrderedCollectionRemoveSplices(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/splice")
	require.NoError(t, e.collections.CreateOrdered(ctx, coll))

	a := rdf.IRI(testPrefix + "/item/a")
	b := rdf.IRI(testPrefix + "/item/b")
	c := rdf.IRI(testPrefix + "/item/c")
	for _, item := range []rdf.Term{a, b, c} {
		require.NoError(t, e.collections.Add(ctx, coll, item))
	}

	// Middle element: predecessor relinks past it.
	require.NoError(t, e.collections.Remove(ctx, coll, b))
	members, err := e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{c, a}, members)

	// Head element: the collection's items edge moves.
	require.NoError(t, e.collections.Remove(ctx, coll, c))
	members, err = e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{a}, members)

	// Absent element: no-op, count untouched.
	require.NoError(t, e.collections.Remove(ctx, coll, b))
	n, err := e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Last element: empty list, head back to nil.
	require.NoError(t, e.collections.Remove(ctx, coll, a))
	members, err = e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Empty(t, members)
	n, err = e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRemoveDropsCellFacts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/cells")
	require.NoError(t, e.collections.CreateOrdered(ctx, coll))

	item := rdf.IRI(testPrefix + "/item/only")
	require.NoError(t, e.collections.Add(ctx, coll, item))
	require.NoError(t, e.collections.Remove(ctx, coll, item))

	// No orphaned cons-cells may remain.
	cells, err := e.store.Match(ctx, nil, &vocab.First, nil)
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestUnorderedCollection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/unordered")
	require.NoError(t, e.collections.CreateUnordered(ctx, coll))

	a := rdf.IRI(testPrefix + "/item/a")
	b := rdf.IRI(testPrefix + "/item/b")
	require.NoError(t, e.collections.Add(ctx, coll, a))
	require.NoError(t, e.collections.Add(ctx, coll, b))
	require.NoError(t, e.collections.Add(ctx, coll, a))

	members, err := e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.ElementsMatch(t, []rdf.Term{a, b}, members)

	n, err := e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, e.collections.Remove(ctx, coll, a))
	members, err = e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{b}, members)
	n, err = e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIsCollection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	ordered := rdf.IRI(testPrefix + "/coll/o")
	unordered := rdf.IRI(testPrefix + "/coll/u")
	note := rdf.IRI(testPrefix + "/note/1")
	require.NoError(t, e.collections.CreateOrdered(ctx, ordered))
	require.NoError(t, e.collections.CreateUnordered(ctx, unordered))
	require.NoError(t, e.store.Add(ctx, rdf.T(note, vocab.Type, vocab.AS("Note"))))

	for node, want := range map[rdf.Term]bool{
		ordered:   true,
		unordered: true,
		note:      false,
	} {
		ok, err := e.collections.IsCollection(ctx, node)
		require.NoError(t, err)
		assert.Equal(t, want, ok, node.Value)
	}
}

func TestCreateRejectsExistingCollection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/taken")
	require.NoError(t, e.collections.CreateOrdered(ctx, coll))
	require.NoError(t, e.collections.Add(ctx, coll, rdf.IRI(testPrefix+"/item/a")))

	err := e.collections.CreateOrdered(ctx, coll)
	assert.True(t, apperrors.IsConflict(err), "got %v", err)
	err = e.collections.CreateUnordered(ctx, coll)
	assert.True(t, apperrors.IsConflict(err), "got %v", err)

	// The refused creation leaves the live list and its count alone.
	heads, err := e.store.Objects(ctx, coll, vocab.Items)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.NotEqual(t, vocab.Nil, heads[0])

	n, err := e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err := e.collections.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Term{rdf.IRI(testPrefix + "/item/a")}, members)
}

func TestConcurrentAddsKeepCountConsistent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	coll := rdf.IRI(testPrefix + "/coll/concurrent")
	require.NoError(t, e.collections.CreateOrdered(ctx, coll))

	const n = 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			item := rdf.IRI(fmt.Sprintf("%s/item/concurrent-%d", testPrefix, i))
			done <- e.collections.Add(ctx, coll, item)
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-done)
	}

	members, err := e.collections.Members(ctx, coll)
	require.NoError(t, err)
	count, err := e.collections.Count(ctx, coll)
	require.NoError(t, err)
	assert.Len(t, members, n)
	assert.Equal(t, n, count, "cached count tracks the list under concurrency")
}
