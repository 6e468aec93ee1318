package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fedbox/domain/rdf"
	"fedbox/infrastructure/codec"
	"fedbox/infrastructure/persistence/memory"
)

const testPrefix = "https://example.com"

// fakeTransport serves canned documents and records deliveries, so
// federation paths run without a network.
type fakeTransport struct {
	mu    sync.Mutex
	docs  map[string][]byte
	fail  map[string]bool
	posts []fakeDelivery
	gets  []string
}

type fakeDelivery struct {
	onBehalfOf string
	inbox      string
	body       []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		docs: make(map[string][]byte),
		fail: make(map[string]bool),
	}
}

func (f *fakeTransport) Get(ctx context.Context, onBehalfOf, iri string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, iri)
	doc, ok := f.docs[iri]
	if !ok {
		return nil, fmt.Errorf("no document at %s", iri)
	}
	return doc, nil
}

func (f *fakeTransport) Post(ctx context.Context, onBehalfOf, inbox string, body []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[inbox] {
		return 0, fmt.Errorf("connection refused")
	}
	f.posts = append(f.posts, fakeDelivery{onBehalfOf: onBehalfOf, inbox: inbox, body: body})
	return 202, nil
}

func (f *fakeTransport) deliveredTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, p.inbox)
	}
	return out
}

// testEngine wires the full service stack over the in-memory store
// with a fake transport and the local prefix registered.
type testEngine struct {
	store       *memory.GraphStore
	transport   *fakeTransport
	prefixes    *PrefixService
	authz       *AuthorizationService
	collections *CollectionService
	projector   *ProjectorService
	federation  *FederationService
	activities  *ActivityService
	actors      *ActorService
	consistency *ConsistencyService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewGraphStore()
	transport := newFakeTransport()

	prefixes := NewPrefixService(store, logger)
	authz := NewAuthorizationService(store, prefixes, logger)
	collections := NewCollectionService(store, logger)
	projector := NewProjectorService(store, authz, logger)
	federation := NewFederationService(store, projector, codec.New(), transport, prefixes, nil, logger)
	activities := NewActivityService(store, collections, authz, federation, prefixes, nil, nil, logger)
	actors := NewActorService(store, collections, logger)
	consistency := NewConsistencyService(store, logger)

	_, err := prefixes.RegisterLocal(context.Background(), testPrefix)
	require.NoError(t, err)

	return &testEngine{
		store:       store,
		transport:   transport,
		prefixes:    prefixes,
		authz:       authz,
		collections: collections,
		projector:   projector,
		federation:  federation,
		activities:  activities,
		actors:      actors,
		consistency: consistency,
	}
}

func (e *testEngine) mustActor(t *testing.T, username string) rdf.Term {
	t.Helper()
	actor, err := e.actors.Create(context.Background(), CreateActorOptions{
		Prefix:   testPrefix,
		Username: username,
	})
	require.NoError(t, err)
	return actor
}

func (e *testEngine) box(t *testing.T, actor, pred rdf.Term) rdf.Term {
	t.Helper()
	v, err := e.store.Value(context.Background(), actor, pred)
	require.NoError(t, err)
	require.False(t, v.IsZero(), "actor %s has no %s", actor.Value, pred.Value)
	return v
}

// seedRemoteActor registers a wire document for a remote actor so the
// distributor can pull it.
func (e *testEngine) seedRemoteActor(iri, inbox string) {
	doc := fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": %q,
		"type": "Person",
		"inbox": %q
	}`, iri, inbox)
	e.transport.docs[iri] = []byte(doc)
}
