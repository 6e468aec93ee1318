// Package memory provides the in-process graph store backend, used
// in development and tests.
package memory

import (
	"context"
	"sync"

	"fedbox/domain/rdf"
)

// GraphStore keeps all facts in an indexed in-memory graph guarded by
// a single read-write mutex. Per-key locks serialize collection
// mutations the same way the durable backend does, so code paths
// behave identically across backends.
type GraphStore struct {
	mu    sync.RWMutex
	graph *rdf.Graph

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewGraphStore creates an empty store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		graph: rdf.NewGraph(),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *GraphStore) Add(ctx context.Context, triples ...rdf.Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Add(triples...)
	return nil
}

func (s *GraphStore) Remove(ctx context.Context, sub, pred, obj *rdf.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Remove(sub, pred, obj)
	return nil
}

func (s *GraphStore) Set(ctx context.Context, sub, pred rdf.Term, objects ...rdf.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Remove(&sub, &pred, nil)
	for _, o := range objects {
		s.graph.Add(rdf.T(sub, pred, o))
	}
	return nil
}

func (s *GraphStore) Match(ctx context.Context, sub, pred, obj *rdf.Term) ([]rdf.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Match(sub, pred, obj), nil
}

func (s *GraphStore) Has(ctx context.Context, sub, pred, obj *rdf.Term) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Has(sub, pred, obj), nil
}

func (s *GraphStore) Value(ctx context.Context, sub rdf.Term, preds ...rdf.Term) (rdf.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.graph.Value(sub, preds...)
	return v, nil
}

func (s *GraphStore) Objects(ctx context.Context, sub, pred rdf.Term) ([]rdf.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Objects(sub, pred), nil
}

func (s *GraphStore) Subjects(ctx context.Context, pred, obj rdf.Term) ([]rdf.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Subjects(obj, pred), nil
}

func (s *GraphStore) CBD(ctx context.Context, root rdf.Term) (*rdf.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.CBD(root), nil
}

func (s *GraphStore) InsertGraph(ctx context.Context, g *rdf.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Union(g)
	return nil
}

func (s *GraphStore) ReplaceSubject(ctx context.Context, old, new rdf.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.ReplaceTerm(old, new)
	return nil
}

// WithLock serializes callers on a named mutex. Locks are never
// deleted; the key space is bounded by the number of collections.
func (s *GraphStore) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}
