package services

import (
	"context"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
)

// ProjectorService extracts the authorized, self-contained view of a
// node used for serialization.
type ProjectorService struct {
	store  ports.GraphStore
	authz  *AuthorizationService
	logger *zap.Logger
}

// NewProjectorService creates the bounded-description projector.
func NewProjectorService(store ports.GraphStore, authz *AuthorizationService, logger *zap.Logger) *ProjectorService {
	return &ProjectorService{store: store, authz: authz, logger: logger}
}

// BoundedDescription accumulates the CBD of uri and, breadth-first,
// the CBDs of every same-document fragment node it references. Such
// nodes (a key under #main-key, an endpoints record) are not
// dereferencable on their own, so the description must carry them.
// The result is filtered to what actor may read.
func (s *ProjectorService) BoundedDescription(ctx context.Context, uri, actor rdf.Term) (*rdf.Graph, error) {
	acc := rdf.NewGraph()
	doc := uri.WithoutFragment()

	queue := []rdf.Term{uri}
	seen := map[rdf.Term]struct{}{uri: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		cbd, err := s.store.CBD(ctx, cur)
		if err != nil {
			return nil, err
		}
		acc.Union(cbd)

		for _, t := range cbd.Triples() {
			o := t.Object
			if !o.IsIRI() || o.Fragment() == "" || o.WithoutFragment() != doc {
				continue
			}
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			queue = append(queue, o)
		}
	}

	return s.authz.FilterAuthorized(ctx, actor, acc)
}
