package services

import (
	"context"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

// walkLimit caps linked-list traversal so a corrupted cyclic list
// cannot hang a request before the consistency checker finds it.
const walkLimit = 100000

// CollectionService maintains ordered and unordered containers.
// Ordered collections are a singly linked list of cons-cells reached
// from the collection node via an items edge; insertion prepends, so
// member order is most-recent-first. All mutations serialize on the
// collection subject to keep the head pointer and the cached
// totalItems count consistent under concurrent deliveries.
type CollectionService struct {
	store  ports.GraphStore
	logger *zap.Logger
}

// NewCollectionService creates the collection manager.
func NewCollectionService(store ports.GraphStore, logger *zap.Logger) *CollectionService {
	return &CollectionService{store: store, logger: logger}
}

// CreateOrdered creates an empty ordered collection at iri. An iri
// that already names a collection is refused: a second creation would
// plant a second head pointer and zero the count.
func (s *CollectionService) CreateOrdered(ctx context.Context, iri rdf.Term) error {
	return s.store.WithLock(ctx, iri.Value, func(ctx context.Context) error {
		if err := s.requireFresh(ctx, iri); err != nil {
			return err
		}
		if err := s.store.Add(ctx,
			rdf.T(iri, vocab.Type, vocab.OrderedCollectionType),
			rdf.T(iri, vocab.Items, vocab.Nil),
		); err != nil {
			return err
		}
		return s.store.Set(ctx, iri, vocab.TotalItems, rdf.IntLiteral(0))
	})
}

// CreateUnordered creates an empty unordered collection at iri,
// refusing iris that already name a collection.
func (s *CollectionService) CreateUnordered(ctx context.Context, iri rdf.Term) error {
	return s.store.WithLock(ctx, iri.Value, func(ctx context.Context) error {
		if err := s.requireFresh(ctx, iri); err != nil {
			return err
		}
		if err := s.store.Add(ctx, rdf.T(iri, vocab.Type, vocab.CollectionType)); err != nil {
			return err
		}
		return s.store.Set(ctx, iri, vocab.TotalItems, rdf.IntLiteral(0))
	})
}

func (s *CollectionService) requireFresh(ctx context.Context, iri rdf.Term) error {
	exists, err := s.IsCollection(ctx, iri)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.NewConflictError("collection " + iri.Value + " already exists")
	}
	return nil
}

// IsCollection reports whether the node is a collection of either kind.
func (s *CollectionService) IsCollection(ctx context.Context, iri rdf.Term) (bool, error) {
	for _, t := range []rdf.Term{vocab.OrderedCollectionType, vocab.CollectionType} {
		ok, err := s.store.Has(ctx, &iri, &vocab.Type, &t)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (s *CollectionService) isOrdered(ctx context.Context, iri rdf.Term) (bool, error) {
	return s.store.Has(ctx, &iri, &vocab.Type, &vocab.OrderedCollectionType)
}

// Add inserts item into the collection. Items already present are
// left alone; the count does not move.
func (s *CollectionService) Add(ctx context.Context, coll, item rdf.Term) error {
	return s.store.WithLock(ctx, coll.Value, func(ctx context.Context) error {
		ordered, err := s.isOrdered(ctx, coll)
		if err != nil {
			return err
		}
		if !ordered {
			present, err := s.store.Has(ctx, &coll, &vocab.Items, &item)
			if err != nil {
				return err
			}
			if present {
				return nil
			}
			if err := s.store.Add(ctx, rdf.T(coll, vocab.Items, item)); err != nil {
				return err
			}
			return s.adjustCount(ctx, coll, 1)
		}

		cells, err := s.walk(ctx, coll)
		if err != nil {
			return err
		}
		for _, c := range cells {
			if c.member == item {
				return nil
			}
		}

		// Prepend a fresh head cell.
		head := vocab.Nil
		if len(cells) > 0 {
			head = cells[0].cell
		}
		cell := rdf.NewBlank()
		if err := s.store.Add(ctx,
			rdf.T(cell, vocab.First, item),
			rdf.T(cell, vocab.Rest, head),
		); err != nil {
			return err
		}
		if err := s.store.Set(ctx, coll, vocab.Items, cell); err != nil {
			return err
		}
		return s.adjustCount(ctx, coll, 1)
	})
}

// Remove splices item out of the collection. Absent items are a no-op.
func (s *CollectionService) Remove(ctx context.Context, coll, item rdf.Term) error {
	return s.store.WithLock(ctx, coll.Value, func(ctx context.Context) error {
		ordered, err := s.isOrdered(ctx, coll)
		if err != nil {
			return err
		}
		if !ordered {
			present, err := s.store.Has(ctx, &coll, &vocab.Items, &item)
			if err != nil {
				return err
			}
			if !present {
				return nil
			}
			if err := s.store.Remove(ctx, &coll, &vocab.Items, &item); err != nil {
				return err
			}
			return s.adjustCount(ctx, coll, -1)
		}

		cells, err := s.walk(ctx, coll)
		if err != nil {
			return err
		}
		for i, c := range cells {
			if c.member != item {
				continue
			}
			// Relink the predecessor, then drop the cell's facts.
			if i == 0 {
				if err := s.store.Set(ctx, coll, vocab.Items, c.next); err != nil {
					return err
				}
			} else {
				if err := s.store.Set(ctx, cells[i-1].cell, vocab.Rest, c.next); err != nil {
					return err
				}
			}
			if err := s.store.Remove(ctx, &c.cell, nil, nil); err != nil {
				return err
			}
			return s.adjustCount(ctx, coll, -1)
		}
		return nil
	})
}

// Members returns the collection's members, most recent first for
// ordered collections.
func (s *CollectionService) Members(ctx context.Context, coll rdf.Term) ([]rdf.Term, error) {
	ordered, err := s.isOrdered(ctx, coll)
	if err != nil {
		return nil, err
	}
	if !ordered {
		return s.store.Objects(ctx, coll, vocab.Items)
	}
	cells, err := s.walk(ctx, coll)
	if err != nil {
		return nil, err
	}
	out := make([]rdf.Term, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.member)
	}
	return out, nil
}

// Count returns the cached totalItems value.
func (s *CollectionService) Count(ctx context.Context, coll rdf.Term) (int, error) {
	v, err := s.store.Value(ctx, coll, vocab.TotalItems)
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}

type consCell struct {
	cell   rdf.Term
	member rdf.Term
	next   rdf.Term
}

// walk follows the cons-cell chain from the collection's items edge.
func (s *CollectionService) walk(ctx context.Context, coll rdf.Term) ([]consCell, error) {
	head, err := s.store.Value(ctx, coll, vocab.Items)
	if err != nil {
		return nil, err
	}

	var out []consCell
	cur := head
	for steps := 0; !cur.IsZero() && cur != vocab.Nil; steps++ {
		if steps >= walkLimit {
			return nil, apperrors.NewInternalError("collection list exceeds walk limit: " + coll.Value)
		}
		member, err := s.store.Value(ctx, cur, vocab.First)
		if err != nil {
			return nil, err
		}
		next, err := s.store.Value(ctx, cur, vocab.Rest)
		if err != nil {
			return nil, err
		}
		if member.IsZero() {
			return nil, apperrors.NewInternalError("malformed list cell in " + coll.Value)
		}
		out = append(out, consCell{cell: cur, member: member, next: next})
		cur = next
	}
	return out, nil
}

func (s *CollectionService) adjustCount(ctx context.Context, coll rdf.Term, delta int) error {
	v, err := s.store.Value(ctx, coll, vocab.TotalItems)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, coll, vocab.TotalItems, rdf.IntLiteral(v.Int()+delta))
}
