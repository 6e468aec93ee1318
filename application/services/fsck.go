package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
)

// ConsistencyReport lists the problems one check run found and how
// many of them were repaired.
type ConsistencyReport struct {
	Problems []string
	Repaired int
}

func (r *ConsistencyReport) add(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// ConsistencyService detects and optionally repairs structural damage
// the normal mutation paths should never produce: totalItems drift,
// malformed list heads, broken cons-cells and asymmetric alsoKnownAs
// links.
type ConsistencyService struct {
	store  ports.GraphStore
	logger *zap.Logger
}

// NewConsistencyService creates the checker.
func NewConsistencyService(store ports.GraphStore, logger *zap.Logger) *ConsistencyService {
	return &ConsistencyService{store: store, logger: logger}
}

// Check runs every registered check. With repair set, detected
// problems are fixed in place; either way they are all reported.
func (s *ConsistencyService) Check(ctx context.Context, repair bool) (*ConsistencyReport, error) {
	report := &ConsistencyReport{}

	checks := []func(context.Context, *ConsistencyReport, bool) error{
		s.checkCollections,
		s.checkAliasSymmetry,
	}
	for _, check := range checks {
		if err := check(ctx, report, repair); err != nil {
			return report, err
		}
	}

	s.logger.Info("consistency check finished",
		zap.Int("problems", len(report.Problems)),
		zap.Int("repaired", report.Repaired))
	return report, nil
}

func (s *ConsistencyService) checkCollections(ctx context.Context, report *ConsistencyReport, repair bool) error {
	for _, collType := range []rdf.Term{vocab.OrderedCollectionType, vocab.CollectionType} {
		colls, err := s.store.Subjects(ctx, vocab.Type, collType)
		if err != nil {
			return err
		}
		ordered := collType == vocab.OrderedCollectionType
		for _, coll := range colls {
			if err := s.checkCollection(ctx, report, repair, coll, ordered); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ConsistencyService) checkCollection(ctx context.Context, report *ConsistencyReport, repair bool, coll rdf.Term, ordered bool) error {
	actual := 0
	if !ordered {
		members, err := s.store.Objects(ctx, coll, vocab.Items)
		if err != nil {
			return err
		}
		actual = len(members)
	} else {
		heads, err := s.store.Objects(ctx, coll, vocab.Items)
		if err != nil {
			return err
		}
		switch {
		case len(heads) == 0:
			report.add("ordered collection %s has no head pointer", coll.Value)
			if repair {
				if err := s.store.Set(ctx, coll, vocab.Items, vocab.Nil); err != nil {
					return err
				}
				report.Repaired++
			}
		case len(heads) > 1:
			report.add("ordered collection %s has %d head pointers", coll.Value, len(heads))
			if repair {
				if err := s.store.Set(ctx, coll, vocab.Items, heads[0]); err != nil {
					return err
				}
				report.Repaired++
			}
			heads = heads[:1]
		}

		if len(heads) > 0 {
			n, err := s.checkList(ctx, report, repair, coll, heads[0])
			if err != nil {
				return err
			}
			actual = n
		}
	}

	cached, err := s.store.Value(ctx, coll, vocab.TotalItems)
	if err != nil {
		return err
	}
	if cached.Int() != actual {
		report.add("collection %s caches totalItems=%d, actual %d", coll.Value, cached.Int(), actual)
		if repair {
			if err := s.store.Set(ctx, coll, vocab.TotalItems, rdf.IntLiteral(actual)); err != nil {
				return err
			}
			report.Repaired++
		}
	}
	return nil
}

// checkList walks the cons-cell chain, counting valid cells. A cell
// with no member, a missing rest pointer or a cycle truncates the
// list there when repairing.
func (s *ConsistencyService) checkList(ctx context.Context, report *ConsistencyReport, repair bool, coll, head rdf.Term) (int, error) {
	count := 0
	seen := make(map[rdf.Term]struct{})
	prev := rdf.Term{}
	cur := head
	for !cur.IsZero() && cur != vocab.Nil {
		if _, looped := seen[cur]; looped {
			report.add("collection %s list contains a cycle at %s", coll.Value, cur.Value)
			if repair {
				if err := s.truncate(ctx, coll, prev); err != nil {
					return count, err
				}
				report.Repaired++
			}
			return count, nil
		}
		seen[cur] = struct{}{}

		member, err := s.store.Value(ctx, cur, vocab.First)
		if err != nil {
			return count, err
		}
		if member.IsZero() {
			report.add("collection %s has a cell without a member: %s", coll.Value, cur.Value)
			if repair {
				if err := s.truncate(ctx, coll, prev); err != nil {
					return count, err
				}
				report.Repaired++
			}
			return count, nil
		}

		next, err := s.store.Value(ctx, cur, vocab.Rest)
		if err != nil {
			return count, err
		}
		if next.IsZero() {
			report.add("collection %s has a cell without a rest pointer: %s", coll.Value, cur.Value)
			if repair {
				if err := s.store.Set(ctx, cur, vocab.Rest, vocab.Nil); err != nil {
					return count, err
				}
				report.Repaired++
			}
			count++
			return count, nil
		}

		count++
		prev = cur
		cur = next
	}
	return count, nil
}

// truncate ends the list at the given predecessor, or empties it when
// the damage starts at the head.
func (s *ConsistencyService) truncate(ctx context.Context, coll, prev rdf.Term) error {
	if prev.IsZero() {
		return s.store.Set(ctx, coll, vocab.Items, vocab.Nil)
	}
	return s.store.Set(ctx, prev, vocab.Rest, vocab.Nil)
}

// checkAliasSymmetry verifies every alsoKnownAs link is mirrored.
func (s *ConsistencyService) checkAliasSymmetry(ctx context.Context, report *ConsistencyReport, repair bool) error {
	links, err := s.store.Match(ctx, nil, &vocab.AlsoKnownAs, nil)
	if err != nil {
		return err
	}
	for _, link := range links {
		back, err := s.store.Has(ctx, &link.Object, &vocab.AlsoKnownAs, &link.Subject)
		if err != nil {
			return err
		}
		if back {
			continue
		}
		report.add("alsoKnownAs link %s -> %s has no mirror", link.Subject.Value, link.Object.Value)
		if repair {
			if err := s.store.Add(ctx, rdf.T(link.Object, vocab.AlsoKnownAs, link.Subject)); err != nil {
				return err
			}
			report.Repaired++
		}
	}
	return nil
}
