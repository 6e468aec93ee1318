package rdf

// Graph is an in-memory fact set with subject, predicate and object
// indexes. Traversal is index lookup rather than pointer chasing, so
// cyclic references between nodes need no special handling. Graph is
// not safe for concurrent use; the persistence layer adds locking.
type Graph struct {
	triples map[Triple]struct{}
	bySubj  map[Term]map[Triple]struct{}
	byPred  map[Term]map[Triple]struct{}
	byObj   map[Term]map[Triple]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		triples: make(map[Triple]struct{}),
		bySubj:  make(map[Term]map[Triple]struct{}),
		byPred:  make(map[Term]map[Triple]struct{}),
		byObj:   make(map[Term]map[Triple]struct{}),
	}
}

// Len returns the number of facts.
func (g *Graph) Len() int { return len(g.triples) }

// Add inserts facts, ignoring duplicates.
func (g *Graph) Add(ts ...Triple) {
	for _, t := range ts {
		if _, ok := g.triples[t]; ok {
			continue
		}
		g.triples[t] = struct{}{}
		addIndex(g.bySubj, t.Subject, t)
		addIndex(g.byPred, t.Predicate, t)
		addIndex(g.byObj, t.Object, t)
	}
}

func addIndex(idx map[Term]map[Triple]struct{}, key Term, t Triple) {
	m, ok := idx[key]
	if !ok {
		m = make(map[Triple]struct{})
		idx[key] = m
	}
	m[t] = struct{}{}
}

// Remove deletes every fact matching the pattern; nil means wildcard.
func (g *Graph) Remove(s, p, o *Term) {
	for _, t := range g.Match(s, p, o) {
		delete(g.triples, t)
		deleteIndex(g.bySubj, t.Subject, t)
		deleteIndex(g.byPred, t.Predicate, t)
		deleteIndex(g.byObj, t.Object, t)
	}
}

func deleteIndex(idx map[Term]map[Triple]struct{}, key Term, t Triple) {
	if m, ok := idx[key]; ok {
		delete(m, t)
		if len(m) == 0 {
			delete(idx, key)
		}
	}
}

// Set replaces every (subject, predicate, *) fact with the given one.
func (g *Graph) Set(t Triple) {
	g.Remove(&t.Subject, &t.Predicate, nil)
	g.Add(t)
}

// Match returns all facts matching the pattern; nil means wildcard.
// The narrowest available index drives the scan.
func (g *Graph) Match(s, p, o *Term) []Triple {
	var candidates map[Triple]struct{}
	switch {
	case s != nil:
		candidates = g.bySubj[*s]
	case o != nil:
		candidates = g.byObj[*o]
	case p != nil:
		candidates = g.byPred[*p]
	default:
		candidates = g.triples
	}

	var out []Triple
	for t := range candidates {
		if s != nil && t.Subject != *s {
			continue
		}
		if p != nil && t.Predicate != *p {
			continue
		}
		if o != nil && t.Object != *o {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Has reports whether any fact matches the pattern.
func (g *Graph) Has(s, p, o *Term) bool {
	return len(g.Match(s, p, o)) > 0
}

// HasTriple reports whether the exact fact is present.
func (g *Graph) HasTriple(t Triple) bool {
	_, ok := g.triples[t]
	return ok
}

// Value returns one object for (subject, predicate), if any. When
// several predicates are given, the first one with a value wins.
func (g *Graph) Value(s Term, preds ...Term) (Term, bool) {
	for _, p := range preds {
		for t := range g.bySubj[s] {
			if t.Predicate == p {
				return t.Object, true
			}
		}
	}
	return Term{}, false
}

// Objects returns the distinct objects of (subject, anyOf(preds)).
func (g *Graph) Objects(s Term, preds ...Term) []Term {
	seen := make(map[Term]struct{})
	var out []Term
	for t := range g.bySubj[s] {
		for _, p := range preds {
			if t.Predicate == p {
				if _, ok := seen[t.Object]; !ok {
					seen[t.Object] = struct{}{}
					out = append(out, t.Object)
				}
				break
			}
		}
	}
	return out
}

// Subjects returns the distinct subjects of (anyOf(preds), object).
func (g *Graph) Subjects(o Term, preds ...Term) []Term {
	seen := make(map[Term]struct{})
	var out []Term
	for t := range g.byObj[o] {
		for _, p := range preds {
			if t.Predicate == p {
				if _, ok := seen[t.Subject]; !ok {
					seen[t.Subject] = struct{}{}
					out = append(out, t.Subject)
				}
				break
			}
		}
	}
	return out
}

// SubjectSet returns every distinct subject in the graph.
func (g *Graph) SubjectSet() map[Term]struct{} {
	out := make(map[Term]struct{}, len(g.bySubj))
	for s := range g.bySubj {
		out[s] = struct{}{}
	}
	return out
}

// Triples returns all facts in unspecified order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, 0, len(g.triples))
	for t := range g.triples {
		out = append(out, t)
	}
	return out
}

// Union adds every fact of other into g.
func (g *Graph) Union(other *Graph) {
	for t := range other.triples {
		g.Add(t)
	}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	out.Union(g)
	return out
}

// CBD computes the concise bounded description of node: every fact
// whose subject is the node, recursively including facts about blank
// nodes reached as objects.
func (g *Graph) CBD(node Term) *Graph {
	out := NewGraph()
	queue := []Term{node}
	seen := map[Term]struct{}{node: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for t := range g.bySubj[cur] {
			out.Add(t)
			if t.Object.IsBlank() {
				if _, ok := seen[t.Object]; !ok {
					seen[t.Object] = struct{}{}
					queue = append(queue, t.Object)
				}
			}
		}
	}
	return out
}

// Roots returns the subjects that never appear as an object.
func (g *Graph) Roots() []Term {
	var out []Term
	for s := range g.bySubj {
		if _, ok := g.byObj[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Connected reports whether every node of the graph is reachable from
// root by following facts subject-to-object.
func (g *Graph) Connected(root Term) bool {
	reached := map[Term]struct{}{root: {}}
	queue := []Term{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for t := range g.bySubj[cur] {
			if _, ok := reached[t.Object]; !ok {
				reached[t.Object] = struct{}{}
				queue = append(queue, t.Object)
			}
		}
	}

	for s := range g.bySubj {
		if _, ok := reached[s]; !ok {
			return false
		}
	}
	for o := range g.byObj {
		if _, ok := reached[o]; !ok {
			return false
		}
	}
	return true
}

// ReplaceTerm rewrites every fact referencing old to reference new,
// in subject and object position.
func (g *Graph) ReplaceTerm(old, new Term) {
	for _, t := range g.Match(&old, nil, nil) {
		g.Remove(&t.Subject, &t.Predicate, &t.Object)
		g.Add(Triple{Subject: new, Predicate: t.Predicate, Object: t.Object})
	}
	for _, t := range g.Match(nil, nil, &old) {
		g.Remove(&t.Subject, &t.Predicate, &t.Object)
		g.Add(Triple{Subject: t.Subject, Predicate: t.Predicate, Object: new})
	}
}
