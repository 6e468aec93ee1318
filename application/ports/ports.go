package ports

import (
	"context"

	"fedbox/domain/events"
	"fedbox/domain/rdf"
)

// GraphStore defines the interface for fact persistence.
// This is a port in hexagonal architecture - the services don't know about the implementation.
type GraphStore interface {
	// Add inserts triples into the store
	Add(ctx context.Context, triples ...rdf.Triple) error

	// Remove deletes every triple matching the pattern; nil terms are wildcards
	Remove(ctx context.Context, s, p, o *rdf.Term) error

	// Set replaces all objects of (s, p) with the given objects
	Set(ctx context.Context, s, p rdf.Term, objects ...rdf.Term) error

	// Match returns every triple matching the pattern; nil terms are wildcards
	Match(ctx context.Context, s, p, o *rdf.Term) ([]rdf.Triple, error)

	// Has reports whether any triple matches the pattern
	Has(ctx context.Context, s, p, o *rdf.Term) (bool, error)

	// Value returns one object of (s, pred) for the first predicate that
	// has one, or the zero term when none do
	Value(ctx context.Context, s rdf.Term, preds ...rdf.Term) (rdf.Term, error)

	// Objects returns all objects of (s, p)
	Objects(ctx context.Context, s, p rdf.Term) ([]rdf.Term, error)

	// Subjects returns all subjects of (p, o)
	Subjects(ctx context.Context, p, o rdf.Term) ([]rdf.Term, error)

	// CBD returns the concise bounded description of root: its triples
	// plus, recursively, those of every blank node it references
	CBD(ctx context.Context, root rdf.Term) (*rdf.Graph, error)

	// InsertGraph adds every triple of g
	InsertGraph(ctx context.Context, g *rdf.Graph) error

	// ReplaceSubject rewrites old to new in every subject and object position
	ReplaceSubject(ctx context.Context, old, new rdf.Term) error

	// WithLock runs fn while holding an exclusive lock on key. Collection
	// mutations serialize on the collection subject to keep the linked
	// list and its cached size consistent.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Codec translates between ActivityStreams wire documents and facts.
type Codec interface {
	// Decode parses a wire document into a graph. Nodes without an id
	// become blank nodes.
	Decode(data []byte) (*rdf.Graph, error)

	// Encode renders the fragment rooted at root as a wire document
	Encode(g *rdf.Graph, root rdf.Term) ([]byte, error)
}

// ActivityTransport performs signed federation requests on behalf of
// a local actor.
type ActivityTransport interface {
	// Get fetches iri, signing the request with onBehalfOf's key
	Get(ctx context.Context, onBehalfOf, iri string) ([]byte, error)

	// Post delivers body to inbox, signing with onBehalfOf's key.
	// Returns the response status code.
	Post(ctx context.Context, onBehalfOf, inbox string, body []byte) (int, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
