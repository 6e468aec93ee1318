// Package vocab defines the vocabularies used on the fact store: the
// ActivityStreams namespace, the Linked Data Platform and security
// namespaces, and a local namespace for instance bookkeeping that is
// never exposed on the wire.
package vocab

import "fedbox/domain/rdf"

const (
	ASNamespace    = "https://www.w3.org/ns/activitystreams#"
	LDPNamespace   = "http://www.w3.org/ns/ldp#"
	SecNamespace   = "https://w3id.org/security#"
	RDFNamespace   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	LocalNamespace = "https://fedbox.dev/ns#"
)

// AS returns an IRI in the ActivityStreams namespace.
func AS(name string) rdf.Term { return rdf.IRI(ASNamespace + name) }

// Sec returns an IRI in the security namespace.
func Sec(name string) rdf.Term { return rdf.IRI(SecNamespace + name) }

// Local returns an IRI in the instance-internal namespace.
func Local(name string) rdf.Term { return rdf.IRI(LocalNamespace + name) }

// Core predicates and well-known nodes.
var (
	Type = rdf.IRI(RDFNamespace + "type")
	// Cons-cell predicates for ordered collection lists.
	First = rdf.IRI(RDFNamespace + "first")
	Rest  = rdf.IRI(RDFNamespace + "rest")
	Nil   = rdf.IRI(RDFNamespace + "nil")

	Inbox     = rdf.IRI(LDPNamespace + "inbox")
	Outbox    = AS("outbox")
	Following = AS("following")
	Followers = AS("followers")

	Actor        = AS("actor")
	AttributedTo = AS("attributedTo")
	Object       = AS("object")
	Target       = AS("target")
	Origin       = AS("origin")
	Instrument   = AS("instrument")

	To       = AS("to")
	Bto      = AS("bto")
	Cc       = AS("cc")
	Bcc      = AS("bcc")
	Audience = AS("audience")

	Items      = AS("items")
	TotalItems = AS("totalItems")
	Likes      = AS("likes")
	Shares     = AS("shares")

	PreferredUsername = AS("preferredUsername")
	Name              = AS("name")
	Endpoints         = AS("endpoints")
	AlsoKnownAs       = AS("alsoKnownAs")
	Href              = AS("href")

	PublicKey     = Sec("publicKey")
	PrivateKey    = Sec("privateKey")
	PublicKeyPem  = Sec("publicKeyPem")
	PrivateKeyPem = Sec("privateKeyPem")
	KeyOwner      = Sec("owner")
	Controller    = Sec("controller")

	// PublicActor is the special audience meaning "everyone".
	PublicActor = AS("Public")

	// Well-known type tags the engine creates or inspects directly.
	OrderedCollectionType = AS("OrderedCollection")
	CollectionType        = AS("Collection")
	TombstoneType         = AS("Tombstone")
	MentionType           = AS("Mention")
	PersonType            = AS("Person")
	ServiceType           = AS("Service")

	// Instance bookkeeping, kept out of every projection.
	IsLocal        = Local("isLocal")
	ReceivedAt     = Local("receivedAt")
	ReceivedIn     = Local("receivedIn")
	Processed      = Local("processed")
	ProcessedAt    = Local("processedAt")
	ProcessResult  = Local("processResult")
	HashedPassword = Local("hashedPassword")
	ServerRole     = Local("serverRole")
)

// Predicate groups used by the authorization rules and the
// federation audience resolution.
var (
	AudiencePredicates = []rdf.Term{To, Cc, Bto, Bcc, Audience}
	AuthorPredicates   = []rdf.Term{Actor, AttributedTo}
	BoxPredicates      = []rdf.Term{Inbox, Outbox, Following, Followers}
	TouchPredicates    = []rdf.Term{Actor, Object, Target, Origin, Instrument}

	// HiddenPredicates are never echoed back to any reader,
	// authorized or not.
	HiddenPredicates = map[rdf.Term]struct{}{
		Bto:           {},
		Bcc:           {},
		PrivateKey:    {},
		PrivateKeyPem: {},
	}
)

// Type sets, per the ActivityStreams vocabulary.
var (
	ActivityTypes = iriSet(
		"Accept", "Add", "Announce", "Arrive", "Block", "Create", "Delete",
		"Dislike", "Flag", "Follow", "Ignore", "Invite", "Join", "Leave",
		"Like", "Listen", "Move", "Offer", "Question", "Read", "Reject",
		"Remove", "TentativeAccept", "TentativeReject", "Travel", "Undo",
		"Update", "View",
	)

	ActorTypes = iriSet("Application", "Group", "Organization", "Person", "Service")

	ObjectTypes = iriSet(
		"Article", "Audio", "Document", "Event", "Image", "Note", "Page",
		"Place", "Profile", "Relationship", "Tombstone", "Video",
	)

	LinkTypes = iriSet("Mention")
)

func iriSet(names ...string) map[rdf.Term]struct{} {
	out := make(map[rdf.Term]struct{}, len(names))
	for _, n := range names {
		out[AS(n)] = struct{}{}
	}
	return out
}

// IsHidden reports whether the predicate must never leave the store.
func IsHidden(pred rdf.Term) bool {
	_, ok := HiddenPredicates[pred]
	return ok
}

// IsInternal reports whether the term belongs to the local
// bookkeeping namespace.
func IsInternal(t rdf.Term) bool {
	return t.IsIRI() && len(t.Value) > len(LocalNamespace) &&
		t.Value[:len(LocalNamespace)] == LocalNamespace
}
