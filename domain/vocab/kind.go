package vocab

import (
	"strings"

	"fedbox/domain/rdf"
)

// ActivityKind enumerates the activity types with side-effect
// semantics. Dispatch is a static table keyed on the kind, so a
// missing handler is a compile-time visible gap rather than a
// reflective lookup failure.
type ActivityKind int

const (
	KindUnknown ActivityKind = iota
	KindAccept
	KindAdd
	KindAnnounce
	KindCreate
	KindDelete
	KindFollow
	KindLike
	KindReject
	KindRemove
	KindUndo
	KindUpdate
)

var kindByFragment = map[string]ActivityKind{
	"Accept":   KindAccept,
	"Add":      KindAdd,
	"Announce": KindAnnounce,
	"Create":   KindCreate,
	"Delete":   KindDelete,
	"Follow":   KindFollow,
	"Like":     KindLike,
	"Reject":   KindReject,
	"Remove":   KindRemove,
	"Undo":     KindUndo,
	"Update":   KindUpdate,
}

var fragmentByKind = func() map[ActivityKind]string {
	out := make(map[ActivityKind]string, len(kindByFragment))
	for f, k := range kindByFragment {
		out[k] = f
	}
	return out
}()

// KindOf maps an activity type IRI to its kind. Activity types
// without side-effect semantics (Block, Flag, ...) map to KindUnknown.
func KindOf(typeIRI rdf.Term) ActivityKind {
	if !typeIRI.IsIRI() || !strings.HasPrefix(typeIRI.Value, ASNamespace) {
		return KindUnknown
	}
	return kindByFragment[strings.TrimPrefix(typeIRI.Value, ASNamespace)]
}

func (k ActivityKind) String() string {
	if f, ok := fragmentByKind[k]; ok {
		return f
	}
	return "Unknown"
}
