// Package codec translates between ActivityStreams JSON documents and
// fact graphs. It is a pragmatic mapping over the small vocabulary the
// engine uses, not a general JSON-LD processor: terms outside the
// known namespaces round-trip as full IRI keys.
package codec

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	apperrors "fedbox/pkg/errors"
)

const (
	asContext  = "https://www.w3.org/ns/activitystreams"
	secContext = "https://w3id.org/security/v1"
)

// iriValued lists the properties whose string values are references,
// not text.
var iriValued = map[string]struct{}{
	"actor": {}, "attributedTo": {}, "object": {}, "target": {},
	"origin": {}, "instrument": {}, "to": {}, "cc": {}, "bto": {},
	"bcc": {}, "audience": {}, "inbox": {}, "outbox": {},
	"following": {}, "followers": {}, "likes": {}, "shares": {},
	"items": {}, "orderedItems": {}, "publicKey": {}, "owner": {},
	"controller": {}, "href": {}, "alsoKnownAs": {}, "endpoints": {},
}

// alwaysList lists the properties rendered as arrays even when they
// hold a single value.
var alwaysList = map[string]struct{}{
	"to": {}, "cc": {}, "bto": {}, "bcc": {},
	"audience": {}, "items": {}, "orderedItems": {},
}

// nameToPredicate maps the wire names that do not live in the
// ActivityStreams namespace.
var nameToPredicate = map[string]rdf.Term{
	"inbox":         vocab.Inbox,
	"publicKey":     vocab.PublicKey,
	"publicKeyPem":  vocab.PublicKeyPem,
	"privateKeyPem": vocab.PrivateKeyPem,
	"owner":         vocab.KeyOwner,
	"controller":    vocab.Controller,
}

var predicateToName = func() map[rdf.Term]string {
	out := make(map[rdf.Term]string, len(nameToPredicate))
	for n, p := range nameToPredicate {
		out[p] = n
	}
	return out
}()

// ActivityJSON is the default ports.Codec implementation.
type ActivityJSON struct{}

// New creates the codec.
func New() *ActivityJSON {
	return &ActivityJSON{}
}

// Decode parses a wire document into a graph. Nodes without an id
// become blank nodes; orderedItems arrays become the cons-cell list
// layout the collection manager maintains.
func (c *ActivityJSON) Decode(data []byte) (*rdf.Graph, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewValidationError("document is not valid JSON: " + err.Error())
	}
	g := rdf.NewGraph()
	if _, err := decodeNode(g, doc); err != nil {
		return nil, err
	}
	return g, nil
}

func decodeNode(g *rdf.Graph, doc map[string]interface{}) (rdf.Term, error) {
	var node rdf.Term
	if id, ok := doc["id"].(string); ok && id != "" {
		node = rdf.IRI(id)
	} else {
		node = rdf.NewBlank()
	}

	for key, raw := range doc {
		switch key {
		case "id", "@context":
			continue
		case "type":
			for _, v := range asSlice(raw) {
				name, ok := v.(string)
				if !ok {
					continue
				}
				g.Add(rdf.T(node, vocab.Type, typeTerm(name)))
			}
			continue
		case "totalItems":
			if n, ok := raw.(float64); ok {
				g.Add(rdf.T(node, vocab.TotalItems, rdf.IntLiteral(int(n))))
			}
			continue
		case "orderedItems":
			if err := decodeOrderedItems(g, node, asSlice(raw)); err != nil {
				return rdf.Term{}, err
			}
			continue
		}

		pred := predicateFor(key)
		for _, v := range asSlice(raw) {
			obj, err := decodeValue(g, key, v)
			if err != nil {
				return rdf.Term{}, err
			}
			if obj.IsZero() {
				continue
			}
			g.Add(rdf.T(node, pred, obj))
		}
	}
	return node, nil
}

func decodeValue(g *rdf.Graph, key string, v interface{}) (rdf.Term, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return decodeNode(g, val)
	case string:
		if _, ok := iriValued[key]; ok {
			return rdf.IRI(val), nil
		}
		return rdf.Literal(val), nil
	case bool:
		return rdf.BoolLiteral(val), nil
	case float64:
		if val == math.Trunc(val) {
			return rdf.IntLiteral(int(val)), nil
		}
		return rdf.Literal(jsonFloat(val)), nil
	case nil:
		return rdf.Term{}, nil
	default:
		return rdf.Term{}, apperrors.NewValidationError("unsupported value for " + key)
	}
}

func asSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return []interface{}{v}
}

func jsonFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// decodeOrderedItems rebuilds the cons-cell list for an ordered
// collection received off the wire.
func decodeOrderedItems(g *rdf.Graph, coll rdf.Term, items []interface{}) error {
	head := vocab.Nil
	for i := len(items) - 1; i >= 0; i-- {
		member, err := decodeValue(g, "orderedItems", items[i])
		if err != nil {
			return err
		}
		if member.IsZero() {
			continue
		}
		cell := rdf.NewBlank()
		g.Add(rdf.T(cell, vocab.First, member), rdf.T(cell, vocab.Rest, head))
		head = cell
	}
	g.Add(rdf.T(coll, vocab.Items, head))
	return nil
}

func predicateFor(key string) rdf.Term {
	if p, ok := nameToPredicate[key]; ok {
		return p
	}
	if strings.Contains(key, "://") {
		return rdf.IRI(key)
	}
	return vocab.AS(key)
}

func typeTerm(name string) rdf.Term {
	if strings.Contains(name, "://") {
		return rdf.IRI(name)
	}
	return vocab.AS(name)
}

// Encode renders the fragment rooted at root as a wire document.
// Blank nodes and same-document fragment references nest inline;
// everything else stays a bare IRI string.
func (c *ActivityJSON) Encode(g *rdf.Graph, root rdf.Term) ([]byte, error) {
	doc := encodeNode(g, root, map[rdf.Term]struct{}{root: {}})
	doc["@context"] = documentContext(g)
	return json.Marshal(doc)
}

func documentContext(g *rdf.Graph) interface{} {
	for _, t := range g.Triples() {
		if strings.HasPrefix(t.Predicate.Value, vocab.SecNamespace) {
			return []interface{}{asContext, secContext}
		}
	}
	return asContext
}

func encodeNode(g *rdf.Graph, node rdf.Term, rendering map[rdf.Term]struct{}) map[string]interface{} {
	doc := make(map[string]interface{})
	if node.IsIRI() {
		doc["id"] = node.Value
	}

	byKey := make(map[string][]interface{})
	ordered := false
	for _, t := range g.Match(&node, nil, nil) {
		if t.Predicate == vocab.Type && t.Object == vocab.OrderedCollectionType {
			ordered = true
		}
		if t.Predicate == vocab.Items {
			continue // rendered as items/orderedItems below
		}
		key := keyFor(t.Predicate)
		byKey[key] = append(byKey[key], encodeValue(g, t.Predicate, t.Object, rendering))
	}

	if ordered {
		doc["orderedItems"] = encodeList(g, node, rendering)
	} else if members := g.Objects(node, vocab.Items); len(members) > 0 {
		items := make([]interface{}, 0, len(members))
		for _, m := range members {
			items = append(items, encodeValue(g, vocab.Items, m, rendering))
		}
		doc["items"] = items
	}

	for key, vals := range byKey {
		sortStable(vals)
		if _, list := alwaysList[key]; !list && len(vals) == 1 {
			doc[key] = vals[0]
			continue
		}
		doc[key] = vals
	}
	return doc
}

// encodeList walks the cons-cell chain into an orderedItems array.
func encodeList(g *rdf.Graph, coll rdf.Term, rendering map[rdf.Term]struct{}) []interface{} {
	out := make([]interface{}, 0)
	cur, _ := g.Value(coll, vocab.Items)
	seen := make(map[rdf.Term]struct{})
	for !cur.IsZero() && cur != vocab.Nil {
		if _, looped := seen[cur]; looped {
			break
		}
		seen[cur] = struct{}{}
		member, ok := g.Value(cur, vocab.First)
		if !ok {
			break
		}
		out = append(out, encodeValue(g, vocab.First, member, rendering))
		cur, _ = g.Value(cur, vocab.Rest)
	}
	return out
}

func encodeValue(g *rdf.Graph, pred, obj rdf.Term, rendering map[rdf.Term]struct{}) interface{} {
	switch obj.Kind {
	case rdf.KindLiteral:
		switch obj.Datatype {
		case rdf.XSDBoolean:
			return obj.Bool()
		case rdf.XSDInteger:
			return obj.Int()
		default:
			return obj.Value
		}
	case rdf.KindBlank:
		if _, busy := rendering[obj]; busy {
			return nil
		}
		rendering[obj] = struct{}{}
		defer delete(rendering, obj)
		return encodeNode(g, obj, rendering)
	default:
		if pred == vocab.Type {
			if strings.HasPrefix(obj.Value, vocab.ASNamespace) {
				return strings.TrimPrefix(obj.Value, vocab.ASNamespace)
			}
			return obj.Value
		}
		// Nest same-document fragments that carry facts; keep plain
		// references as strings.
		if _, busy := rendering[obj]; !busy && obj.Fragment() != "" && len(g.Match(&obj, nil, nil)) > 0 {
			rendering[obj] = struct{}{}
			defer delete(rendering, obj)
			return encodeNode(g, obj, rendering)
		}
		return obj.Value
	}
}

func keyFor(pred rdf.Term) string {
	if pred == vocab.Type {
		return "type"
	}
	if n, ok := predicateToName[pred]; ok {
		return n
	}
	if strings.HasPrefix(pred.Value, vocab.ASNamespace) {
		return strings.TrimPrefix(pred.Value, vocab.ASNamespace)
	}
	return pred.Value
}

// sortStable keeps scalar output deterministic across map iteration.
func sortStable(vals []interface{}) {
	sort.SliceStable(vals, func(i, j int) bool {
		a, aok := vals[i].(string)
		b, bok := vals[j].(string)
		if aok && bok {
			return a < b
		}
		return aok && !bok
	})
}
