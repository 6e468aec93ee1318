package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TermKind discriminates the three kinds of graph terms.
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

// Common XSD datatypes for literals.
const (
	XSDString   = "http://www.w3.org/2001/XMLSchema#string"
	XSDBoolean  = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDInteger  = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
)

// Term is a node in the fact store: an IRI, a blank node, or a literal.
// Terms are comparable values so they can be used as map keys.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string // literals only
}

// IRI returns an IRI term.
func IRI(value string) Term {
	return Term{Kind: KindIRI, Value: value}
}

// NewBlank returns a fresh blank node with a unique local identifier.
func NewBlank() Term {
	return Term{Kind: KindBlank, Value: "_:" + uuid.NewString()}
}

// Blank returns a blank node with the given local identifier.
func Blank(id string) Term {
	if !strings.HasPrefix(id, "_:") {
		id = "_:" + id
	}
	return Term{Kind: KindBlank, Value: id}
}

// Literal returns a plain string literal.
func Literal(value string) Term {
	return Term{Kind: KindLiteral, Value: value, Datatype: XSDString}
}

// BoolLiteral returns a boolean literal.
func BoolLiteral(v bool) Term {
	return Term{Kind: KindLiteral, Value: strconv.FormatBool(v), Datatype: XSDBoolean}
}

// IntLiteral returns an integer literal.
func IntLiteral(v int) Term {
	return Term{Kind: KindLiteral, Value: strconv.Itoa(v), Datatype: XSDInteger}
}

// TimeLiteral returns a dateTime literal in RFC 3339 form.
func TimeLiteral(t time.Time) Term {
	return Term{Kind: KindLiteral, Value: t.UTC().Format(time.RFC3339Nano), Datatype: XSDDateTime}
}

// IsIRI reports whether the term is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsBlank reports whether the term is a blank node.
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// IsLiteral reports whether the term is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// IsZero reports whether the term is the zero value.
func (t Term) IsZero() bool { return t == Term{} }

// Bool converts a boolean literal; false for anything else.
func (t Term) Bool() bool {
	if t.Kind != KindLiteral {
		return false
	}
	v, _ := strconv.ParseBool(t.Value)
	return v
}

// Int converts an integer literal; 0 for anything else.
func (t Term) Int() int {
	if t.Kind != KindLiteral {
		return 0
	}
	v, _ := strconv.Atoi(t.Value)
	return v
}

// Time converts a dateTime literal; the zero time for anything else.
func (t Term) Time() time.Time {
	if t.Kind != KindLiteral {
		return time.Time{}
	}
	v, _ := time.Parse(time.RFC3339Nano, t.Value)
	return v
}

// Fragment returns the fragment part of an IRI ("" when absent).
func (t Term) Fragment() string {
	if t.Kind != KindIRI {
		return ""
	}
	if i := strings.IndexByte(t.Value, '#'); i >= 0 {
		return t.Value[i+1:]
	}
	return ""
}

// WithoutFragment strips the fragment part of an IRI.
func (t Term) WithoutFragment() Term {
	if t.Kind != KindIRI {
		return t
	}
	if i := strings.IndexByte(t.Value, '#'); i >= 0 {
		return IRI(t.Value[:i])
	}
	return t
}

func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return t.Value
	default:
		return fmt.Sprintf("%q", t.Value)
	}
}

// Triple is a single (subject, predicate, object) fact.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// T is a convenience constructor for a triple.
func T(s, p, o Term) Triple {
	return Triple{Subject: s, Predicate: p, Object: o}
}

func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}
