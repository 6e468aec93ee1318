// Package dynamodb provides the durable graph store backend on a
// single DynamoDB table: one item per fact, keyed by subject, with a
// global secondary index keyed by object for reverse lookups.
package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fedbox/domain/rdf"
	"fedbox/infrastructure/persistence/schema"
	apperrors "fedbox/pkg/errors"
)

const (
	lockLease   = 10 * time.Second
	lockTimeout = 5 * time.Second
)

// tripleItem is the persisted form of one fact. PK/SK give triple
// uniqueness under the subject; GSI1PK/GSI1SK expose the same fact
// under the object.
type tripleItem struct {
	PK     string `dynamodbav:"PK"`     // encoded subject
	SK     string `dynamodbav:"SK"`     // encoded predicate | encoded object
	GSI1PK string `dynamodbav:"GSI1PK"` // encoded object
	GSI1SK string `dynamodbav:"GSI1SK"` // encoded predicate | encoded subject

	Subject   string `dynamodbav:"Subject"`
	Predicate string `dynamodbav:"Predicate"`
	Object    string `dynamodbav:"Object"`
}

// GraphStore implements fact persistence on DynamoDB.
type GraphStore struct {
	client    *dynamodb.Client
	tableName string
	lock      *BoxLock
	logger    *zap.Logger
}

// NewGraphStore creates the DynamoDB-backed store.
func NewGraphStore(client *dynamodb.Client, tableName string, lock *BoxLock, logger *zap.Logger) *GraphStore {
	return &GraphStore{
		client:    client,
		tableName: tableName,
		lock:      lock,
		logger:    logger,
	}
}

// encodeTerm flattens a term to a sortable string. The kind prefix
// keeps IRIs, blank nodes and literals from colliding.
func encodeTerm(t rdf.Term) string {
	switch t.Kind {
	case rdf.KindIRI:
		return "i " + t.Value
	case rdf.KindBlank:
		return "b " + t.Value
	default:
		return "l " + t.Datatype + " " + t.Value
	}
}

func decodeTerm(s string) (rdf.Term, error) {
	kind, rest, ok := strings.Cut(s, " ")
	if !ok {
		return rdf.Term{}, apperrors.NewStoreError("decode", fmt.Errorf("malformed term %q", s))
	}
	switch kind {
	case "i":
		return rdf.IRI(rest), nil
	case "b":
		return rdf.Blank(rest), nil
	case "l":
		datatype, value, ok := strings.Cut(rest, " ")
		if !ok {
			return rdf.Term{}, apperrors.NewStoreError("decode", fmt.Errorf("malformed literal %q", s))
		}
		return rdf.Term{Kind: rdf.KindLiteral, Value: value, Datatype: datatype}, nil
	default:
		return rdf.Term{}, apperrors.NewStoreError("decode", fmt.Errorf("unknown term kind %q", kind))
	}
}

func newItem(t rdf.Triple) tripleItem {
	s, p, o := encodeTerm(t.Subject), encodeTerm(t.Predicate), encodeTerm(t.Object)
	return tripleItem{
		PK:        s,
		SK:        p + "|" + o,
		GSI1PK:    o,
		GSI1SK:    p + "|" + s,
		Subject:   s,
		Predicate: p,
		Object:    o,
	}
}

func (i tripleItem) triple() (rdf.Triple, error) {
	s, err := decodeTerm(i.Subject)
	if err != nil {
		return rdf.Triple{}, err
	}
	p, err := decodeTerm(i.Predicate)
	if err != nil {
		return rdf.Triple{}, err
	}
	o, err := decodeTerm(i.Object)
	if err != nil {
		return rdf.Triple{}, err
	}
	return rdf.T(s, p, o), nil
}

func (s *GraphStore) Add(ctx context.Context, triples ...rdf.Triple) error {
	for _, t := range triples {
		item, err := attributevalue.MarshalMap(newItem(t))
		if err != nil {
			return apperrors.NewStoreError("marshal", err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		if err != nil {
			return apperrors.NewStoreError("put", err)
		}
	}
	return nil
}

func (s *GraphStore) Remove(ctx context.Context, sub, pred, obj *rdf.Term) error {
	matches, err := s.Match(ctx, sub, pred, obj)
	if err != nil {
		return err
	}
	for _, t := range matches {
		item := newItem(t)
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: item.PK},
				"SK": &types.AttributeValueMemberS{Value: item.SK},
			},
		})
		if err != nil {
			return apperrors.NewStoreError("delete", err)
		}
	}
	return nil
}

func (s *GraphStore) Set(ctx context.Context, sub, pred rdf.Term, objects ...rdf.Term) error {
	if err := s.Remove(ctx, &sub, &pred, nil); err != nil {
		return err
	}
	triples := make([]rdf.Triple, len(objects))
	for i, o := range objects {
		triples[i] = rdf.T(sub, pred, o)
	}
	return s.Add(ctx, triples...)
}

func (s *GraphStore) Match(ctx context.Context, sub, pred, obj *rdf.Term) ([]rdf.Triple, error) {
	switch {
	case sub != nil:
		return s.queryBySubject(ctx, *sub, pred, obj)
	case obj != nil:
		return s.queryByObject(ctx, *obj, pred)
	default:
		return s.scan(ctx, pred)
	}
}

func (s *GraphStore) queryBySubject(ctx context.Context, sub rdf.Term, pred, obj *rdf.Term) ([]rdf.Triple, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(encodeTerm(sub)))
	if pred != nil {
		keyCond = keyCond.And(expression.Key("SK").BeginsWith(encodeTerm(*pred) + "|"))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewStoreError("build query", err)
	}

	out, err := s.runQuery(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	return filterTriples(out, nil, nil, obj), nil
}

func (s *GraphStore) queryByObject(ctx context.Context, obj rdf.Term, pred *rdf.Term) ([]rdf.Triple, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(encodeTerm(obj)))
	if pred != nil {
		keyCond = keyCond.And(expression.Key("GSI1SK").BeginsWith(encodeTerm(*pred) + "|"))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewStoreError("build query", err)
	}

	return s.runQuery(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(schema.ObjectIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

func (s *GraphStore) runQuery(ctx context.Context, input *dynamodb.QueryInput) ([]rdf.Triple, error) {
	var out []rdf.Triple
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewStoreError("query", err)
		}
		var items []tripleItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, apperrors.NewStoreError("unmarshal", err)
		}
		for _, item := range items {
			t, err := item.triple()
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// scan walks the whole table; only the consistency checker and
// predicate-wide sweeps hit this path.
func (s *GraphStore) scan(ctx context.Context, pred *rdf.Term) ([]rdf.Triple, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	if pred != nil {
		expr, err := expression.NewBuilder().
			WithFilter(expression.Name("Predicate").Equal(expression.Value(encodeTerm(*pred)))).
			Build()
		if err != nil {
			return nil, apperrors.NewStoreError("build scan", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var out []rdf.Triple
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewStoreError("scan", err)
		}
		var items []tripleItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, apperrors.NewStoreError("unmarshal", err)
		}
		for _, item := range items {
			t, err := item.triple()
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func filterTriples(ts []rdf.Triple, sub, pred, obj *rdf.Term) []rdf.Triple {
	var out []rdf.Triple
	for _, t := range ts {
		if sub != nil && t.Subject != *sub {
			continue
		}
		if pred != nil && t.Predicate != *pred {
			continue
		}
		if obj != nil && t.Object != *obj {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *GraphStore) Has(ctx context.Context, sub, pred, obj *rdf.Term) (bool, error) {
	matches, err := s.Match(ctx, sub, pred, obj)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (s *GraphStore) Value(ctx context.Context, sub rdf.Term, preds ...rdf.Term) (rdf.Term, error) {
	for _, p := range preds {
		matches, err := s.Match(ctx, &sub, &p, nil)
		if err != nil {
			return rdf.Term{}, err
		}
		if len(matches) > 0 {
			return matches[0].Object, nil
		}
	}
	return rdf.Term{}, nil
}

func (s *GraphStore) Objects(ctx context.Context, sub, pred rdf.Term) ([]rdf.Term, error) {
	matches, err := s.Match(ctx, &sub, &pred, nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[rdf.Term]struct{})
	var out []rdf.Term
	for _, t := range matches {
		if _, ok := seen[t.Object]; !ok {
			seen[t.Object] = struct{}{}
			out = append(out, t.Object)
		}
	}
	return out, nil
}

func (s *GraphStore) Subjects(ctx context.Context, pred, obj rdf.Term) ([]rdf.Term, error) {
	matches, err := s.Match(ctx, nil, &pred, &obj)
	if err != nil {
		return nil, err
	}
	seen := make(map[rdf.Term]struct{})
	var out []rdf.Term
	for _, t := range matches {
		if _, ok := seen[t.Subject]; !ok {
			seen[t.Subject] = struct{}{}
			out = append(out, t.Subject)
		}
	}
	return out, nil
}

func (s *GraphStore) CBD(ctx context.Context, root rdf.Term) (*rdf.Graph, error) {
	out := rdf.NewGraph()
	queue := []rdf.Term{root}
	seen := map[rdf.Term]struct{}{root: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		matches, err := s.Match(ctx, &cur, nil, nil)
		if err != nil {
			return nil, err
		}
		for _, t := range matches {
			out.Add(t)
			if t.Object.IsBlank() {
				if _, ok := seen[t.Object]; !ok {
					seen[t.Object] = struct{}{}
					queue = append(queue, t.Object)
				}
			}
		}
	}
	return out, nil
}

func (s *GraphStore) InsertGraph(ctx context.Context, g *rdf.Graph) error {
	return s.Add(ctx, g.Triples()...)
}

func (s *GraphStore) ReplaceSubject(ctx context.Context, old, new rdf.Term) error {
	asSubject, err := s.Match(ctx, &old, nil, nil)
	if err != nil {
		return err
	}
	asObject, err := s.Match(ctx, nil, nil, &old)
	if err != nil {
		return err
	}

	for _, t := range asSubject {
		if err := s.Remove(ctx, &t.Subject, &t.Predicate, &t.Object); err != nil {
			return err
		}
		if err := s.Add(ctx, rdf.T(new, t.Predicate, t.Object)); err != nil {
			return err
		}
	}
	for _, t := range asObject {
		if err := s.Remove(ctx, &t.Subject, &t.Predicate, &t.Object); err != nil {
			return err
		}
		if err := s.Add(ctx, rdf.T(t.Subject, t.Predicate, new)); err != nil {
			return err
		}
	}
	return nil
}

// WithLock serializes callers across processes on a leased lock row.
func (s *GraphStore) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockID := uuid.NewString()
	if err := s.lock.TryAcquire(ctx, key, lockID, lockLease, lockTimeout); err != nil {
		return apperrors.NewStoreError("lock", err)
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), key, lockID); err != nil {
			s.logger.Error("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn(ctx)
}
