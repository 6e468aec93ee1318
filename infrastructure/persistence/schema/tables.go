// Package schema declares the DynamoDB table layout of the triple
// store and provisions it on demand.
package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ObjectIndexName is the GSI used for object-keyed lookups.
const ObjectIndexName = "ObjectIndex"

// TripleTableInput describes the single-table layout for triples:
// one item per triple, keyed by subject and predicate|object, with a
// global secondary index keyed by object and predicate|subject.
func TripleTableInput(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(ObjectIndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("GSI1PK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("GSI1SK"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	}
}

// LockTableInput describes the box lock table. Stale locks age out
// through the TTL attribute.
func LockTableInput(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
	}
}

// EnsureTables creates the triple and lock tables when they do not
// exist yet and waits for them to become active.
func EnsureTables(ctx context.Context, client *dynamodb.Client, tripleTable, lockTable string, logger *zap.Logger) error {
	inputs := []*dynamodb.CreateTableInput{
		TripleTableInput(tripleTable),
		LockTableInput(lockTable),
	}
	for _, input := range inputs {
		if err := ensureTable(ctx, client, input, logger); err != nil {
			return err
		}
	}
	if lockTable != tripleTable {
		ttl := &dynamodb.UpdateTimeToLiveInput{
			TableName: aws.String(lockTable),
			TimeToLiveSpecification: &types.TimeToLiveSpecification{
				AttributeName: aws.String("TTL"),
				Enabled:       aws.Bool(true),
			},
		}
		if _, err := client.UpdateTimeToLive(ctx, ttl); err != nil {
			logger.Warn("enabling lock TTL failed", zap.Error(err))
		}
	}
	return nil
}

func ensureTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput, logger *zap.Logger) error {
	name := aws.ToString(input.TableName)

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName})
	if err == nil {
		logger.Debug("table exists", zap.String("table", name))
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describing table %s: %w", name, err)
	}

	logger.Info("creating table", zap.String("table", name))
	if _, err := client.CreateTable(ctx, input); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	describeInput := &dynamodb.DescribeTableInput{TableName: input.TableName}
	if err := waiter.Wait(ctx, describeInput, 2*time.Minute); err != nil {
		return fmt.Errorf("waiting for table %s: %w", name, err)
	}
	return nil
}
