package dynamodb

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

// errLockHeld signals contention as opposed to an infrastructure
// failure; TryAcquire retries only on this.
var errLockHeld = errors.New("lock already held")

// BoxLock serializes mutations per collection using DynamoDB
// conditional writes. Two concurrent deliveries to one inbox race on
// the list head pointer and the cached count, so each mutation runs
// under a short lease on the box identifier.
type BoxLock struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

type lockRecord struct {
	PK        string `dynamodbav:"PK"` // LOCK#<box IRI>
	SK        string `dynamodbav:"SK"` // LOCK
	LockID    string `dynamodbav:"LockID"`
	ExpiresAt string `dynamodbav:"ExpiresAt"`
	TTL       int64  `dynamodbav:"TTL"`
}

// NewBoxLock creates a lock manager over the given table.
func NewBoxLock(client *dynamodb.Client, tableName string, logger *zap.Logger) *BoxLock {
	return &BoxLock{client: client, tableName: tableName, logger: logger}
}

// acquire takes the lease, succeeding over an expired holder.
func (l *BoxLock) acquire(ctx context.Context, key, lockID string, lease time.Duration) error {
	now := time.Now()
	expires := now.Add(lease)

	input := &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: "LOCK#" + key},
			"SK":        &types.AttributeValueMemberS{Value: "LOCK"},
			"LockID":    &types.AttributeValueMemberS{Value: lockID},
			"ExpiresAt": &types.AttributeValueMemberS{Value: expires.Format(time.RFC3339Nano)},
			"TTL":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires.Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	}

	_, err := l.client.PutItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return errLockHeld
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// TryAcquire retries with backoff until the lease is taken or the
// timeout passes.
func (l *BoxLock) TryAcquire(ctx context.Context, key, lockID string, lease, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	retryInterval := 50 * time.Millisecond

	for {
		err := l.acquire(ctx, key, lockID, lease)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errLockHeld) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout acquiring lock for %s", key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

// Release frees the lease. A lease already taken over by someone else
// is left alone.
func (l *BoxLock) Release(ctx context.Context, key, lockID string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LOCK#" + key},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
		},
	}

	_, err := l.client.DeleteItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			l.logger.Warn("lock expired before release", zap.String("key", key))
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
