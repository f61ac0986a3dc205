package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"spark_server/models"
)

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

const (
	maxBatchWrite    = 25
	maxBatchGet      = 100
	maxBatchRetries  = 5
	maxTransactItems = 100

	defaultBatchRetryDelay = 50 * time.Millisecond
)

// DynamoService wraps the DynamoDB client with the table-level helpers the
// store is built from.
type DynamoService struct {
	Client DynamoAPI
	Logger *slog.Logger
	// RetryDelay is the first wait before resubmitting unprocessed batch
	// items; it doubles on every further attempt. Zero uses the default.
	RetryDelay time.Duration
}

// waitRetry sleeps before batch attempt n (n >= 1) or returns early with the
// context's error.
func (ds *DynamoService) waitRetry(ctx context.Context, n int) error {
	delay := ds.RetryDelay
	if delay <= 0 {
		delay = defaultBatchRetryDelay
	}
	timer := time.NewTimer(delay << (n - 1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// InitializeDynamoDBClient loads the default AWS config for region and
// returns a DynamoDB client.
func InitializeDynamoDBClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// GetItem reads one item with a strongly consistent read and unmarshals it
// into out. A missing item yields models.ErrNotFound.
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	if output.Item == nil {
		return fmt.Errorf("%w: item in table '%s'", models.ErrNotFound, tableName)
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item from table '%s': %w", tableName, err)
	}
	return nil
}

func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}) error {
	return ds.PutItemIf(ctx, tableName, item, "", nil)
}

// PutItemIf writes item when condition (may be empty) holds. A failed
// condition is returned as *types.ConditionalCheckFailedException.
func (ds *DynamoService) PutItemIf(
	ctx context.Context,
	tableName string,
	item interface{},
	condition string,
	expressionAttributeValues map[string]types.AttributeValue,
) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:                 aws.String(tableName),
		Item:                      marshaledItem,
		ExpressionAttributeValues: nonEmptyValues(expressionAttributeValues),
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
	}

	ds.Logger.DebugContext(ctx, "putting item", "table", tableName, "condition", condition)
	_, err = ds.Client.PutItem(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put item in table '%s': %w", tableName, err)
	}
	return nil
}

// UpdateItem applies updateExpression to key when condition (may be empty)
// holds. A failed condition is returned as *types.ConditionalCheckFailedException.
func (ds *DynamoService) UpdateItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpression string,
	condition string,
	expressionAttributeNames map[string]string,
	expressionAttributeValues map[string]types.AttributeValue,
) error {
	if len(key) == 0 {
		return errors.New("update failed: key cannot be empty")
	}
	if updateExpression == "" {
		return errors.New("update failed: updateExpression cannot be empty")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		UpdateExpression:          aws.String(updateExpression),
		ExpressionAttributeNames:  nonEmptyNames(expressionAttributeNames),
		ExpressionAttributeValues: nonEmptyValues(expressionAttributeValues),
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
	}

	ds.Logger.DebugContext(ctx, "updating item", "table", tableName, "update", updateExpression, "condition", condition)
	if _, err := ds.Client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("failed to update item in table '%s': %w", tableName, err)
	}
	return nil
}

// DeleteItem removes key when condition (may be empty) holds.
func (ds *DynamoService) DeleteItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	condition string,
	expressionAttributeValues map[string]types.AttributeValue,
) error {
	input := &dynamodb.DeleteItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		ExpressionAttributeValues: nonEmptyValues(expressionAttributeValues),
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
	}
	if _, err := ds.Client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete item from table '%s': %w", tableName, err)
	}
	return nil
}

// QueryAll runs input to completion, following LastEvaluatedKey.
func (ds *DynamoService) QueryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		output, err := ds.Client.Query(ctx, input)
		if err != nil {
			if input.IndexName != nil {
				return nil, fmt.Errorf("failed to query GSI '%s': %w", aws.ToString(input.IndexName), err)
			}
			return nil, fmt.Errorf("failed to query table '%s': %w", aws.ToString(input.TableName), err)
		}
		items = append(items, output.Items...)
		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
	ds.Logger.DebugContext(ctx, "query complete", "table", aws.ToString(input.TableName), "index", aws.ToString(input.IndexName), "items", len(items))
	return items, nil
}

// ScanAll reads every item of tableName.
func (ds *DynamoService) ScanAll(ctx context.Context, tableName string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(tableName)}
	var items []map[string]types.AttributeValue
	for {
		output, err := ds.Client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table '%s': %w", tableName, err)
		}
		items = append(items, output.Items...)
		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
	return items, nil
}

// BatchGetItems fetches keys in chunks of 100, retrying unprocessed keys.
func (ds *DynamoService) BatchGetItems(ctx context.Context, tableName string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for i := 0; i < len(keys); i += maxBatchGet {
		end := i + maxBatchGet
		if end > len(keys) {
			end = len(keys)
		}

		request := map[string]types.KeysAndAttributes{
			tableName: {Keys: keys[i:end]},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return nil, fmt.Errorf("failed to batch get items from table '%s': keys left unprocessed", tableName)
			}
			if attempt > 0 {
				ds.Logger.DebugContext(ctx, "retrying unprocessed keys", "table", tableName, "attempt", attempt)
				if err := ds.waitRetry(ctx, attempt); err != nil {
					return nil, fmt.Errorf("failed to batch get items from table '%s': %w", tableName, err)
				}
			}
			output, err := ds.Client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get items from table '%s': %w", tableName, err)
			}
			items = append(items, output.Responses[tableName]...)
			request = output.UnprocessedKeys
		}
	}
	return items, nil
}

// BatchDeleteItems deletes keys in batches of 25, retrying unprocessed writes.
func (ds *DynamoService) BatchDeleteItems(ctx context.Context, tableName string, keys []map[string]types.AttributeValue) error {
	writeRequests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}
	return ds.BatchWriteItems(ctx, tableName, writeRequests)
}

// BatchWriteItems writes multiple items to DynamoDB in batches
func (ds *DynamoService) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	for i := 0; i < len(writeRequests); i += maxBatchWrite {
		end := i + maxBatchWrite
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		request := map[string][]types.WriteRequest{
			tableName: writeRequests[i:end],
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return fmt.Errorf("failed to batch write items to table '%s': writes left unprocessed", tableName)
			}
			if attempt > 0 {
				ds.Logger.DebugContext(ctx, "retrying unprocessed writes", "table", tableName, "attempt", attempt)
				if err := ds.waitRetry(ctx, attempt); err != nil {
					return fmt.Errorf("failed to batch write items to table '%s': %w", tableName, err)
				}
			}
			output, err := ds.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: request})
			if err != nil {
				return fmt.Errorf("failed to batch write items to table '%s': %w", tableName, err)
			}
			request = output.UnprocessedItems
		}
	}
	return nil
}

// TransactGet reads items as one serializable snapshot. Missing items come
// back as nil maps at their index.
func (ds *DynamoService) TransactGet(ctx context.Context, gets []types.TransactGetItem) ([]map[string]types.AttributeValue, error) {
	output, err := ds.Client.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{TransactItems: gets})
	if err != nil {
		return nil, fmt.Errorf("failed to transact get %d items: %w", len(gets), err)
	}
	items := make([]map[string]types.AttributeValue, len(gets))
	for i, response := range output.Responses {
		if i < len(items) {
			items[i] = response.Item
		}
	}
	return items, nil
}

// TransactWrite applies items all-or-nothing. The driver error is returned
// wrapped so callers can inspect cancellation reasons.
func (ds *DynamoService) TransactWrite(ctx context.Context, items []types.TransactWriteItem) error {
	ds.Logger.DebugContext(ctx, "transact write", "items", len(items))
	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("failed to transact write %d items: %w", len(items), err)
	}
	return nil
}

// DescribeTable checks that tableName exists and is reachable.
func (ds *DynamoService) DescribeTable(ctx context.Context, tableName string) error {
	_, err := ds.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return fmt.Errorf("failed to describe table '%s': %w", tableName, err)
	}
	return nil
}

// cancellationReasons extracts per-item reasons from a cancelled transaction.
func cancellationReasons(err error) ([]types.CancellationReason, bool) {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return canceled.CancellationReasons, true
	}
	return nil, false
}

func isConditionFailed(err error) bool {
	var failed *types.ConditionalCheckFailedException
	return errors.As(err, &failed)
}

func isTransactionConflict(err error) bool {
	var conflict *types.TransactionConflictException
	return errors.As(err, &conflict)
}

func nonEmptyNames(names map[string]string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	return names
}

func nonEmptyValues(values map[string]types.AttributeValue) map[string]types.AttributeValue {
	if len(values) == 0 {
		return nil
	}
	return values
}
