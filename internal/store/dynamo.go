package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix     = "RUN#"
	skMeta       = "META"
	skAccuracy   = "ACC#"
	skSaturation = "SAT#"
	skOutcome    = "OUTCOME#"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// DynamoStore implements ResultStore using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ ResultStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// --- Internal helpers ---

func runPK(runID string) string {
	return pkPrefix + runID
}

func videoSK(prefix, label, videoName string) string {
	return prefix + label + "#" + videoName
}

func accuracySK(label, videoName string, cycle int) string {
	return fmt.Sprintf("%s#%06d", videoSK(skAccuracy, label, videoName), cycle)
}

func (s *DynamoStore) expiresAt() int64 {
	return s.now().Add(RunTTL).Unix()
}

// putItem marshals a domain object and writes it with PK, SK, and TTL.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads a single item and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// queryBySKPrefix returns every item of a run whose SK begins with prefix,
// in sort key order.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, runID, prefix string) ([]map[string]types.AttributeValue, error) {
	pk := runPK(runID)

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}

	var allItems []map[string]types.AttributeValue

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, prefix, err)
		}
		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// --- Run operations ---

func (s *DynamoStore) PutRun(ctx context.Context, run *Run) error {
	if run.StartedAt == 0 {
		run.StartedAt = s.now().Unix()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	if err := s.putItem(ctx, runPK(run.ID), skMeta, run); err != nil {
		return fmt.Errorf("put run %s: %w", run.ID, err)
	}

	log.Debug().Str("runId", run.ID).Str("status", run.Status).Msg("Run persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	found, err := s.getItem(ctx, runPK(runID), skMeta, &run)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if !found {
		return nil, nil
	}

	run.ID = runID
	return &run, nil
}

func (s *DynamoStore) UpdateRunStatus(ctx context.Context, runID, status string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression: aws.String("SET #s = :s, finishedAt = :f"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status", // "status" is a DynamoDB reserved word
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: status},
			":f": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("update run status %s -> %s: %w", runID, status, err)
	}

	log.Debug().Str("runId", runID).Str("status", status).Msg("Run status updated")
	return nil
}

// --- Per-video records ---

func (s *DynamoStore) PutAccuracy(ctx context.Context, runID string, item *AccuracyItem) error {
	sk := accuracySK(item.Label, item.VideoName, item.Cycle)
	if err := s.putItem(ctx, runPK(runID), sk, item); err != nil {
		return fmt.Errorf("put accuracy %s/%s: %w", runID, sk, err)
	}
	return nil
}

func (s *DynamoStore) ListAccuracy(ctx context.Context, runID, label, videoName string) ([]AccuracyItem, error) {
	items, err := s.queryBySKPrefix(ctx, runID, videoSK(skAccuracy, label, videoName)+"#")
	if err != nil {
		return nil, fmt.Errorf("list accuracy %s/%s/%s: %w", runID, label, videoName, err)
	}

	records := make([]AccuracyItem, 0, len(items))
	for _, item := range items {
		var rec AccuracyItem
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal accuracy: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *DynamoStore) PutSaturation(ctx context.Context, runID string, item *SaturationItem) error {
	sk := videoSK(skSaturation, item.Label, item.VideoName)
	if err := s.putItem(ctx, runPK(runID), sk, item); err != nil {
		return fmt.Errorf("put saturation %s/%s: %w", runID, sk, err)
	}
	return nil
}

func (s *DynamoStore) PutOutcome(ctx context.Context, runID string, item *OutcomeItem) error {
	sk := videoSK(skOutcome, item.Label, item.VideoName)
	if err := s.putItem(ctx, runPK(runID), sk, item); err != nil {
		return fmt.Errorf("put outcome %s/%s: %w", runID, sk, err)
	}

	log.Debug().
		Str("runId", runID).
		Str("label", item.Label).
		Str("video", item.VideoName).
		Bool("completed", item.Completed).
		Msg("Video outcome persisted")
	return nil
}

func (s *DynamoStore) ListOutcomes(ctx context.Context, runID string) ([]OutcomeItem, error) {
	items, err := s.queryBySKPrefix(ctx, runID, skOutcome)
	if err != nil {
		return nil, fmt.Errorf("list outcomes %s: %w", runID, err)
	}

	outcomes := make([]OutcomeItem, 0, len(items))
	for _, item := range items {
		var out OutcomeItem
		if err := attributevalue.UnmarshalMap(item, &out); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
