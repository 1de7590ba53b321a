package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// sortKeyLayout is fixed width so lexical order matches time order.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

// stateItem is one snapshot in the single-table layout: PK ORG#<org>,
// SK STATE#<computed_at>.
type stateItem struct {
	PK            string  `dynamodbav:"PK"`
	SK            string  `dynamodbav:"SK"`
	StateID       string  `dynamodbav:"StateID"`
	Version       int64   `dynamodbav:"Version"`
	Trigger       string  `dynamodbav:"Trigger"`
	ConfigVersion string  `dynamodbav:"ConfigVersion"`
	OverallRoas   float64 `dynamodbav:"OverallRoas"`
	RiskLevel     string  `dynamodbav:"RiskLevel"`
	Stale         bool    `dynamodbav:"Stale"`
	Degraded      bool    `dynamodbav:"Degraded"`
	Data          string  `dynamodbav:"Data"`
	Timestamp     string  `dynamodbav:"Timestamp"`
}

func orgKey(orgID string) string { return "ORG#" + orgID }

func stateKey(t time.Time) string { return "STATE#" + t.UTC().Format(sortKeyLayout) }

// DynamoStore keeps snapshots in a DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Save(ctx context.Context, st *face.BrainState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling brain state: %w", err)
	}
	item := stateItem{
		PK:            orgKey(st.OrganizationID),
		SK:            stateKey(st.ComputedAt),
		StateID:       st.ID,
		Version:       st.Version,
		Trigger:       st.Trigger,
		ConfigVersion: st.ConfigVersion,
		OverallRoas:   st.Summary.OverallRoas,
		RiskLevel:     string(st.Summary.OverallRiskLevel),
		Stale:         st.Stale,
		Degraded:      st.Degraded,
		Data:          string(data),
		Timestamp:     st.ComputedAt.UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s at %s", domain.ErrDuplicate, st.OrganizationID, item.SK)
		}
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) newest(ctx context.Context, orgID string, limit int32) ([]stateItem, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: orgKey(orgID)},
			":prefix": &types.AttributeValueMemberS{Value: "STATE#"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}
	var items []stateItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	return items, nil
}

func (s *DynamoStore) Latest(ctx context.Context, orgID string) (*face.BrainState, error) {
	items, err := s.newest(ctx, orgID, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("brain state for %s: %w", orgID, domain.ErrNotFound)
	}
	var st face.BrainState
	if err := json.Unmarshal([]byte(items[0].Data), &st); err != nil {
		return nil, fmt.Errorf("decoding brain state: %w", err)
	}
	return &st, nil
}

func (s *DynamoStore) History(ctx context.Context, orgID string, limit int) ([]face.StateSummary, error) {
	if limit <= 0 {
		limit = 30
	}
	items, err := s.newest(ctx, orgID, int32(limit))
	if err != nil {
		return nil, err
	}
	out := make([]face.StateSummary, 0, len(items))
	for _, it := range items {
		computedAt, _ := time.Parse(sortKeyLayout, it.SK[len("STATE#"):])
		out = append(out, face.StateSummary{
			ID:               it.StateID,
			OrganizationID:   orgID,
			Version:          it.Version,
			ComputedAt:       computedAt,
			Trigger:          it.Trigger,
			ConfigVersion:    it.ConfigVersion,
			OverallRoas:      it.OverallRoas,
			OverallRiskLevel: oracle.Level(it.RiskLevel),
			Stale:            it.Stale,
			Degraded:         it.Degraded,
		})
	}
	return out, nil
}

func (s *DynamoStore) LatestVersion(ctx context.Context, orgID string) (int64, error) {
	items, err := s.newest(ctx, orgID, 1)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	return items[0].Version, nil
}
