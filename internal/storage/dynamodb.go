package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config Config
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == ModeDynamoLocal {
		// LoadDefaultConfig probes the EC2 IMDS endpoint, which hangs when
		// static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	if cfg.Mode == ModeDynamoLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) putItem(table string, v interface{}) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal item for %s: %w", table, err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item into %s: %w", table, err)
	}
	return nil
}

// query runs a key condition query, with an optional filter, and decodes
// every returned item into out
func (s *DynamoDBStore) query(table string, keyCond expression.KeyConditionBuilder, filter *expression.ConditionBuilder, out interface{}) error {
	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter != nil {
		builder = builder.WithFilter(*filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if filter != nil {
		input.FilterExpression = expr.Filter()
	}

	var items []map[string]dbtypes.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal items from %s: %w", table, err)
	}
	return nil
}

func (s *DynamoDBStore) SaveCallRecord(record types.CallRecord) error {
	return s.putItem(s.config.CallRecordsTable, record)
}

// AddTierDailyStats adds the counters of st to the item of its tier and
// date. The service level is then recomputed from the summed counts.
func (s *DynamoDBStore) AddTierDailyStats(st types.TierDailyStats) error {
	table := s.config.TierDailyTable
	key, err := attributevalue.MarshalMap(struct {
		Tier string `dynamodbav:"Tier"`
		Date string `dynamodbav:"Date"`
	}{st.Tier, st.Date})
	if err != nil {
		return fmt.Errorf("failed to marshal key for %s: %w", table, err)
	}

	update := expression.Set(expression.Name("Workers"), expression.Value(st.Workers)).
		Add(expression.Name("Handled"), expression.Value(st.Handled)).
		Add(expression.Name("Resolved"), expression.Value(st.Resolved)).
		Add(expression.Name("Escalated"), expression.Value(st.Escalated)).
		Add(expression.Name("Failed"), expression.Value(st.Failed)).
		Add(expression.Name("Abandoned"), expression.Value(st.Abandoned)).
		Add(expression.Name("AnsweredInSL"), expression.Value(st.AnsweredInSL)).
		Add(expression.Name("TotalAnswered"), expression.Value(st.TotalAnswered))

	out, err := s.updateItem(table, key, update, dbtypes.ReturnValueAllNew)
	if err != nil {
		return err
	}

	var day types.TierDailyStats
	if err := attributevalue.UnmarshalMap(out.Attributes, &day); err != nil {
		return fmt.Errorf("failed to unmarshal item from %s: %w", table, err)
	}
	sl := expression.Set(expression.Name("ServiceLevel"), expression.Value(day.ServiceLevelPercent()))
	_, err = s.updateItem(table, key, sl, dbtypes.ReturnValueNone)
	return err
}

func (s *DynamoDBStore) updateItem(table string, key map[string]dbtypes.AttributeValue, update expression.UpdateBuilder, ret dbtypes.ReturnValue) (*dynamodb.UpdateItemOutput, error) {
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := s.client.UpdateItem(context.Background(), &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              ret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update item in %s: %w", table, err)
	}
	return out, nil
}

func (s *DynamoDBStore) GetCallRecords(dateKey string) ([]types.CallRecord, error) {
	var records []types.CallRecord
	keyCond := expression.Key("DateKey").Equal(expression.Value(dateKey))
	if err := s.query(s.config.CallRecordsTable, keyCond, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *DynamoDBStore) GetTierDailyStats(tier string) ([]types.TierDailyStats, error) {
	var stats []types.TierDailyStats
	keyCond := expression.Key("Tier").Equal(expression.Value(tier))
	if err := s.query(s.config.TierDailyTable, keyCond, nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *DynamoDBStore) GetWorkerCallsByDate(workerID, date string) ([]types.CallRecord, error) {
	var records []types.CallRecord
	keyCond := expression.Key("DateKey").Equal(expression.Value(date))
	filter := expression.Name("WorkerID").Equal(expression.Value(workerID))
	if err := s.query(s.config.CallRecordsTable, keyCond, &filter, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// TruncateAll deletes all items from both tables (scan + batch delete)
func (s *DynamoDBStore) TruncateAll() error {
	for _, table := range tableSpecs(s.config) {
		if err := s.truncateTable(table); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table.name, err)
		}
	}
	return nil
}

func (s *DynamoDBStore) truncateTable(table tableSpec) error {
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:            aws.String(table.name),
			ProjectionExpression: aws.String("#pk, #sk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": table.pk,
				"#sk": table.sk,
			},
			Limit:             aws.Int32(500),
			ExclusiveStartKey: lastKey,
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return err
		}

		// BatchWriteItem takes at most 25 requests
		for i := 0; i < len(result.Items); i += 25 {
			end := min(i+25, len(result.Items))

			requests := make([]dbtypes.WriteRequest, 0, end-i)
			for _, item := range result.Items[i:end] {
				requests = append(requests, dbtypes.WriteRequest{
					DeleteRequest: &dbtypes.DeleteRequest{
						Key: map[string]dbtypes.AttributeValue{
							table.pk: item[table.pk],
							table.sk: item[table.sk],
						},
					},
				})
			}

			_, err := s.client.BatchWriteItem(context.Background(), &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]dbtypes.WriteRequest{
					table.name: requests,
				},
			})
			if err != nil {
				return err
			}
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	s.logger.Info().Str("table", table.name).Msg("table truncated")
	return nil
}
