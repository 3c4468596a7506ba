// Package dynamodb implements the journal store on AWS DynamoDB.
//
// All records share one fixed partition key, with the ULID as sort key.
// ULIDs sort chronologically, so a reverse Query over the partition returns
// the newest records first without a secondary index.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// Compile-time interface satisfaction check.
var _ journal.Store = (*Store)(nil)

// Key layout.
const (
	journalPK    = "JOURNAL"
	prefixRecord = "REC#"
)

func recordSK(id string) string { return prefixRecord + id }

// DDBAPI is the narrow DynamoDB client surface the store depends on.
type DDBAPI interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Store implements journal.Store backed by a single DynamoDB table.
type Store struct {
	client    DDBAPI
	tableName string
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClient injects a preconfigured DynamoDB client. Intended for tests.
func WithClient(client DDBAPI) Option {
	return func(s *Store) { s.client = client }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a DynamoDB-backed journal store. When cfg.CreateTable is set
// the table is created if it does not exist.
func New(ctx context.Context, cfg *types.DynamoDBConfig, opts ...Option) (*Store, error) {
	if cfg == nil || cfg.TableName == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	s := &Store{
		tableName: cfg.TableName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}

		// For DynamoDB Local: use static credentials and a custom endpoint.
		if cfg.Endpoint != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("local", "local", ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}

		var clientOpts []func(*dynamodb.Options)
		if cfg.Endpoint != "" {
			clientOpts = append(clientOpts, func(o *dynamodb.Options) {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			})
		}
		s.client = dynamodb.NewFromConfig(awsCfg, clientOpts...)
	}

	if cfg.CreateTable {
		if err := s.ensureTable(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SaveDispatch writes the initial record.
func (s *Store) SaveDispatch(ctx context.Context, rec journal.Record) error {
	return s.putRecord(ctx, rec)
}

// MarkCorrelated records the run identity. Records have a single writer, so
// a read-modify-write without a condition expression is sufficient.
func (s *Store) MarkCorrelated(ctx context.Context, id, runID, referenceURL string, at time.Time) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.RunID = runID
	rec.ReferenceURL = referenceURL
	rec.State = journal.StateCorrelated
	rec.UpdatedAt = at
	return s.putRecord(ctx, rec)
}

// MarkVerdict finalizes the record.
func (s *Store) MarkVerdict(ctx context.Context, id string, verdict types.Verdict, at time.Time) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.State = journal.StateDone
	rec.Verdict = verdict.Code
	rec.Reason = verdict.Reason
	rec.UpdatedAt = at
	finished := at
	rec.FinishedAt = &finished
	return s.putRecord(ctx, rec)
}

// Get returns the record for id (strongly consistent read).
func (s *Store) Get(ctx context.Context, id string) (journal.Record, error) {
	return s.getRecord(ctx, id)
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: journalPK},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRecord},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	var recs []journal.Record
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			s.logger.Warn("skipping corrupt journal item", "error", err)
			continue
		}
		var rec journal.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			s.logger.Warn("skipping corrupt journal item", "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Ping checks connectivity by describing the table.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &s.tableName,
	})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	return nil
}

// Close is a no-op for DynamoDB (no persistent connections to close).
func (s *Store) Close() error { return nil }

func (s *Store) putRecord(ctx context.Context, rec journal.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: journalPK},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: recordSK(rec.ID)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	return err
}

func (s *Store) getRecord(ctx context.Context, id string) (journal.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: journalPK},
			"SK": &ddbtypes.AttributeValueMemberS{Value: recordSK(id)},
		},
	})
	if err != nil {
		return journal.Record{}, err
	}
	if out.Item == nil {
		return journal.Record{}, journal.ErrNotFound
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return journal.Record{}, err
	}
	var rec journal.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return journal.Record{}, fmt.Errorf("unmarshaling record %q: %w", id, err)
	}
	return rec, nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &s.tableName,
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: ddbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		ProvisionedThroughput: &ddbtypes.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
	})
	if err != nil {
		var riue *ddbtypes.ResourceInUseException
		if errors.As(err, &riue) {
			return nil // table already exists
		}
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var str string
	if err := attributevalue.Unmarshal(av, &str); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return str, nil
}
