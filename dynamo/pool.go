package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efroese/sparsemapcontent/store"
)

const tableWaitTimeout = 2 * time.Minute

// Pool hands out one Client per logical session over a shared DynamoDB
// connection. Authentication and connection setup happen once at pool
// construction; a construction failure is fatal.
type Pool struct {
	ddb    *dynamodb.Client
	cfg    Config
	helper store.StreamedContentHelper
	logger *slog.Logger
}

var _ store.Pool = (*Pool)(nil)

// NewPool builds the shared DynamoDB client from the default credential
// chain. helper may be nil when streamed bodies are not used; a nil logger
// falls back to slog.Default().
func NewPool(ctx context.Context, cfg Config, helper store.StreamedContentHelper, logger *slog.Logger) (*Pool, error) {
	cfg.validate()
	if logger == nil {
		logger = slog.Default()
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	ddb := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Pool{ddb: ddb, cfg: cfg, helper: helper, logger: logger}, nil
}

// GetClient returns a fresh session-scoped client. Clients share the
// pool's connection but carry their own open/closed state.
func (p *Pool) GetClient(ctx context.Context) (store.Client, error) {
	return &Client{ddb: p.ddb, cfg: p.cfg, helper: p.helper, logger: p.logger}, nil
}

// Close releases the pool. The underlying SDK client holds no resources
// that need explicit teardown.
func (p *Pool) Close(ctx context.Context) error {
	return nil
}

// EnsureTables provisions one table per column family, with the
// parent-hash index used by children queries. Existing tables are left
// untouched.
func (p *Pool) EnsureTables(ctx context.Context, columnFamilies ...string) error {
	for _, family := range columnFamilies {
		table := p.cfg.tableName(family)
		_, err := p.ddb.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:   aws.String(table),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(pkAttr), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(store.ParentHashField), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(pkAttr), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: aws.String(p.cfg.ParentHashIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String(store.ParentHashField), KeyType: types.KeyTypeHash},
					},
					Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
				},
			},
		})
		if err != nil {
			var exists *types.ResourceInUseException
			if errors.As(err, &exists) {
				continue
			}
			return fmt.Errorf("create table %s: %w", table, err)
		}

		waiter := dynamodb.NewTableExistsWaiter(p.ddb)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableWaitTimeout); err != nil {
			return fmt.Errorf("wait for table %s: %w", table, err)
		}
		p.logger.Info("created table", "table", table)
	}
	return nil
}
