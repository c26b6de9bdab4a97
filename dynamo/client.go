// Package dynamo adapts the sparse storage contract onto DynamoDB.
//
// Every row is one native document in a per-column-family table. The native
// partition key holds RowHash of the triple; the logical key is persisted
// under the adapter-reserved KeyField. Partial updates are rendered as a
// single SET/REMOVE update expression, property names are escaped
// reversibly, and children queries are served from a global secondary
// index on the stored parent hash.
package dynamo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efroese/sparsemapcontent/store"
)

// Client implements store.Client against DynamoDB. One Client per logical
// session; not safe for concurrent use.
type Client struct {
	ddb    *dynamodb.Client
	cfg    Config
	helper store.StreamedContentHelper
	logger *slog.Logger
	closed bool
}

var _ store.Client = (*Client)(nil)

func (c *Client) checkOpen() error {
	if c.closed {
		return store.ErrClosed
	}
	return nil
}

func (c *Client) key(keySpace, columnFamily, rowKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkAttr: &types.AttributeValueMemberS{Value: store.RowHash(keySpace, columnFamily, rowKey)},
	}
}

// Get returns the row's properties, or an empty map when absent.
func (c *Client) Get(ctx context.Context, keySpace, columnFamily, key string) (store.Properties, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	result, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.cfg.tableName(columnFamily)),
		Key:       c.key(keySpace, columnFamily, key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s:%s:%s: %w", keySpace, columnFamily, key, err)
	}
	if result.Item == nil {
		return store.Properties{}, nil
	}
	return fromItem(result.Item).Properties, nil
}

// Insert upserts the row. The value map is partitioned into SET and REMOVE
// clauses; the parent hash is maintained for path-addressed rows.
func (c *Client) Insert(ctx context.Context, keySpace, columnFamily, key string, values store.Properties, probablyNew bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	for name, v := range values {
		if v != nil && !store.ValidValue(v) {
			return fmt.Errorf("property %q: %w", name, store.ErrInvalidValue)
		}
	}

	mutable := store.CopyProperties(values)
	if _, ok := mutable[store.PathField]; ok && !store.IsRoot(key) {
		mutable[store.ParentHashField] = store.RowHash(keySpace, columnFamily, store.ParentPath(key))
	}

	expr, names, attrValues, err := buildUpdate(key, mutable)
	if err != nil {
		return err
	}
	_, err = c.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.cfg.tableName(columnFamily)),
		Key:                       c.key(keySpace, columnFamily, key),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: attrValues,
	})
	if err != nil {
		return fmt.Errorf("insert %s:%s:%s: %w", keySpace, columnFamily, key, err)
	}
	c.logger.Debug("insert",
		"keyspace", keySpace,
		"family", columnFamily,
		"key", key,
		"probablyNew", probablyNew,
	)
	return nil
}

// Remove deletes the row. Deleting an absent row is a no-op.
func (c *Client) Remove(ctx context.Context, keySpace, columnFamily, key string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	_, err := c.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.cfg.tableName(columnFamily)),
		Key:       c.key(keySpace, columnFamily, key),
	})
	if err != nil {
		return fmt.Errorf("remove %s:%s:%s: %w", keySpace, columnFamily, key, err)
	}
	return nil
}

// Find translates the predicate map and returns a lazy row sequence. A
// single equality on the parent hash is served from the parent-hash index;
// the count fast path skips document materialization entirely.
func (c *Client) Find(ctx context.Context, keySpace, columnFamily string, query store.Query) (store.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	tq, err := buildFilter(query)
	if err != nil {
		return nil, err
	}
	table := c.cfg.tableName(columnFamily)

	if tq.countOnly {
		input := &dynamodb.ScanInput{
			TableName: aws.String(table),
			Select:    types.SelectCount,
		}
		if tq.filter != "" {
			input.FilterExpression = aws.String(tq.filter)
			input.ExpressionAttributeNames = tq.names
			input.ExpressionAttributeValues = tq.values
		}
		var total int64
		paginator := dynamodb.NewScanPaginator(c.ddb, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("count %s:%s: %w", keySpace, columnFamily, err)
			}
			total += int64(page.Count)
		}
		return store.CountRows(total), nil
	}

	var rows store.Rows
	if tq.parentHash != "" {
		paginator := dynamodb.NewQueryPaginator(c.ddb, &dynamodb.QueryInput{
			TableName:                 aws.String(table),
			IndexName:                 aws.String(c.cfg.ParentHashIndex),
			KeyConditionExpression:    aws.String(tq.filter),
			ExpressionAttributeNames:  tq.names,
			ExpressionAttributeValues: tq.values,
		})
		rows = newLazyRows(ctx, &queryPager{p: paginator})
	} else {
		input := &dynamodb.ScanInput{TableName: aws.String(table)}
		if tq.filter != "" {
			input.FilterExpression = aws.String(tq.filter)
			input.ExpressionAttributeNames = tq.names
			input.ExpressionAttributeValues = tq.values
		}
		rows = newLazyRows(ctx, &scanPager{p: dynamodb.NewScanPaginator(c.ddb, input)})
	}

	if tq.sortField != "" {
		// Scans cannot sort server-side; materialize and sort here.
		return sortRows(rows, tq.sortField)
	}
	return rows, nil
}

// ListChildren returns the rows whose stored parent hash equals the hash
// of the given key.
func (c *Client) ListChildren(ctx context.Context, keySpace, columnFamily, key string) (store.Rows, error) {
	return c.Find(ctx, keySpace, columnFamily, store.Query{
		store.ParentHashField: store.RowHash(keySpace, columnFamily, key),
	})
}

// ListAll returns every row in the column family.
func (c *Client) ListAll(ctx context.Context, keySpace, columnFamily string) (store.Rows, error) {
	return c.Find(ctx, keySpace, columnFamily, store.Query{})
}

// AllCount returns the number of rows in the column family.
func (c *Client) AllCount(ctx context.Context, keySpace, columnFamily string) (int64, error) {
	rows, err := c.Find(ctx, keySpace, columnFamily, store.Query{
		store.QueryStatementSet: store.StatementCountEstimate,
	})
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, rows.Err()
	}
	count, _ := rows.Row().Properties[store.CountField].(int64)
	return count, nil
}

// StreamBodyOut reads a streamed body through the content helper.
func (c *Client) StreamBodyOut(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content store.Properties) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.helper == nil {
		return nil, store.ErrNoStreamHelper
	}
	return c.helper.ReadBody(ctx, keySpace, columnFamily, contentBlockID, streamID, content)
}

// StreamBodyIn writes a streamed body through the content helper.
func (c *Client) StreamBodyIn(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content store.Properties, in io.Reader) (store.Properties, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.helper == nil {
		return nil, store.ErrNoStreamHelper
	}
	return c.helper.WriteBody(ctx, keySpace, columnFamily, contentID, contentBlockID, streamID, content, in)
}

// HasBody reports whether a streamed body exists for the row.
func (c *Client) HasBody(content store.Properties, streamID string) bool {
	if c.helper == nil {
		return false
	}
	return c.helper.HasStream(content, streamID)
}

// RowHash returns the contract digest for the triple.
func (c *Client) RowHash(keySpace, columnFamily, key string) string {
	return store.RowHash(keySpace, columnFamily, key)
}

// Close releases the session. Safe to call after failed operations.
func (c *Client) Close() error {
	c.closed = true
	return nil
}

// sortRows drains rows and returns them sorted ascending by field.
func sortRows(rows store.Rows, field string) (store.Rows, error) {
	defer rows.Close()
	var all []store.Row
	for rows.Next() {
		all = append(all, rows.Row())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return lessValue(all[i].Properties[field], all[j].Properties[field])
	})
	return store.RowsFromSlice(all), nil
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case int64:
		switch bv := b.(type) {
		case int64:
			return av < bv
		case float64:
			return float64(av) < bv
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return av < float64(bv)
		case float64:
			return av < bv
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
