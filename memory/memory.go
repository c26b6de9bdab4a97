// Package memory provides an in-memory implementation of the sparse
// storage contract. It backs unit tests and small embedded deployments;
// observable behavior matches the DynamoDB adapter.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/efroese/sparsemapcontent/store"
)

// Store holds the shared row data. Clients created from the same Store see
// each other's writes, mirroring sessions sharing one backend.
type Store struct {
	mu     sync.RWMutex
	rows   map[string]map[string]store.Properties // family -> rowhash -> props
	bodies map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rows:   map[string]map[string]store.Properties{},
		bodies: map[string][]byte{},
	}
}

var _ store.Pool = (*Store)(nil)

// GetClient returns a session-scoped client over the shared data.
func (s *Store) GetClient(ctx context.Context) (store.Client, error) {
	return &Client{store: s}, nil
}

// Close releases the pool.
func (s *Store) Close(ctx context.Context) error { return nil }

// family returns the family map for writing, creating it if absent. Must
// be called under the write lock.
func (s *Store) family(columnFamily string) map[string]store.Properties {
	fam, ok := s.rows[columnFamily]
	if !ok {
		fam = map[string]store.Properties{}
		s.rows[columnFamily] = fam
	}
	return fam
}

// readFamily returns the family map for reading; safe under the read lock.
func (s *Store) readFamily(columnFamily string) map[string]store.Properties {
	return s.rows[columnFamily]
}

// Client implements store.Client over a shared Store.
type Client struct {
	store  *Store
	closed bool
}

var _ store.Client = (*Client)(nil)

func (c *Client) checkOpen() error {
	if c.closed {
		return store.ErrClosed
	}
	return nil
}

func (c *Client) Get(ctx context.Context, keySpace, columnFamily, key string) (store.Properties, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	props, ok := c.store.readFamily(columnFamily)[store.RowHash(keySpace, columnFamily, key)]
	if !ok {
		return store.Properties{}, nil
	}
	return store.CopyProperties(props), nil
}

func (c *Client) Insert(ctx context.Context, keySpace, columnFamily, key string, values store.Properties, probablyNew bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	for _, v := range values {
		if v != nil && !store.ValidValue(v) {
			return store.ErrInvalidValue
		}
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	fam := c.store.family(columnFamily)
	hash := store.RowHash(keySpace, columnFamily, key)
	row, ok := fam[hash]
	if !ok {
		row = store.Properties{}
	} else {
		row = store.CopyProperties(row)
	}
	for k, v := range values {
		switch {
		case v == nil:
		case store.IsRemove(v):
			delete(row, k)
		default:
			row[k] = v
		}
	}
	row[store.KeyField] = key
	if _, ok := row[store.PathField]; ok && !store.IsRoot(key) {
		row[store.ParentHashField] = store.RowHash(keySpace, columnFamily, store.ParentPath(key))
	}
	fam[hash] = store.CopyProperties(row)
	return nil
}

func (c *Client) Remove(ctx context.Context, keySpace, columnFamily, key string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.family(columnFamily), store.RowHash(keySpace, columnFamily, key))
	return nil
}

func (c *Client) Find(ctx context.Context, keySpace, columnFamily string, query store.Query) (store.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	var matched []store.Row
	for _, props := range c.store.readFamily(columnFamily) {
		if matches(props, query) {
			key, _ := props[store.KeyField].(string)
			matched = append(matched, store.Row{Key: key, Properties: store.CopyProperties(props)})
		}
	}
	c.store.mu.RUnlock()

	if store.IsCountQuery(query) {
		return store.CountRows(int64(len(matched))), nil
	}
	sortField, _ := query[store.QuerySort].(string)
	if sortField == "" {
		sortField = store.KeyField
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, _ := matched[i].Properties[sortField].(string)
		b, _ := matched[j].Properties[sortField].(string)
		return a < b
	})
	return store.RowsFromSlice(matched), nil
}

func (c *Client) ListChildren(ctx context.Context, keySpace, columnFamily, key string) (store.Rows, error) {
	return c.Find(ctx, keySpace, columnFamily, store.Query{
		store.ParentHashField: store.RowHash(keySpace, columnFamily, key),
	})
}

func (c *Client) ListAll(ctx context.Context, keySpace, columnFamily string) (store.Rows, error) {
	return c.Find(ctx, keySpace, columnFamily, store.Query{})
}

func (c *Client) AllCount(ctx context.Context, keySpace, columnFamily string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return int64(len(c.store.readFamily(columnFamily))), nil
}

func (c *Client) StreamBodyOut(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content store.Properties) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	body, ok := c.store.bodies[bodyKey(keySpace, columnFamily, contentBlockID, streamID)]
	if !ok {
		return nil, fmt.Errorf("no body stored for %s:%s:%s", keySpace, columnFamily, contentBlockID)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (c *Client) StreamBodyIn(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content store.Properties, in io.Reader) (store.Properties, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.bodies[bodyKey(keySpace, columnFamily, contentBlockID, streamID)] = body
	return store.Properties{
		bodyField(streamID):   true,
		lengthField(streamID): int64(len(body)),
	}, nil
}

func (c *Client) HasBody(content store.Properties, streamID string) bool {
	has, _ := content[bodyField(streamID)].(bool)
	return has
}

func (c *Client) RowHash(keySpace, columnFamily, key string) string {
	return store.RowHash(keySpace, columnFamily, key)
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

func bodyKey(keySpace, columnFamily, contentBlockID, streamID string) string {
	return keySpace + ":" + columnFamily + ":" + contentBlockID + ":" + streamID
}

func bodyField(streamID string) string {
	if streamID == "" {
		return "_body"
	}
	return "_body/" + streamID
}

func lengthField(streamID string) string {
	if streamID == "" {
		return "_bodyLength"
	}
	return "_bodyLength/" + streamID
}

// matches applies the predicate-map semantics shared by every adapter.
func matches(props store.Properties, query store.Query) bool {
	for k, want := range query {
		if store.IsControlKey(k) {
			continue
		}
		if store.IsOrSetKey(k) {
			group, ok := want.(map[string]any)
			if !ok {
				return false
			}
			for field, raw := range group {
				if !containsAny(props[field], store.AsStringSlice(raw)) {
					return false
				}
			}
			continue
		}
		switch want := want.(type) {
		case []string:
			if !containsAll(props[k], want) {
				return false
			}
		case []any:
			if !containsAll(props[k], store.AsStringSlice(want)) {
				return false
			}
		default:
			if !reflect.DeepEqual(props[k], want) {
				return false
			}
		}
	}
	return true
}

func containsAll(have any, want []string) bool {
	set := map[string]bool{}
	for _, s := range store.AsStringSlice(have) {
		set[s] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func containsAny(have any, alternatives []string) bool {
	for _, alt := range alternatives {
		switch v := have.(type) {
		case string:
			if v == alt {
				return true
			}
		default:
			for _, s := range store.AsStringSlice(have) {
				if s == alt {
					return true
				}
			}
		}
	}
	return false
}
