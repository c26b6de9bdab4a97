package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efroese/sparsemapcontent/accesscontrol"
	"github.com/efroese/sparsemapcontent/cache"
	"github.com/efroese/sparsemapcontent/store"
)

// Manager performs content CRUD for one session. Like the authorizable
// manager it moves from open to closed exactly once and is not safe for
// concurrent use.
type Manager struct {
	client   store.Client
	rows     cache.CachedStore
	acl      accesscontrol.Manager
	listener store.Listener
	keySpace string
	family   string
	logger   *slog.Logger
	closed   bool
}

// NewManager creates a Manager bound to the given session client and
// shared cache. A nil logger falls back to slog.Default().
func NewManager(client store.Client, rowCache *cache.Cache, acl accesscontrol.Manager, listener store.Listener, keySpace, columnFamily string, logger *slog.Logger) *Manager {
	if listener == nil {
		listener = store.NopListener
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:   client,
		rows:     cache.CachedStore{Client: client, Cache: rowCache},
		acl:      acl,
		listener: listener,
		keySpace: keySpace,
		family:   columnFamily,
		logger:   logger,
	}
}

// Close moves the manager to its terminal state.
func (m *Manager) Close() { m.closed = true }

func (m *Manager) checkOpen() error {
	if m.closed {
		return fmt.Errorf("content manager: %w", store.ErrClosed)
	}
	return nil
}

// Get returns the content node at path, or nil when absent.
func (m *Manager) Get(ctx context.Context, path string) (*Content, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanRead); err != nil {
		return nil, err
	}
	props, err := m.rows.Get(ctx, m.keySpace, m.family, path)
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, nil
	}
	return fromRow(path, props), nil
}

// Update persists pending changes, stamping modification metadata. The
// path property rides along with every write so the adapter keeps the
// parent hash current.
func (m *Manager) Update(ctx context.Context, c *Content) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	path := c.Path()
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanWrite); err != nil {
		return err
	}
	if !c.IsModified() && !c.IsNew() {
		return nil
	}
	wasNew := c.IsNew()
	before := c.OriginalProperties()

	updates := c.propertiesForUpdate()
	updates[store.PathField] = path
	now := time.Now().UnixMilli()
	if wasNew {
		updates[CreatedField] = now
		updates[CreatedByField] = m.acl.CurrentUserID()
	}
	updates[LastModifiedField] = now
	updates[LastModifiedByField] = m.acl.CurrentUserID()

	if err := m.rows.Put(ctx, m.keySpace, m.family, path, updates, wasNew); err != nil {
		return err
	}
	fresh, err := m.rows.Get(ctx, m.keySpace, m.family, path)
	if err != nil {
		return err
	}
	c.reset(fresh)
	m.listener.OnUpdate(accesscontrol.ZoneContent, path, m.acl.CurrentUserID(), wasNew, before)
	return nil
}

// Delete removes the node at path. Deleting an absent node is a no-op
// with no notification. Children are not cascaded; see the delete
// propagation note in the package docs.
func (m *Manager) Delete(ctx context.Context, path string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanDelete); err != nil {
		return err
	}
	props, err := m.rows.Get(ctx, m.keySpace, m.family, path)
	if err != nil {
		return err
	}
	if len(props) == 0 {
		return nil
	}
	m.rows.Evict(m.keySpace, m.family, path)
	if err := m.client.Remove(ctx, m.keySpace, m.family, path); err != nil {
		return err
	}
	m.listener.OnDelete(accesscontrol.ZoneContent, path, m.acl.CurrentUserID(), props)
	return nil
}

// ListChildren returns a lazily filtered sequence of the direct children
// of path. Children the caller cannot read are skipped silently; a
// backend error aborts the sequence.
func (m *Manager) ListChildren(ctx context.Context, path string) (*Iterator, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := m.client.ListChildren(ctx, m.keySpace, m.family, path)
	if err != nil {
		return nil, err
	}
	return &Iterator{rows: rows, manager: m}, nil
}

// SaveVersion snapshots the current persisted state of path under a fresh
// version id and returns that id. The snapshot row is keyed off the live
// path and carries no path property, so it never appears in child
// listings.
func (m *Manager) SaveVersion(ctx context.Context, path string) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanWrite); err != nil {
		return "", err
	}
	props, err := m.rows.Get(ctx, m.keySpace, m.family, path)
	if err != nil {
		return "", err
	}
	if len(props) == 0 {
		return "", fmt.Errorf("content: no node at %q to version", path)
	}
	versionID := uuid.NewString()
	snapshot := store.CopyProperties(props)
	delete(snapshot, store.PathField)
	delete(snapshot, store.ParentHashField)
	snapshot[VersionOfField] = path
	snapshot[VersionIDField] = versionID
	snapshot[VersionSavedField] = time.Now().UnixMilli()
	key := versionKey(path, versionID)
	if err := m.client.Insert(ctx, m.keySpace, m.family, key, snapshot, true); err != nil {
		return "", err
	}
	m.listener.OnUpdate(accesscontrol.ZoneContent, key, m.acl.CurrentUserID(), true, nil, "op:save-version")
	return versionID, nil
}

// GetVersion returns the snapshot of path saved under versionID.
func (m *Manager) GetVersion(ctx context.Context, path, versionID string) (*Content, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanRead); err != nil {
		return nil, err
	}
	props, err := m.client.Get(ctx, m.keySpace, m.family, versionKey(path, versionID))
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, path, versionID)
	}
	return fromRow(path, props), nil
}

func versionKey(path, versionID string) string {
	return path + "@" + versionID
}

// StreamBodyIn stores a streamed body for the node and merges the
// returned body metadata into the row.
func (m *Manager) StreamBodyIn(ctx context.Context, c *Content, streamID string, in io.Reader) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	path := c.Path()
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanWrite); err != nil {
		return err
	}
	meta, err := m.client.StreamBodyIn(ctx, m.keySpace, m.family, path, path, streamID, c.Properties(), in)
	if err != nil {
		return err
	}
	if len(meta) == 0 {
		return nil
	}
	if err := m.rows.Put(ctx, m.keySpace, m.family, path, meta, false); err != nil {
		return err
	}
	fresh, err := m.rows.Get(ctx, m.keySpace, m.family, path)
	if err != nil {
		return err
	}
	c.reset(fresh)
	return nil
}

// StreamBodyOut opens the streamed body for reading. The caller owns the
// returned reader.
func (m *Manager) StreamBodyOut(ctx context.Context, c *Content, streamID string) (io.ReadCloser, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	path := c.Path()
	if err := m.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanRead); err != nil {
		return nil, err
	}
	return m.client.StreamBodyOut(ctx, m.keySpace, m.family, path, path, streamID, c.Properties())
}

// HasBody reports whether a streamed body exists for the node.
func (m *Manager) HasBody(c *Content, streamID string) bool {
	return m.client.HasBody(c.Properties(), streamID)
}

// Iterator is a closable sequence of access-checked content nodes.
type Iterator struct {
	rows    store.Rows
	manager *Manager
	current *Content
	err     error
}

// Next advances to the next readable node.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.rows.Next() {
		row := it.rows.Row()
		path, _ := row.Properties[store.PathField].(string)
		if path == "" {
			path = row.Key
		}
		if err := it.manager.acl.Check(accesscontrol.ZoneContent, path, accesscontrol.CanRead); err != nil {
			if accesscontrol.IsAccessDenied(err) {
				continue
			}
			it.err = err
			return false
		}
		it.current = fromRow(path, row.Properties)
		return true
	}
	it.err = it.rows.Err()
	return false
}

// Content returns the current element.
func (it *Iterator) Content() *Content { return it.current }

// Err returns the error that terminated iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the underlying backend cursor.
func (it *Iterator) Close() error { return it.rows.Close() }
