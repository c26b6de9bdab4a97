package content_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efroese/sparsemapcontent/accesscontrol"
	"github.com/efroese/sparsemapcontent/cache"
	"github.com/efroese/sparsemapcontent/content"
	"github.com/efroese/sparsemapcontent/memory"
	"github.com/efroese/sparsemapcontent/store"
)

func newManager(t *testing.T) *content.Manager {
	t.Helper()
	client, err := memory.New().GetClient(context.Background())
	require.NoError(t, err)
	return content.NewManager(client, cache.New(0),
		accesscontrol.NewBasic("admin", true, false), nil, "n", "cn", nil)
}

func save(t *testing.T, m *content.Manager, path string, props store.Properties) {
	t.Helper()
	node := content.New(path, props)
	require.NoError(t, m.Update(context.Background(), node))
}

func TestGetAbsentReturnsNil(t *testing.T) {
	m := newManager(t)
	node, err := m.Get(context.Background(), "/missing")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestUpdateThenGet(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/a", store.Properties{"title": "A"})

	node, err := m.Get(ctx, "/a")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "A", node.Property("title"))
	assert.NotNil(t, node.Property(content.CreatedField), "expected creation stamp")
	assert.Equal(t, "admin", node.Property(content.CreatedByField))
}

func TestUpdateIsPartial(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/a", store.Properties{"title": "A", "color": "blue"})

	node, err := m.Get(ctx, "/a")
	require.NoError(t, err)
	node.SetProperty("title", "A2")
	node.RemoveProperty("color")
	require.NoError(t, m.Update(ctx, node))

	node, err = m.Get(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, "A2", node.Property("title"))
	assert.Nil(t, node.Property("color"), "expected the removed property gone")
}

func TestHierarchyScenario(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/", store.Properties{"prop1": "value1"})
	save(t, m, "/test", store.Properties{"prop1": "value2"})
	save(t, m, "/test/ing", store.Properties{"prop1": "value3"})

	root, err := m.Get(ctx, "/")
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "value1", root.Property("prop1"))

	children := drainChildren(t, m, "/")
	require.Len(t, children, 1)
	assert.Equal(t, "/test", children[0].Path())
	assert.Equal(t, "value2", children[0].Property("prop1"))

	grandchildren := drainChildren(t, m, "/test")
	require.Len(t, grandchildren, 1)
	assert.Equal(t, "/test/ing", grandchildren[0].Path())
	assert.Equal(t, "value3", grandchildren[0].Property("prop1"))
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Delete(context.Background(), "/missing"))
}

func TestDeleteRemovesNode(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/a", store.Properties{"title": "A"})
	require.NoError(t, m.Delete(ctx, "/a"))

	node, err := m.Get(ctx, "/a")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestVersionSnapshot(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/doc", store.Properties{"title": "first"})

	versionID, err := m.SaveVersion(ctx, "/doc")
	require.NoError(t, err)
	require.NotEmpty(t, versionID)

	node, err := m.Get(ctx, "/doc")
	require.NoError(t, err)
	node.SetProperty("title", "second")
	require.NoError(t, m.Update(ctx, node))

	snapshot, err := m.GetVersion(ctx, "/doc", versionID)
	require.NoError(t, err)
	assert.Equal(t, "first", snapshot.Property("title"), "expected the snapshot frozen at save time")

	live, err := m.Get(ctx, "/doc")
	require.NoError(t, err)
	assert.Equal(t, "second", live.Property("title"))
}

func TestVersionsDoNotAppearAsChildren(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/", store.Properties{"prop1": "root"})
	save(t, m, "/doc", store.Properties{"title": "first"})
	_, err := m.SaveVersion(ctx, "/doc")
	require.NoError(t, err)

	children := drainChildren(t, m, "/")
	require.Len(t, children, 1, "expected the snapshot row hidden from child listings")
	assert.Equal(t, "/doc", children[0].Path())
}

func TestGetVersionUnknownID(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/doc", store.Properties{"title": "first"})
	_, err := m.GetVersion(ctx, "/doc", "no-such-version")
	assert.ErrorIs(t, err, content.ErrVersionNotFound)
}

func TestSaveVersionOfAbsentNodeFails(t *testing.T) {
	m := newManager(t)
	_, err := m.SaveVersion(context.Background(), "/missing")
	assert.Error(t, err)
}

func TestStreamBodyRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	save(t, m, "/f", store.Properties{"title": "file"})
	node, err := m.Get(ctx, "/f")
	require.NoError(t, err)

	body := []byte("binary payload")
	require.NoError(t, m.StreamBodyIn(ctx, node, "", bytes.NewReader(body)))
	assert.True(t, m.HasBody(node, ""))

	out, err := m.StreamBodyOut(ctx, node, "")
	require.NoError(t, err)
	defer out.Close()
	got, err := io.ReadAll(out)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestClosedManagerFails(t *testing.T) {
	m := newManager(t)
	m.Close()
	_, err := m.Get(context.Background(), "/a")
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestAnonymousCannotWrite(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New().GetClient(ctx)
	require.NoError(t, err)
	m := content.NewManager(client, cache.New(0),
		accesscontrol.NewBasic("anonymous", false, true), nil, "n", "cn", nil)

	err = m.Update(ctx, content.New("/a", store.Properties{"title": "A"}))
	assert.True(t, accesscontrol.IsAccessDenied(err), "expected access denied, got %v", err)
}

func drainChildren(t *testing.T, m *content.Manager, path string) []*content.Content {
	t.Helper()
	it, err := m.ListChildren(context.Background(), path)
	require.NoError(t, err)
	defer it.Close()
	var out []*content.Content
	for it.Next() {
		out = append(out, it.Content())
	}
	require.NoError(t, it.Err())
	return out
}
