// Package content manages hierarchical content nodes on top of the sparse
// storage contract: path-addressed CRUD, child listing through the stored
// parent hash, version snapshots and streamed binary bodies.
package content

import (
	"errors"

	"github.com/efroese/sparsemapcontent/store"
)

// Property names of content rows.
const (
	CreatedField        = "created"
	CreatedByField      = "createdBy"
	LastModifiedField   = "lastModified"
	LastModifiedByField = "lastModifiedBy"
	VersionOfField      = "versionOf"
	VersionIDField      = "versionId"
	VersionSavedField   = "versionSaved"
)

// ErrVersionNotFound is returned by GetVersion for an unknown version id.
var ErrVersionNotFound = errors.New("content: version not found")

// Content is one node in the content tree. Pending property changes are
// kept separate from the last persisted state until the manager saves
// them.
type Content struct {
	path    string
	props   store.Properties
	updates store.Properties
	isNew   bool
}

// New creates an unsaved content node at path.
func New(path string, props store.Properties) *Content {
	c := &Content{
		path:    path,
		props:   store.Properties{},
		updates: store.CopyProperties(props),
		isNew:   true,
	}
	return c
}

func fromRow(path string, props store.Properties) *Content {
	return &Content{
		path:    path,
		props:   store.CopyProperties(props),
		updates: store.Properties{},
	}
}

// Path returns the node's location in the tree.
func (c *Content) Path() string { return c.path }

// Properties returns the node's effective property map, pending changes
// applied.
func (c *Content) Properties() store.Properties {
	out := store.CopyProperties(c.props)
	for k, v := range c.updates {
		if store.IsRemove(v) {
			delete(out, k)
		} else {
			out[k] = v
		}
	}
	return out
}

// OriginalProperties returns the state as last read from the store.
func (c *Content) OriginalProperties() store.Properties {
	return store.CopyProperties(c.props)
}

// Property returns the effective value of one property.
func (c *Content) Property(name string) any {
	if v, ok := c.updates[name]; ok {
		if store.IsRemove(v) {
			return nil
		}
		return v
	}
	return c.props[name]
}

// SetProperty stages a property change.
func (c *Content) SetProperty(name string, value any) {
	c.updates[name] = value
}

// RemoveProperty stages a property deletion.
func (c *Content) RemoveProperty(name string) {
	c.updates[name] = store.RemoveProperty
}

// IsModified reports whether unsaved changes exist.
func (c *Content) IsModified() bool { return len(c.updates) > 0 }

// IsNew reports whether the node has never been persisted.
func (c *Content) IsNew() bool { return c.isNew }

func (c *Content) propertiesForUpdate() store.Properties {
	return store.CopyProperties(c.updates)
}

func (c *Content) reset(props store.Properties) {
	c.props = store.CopyProperties(props)
	c.updates = store.Properties{}
	c.isNew = false
}
