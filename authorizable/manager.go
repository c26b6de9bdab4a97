package authorizable

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efroese/sparsemapcontent/accesscontrol"
	"github.com/efroese/sparsemapcontent/cache"
	"github.com/efroese/sparsemapcontent/store"
)

// Kind narrows a find to one authorizable variant.
type Kind int

const (
	KindAny Kind = iota
	KindUser
	KindGroup
)

// filteredFields are never accepted from a caller-supplied property map;
// they change only through dedicated operations.
var filteredFields = map[string]bool{
	IDField:       true,
	PasswordField: true,
}

// Manager performs identity CRUD for one session. It moves from open to
// closed exactly once; every operation after Close fails with
// store.ErrClosed. Not safe for concurrent use.
type Manager struct {
	user     *User
	client   store.Client
	rows     cache.CachedStore
	acl      accesscontrol.Manager
	auth     *Authenticator
	listener store.Listener
	keySpace string
	family   string
	plugins  []Plugin
	logger   *slog.Logger
	closed   bool
}

// NewManager creates a Manager bound to the given session client, shared
// cache and collaborators. A nil logger falls back to slog.Default().
func NewManager(user *User, client store.Client, rowCache *cache.Cache, acl accesscontrol.Manager, listener store.Listener, keySpace, columnFamily string, plugins []Plugin, logger *slog.Logger) *Manager {
	if listener == nil {
		listener = store.NopListener
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		user:     user,
		client:   client,
		rows:     cache.CachedStore{Client: client, Cache: rowCache},
		acl:      acl,
		auth:     NewAuthenticator(client, keySpace, columnFamily),
		listener: listener,
		keySpace: keySpace,
		family:   columnFamily,
		plugins:  plugins,
		logger:   logger,
	}
}

// User returns the session's authenticated user.
func (m *Manager) User() *User { return m.user }

// Close moves the manager to its terminal state.
func (m *Manager) Close() { m.closed = true }

func (m *Manager) checkOpen() error {
	if m.closed {
		return fmt.Errorf("authorizable manager: %w", store.ErrClosed)
	}
	return nil
}

// FindAuthorizable resolves an id to its User or Group. The well-known
// everyone group resolves to a synthetic constant without a lookup; ids
// claimed by a plugin are delegated to it. Absent identities return
// (nil, nil).
func (m *Manager) FindAuthorizable(ctx context.Context, id string) (Authorizable, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if id == EveryoneID {
		return EveryoneGroup(), nil
	}
	for _, p := range m.plugins {
		if p.Handles(id) {
			return p.FindAuthorizable(ctx, id)
		}
	}
	if id != m.user.ID() {
		if err := m.acl.Check(accesscontrol.ZoneAuthorizables, id, accesscontrol.CanRead); err != nil {
			return nil, err
		}
	}
	props, err := m.rows.Get(ctx, m.keySpace, m.family, id)
	if err != nil {
		return nil, err
	}
	auth, err := Decode(props)
	if err != nil {
		// A row that is neither user nor group is treated as absent.
		return nil, nil
	}
	return auth, nil
}

// CreateUser creates a user, forcing the type property before delegating.
func (m *Manager) CreateUser(ctx context.Context, id, name, password string, properties store.Properties) (bool, error) {
	props := store.CopyProperties(properties)
	props[TypeField] = UserType
	return m.CreateAuthorizable(ctx, id, name, password, props)
}

// CreateGroup creates a group, forcing the type property before
// delegating. Groups have no password.
func (m *Manager) CreateGroup(ctx context.Context, id, name string, properties store.Properties) (bool, error) {
	props := store.CopyProperties(properties)
	props[TypeField] = GroupType
	return m.CreateAuthorizable(ctx, id, name, "", props)
}

// CreateAuthorizable creates an identity. It returns false without side
// effects when the id already exists. The caller-supplied map must carry a
// recognizable type property; id and password fields in it are discarded.
func (m *Manager) CreateAuthorizable(ctx context.Context, id, name, password string, properties store.Properties) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	typeAttr := "type:user"
	switch {
	case isUserProps(properties):
		if err := m.acl.Check(accesscontrol.ZoneAdmin, accesscontrol.AdminUsers, accesscontrol.CanWrite); err != nil {
			return false, err
		}
	case isGroupProps(properties):
		typeAttr = "type:group"
		if err := m.acl.Check(accesscontrol.ZoneAdmin, accesscontrol.AdminGroups, accesscontrol.CanWrite); err != nil {
			return false, err
		}
	default:
		return false, &accesscontrol.AccessDenied{
			Zone:       accesscontrol.ZoneAdmin,
			Object:     accesscontrol.AdminAuthorizables,
			Permission: accesscontrol.CanWrite,
			UserID:     m.acl.CurrentUserID(),
			Reason:     "denied create on unidentified authorizable",
		}
	}

	existing, err := m.rows.Get(ctx, m.keySpace, m.family, id)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	props := filterProperties(properties)
	props[IDField] = id
	props[NameField] = name
	if password != "" {
		props[PasswordField] = SecureHash(password)
	} else {
		props[PasswordField] = NoPassword
	}
	props[CreatedField] = time.Now().UnixMilli()
	props[CreatedByField] = m.acl.CurrentUserID()

	if err := m.rows.Put(ctx, m.keySpace, m.family, id, props, true); err != nil {
		return false, err
	}
	m.listener.OnUpdate(accesscontrol.ZoneAuthorizables, id, m.acl.CurrentUserID(), true, nil, typeAttr)
	return true, nil
}

// UpdateAuthorizable persists pending changes. Read-only entities are a
// no-op, immutable ones an error. For groups, the member diff sets are
// reconciled first: each surviving added member gains this group in its
// principal list, each removed member loses it, and one notification is
// emitted per affected member so downstream indexing can recompute
// member-of views.
func (m *Manager) UpdateAuthorizable(ctx context.Context, auth Authorizable) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	id := auth.ID()
	if auth.IsImmutable() {
		return fmt.Errorf("%w: %s", ErrImmutable, id)
	}
	if auth.IsReadOnly() {
		return nil
	}
	if err := m.acl.Check(accesscontrol.ZoneAuthorizables, id, accesscontrol.CanWrite); err != nil {
		return err
	}
	if !auth.IsModified() {
		return nil
	}

	typeAttr := "type:user"
	var attributes []string
	var membersAdded, membersRemoved []string

	if group, ok := auth.(*Group); ok {
		typeAttr = "type:group"
		for _, added := range group.MembersAdded() {
			member, err := m.FindAuthorizable(ctx, added)
			switch {
			case err != nil:
				m.logger.Warn("dropping unreadable member from add set", "group", id, "member", added, "error", err)
				group.RemoveMember(added)
			case member == nil:
				m.logger.Warn("dropping unknown member from add set", "group", id, "member", added)
				group.RemoveMember(added)
			case m.createsCycle(ctx, id, member):
				m.logger.Warn("dropping member that would create a membership cycle", "group", id, "member", added)
				group.RemoveMember(added)
			default:
				member.base().addPrincipal(id)
				if err := m.persistMember(ctx, member); err != nil {
					return err
				}
			}
		}
		for _, removed := range group.MembersRemoved() {
			member, err := m.FindAuthorizable(ctx, removed)
			if err != nil || member == nil {
				m.logger.Warn("retired member not updated", "group", id, "member", removed)
				continue
			}
			member.base().removePrincipal(id)
			if err := m.persistMember(ctx, member); err != nil {
				return err
			}
		}
		membersAdded = group.MembersAdded()
		membersRemoved = group.MembersRemoved()
		if len(membersAdded) > 0 {
			attributes = append(attributes, "added:"+strings.Join(membersAdded, ","))
		}
		if len(membersRemoved) > 0 {
			attributes = append(attributes, "removed:"+strings.Join(membersRemoved, ","))
		}
	}
	attributes = append(attributes, typeAttr)

	wasNew := auth.IsNew()
	before := auth.OriginalProperties()

	updates := filterProperties(auth.base().propertiesForUpdate())
	updates[LastModifiedField] = time.Now().UnixMilli()
	updates[LastModifiedByField] = m.acl.CurrentUserID()
	if err := m.rows.Put(ctx, m.keySpace, m.family, id, updates, wasNew); err != nil {
		return err
	}

	fresh, err := m.rows.Get(ctx, m.keySpace, m.family, id)
	if err != nil {
		return err
	}
	auth.base().reset(fresh)
	if group, ok := auth.(*Group); ok {
		group.clearMemberDiffs()
	}

	actor := m.acl.CurrentUserID()
	m.listener.OnUpdate(accesscontrol.ZoneAuthorizables, id, actor, wasNew, before, attributes...)
	for _, added := range membersAdded {
		m.listener.OnUpdate(accesscontrol.ZoneAuthorizables, added, actor, false, nil)
	}
	for _, removed := range membersRemoved {
		m.listener.OnUpdate(accesscontrol.ZoneAuthorizables, removed, actor, false, nil)
	}
	return nil
}

// persistMember writes a member's principal-list change if there is one.
func (m *Manager) persistMember(ctx context.Context, member Authorizable) error {
	if !member.IsModified() {
		return nil
	}
	updates := filterProperties(member.base().propertiesForUpdate())
	return m.rows.Put(ctx, m.keySpace, m.family, member.ID(), updates, member.IsNew())
}

// createsCycle reports whether adding candidate as a member of groupID
// would make groupID a (transitive) member of itself. Membership edges are
// walked breadth-first over ids with a visited set, so termination does
// not depend on entity object identity.
func (m *Manager) createsCycle(ctx context.Context, groupID string, candidate Authorizable) bool {
	group, ok := candidate.(*Group)
	if !ok {
		return false
	}
	visited := map[string]bool{candidate.ID(): true}
	queue := group.Members()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == groupID {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		props, err := m.rows.Get(ctx, m.keySpace, m.family, id)
		if err != nil {
			// Unreadable membership edges are treated as cycles: refusing
			// the add is safe, persisting a possible cycle is not.
			m.logger.Warn("membership walk failed", "group", groupID, "member", id, "error", err)
			return true
		}
		if isGroupProps(props) {
			queue = append(queue, store.AsStringSlice(props[MembersField])...)
		}
	}
	return false
}

// Delete removes an identity. Deleting an absent identity is a no-op with
// no notification.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := m.acl.Check(accesscontrol.ZoneAuthorizables, id, accesscontrol.CanDelete); err != nil {
		return err
	}
	auth, err := m.FindAuthorizable(ctx, id)
	if err != nil {
		return err
	}
	if auth == nil {
		return nil
	}
	m.rows.Evict(m.keySpace, m.family, id)
	if err := m.client.Remove(ctx, m.keySpace, m.family, id); err != nil {
		return err
	}
	m.listener.OnDelete(accesscontrol.ZoneAuthorizables, id, m.acl.CurrentUserID(), auth.OriginalProperties())
	return nil
}

// ChangePassword sets a new password. Administrators may change any
// password; a user changing their own must first re-authenticate with the
// old one. The write bypasses the general update path, so no membership
// logic runs.
func (m *Manager) ChangePassword(ctx context.Context, auth Authorizable, newPassword, oldPassword string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	id := auth.ID()
	if !m.user.IsAdmin() && m.user.ID() != id {
		return &accesscontrol.AccessDenied{
			Zone:       accesscontrol.ZoneAuthorizables,
			Object:     id,
			Permission: accesscontrol.CanWrite,
			UserID:     m.user.ID(),
			Reason:     "password changes require the user themself or an administrator",
		}
	}
	if !m.user.IsAdmin() {
		u, err := m.auth.Authenticate(ctx, id, oldPassword)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrPasswordMismatch
		}
	}
	err := m.rows.Put(ctx, m.keySpace, m.family, id, store.Properties{
		PasswordField:       SecureHash(newPassword),
		LastModifiedField:   time.Now().UnixMilli(),
		LastModifiedByField: m.acl.CurrentUserID(),
	}, false)
	if err != nil {
		return err
	}
	m.listener.OnUpdate(accesscontrol.ZoneAuthorizables, id, m.user.ID(), false, nil, "op:change-password")
	return nil
}

// FindAuthorizables queries by property, optionally narrowed to one
// variant, and returns a lazily filtered sequence: candidates the caller
// cannot read are skipped silently, a backend error aborts the sequence.
func (m *Manager) FindAuthorizables(ctx context.Context, propertyName, value string, kind Kind) (*Iterator, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	query := store.Query{}
	if value != "" {
		query[propertyName] = value
	}
	switch kind {
	case KindUser:
		query[TypeField] = UserType
	case KindGroup:
		query[TypeField] = GroupType
	}
	rows, err := m.client.Find(ctx, m.keySpace, m.family, query)
	if err != nil {
		return nil, err
	}
	return &Iterator{rows: rows, manager: m}, nil
}

// Iterator is a closable sequence of access-checked authorizables. It is
// finite and not restartable; callers that do not drain it must close it.
type Iterator struct {
	rows    store.Rows
	manager *Manager
	current Authorizable
	err     error
}

// Next advances to the next readable authorizable.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.rows.Next() {
		props := it.rows.Row().Properties
		id, _ := props[IDField].(string)
		if id != it.manager.user.ID() {
			if err := it.manager.acl.Check(accesscontrol.ZoneAuthorizables, id, accesscontrol.CanRead); err != nil {
				if accesscontrol.IsAccessDenied(err) {
					continue
				}
				it.err = err
				return false
			}
		}
		auth, err := Decode(props)
		if err != nil || auth == nil {
			continue
		}
		it.current = auth
		return true
	}
	it.err = it.rows.Err()
	return false
}

// Authorizable returns the current element.
func (it *Iterator) Authorizable() Authorizable { return it.current }

// Err returns the error that terminated iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the underlying backend cursor.
func (it *Iterator) Close() error { return it.rows.Close() }

// filterProperties strips the protected fields from a caller-supplied map.
func filterProperties(props store.Properties) store.Properties {
	out := store.CopyProperties(props)
	for field := range filteredFields {
		delete(out, field)
	}
	return out
}
