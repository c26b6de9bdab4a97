// Package authorizable manages identity entities (users and groups) on top
// of the sparse storage contract: CRUD gated by access control, group
// membership maintenance with cycle prevention, and change notification
// through the shared row cache.
package authorizable

import (
	"errors"

	"github.com/efroese/sparsemapcontent/store"
)

// Property names of authorizable rows.
const (
	IDField             = "id"
	NameField           = "name"
	PasswordField       = "pwd"
	TypeField           = "type"
	CreatedField        = "created"
	CreatedByField      = "createdBy"
	LastModifiedField   = "lastModified"
	LastModifiedByField = "lastModifiedBy"
	PrincipalsField     = "principals"
	MembersField        = "members"
)

// TypeField values.
const (
	UserType  = "u"
	GroupType = "g"
)

// NoPassword marks a user that cannot authenticate with a password.
const NoPassword = "--none--"

// Well-known identities.
const (
	AdminID     = "admin"
	AnonymousID = "anonymous"
	EveryoneID  = "everyone"

	// AdministratorsGroup members are administrators.
	AdministratorsGroup = "administrators"
)

var (
	// ErrImmutable is returned when updating an immutable authorizable.
	ErrImmutable = errors.New("authorizable: immutable")

	// ErrUnknownType is returned when a row's type property is neither a
	// user nor a group.
	ErrUnknownType = errors.New("authorizable: unknown type")

	// ErrPasswordMismatch is returned by a password change when the old
	// password fails to re-authenticate.
	ErrPasswordMismatch = errors.New("authorizable: old password does not match")

	// ErrNotAUser is returned when authenticating an id that resolves to a
	// group.
	ErrNotAUser = errors.New("authorizable: not a user")
)

// Authorizable is an identity entity, either a *User or a *Group. Decode
// discriminates once at the row boundary.
type Authorizable interface {
	ID() string
	Name() string
	Properties() store.Properties
	OriginalProperties() store.Properties
	Principals() []string
	SetProperty(name string, value any)
	RemoveProperty(name string)
	IsModified() bool
	IsNew() bool
	IsImmutable() bool
	IsReadOnly() bool

	base() *entity
}

// entity carries the state shared by users and groups.
type entity struct {
	id        string
	props     store.Properties // last persisted state
	updates   store.Properties // pending changes, removal sentinels included
	isNew     bool
	immutable bool
	readOnly  bool
}

func newEntity(id string, props store.Properties, isNew bool) entity {
	return entity{
		id:      id,
		props:   store.CopyProperties(props),
		updates: store.Properties{},
		isNew:   isNew,
	}
}

func (e *entity) base() *entity { return e }

func (e *entity) ID() string { return e.id }

func (e *entity) Name() string {
	name, _ := e.current(NameField).(string)
	return name
}

// current returns the pending value for a property if one exists, the
// persisted value otherwise.
func (e *entity) current(name string) any {
	if v, ok := e.updates[name]; ok {
		if store.IsRemove(v) {
			return nil
		}
		return v
	}
	return e.props[name]
}

// Properties returns the entity's effective property map, pending changes
// applied.
func (e *entity) Properties() store.Properties {
	out := store.CopyProperties(e.props)
	for k, v := range e.updates {
		if store.IsRemove(v) {
			delete(out, k)
		} else {
			out[k] = v
		}
	}
	return out
}

// OriginalProperties returns the state as last read from the store.
func (e *entity) OriginalProperties() store.Properties {
	return store.CopyProperties(e.props)
}

// Principals returns a copy of the entity's principal list; mutating it
// does not touch entity state.
func (e *entity) Principals() []string {
	return append([]string(nil), store.AsStringSlice(e.current(PrincipalsField))...)
}

func (e *entity) SetProperty(name string, value any) {
	e.updates[name] = value
}

func (e *entity) RemoveProperty(name string) {
	e.updates[name] = store.RemoveProperty
}

func (e *entity) IsModified() bool  { return len(e.updates) > 0 }
func (e *entity) IsNew() bool       { return e.isNew }
func (e *entity) IsImmutable() bool { return e.immutable }
func (e *entity) IsReadOnly() bool  { return e.readOnly }

// propertiesForUpdate returns the pending changes to persist.
func (e *entity) propertiesForUpdate() store.Properties {
	return store.CopyProperties(e.updates)
}

// reset replaces the persisted state with a fresh read and clears pending
// changes.
func (e *entity) reset(props store.Properties) {
	e.props = store.CopyProperties(props)
	e.updates = store.Properties{}
	e.isNew = false
}

func (e *entity) addPrincipal(principal string) {
	ps := e.Principals()
	for _, p := range ps {
		if p == principal {
			return
		}
	}
	e.updates[PrincipalsField] = append(ps, principal)
}

func (e *entity) removePrincipal(principal string) {
	ps := e.Principals()
	out := make([]string, 0, len(ps))
	removed := false
	for _, p := range ps {
		if p == principal {
			removed = true
			continue
		}
		out = append(out, p)
	}
	if removed {
		e.updates[PrincipalsField] = out
	}
}

// User is an authorizable person or system account.
type User struct {
	entity
}

// IsAdmin reports whether the user holds administrative rights.
func (u *User) IsAdmin() bool {
	if u.id == AdminID {
		return true
	}
	for _, p := range u.Principals() {
		if p == AdministratorsGroup {
			return true
		}
	}
	return false
}

// IsAnonymous reports whether this is the anonymous user.
func (u *User) IsAnonymous() bool { return u.id == AnonymousID }

// Group is an authorizable collection of members. Member mutations are
// recorded as diff sets and reconciled when the group is persisted.
type Group struct {
	entity
	membersAdded   []string
	membersRemoved []string
}

// Members returns a copy of the group's effective member list; mutating
// it does not touch group state.
func (g *Group) Members() []string {
	return append([]string(nil), store.AsStringSlice(g.current(MembersField))...)
}

// AddMember records id for addition on the next update.
func (g *Group) AddMember(id string) {
	for _, m := range g.Members() {
		if m == id {
			return
		}
	}
	g.membersAdded = appendUnique(g.membersAdded, id)
	g.membersRemoved = removeString(g.membersRemoved, id)
	g.updates[MembersField] = append(g.Members(), id)
}

// RemoveMember records id for removal on the next update.
func (g *Group) RemoveMember(id string) {
	g.membersRemoved = appendUnique(g.membersRemoved, id)
	g.membersAdded = removeString(g.membersAdded, id)
	g.updates[MembersField] = removeString(g.Members(), id)
}

// MembersAdded returns the pending additions.
func (g *Group) MembersAdded() []string { return append([]string(nil), g.membersAdded...) }

// MembersRemoved returns the pending removals.
func (g *Group) MembersRemoved() []string { return append([]string(nil), g.membersRemoved...) }

func (g *Group) IsModified() bool {
	return len(g.updates) > 0 || len(g.membersAdded) > 0 || len(g.membersRemoved) > 0
}

func (g *Group) clearMemberDiffs() {
	g.membersAdded = nil
	g.membersRemoved = nil
}

// EveryoneGroup returns the synthetic constant group containing all
// identities. It is read-only and never persisted.
func EveryoneGroup() *Group {
	g := &Group{entity: newEntity(EveryoneID, store.Properties{
		IDField:   EveryoneID,
		NameField: "Everyone",
		TypeField: GroupType,
	}, false)}
	g.readOnly = true
	g.immutable = true
	return g
}

// Decode discriminates a row into its variant. Empty rows decode to nil;
// rows without a recognizable type return ErrUnknownType.
func Decode(props store.Properties) (Authorizable, error) {
	if len(props) == 0 {
		return nil, nil
	}
	id, _ := props[IDField].(string)
	switch props[TypeField] {
	case UserType:
		return &User{entity: newEntity(id, props, false)}, nil
	case GroupType:
		return &Group{entity: newEntity(id, props, false)}, nil
	default:
		return nil, ErrUnknownType
	}
}

func isUserProps(props store.Properties) bool  { return props[TypeField] == UserType }
func isGroupProps(props store.Properties) bool { return props[TypeField] == GroupType }

func appendUnique(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e != s {
			out = append(out, e)
		}
	}
	return out
}
