// Package accesscontrol defines the permission-check contract consumed by
// the managers, plus a coarse default implementation. The permission
// algorithm itself lives behind the Manager interface; only its call
// contract matters to this module.
package accesscontrol

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is a bitmask of rights checked against a zone/object pair.
type Permission uint32

const (
	CanRead Permission = 1 << iota
	CanWrite
	CanDelete
)

func (p Permission) String() string {
	var parts []string
	if p&CanRead != 0 {
		parts = append(parts, "read")
	}
	if p&CanWrite != 0 {
		parts = append(parts, "write")
	}
	if p&CanDelete != 0 {
		parts = append(parts, "delete")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Security zones.
const (
	ZoneAuthorizables = "AU"
	ZoneContent       = "CO"
	ZoneAdmin         = "AD"
)

// Administrative objects within ZoneAdmin.
const (
	AdminUsers         = "admin/users"
	AdminGroups        = "admin/groups"
	AdminAuthorizables = "admin/authorizables"
)

// Manager checks permissions on behalf of one authenticated user.
type Manager interface {
	// Check returns an *AccessDenied error when the current user lacks the
	// permission on the zone/object pair, nil otherwise.
	Check(zone, object string, permission Permission) error

	// CurrentUserID identifies the acting user.
	CurrentUserID() string
}

// AccessDenied is returned by Check. It always carries the acting user id
// and is propagated to callers unmodified.
type AccessDenied struct {
	Zone       string
	Object     string
	Permission Permission
	UserID     string
	Reason     string
}

func (e *AccessDenied) Error() string {
	return fmt.Sprintf("access denied: user %q needs %s on %s:%s: %s",
		e.UserID, e.Permission, e.Zone, e.Object, e.Reason)
}

// IsAccessDenied reports whether err is an access-denied condition.
func IsAccessDenied(err error) bool {
	var denied *AccessDenied
	return errors.As(err, &denied)
}

// Basic is a coarse Manager: administrators may do anything; other users
// may read everything, and write or delete only themselves and content.
// Anonymous users are read-only. Deployments with real ACL storage supply
// their own Manager.
type Basic struct {
	userID    string
	admin     bool
	anonymous bool
}

// NewBasic creates a Basic manager for the given user.
func NewBasic(userID string, admin, anonymous bool) *Basic {
	return &Basic{userID: userID, admin: admin, anonymous: anonymous}
}

func (b *Basic) CurrentUserID() string { return b.userID }

func (b *Basic) Check(zone, object string, permission Permission) error {
	if b.admin {
		return nil
	}
	denied := &AccessDenied{Zone: zone, Object: object, Permission: permission, UserID: b.userID}
	if permission == CanRead {
		return nil
	}
	if b.anonymous {
		denied.Reason = "anonymous users are read-only"
		return denied
	}
	switch zone {
	case ZoneAuthorizables:
		if object == b.userID {
			return nil
		}
		denied.Reason = "only administrators may modify other authorizables"
	case ZoneContent:
		return nil
	case ZoneAdmin:
		denied.Reason = "administrative zone requires an administrator"
	default:
		denied.Reason = "unknown zone"
	}
	return denied
}
