package authorizable

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/efroese/sparsemapcontent/store"
)

// SecureHash returns the stored form of a password.
func SecureHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return "{SHA-256}" + hex.EncodeToString(sum[:])
}

// Authenticator resolves credentials against stored authorizable rows.
type Authenticator struct {
	client       store.Client
	keySpace     string
	columnFamily string
}

// NewAuthenticator creates an Authenticator bound to one client session.
func NewAuthenticator(client store.Client, keySpace, columnFamily string) *Authenticator {
	return &Authenticator{client: client, keySpace: keySpace, columnFamily: columnFamily}
}

// Authenticate verifies a password login. It returns nil (no error) when
// the user does not exist, has no password, or the password does not
// match; an error only on storage failure.
func (a *Authenticator) Authenticate(ctx context.Context, id, password string) (*User, error) {
	user, err := a.load(ctx, id)
	if err != nil || user == nil {
		return nil, err
	}
	stored, _ := user.props[PasswordField].(string)
	if stored == "" || stored == NoPassword {
		return nil, nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(SecureHash(password))) != 1 {
		return nil, nil
	}
	return user, nil
}

// SystemAuthenticate resolves a user without credential checks, for
// administrative and anonymous logins. Returns nil when the user does not
// exist.
func (a *Authenticator) SystemAuthenticate(ctx context.Context, id string) (*User, error) {
	return a.load(ctx, id)
}

func (a *Authenticator) load(ctx context.Context, id string) (*User, error) {
	props, err := a.client.Get(ctx, a.keySpace, a.columnFamily, id)
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", id, err)
	}
	if len(props) == 0 {
		return nil, nil
	}
	auth, err := Decode(props)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", id, err)
	}
	user, ok := auth.(*User)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotAUser, id)
	}
	return user, nil
}
