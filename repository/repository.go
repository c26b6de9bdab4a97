// Package repository wires the storage pool, shared caches, access
// control and managers into authenticated sessions. One Repository is
// long-lived; each login borrows one pooled client and returns a Session
// that must be logged out to release it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efroese/sparsemapcontent/accesscontrol"
	"github.com/efroese/sparsemapcontent/authorizable"
	"github.com/efroese/sparsemapcontent/cache"
	"github.com/efroese/sparsemapcontent/content"
	"github.com/efroese/sparsemapcontent/store"
)

// ErrLoginFailed is returned when credentials do not resolve to a user.
var ErrLoginFailed = errors.New("repository: login failed")

// Config carries the repository's storage coordinates.
type Config struct {
	KeySpace           string
	AuthorizableFamily string
	ContentFamily      string
	CacheSize          int
}

// DefaultConfig returns the conventional coordinates.
func DefaultConfig() Config {
	return Config{
		KeySpace:           "n",
		AuthorizableFamily: "au",
		ContentFamily:      "cn",
		CacheSize:          cache.DefaultMaxEntries,
	}
}

func (c *Config) validate() {
	if c.KeySpace == "" {
		c.KeySpace = "n"
	}
	if c.AuthorizableFamily == "" {
		c.AuthorizableFamily = "au"
	}
	if c.ContentFamily == "" {
		c.ContentFamily = "cn"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = cache.DefaultMaxEntries
	}
}

// Repository creates sessions over one storage pool. The row caches are
// created once here and shared by reference with every session, one per
// column family. The identity plugin registry is likewise fixed at
// construction.
type Repository struct {
	pool         store.Pool
	cfg          Config
	listener     store.Listener
	authCache    *cache.Cache
	contentCache *cache.Cache
	factories    []authorizable.PluginFactory
	logger       *slog.Logger
}

// New creates a Repository. A nil listener disables notification; a nil
// logger falls back to slog.Default().
func New(pool store.Pool, cfg Config, listener store.Listener, factories []authorizable.PluginFactory, logger *slog.Logger) *Repository {
	cfg.validate()
	if listener == nil {
		listener = store.NopListener
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		pool:         pool,
		cfg:          cfg,
		listener:     listener,
		authCache:    cache.New(cfg.CacheSize),
		contentCache: cache.New(cfg.CacheSize),
		factories:    factories,
		logger:       logger,
	}
}

// Bootstrap seeds the well-known identities: the admin user, the
// anonymous user and the administrators group. Existing rows are left
// untouched. The everyone group is synthetic and never persisted.
func (r *Repository) Bootstrap(ctx context.Context) error {
	session, err := r.LoginAdministrative(ctx, authorizable.AdminID)
	if err != nil {
		return err
	}
	defer session.Logout()

	am := session.AuthorizableManager()
	if _, err := am.CreateUser(ctx, authorizable.AdminID, "Administrator", "", store.Properties{
		authorizable.PrincipalsField: []string{authorizable.AdministratorsGroup},
	}); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if _, err := am.CreateUser(ctx, authorizable.AnonymousID, "Anonymous", "", nil); err != nil {
		return fmt.Errorf("bootstrap anonymous: %w", err)
	}
	if _, err := am.CreateGroup(ctx, authorizable.AdministratorsGroup, "Administrators", store.Properties{
		authorizable.MembersField: []string{authorizable.AdminID},
	}); err != nil {
		return fmt.Errorf("bootstrap administrators: %w", err)
	}
	return nil
}

// Login authenticates id with a password and returns a Session. The
// borrowed client is closed on every failure path so the pool's borrow
// and close counts stay paired.
func (r *Repository) Login(ctx context.Context, id, password string) (*Session, error) {
	client, err := r.pool.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			client.Close()
		}
	}()

	auth := authorizable.NewAuthenticator(client, r.cfg.KeySpace, r.cfg.AuthorizableFamily)
	user, err := auth.Authenticate(ctx, id, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %q", ErrLoginFailed, id)
	}
	session := r.newSession(client, user, user.IsAdmin())
	ok = true
	return session, nil
}

// LoginAdministrative opens a session as id with administrative rights
// and no credential check. An empty id logs in as the admin user. The
// user need not exist yet; bootstrap depends on that.
func (r *Repository) LoginAdministrative(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = authorizable.AdminID
	}
	client, err := r.pool.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			client.Close()
		}
	}()

	auth := authorizable.NewAuthenticator(client, r.cfg.KeySpace, r.cfg.AuthorizableFamily)
	user, err := auth.SystemAuthenticate(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = syntheticUser(id)
	}
	session := r.newSession(client, user, true)
	ok = true
	return session, nil
}

// LoginAnonymous opens a read-only session as the anonymous user.
func (r *Repository) LoginAnonymous(ctx context.Context) (*Session, error) {
	client, err := r.pool.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			client.Close()
		}
	}()

	auth := authorizable.NewAuthenticator(client, r.cfg.KeySpace, r.cfg.AuthorizableFamily)
	user, err := auth.SystemAuthenticate(ctx, authorizable.AnonymousID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = syntheticUser(authorizable.AnonymousID)
	}
	session := r.newSession(client, user, false)
	ok = true
	return session, nil
}

// syntheticUser builds an unpersisted user identity, for system logins
// that predate bootstrap.
func syntheticUser(id string) *authorizable.User {
	decoded, _ := authorizable.Decode(store.Properties{
		authorizable.IDField:   id,
		authorizable.TypeField: authorizable.UserType,
	})
	return decoded.(*authorizable.User)
}

func (r *Repository) newSession(client store.Client, user *authorizable.User, admin bool) *Session {
	acl := accesscontrol.NewBasic(user.ID(), admin, user.IsAnonymous())
	plugins := authorizable.NewPlugins(r.factories)
	am := authorizable.NewManager(user, client, r.authCache, acl, r.listener,
		r.cfg.KeySpace, r.cfg.AuthorizableFamily, plugins, r.logger)
	cm := content.NewManager(client, r.contentCache, acl, r.listener,
		r.cfg.KeySpace, r.cfg.ContentFamily, r.logger)
	return &Session{
		client:  client,
		user:    user,
		authMgr: am,
		contMgr: cm,
	}
}

// Close shuts the underlying pool down. Sessions must be logged out
// first.
func (r *Repository) Close(ctx context.Context) error {
	return r.pool.Close(ctx)
}

// Session is one unit of work: an authenticated user bound to one
// borrowed storage client and the managers built on it.
type Session struct {
	client  store.Client
	user    *authorizable.User
	authMgr *authorizable.Manager
	contMgr *content.Manager
	done    bool
}

// User returns the session's authenticated user.
func (s *Session) User() *authorizable.User { return s.user }

// AuthorizableManager returns the session's identity manager.
func (s *Session) AuthorizableManager() *authorizable.Manager { return s.authMgr }

// ContentManager returns the session's content manager.
func (s *Session) ContentManager() *content.Manager { return s.contMgr }

// Logout closes the managers and returns the storage client. Safe to call
// more than once.
func (s *Session) Logout() error {
	if s.done {
		return nil
	}
	s.done = true
	s.authMgr.Close()
	s.contMgr.Close()
	return s.client.Close()
}
